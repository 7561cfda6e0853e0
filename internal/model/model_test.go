package model

import "testing"

func TestNamespaceFilterMatches(t *testing.T) {
	cases := []struct {
		ns   NamespaceFilter
		id   string
		want bool
	}{
		{"", "anything:at:all", true},
		{"docs", "docs", true},
		{"docs", "docs:guide", true},
		{"docs", "docsish:guide", false},
		{"docs", "other:page", false},
	}
	for _, c := range cases {
		if got := c.ns.Matches(c.id); got != c.want {
			t.Errorf("NamespaceFilter(%q).Matches(%q) = %v, want %v", c.ns, c.id, got, c.want)
		}
	}
}

func TestNamespaceFilterStripPrefixRoundTrip(t *testing.T) {
	ns := NamespaceFilter("docs:guide")
	id := "docs:guide:intro"
	stripped := ns.Strip(id)
	if stripped != "intro" {
		t.Fatalf("Strip(%q) = %q, want %q", id, stripped, "intro")
	}
	if got := ns.Prefix(stripped); got != id {
		t.Fatalf("Prefix(Strip(%q)) = %q, want %q", id, got, id)
	}
}

func TestNamespaceFilterStripExactMatch(t *testing.T) {
	ns := NamespaceFilter("docs")
	if got := ns.Strip("docs"); got != "" {
		t.Fatalf("Strip of exact namespace = %q, want empty", got)
	}
	if got := ns.Prefix(""); got != "docs" {
		t.Fatalf("Prefix(\"\") = %q, want %q", got, "docs")
	}
}

func TestPathMapperPageRoundTrip(t *testing.T) {
	m := PathMapper{Extension: "md"}
	path := m.ToPath("a:b:c", Page)
	if path != "a/b/c.md" {
		t.Fatalf("ToPath = %q, want a/b/c.md", path)
	}
	id, kind := m.FromPath(path)
	if id != "a:b:c" || kind != Page {
		t.Fatalf("FromPath(%q) = (%q, %v), want (a:b:c, Page)", path, id, kind)
	}
}

func TestPathMapperMediaRoundTrip(t *testing.T) {
	m := PathMapper{Extension: "md"}
	path := m.ToPath("a:b:img.png", Media)
	if path != "a/b/img.png" {
		t.Fatalf("ToPath = %q, want a/b/img.png", path)
	}
	id, kind := m.FromPath(path)
	if id != "a:b:img.png" || kind != Media {
		t.Fatalf("FromPath(%q) = (%q, %v), want (a:b:img.png, Media)", path, id, kind)
	}
}

func TestPathMapperDefaultExtension(t *testing.T) {
	m := PathMapper{}
	if m.Ext() != "md" {
		t.Fatalf("default Ext() = %q, want md", m.Ext())
	}
}
