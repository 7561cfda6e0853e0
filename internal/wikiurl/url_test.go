package wikiurl

import "testing"

func TestParseBasic(t *testing.T) {
	p := Parse("dokuwiki::wiki.example.com")
	if p.Host != "wiki.example.com" {
		t.Fatalf("Host = %q, want wiki.example.com", p.Host)
	}
	if p.Scheme != "https" {
		t.Fatalf("Scheme = %q, want https", p.Scheme)
	}
	if p.Namespace != "" {
		t.Fatalf("Namespace = %q, want empty", p.Namespace)
	}
	if p.BaseURL() != "https://wiki.example.com" {
		t.Fatalf("BaseURL = %q", p.BaseURL())
	}
}

func TestParseWithUserNamespaceAndExt(t *testing.T) {
	p := Parse("dokuwiki::alice@wiki.example.com/docs/guide?ext=txt")
	if p.User != "alice" {
		t.Fatalf("User = %q, want alice", p.User)
	}
	if p.Host != "wiki.example.com" {
		t.Fatalf("Host = %q, want wiki.example.com", p.Host)
	}
	if string(p.Namespace) != "docs:guide" {
		t.Fatalf("Namespace = %q, want docs:guide", p.Namespace)
	}
	if p.Extension != "txt" {
		t.Fatalf("Extension = %q, want txt", p.Extension)
	}
}

func TestParseLocalhostUsesHTTP(t *testing.T) {
	p := Parse("dokuwiki::localhost:8080")
	if p.Scheme != "http" {
		t.Fatalf("Scheme = %q, want http for localhost", p.Scheme)
	}
}

func TestParseAcceptsMissingPrefix(t *testing.T) {
	p := Parse("wiki.example.com")
	if p.Host != "wiki.example.com" {
		t.Fatalf("Host = %q, want wiki.example.com", p.Host)
	}
}
