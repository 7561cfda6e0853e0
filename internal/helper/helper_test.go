package helper

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/localvcs"
	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/model"
	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/wiki"
)

type fakeWiki struct {
	apiVersion int
	authCalls  int
	pages      []wiki.PageListing
	recent     []wiki.RecentChange
}

func (f *fakeWiki) ListPagesAll() ([]wiki.PageListing, error)         { return f.pages, nil }
func (f *fakeWiki) ListPagesNS(ns string) ([]wiki.PageListing, error) { return f.pages, nil }
func (f *fakeWiki) ListMediaNS(ns string) ([]wiki.MediaListing, error) { return nil, nil }
func (f *fakeWiki) PageHistory(id string) ([]wiki.HistoryEntry, error) { return nil, nil }
func (f *fakeWiki) MediaHistory(id string) ([]wiki.HistoryEntry, error) { return nil, nil }
func (f *fakeWiki) PageAt(id string, rev int64) (string, bool, error) { return "", false, nil }
func (f *fakeWiki) MediaAt(id string, rev int64) ([]byte, error)      { return nil, nil }
func (f *fakeWiki) RecentPageChanges(since int64) ([]wiki.RecentChange, error) {
	return f.recent, nil
}
func (f *fakeWiki) RecentMediaChanges(since int64) ([]wiki.RecentChange, error) { return nil, nil }
func (f *fakeWiki) SavePage(id, text, summary string) error                    { return nil }
func (f *fakeWiki) SaveMedia(id string, data []byte, overwrite bool) error     { return nil }
func (f *fakeWiki) DeleteMedia(id string) error                                { return nil }
func (f *fakeWiki) EnsureAuthenticated() error                                 { f.authCalls++; return nil }
func (f *fakeWiki) APIVersion() (int, error)                                   { return f.apiVersion, nil }
func (f *fakeWiki) Host() string                                               { return "wiki.example.com" }

type fakeLocal struct {
	sha string
}

func (f *fakeLocal) IsAncestor(a, b string) (bool, error)              { return true, nil }
func (f *fakeLocal) CommitsBetween(from, to string) ([]string, error)  { return nil, nil }
func (f *fakeLocal) Subject(commit string) (string, error)             { return "", nil }
func (f *fakeLocal) DiffTree(commit string) ([]localvcs.DiffStatus, error) { return nil, nil }
func (f *fakeLocal) Show(commit, path string) ([]byte, error)          { return nil, nil }
func (f *fakeLocal) RevParse(ref string) (string, error)               { return f.sha, nil }

type fakeMarkers struct {
	version int64
	ok      bool
}

func (m *fakeMarkers) Load() (int64, bool, error) { return m.version, m.ok, nil }
func (m *fakeMarkers) Save(version int64) error   { m.version = version; m.ok = true; return nil }

func testConfig() Config {
	return Config{
		NS:        model.NamespaceFilter(""),
		Ext:       "md",
		WikiHost:  "wiki.example.com",
		MainRef:   "refs/heads/main",
		OriginRef: "refs/dokuwiki/origin/heads/main",
		DestRef:   "refs/dokuwiki/origin/heads/main",
	}
}

func TestCapabilities(t *testing.T) {
	var out bytes.Buffer
	h := New(&fakeWiki{}, &fakeLocal{}, &fakeMarkers{}, testConfig(), strings.NewReader("capabilities\n"), &out)
	if err := h.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := out.String()
	for _, want := range []string{"import", "export", "option", "refspec refs/heads/*:refs/dokuwiki/origin/heads/*"} {
		if !strings.Contains(got, want) {
			t.Fatalf("capabilities output missing %q:\n%s", want, got)
		}
	}
}

func TestListWithNoMarkerForcesImport(t *testing.T) {
	var out bytes.Buffer
	h := New(&fakeWiki{}, &fakeLocal{}, &fakeMarkers{}, testConfig(), strings.NewReader("list\n"), &out)
	if err := h.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "@refs/heads/main HEAD") || !strings.Contains(got, "? refs/heads/main") {
		t.Fatalf("list output = %q, want the unknown-sha force-import form", got)
	}
}

func TestListWithUpToDateMarkerReportsSHA(t *testing.T) {
	var out bytes.Buffer
	local := &fakeLocal{sha: "abc123"}
	markers := &fakeMarkers{version: 10, ok: true}
	h := New(&fakeWiki{}, local, markers, testConfig(), strings.NewReader("list\n"), &out)
	if err := h.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "abc123 refs/heads/main") {
		t.Fatalf("list output = %q, want the cached sha line", got)
	}
}

func TestOptionVerbosityAcceptsValidRange(t *testing.T) {
	var out bytes.Buffer
	h := New(&fakeWiki{}, &fakeLocal{}, &fakeMarkers{}, testConfig(), strings.NewReader("option verbosity 2\n"), &out)
	if err := h.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.TrimSpace(out.String()) != "ok" {
		t.Fatalf("option verbosity response = %q, want ok", out.String())
	}
}

func TestOptionUnknownNameUnsupported(t *testing.T) {
	var out bytes.Buffer
	h := New(&fakeWiki{}, &fakeLocal{}, &fakeMarkers{}, testConfig(), strings.NewReader("option bogus 1\n"), &out)
	if err := h.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.TrimSpace(out.String()) != "unsupported" {
		t.Fatalf("option response = %q, want unsupported", out.String())
	}
}

func TestImportAuthenticatesAndEndsBatch(t *testing.T) {
	var out bytes.Buffer
	w := &fakeWiki{apiVersion: wiki.MinAPIVersion}
	h := New(w, &fakeLocal{}, &fakeMarkers{}, testConfig(), strings.NewReader("import refs/heads/main\n\n"), &out)
	if err := h.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if w.authCalls != 1 {
		t.Fatalf("authCalls = %d, want 1", w.authCalls)
	}
	if out.String() != "\n" {
		t.Fatalf("import batch output = %q, want a single blank terminator line (no pages, nothing emitted)", out.String())
	}
}

func TestImportRejectsOldAPIVersion(t *testing.T) {
	w := &fakeWiki{apiVersion: wiki.MinAPIVersion - 1}
	var out bytes.Buffer
	h := New(w, &fakeLocal{}, &fakeMarkers{}, testConfig(), strings.NewReader("import refs/heads/main\n\n"), &out)
	if err := h.Run(); err == nil {
		t.Fatalf("Run() error = nil, want an IncompatibleRemote error")
	}
}
