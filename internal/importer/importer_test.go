package importer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/model"
	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/objstream"
	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/wiki"
)

type fakeSource struct {
	pages        []wiki.PageListing
	media        []wiki.MediaListing
	pageHistory  map[string][]wiki.HistoryEntry
	mediaHistory map[string][]wiki.HistoryEntry
	pageContent  map[string]map[int64]string
	recentPages  []wiki.RecentChange
	recentMedia  []wiki.RecentChange
}

func (f *fakeSource) ListPagesAll() ([]wiki.PageListing, error)     { return f.pages, nil }
func (f *fakeSource) ListPagesNS(ns string) ([]wiki.PageListing, error) { return f.pages, nil }
func (f *fakeSource) ListMediaNS(ns string) ([]wiki.MediaListing, error) { return f.media, nil }
func (f *fakeSource) PageHistory(id string) ([]wiki.HistoryEntry, error) {
	return f.pageHistory[id], nil
}
func (f *fakeSource) MediaHistory(id string) ([]wiki.HistoryEntry, error) {
	return f.mediaHistory[id], nil
}
func (f *fakeSource) PageAt(id string, rev int64) (string, bool, error) {
	byRev, ok := f.pageContent[id]
	if !ok {
		return "", false, nil
	}
	content, ok := byRev[rev]
	return content, ok, nil
}
func (f *fakeSource) MediaAt(id string, rev int64) ([]byte, error) { return []byte("binary"), nil }
func (f *fakeSource) RecentPageChanges(since int64) ([]wiki.RecentChange, error) {
	return f.recentPages, nil
}
func (f *fakeSource) RecentMediaChanges(since int64) ([]wiki.RecentChange, error) {
	return f.recentMedia, nil
}

func TestRunFullImportEmitsOneCommitPerVersion(t *testing.T) {
	src := &fakeSource{
		pages: []wiki.PageListing{{ID: "docs:intro", Revision: 200, Author: "alice"}},
		pageHistory: map[string][]wiki.HistoryEntry{
			"docs:intro": {
				{Version: 200, Author: "alice", Summary: "polish", Type: model.Edit},
				{Version: 100, Author: "bob", Summary: "create", Type: model.Create},
			},
		},
		pageContent: map[string]map[int64]string{
			"docs:intro": {100: "first draft", 200: "polished"},
		},
	}

	var buf bytes.Buffer
	out := objstream.NewWriter(&buf)
	result, err := Run(src, Config{Ext: "md", Ref: "refs/dokuwiki/origin/heads/main"}, out)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Emitted {
		t.Fatalf("Run() Emitted = false, want true")
	}
	if result.MaxVersion != 200 {
		t.Fatalf("MaxVersion = %d, want 200", result.MaxVersion)
	}

	text := buf.String()
	if strings.Count(text, "commit refs/dokuwiki/origin/heads/main") != 2 {
		t.Fatalf("expected two commits, one per version bucket:\n%s", text)
	}
	if !strings.Contains(text, "first draft") || !strings.Contains(text, "polished") {
		t.Fatalf("expected both revisions' content to appear:\n%s", text)
	}
}

func TestRunIncrementalFiltersByNamespace(t *testing.T) {
	since := int64(50)
	src := &fakeSource{
		recentPages: []wiki.RecentChange{
			{ID: "docs:intro", Version: 60, Author: "alice", Type: model.Edit},
			{ID: "other:page", Version: 61, Author: "carol", Type: model.Edit},
		},
		pageHistory: map[string][]wiki.HistoryEntry{
			"docs:intro": {{Version: 60, Author: "alice", Type: model.Edit}},
		},
		pageContent: map[string]map[int64]string{
			"docs:intro": {60: "edited"},
		},
	}

	var buf bytes.Buffer
	out := objstream.NewWriter(&buf)
	result, err := Run(src, Config{Ext: "md", NS: "docs", Since: &since, Ref: "refs/x"}, out)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.MaxVersion != 60 {
		t.Fatalf("MaxVersion = %d, want 60 (other:page must be filtered out)", result.MaxVersion)
	}
	if strings.Contains(buf.String(), "other") {
		t.Fatalf("namespace filter leaked an out-of-scope item:\n%s", buf.String())
	}
}

func TestApplyDepthLimitKeepsNewestRevisions(t *testing.T) {
	items := map[string]*itemRevs{
		"p": {
			id: "p",
			revs: []model.Revision{
				{ID: "p", Version: 1},
				{ID: "p", Version: 2},
				{ID: "p", Version: 3},
			},
		},
	}
	applyDepthLimit(items, 2)
	if len(items["p"].revs) != 2 {
		t.Fatalf("len(revs) = %d, want 2", len(items["p"].revs))
	}
	if items["p"].revs[0].Version != 3 || items["p"].revs[1].Version != 2 {
		t.Fatalf("depth limit did not keep the newest revisions: %+v", items["p"].revs)
	}
}

func TestMessageForSingleItemNoSummary(t *testing.T) {
	revs := []model.Revision{{ID: "docs:intro"}}
	got := messageFor(revs, model.NamespaceFilter("docs"))
	if got != "Edit intro" {
		t.Fatalf("messageFor() = %q, want %q", got, "Edit intro")
	}
}
