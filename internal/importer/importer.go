// Package importer implements component C: turning a wiki's per-item
// revision history into a coherent, append-only commit stream with
// stable identity across incremental re-imports (spec.md §4.3).
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package importer

import (
	"sort"
	"strconv"
	"strings"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/sets/treeset"
	"github.com/emirpasic/gods/utils"

	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/diag"
	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/model"
	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/objstream"
	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/wiki"
)

// Source is the subset of the wiki facade the synthesizer consumes. It is
// satisfied by *wiki.Client; tests supply a fake.
type Source interface {
	ListPagesAll() ([]wiki.PageListing, error)
	ListPagesNS(ns string) ([]wiki.PageListing, error)
	ListMediaNS(ns string) ([]wiki.MediaListing, error)
	PageHistory(id string) ([]wiki.HistoryEntry, error)
	MediaHistory(id string) ([]wiki.HistoryEntry, error)
	PageAt(id string, rev int64) (string, bool, error)
	MediaAt(id string, rev int64) ([]byte, error)
	RecentPageChanges(since int64) ([]wiki.RecentChange, error)
	RecentMediaChanges(since int64) ([]wiki.RecentChange, error)
}

// Config is the synthesizer's input policy, spec.md §4.3.
type Config struct {
	NS        model.NamespaceFilter
	Ext       string
	Since     *int64 // nil means a full import
	ParentRef string // "" means no parent (first-ever import)
	Depth     int    // 0 means unlimited
	Ref       string // destination ref, e.g. refs/dokuwiki/origin/heads/main
	WikiHost  string // for building synthesized author emails
}

// Result reports what the run produced.
type Result struct {
	MaxVersion int64
	Emitted    bool
}

// itemRevs accumulates the gathered revisions for one item, keyed by its
// full (namespace-prefixed) wiki ID.
type itemRevs struct {
	id   string
	kind model.Kind
	revs []model.Revision
}

// Run performs one import pass, writing the object stream to out.
func Run(src Source, cfg Config, out *objstream.Writer) (Result, error) {
	items, err := gather(src, cfg)
	if err != nil {
		return Result{}, err
	}

	if cfg.Depth > 0 {
		applyDepthLimit(items, cfg.Depth)
	}

	buckets := bucketByVersion(items, cfg.NS)

	mapper := model.PathMapper{Extension: cfg.Ext, NS: cfg.NS}
	result := Result{}
	prevMark := 0
	from := cfg.ParentRef

	it := buckets.Iterator()
	for it.Next() {
		version := it.Key().(int64)
		revs := it.Value().([]model.Revision)
		sort.Slice(revs, func(i, j int) bool {
			ki, kj := revs[i].Kind.String(), revs[j].Kind.String()
			if ki != kj {
				return ki < kj
			}
			return revs[i].ID < revs[j].ID
		})

		ops, blobErr := materialize(src, revs, mapper, out)
		if blobErr != nil {
			return Result{}, blobErr
		}
		if len(ops) == 0 {
			continue
		}

		mark := out.ReserveMark()
		ident := identFor(revs, version, cfg.WikiHost)
		message := messageFor(revs, cfg.NS)

		parentArg := from
		if prevMark != 0 {
			parentArg = markRef(prevMark)
		}
		out.Commit(cfg.Ref, mark, ident, ident, message, parentArg, ops)

		prevMark = mark
		result.Emitted = true
		if version > result.MaxVersion {
			result.MaxVersion = version
		}
	}

	return result, nil
}

func markRef(mark int) string {
	return ":" + strconv.Itoa(mark)
}

// gather implements spec.md §4.3's "revision gathering": incremental via
// recent-changes, full via inventory enumeration, with non-fatal
// per-item fallback on history-fetch failure.
func gather(src Source, cfg Config) (map[string]*itemRevs, error) {
	items := map[string]*itemRevs{}

	ensure := func(id string, kind model.Kind) *itemRevs {
		if it, ok := items[id]; ok {
			return it
		}
		it := &itemRevs{id: id, kind: kind}
		items[id] = it
		return it
	}

	if cfg.Since != nil {
		recentPages, err := src.RecentPageChanges(*cfg.Since)
		if err != nil {
			return nil, err
		}
		recentMedia, err := src.RecentMediaChanges(*cfg.Since)
		if err != nil {
			return nil, err
		}

		seen := map[string]bool{}
		for _, rc := range recentPages {
			if !cfg.NS.Matches(rc.ID) || seen[rc.ID+"|p"] {
				continue
			}
			seen[rc.ID+"|p"] = true
			fetchIncrementalHistory(src, ensure(rc.ID, model.Page), model.Page, rc, *cfg.Since)
		}
		for _, rc := range recentMedia {
			if !cfg.NS.Matches(rc.ID) || seen[rc.ID+"|m"] {
				continue
			}
			seen[rc.ID+"|m"] = true
			fetchIncrementalHistory(src, ensure(rc.ID, model.Media), model.Media, rc, *cfg.Since)
		}
		return items, nil
	}

	var pages []wiki.PageListing
	var err error
	if cfg.NS != "" {
		pages, err = src.ListPagesNS(string(cfg.NS))
	} else {
		pages, err = src.ListPagesAll()
	}
	if err != nil {
		return nil, err
	}
	for _, p := range pages {
		fetchFullHistory(src, ensure(p.ID, model.Page), model.Page, p.ID, p.Revision, p.Author)
	}

	media, err := src.ListMediaNS(string(cfg.NS))
	if err != nil {
		return nil, err
	}
	for _, m := range media {
		fetchFullHistory(src, ensure(m.ID, model.Media), model.Media, m.ID, m.Revision, m.Author)
	}

	return items, nil
}

func fetchIncrementalHistory(src Source, it *itemRevs, kind model.Kind, rc wiki.RecentChange, since int64) {
	hist, err := historyFor(src, kind, rc.ID)
	if err != nil {
		diag.Warn("could not fetch history for %s, using recent-change entry: %v", rc.ID, err)
		it.revs = append(it.revs, model.Revision{
			ID: rc.ID, Kind: kind, Version: rc.Version, Author: rc.Author, Summary: rc.Summary, Type: rc.Type,
		})
		return
	}
	for _, h := range hist {
		if h.Version > since {
			it.revs = append(it.revs, model.Revision{
				ID: rc.ID, Kind: kind, Version: h.Version, Author: h.Author, Summary: h.Summary, Type: h.Type,
			})
		}
	}
}

func fetchFullHistory(src Source, it *itemRevs, kind model.Kind, id string, inventoryRev int64, inventoryAuthor string) {
	hist, err := historyFor(src, kind, id)
	if err != nil {
		diag.Warn("could not fetch history for %s, synthesizing current version: %v", id, err)
		it.revs = append(it.revs, currentVersionFallback(id, kind, inventoryRev, inventoryAuthor))
		return
	}
	if len(hist) == 0 {
		it.revs = append(it.revs, currentVersionFallback(id, kind, inventoryRev, inventoryAuthor))
		return
	}
	for _, h := range hist {
		it.revs = append(it.revs, model.Revision{
			ID: id, Kind: kind, Version: h.Version, Author: h.Author, Summary: h.Summary, Type: h.Type,
		})
	}
}

func currentVersionFallback(id string, kind model.Kind, version int64, author string) model.Revision {
	return model.Revision{ID: id, Kind: kind, Version: version, Author: author, Summary: "current version", Type: model.Create}
}

func historyFor(src Source, kind model.Kind, id string) ([]wiki.HistoryEntry, error) {
	if kind == model.Page {
		return src.PageHistory(id)
	}
	return src.MediaHistory(id)
}

// applyDepthLimit keeps only the depth newest revisions per item, by
// version descending, then re-flattens (spec.md §4.3).
func applyDepthLimit(items map[string]*itemRevs, depth int) {
	for _, it := range items {
		if len(it.revs) <= depth {
			continue
		}
		sort.Slice(it.revs, func(i, j int) bool { return it.revs[i].Version > it.revs[j].Version })
		it.revs = append([]model.Revision(nil), it.revs[:depth]...)
	}
}

// bucketByVersion groups namespace-filtered revisions by version,
// ordered ascending by version (spec.md §4.3's grouping rule).
func bucketByVersion(items map[string]*itemRevs, ns model.NamespaceFilter) *treemap.Map {
	buckets := treemap.NewWith(utils.Int64Comparator)
	for _, it := range items {
		if !ns.Matches(it.id) {
			continue
		}
		for _, rev := range it.revs {
			existing, found := buckets.Get(rev.Version)
			var list []model.Revision
			if found {
				list = existing.([]model.Revision)
			}
			list = append(list, rev)
			buckets.Put(rev.Version, list)
		}
	}
	return buckets
}

// materialize fetches content for non-delete revisions and emits blobs,
// returning the file ops for the enclosing commit. Fetch failures are
// non-fatal: the op is skipped and a warning logged (spec.md §4.3).
func materialize(src Source, revs []model.Revision, mapper model.PathMapper, out *objstream.Writer) ([]objstream.FileOp, error) {
	ops := make([]objstream.FileOp, 0, len(revs))
	for _, rev := range revs {
		strippedID := mapper.NS.Strip(rev.ID)
		path := mapper.ToPath(strippedID, rev.Kind)

		if rev.Type == model.Delete {
			ops = append(ops, objstream.FileOp{Kind: objstream.OpDelete, Path: path})
			continue
		}

		var data []byte
		if rev.Kind == model.Page {
			content, ok, err := src.PageAt(rev.ID, rev.Version)
			if err != nil || !ok {
				diag.Warn("skipping %s@%d: %v", rev.ID, rev.Version, err)
				continue
			}
			data = []byte(content)
		} else {
			bytes, err := src.MediaAt(rev.ID, rev.Version)
			if err != nil {
				diag.Warn("skipping %s@%d: %v", rev.ID, rev.Version, err)
				continue
			}
			data = bytes
		}

		mark := out.Blob(data)
		ops = append(ops, objstream.FileOp{Kind: objstream.OpModify, Path: path, Mark: mark})
	}
	return ops, nil
}

func identFor(revs []model.Revision, version int64, wikiHost string) objstream.Ident {
	authors := treeset.NewWithStringComparator()
	for _, r := range revs {
		a := r.Author
		if a == "" {
			a = "unknown"
		}
		authors.Add(a)
	}
	names := make([]string, 0, authors.Size())
	for _, v := range authors.Values() {
		names = append(names, v.(string))
	}
	joined := strings.Join(names, ", ")
	if joined == "" {
		joined = "unknown"
	}
	sanitized := strings.ReplaceAll(joined, " ", ".")
	sanitized = strings.ReplaceAll(sanitized, ",", "")
	email := sanitized + "@" + wikiHost
	return objstream.Ident{Name: joined, Email: email, When: version, TZ: "+0000"}
}

func messageFor(revs []model.Revision, ns model.NamespaceFilter) string {
	hasSummary := false
	for _, r := range revs {
		if r.Summary != "" {
			hasSummary = true
			break
		}
	}
	if !hasSummary {
		if len(revs) == 1 {
			return "Edit " + ns.Strip(revs[0].ID)
		}
		return "Edit " + strconv.Itoa(len(revs)) + " items"
	}
	lines := make([]string, 0, len(revs))
	for _, r := range revs {
		lines = append(lines, ns.Strip(r.ID)+": "+r.Summary)
	}
	return strings.Join(lines, "\n")
}
