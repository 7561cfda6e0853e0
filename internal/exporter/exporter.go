// Package exporter implements component D: consuming a pushed commit
// range and projecting it back into idempotent wiki mutations, guarding
// against lost-update races via the wiki's change log (spec.md §4.4).
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package exporter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/emirpasic/gods/sets/linkedhashset"

	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/diag"
	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/localvcs"
	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/model"
	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/objstream"
	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/wiki"
)

// LocalVCS is the subset of the §6.5 facade the projector consumes.
type LocalVCS interface {
	IsAncestor(a, b string) (bool, error)
	CommitsBetween(from, to string) ([]string, error)
	Subject(commit string) (string, error)
	DiffTree(commit string) ([]localvcs.DiffStatus, error)
	Show(commit, path string) ([]byte, error)
}

// WikiSink is the subset of the wiki facade the projector mutates
// through, and consults for concurrent-edit detection.
type WikiSink interface {
	SavePage(id, text, summary string) error
	SaveMedia(id string, data []byte, overwrite bool) error
	DeleteMedia(id string) error
	RecentPageChanges(since int64) ([]wiki.RecentChange, error)
}

// MarkerStore is the subset of marker.Store the projector needs.
type MarkerStore interface {
	Load() (int64, bool, error)
	Save(version int64) error
}

// Config is the projector's input policy, spec.md §4.4.
type Config struct {
	NS        model.NamespaceFilter
	Ext       string
	DryRun    bool
	MainRef   string // the only ref this bridge accepts pushes to, e.g. "refs/heads/main"
	OriginRef string // the local ref mirroring the wiki's last-known state, refs/dokuwiki/origin/heads/main
}

// Result reports the outcome of a push.
type Result struct {
	Ref           string
	NothingToPush bool
}

// Run drains the inbound object stream, applies the push, and advances
// the marker on success.
func Run(in *objstream.Reader, local LocalVCS, sink WikiSink, markers MarkerStore, cfg Config) (Result, error) {
	ref, err := drain(in)
	if err != nil {
		return Result{}, err
	}
	if ref == "" {
		return Result{NothingToPush: true}, nil
	}

	if err := gatePolicy(ref, local, sink, markers, cfg); err != nil {
		return Result{}, err
	}

	commits, err := local.CommitsBetween(cfg.OriginRef, "HEAD")
	if err != nil {
		return Result{}, diag.Wrap(diag.Internal, "", err, "listing commits to push")
	}

	if err := apply(commits, local, sink, cfg); err != nil {
		return Result{}, err
	}

	if !cfg.DryRun {
		if err := advanceMarker(sink, markers); err != nil {
			diag.Warn("push succeeded but marker update failed: %v", err)
		}
	}

	return Result{Ref: ref}, nil
}

// drain implements phase 1: scan every line, remember the last `commit
// <ref>` seen, and byte-exactly skip every `data <len>` payload.
func drain(in *objstream.Reader) (string, error) {
	lastRef := ""
	for {
		line, err := in.ReadLine()
		if err != nil {
			break
		}
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "commit "):
			lastRef = strings.TrimSpace(strings.TrimPrefix(line, "commit "))
		case strings.HasPrefix(line, "data "):
			n, convErr := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "data ")))
			if convErr != nil {
				return "", diag.Wrap(diag.BadStream, "", convErr, "malformed data header %q", line)
			}
			if _, err := in.ReadN(n); err != nil {
				return "", diag.Wrap(diag.BadStream, "", err, "short data payload after %q", line)
			}
		case line == "done":
			return lastRef, nil
		}
	}
	return lastRef, nil
}

// gatePolicy implements phase 2.
func gatePolicy(ref string, local LocalVCS, sink WikiSink, markers MarkerStore, cfg Config) error {
	if strings.HasPrefix(ref, "refs/tags/") {
		return diag.New(diag.RefNotAllowed, "push to a branch instead", "the wiki has no tags: refused %s", ref)
	}
	if ref != cfg.MainRef {
		return diag.New(diag.RefNotAllowed, fmt.Sprintf("push to %s instead", cfg.MainRef), "refused push to %s", ref)
	}

	ancestor, err := local.IsAncestor(cfg.OriginRef, "HEAD")
	if err != nil {
		return diag.Wrap(diag.Internal, "", err, "checking fast-forward status")
	}
	if !ancestor {
		return diag.New(diag.NotFastForward, "rebase", "local history has diverged from the wiki's")
	}

	mark, ok, err := markers.Load()
	if err != nil {
		return diag.Wrap(diag.Internal, "", err, "reading marker store")
	}
	if ok {
		changes, err := sink.RecentPageChanges(mark + 1)
		if err != nil {
			return diag.Wrap(diag.RPCFailure, "", err, "checking for concurrent remote changes")
		}
		n := 0
		for _, c := range changes {
			if cfg.NS.Matches(c.ID) {
				n++
			}
		}
		if n > 0 {
			return diag.New(diag.RemoteDiverged, "fetch/pull first", "Remote has %d new change(s). Please fetch/pull first.", n)
		}
	}
	return nil
}

type applyItem struct {
	desc   string
	commit string
	status string
	path   string
	id     string
	isPage bool
}

// apply implements phases 3 and 4: enumerate the push oldest-to-newest,
// then apply each changed path, tracking push progress so a failure can
// be resumed manually.
func apply(commits []string, local LocalVCS, sink WikiSink, cfg Config) error {
	mapper := model.PathMapper{Extension: cfg.Ext, NS: cfg.NS}

	var plan []applyItem
	for _, commit := range commits {
		diffs, err := local.DiffTree(commit)
		if err != nil {
			return diag.Wrap(diag.Internal, "", err, "diffing commit %s", commit)
		}
		for _, d := range diffs {
			if d.Status != "A" && d.Status != "M" && d.Status != "D" {
				continue
			}
			strippedID, kind := mapper.FromPath(d.Path)
			id := cfg.NS.Prefix(strippedID)
			isPage := kind == model.Page
			plan = append(plan, applyItem{
				desc:   describe(d.Status, isPage, id),
				commit: commit,
				status: d.Status,
				path:   d.Path,
				id:     id,
				isPage: isPage,
			})
		}
	}

	pending := linkedhashset.New()
	for _, item := range plan {
		pending.Add(item.desc)
	}
	pushed := linkedhashset.New()

	for _, item := range plan {
		subject, err := local.Subject(item.commit)
		if err != nil {
			subject = ""
		}

		if cfg.DryRun {
			diag.Info("Would %s", item.desc)
			pending.Remove(item.desc)
			pushed.Add(item.desc)
			continue
		}

		if err := applyOne(local, sink, item, subject); err != nil {
			return diag.ApplyFailure(item.desc, err, orderedStrings(pushed), orderedStrings(pending))
		}
		pending.Remove(item.desc)
		pushed.Add(item.desc)
	}
	return nil
}

func describe(status string, isPage bool, id string) string {
	kind := "media"
	if isPage {
		kind = "page"
	}
	verb := "update"
	if status == "D" {
		verb = "delete"
	}
	return fmt.Sprintf("%s %s %s", verb, kind, id)
}

func applyOne(local LocalVCS, sink WikiSink, item applyItem, subject string) error {
	if item.isPage {
		if item.status == "D" {
			return sink.SavePage(item.id, "", "Deleted: "+subject)
		}
		data, err := local.Show(item.commit, item.path)
		if err != nil {
			return err
		}
		return sink.SavePage(item.id, string(data), subject)
	}
	if item.status == "D" {
		return sink.DeleteMedia(item.id)
	}
	data, err := local.Show(item.commit, item.path)
	if err != nil {
		return err
	}
	return sink.SaveMedia(item.id, data, true)
}

func orderedStrings(s *linkedhashset.Set) []string {
	values := s.Values()
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.(string))
	}
	return out
}

// advanceMarker implements phase 5: take the newest version visible to
// recent_page_changes(0) and persist it, so our own just-pushed edits
// aren't mistaken for concurrent remote edits on the next push.
func advanceMarker(sink WikiSink, markers MarkerStore) error {
	changes, err := sink.RecentPageChanges(0)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}
	last := changes[len(changes)-1]
	return markers.Save(last.Version)
}
