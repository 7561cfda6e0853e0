// Package helper implements component E: the line-driven dialogue with
// the host VCS (spec.md §4.5). A single mis-ordered line or miscounted
// byte here desynchronizes the session, so the dispatch loop reads
// through the same byte-exact objstream.Reader that backs export's
// stream draining, rather than a separate line scanner.
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package helper

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/diag"
	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/exporter"
	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/importer"
	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/model"
	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/objstream"
	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/wiki"
)

// WikiFacade is everything the helper's dependents (C and D) need from
// component A, plus the session bootstrap.
type WikiFacade interface {
	importer.Source
	exporter.WikiSink
	EnsureAuthenticated() error
	APIVersion() (int, error)
	Host() string
}

// LocalVCS is everything the helper's dependents (D) and the helper
// itself (for `list`) need from §6.5.
type LocalVCS interface {
	exporter.LocalVCS
	RevParse(ref string) (string, error)
}

// MarkerStore is the §6.4 accessor.
type MarkerStore interface {
	Load() (int64, bool, error)
	Save(version int64) error
}

// Config is the static policy for one helper invocation.
type Config struct {
	NS        model.NamespaceFilter
	Ext       string
	WikiHost  string
	MainRef   string // "refs/heads/main"
	OriginRef string // "refs/dokuwiki/origin/heads/main"
	DestRef   string // same as OriginRef: the ref import writes commits onto
}

// Helper runs the state machine of spec.md §4.5 against in/out.
type Helper struct {
	Wiki    WikiFacade
	Local   LocalVCS
	Markers MarkerStore
	Cfg     Config

	in  *objstream.Reader
	out io.Writer

	importDone bool
	depth      int
}

// New builds a Helper bound to in/out. in is read byte-exactly: line
// commands and, inside an export batch, raw fast-export payload bytes
// share the same underlying buffer, so nothing is lost at the boundary
// between the "export" line and the stream that follows it.
func New(w WikiFacade, l LocalVCS, m MarkerStore, cfg Config, in io.Reader, out io.Writer) *Helper {
	return &Helper{Wiki: w, Local: l, Markers: m, Cfg: cfg, in: objstream.NewReader(in), out: out}
}

func (h *Helper) emit(line string) {
	fmt.Fprintln(h.out, line)
}

func (h *Helper) emitBlank() {
	fmt.Fprintln(h.out)
}

func (h *Helper) readLine() (string, bool) {
	line, err := h.in.ReadLine()
	if err != nil {
		return "", false
	}
	return line, true
}

// Run drives the dispatch loop until the host ends the session (EOF) or
// the helper reaches one of the protocol's exit points (after `import`
// or `export`, per spec.md §4.5's state diagram).
func (h *Helper) Run() error {
	for {
		line, ok := h.readLine()
		if !ok {
			return nil
		}
		switch {
		case line == "":
			continue
		case line == "capabilities":
			h.doCapabilities()
		case line == "list" || strings.HasPrefix(line, "list "):
			h.doList()
		case strings.HasPrefix(line, "option "):
			h.doOption(strings.TrimPrefix(line, "option "))
		case strings.HasPrefix(line, "import "):
			if err := h.doImportBatch(); err != nil {
				return err
			}
			return nil
		case line == "export":
			if err := h.doExport(); err != nil {
				return err
			}
			return nil
		default:
			diag.Warn("unrecognized helper command: %q", line)
		}
	}
}

// doCapabilities advertises import, export, option, and the refspec that
// keeps wiki history out of the user's own branch namespace (spec.md §6.7).
func (h *Helper) doCapabilities() {
	h.emit("import")
	h.emit("export")
	h.emit("option")
	h.emit("refspec refs/heads/*:refs/dokuwiki/origin/heads/*")
	h.emitBlank()
}

// doList implements spec.md §4.5's list semantics.
func (h *Helper) doList() {
	mark, ok, err := h.Markers.Load()
	if err == nil && ok {
		changes, cerr := h.Wiki.RecentPageChanges(mark + 1)
		if cerr == nil {
			n := 0
			for _, c := range changes {
				if h.Cfg.NS.Matches(c.ID) {
					n++
				}
			}
			if n == 0 {
				sha, rerr := h.Local.RevParse(h.Cfg.OriginRef)
				if rerr == nil && sha != "" {
					h.emit(sha + " " + h.Cfg.MainRef)
					h.emitBlank()
					return
				}
			}
		}
	}
	h.emit("@" + h.Cfg.MainRef + " HEAD")
	h.emit("? " + h.Cfg.MainRef)
	h.emitBlank()
}

// doOption implements the option table of spec.md §4.5.
func (h *Helper) doOption(rest string) {
	parts := strings.SplitN(rest, " ", 2)
	name := parts[0]
	value := ""
	if len(parts) > 1 {
		value = parts[1]
	}
	switch name {
	case "verbosity":
		v, err := strconv.Atoi(value)
		if err != nil || v < 0 || v > 3 {
			h.emit("unsupported")
			return
		}
		diag.Raise(diag.Level(v))
		h.emit("ok")
	case "depth":
		d, err := strconv.Atoi(value)
		if err != nil || d < 0 {
			h.emit("unsupported")
			return
		}
		h.depth = d
		h.emit("ok")
	default:
		h.emit("unsupported")
	}
}

// doImportBatch runs the history synthesizer and emits the object
// stream, then ends the batch with a blank line. Idempotent within a
// process: additional "import <ref>" lines queued in the same batch
// (the host may send more than one before the blank terminator) are
// absorbed without regenerating the stream, since this bridge exposes
// exactly one branch.
func (h *Helper) doImportBatch() error {
	for {
		line, ok := h.readLine()
		if !ok || line == "" {
			break
		}
	}

	if h.importDone {
		h.emitBlank()
		return nil
	}

	if err := h.Wiki.EnsureAuthenticated(); err != nil {
		return diag.Wrap(diag.AuthFailed, "set credential env", err, "authenticating to %s", h.Wiki.Host())
	}
	version, err := h.Wiki.APIVersion()
	if err != nil {
		return diag.Wrap(diag.RPCFailure, "", err, "checking wiki API version")
	}
	if version < wiki.MinAPIVersion {
		return diag.New(diag.IncompatibleRemote, "upgrade wiki", "wiki API version %d is below the required minimum %d", version, wiki.MinAPIVersion)
	}

	var since *int64
	if mark, ok, err := h.Markers.Load(); err == nil && ok {
		since = &mark
	}

	parentRef, _ := h.Local.RevParse(h.Cfg.OriginRef)

	writer := objstream.NewWriter(h.out)
	cfg := importer.Config{
		NS:        h.Cfg.NS,
		Ext:       h.Cfg.Ext,
		Since:     since,
		ParentRef: parentRef,
		Depth:     h.depth,
		Ref:       h.Cfg.DestRef,
		WikiHost:  h.Cfg.WikiHost,
	}
	result, err := importer.Run(h.Wiki, cfg, writer)
	if err != nil {
		return diag.Wrap(diag.Internal, "", err, "synthesizing import")
	}
	if werr := writer.Err(); werr != nil {
		return diag.Wrap(diag.Internal, "", werr, "writing object stream")
	}

	h.importDone = true
	if result.Emitted {
		if err := h.Markers.Save(result.MaxVersion); err != nil {
			diag.Warn("import succeeded but marker update failed: %v", err)
		}
	}
	h.emitBlank()
	return nil
}

// doExport implements spec.md §4.4 end to end and reports the result.
func (h *Helper) doExport() error {
	if err := h.Wiki.EnsureAuthenticated(); err != nil {
		return diag.Wrap(diag.AuthFailed, "set credential env", err, "authenticating to %s", h.Wiki.Host())
	}

	cfg := exporter.Config{
		NS:        h.Cfg.NS,
		Ext:       h.Cfg.Ext,
		DryRun:    false,
		MainRef:   h.Cfg.MainRef,
		OriginRef: h.Cfg.OriginRef,
	}
	result, err := exporter.Run(h.in, h.Local, h.Wiki, h.Markers, cfg)
	if err != nil {
		return err
	}
	if result.NothingToPush {
		diag.Info("nothing to push")
		h.emitBlank()
		return nil
	}
	h.emit("ok " + result.Ref)
	h.emitBlank()
	return nil
}
