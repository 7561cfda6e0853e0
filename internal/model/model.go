// Package model holds the data shapes shared by the wiki facade, the
// history synthesizer and the change projector: spec.md §3's item
// identity, revision tuple and path-mapping bijection.
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package model

import "strings"

// Kind distinguishes a page from a media file.
type Kind int

const (
	Page Kind = iota
	Media
)

func (k Kind) String() string {
	if k == Media {
		return "media"
	}
	return "page"
}

// RevType is the kind of change a revision records.
type RevType int

const (
	Create RevType = iota
	Edit
	Delete
)

// Revision is the tuple of spec.md §3: (item_id, kind, version, author,
// summary, type). Content is fetched lazily by the importer, not carried
// here, since a delete revision has none and non-delete content is only
// needed once a commit bucket survives grouping.
type Revision struct {
	ID      string
	Kind    Kind
	Version int64
	Author  string
	Summary string
	Type    RevType
}

// Item is a page or media file as returned by the wiki's inventory
// listings, before any per-item history has been fetched.
type Item struct {
	ID       string
	Kind     Kind
	Revision int64 // the wiki's current revision/rev field
	MTime    int64 // last_modified, used as a revision=0 fallback (spec.md §9)
	Author   string
	Size     int64
}

// NamespaceFilter restricts the bridge to one subtree of the wiki's
// colon-delimited ID hierarchy. An empty filter matches everything.
type NamespaceFilter string

// Matches reports whether id falls under the filtered namespace.
func (f NamespaceFilter) Matches(id string) bool {
	ns := string(f)
	if ns == "" {
		return true
	}
	prefix := ns + ":"
	return id == ns || strings.HasPrefix(id, prefix)
}

// Strip removes the namespace prefix from id, the inverse of Prefix.
func (f NamespaceFilter) Strip(id string) string {
	ns := string(f)
	if ns == "" {
		return id
	}
	if id == ns {
		return ""
	}
	return strings.TrimPrefix(id, ns+":")
}

// Prefix re-adds the namespace prefix stripped by Strip, the operation
// export performs in the opposite direction of import.
func (f NamespaceFilter) Prefix(id string) string {
	ns := string(f)
	if ns == "" {
		return id
	}
	if id == "" {
		return ns
	}
	return ns + ":" + id
}

// PathMapper implements the bijection of spec.md §3: page `a:b:c` maps to
// `a/b/c.<ext>`, media `a:b:img.png` maps to `a/b/img.png` verbatim.
type PathMapper struct {
	Extension string // without leading dot, default "md"
	NS        NamespaceFilter
}

// ToPath converts a wiki ID (already namespace-stripped) and its kind
// into a repository-relative path.
func (m PathMapper) ToPath(id string, kind Kind) string {
	segments := strings.Split(id, ":")
	joined := strings.Join(segments, "/")
	if kind == Page {
		return joined + "." + m.Ext()
	}
	return joined
}

// FromPath recovers the wiki ID and kind from a repository-relative path.
// Distinguishing page from media is purely by the configured extension
// suffix, per spec.md §3.
func (m PathMapper) FromPath(path string) (id string, kind Kind) {
	ext := "." + m.Ext()
	if strings.HasSuffix(path, ext) {
		trimmed := strings.TrimSuffix(path, ext)
		return strings.ReplaceAll(trimmed, "/", ":"), Page
	}
	return strings.ReplaceAll(path, "/", ":"), Media
}

// Ext returns the configured extension, defaulting to "md".
func (m PathMapper) Ext() string {
	if m.Extension == "" {
		return "md"
	}
	return m.Extension
}
