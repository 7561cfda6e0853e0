package wiki

import "github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/model"

// PageListing is one row of wiki.list_pages_all / list_pages_ns (spec.md
// §4.1's table).
type PageListing struct {
	ID       string
	Revision int64
	MTime    int64
	Author   string
	Size     int64
}

// MediaListing is one row of list_media_ns.
type MediaListing struct {
	ID       string
	Size     int64
	Revision int64
	Author   string
}

// HistoryEntry is one row of page_history/media_history: newest first,
// as the wiki returns it.
type HistoryEntry struct {
	Version int64
	Author  string
	Summary string
	Size    int64
	Type    model.RevType
}

// RecentChange is one row of recent_page_changes/recent_media_changes.
type RecentChange struct {
	ID      string
	Version int64
	Author  string
	Summary string
	Type    model.RevType
}

func parseRevType(s string) model.RevType {
	switch s {
	case "delete", "D":
		return model.Delete
	case "edit", "E", "minor_edit":
		return model.Edit
	default:
		return model.Create
	}
}
