// Package wikiurl parses the dokuwiki:: remote URL of spec.md §6.6. This
// is one of the "external collaborator" surfaces spec.md §1 scopes out of
// the core proper — we still need a minimal, correct parser for it, but
// no credential acquisition or general URL machinery lives here.
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package wikiurl

import (
	"strings"

	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/model"
)

// Parsed is the normalized form of a dokuwiki:: remote URL.
type Parsed struct {
	User      string
	Host      string
	Scheme    string // "http" for localhost/127.0.0.1, else "https" per spec.md §6.3
	Namespace model.NamespaceFilter
	Extension string
}

// BaseURL returns the scheme://host root the wiki RPC endpoint hangs off.
func (p Parsed) BaseURL() string {
	return p.Scheme + "://" + p.Host
}

// Parse accepts the raw remote URL git hands the helper. Git strips the
// "dokuwiki::" transport prefix before invoking a remote helper in most
// configurations, but some hosts pass it through verbatim, so we accept
// either form.
func Parse(raw string) Parsed {
	raw = strings.TrimPrefix(raw, "dokuwiki::")

	var ext string
	if i := strings.Index(raw, "?"); i >= 0 {
		query := raw[i+1:]
		raw = raw[:i]
		for _, kv := range strings.Split(query, "&") {
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) == 2 && parts[0] == "ext" {
				ext = parts[1]
			}
		}
	}

	var user string
	if i := strings.Index(raw, "@"); i >= 0 {
		user = raw[:i]
		raw = raw[i+1:]
	}

	host := raw
	nsPath := ""
	if i := strings.Index(raw, "/"); i >= 0 {
		host = raw[:i]
		nsPath = raw[i+1:]
	}

	ns := strings.Trim(strings.ReplaceAll(nsPath, "/", ":"), ":")

	scheme := "https"
	if host == "localhost" || host == "127.0.0.1" || strings.HasPrefix(host, "localhost:") || strings.HasPrefix(host, "127.0.0.1:") {
		scheme = "http"
	}

	return Parsed{
		User:      user,
		Host:      host,
		Scheme:    scheme,
		Namespace: model.NamespaceFilter(ns),
		Extension: ext,
	}
}
