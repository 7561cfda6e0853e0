// Package wiki implements component A: a typed facade over the wiki's
// JSON-RPC endpoint, with session cookie lifecycle and on-demand
// re-authentication (spec.md §4.1, §6.1-§6.3).
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package wiki

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dokuwiki-bridge/git-remote-dokuwiki/internal/diag"
)

// MinAPIVersion is the lowest wiki.* JSON-RPC API generation this bridge
// speaks (spec.md §4.1).
const MinAPIVersion = 14

// Client is the wiki RPC facade of spec.md §4.1.
type Client struct {
	baseURL    string
	rpcURL     string
	user       string
	httpClient *http.Client
	jar        *Jar
	cookiePath string
	primed     bool
	cred       CredentialProvider
	nextID     int64
}

// Options configures a new Client.
type Options struct {
	BaseURL        string // "https://wiki.example.com"
	User           string
	CookiePath     string
	CredentialFunc CredentialProvider // defaults to EnvAndGitCredential
	HTTPClient     *http.Client       // defaults to a 60s-timeout client
}

// New constructs a Client and attempts to prime it from the persisted
// cookie jar. A primed client skips login entirely until a call fails
// with an authorization signal.
func New(opts Options) (*Client, error) {
	jar, primed, err := LoadJar(opts.CookiePath)
	if err != nil {
		return nil, err
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	cred := opts.CredentialFunc
	if cred == nil {
		cred = EnvAndGitCredential
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		user:       opts.User,
		httpClient: httpClient,
		jar:        jar,
		cookiePath: opts.CookiePath,
		primed:     primed,
		cred:       cred,
	}
	c.rpcURL = c.baseURL + "/lib/exe/jsonrpc.php"
	if primed {
		diag.Info("using cached session for %s", c.Host())
	}
	return c, nil
}

// Host returns the bare host for error messages and credential lookups.
func (c *Client) Host() string {
	host := strings.TrimPrefix(c.baseURL, "https://")
	host = strings.TrimPrefix(host, "http://")
	return host
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int64         `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      int64           `json:"id"`
}

// EnsureAuthenticated performs the initial login if no cached session was
// loaded. It is a no-op when the jar was primed from disk.
func (c *Client) EnsureAuthenticated() error {
	if c.primed {
		return nil
	}
	return c.authenticate()
}

func (c *Client) authenticate() error {
	user, pass, err := c.cred(c.Host(), c.user)
	if err != nil {
		return fmt.Errorf("acquiring credentials: %w", err)
	}
	ok, err := c.loginInner(user, pass)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("login failed: invalid credentials")
	}
	c.user = user
	if err := c.jar.Save(c.cookiePath); err != nil {
		diag.Warn("could not persist session cookies to %s: %v", c.cookiePath, err)
	}
	return nil
}

func (c *Client) loginInner(user, pass string) (bool, error) {
	raw, err := c.callInner("login", []interface{}{user, pass})
	if err != nil {
		return false, err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false, fmt.Errorf("unexpected login response: %s", raw)
	}
	return ok, nil
}

// call performs an RPC with the at-most-one-retry-on-auth-failure policy
// of spec.md §4.1: on an authorization signal, the jar is reset, fresh
// credentials are acquired, login is retried, and only then is the
// original call retried exactly once.
func (c *Client) call(method string, params []interface{}) (json.RawMessage, error) {
	raw, err := c.callInner(method, params)
	if err == nil {
		return raw, nil
	}
	if !isAuthSignal(err) {
		return nil, err
	}
	diag.Info("session expired, re-authenticating")
	c.jar.Reset()
	_ = os.Remove(c.cookiePath)
	if err := c.authenticate(); err != nil {
		return nil, fmt.Errorf("re-authentication failed: %w", err)
	}
	return c.callInner(method, params)
}

func isAuthSignal(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "401") ||
		strings.Contains(msg, "Unauthorized") ||
		strings.Contains(msg, "not logged in")
}

func (c *Client) callInner(method string, params []interface{}) (json.RawMessage, error) {
	id := atomic.AddInt64(&c.nextID, 1)
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if h := c.jar.Header(); h != "" {
		req.Header.Set("Cookie", h)
	}

	diag.Debug("rpc %s %s", method, c.rpcURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc transport failure calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	c.jar.AbsorbSetCookie(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d calling %s", resp.StatusCode, method)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding rpc response for %s: %w", method, err)
	}
	if decoded.Error != nil {
		return nil, fmt.Errorf("%s: %s", method, decoded.Error.Message)
	}
	return decoded.Result, nil
}

// APIVersion calls api_version. Callers compare the result against
// MinAPIVersion before relying on the rest of the RPC surface.
func (c *Client) APIVersion() (int, error) {
	raw, err := c.call("dokuwiki.getAPIVersion", nil)
	if err != nil {
		return 0, err
	}
	var version int
	if err := json.Unmarshal(raw, &version); err != nil {
		return 0, fmt.Errorf("unexpected api_version response: %s", raw)
	}
	return version, nil
}

type pageListRow struct {
	ID       string `json:"id"`
	Rev      int64  `json:"rev"`
	MTime    int64  `json:"mtime"`
	Author   string `json:"author"`
	Size     int64  `json:"size"`
}

// ListPagesAll calls list_pages_all.
func (c *Client) ListPagesAll() ([]PageListing, error) {
	return c.listPages("wiki.getAllPages", nil)
}

// ListPagesNS calls list_pages_ns(ns), recursive.
func (c *Client) ListPagesNS(ns string) ([]PageListing, error) {
	return c.listPages("dokuwiki.getPagelist", []interface{}{ns})
}

func (c *Client) listPages(method string, params []interface{}) ([]PageListing, error) {
	raw, err := c.call(method, params)
	if err != nil {
		return nil, err
	}
	var rows []pageListRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("unexpected %s response: %s", method, raw)
	}
	out := make([]PageListing, 0, len(rows))
	for _, r := range rows {
		rev := r.Rev
		if rev == 0 {
			// spec.md §9: older wikis return revision 0; fall back to
			// last_modified. Kept as a compatibility shim, not a contract.
			rev = r.MTime
		}
		out = append(out, PageListing{ID: r.ID, Revision: rev, MTime: r.MTime, Author: r.Author, Size: r.Size})
	}
	return out, nil
}

type mediaListRow struct {
	ID     string `json:"id"`
	Size   int64  `json:"size"`
	Rev    int64  `json:"rev"`
	Author string `json:"author"`
}

// ListMediaNS calls list_media_ns(ns), recursive.
func (c *Client) ListMediaNS(ns string) ([]MediaListing, error) {
	raw, err := c.call("wiki.getAttachments", []interface{}{ns})
	if err != nil {
		return nil, err
	}
	var rows []mediaListRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("unexpected list_media_ns response: %s", raw)
	}
	out := make([]MediaListing, 0, len(rows))
	for _, r := range rows {
		out = append(out, MediaListing{ID: r.ID, Size: r.Size, Revision: r.Rev, Author: r.Author})
	}
	return out, nil
}

type historyRow struct {
	Version int64  `json:"version"`
	Author  string `json:"author"`
	Summary string `json:"summary"`
	Size    int64  `json:"size"`
	Type    string `json:"type"`
}

// PageHistory calls page_history(id): newest first.
func (c *Client) PageHistory(id string) ([]HistoryEntry, error) {
	return c.history("wiki.getPageVersions", id)
}

// MediaHistory calls media_history(id): newest first.
func (c *Client) MediaHistory(id string) ([]HistoryEntry, error) {
	return c.history("media.getHistory", id)
}

func (c *Client) history(method, id string) ([]HistoryEntry, error) {
	raw, err := c.call(method, []interface{}{id})
	if err != nil {
		return nil, err
	}
	var rows []historyRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("unexpected %s response: %s", method, raw)
	}
	out := make([]HistoryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, HistoryEntry{Version: r.Version, Author: r.Author, Summary: r.Summary, Size: r.Size, Type: parseRevType(r.Type)})
	}
	return out, nil
}

// PageAt calls page_at(id, rev). An empty string with ok=true means the
// page was deleted at that revision; ok=false means no content at all
// could be retrieved (a transport-level failure the caller should treat
// as non-fatal, per spec.md §4.3).
func (c *Client) PageAt(id string, rev int64) (content string, ok bool, err error) {
	params := []interface{}{id}
	if rev > 0 {
		params = append(params, rev)
	}
	raw, err := c.call("wiki.getPageVersion", params)
	if err != nil {
		return "", false, err
	}
	if err := json.Unmarshal(raw, &content); err != nil {
		return "", false, fmt.Errorf("unexpected page_at response: %s", raw)
	}
	return content, true, nil
}

// MediaAt calls media_at(id, rev); the wire payload is base64, decoded here.
func (c *Client) MediaAt(id string, rev int64) ([]byte, error) {
	params := []interface{}{id}
	if rev > 0 {
		params = append(params, rev)
	}
	raw, err := c.call("wiki.getAttachment", params)
	if err != nil {
		return nil, err
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("unexpected media_at response: %s", raw)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding media_at base64 payload: %w", err)
	}
	return data, nil
}

// SavePage calls save_page(id, text, summary). An empty text means delete.
func (c *Client) SavePage(id, text, summary string) error {
	raw, err := c.call("wiki.putPage", []interface{}{id, text, map[string]interface{}{"sum": summary}})
	if err != nil {
		return err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err == nil && !ok {
		return fmt.Errorf("save_page %s reported failure", id)
	}
	return nil
}

// SaveMedia calls save_media(id, bytes, overwrite).
func (c *Client) SaveMedia(id string, data []byte, overwrite bool) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	_, err := c.call("wiki.putAttachment", []interface{}{id, encoded, map[string]interface{}{"ow": overwrite}})
	return err
}

// DeleteMedia calls delete_media(id).
func (c *Client) DeleteMedia(id string) error {
	_, err := c.call("wiki.deleteAttachment", []interface{}{id})
	return err
}

type recentChangeRow struct {
	ID      string `json:"name"`
	Version int64  `json:"lastModified"`
	Author  string `json:"author"`
	Summary string `json:"summary"`
	Type    string `json:"type"`
}

// RecentPageChanges calls recent_page_changes(since), inclusive of since.
func (c *Client) RecentPageChanges(since int64) ([]RecentChange, error) {
	return c.recentChanges("wiki.getRecentChanges", since)
}

// RecentMediaChanges calls recent_media_changes(since), inclusive of since.
func (c *Client) RecentMediaChanges(since int64) ([]RecentChange, error) {
	return c.recentChanges("wiki.getRecentMediaChanges", since)
}

func (c *Client) recentChanges(method string, since int64) ([]RecentChange, error) {
	raw, err := c.call(method, []interface{}{since})
	if err != nil {
		return nil, err
	}
	var rows []recentChangeRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("unexpected %s response: %s", method, raw)
	}
	out := make([]RecentChange, 0, len(rows))
	for _, r := range rows {
		if r.ID == "" {
			continue
		}
		out = append(out, RecentChange{ID: r.ID, Version: r.Version, Author: r.Author, Summary: r.Summary, Type: parseRevType(r.Type)})
	}
	return out, nil
}
