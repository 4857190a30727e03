// Package client talks to a running gitpanel server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"gitpanel/internal/changelist"
	"gitpanel/internal/commit"
	"gitpanel/internal/errors"
	"gitpanel/internal/watch"
	"gitpanel/internal/workspace"
	"gitpanel/shared/types"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			// Pull and push can take a while.
			Timeout: 2 * time.Minute,
		},
	}
}

// do sends body as JSON and decodes the reply into out. Error replies are
// returned as *errors.Error.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if s, ok := out.(*string); ok {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		*s = string(data)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var e errors.Error
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Message == "" {
		return errors.Internalf("unexpected status: %s", resp.Status)
	}
	if e.Code == 0 {
		e.Code = resp.StatusCode
	}
	return &e
}

func repoPath(repoID, suffix string) string {
	return "/api/repos/" + url.PathEscape(repoID) + suffix
}

func diffQuery(path string, kind shared.DiffKind) string {
	q := url.Values{"path": {path}}
	if kind != "" {
		q.Set("kind", string(kind))
	}
	return "?" + q.Encode()
}

// Repository operations

func (c *Client) Open(ctx context.Context, path string) (shared.RepoHandle, error) {
	var h shared.RepoHandle
	err := c.do(ctx, "POST", "/api/repos", map[string]string{"path": path}, &h)
	return h, err
}

func (c *Client) OpenWorktree(ctx context.Context, repoRoot, worktreePath string) (shared.RepoHandle, error) {
	var h shared.RepoHandle
	err := c.do(ctx, "POST", "/api/repos/worktree",
		map[string]string{"repo_root": repoRoot, "worktree_path": worktreePath}, &h)
	return h, err
}

func (c *Client) CloseRepo(ctx context.Context, repoID string) error {
	return c.do(ctx, "DELETE", repoPath(repoID, ""), nil, nil)
}

func (c *Client) Repositories(ctx context.Context) ([]shared.RepoHandle, error) {
	var out []shared.RepoHandle
	err := c.do(ctx, "GET", "/api/repos", nil, &out)
	return out, err
}

func (c *Client) Recent(ctx context.Context) ([]shared.RepoListItem, error) {
	var out []shared.RepoListItem
	err := c.do(ctx, "GET", "/api/recent", nil, &out)
	return out, err
}

func (c *Client) Status(ctx context.Context, repoID string) (*shared.RepoStatus, error) {
	var out shared.RepoStatus
	if err := c.do(ctx, "GET", repoPath(repoID, "/status"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Diff(ctx context.Context, repoID, path string, kind shared.DiffKind) (string, error) {
	var out string
	err := c.do(ctx, "GET", repoPath(repoID, "/diff"+diffQuery(path, kind)), nil, &out)
	return out, err
}

func (c *Client) DiffHunks(ctx context.Context, repoID, path string, kind shared.DiffKind) ([]shared.DiffHunk, error) {
	var out []shared.DiffHunk
	err := c.do(ctx, "GET", repoPath(repoID, "/hunks"+diffQuery(path, kind)), nil, &out)
	return out, err
}

// Working tree operations

func (c *Client) Stage(ctx context.Context, repoID, path string) error {
	return c.do(ctx, "POST", repoPath(repoID, "/stage"), map[string]string{"path": path}, nil)
}

func (c *Client) Unstage(ctx context.Context, repoID, path string) error {
	return c.do(ctx, "POST", repoPath(repoID, "/unstage"), map[string]string{"path": path}, nil)
}

func (c *Client) Track(ctx context.Context, repoID, path string) error {
	return c.do(ctx, "POST", repoPath(repoID, "/track"), map[string]string{"path": path}, nil)
}

func (c *Client) DeleteUntracked(ctx context.Context, repoID, path string) error {
	return c.do(ctx, "POST", repoPath(repoID, "/delete-untracked"), map[string]string{"path": path}, nil)
}

// Branch operations

func (c *Client) Branches(ctx context.Context, repoID string) (*shared.BranchList, error) {
	var out shared.BranchList
	if err := c.do(ctx, "GET", repoPath(repoID, "/branches"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateBranch(ctx context.Context, repoID, name, from string) error {
	return c.do(ctx, "POST", repoPath(repoID, "/branches"), map[string]string{"name": name, "from": from}, nil)
}

func (c *Client) Checkout(ctx context.Context, repoID string, target shared.CheckoutTarget) (*workspace.CheckoutResult, error) {
	var out workspace.CheckoutResult
	if err := c.do(ctx, "POST", repoPath(repoID, "/checkout"), target, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Remote runs fetch, pull or push.
func (c *Client) Remote(ctx context.Context, repoID, op, remote string) (*shared.FetchResult, error) {
	switch op {
	case "fetch", "pull", "push":
	default:
		return nil, fmt.Errorf("unknown remote operation %q", op)
	}
	var out shared.FetchResult
	if err := c.do(ctx, "POST", repoPath(repoID, "/"+op), map[string]string{"remote": remote}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Worktrees(ctx context.Context, repoID string) ([]shared.Worktree, error) {
	var out []shared.Worktree
	err := c.do(ctx, "GET", repoPath(repoID, "/worktrees"), nil, &out)
	return out, err
}

// Changelist operations

func (c *Client) Changelists(ctx context.Context, repoID string) (*changelist.State, error) {
	var out changelist.State
	if err := c.do(ctx, "GET", repoPath(repoID, "/changelists"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateChangelist(ctx context.Context, repoID, name string) (*changelist.Changelist, error) {
	var out changelist.Changelist
	if err := c.do(ctx, "POST", repoPath(repoID, "/changelists"), map[string]string{"name": name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RenameChangelist(ctx context.Context, repoID, id, name string) error {
	return c.do(ctx, "PUT", repoPath(repoID, "/changelists/"+url.PathEscape(id)), map[string]string{"name": name}, nil)
}

func (c *Client) DeleteChangelist(ctx context.Context, repoID, id string) error {
	return c.do(ctx, "DELETE", repoPath(repoID, "/changelists/"+url.PathEscape(id)), nil, nil)
}

func (c *Client) ActivateChangelist(ctx context.Context, repoID, id string) error {
	return c.do(ctx, "POST", repoPath(repoID, "/changelists/"+url.PathEscape(id)+"/activate"), nil, nil)
}

func (c *Client) AssignFiles(ctx context.Context, repoID, id string, paths []string) error {
	return c.do(ctx, "POST", repoPath(repoID, "/changelists/"+url.PathEscape(id)+"/files"),
		map[string]any{"paths": paths}, nil)
}

func (c *Client) UnassignFiles(ctx context.Context, repoID string, paths []string) error {
	return c.do(ctx, "POST", repoPath(repoID, "/unassign/files"), map[string]any{"paths": paths}, nil)
}

func (c *Client) AssignHunks(ctx context.Context, repoID, id, path string, hunks []changelist.HunkAssignment) error {
	return c.do(ctx, "POST", repoPath(repoID, "/changelists/"+url.PathEscape(id)+"/hunks"),
		map[string]any{"path": path, "hunks": hunks}, nil)
}

// Commit operations

func (c *Client) Preview(ctx context.Context, repoID, id string) (*commit.Preview, error) {
	var out commit.Preview
	if err := c.do(ctx, "GET", repoPath(repoID, "/changelists/"+url.PathEscape(id)+"/preview"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Commit(ctx context.Context, repoID, id string, req workspace.CommitRequest) (*commit.Result, error) {
	var out commit.Result
	if err := c.do(ctx, "POST", repoPath(repoID, "/changelists/"+url.PathEscape(id)+"/commit"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CommitStaged(ctx context.Context, repoID string, paths []string, req workspace.CommitRequest) (*commit.Result, error) {
	body := struct {
		Paths []string `json:"paths"`
		workspace.CommitRequest
	}{paths, req}
	var out commit.Result
	if err := c.do(ctx, "POST", repoPath(repoID, "/commit-staged"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Events streams change notifications until ctx ends or the server goes
// away. An empty repoID receives every repository's notifications.
func (c *Client) Events(ctx context.Context, repoID string) (<-chan watch.Notification, error) {
	u := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/events"
	if repoID != "" {
		u += "?" + url.Values{"repo_id": {repoID}}.Encode()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, err
	}

	out := make(chan watch.Notification)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()
	go func() {
		defer close(done)
		defer close(out)
		for {
			var n watch.Notification
			if err := conn.ReadJSON(&n); err != nil {
				return
			}
			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
