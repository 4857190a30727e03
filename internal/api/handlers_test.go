package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitpanel/internal/changelist"
	"gitpanel/internal/commit"
	"gitpanel/internal/config"
	"gitpanel/internal/errors"
	"gitpanel/internal/logging"
	"gitpanel/internal/middleware"
	"gitpanel/internal/watch"
	"gitpanel/internal/workspace"
	"gitpanel/shared/types"
)

func testRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	gitCmd(t, dir, "init", "-q", "-b", "main")
	gitCmd(t, dir, "config", "user.email", "dev@example.com")
	gitCmd(t, dir, "config", "user.name", "Dev")
	gitCmd(t, dir, "config", "commit.gpgsign", "false")

	writeFile(t, dir, "a.txt", "alpha\n")
	writeFile(t, dir, "b.txt", "one\ntwo\nthree\n")
	gitCmd(t, dir, "add", ".")
	gitCmd(t, dir, "commit", "-q", "-m", "init")

	writeFile(t, dir, "a.txt", "alpha changed\n")
	writeFile(t, dir, "b.txt", "one\n2\nthree\n")
	return dir
}

func gitCmd(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return string(out)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

type testServer struct {
	*httptest.Server
	t *testing.T
}

func newServer(t *testing.T, cfg *config.Config, opts ...workspace.Option) *testServer {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
		opts = append(opts, workspace.WithoutWatchers())
	}
	cfg.Workers = 2
	logger := logging.Nop()
	ws, err := workspace.NewService(cfg, logger, opts...)
	require.NoError(t, err)

	h := NewHandler(ws, logger)
	srv := httptest.NewServer(middleware.Chain(h.Routes(),
		middleware.Recover(logger),
		middleware.Logger(logger),
		middleware.RequestID,
	))
	t.Cleanup(func() {
		srv.Close()
		ws.Shutdown()
	})
	return &testServer{Server: srv, t: t}
}

// do sends body as JSON and decodes the response into out when out is set.
func (s *testServer) do(method, path string, body, out any) int {
	s.t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, r)
	require.NoError(s.t, err)
	resp, err := s.Client().Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *testServer) open(dir string) shared.RepoHandle {
	s.t.Helper()
	var h shared.RepoHandle
	require.Equal(s.t, http.StatusOK, s.do("POST", "/api/repos", map[string]string{"path": dir}, &h))
	return h
}

func TestHealth(t *testing.T) {
	srv := newServer(t, nil)
	resp, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRepositoryEndpoints(t *testing.T) {
	dir := testRepo(t)
	srv := newServer(t, nil)
	h := srv.open(dir)
	assert.True(t, h.IsValid)

	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
		wantType errors.ErrorType
	}{
		{"missing path", "POST", "/api/repos", map[string]string{}, http.StatusBadRequest, errors.ErrorTypeValidation},
		{"not a repository", "POST", "/api/repos", map[string]string{"path": t.TempDir()}, http.StatusBadRequest, errors.ErrorTypeValidation},
		{"unknown repository", "GET", "/api/repos/nope/status", nil, http.StatusNotFound, errors.ErrorTypeNotFound},
		{"diff without path", "GET", "/api/repos/" + h.RepoID + "/diff", nil, http.StatusBadRequest, errors.ErrorTypeValidation},
		{"diff with bad kind", "GET", "/api/repos/" + h.RepoID + "/hunks?path=a.txt&kind=both", nil, http.StatusBadRequest, errors.ErrorTypeValidation},
		{"bad checkout type", "POST", "/api/repos/" + h.RepoID + "/checkout", map[string]string{"type": "tag", "name": "v1"}, http.StatusBadRequest, errors.ErrorTypeValidation},
		{"unknown changelist", "GET", "/api/repos/" + h.RepoID + "/changelists/nope/preview", nil, http.StatusNotFound, errors.ErrorTypeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e errors.Error
			code := srv.do(tt.method, tt.path, tt.body, &e)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantType, e.Type)
			assert.Equal(t, tt.wantCode, e.Code)
			assert.NotEmpty(t, e.Message)
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		resp, err := srv.Client().Post(srv.URL+"/api/repos", "application/json", strings.NewReader("{"))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("list and status", func(t *testing.T) {
		var repos []shared.RepoHandle
		require.Equal(t, http.StatusOK, srv.do("GET", "/api/repos", nil, &repos))
		require.Len(t, repos, 1)
		assert.Equal(t, h.RepoID, repos[0].RepoID)

		var status shared.RepoStatus
		require.Equal(t, http.StatusOK, srv.do("GET", "/api/repos/"+h.RepoID+"/status", nil, &status))
		assert.Equal(t, 2, status.Counts.Unstaged)
	})

	t.Run("diff text and hunks", func(t *testing.T) {
		resp, err := srv.Client().Get(srv.URL + "/api/repos/" + h.RepoID + "/diff?path=a.txt")
		require.NoError(t, err)
		text, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(text), "+alpha changed")

		var hunks []shared.DiffHunk
		require.Equal(t, http.StatusOK, srv.do("GET", "/api/repos/"+h.RepoID+"/hunks?path=b.txt&kind=unstaged", nil, &hunks))
		require.Len(t, hunks, 1)
		assert.Equal(t, "b.txt", hunks[0].Path)
	})

	t.Run("stage and unstage", func(t *testing.T) {
		base := "/api/repos/" + h.RepoID
		require.Equal(t, http.StatusNoContent, srv.do("POST", base+"/stage", map[string]string{"path": "a.txt"}, nil))

		var status shared.RepoStatus
		srv.do("GET", base+"/status", nil, &status)
		assert.Equal(t, 1, status.Counts.Staged)

		require.Equal(t, http.StatusNoContent, srv.do("POST", base+"/unstage", map[string]string{"path": "a.txt"}, nil))
		srv.do("GET", base+"/status", nil, &status)
		assert.Equal(t, 0, status.Counts.Staged)
	})

	t.Run("close", func(t *testing.T) {
		require.Equal(t, http.StatusNoContent, srv.do("DELETE", "/api/repos/"+h.RepoID, nil, nil))
		assert.Equal(t, http.StatusNotFound, srv.do("DELETE", "/api/repos/"+h.RepoID, nil, nil))
	})
}

func TestBranchEndpoints(t *testing.T) {
	dir := testRepo(t)
	srv := newServer(t, nil)
	base := "/api/repos/" + srv.open(dir).RepoID

	var created workspace.BranchCreateResult
	require.Equal(t, http.StatusOK, srv.do("POST", base+"/branches", map[string]string{"name": "feature"}, &created))
	assert.Equal(t, "feature", created.Name)

	var e errors.Error
	assert.Equal(t, http.StatusConflict, srv.do("POST", base+"/branches", map[string]string{"name": "feature"}, &e))
	assert.Equal(t, errors.ErrorTypePrecondition, e.Type)

	var branches shared.BranchList
	require.Equal(t, http.StatusOK, srv.do("GET", base+"/branches", nil, &branches))
	assert.Contains(t, branches.Locals, "feature")

	var trees []shared.Worktree
	require.Equal(t, http.StatusOK, srv.do("GET", base+"/worktrees", nil, &trees))
	assert.Len(t, trees, 1)
}

func TestChangelistCommitFlow(t *testing.T) {
	dir := testRepo(t)
	srv := newServer(t, nil)
	base := "/api/repos/" + srv.open(dir).RepoID

	var cl changelist.Changelist
	require.Equal(t, http.StatusCreated, srv.do("POST", base+"/changelists", map[string]string{"name": "Fix"}, &cl))
	assert.Equal(t, "Fix", cl.Name)

	var e errors.Error
	assert.Equal(t, http.StatusBadRequest, srv.do("POST", base+"/changelists", map[string]string{"name": " "}, &e))

	var hunks []shared.DiffHunk
	require.Equal(t, http.StatusOK, srv.do("GET", base+"/hunks?path=b.txt", nil, &hunks))
	require.Len(t, hunks, 1)

	require.Equal(t, http.StatusNoContent, srv.do("POST", base+"/changelists/"+cl.ID+"/files",
		map[string]any{"paths": []string{"a.txt"}}, nil))
	require.Equal(t, http.StatusNoContent, srv.do("POST", base+"/changelists/"+cl.ID+"/hunks",
		map[string]any{"path": "b.txt", "hunks": []changelist.HunkAssignment{changelist.AssignmentFromHunk(hunks[0])}}, nil))

	var state changelist.State
	require.Equal(t, http.StatusOK, srv.do("GET", base+"/changelists", nil, &state))
	assert.Equal(t, cl.ID, state.Assignments["a.txt"])
	assert.Equal(t, cl.ID, state.HunkAssignments["b.txt"].ChangelistID)

	var preview commit.Preview
	require.Equal(t, http.StatusOK, srv.do("GET", base+"/changelists/"+cl.ID+"/preview", nil, &preview))
	assert.Equal(t, "Fix", preview.ChangelistName)
	assert.Equal(t, []string{"b.txt"}, preview.HunkFiles)
	assert.Empty(t, preview.InvalidHunks)

	assert.Equal(t, http.StatusBadRequest, srv.do("POST", base+"/changelists/"+cl.ID+"/commit", map[string]string{}, &e))

	var res commit.Result
	require.Equal(t, http.StatusOK, srv.do("POST", base+"/changelists/"+cl.ID+"/commit",
		map[string]any{"message": "fix things", "sync_index": true}, &res))
	assert.NotEmpty(t, res.CommitID)
	assert.Equal(t, []string{"a.txt", "b.txt"}, res.CommittedPaths)
	assert.Equal(t, "fix things", strings.TrimSpace(gitCmd(t, dir, "log", "-1", "--format=%s")))

	var status shared.RepoStatus
	srv.do("GET", base+"/status", nil, &status)
	assert.Empty(t, status.Files)
}

func TestCommitStagedEndpoint(t *testing.T) {
	dir := testRepo(t)
	srv := newServer(t, nil)
	base := "/api/repos/" + srv.open(dir).RepoID

	var e errors.Error
	assert.Equal(t, http.StatusBadRequest, srv.do("POST", base+"/commit-staged",
		map[string]any{"message": "x"}, &e))
	assert.Equal(t, http.StatusConflict, srv.do("POST", base+"/commit-staged",
		map[string]any{"message": "x", "paths": []string{"a.txt"}}, &e))

	gitCmd(t, dir, "add", "a.txt")
	var res commit.Result
	require.Equal(t, http.StatusOK, srv.do("POST", base+"/commit-staged",
		map[string]any{"message": "alpha", "paths": []string{"a.txt"}}, &res))
	assert.Equal(t, []string{"a.txt"}, res.CommittedPaths)
}

func TestEvents(t *testing.T) {
	dir := testRepo(t)
	cfg := config.Default()
	cfg.Watch.DebounceMillis = 50
	cfg.Watch.PollMillis = 10
	srv := newServer(t, cfg)
	h := srv.open(dir)

	t.Run("plain GET is refused", func(t *testing.T) {
		resp, err := srv.Client().Get(srv.URL + "/api/events")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events?repo_id=" + url.QueryEscape(h.RepoID)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	writeFile(t, dir, "a.txt", fmt.Sprintf("changed at %d\n", time.Now().UnixNano()))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var n watch.Notification
	require.NoError(t, conn.ReadJSON(&n))
	assert.Equal(t, h.RepoID, n.RepoID)
}
