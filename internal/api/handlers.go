// Package api exposes the workspace over HTTP with JSON bodies.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"gitpanel/internal/changelist"
	"gitpanel/internal/errors"
	"gitpanel/internal/logging"
	"gitpanel/internal/validation"
	"gitpanel/internal/workspace"
	"gitpanel/shared/types"
)

type Handler struct {
	ws     *workspace.Service
	logger *logging.Logger
}

func NewHandler(ws *workspace.Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handler{ws: ws, logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := errors.From(err)
	if e.Type == errors.ErrorTypeInternal {
		h.logger.WithRequestID(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, e.Code, e)
}

// respond writes v, or the error when err is set.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if v == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// request bodies

type openRequest struct {
	Path string `json:"path"`
}

func (r *openRequest) Validate() error { return validation.Required("path", r.Path) }

type openWorktreeRequest struct {
	RepoRoot     string `json:"repo_root"`
	WorktreePath string `json:"worktree_path"`
}

func (r *openWorktreeRequest) Validate() error {
	if err := validation.Required("repo_root", r.RepoRoot); err != nil {
		return err
	}
	return validation.Required("worktree_path", r.WorktreePath)
}

type pathRequest struct {
	Path string `json:"path"`
}

func (r *pathRequest) Validate() error { return validation.Required("path", r.Path) }

type pathsRequest struct {
	Paths []string `json:"paths"`
}

func (r *pathsRequest) Validate() error { return validation.Paths(r.Paths) }

type nameRequest struct {
	Name string `json:"name"`
}

func (r *nameRequest) Validate() error { return validation.Required("name", r.Name) }

type branchRequest struct {
	Name string `json:"name"`
	From string `json:"from"`
}

func (r *branchRequest) Validate() error { return validation.Required("name", r.Name) }

type checkoutRequest shared.CheckoutTarget

func (r *checkoutRequest) Validate() error {
	if r.Kind != shared.CheckoutLocal && r.Kind != shared.CheckoutRemote {
		return errors.ValidationError("type must be local or remote", map[string]string{"type": string(r.Kind)})
	}
	return validation.Required("name", r.Name)
}

type remoteRequest struct {
	Remote string `json:"remote"`
}

func (r *remoteRequest) Validate() error { return nil }

type worktreeAddRequest struct {
	Path      string `json:"path"`
	Branch    string `json:"branch"`
	NewBranch bool   `json:"new_branch"`
}

func (r *worktreeAddRequest) Validate() error {
	if err := validation.Required("path", r.Path); err != nil {
		return err
	}
	return validation.Required("branch", r.Branch)
}

type hunksRequest struct {
	Path  string                      `json:"path"`
	Hunks []changelist.HunkAssignment `json:"hunks"`
}

func (r *hunksRequest) Validate() error { return validation.Required("path", r.Path) }

type unassignHunksRequest struct {
	Path    string   `json:"path"`
	HunkIDs []string `json:"hunk_ids"`
}

func (r *unassignHunksRequest) Validate() error { return validation.Required("path", r.Path) }

type commitRequest workspace.CommitRequest

func (r *commitRequest) Validate() error {
	if !r.Amend {
		return validation.Required("message", r.Message)
	}
	return nil
}

type commitStagedRequest struct {
	Paths []string `json:"paths"`
	workspace.CommitRequest
}

func (r *commitStagedRequest) Validate() error {
	if !r.Amend {
		return validation.Required("message", r.Message)
	}
	return nil
}

// repositories

func (h *Handler) ListRepos(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.ws.Repositories(), nil)
}

func (h *Handler) OpenRepo(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	handle, err := h.ws.Open(r.Context(), req.Path)
	h.respond(w, r, handle, err)
}

func (h *Handler) OpenWorktree(w http.ResponseWriter, r *http.Request) {
	var req openWorktreeRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	handle, err := h.ws.OpenWorktree(r.Context(), req.RepoRoot, req.WorktreePath)
	h.respond(w, r, handle, err)
}

func (h *Handler) CloseRepo(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, nil, h.ws.Close(r.PathValue("id")))
}

func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	items, err := h.ws.RecentRepos()
	h.respond(w, r, items, err)
}

// status and diffs

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.ws.Status(r.Context(), r.PathValue("id"))
	h.respond(w, r, status, err)
}

func diffArgs(r *http.Request) (string, shared.DiffKind, error) {
	q := r.URL.Query()
	path := q.Get("path")
	if err := validation.Required("path", path); err != nil {
		return "", "", err
	}
	kind, err := validation.DiffKind(q.Get("kind"))
	return path, kind, err
}

// Diff returns the raw diff text as text/plain.
func (h *Handler) Diff(w http.ResponseWriter, r *http.Request) {
	path, kind, err := diffArgs(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	text, err := h.ws.Diff(r.Context(), r.PathValue("id"), path, kind)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(text))
}

func (h *Handler) DiffHunks(w http.ResponseWriter, r *http.Request) {
	path, kind, err := diffArgs(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	hunks, err := h.ws.DiffHunks(r.Context(), r.PathValue("id"), path, kind)
	h.respond(w, r, hunks, err)
}

func (h *Handler) DiffPayload(w http.ResponseWriter, r *http.Request) {
	path, kind, err := diffArgs(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	payload, err := h.ws.DiffPayload(r.Context(), r.PathValue("id"), path, kind)
	h.respond(w, r, payload, err)
}

// working tree

func (h *Handler) pathAction(fn func(h *Handler, r *http.Request, path string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pathRequest
		if err := validation.DecodeRequest(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
		h.respond(w, r, nil, fn(h, r, req.Path))
	}
}

func (h *Handler) Stage() http.HandlerFunc {
	return h.pathAction(func(h *Handler, r *http.Request, path string) error {
		return h.ws.Stage(r.Context(), r.PathValue("id"), path)
	})
}

func (h *Handler) Unstage() http.HandlerFunc {
	return h.pathAction(func(h *Handler, r *http.Request, path string) error {
		return h.ws.Unstage(r.Context(), r.PathValue("id"), path)
	})
}

func (h *Handler) Track() http.HandlerFunc {
	return h.pathAction(func(h *Handler, r *http.Request, path string) error {
		return h.ws.Track(r.Context(), r.PathValue("id"), path)
	})
}

func (h *Handler) DeleteUntracked() http.HandlerFunc {
	return h.pathAction(func(h *Handler, r *http.Request, path string) error {
		return h.ws.DeleteUntracked(r.Context(), r.PathValue("id"), path)
	})
}

// branches and remotes

func (h *Handler) Branches(w http.ResponseWriter, r *http.Request) {
	branches, err := h.ws.Branches(r.Context(), r.PathValue("id"))
	h.respond(w, r, branches, err)
}

func (h *Handler) CreateBranch(w http.ResponseWriter, r *http.Request) {
	var req branchRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.ws.CreateBranch(r.Context(), r.PathValue("id"), req.Name, req.From)
	h.respond(w, r, res, err)
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.ws.Checkout(r.Context(), r.PathValue("id"), shared.CheckoutTarget(req))
	h.respond(w, r, res, err)
}

func (h *Handler) remoteAction(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req remoteRequest
		if err := validation.DecodeRequest(r, &req); err != nil {
			h.writeError(w, r, err)
			return
		}
		id := r.PathValue("id")
		var (
			res *shared.FetchResult
			err error
		)
		switch op {
		case "fetch":
			res, err = h.ws.Fetch(r.Context(), id, req.Remote)
		case "pull":
			res, err = h.ws.Pull(r.Context(), id, req.Remote)
		default:
			res, err = h.ws.Push(r.Context(), id, req.Remote)
		}
		h.respond(w, r, res, err)
	}
}

// worktrees

func (h *Handler) Worktrees(w http.ResponseWriter, r *http.Request) {
	trees, err := h.ws.Worktrees(r.Context(), r.PathValue("id"))
	h.respond(w, r, trees, err)
}

func (h *Handler) AddWorktree(w http.ResponseWriter, r *http.Request) {
	var req worktreeAddRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	trees, err := h.ws.AddWorktree(r.Context(), r.PathValue("id"), req.Path, req.Branch, req.NewBranch)
	h.respond(w, r, trees, err)
}

func (h *Handler) RemoveWorktree(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	trees, err := h.ws.RemoveWorktree(r.Context(), r.PathValue("id"), req.Path)
	h.respond(w, r, trees, err)
}

func (h *Handler) PruneWorktrees(w http.ResponseWriter, r *http.Request) {
	trees, err := h.ws.PruneWorktrees(r.Context(), r.PathValue("id"))
	h.respond(w, r, trees, err)
}

// changelists

func (h *Handler) Changelists(w http.ResponseWriter, r *http.Request) {
	state, err := h.ws.Changelists(r.PathValue("id"))
	h.respond(w, r, state, err)
}

func (h *Handler) CreateChangelist(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	created, err := h.ws.CreateChangelist(r.PathValue("id"), strings.TrimSpace(req.Name))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) RenameChangelist(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, nil, h.ws.RenameChangelist(r.PathValue("id"), r.PathValue("cl"), strings.TrimSpace(req.Name)))
}

func (h *Handler) DeleteChangelist(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, nil, h.ws.DeleteChangelist(r.PathValue("id"), r.PathValue("cl")))
}

func (h *Handler) ActivateChangelist(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, nil, h.ws.SetActiveChangelist(r.PathValue("id"), r.PathValue("cl")))
}

func (h *Handler) AssignFiles(w http.ResponseWriter, r *http.Request) {
	var req pathsRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, nil, h.ws.AssignFiles(r.PathValue("id"), r.PathValue("cl"), req.Paths))
}

func (h *Handler) UnassignFiles(w http.ResponseWriter, r *http.Request) {
	var req pathsRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, nil, h.ws.UnassignFiles(r.PathValue("id"), req.Paths))
}

func (h *Handler) AssignHunks(w http.ResponseWriter, r *http.Request) {
	var req hunksRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, nil, h.ws.AssignHunks(r.PathValue("id"), r.PathValue("cl"), req.Path, req.Hunks))
}

func (h *Handler) UnassignHunks(w http.ResponseWriter, r *http.Request) {
	var req unassignHunksRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, nil, h.ws.UnassignHunks(r.PathValue("id"), req.Path, req.HunkIDs))
}

// commits

func (h *Handler) CommitPreview(w http.ResponseWriter, r *http.Request) {
	preview, err := h.ws.CommitPrepare(r.Context(), r.PathValue("id"), r.PathValue("cl"))
	h.respond(w, r, preview, err)
}

func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.ws.CommitExecute(r.Context(), r.PathValue("id"), r.PathValue("cl"), workspace.CommitRequest(req))
	h.respond(w, r, res, err)
}

func (h *Handler) CommitStaged(w http.ResponseWriter, r *http.Request) {
	var req commitStagedRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.ws.CommitStaged(r.Context(), r.PathValue("id"), req.Paths, req.CommitRequest)
	h.respond(w, r, res, err)
}
