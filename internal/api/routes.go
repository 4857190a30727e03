package api

import "net/http"

// Routes mounts every endpoint on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthCheck)

	// Repositories
	mux.HandleFunc("GET /api/repos", h.ListRepos)
	mux.HandleFunc("POST /api/repos", h.OpenRepo)
	mux.HandleFunc("POST /api/repos/worktree", h.OpenWorktree)
	mux.HandleFunc("DELETE /api/repos/{id}", h.CloseRepo)
	mux.HandleFunc("GET /api/recent", h.Recent)
	mux.HandleFunc("GET /api/events", h.Events)

	// Status and diffs
	mux.HandleFunc("GET /api/repos/{id}/status", h.Status)
	mux.HandleFunc("GET /api/repos/{id}/diff", h.Diff)
	mux.HandleFunc("GET /api/repos/{id}/hunks", h.DiffHunks)
	mux.HandleFunc("GET /api/repos/{id}/diff-payload", h.DiffPayload)

	// Working tree
	mux.HandleFunc("POST /api/repos/{id}/stage", h.Stage())
	mux.HandleFunc("POST /api/repos/{id}/unstage", h.Unstage())
	mux.HandleFunc("POST /api/repos/{id}/track", h.Track())
	mux.HandleFunc("POST /api/repos/{id}/delete-untracked", h.DeleteUntracked())

	// Branches and remotes
	mux.HandleFunc("GET /api/repos/{id}/branches", h.Branches)
	mux.HandleFunc("POST /api/repos/{id}/branches", h.CreateBranch)
	mux.HandleFunc("POST /api/repos/{id}/checkout", h.Checkout)
	mux.HandleFunc("POST /api/repos/{id}/fetch", h.remoteAction("fetch"))
	mux.HandleFunc("POST /api/repos/{id}/pull", h.remoteAction("pull"))
	mux.HandleFunc("POST /api/repos/{id}/push", h.remoteAction("push"))

	// Worktrees
	mux.HandleFunc("GET /api/repos/{id}/worktrees", h.Worktrees)
	mux.HandleFunc("POST /api/repos/{id}/worktrees", h.AddWorktree)
	mux.HandleFunc("POST /api/repos/{id}/worktrees/remove", h.RemoveWorktree)
	mux.HandleFunc("POST /api/repos/{id}/worktrees/prune", h.PruneWorktrees)

	// Changelists
	mux.HandleFunc("GET /api/repos/{id}/changelists", h.Changelists)
	mux.HandleFunc("POST /api/repos/{id}/changelists", h.CreateChangelist)
	mux.HandleFunc("PUT /api/repos/{id}/changelists/{cl}", h.RenameChangelist)
	mux.HandleFunc("DELETE /api/repos/{id}/changelists/{cl}", h.DeleteChangelist)
	mux.HandleFunc("POST /api/repos/{id}/changelists/{cl}/activate", h.ActivateChangelist)
	mux.HandleFunc("POST /api/repos/{id}/changelists/{cl}/files", h.AssignFiles)
	mux.HandleFunc("POST /api/repos/{id}/changelists/{cl}/hunks", h.AssignHunks)
	mux.HandleFunc("POST /api/repos/{id}/unassign/files", h.UnassignFiles)
	mux.HandleFunc("POST /api/repos/{id}/unassign/hunks", h.UnassignHunks)

	// Commits
	mux.HandleFunc("GET /api/repos/{id}/changelists/{cl}/preview", h.CommitPreview)
	mux.HandleFunc("POST /api/repos/{id}/changelists/{cl}/commit", h.Commit)
	mux.HandleFunc("POST /api/repos/{id}/commit-staged", h.CommitStaged)

	return mux
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy"}`))
}
