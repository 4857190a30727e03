package git

import (
	"context"
	"fmt"
	"strings"

	"gitpanel/shared/types"
)

// ListWorktrees returns every worktree attached to the repository.
func (r *Repository) ListWorktrees(ctx context.Context) ([]shared.Worktree, error) {
	out, err := r.git(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}
	return parseWorktrees(out), nil
}

func parseWorktrees(out string) []shared.Worktree {
	worktrees := []shared.Worktree{}
	var current *shared.Worktree
	flush := func() {
		if current != nil {
			worktrees = append(worktrees, *current)
			current = nil
		}
	}

	for _, line := range splitLines(out) {
		if line == "" {
			flush()
			continue
		}
		key, value, _ := strings.Cut(line, " ")
		if key == "worktree" {
			flush()
			current = &shared.Worktree{Path: value}
			continue
		}
		if current == nil {
			continue
		}
		switch key {
		case "HEAD":
			current.Head = value
		case "branch":
			current.Branch = strings.TrimPrefix(value, "refs/heads/")
		case "bare":
			current.Bare = true
		case "detached":
			current.Detached = true
		case "locked":
			current.Locked = true
		case "prunable":
			current.Prunable = true
		}
	}
	flush()
	return worktrees
}

// AddWorktree checks out branch into a new worktree at path,
// creating the branch first when newBranch is set.
func (r *Repository) AddWorktree(ctx context.Context, path, branch string, newBranch bool) error {
	if path == "" || strings.HasPrefix(path, "-") || strings.HasPrefix(branch, "-") {
		return fmt.Errorf("invalid worktree arguments %q %q", path, branch)
	}
	args := []string{"worktree", "add"}
	switch {
	case newBranch && branch != "":
		args = append(args, "-b", branch, path)
	case branch != "":
		args = append(args, path, branch)
	default:
		args = append(args, path)
	}
	if _, err := r.git(ctx, args...); err != nil {
		return fmt.Errorf("add worktree: %w", err)
	}
	return nil
}

// RemoveWorktree deletes the worktree at path. Git refuses dirty worktrees.
func (r *Repository) RemoveWorktree(ctx context.Context, path string) error {
	if path == "" || strings.HasPrefix(path, "-") {
		return fmt.Errorf("invalid worktree path %q", path)
	}
	if _, err := r.git(ctx, "worktree", "remove", path); err != nil {
		return fmt.Errorf("remove worktree: %w", err)
	}
	return nil
}

// PruneWorktrees drops administrative data of worktrees whose directory is gone.
func (r *Repository) PruneWorktrees(ctx context.Context) error {
	if _, err := r.git(ctx, "worktree", "prune"); err != nil {
		return fmt.Errorf("prune worktrees: %w", err)
	}
	return nil
}
