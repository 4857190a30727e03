package workspace

import (
	"context"
	"path/filepath"
	"strings"

	"gitpanel/internal/errors"
	"gitpanel/internal/git"
	"gitpanel/shared/types"
	"gitpanel/shared/utils"
)

// CheckoutResult is the head after a checkout.
type CheckoutResult struct {
	Head shared.RepoHead `json:"head"`
}

// BranchCreateResult names the branch that was created.
type BranchCreateResult struct {
	Name string `json:"name"`
}

// run executes fn against the repository of repoID on the pool.
func run[T any](ctx context.Context, s *Service, repoID string, fn func(context.Context, *repoEntry) (T, error)) (T, error) {
	e, err := s.reg.lookup(repoID)
	if err != nil {
		var zero T
		return zero, err
	}
	v, err := submit(ctx, s.pool, func() (T, error) {
		return fn(context.WithoutCancel(ctx), e)
	})
	return v, gitError(err)
}

func (s *Service) pathOp(ctx context.Context, repoID, path string, op func(*git.Repository, context.Context, string) error) error {
	path = utils.NormalizeRepoPath(strings.TrimSpace(path))
	if path == "" {
		return errors.ValidationError("path is required", nil)
	}
	_, err := run(ctx, s, repoID, func(ctx context.Context, e *repoEntry) (struct{}, error) {
		return struct{}{}, op(e.repo, ctx, path)
	})
	if err != nil {
		return err
	}
	s.refresh(ctx, repoID)
	return nil
}

// Stage adds the working tree state of path to the index.
func (s *Service) Stage(ctx context.Context, repoID, path string) error {
	return s.pathOp(ctx, repoID, path, (*git.Repository).Stage)
}

// Unstage restores the index entry of path from HEAD.
func (s *Service) Unstage(ctx context.Context, repoID, path string) error {
	return s.pathOp(ctx, repoID, path, (*git.Repository).Unstage)
}

// Track marks an untracked path intent-to-add.
func (s *Service) Track(ctx context.Context, repoID, path string) error {
	return s.pathOp(ctx, repoID, path, (*git.Repository).Track)
}

// DeleteUntracked removes an untracked file and forgets its assignments.
func (s *Service) DeleteUntracked(ctx context.Context, repoID, path string) error {
	path = utils.NormalizeRepoPath(strings.TrimSpace(path))
	if path == "" {
		return errors.ValidationError("path is required", nil)
	}
	e, err := s.reg.lookup(repoID)
	if err != nil {
		return err
	}
	s.reg.invalidate(repoID)
	status, err := s.Status(ctx, repoID)
	if err != nil {
		return err
	}
	untracked := false
	for _, f := range status.Files {
		if f.Path == path && f.Status == shared.StatusUntracked {
			untracked = true
			break
		}
	}
	if !untracked {
		return errors.Precondition("Only unversioned files can be deleted.", map[string]string{"path": path})
	}

	if _, err := run(ctx, s, repoID, func(ctx context.Context, e *repoEntry) (struct{}, error) {
		return struct{}{}, e.repo.DeleteUntracked(ctx, path)
	}); err != nil {
		return err
	}
	if err := e.store.ClearAssignments([]string{path}); err != nil {
		return err
	}
	s.refresh(ctx, repoID)
	return nil
}

// Branches lists local and remote branches.
func (s *Service) Branches(ctx context.Context, repoID string) (*shared.BranchList, error) {
	return run(ctx, s, repoID, func(ctx context.Context, e *repoEntry) (*shared.BranchList, error) {
		return e.repo.ListBranches(ctx)
	})
}

// Checkout switches to target. A dirty working tree is refused.
func (s *Service) Checkout(ctx context.Context, repoID string, target shared.CheckoutTarget) (*CheckoutResult, error) {
	target.Name = strings.TrimSpace(target.Name)
	if target.Name == "" {
		return nil, errors.ValidationError("branch name is required", nil)
	}
	if target.Kind != shared.CheckoutLocal && target.Kind != shared.CheckoutRemote {
		return nil, errors.ValidationError("checkout type must be local or remote", map[string]string{"type": string(target.Kind)})
	}
	head, err := run(ctx, s, repoID, func(ctx context.Context, e *repoEntry) (shared.RepoHead, error) {
		return e.repo.Checkout(ctx, target)
	})
	if err != nil {
		return nil, err
	}
	s.refresh(ctx, repoID)
	return &CheckoutResult{Head: head}, nil
}

// CreateBranch creates name at from, or at HEAD when from is empty.
func (s *Service) CreateBranch(ctx context.Context, repoID, name, from string) (*BranchCreateResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.ValidationError("branch name is required", nil)
	}
	_, err := run(ctx, s, repoID, func(ctx context.Context, e *repoEntry) (struct{}, error) {
		return struct{}{}, e.repo.CreateBranch(ctx, name, strings.TrimSpace(from))
	})
	if err != nil {
		return nil, err
	}
	return &BranchCreateResult{Name: name}, nil
}

// Fetch fetches remote, origin by default.
func (s *Service) Fetch(ctx context.Context, repoID, remote string) (*shared.FetchResult, error) {
	remote = strings.TrimSpace(remote)
	updated, err := run(ctx, s, repoID, func(ctx context.Context, e *repoEntry) (bool, error) {
		return e.repo.Fetch(ctx, remote)
	})
	if err != nil {
		return nil, err
	}
	if remote == "" {
		remote = "origin"
	}
	return &shared.FetchResult{Remote: remote, Updated: updated}, nil
}

// Pull integrates the upstream of the current branch.
func (s *Service) Pull(ctx context.Context, repoID, remote string) (*shared.FetchResult, error) {
	remote = strings.TrimSpace(remote)
	updated, err := run(ctx, s, repoID, func(ctx context.Context, e *repoEntry) (bool, error) {
		return e.repo.Pull(ctx, remote)
	})
	if err != nil {
		return nil, err
	}
	s.refresh(ctx, repoID)
	return &shared.FetchResult{Remote: remoteLabel(remote), Updated: updated}, nil
}

// Push sends the current branch to its upstream.
func (s *Service) Push(ctx context.Context, repoID, remote string) (*shared.FetchResult, error) {
	remote = strings.TrimSpace(remote)
	updated, err := run(ctx, s, repoID, func(ctx context.Context, e *repoEntry) (bool, error) {
		return e.repo.Push(ctx, remote)
	})
	if err != nil {
		return nil, err
	}
	return &shared.FetchResult{Remote: remoteLabel(remote), Updated: updated}, nil
}

func remoteLabel(remote string) string {
	if remote == "" {
		return "tracking branch"
	}
	return remote
}

// Worktrees lists the worktrees of the repository.
func (s *Service) Worktrees(ctx context.Context, repoID string) ([]shared.Worktree, error) {
	return run(ctx, s, repoID, func(ctx context.Context, e *repoEntry) ([]shared.Worktree, error) {
		return e.repo.ListWorktrees(ctx)
	})
}

// AddWorktree checks out branch into a new worktree at path, creating the
// branch first when newBranch is set.
func (s *Service) AddWorktree(ctx context.Context, repoID, path, branch string, newBranch bool) ([]shared.Worktree, error) {
	path, branch = strings.TrimSpace(path), strings.TrimSpace(branch)
	if path == "" || branch == "" {
		return nil, errors.ValidationError("path and branch are required", nil)
	}
	return run(ctx, s, repoID, func(ctx context.Context, e *repoEntry) ([]shared.Worktree, error) {
		if err := e.repo.AddWorktree(ctx, path, branch, newBranch); err != nil {
			return nil, err
		}
		return e.repo.ListWorktrees(ctx)
	})
}

// RemoveWorktree deletes the worktree at path and closes it if it is open.
func (s *Service) RemoveWorktree(ctx context.Context, repoID, path string) ([]shared.Worktree, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.ValidationError("path is required", nil)
	}
	e, err := s.reg.lookup(repoID)
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.handle.Path, path)
	}
	id := utils.RepoIDForPath(path)
	if id == repoID {
		return nil, errors.Precondition("cannot remove the worktree of an open repository from itself", nil)
	}
	// not open is fine
	_ = s.Close(id)
	return run(ctx, s, repoID, func(ctx context.Context, e *repoEntry) ([]shared.Worktree, error) {
		if err := e.repo.RemoveWorktree(ctx, path); err != nil {
			return nil, err
		}
		return e.repo.ListWorktrees(ctx)
	})
}

// PruneWorktrees drops administrative data of worktrees that no longer exist.
func (s *Service) PruneWorktrees(ctx context.Context, repoID string) ([]shared.Worktree, error) {
	return run(ctx, s, repoID, func(ctx context.Context, e *repoEntry) ([]shared.Worktree, error) {
		if err := e.repo.PruneWorktrees(ctx); err != nil {
			return nil, err
		}
		return e.repo.ListWorktrees(ctx)
	})
}
