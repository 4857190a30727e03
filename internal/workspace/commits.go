package workspace

import (
	"context"

	"go.uber.org/zap"

	"gitpanel/internal/changelist"
	"gitpanel/internal/commit"
	"gitpanel/shared/types"
)

// CommitRequest carries the user's input for a commit.
type CommitRequest struct {
	Message string `json:"message"`
	Amend   bool   `json:"amend"`

	// SyncIndex moves the real index entries of committed whole files and
	// unstaged hunks to the new commit once it is written, so they stop
	// showing as changes. Off by default: the real index is left untouched.
	SyncIndex bool `json:"sync_index"`
}

// CommitPrepare previews committing changelistID.
func (s *Service) CommitPrepare(ctx context.Context, repoID, changelistID string) (*commit.Preview, error) {
	e, err := s.reg.lookup(repoID)
	if err != nil {
		return nil, err
	}
	return s.preview(ctx, e, changelistID)
}

func (s *Service) preview(ctx context.Context, e *repoEntry, changelistID string) (*commit.Preview, error) {
	status, err := s.Status(ctx, e.handle.RepoID)
	if err != nil {
		return nil, err
	}
	state, err := e.store.State()
	if err != nil {
		return nil, err
	}
	changelist.Reconcile(state, status)

	return submit(ctx, s.pool, func() (*commit.Preview, error) {
		return commit.BuildPreview(context.WithoutCancel(ctx), changelistID, status, state, hunkSource{s, e})
	})
}

// CommitExecute commits changelistID from a freshly computed status.
func (s *Service) CommitExecute(ctx context.Context, repoID, changelistID string, req CommitRequest) (*commit.Result, error) {
	e, err := s.reg.lookup(repoID)
	if err != nil {
		return nil, err
	}
	s.reg.invalidate(repoID)
	p, err := s.preview(ctx, e, changelistID)
	if err != nil {
		return nil, err
	}

	res, err := submit(ctx, s.pool, func() (*commit.Result, error) {
		jobCtx := context.WithoutCancel(ctx)
		res, err := e.engine.Execute(jobCtx, p, req.Message, commit.Options{Amend: req.Amend})
		if err != nil {
			return nil, err
		}
		if req.SyncIndex {
			if err := e.repo.ResetPaths(jobCtx, res.CommitID, res.IndexPaths); err != nil {
				s.logger.WithRequestID(ctx).Warn("syncing index after commit",
					zap.String("repo_id", repoID), zap.String("commit", res.CommitID), zap.Error(err))
			}
		}
		return res, nil
	})
	if err != nil {
		return nil, gitError(err)
	}

	s.afterCommit(ctx, e, res)
	return res, nil
}

// CommitStaged commits the staged content of paths.
func (s *Service) CommitStaged(ctx context.Context, repoID string, paths []string, req CommitRequest) (*commit.Result, error) {
	e, err := s.reg.lookup(repoID)
	if err != nil {
		return nil, err
	}
	s.reg.invalidate(repoID)
	status, err := s.Status(ctx, repoID)
	if err != nil {
		return nil, err
	}

	res, err := submit(ctx, s.pool, func() (*commit.Result, error) {
		return e.engine.CommitStaged(context.WithoutCancel(ctx), status, paths, req.Message, commit.Options{Amend: req.Amend})
	})
	if err != nil {
		return nil, gitError(err)
	}

	s.afterCommit(ctx, e, res)
	return res, nil
}

// afterCommit recomputes status and clears the assignments of committed
// paths that no longer have changes.
func (s *Service) afterCommit(ctx context.Context, e *repoEntry, res *commit.Result) {
	status := s.refresh(ctx, e.handle.RepoID)
	if status == nil {
		return
	}
	clean := cleanPaths(status, res.CommittedPaths)
	if len(clean) == 0 {
		return
	}
	if err := e.store.ClearAssignments(clean); err != nil {
		s.logger.WithRequestID(ctx).Warn("clearing committed assignments", zap.String("repo_id", e.handle.RepoID), zap.Error(err))
		return
	}
	s.reapply(e)
}

func cleanPaths(status *shared.RepoStatus, committed []string) []string {
	live := make(map[string]bool, len(status.Files))
	for _, f := range status.Files {
		live[f.Path] = true
	}
	var out []string
	for _, p := range committed {
		if !live[p] {
			out = append(out, p)
		}
	}
	return out
}
