// Package workspace coordinates every open repository: it owns the worker
// pool, the status and diff caches and the supersession tokens, and exposes
// the operations the API and CLI call.
package workspace

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"gitpanel/internal/cache"
	"gitpanel/internal/changelist"
	"gitpanel/internal/commit"
	"gitpanel/internal/config"
	"gitpanel/internal/diff"
	"gitpanel/internal/errors"
	"gitpanel/internal/git"
	"gitpanel/internal/jobs"
	"gitpanel/internal/logging"
	"gitpanel/internal/recent"
	"gitpanel/internal/watch"
	"gitpanel/shared/types"
	"gitpanel/shared/utils"
)

type Service struct {
	cfg    *config.Config
	logger *logging.Logger
	reg    *Registry
	pool   *Pool
	recent *recent.List

	// watch starts a filesystem watcher for every opened repository.
	watch bool
}

type Option func(*Service)

// WithRecent records opened repositories in list.
func WithRecent(list *recent.List) Option {
	return func(s *Service) { s.recent = list }
}

// WithoutWatchers skips starting filesystem watchers.
func WithoutWatchers() Option {
	return func(s *Service) { s.watch = false }
}

func NewService(cfg *config.Config, logger *logging.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	diffs, err := cache.NewDiffCache(cfg.Diff.CacheCapacity, cfg.Diff.CompressMinSize)
	if err != nil {
		return nil, err
	}
	s := &Service{
		cfg:    cfg,
		logger: logger,
		reg:    newRegistry(diffs),
		pool:   NewPool(cfg.Workers),
		watch:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open registers the working tree containing path. Opening a tree that is
// already open returns its existing handle.
func (s *Service) Open(ctx context.Context, path string) (shared.RepoHandle, error) {
	if strings.TrimSpace(path) == "" {
		return shared.RepoHandle{}, errors.ValidationError("path is required", nil)
	}
	repo, err := submit(ctx, s.pool, func() (*git.Repository, error) {
		return git.Open(context.WithoutCancel(ctx), path, s.cfg.GitBinary)
	})
	if err != nil {
		return shared.RepoHandle{}, gitError(err)
	}

	worktree := utils.CanonicalPath(repo.Worktree())
	handle := shared.RepoHandle{
		RepoID:       utils.RepoIDForPath(worktree),
		Path:         worktree,
		Name:         filepath.Base(worktree),
		RepoRoot:     repoRoot(repo.CommonDir(), worktree),
		WorktreePath: worktree,
		GitDir:       repo.GitDir(),
		IsValid:      true,
	}

	e := &repoEntry{
		handle: handle,
		repo:   repo,
		store:  changelist.NewStore(repo.GitDir(), s.logger),
	}
	e.engine = commit.NewEngine(repo, hunkSource{s, e}, s.logger)

	if s.watch {
		w, err := watch.New(watch.Target{
			RepoID:    handle.RepoID,
			Worktree:  repo.Worktree(),
			GitDir:    repo.GitDir(),
			CommonDir: repo.CommonDir(),
		}, watch.Options{
			Debounce:   s.cfg.WatchDebounce(),
			Poll:       s.cfg.WatchPoll(),
			IgnoreDirs: s.cfg.Watch.IgnoreDirs,
		}, s.reg.broadcast, s.logger)
		if err != nil {
			s.logger.Warn("watcher not started", zap.String("repo_id", handle.RepoID), zap.Error(err))
		} else {
			e.watcher = w
		}
	}

	winner, added := s.reg.register(e)
	if !added && e.watcher != nil {
		e.watcher.Close()
	}
	if added {
		s.logger.WithRequestID(ctx).Info("repository opened",
			zap.String("repo_id", handle.RepoID),
			zap.String("path", handle.Path),
		)
	}

	if s.recent != nil {
		if err := s.recent.Touch(winner.handle); err != nil {
			s.logger.Warn("recording recent repository", zap.Error(err))
		}
	}
	return winner.handle, nil
}

// OpenWorktree opens worktreePath after checking it is a worktree of repoRoot.
func (s *Service) OpenWorktree(ctx context.Context, repoRoot, worktreePath string) (shared.RepoHandle, error) {
	if strings.TrimSpace(repoRoot) == "" || strings.TrimSpace(worktreePath) == "" {
		return shared.RepoHandle{}, errors.ValidationError("repo root and worktree path are required", nil)
	}
	trees, err := submit(ctx, s.pool, func() ([]shared.Worktree, error) {
		repo, err := git.Open(context.WithoutCancel(ctx), repoRoot, s.cfg.GitBinary)
		if err != nil {
			return nil, err
		}
		return repo.ListWorktrees(context.WithoutCancel(ctx))
	})
	if err != nil {
		return shared.RepoHandle{}, gitError(err)
	}

	want := utils.CanonicalPath(worktreePath)
	for _, wt := range trees {
		if utils.CanonicalPath(wt.Path) == want {
			return s.Open(ctx, want)
		}
	}
	return shared.RepoHandle{}, errors.ValidationError("path is not a worktree of this repository",
		map[string]string{"repo_root": repoRoot, "worktree_path": worktreePath})
}

// Close forgets repoID and stops its watcher.
func (s *Service) Close(repoID string) error {
	e, ok := s.reg.unregister(repoID)
	if !ok {
		return errors.NotFound("unknown repository id")
	}
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			s.logger.Warn("closing watcher", zap.String("repo_id", repoID), zap.Error(err))
		}
	}
	return nil
}

// Shutdown closes every open repository.
func (s *Service) Shutdown() {
	for _, h := range s.reg.handles() {
		s.Close(h.RepoID)
	}
}

// Repositories lists the open repositories.
func (s *Service) Repositories() []shared.RepoHandle {
	return s.reg.handles()
}

// Status returns the reconciled status of repoID, served from cache while fresh.
func (s *Service) Status(ctx context.Context, repoID string) (*shared.RepoStatus, error) {
	e, err := s.reg.lookup(repoID)
	if err != nil {
		return nil, err
	}

	s.reg.mu.Lock()
	if st, ok := s.reg.status.Fresh(repoID, s.cfg.StatusTTL()); ok {
		s.reg.mu.Unlock()
		return st, nil
	}
	token := s.reg.queue.Start(repoID, jobs.KindStatus)
	s.reg.mu.Unlock()

	return submit(ctx, s.pool, func() (*shared.RepoStatus, error) {
		start := time.Now()
		jobCtx := context.WithoutCancel(ctx)

		st, err := e.gitStatus(jobCtx)
		if err != nil {
			return nil, gitError(err)
		}
		st.RepoID = repoID
		if _, _, err := e.store.ApplyToStatus(st); err != nil {
			return nil, err
		}

		s.reg.mu.Lock()
		defer s.reg.mu.Unlock()
		if !s.reg.queue.IsCurrent(repoID, jobs.KindStatus, token) {
			if cached, ok := s.reg.status.Get(repoID); ok {
				return cached, nil
			}
			return st, nil
		}
		s.reg.status.Set(st)
		s.logger.WithRequestID(ctx).Info("status computed",
			zap.String("repo_id", repoID),
			zap.Int("files", len(st.Files)),
			zap.Uint64("token", uint64(token)),
			zap.Duration("duration", time.Since(start)),
		)
		return st, nil
	})
}

// refresh recomputes the status of repoID, ignoring the cached copy.
func (s *Service) refresh(ctx context.Context, repoID string) *shared.RepoStatus {
	s.reg.invalidate(repoID)
	st, err := s.Status(ctx, repoID)
	if err != nil {
		s.logger.WithRequestID(ctx).Warn("refreshing status", zap.String("repo_id", repoID), zap.Error(err))
		return nil
	}
	return st
}

// reapply re-runs changelist reconciliation over the cached status after a
// changelist mutation, so callers see the new assignments without waiting
// for git. The entry keeps its age and staleness, and a status job that
// publishes in between wins.
func (s *Service) reapply(e *repoEntry) {
	id := e.handle.RepoID
	for attempt := 0; attempt < 3; attempt++ {
		s.reg.mu.Lock()
		st, rev, ok := s.reg.status.Snapshot(id)
		s.reg.mu.Unlock()
		if !ok {
			return
		}
		if _, _, err := e.store.ApplyToStatus(st); err != nil {
			s.logger.Warn("reapplying changelists", zap.String("repo_id", id), zap.Error(err))
			return
		}
		s.reg.mu.Lock()
		updated := s.reg.status.Update(st, rev)
		s.reg.mu.Unlock()
		if updated {
			return
		}
	}
	// still contended; make the next read recompute
	s.reg.invalidate(id)
}

// Diff returns the diff text of one path, served from the content-addressed
// cache when both sides are unchanged.
func (s *Service) Diff(ctx context.Context, repoID, path string, kind shared.DiffKind) (string, error) {
	e, err := s.reg.lookup(repoID)
	if err != nil {
		return "", err
	}
	path, err = checkDiffArgs(path, kind)
	if err != nil {
		return "", err
	}

	key, err := submit(ctx, s.pool, func() (string, error) {
		return s.diffKey(context.WithoutCancel(ctx), e, path, kind)
	})
	if err != nil {
		return "", err
	}

	s.reg.mu.Lock()
	if text, ok := s.reg.diffs.Get(key); ok {
		s.reg.mu.Unlock()
		return text, nil
	}
	token := s.reg.queue.Start(repoID, jobs.KindDiff)
	s.reg.mu.Unlock()

	return submit(ctx, s.pool, func() (string, error) {
		start := time.Now()
		jobCtx := context.WithoutCancel(ctx)
		text, err := e.gitDiff(jobCtx, path, kind)
		if err != nil {
			return "", gitError(err)
		}
		after, err := s.diffKey(jobCtx, e, path, kind)
		if err != nil {
			return "", err
		}

		s.reg.mu.Lock()
		defer s.reg.mu.Unlock()
		if !s.reg.queue.IsCurrent(repoID, jobs.KindDiff, token) {
			if cached, ok := s.reg.diffs.Get(key); ok && after == key {
				return cached, nil
			}
			return text, nil
		}
		// the file changed while git was diffing; cache nothing
		if after != key {
			return text, nil
		}
		s.reg.diffs.Set(key, text)
		s.logger.WithRequestID(ctx).Info("diff computed",
			zap.String("repo_id", repoID),
			zap.String("path", path),
			zap.Uint64("token", uint64(token)),
			zap.Duration("duration", time.Since(start)),
		)
		return text, nil
	})
}

// DiffHunks parses the diff of path into hunks.
func (s *Service) DiffHunks(ctx context.Context, repoID, path string, kind shared.DiffKind) ([]shared.DiffHunk, error) {
	payload, err := s.DiffPayload(ctx, repoID, path, kind)
	if err != nil {
		return nil, err
	}
	return payload.Hunks, nil
}

// DiffPayload returns the diff text together with its hunks.
func (s *Service) DiffPayload(ctx context.Context, repoID, path string, kind shared.DiffKind) (*shared.DiffPayload, error) {
	text, err := s.Diff(ctx, repoID, path, kind)
	if err != nil {
		return nil, err
	}
	path = utils.NormalizeRepoPath(strings.TrimSpace(path))
	return &shared.DiffPayload{
		Text:  text,
		Hunks: parseHunks(text, path, kind),
	}, nil
}

func (s *Service) diffKey(ctx context.Context, e *repoEntry, path string, kind shared.DiffKind) (string, error) {
	oldSide, newSide, err := e.repo.DiffSides(ctx, path, kind)
	if err != nil {
		return "", gitError(err)
	}
	return cache.DiffKey(e.handle.RepoID, path, kind, oldSide.String(), newSide.String()), nil
}

// hunkSource serves the commit engine from the diff cache. It runs inside
// pool jobs, so it calls git directly instead of submitting more work.
type hunkSource struct {
	s *Service
	e *repoEntry
}

func (h hunkSource) Hunks(ctx context.Context, path string, kind shared.DiffKind) ([]shared.DiffHunk, error) {
	key, err := h.s.diffKey(ctx, h.e, path, kind)
	if err != nil {
		return nil, err
	}
	h.s.reg.mu.Lock()
	text, ok := h.s.reg.diffs.Get(key)
	h.s.reg.mu.Unlock()

	if !ok {
		if text, err = h.e.gitDiff(ctx, path, kind); err != nil {
			return nil, gitError(err)
		}
		after, err := h.s.diffKey(ctx, h.e, path, kind)
		if err != nil {
			return nil, err
		}
		if after == key {
			h.s.reg.mu.Lock()
			h.s.reg.diffs.Set(key, text)
			h.s.reg.mu.Unlock()
		}
	}
	return parseHunks(text, path, kind), nil
}

func parseHunks(text, path string, kind shared.DiffKind) []shared.DiffHunk {
	hunks := diff.FilterForPath(diff.Parse(text, path, kind), path)
	if hunks == nil {
		hunks = []shared.DiffHunk{}
	}
	return hunks
}

// Subscribe returns a channel of change notifications and a function that
// ends the subscription. Notifications are dropped for slow subscribers.
func (s *Service) Subscribe() (<-chan watch.Notification, func()) {
	id, ch := s.reg.subscribe()
	return ch, func() { s.reg.unsubscribe(id) }
}

// RecentRepos lists recently opened repositories, most recent first.
func (s *Service) RecentRepos() ([]shared.RepoListItem, error) {
	if s.recent == nil {
		return []shared.RepoListItem{}, nil
	}
	items, err := s.recent.Items()
	if err != nil {
		return nil, errors.Internal(err)
	}
	return items, nil
}

func checkDiffArgs(path string, kind shared.DiffKind) (string, error) {
	path = utils.NormalizeRepoPath(strings.TrimSpace(path))
	if path == "" {
		return "", errors.ValidationError("path is required", nil)
	}
	if !kind.Valid() {
		return "", errors.ValidationError("kind must be staged or unstaged", map[string]string{"kind": string(kind)})
	}
	return path, nil
}

func repoRoot(commonDir, worktree string) string {
	if filepath.Base(commonDir) == ".git" {
		return utils.CanonicalPath(filepath.Dir(commonDir))
	}
	if commonDir == "" {
		return worktree
	}
	return utils.CanonicalPath(commonDir)
}

// gitError maps git wrapper failures onto the structured error types.
func gitError(err error) error {
	if err == nil {
		return nil
	}
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e
	}
	switch {
	case stderrors.Is(err, git.ErrNotRepository):
		return errors.ValidationError(err.Error(), nil)
	case stderrors.Is(err, git.ErrInvalidBranch), stderrors.Is(err, git.ErrPathOutsideRepo):
		return errors.ValidationError(err.Error(), nil)
	case stderrors.Is(err, git.ErrPathNotFound):
		return errors.NotFound(err.Error())
	case stderrors.Is(err, git.ErrDirtyWorkingTree),
		stderrors.Is(err, git.ErrConflict),
		stderrors.Is(err, git.ErrBranchExists),
		stderrors.Is(err, git.ErrRefChanged):
		return errors.Precondition(err.Error(), nil)
	}
	return errors.Internal(err)
}
