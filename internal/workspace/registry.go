package workspace

import (
	"context"
	"sync"

	"gitpanel/internal/cache"
	"gitpanel/internal/changelist"
	"gitpanel/internal/commit"
	"gitpanel/internal/errors"
	"gitpanel/internal/git"
	"gitpanel/internal/jobs"
	"gitpanel/internal/watch"
	"gitpanel/shared/types"
)

// repoEntry is one open working tree.
type repoEntry struct {
	handle  shared.RepoHandle
	repo    *git.Repository
	store   *changelist.Store
	engine  *commit.Engine
	watcher *watch.Watcher

	// statusFn and diffFn replace the git calls in tests.
	statusFn func(ctx context.Context) (*shared.RepoStatus, error)
	diffFn   func(ctx context.Context, path string, kind shared.DiffKind) (string, error)
}

func (e *repoEntry) gitStatus(ctx context.Context) (*shared.RepoStatus, error) {
	if e.statusFn != nil {
		return e.statusFn(ctx)
	}
	return e.repo.Status(ctx)
}

func (e *repoEntry) gitDiff(ctx context.Context, path string, kind shared.DiffKind) (string, error) {
	if e.diffFn != nil {
		return e.diffFn(ctx, path, kind)
	}
	return e.repo.Diff(ctx, path, kind)
}

// Registry is the process-wide state shared by every request. A single
// mutex guards all of it; nothing blocking runs while it is held.
type Registry struct {
	mu sync.Mutex

	repos       map[string]*repoEntry
	status      *cache.StatusCache
	diffs       *cache.DiffCache
	queue       *jobs.Queue
	subscribers map[int]chan watch.Notification
	nextSub     int
}

func newRegistry(diffs *cache.DiffCache) *Registry {
	return &Registry{
		repos:       make(map[string]*repoEntry),
		status:      cache.NewStatusCache(),
		diffs:       diffs,
		queue:       jobs.NewQueue(),
		subscribers: make(map[int]chan watch.Notification),
	}
}

func (r *Registry) lookup(repoID string) (*repoEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.repos[repoID]
	if !ok {
		return nil, errors.NotFound("unknown repository id")
	}
	return e, nil
}

// register adds e unless its id is already open, returning the entry that won.
func (r *Registry) register(e *repoEntry) (*repoEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.repos[e.handle.RepoID]; ok {
		return existing, false
	}
	r.repos[e.handle.RepoID] = e
	return e, true
}

// unregister removes repoID and everything cached for it.
func (r *Registry) unregister(repoID string) (*repoEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.repos[repoID]
	if !ok {
		return nil, false
	}
	delete(r.repos, repoID)
	r.status.Remove(repoID)
	r.diffs.Purge(repoID)
	r.queue.Forget(repoID)
	return e, true
}

func (r *Registry) handles() []shared.RepoHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.RepoHandle, 0, len(r.repos))
	for _, e := range r.repos {
		out = append(out, e.handle)
	}
	return out
}

func (r *Registry) invalidate(repoID string) {
	r.mu.Lock()
	r.status.Invalidate(repoID)
	r.mu.Unlock()
}

func (r *Registry) subscribe() (int, <-chan watch.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSub++
	ch := make(chan watch.Notification, 16)
	r.subscribers[r.nextSub] = ch
	return r.nextSub, ch
}

func (r *Registry) unsubscribe(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.subscribers[id]; ok {
		delete(r.subscribers, id)
		close(ch)
	}
}

// broadcast invalidates the cached status and forwards n to every
// subscriber that has room for it.
func (r *Registry) broadcast(n watch.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Invalidate(n.RepoID)
	for _, ch := range r.subscribers {
		select {
		case ch <- n:
		default:
		}
	}
}
