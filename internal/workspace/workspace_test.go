package workspace

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitpanel/internal/changelist"
	"gitpanel/internal/config"
	"gitpanel/internal/errors"
	"gitpanel/internal/recent"
	"gitpanel/internal/storage"
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

func createFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func lines(n int, edit map[int]string) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		if l, ok := edit[i]; ok {
			b.WriteString(l + "\n")
			continue
		}
		fmt.Fprintf(&b, "line %d\n", i)
	}
	return b.String()
}

// seeded returns a repository with one commit plus edits to a.txt and b.txt
// and an untracked c.txt.
func seeded(t *testing.T) string {
	dir := testRepo(t)
	createFile(t, dir, "a.txt", "alpha\n")
	createFile(t, dir, "b.txt", lines(20, nil))
	gitCmd(t, dir, "add", ".")
	gitCmd(t, dir, "commit", "-q", "-m", "init")

	createFile(t, dir, "a.txt", "alpha changed\n")
	createFile(t, dir, "b.txt", lines(20, map[int]string{2: "second", 18: "eighteenth"}))
	createFile(t, dir, "c.txt", "new\n")
	return dir
}

func newService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	cfg := config.Default()
	cfg.Workers = 2
	s, err := NewService(cfg, nil, append([]Option{WithoutWatchers()}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)
	return s
}

func entry(status *shared.RepoStatus, path string) (shared.StatusEntry, bool) {
	for _, f := range status.Files {
		if f.Path == path {
			return f, true
		}
	}
	return shared.StatusEntry{}, false
}

func TestPool(t *testing.T) {
	p := NewPool(1)

	t.Run("returns the result", func(t *testing.T) {
		v, err := submit(context.Background(), p, func() (int, error) { return 42, nil })
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	})

	t.Run("panics become internal errors", func(t *testing.T) {
		_, err := submit(context.Background(), p, func() (int, error) { panic("boom") })
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrorTypeInternal))
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("cancelled caller does not stop the job", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		release := make(chan struct{})
		finished := make(chan struct{})

		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		_, err := submit(ctx, p, func() (int, error) {
			<-release
			close(finished)
			return 1, nil
		})
		assert.ErrorIs(t, err, context.Canceled)

		close(release)
		select {
		case <-finished:
		case <-time.After(time.Second):
			t.Fatal("job did not finish")
		}
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := seeded(t)

	db, err := storage.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := newService(t, WithRecent(recent.New(db)))

	h, err := s.Open(ctx, filepath.Join(dir, "."))
	require.NoError(t, err)
	assert.True(t, h.IsValid)
	assert.Equal(t, filepath.Base(dir), h.Name)
	assert.NotEmpty(t, h.RepoID)
	assert.Equal(t, h.WorktreePath, h.RepoRoot)

	again, err := s.Open(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, h, again)
	assert.Len(t, s.Repositories(), 1)

	items, err := s.RecentRepos()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, h.RepoID, items[0].RepoID)

	t.Run("not a repository", func(t *testing.T) {
		_, err := s.Open(ctx, t.TempDir())
		assert.True(t, errors.Is(err, errors.ErrorTypeValidation))
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := s.Status(ctx, "nope")
		assert.True(t, errors.Is(err, errors.ErrorTypeNotFound))
	})

	t.Run("close", func(t *testing.T) {
		require.NoError(t, s.Close(h.RepoID))
		_, err := s.Status(ctx, h.RepoID)
		assert.True(t, errors.Is(err, errors.ErrorTypeNotFound))
		assert.True(t, errors.Is(s.Close(h.RepoID), errors.ErrorTypeNotFound))
	})
}

func TestStatusAndDiff(t *testing.T) {
	ctx := context.Background()
	dir := seeded(t)
	s := newService(t)
	h, err := s.Open(ctx, dir)
	require.NoError(t, err)

	status, err := s.Status(ctx, h.RepoID)
	require.NoError(t, err)
	assert.Equal(t, h.RepoID, status.RepoID)
	assert.Equal(t, shared.RepoCounts{Unstaged: 2, Untracked: 1}, status.Counts)
	a, _ := entry(status, "a.txt")
	assert.Equal(t, changelist.DefaultID, a.ChangelistID)

	t.Run("fresh status comes from cache", func(t *testing.T) {
		createFile(t, dir, "d.txt", "later\n")
		cached, err := s.Status(ctx, h.RepoID)
		require.NoError(t, err)
		_, ok := entry(cached, "d.txt")
		assert.False(t, ok)

		s.reg.invalidate(h.RepoID)
		fresh, err := s.Status(ctx, h.RepoID)
		require.NoError(t, err)
		_, ok = entry(fresh, "d.txt")
		assert.True(t, ok)
	})

	t.Run("diff is cached by content", func(t *testing.T) {
		text, err := s.Diff(ctx, h.RepoID, "b.txt", shared.DiffUnstaged)
		require.NoError(t, err)
		assert.Contains(t, text, "+second")
		before := s.reg.diffs.Len()

		again, err := s.Diff(ctx, h.RepoID, "b.txt", shared.DiffUnstaged)
		require.NoError(t, err)
		assert.Equal(t, text, again)
		assert.Equal(t, before, s.reg.diffs.Len())

		createFile(t, dir, "b.txt", lines(20, map[int]string{2: "changed again"}))
		changed, err := s.Diff(ctx, h.RepoID, "b.txt", shared.DiffUnstaged)
		require.NoError(t, err)
		assert.Contains(t, changed, "+changed again")
		assert.Equal(t, before+1, s.reg.diffs.Len())
	})

	t.Run("payload and hunks", func(t *testing.T) {
		payload, err := s.DiffPayload(ctx, h.RepoID, "c.txt", shared.DiffUnstaged)
		require.NoError(t, err)
		require.Len(t, payload.Hunks, 1)
		assert.Equal(t, "c.txt", payload.Hunks[0].Path)
		assert.Contains(t, payload.Text, "+new")

		hunks, err := s.DiffHunks(ctx, h.RepoID, "a.txt", shared.DiffStaged)
		require.NoError(t, err)
		assert.Empty(t, hunks)
	})

	t.Run("diff raced by an edit is not cached", func(t *testing.T) {
		e, err := s.reg.lookup(h.RepoID)
		require.NoError(t, err)
		e.diffFn = func(ctx context.Context, path string, kind shared.DiffKind) (string, error) {
			if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha moved\n"), 0o644); err != nil {
				return "", err
			}
			return e.repo.Diff(ctx, path, kind)
		}
		before := s.reg.diffs.Len()

		text, err := s.Diff(ctx, h.RepoID, "a.txt", shared.DiffUnstaged)
		require.NoError(t, err)
		assert.Contains(t, text, "+alpha moved")
		assert.Equal(t, before, s.reg.diffs.Len())

		e.diffFn = nil
		createFile(t, dir, "a.txt", "alpha changed\n")
		text, err = s.Diff(ctx, h.RepoID, "a.txt", shared.DiffUnstaged)
		require.NoError(t, err)
		assert.Contains(t, text, "+alpha changed")
		assert.NotContains(t, text, "moved")
	})

	t.Run("changelist mutation keeps an invalidated status stale", func(t *testing.T) {
		_, err := s.Status(ctx, h.RepoID)
		require.NoError(t, err)
		createFile(t, dir, "e.txt", "after\n")
		s.reg.invalidate(h.RepoID)

		_, err = s.CreateChangelist(h.RepoID, "Later")
		require.NoError(t, err)

		status, err := s.Status(ctx, h.RepoID)
		require.NoError(t, err)
		_, ok := entry(status, "e.txt")
		assert.True(t, ok)
	})

	t.Run("argument validation", func(t *testing.T) {
		_, err := s.Diff(ctx, h.RepoID, " ", shared.DiffUnstaged)
		assert.True(t, errors.Is(err, errors.ErrorTypeValidation))
		_, err = s.Diff(ctx, h.RepoID, "a.txt", shared.DiffKind("sideways"))
		assert.True(t, errors.Is(err, errors.ErrorTypeValidation))
	})
}

func TestStatusLastWriterWins(t *testing.T) {
	ctx := context.Background()
	dir := seeded(t)
	s := newService(t)
	s.cfg.Status.CacheTTLMillis = 60_000
	h, err := s.Open(ctx, dir)
	require.NoError(t, err)
	e, err := s.reg.lookup(h.RepoID)
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	e.statusFn = func(ctx context.Context) (*shared.RepoStatus, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			return &shared.RepoStatus{Files: []shared.StatusEntry{{Path: "first.txt", Status: shared.StatusUntracked}}}, nil
		}
		return &shared.RepoStatus{Files: []shared.StatusEntry{{Path: "second.txt", Status: shared.StatusUntracked}}}, nil
	}

	type result struct {
		status *shared.RepoStatus
		err    error
	}
	first := make(chan result, 1)
	go func() {
		st, err := s.Status(ctx, h.RepoID)
		first <- result{st, err}
	}()
	<-started

	second, err := s.Status(ctx, h.RepoID)
	require.NoError(t, err)
	_, ok := entry(second, "second.txt")
	require.True(t, ok)

	close(release)
	res := <-first
	require.NoError(t, res.err)
	_, ok = entry(res.status, "second.txt")
	assert.True(t, ok, "superseded job returns the newer cached status")

	s.reg.mu.Lock()
	cached, ok := s.reg.status.Get(h.RepoID)
	s.reg.mu.Unlock()
	require.True(t, ok)
	_, ok = entry(cached, "second.txt")
	assert.True(t, ok)
	_, ok = entry(cached, "first.txt")
	assert.False(t, ok)

	after, err := s.Status(ctx, h.RepoID)
	require.NoError(t, err)
	_, ok = entry(after, "second.txt")
	assert.True(t, ok)
	assert.Equal(t, int32(2), calls.Load())
}

func TestStagingOperations(t *testing.T) {
	ctx := context.Background()
	dir := seeded(t)
	s := newService(t)
	h, err := s.Open(ctx, dir)
	require.NoError(t, err)

	require.NoError(t, s.Stage(ctx, h.RepoID, "a.txt"))
	status, err := s.Status(ctx, h.RepoID)
	require.NoError(t, err)
	a, _ := entry(status, "a.txt")
	assert.Equal(t, shared.StatusStaged, a.Status)

	require.NoError(t, s.Unstage(ctx, h.RepoID, "a.txt"))
	status, err = s.Status(ctx, h.RepoID)
	require.NoError(t, err)
	a, _ = entry(status, "a.txt")
	assert.Equal(t, shared.StatusUnstaged, a.Status)

	t.Run("delete untracked only", func(t *testing.T) {
		err := s.DeleteUntracked(ctx, h.RepoID, "a.txt")
		require.Error(t, err)
		assert.Equal(t, "Only unversioned files can be deleted.", err.Error())

		require.NoError(t, s.AssignFiles(h.RepoID, changelist.DefaultID, []string{"c.txt"}))
		require.NoError(t, s.DeleteUntracked(ctx, h.RepoID, "c.txt"))
		_, err = os.Stat(filepath.Join(dir, "c.txt"))
		assert.True(t, os.IsNotExist(err))

		state, err := s.Changelists(h.RepoID)
		require.NoError(t, err)
		assert.NotContains(t, state.Assignments, "c.txt")
	})

	t.Run("track", func(t *testing.T) {
		createFile(t, dir, "e.txt", "tracked soon\n")
		require.NoError(t, s.Track(ctx, h.RepoID, "e.txt"))
		status, err := s.Status(ctx, h.RepoID)
		require.NoError(t, err)
		e, ok := entry(status, "e.txt")
		require.True(t, ok)
		assert.NotEqual(t, shared.StatusUntracked, e.Status)
	})
}

func TestBranchOperations(t *testing.T) {
	ctx := context.Background()
	dir := seeded(t)
	s := newService(t)
	h, err := s.Open(ctx, dir)
	require.NoError(t, err)

	created, err := s.CreateBranch(ctx, h.RepoID, "feature", "")
	require.NoError(t, err)
	assert.Equal(t, "feature", created.Name)

	_, err = s.CreateBranch(ctx, h.RepoID, "feature", "")
	assert.True(t, errors.Is(err, errors.ErrorTypePrecondition))

	branches, err := s.Branches(ctx, h.RepoID)
	require.NoError(t, err)
	assert.Equal(t, "main", branches.Current)
	assert.Contains(t, branches.Locals, "feature")

	_, err = s.Checkout(ctx, h.RepoID, shared.CheckoutTarget{Kind: shared.CheckoutLocal, Name: "feature"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrorTypePrecondition))

	gitCmd(t, dir, "stash", "-u", "-q")
	res, err := s.Checkout(ctx, h.RepoID, shared.CheckoutTarget{Kind: shared.CheckoutLocal, Name: "feature"})
	require.NoError(t, err)
	assert.Equal(t, "feature", res.Head.BranchName)

	status, err := s.Status(ctx, h.RepoID)
	require.NoError(t, err)
	assert.Equal(t, "feature", status.Head.BranchName)
}

func TestCommitChangelist(t *testing.T) {
	ctx := context.Background()
	dir := seeded(t)
	s := newService(t)
	h, err := s.Open(ctx, dir)
	require.NoError(t, err)

	cl, err := s.CreateChangelist(h.RepoID, "Feature")
	require.NoError(t, err)

	hunks, err := s.DiffHunks(ctx, h.RepoID, "b.txt", shared.DiffUnstaged)
	require.NoError(t, err)
	require.Len(t, hunks, 2)

	require.NoError(t, s.AssignFiles(h.RepoID, cl.ID, []string{"a.txt"}))
	require.NoError(t, s.AssignHunks(h.RepoID, cl.ID, "b.txt", []changelist.HunkAssignment{changelist.AssignmentFromHunk(hunks[0])}))

	t.Run("assignments show up in status", func(t *testing.T) {
		status, err := s.Status(ctx, h.RepoID)
		require.NoError(t, err)
		a, _ := entry(status, "a.txt")
		assert.Equal(t, cl.ID, a.ChangelistID)
		b, _ := entry(status, "b.txt")
		assert.Equal(t, cl.ID, b.ChangelistID)
		assert.True(t, b.ChangelistPartial)
	})

	preview, err := s.CommitPrepare(ctx, h.RepoID, cl.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt"}, preview.HunkFiles)
	assert.Empty(t, preview.InvalidHunks)

	_, err = s.CommitExecute(ctx, h.RepoID, cl.ID, CommitRequest{})
	assert.True(t, errors.Is(err, errors.ErrorTypeValidation))

	indexBefore, err := os.ReadFile(filepath.Join(dir, ".git", "index"))
	require.NoError(t, err)

	res, err := s.CommitExecute(ctx, h.RepoID, cl.ID, CommitRequest{Message: "feature"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, res.CommittedPaths)

	t.Run("real index untouched", func(t *testing.T) {
		indexAfter, err := os.ReadFile(filepath.Join(dir, ".git", "index"))
		require.NoError(t, err)
		assert.Equal(t, indexBefore, indexAfter)

		assert.Equal(t, "alpha changed\n", gitCmd(t, dir, "show", "HEAD:a.txt"))
		assert.Equal(t, lines(20, map[int]string{2: "second"}), gitCmd(t, dir, "show", "HEAD:b.txt"))
	})

	t.Run("paths with changes keep their assignments", func(t *testing.T) {
		status, err := s.Status(ctx, h.RepoID)
		require.NoError(t, err)
		a, ok := entry(status, "a.txt")
		require.True(t, ok)
		assert.Equal(t, shared.StatusBoth, a.Status)

		state, err := s.Changelists(h.RepoID)
		require.NoError(t, err)
		assert.Equal(t, cl.ID, state.Assignments["a.txt"])
		assert.Contains(t, state.HunkAssignments, "b.txt")

		// the unstaged side still diffs against the old index entry
		remaining, err := s.DiffHunks(ctx, h.RepoID, "b.txt", shared.DiffUnstaged)
		require.NoError(t, err)
		assert.Len(t, remaining, 2)
	})

	t.Run("stale hunk is refused", func(t *testing.T) {
		createFile(t, dir, "b.txt", lines(20, map[int]string{2: "second edited", 18: "eighteenth"}))
		_, err := s.CommitExecute(ctx, h.RepoID, cl.ID, CommitRequest{Message: "again"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrorTypePrecondition))
	})
}

func TestCommitSyncIndex(t *testing.T) {
	ctx := context.Background()
	dir := seeded(t)
	s := newService(t)
	h, err := s.Open(ctx, dir)
	require.NoError(t, err)

	cl, err := s.CreateChangelist(h.RepoID, "Feature")
	require.NoError(t, err)
	require.NoError(t, s.AssignFiles(h.RepoID, cl.ID, []string{"a.txt"}))

	res, err := s.CommitExecute(ctx, h.RepoID, cl.ID, CommitRequest{Message: "feature", SyncIndex: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, res.CommittedPaths)

	status, err := s.Status(ctx, h.RepoID)
	require.NoError(t, err)
	_, ok := entry(status, "a.txt")
	assert.False(t, ok)
	b, ok := entry(status, "b.txt")
	require.True(t, ok)
	assert.Equal(t, shared.StatusUnstaged, b.Status)

	state, err := s.Changelists(h.RepoID)
	require.NoError(t, err)
	assert.NotContains(t, state.Assignments, "a.txt")
}

func TestCommitStaged(t *testing.T) {
	ctx := context.Background()
	dir := seeded(t)
	s := newService(t)
	h, err := s.Open(ctx, dir)
	require.NoError(t, err)

	require.NoError(t, s.Stage(ctx, h.RepoID, "a.txt"))
	require.NoError(t, s.AssignFiles(h.RepoID, changelist.DefaultID, []string{"a.txt"}))

	res, err := s.CommitStaged(ctx, h.RepoID, []string{"a.txt"}, CommitRequest{Message: "staged only"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, res.CommittedPaths)
	assert.Equal(t, "alpha changed\n", gitCmd(t, dir, "show", "HEAD:a.txt"))

	state, err := s.Changelists(h.RepoID)
	require.NoError(t, err)
	assert.NotContains(t, state.Assignments, "a.txt")
}

func TestWatcherNotifications(t *testing.T) {
	ctx := context.Background()
	dir := seeded(t)

	cfg := config.Default()
	cfg.Watch.DebounceMillis = 50
	cfg.Watch.PollMillis = 10
	s, err := NewService(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)

	events, cancel := s.Subscribe()
	defer cancel()

	h, err := s.Open(ctx, dir)
	require.NoError(t, err)
	_, err = s.Status(ctx, h.RepoID)
	require.NoError(t, err)

	createFile(t, dir, "f.txt", "watched\n")
	select {
	case n := <-events:
		assert.Equal(t, h.RepoID, n.RepoID)
	case <-time.After(5 * time.Second):
		t.Fatal("no notification")
	}

	s.reg.mu.Lock()
	_, fresh := s.reg.status.Fresh(h.RepoID, time.Hour)
	s.reg.mu.Unlock()
	assert.False(t, fresh)
}
