package watch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo lays out a worktree with a .git directory holding refs.
func fakeRepo(t *testing.T) Target {
	t.Helper()
	root := t.TempDir()
	gitDir := filepath.Join(root, ".git")
	for _, dir := range []string{
		filepath.Join(gitDir, "refs", "heads"),
		filepath.Join(gitDir, "objects"),
		filepath.Join(root, "src"),
		filepath.Join(root, "node_modules"),
	} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	return Target{RepoID: "repo-1", Worktree: root, GitDir: gitDir, CommonDir: gitDir}
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func startWatcher(t *testing.T, target Target) (*atomic.Int32, chan Notification) {
	t.Helper()
	var count atomic.Int32
	ch := make(chan Notification, 16)
	w, err := New(target, Options{
		Debounce:   100 * time.Millisecond,
		Poll:       10 * time.Millisecond,
		IgnoreDirs: []string{"node_modules"},
	}, func(n Notification) {
		count.Add(1)
		ch <- n
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return &count, ch
}

func waitFor(t *testing.T, ch chan Notification) Notification {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(3 * time.Second):
		t.Fatal("no notification")
		return Notification{}
	}
}

func assertQuiet(t *testing.T, ch chan Notification) {
	t.Helper()
	select {
	case n := <-ch:
		t.Fatalf("unexpected notification %+v", n)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcher(t *testing.T) {
	t.Run("burst of writes yields one notification", func(t *testing.T) {
		target := fakeRepo(t)
		count, ch := startWatcher(t, target)

		for i := 0; i < 5; i++ {
			write(t, filepath.Join(target.Worktree, "src", "main.go"), string(rune('a'+i)))
		}
		n := waitFor(t, ch)
		assert.Equal(t, "repo-1", n.RepoID)
		assertQuiet(t, ch)
		assert.Equal(t, int32(1), count.Load())
	})

	t.Run("index and refs changes notify", func(t *testing.T) {
		target := fakeRepo(t)
		_, ch := startWatcher(t, target)

		write(t, filepath.Join(target.GitDir, "index"), "x")
		waitFor(t, ch)

		write(t, filepath.Join(target.GitDir, "refs", "heads", "main"), "abc")
		waitFor(t, ch)
	})

	t.Run("other git files and ignored dirs are filtered", func(t *testing.T) {
		target := fakeRepo(t)
		_, ch := startWatcher(t, target)

		write(t, filepath.Join(target.GitDir, "COMMIT_EDITMSG"), "msg")
		write(t, filepath.Join(target.Worktree, "node_modules", "pkg.js"), "x")
		assertQuiet(t, ch)
	})

	t.Run("new directories are followed", func(t *testing.T) {
		target := fakeRepo(t)
		_, ch := startWatcher(t, target)

		dir := filepath.Join(target.Worktree, "pkg")
		require.NoError(t, os.Mkdir(dir, 0o755))
		waitFor(t, ch)

		write(t, filepath.Join(dir, "file.go"), "package pkg")
		waitFor(t, ch)
	})

	t.Run("close is idempotent", func(t *testing.T) {
		target := fakeRepo(t)
		w, err := New(target, Options{}, func(Notification) {}, nil)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		assert.NoError(t, w.Close())
	})
}
