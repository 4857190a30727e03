// Package watch turns filesystem activity in a repository into debounced
// change notifications.
package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"gitpanel/internal/logging"
)

// Notification reports that something in a repository changed.
type Notification struct {
	RepoID string `json:"repo_id"`
}

// Target is the repository a Watcher observes.
type Target struct {
	RepoID    string
	Worktree  string
	GitDir    string
	CommonDir string
}

type Options struct {
	Debounce   time.Duration
	Poll       time.Duration
	IgnoreDirs []string
}

// gitFiles are the administrative files whose changes matter.
var gitFiles = map[string]bool{
	"index":       true,
	"HEAD":        true,
	"packed-refs": true,
}

// Watcher emits one Notification per burst of filesystem events, once the
// repository has been quiet for the debounce window.
type Watcher struct {
	target     Target
	watcher    *fsnotify.Watcher
	ignoreDirs map[string]bool
	debounce   time.Duration
	poll       time.Duration
	notify     func(Notification)
	logger     *zap.Logger

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New starts watching target and calls notify from the watcher goroutine.
func New(target Target, opts Options, notify func(Notification), logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		target:     target,
		watcher:    fw,
		ignoreDirs: map[string]bool{".git": true},
		debounce:   opts.Debounce,
		poll:       opts.Poll,
		notify:     notify,
		logger:     logger.With(zap.String("repo_id", target.RepoID)),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, d := range opts.IgnoreDirs {
		w.ignoreDirs[d] = true
	}
	if w.debounce <= 0 {
		w.debounce = 400 * time.Millisecond
	}
	if w.poll <= 0 {
		w.poll = 250 * time.Millisecond
	}

	if err := w.addAll(); err != nil {
		fw.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) addAll() error {
	if err := w.watcher.Add(w.target.GitDir); err != nil {
		return fmt.Errorf("watching %s: %w", w.target.GitDir, err)
	}
	common := w.target.CommonDir
	if common == "" {
		common = w.target.GitDir
	}
	if common != w.target.GitDir {
		if err := w.watcher.Add(common); err != nil {
			return fmt.Errorf("watching %s: %w", common, err)
		}
	}
	if refs := filepath.Join(common, "refs"); isDir(refs) {
		if err := w.addTree(refs, false); err != nil {
			return err
		}
	}
	return w.addTree(w.target.Worktree, true)
}

// addTree watches root and every directory below it. Ignored directories
// are skipped in the worktree only.
func (w *Watcher) addTree(root string, worktree bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// directories can vanish while walking
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if worktree && path != root && w.ignoreDirs[d.Name()] {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer close(w.done)

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	var pending bool
	var last time.Time

	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.relevant(event) {
				pending = true
				last = time.Now()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		case <-ticker.C:
			if pending && time.Since(last) >= w.debounce {
				pending = false
				w.notify(Notification{RepoID: w.target.RepoID})
			}
		}
	}
}

// relevant filters events and follows newly created directories.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	dir := filepath.Dir(event.Name)
	if dir == w.target.GitDir || dir == w.target.CommonDir {
		return gitFiles[filepath.Base(event.Name)]
	}

	refs := filepath.Join(w.commonDir(), "refs")
	inRefs := within(refs, event.Name)
	if !inRefs {
		rel, err := filepath.Rel(w.target.Worktree, event.Name)
		if err != nil || w.ignored(rel) {
			return false
		}
	}

	if event.Op&fsnotify.Create == fsnotify.Create && isDir(event.Name) {
		if err := w.addTree(event.Name, !inRefs); err != nil {
			w.logger.Warn("watching new directory", zap.String("path", event.Name), zap.Error(err))
		}
	}
	return true
}

func (w *Watcher) commonDir() string {
	if w.target.CommonDir != "" {
		return w.target.CommonDir
	}
	return w.target.GitDir
}

func (w *Watcher) ignored(rel string) bool {
	if rel == "." || strings.HasPrefix(rel, "..") {
		return true
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if w.ignoreDirs[part] {
			return true
		}
	}
	return false
}

// Close stops the loop and releases the underlying watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stop)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
