// Package recent remembers the repositories opened most recently.
package recent

import (
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"gitpanel/internal/storage"
	"gitpanel/shared/types"
)

// Limit is the number of repositories kept.
const Limit = 20

type entry struct {
	shared.RepoListItem
}

func (e entry) GetID() string { return e.RepoID }

// List is the recently opened repository list, most recent first.
type List struct {
	store *storage.BadgerStore
	now   func() time.Time
	mu    sync.Mutex
}

func New(db *badger.DB) *List {
	return &List{
		store: storage.NewBadgerStore(db, "recent"),
		now:   time.Now,
	}
}

// Touch records that handle was just opened and trims the list to Limit.
func (l *List) Touch(handle shared.RepoHandle) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	item := entry{shared.RepoListItem{
		RepoID:     handle.RepoID,
		Path:       handle.Path,
		Name:       handle.Name,
		LastOpened: l.now().UnixMilli(),
	}}
	if err := l.store.Put(item); err != nil {
		return err
	}

	items, err := l.items()
	if err != nil {
		return err
	}
	for _, old := range items[min(len(items), Limit):] {
		if err := l.store.Delete(old.RepoID); err != nil {
			return err
		}
	}
	return nil
}

// Items returns up to Limit entries, most recently opened first.
func (l *List) Items() ([]shared.RepoListItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	items, err := l.items()
	if err != nil {
		return nil, err
	}
	return items[:min(len(items), Limit)], nil
}

// Remove forgets repoID.
func (l *List) Remove(repoID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Delete(repoID)
}

func (l *List) items() ([]shared.RepoListItem, error) {
	var entries []entry
	if err := l.store.List(&entries); err != nil {
		return nil, err
	}
	items := make([]shared.RepoListItem, len(entries))
	for i, e := range entries {
		items[i] = e.RepoListItem
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].LastOpened != items[j].LastOpened {
			return items[i].LastOpened > items[j].LastOpened
		}
		return items[i].Path < items[j].Path
	})
	return items, nil
}
