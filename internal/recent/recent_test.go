package recent

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitpanel/internal/storage"
	"gitpanel/shared/types"
)

func newList(t *testing.T) (*List, *time.Time) {
	t.Helper()
	db, err := storage.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	now := time.UnixMilli(1_000_000)
	l := New(db)
	l.now = func() time.Time { return now }
	return l, &now
}

func handle(i int) shared.RepoHandle {
	return shared.RepoHandle{
		RepoID: fmt.Sprintf("id-%02d", i),
		Path:   fmt.Sprintf("/src/repo-%02d", i),
		Name:   fmt.Sprintf("repo-%02d", i),
	}
}

func TestList(t *testing.T) {
	t.Run("most recent first", func(t *testing.T) {
		l, now := newList(t)
		for i := 0; i < 3; i++ {
			*now = now.Add(time.Second)
			require.NoError(t, l.Touch(handle(i)))
		}
		// reopening moves an entry to the front
		*now = now.Add(time.Second)
		require.NoError(t, l.Touch(handle(0)))

		items, err := l.Items()
		require.NoError(t, err)
		require.Len(t, items, 3)
		assert.Equal(t, []string{"id-00", "id-02", "id-01"}, []string{items[0].RepoID, items[1].RepoID, items[2].RepoID})
		assert.Equal(t, now.UnixMilli(), items[0].LastOpened)
	})

	t.Run("trimmed to the limit", func(t *testing.T) {
		l, now := newList(t)
		for i := 0; i < Limit+5; i++ {
			*now = now.Add(time.Second)
			require.NoError(t, l.Touch(handle(i)))
		}

		items, err := l.Items()
		require.NoError(t, err)
		require.Len(t, items, Limit)
		assert.Equal(t, fmt.Sprintf("id-%02d", Limit+4), items[0].RepoID)
		assert.Equal(t, "id-05", items[Limit-1].RepoID)

		ids, err := l.store.IDs()
		require.NoError(t, err)
		assert.Len(t, ids, Limit)
	})

	t.Run("remove", func(t *testing.T) {
		l, _ := newList(t)
		require.NoError(t, l.Touch(handle(1)))
		require.NoError(t, l.Remove("id-01"))
		items, err := l.Items()
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}
