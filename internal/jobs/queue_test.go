package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue(t *testing.T) {
	t.Run("newer token supersedes older", func(t *testing.T) {
		q := NewQueue()
		first := q.Start("repo", KindStatus)
		second := q.Start("repo", KindStatus)

		assert.Greater(t, second, first)
		assert.False(t, q.IsCurrent("repo", KindStatus, first))
		assert.True(t, q.IsCurrent("repo", KindStatus, second))
	})

	t.Run("keys are independent", func(t *testing.T) {
		q := NewQueue()
		status := q.Start("repo", KindStatus)
		q.Start("repo", KindDiff)
		q.Start("other", KindStatus)

		assert.True(t, q.IsCurrent("repo", KindStatus, status))
	})

	t.Run("forget drops a repository", func(t *testing.T) {
		q := NewQueue()
		tok := q.Start("repo", KindDiff)
		keep := q.Start("other", KindDiff)
		q.Forget("repo")

		assert.False(t, q.IsCurrent("repo", KindDiff, tok))
		assert.True(t, q.IsCurrent("other", KindDiff, keep))
	})

	t.Run("wraparound skips zero", func(t *testing.T) {
		q := NewQueue()
		q.next = ^Token(0)
		tok := q.Start("repo", KindStatus)
		assert.Equal(t, Token(1), tok)
		assert.False(t, q.IsCurrent("repo", KindStatus, 0))
	})
}
