// Package jobs mints supersession tokens for long-running reads.
//
// Starting a job for a (repository, kind) key overwrites whatever token the
// key held before. When the job finishes it asks IsCurrent; only the holder
// of the latest token may publish its result.
package jobs

// Kind names an operation family that supersedes itself.
type Kind string

const (
	KindStatus Kind = "status"
	KindDiff   Kind = "diff"
)

// Token identifies one started job.
type Token uint64

type key struct {
	repoID string
	kind   Kind
}

// Queue is the token table. It is not safe for concurrent use; the
// workspace registry calls it under its own lock.
type Queue struct {
	next   Token
	latest map[key]Token
}

func NewQueue() *Queue {
	return &Queue{latest: make(map[key]Token)}
}

// Start mints a token for (repoID, kind), superseding any earlier one.
func (q *Queue) Start(repoID string, kind Kind) Token {
	q.next++
	if q.next == 0 {
		// wrapped; zero is never handed out
		q.next = 1
	}
	q.latest[key{repoID, kind}] = q.next
	return q.next
}

// IsCurrent reports whether token is still the latest for (repoID, kind).
func (q *Queue) IsCurrent(repoID string, kind Kind, token Token) bool {
	t, ok := q.latest[key{repoID, kind}]
	return ok && t == token
}

// Forget drops every token of repoID. In-flight jobs for it will not publish.
func (q *Queue) Forget(repoID string) {
	for k := range q.latest {
		if k.repoID == repoID {
			delete(q.latest, k)
		}
	}
}
