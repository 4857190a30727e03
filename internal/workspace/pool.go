package workspace

import (
	"context"
	"fmt"
	"runtime"

	"gitpanel/internal/errors"
)

// Pool bounds the number of blocking jobs running at once.
type Pool struct {
	slots chan struct{}
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{slots: make(chan struct{}, size)}
}

type outcome[T any] struct {
	value T
	err   error
}

// submit runs fn on the pool and waits for it. If ctx ends first the caller
// gets ctx.Err() while fn keeps running to completion; fn must therefore not
// depend on ctx being live. A panic in fn is returned as an internal error.
func submit[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	done := make(chan outcome[T], 1)
	go func() {
		p.slots <- struct{}{}
		defer func() { <-p.slots }()
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- outcome[T]{zero, errors.Internal(fmt.Errorf("worker panic: %v", r))}
			}
		}()
		v, err := fn()
		done <- outcome[T]{v, err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
