package store

import (
	"context"
	"sync"
)

// Async is an asynchronous result accepted by Mutate.
// Done is closed once the result is available, Result must not block after that.
type Async interface {
	Done() <-chan struct{}
	Result() (any, error)
}

// Future is a typed asynchronous result. It is resolved exactly once, later
// resolutions are ignored.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// NewPromise returns an unresolved future together with the functions that
// resolve or reject it.
func NewPromise[T any]() (f *Future[T], resolve func(T), reject func(error)) {
	f = &Future[T]{done: make(chan struct{})}
	resolve = func(value T) {
		f.once.Do(func() {
			f.value = value
			close(f.done)
		})
	}
	reject = func(err error) {
		f.once.Do(func() {
			f.err = err
			close(f.done)
		})
	}
	return f, resolve, reject
}

// Go runs fn in a new goroutine and returns a future for its result.
func Go[T any](fn func() (T, error)) *Future[T] {
	f, resolve, reject := NewPromise[T]()
	go func() {
		value, err := fn()
		if err != nil {
			reject(err)
			return
		}
		resolve(value)
	}()
	return f
}

// Resolved returns a future that already holds value.
func Resolved[T any](value T) *Future[T] {
	f, resolve, _ := NewPromise[T]()
	resolve(value)
	return f
}

// Rejected returns a future that already failed with err.
func Rejected[T any](err error) *Future[T] {
	f, _, reject := NewPromise[T]()
	reject(err)
	return f
}

// Done returns a channel that is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future is resolved or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result implements Async. It blocks until the future is resolved.
func (f *Future[T]) Result() (any, error) {
	<-f.done
	if f.err != nil {
		return nil, f.err
	}
	return f.value, nil
}
