package results

import "context"

// Future is the pending result of an ...Async call. The operation runs on
// its own goroutine and observes the context it was started with.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

func goAsync[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.value, f.err = fn()
	}()
	return f
}

// Done is closed once the operation finishes.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the operation finishes or ctx is done. Giving up on
// ctx does not stop the operation; cancel the context it was started with
// for that.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Wait blocks until the operation finishes.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.value, f.err
}
