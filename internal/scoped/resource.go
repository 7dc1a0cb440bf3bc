package scoped

import (
	"errors"
	"sync"
)

// errReleased is returned by Take when the resource has already been released.
var errReleased = errors.New("resource already released")

// Resource owns a value that must be released exactly once: an OS handle,
// a loaded module, an open file. Close is idempotent, so it is safe to
// defer it and also call it early on a success path.
type Resource[T any] struct {
	// value is the owned resource.
	value T
	// release frees value; nil means nothing to free.
	release func(T) error
	// once guards release so it runs at most once.
	once sync.Once
	// released is set after release ran or ownership was taken.
	released bool
	// mu protects released.
	mu sync.Mutex
}

// New wraps value with its release function.
func New[T any](value T, release func(T) error) *Resource[T] {
	return &Resource[T]{
		value:   value,
		release: release,
	}
}

// Get returns the owned value. It stays valid until Close or Take.
func (r *Resource[T]) Get() T {
	return r.value
}

// Close releases the value. Subsequent calls return nil.
func (r *Resource[T]) Close() error {
	if r == nil {
		return nil
	}

	var err error

	r.once.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		if r.released {
			return
		}

		r.released = true

		if r.release != nil {
			err = r.release(r.value)
		}
	})

	return err
}

// Take transfers ownership of the value to the caller; Close becomes a no-op.
func (r *Resource[T]) Take() (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		var zero T
		return zero, errReleased
	}

	r.released = true

	return r.value, nil
}
