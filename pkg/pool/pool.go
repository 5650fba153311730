package pool

import (
	"fmt"
	"sync"
)

// Resettable values are reset before they go back into a Pool.
type Resettable interface {
	Reset()
}

// Pool is a typed sync.Pool. The constructor is checked once up front so
// Get never needs to handle a nil or mistyped value.
type Pool[T any] struct {
	pool sync.Pool
}

func NewLitePool[T any](newFn func() T) (*Pool[T], error) {
	if newFn == nil {
		return nil, fmt.Errorf("pool: constructor must not be nil")
	}
	if any(newFn()) == nil {
		return nil, fmt.Errorf("pool: constructor returned nil")
	}
	return &Pool[T]{
		pool: sync.Pool{New: func() any { return newFn() }},
	}, nil
}

func (p *Pool[T]) Get() T {
	//nolint:forcetypeassert // constructor validated in NewLitePool
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(v T) {
	if r, ok := any(v).(Resettable); ok {
		r.Reset()
	}
	p.pool.Put(v)
}

// NewBufferPool pools fixed size byte buffers for stream relaying.
func NewBufferPool(size int) (*Pool[*[]byte], error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool: buffer size must be positive, got %d", size)
	}
	return NewLitePool(func() *[]byte {
		buf := make([]byte, size)
		return &buf
	})
}
