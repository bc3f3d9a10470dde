package query

import (
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// DefaultAsyncWorkers sizes the shared pool used when an array brings none.
var DefaultAsyncWorkers = 8

// Pool runs SubmitAsync callbacks on background goroutines.
type Pool struct {
	p *ants.Pool
}

func NewPool(size int) (*Pool, error) {
	if size <= 0 {
		size = DefaultAsyncWorkers
	}
	p, err := ants.NewPool(size, ants.WithPanicHandler(func(v any) {
		slog.Error("query: async submit panic", "panic", v)
	}))
	if err != nil {
		return nil, err
	}
	return &Pool{p: p}, nil
}

func (p *Pool) Go(fn func()) error { return p.p.Submit(fn) }

// Release stops the pool. Pending tasks still run.
func (p *Pool) Release() { p.p.Release() }

var (
	defaultPoolOnce sync.Once
	defaultPool     *Pool
	defaultPoolErr  error
)

func sharedPool() (*Pool, error) {
	defaultPoolOnce.Do(func() {
		defaultPool, defaultPoolErr = NewPool(DefaultAsyncWorkers)
	})
	return defaultPool, defaultPoolErr
}
