package locking

import "sync/atomic"

// RefCount counts the holders of a shared array state. It starts with one
// holder; the state is torn down when Release reports the last one left.
type RefCount struct {
	n atomic.Int32
}

func NewRefCount() *RefCount {
	r := &RefCount{}
	r.n.Store(1)
	return r
}

func (r *RefCount) Retain() { r.n.Add(1) }

// Release drops one holder and reports whether it was the last.
func (r *RefCount) Release() bool {
	n := r.n.Add(-1)
	if n < 0 {
		panic("locking: release without a matching retain")
	}
	return n == 0
}

func (r *RefCount) Holders() int32 { return r.n.Load() }
