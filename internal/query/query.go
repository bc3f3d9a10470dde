// Package query drives one logical read or write against an opened
// array: buffer bindings, selection, predicate, layout and the
// submit/status state machine with incomplete-read pagination.
package query

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tuannm99/novatile/internal/buffer"
	"github.com/tuannm99/novatile/internal/condition"
	"github.com/tuannm99/novatile/internal/datatype"
	"github.com/tuannm99/novatile/internal/schema"
	"github.com/tuannm99/novatile/internal/subarray"
)

// Query is not safe for concurrent use: overlapping operations on the same
// Query fail with ErrQueryState. Different queries may share an Array.
type Query struct {
	array   Array
	qtype   Type
	schema  *schema.Schema
	layout  schema.Layout
	sub     *subarray.Subarray
	cond    condition.Condition
	buffers *buffer.Table
	session Session
	pool    *Pool

	busy atomic.Bool

	mu     sync.Mutex
	status Status
	reason StatusReason
	err    error
	rounds int
}

type Option func(*Query)

// WithPool runs SubmitAsync on p instead of the array's or the shared pool.
func WithPool(p *Pool) Option {
	return func(q *Query) { q.pool = p }
}

// New creates a query in the UNINITIALIZED state. The direction follows
// the array's open mode.
func New(arr Array, opts ...Option) (*Query, error) {
	if arr == nil {
		return nil, fmt.Errorf("%w: nil array", ErrQueryState)
	}
	s := arr.Schema()
	q := &Query{
		array:   arr,
		qtype:   arr.QueryType(),
		schema:  s,
		layout:  schema.RowMajor,
		sub:     subarray.New(s),
		buffers: buffer.NewTable(s),
		status:  Uninitialized,
	}
	if q.qtype == Write && s.ArrayType() == schema.Sparse {
		q.layout = schema.Unordered
	}
	if pp, ok := arr.(PoolProvider); ok {
		q.pool = pp.AsyncPool()
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

func (q *Query) Type() Type                     { return q.qtype }
func (q *Query) Array() Array                   { return q.array }
func (q *Query) Schema() *schema.Schema         { return q.schema }
func (q *Query) Layout() schema.Layout          { return q.layout }
func (q *Query) Condition() condition.Condition { return q.cond }

func (q *Query) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.status
}

// StatusDetails explains the last INCOMPLETE status.
func (q *Query) StatusDetails() StatusReason {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.reason
}

// Err returns the error that moved the query to FAILED.
func (q *Query) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

func (q *Query) setStatus(s Status, r StatusReason) {
	q.mu.Lock()
	q.status, q.reason = s, r
	q.mu.Unlock()
}

// acquire rejects overlapping operations on one query.
func (q *Query) acquire() error {
	if !q.busy.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: another operation is running on this query", ErrQueryState)
	}
	return nil
}

func (q *Query) release() { q.busy.Store(false) }

// configurable guards setters that are only legal before the first submit.
func (q *Query) configurable(what string) error {
	if st := q.Status(); st != Uninitialized {
		return fmt.Errorf("%w: cannot set %s on a %s query", ErrQueryState, what, st)
	}
	return nil
}

// SetLayout sets the cell order for results (reads) or input (writes).
func (q *Query) SetLayout(l schema.Layout) error {
	if err := q.acquire(); err != nil {
		return err
	}
	defer q.release()
	if err := q.configurable("layout"); err != nil {
		return err
	}
	if l > schema.Unordered {
		return fmt.Errorf("%w: %s", ErrInvalidLayout, l)
	}
	dense := q.schema.ArrayType() == schema.Dense
	switch {
	case q.qtype == Write && !dense && (l == schema.RowMajor || l == schema.ColMajor):
		return fmt.Errorf("%w: sparse writes need unordered or global-order, got %s", ErrInvalidLayout, l)
	case dense && l == schema.Unordered:
		return fmt.Errorf("%w: unordered is only valid for sparse arrays", ErrInvalidLayout)
	}
	q.layout = l
	return nil
}

// SetSubarray replaces the selection. sa must be built on this query's
// schema.
func (q *Query) SetSubarray(sa *subarray.Subarray) error {
	if err := q.acquire(); err != nil {
		return err
	}
	defer q.release()
	if err := q.configurable("subarray"); err != nil {
		return err
	}
	if sa == nil || sa.Schema() != q.schema {
		return fmt.Errorf("%w: subarray belongs to another schema", subarray.ErrDimensionCountMismatch)
	}
	q.sub = sa.Clone()
	return nil
}

// Subarray returns a copy of the current selection.
func (q *Query) Subarray() *subarray.Subarray { return q.sub.Clone() }

// editSelection applies fn to the live selection while configurable.
func (q *Query) editSelection(fn func(sa *subarray.Subarray) error) error {
	if err := q.acquire(); err != nil {
		return err
	}
	defer q.release()
	if err := q.configurable("ranges"); err != nil {
		return err
	}
	return fn(q.sub)
}

// SetSubarrayValues sets one [start, end] pair per dimension.
func SetSubarrayValues[T datatype.Element](q *Query, pairs ...T) error {
	return q.editSelection(func(sa *subarray.Subarray) error {
		return subarray.SetSubarray(sa, pairs...)
	})
}

// AddRange appends a range on dimension dim.
func AddRange[T datatype.Element](q *Query, dim int, start, end T, stride ...T) error {
	return q.editSelection(func(sa *subarray.Subarray) error {
		return subarray.AddRange(sa, dim, start, end, stride...)
	})
}

// AddRangeByName appends a range on the named dimension.
func AddRangeByName[T datatype.Element](q *Query, name string, start, end T, stride ...T) error {
	return q.editSelection(func(sa *subarray.Subarray) error {
		return subarray.AddRangeByName(sa, name, start, end, stride...)
	})
}

// AddRangeVar appends a range on a string dimension.
func (q *Query) AddRangeVar(dim int, start, end []byte) error {
	return q.editSelection(func(sa *subarray.Subarray) error {
		return sa.AddRangeVar(dim, start, end)
	})
}

// RangeNum reports how many ranges dimension dim holds.
func (q *Query) RangeNum(dim int) (uint64, error) {
	if err := q.acquire(); err != nil {
		return 0, err
	}
	defer q.release()
	return q.sub.RangeNum(dim)
}

// GetRange returns range idx of dimension dim.
func GetRange[T datatype.Element](q *Query, dim int, idx uint64) (start, end, stride T, err error) {
	if err = q.acquire(); err != nil {
		return start, end, stride, err
	}
	defer q.release()
	return subarray.GetRange[T](q.sub, dim, idx)
}

// SetCondition binds the query's single predicate, replacing any previous
// one. Only reads accept a predicate.
func (q *Query) SetCondition(c condition.Condition) error {
	if err := q.acquire(); err != nil {
		return err
	}
	defer q.release()
	if err := q.configurable("condition"); err != nil {
		return err
	}
	if q.qtype != Read {
		return fmt.Errorf("%w: conditions apply to reads only", ErrQueryState)
	}
	if c != nil {
		for _, name := range c.Attributes() {
			if _, _, ok := q.schema.AttributeByName(name); !ok {
				return &schema.FieldError{Name: name}
			}
		}
	}
	q.cond = c
	return nil
}

// bindable guards buffer (re)binding: legal until the query is terminal.
func (q *Query) bindable(fn func(t *buffer.Table) error) error {
	if err := q.acquire(); err != nil {
		return err
	}
	defer q.release()
	if st := q.Status(); st == Completed || st == Failed {
		return fmt.Errorf("%w: cannot bind buffers on a %s query", ErrQueryState, st)
	}
	return fn(q.buffers)
}

// BindFixed binds a fixed-size attribute or dimension.
func BindFixed[T datatype.Element](q *Query, name string, data []T) error {
	return q.bindable(func(t *buffer.Table) error { return buffer.BindFixed(t, name, data) })
}

// BindVar binds a variable-size attribute or dimension. offsets are byte
// offsets into data, one per cell.
func BindVar[T datatype.Element](q *Query, name string, offsets []uint64, data []T) error {
	return q.bindable(func(t *buffer.Table) error { return buffer.BindVar(t, name, offsets, data) })
}

// BindFixedNullable binds a nullable fixed-size attribute.
func BindFixedNullable[T datatype.Element](q *Query, name string, data []T, validity []uint8) error {
	return q.bindable(func(t *buffer.Table) error { return buffer.BindFixedNullable(t, name, data, validity) })
}

// BindVarNullable binds a nullable variable-size attribute.
func BindVarNullable[T datatype.Element](q *Query, name string, offsets []uint64, data []T, validity []uint8) error {
	return q.bindable(func(t *buffer.Table) error {
		return buffer.BindVarNullable(t, name, offsets, data, validity)
	})
}

// ResultElements reports the elements populated for name in the last
// round: offsets, data values and validity bytes.
func (q *Query) ResultElements(name string) (buffer.Elements, error) {
	return q.buffers.ResultElements(name)
}

func (q *Query) ResultBufferElements() map[string]buffer.Elements {
	return q.buffers.ResultBufferElements()
}

func (q *Query) request() *Request {
	return &Request{
		Type:      q.qtype,
		Layout:    q.layout,
		Subarray:  q.sub,
		Condition: q.cond,
		Buffers:   q.buffers,
	}
}
