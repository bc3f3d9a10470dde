package engine

import (
	"context"
	"fmt"

	"github.com/tuannm99/novatile/internal/buffer"
	"github.com/tuannm99/novatile/internal/condition"
	"github.com/tuannm99/novatile/internal/query"
	"github.com/tuannm99/novatile/internal/schema"
)

// ctxCheckEvery bounds how many cells are produced between context checks.
const ctxCheckEvery = 4096

// readSession streams cells into the caller's buffers across rounds. A
// cell that did not fit is kept and emitted first in the next round.
type readSession struct {
	arr     *Array
	frags   []*fragment // oldest first
	loaded  bool
	cur     cursor
	pending *row
	done    bool
}

func (rs *readSession) load(ctx context.Context) error {
	if rs.loaded {
		return nil
	}
	frags, err := rs.arr.st.load(ctx, rs.arr.snapshot())
	if err != nil {
		return err
	}
	rs.frags, rs.loaded = frags, true
	return nil
}

func (rs *readSession) newCursor(req *query.Request) (cursor, error) {
	s := rs.arr.Schema()
	if s.ArrayType() == schema.Dense {
		return newDenseCursor(s, req.Subarray, req.Layout, rs.frags)
	}
	return newSparseCursor(s, req.Subarray, req.Layout, rs.frags)
}

type accessor func(r *row) ([]byte, bool)

func newAccessor(s *schema.Schema, f schema.Field) accessor {
	switch {
	case f.IsCoords:
		var buf []byte
		return func(r *row) ([]byte, bool) {
			buf = buf[:0]
			for _, c := range r.coords {
				buf = append(buf, c...)
			}
			return buf, true
		}
	case f.IsDim:
		_, i, _ := s.Domain().DimensionByName(f.Name)
		return func(r *row) ([]byte, bool) { return r.coords[i], true }
	}
	a, _, _ := s.AttributeByName(f.Name)
	fill, valid := a.FillValue(), !a.Nullable()
	return func(r *row) ([]byte, bool) {
		if r.frag != nil {
			if c, ok := r.frag.cols[f.Name]; ok {
				return c.cell(r.idx)
			}
		}
		return fill, valid
	}
}

// filter returns a predicate over rows, or nil without a condition.
func filter(s *schema.Schema, cond condition.Condition) func(*row) bool {
	if cond == nil {
		return nil
	}
	accs := make(map[string]accessor)
	for _, name := range cond.Attributes() {
		if f, err := s.Field(name); err == nil {
			accs[name] = newAccessor(s, f)
		}
	}
	var cur *row
	get := func(attr string) ([]byte, bool) {
		acc, ok := accs[attr]
		if !ok {
			return nil, false
		}
		return acc(cur)
	}
	return func(r *row) bool {
		cur = r
		return cond.Evaluate(get)
	}
}

func (rs *readSession) Submit(ctx context.Context, req *query.Request) (query.Result, error) {
	if rs.done {
		return query.Result{Status: query.Completed}, nil
	}
	if err := rs.arr.check(); err != nil {
		return query.Result{}, err
	}
	if err := rs.load(ctx); err != nil {
		return query.Result{}, err
	}
	if rs.cur == nil {
		cur, err := rs.newCursor(req)
		if err != nil {
			return query.Result{}, err
		}
		rs.cur = cur
	}

	s := rs.arr.Schema()
	bindings := req.Buffers.Bindings()
	accs := make([]accessor, len(bindings))
	for i, b := range bindings {
		accs[i] = newAccessor(s, b.Field)
	}
	keep := filter(s, req.Condition)
	vals := make([][]byte, len(bindings))
	valid := make([]bool, len(bindings))

	for n := 0; ; n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return query.Result{}, err
			}
		}
		r := rs.pending
		rs.pending = nil
		if r == nil {
			var ok bool
			if r, ok = rs.cur.next(); !ok {
				rs.done = true
				return query.Result{Status: query.Completed}, nil
			}
		}
		if keep != nil && !keep(r) {
			continue
		}
		if !fitsAll(bindings, accs, r, vals, valid) {
			rs.pending = r
			return query.Result{Status: query.Incomplete, Reason: query.ReasonUserBufferSize}, nil
		}
		for i, b := range bindings {
			if err := b.Append(vals[i], valid[i]); err != nil {
				return query.Result{}, err
			}
		}
	}
}

// fitsAll resolves r for every binding and reports whether all of them
// have room for it. Cells are never split across rounds.
func fitsAll(bindings []*buffer.Binding, accs []accessor, r *row, vals [][]byte, valid []bool) bool {
	for i, b := range bindings {
		vals[i], valid[i] = accs[i](r)
		if !b.Fits(vals[i]) {
			return false
		}
	}
	return true
}

func (rs *readSession) Finalize(context.Context, *query.Request) error { return nil }

func (rs *readSession) Fragments() []query.FragmentInfo { return nil }

// Estimate sizes the full result of name under the current selection and
// condition. Dense fixed fields without a condition are computed directly.
func (rs *readSession) Estimate(ctx context.Context, req *query.Request, name string) (query.Estimate, error) {
	s := rs.arr.Schema()
	f, err := s.Field(name)
	if err != nil {
		return query.Estimate{}, err
	}
	if s.ArrayType() == schema.Dense && req.Condition == nil && !f.IsVar() {
		cells, err := req.Subarray.CellNum()
		if err != nil {
			return query.Estimate{}, err
		}
		est := query.Estimate{Data: cells * uint64(f.CellValNum) * f.Type.Size()}
		if f.Nullable {
			est.Validity = cells
		}
		return est, nil
	}

	if err := rs.load(ctx); err != nil {
		return query.Estimate{}, err
	}
	cur, err := rs.newCursor(req)
	if err != nil {
		return query.Estimate{}, err
	}
	acc := newAccessor(s, f)
	keep := filter(s, req.Condition)

	var est query.Estimate
	for n := 0; ; n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return query.Estimate{}, err
			}
		}
		r, ok := cur.next()
		if !ok {
			break
		}
		if keep != nil && !keep(r) {
			continue
		}
		v, _ := acc(r)
		est.Data += uint64(len(v))
		if f.IsVar() {
			est.Offsets += 8
		}
		if f.Nullable {
			est.Validity++
		}
	}
	return est, nil
}

var _ query.Session = (*readSession)(nil)

func errShape(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrWriteShape, fmt.Sprintf(format, args...))
}
