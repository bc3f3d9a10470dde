package engine

import (
	"context"
	"fmt"

	"github.com/tuannm99/novatile/internal/buffer"
	"github.com/tuannm99/novatile/internal/datatype"
	"github.com/tuannm99/novatile/internal/query"
	"github.com/tuannm99/novatile/internal/schema"
)

// batch is the input of one write round, one column per field.
type batch struct {
	n     uint64
	cols  map[string]*column
	order []string
}

func newBatch() *batch { return &batch{cols: make(map[string]*column)} }

func (b *batch) add(c *column) {
	b.cols[c.name] = c
	b.order = append(b.order, c.name)
}

// merge appends the cells of o, which has the same fields.
func (b *batch) merge(o *batch) {
	if len(b.order) == 0 {
		*b = *o
		return
	}
	for _, name := range b.order {
		c, oc := b.cols[name], o.cols[name]
		base := uint64(len(c.data))
		for _, off := range oc.offsets {
			c.offsets = append(c.offsets, base+off)
		}
		c.data = append(c.data, oc.data...)
		c.validity = append(c.validity, oc.validity...)
	}
	b.n += o.n
}

func (b *batch) permute(perm []uint64) *batch {
	out := newBatch()
	out.n = b.n
	for _, name := range b.order {
		out.add(b.cols[name].permute(perm))
	}
	return out
}

// coords returns the per-dimension values of cell i.
func (b *batch) coords(dims []*schema.Dimension, i uint64) [][]byte {
	out := make([][]byte, len(dims))
	for d, dim := range dims {
		out[d], _ = b.cols[dim.Name()].cell(i)
	}
	return out
}

func (b *batch) fragment(dense bool, region [][2]uint64) *fragment {
	f := &fragment{dense: dense, cellNum: b.n, region: region}
	for _, name := range b.order {
		f.addColumn(b.cols[name])
	}
	return f
}

// writeSession persists one fragment per round, or for global-order writes
// one fragment at Finalize.
type writeSession struct {
	arr     *Array
	written []query.FragmentInfo
	pending *batch
}

var _ query.Session = (*writeSession)(nil)

func (ws *writeSession) Fragments() []query.FragmentInfo { return ws.written }

func (ws *writeSession) Estimate(context.Context, *query.Request, string) (query.Estimate, error) {
	return query.Estimate{}, fmt.Errorf("%w: estimates need a read handle", ErrInvalidMode)
}

func (ws *writeSession) Submit(ctx context.Context, req *query.Request) (query.Result, error) {
	if err := ws.arr.checkWrite(); err != nil {
		return query.Result{}, err
	}
	s := ws.arr.Schema()
	b, err := collect(s, req.Buffers)
	if err != nil {
		return query.Result{}, err
	}

	if s.ArrayType() == schema.Dense {
		region, cells, err := denseRegion(s, req)
		if err != nil {
			return query.Result{}, err
		}
		if req.Layout == schema.GlobalOrder {
			if err := ws.stage(b, cells); err != nil {
				return query.Result{}, err
			}
			consume(req.Buffers)
			return query.Result{Status: query.InProgress}, nil
		}
		if b.n != cells {
			return query.Result{}, errShape("%d cells for a region of %d", b.n, cells)
		}
		if err := ws.persistDense(ctx, s, b, region, req.Layout); err != nil {
			return query.Result{}, err
		}
		consume(req.Buffers)
		return query.Result{Status: query.Completed}, nil
	}

	if err := checkDomain(s, b); err != nil {
		return query.Result{}, err
	}
	if req.Layout == schema.GlobalOrder {
		if err := ws.stage(b, 0); err != nil {
			return query.Result{}, err
		}
		consume(req.Buffers)
		return query.Result{Status: query.InProgress}, nil
	}
	if b.n == 0 {
		consume(req.Buffers)
		return query.Result{Status: query.Completed}, nil
	}
	if !s.AllowsDups() {
		if err := checkUnique(s, b); err != nil {
			return query.Result{}, err
		}
	}
	if err := ws.persistSparse(ctx, s, b); err != nil {
		return query.Result{}, err
	}
	consume(req.Buffers)
	return query.Result{Status: query.Completed}, nil
}

// stage queues global-order input until Finalize. limit bounds the total
// for dense writes.
func (ws *writeSession) stage(b *batch, limit uint64) error {
	if ws.pending == nil {
		ws.pending = newBatch()
	}
	if limit > 0 && ws.pending.n+b.n > limit {
		return errShape("%d cells exceed the region of %d", ws.pending.n+b.n, limit)
	}
	ws.pending.merge(b)
	return nil
}

func (ws *writeSession) Finalize(ctx context.Context, req *query.Request) error {
	if ws.pending == nil || ws.pending.n == 0 {
		return nil
	}
	if err := ws.arr.checkWrite(); err != nil {
		return err
	}
	s := ws.arr.Schema()
	b := ws.pending
	ws.pending = nil

	if s.ArrayType() == schema.Dense {
		region, cells, err := denseRegion(s, req)
		if err != nil {
			return err
		}
		if b.n != cells {
			return errShape("global write supplied %d of %d cells", b.n, cells)
		}
		return ws.persistDense(ctx, s, b, region, schema.GlobalOrder)
	}

	o := newOrderer(s)
	dims := s.Domain().Dimensions()
	prev := b.coords(dims, 0)
	for i := uint64(1); i < b.n; i++ {
		cur := b.coords(dims, i)
		switch c := o.compare(prev, cur, schema.GlobalOrder); {
		case c > 0:
			return fmt.Errorf("%w: cell %d precedes cell %d", ErrUnsortedWrite, i, i-1)
		case c == 0 && !s.AllowsDups():
			return fmt.Errorf("%w: cells %d and %d", ErrDuplicateCoords, i-1, i)
		}
		prev = cur
	}
	return ws.persistSparse(ctx, s, b)
}

func (ws *writeSession) persistDense(ctx context.Context, s *schema.Schema, b *batch, region [][2]uint64, l schema.Layout) error {
	if l != schema.RowMajor && len(region) > 1 {
		b = b.permute(rowMajorPerm(s, region, l))
	}
	info, err := ws.arr.st.persist(ctx, b.fragment(true, region), ws.arr.fixedTS, regionDomain(s, region))
	if err != nil {
		return err
	}
	ws.written = append(ws.written, info)
	return nil
}

func (ws *writeSession) persistSparse(ctx context.Context, s *schema.Schema, b *batch) error {
	dims := s.Domain().Dimensions()
	ned := make([][2][]byte, len(dims))
	for i := range b.n {
		for d, v := range b.coords(dims, i) {
			dt := dims[d].Type()
			if i == 0 || datatype.Compare(dt, v, ned[d][0]) < 0 {
				ned[d][0] = v
			}
			if i == 0 || datatype.Compare(dt, v, ned[d][1]) > 0 {
				ned[d][1] = v
			}
		}
	}
	info, err := ws.arr.st.persist(ctx, b.fragment(false, nil), ws.arr.fixedTS, ned)
	if err != nil {
		return err
	}
	ws.written = append(ws.written, info)
	return nil
}

// rowMajorPerm maps row-major region positions to input positions of a
// write laid out in l.
func rowMajorPerm(s *schema.Schema, region [][2]uint64, l schema.Layout) []uint64 {
	axes := make([]*axis, len(region))
	cells := uint64(1)
	for i, r := range region {
		axes[i] = newAxis([]segment{{start: r[0], n: r[1] - r[0] + 1, step: 1}})
		cells *= r[1] - r[0] + 1
	}
	box := &fragment{region: region}
	perm := make([]uint64, cells)
	w := newWalker(s, axes, l)
	for p := uint64(0); w.next(); p++ {
		rm, _ := box.contains(w.ords)
		perm[rm] = p
	}
	return perm
}

// denseRegion reads the single-range-per-dimension write region.
func denseRegion(s *schema.Schema, req *query.Request) ([][2]uint64, uint64, error) {
	dims := s.Domain().Dimensions()
	region := make([][2]uint64, len(dims))
	for i, d := range dims {
		ranges := req.Subarray.Ranges(i)
		if len(ranges) != 1 || ranges[0].Stride != nil {
			return nil, 0, errShape("dense writes need one unstrided range on %q", d.Name())
		}
		lo, err := datatype.Ordinal(d.Type(), ranges[0].Start)
		if err != nil {
			return nil, 0, err
		}
		hi, err := datatype.Ordinal(d.Type(), ranges[0].End)
		if err != nil {
			return nil, 0, err
		}
		region[i] = [2]uint64{lo, hi}
	}
	cells, err := req.Subarray.CellNum()
	if err != nil {
		return nil, 0, err
	}
	return region, cells, nil
}

// collect copies the bound input into columns. Sparse coordinates bound as
// CoordsName are split into one column per dimension.
func collect(s *schema.Schema, t *buffer.Table) (*batch, error) {
	bindings := t.Bindings()
	if len(bindings) == 0 {
		return nil, fmt.Errorf("%w: no buffers bound", buffer.ErrBufferNotBound)
	}
	n := bindings[0].CellCapacity()
	for _, b := range bindings[1:] {
		if c := b.CellCapacity(); c != n {
			return nil, errShape("%q holds %d cells, %q holds %d", b.Field.Name, c, bindings[0].Field.Name, n)
		}
	}

	dense := s.ArrayType() == schema.Dense
	dims := s.Domain().Dimensions()
	out := newBatch()
	out.n = n

	var coords *buffer.Binding
	dimCols := 0
	for _, b := range bindings {
		f := b.Field
		switch {
		case f.IsDim && dense:
			return nil, errShape("dense writes take attribute buffers only, got %q", f.Name)
		case f.IsCoords:
			coords = b
			continue
		case f.IsDim:
			dimCols++
		}
		col := newColumn(f.Name, f.IsVar(), f.Nullable, uint64(f.CellValNum)*f.Type.Size())
		if f.IsVar() {
			col.width = 0
		}
		for i := range n {
			v, ok, err := b.Cell(i)
			if err != nil {
				return nil, err
			}
			col.append(v, ok)
		}
		out.add(col)
	}

	if coords != nil {
		if dimCols > 0 {
			return nil, errShape("bind either %s or dimension buffers, not both", schema.CoordsName)
		}
		for d, dim := range dims {
			w := dim.Type().Size()
			col := newColumn(dim.Name(), false, false, w)
			for i := range n {
				v, _, err := coords.Cell(i)
				if err != nil {
					return nil, err
				}
				col.append(v[uint64(d)*w:uint64(d+1)*w], true)
			}
			out.add(col)
		}
	}
	return out, nil
}

func consume(t *buffer.Table) {
	for _, b := range t.Bindings() {
		b.Consume()
	}
}

func checkDomain(s *schema.Schema, b *batch) error {
	dims := s.Domain().Dimensions()
	for i := range b.n {
		for d, v := range b.coords(dims, i) {
			if !dims[d].Contains(v) {
				return fmt.Errorf("%w: %s = %s", ErrOutOfDomain, dims[d].Name(), datatype.Format(dims[d].Type(), v))
			}
		}
	}
	return nil
}

func checkUnique(s *schema.Schema, b *batch) error {
	dims := s.Domain().Dimensions()
	seen := make(map[string]struct{}, b.n)
	var scratch []byte
	for i := range b.n {
		scratch = coordKey(scratch, b.coords(dims, i))
		if _, dup := seen[string(scratch)]; dup {
			return fmt.Errorf("%w: cell %d", ErrDuplicateCoords, i)
		}
		seen[string(scratch)] = struct{}{}
	}
	return nil
}
