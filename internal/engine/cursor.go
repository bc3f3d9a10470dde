package engine

import (
	"math"
	"slices"
	"sort"

	"github.com/tuannm99/novatile/internal/alias/bx"
	"github.com/tuannm99/novatile/internal/datatype"
	"github.com/tuannm99/novatile/internal/schema"
	"github.com/tuannm99/novatile/internal/subarray"
)

// row is one result cell. A nil frag means no fragment wrote the cell.
type row struct {
	ords   []uint64
	coords [][]byte
	frag   *fragment
	idx    uint64
}

type cursor interface {
	// next returns the following cell. The row stays valid until the next
	// call.
	next() (*row, bool)
}

// segment is n ordinals start, start+step, ...
type segment struct {
	start, n, step uint64
}

// axis is the ordered list of ordinals selected on one dimension.
type axis struct {
	segs   []segment
	prefix []uint64 // prefix[i] = positions before segs[i]
	hint   int
}

func newAxis(segs []segment) *axis {
	a := &axis{segs: segs, prefix: make([]uint64, len(segs)+1)}
	for i, s := range segs {
		a.prefix[i+1] = a.prefix[i] + s.n
	}
	return a
}

func (a *axis) len() uint64 { return a.prefix[len(a.segs)] }

func (a *axis) at(pos uint64) uint64 {
	i := a.hint
	if pos < a.prefix[i] || pos >= a.prefix[i+1] {
		i = sort.Search(len(a.segs), func(k int) bool { return a.prefix[k+1] > pos })
		a.hint = i
	}
	s := a.segs[i]
	return s.start + (pos-a.prefix[i])*s.step
}

// group is a run of axis positions falling into one tile.
type group struct {
	from, n uint64
}

// tileGroups splits the axis at tile boundaries.
func (a *axis) tileGroups(lower, extent uint64) []group {
	var (
		out  []group
		pos  uint64
		last = uint64(math.MaxUint64)
	)
	for _, s := range a.segs {
		for k := uint64(0); k < s.n; {
			ord := s.start + k*s.step
			t := (ord - lower) / extent
			left := extent - 1 - (ord-lower)%extent // ordinals to the tile end
			cnt := min(s.n-k, left/s.step+1)
			if len(out) > 0 && t == last && out[len(out)-1].from+out[len(out)-1].n == pos {
				out[len(out)-1].n += cnt
			} else {
				out = append(out, group{from: pos, n: cnt})
			}
			last = t
			pos += cnt
			k += cnt
		}
	}
	return out
}

// selectionAxes turns the subarray ranges of integer dimensions into
// axes. A cell selected by several ranges is visited once. Global order
// visits ranges sorted by start.
func selectionAxes(sa *subarray.Subarray, dims []*schema.Dimension, sorted bool) ([]*axis, error) {
	out := make([]*axis, len(dims))
	for i := range dims {
		spans, err := sa.Spans(i)
		if err != nil {
			return nil, err
		}
		segs := make([]segment, len(spans))
		for j, sp := range spans {
			segs[j] = segment{start: sp.Start, n: sp.Count, step: sp.Step}
		}
		if sorted {
			slices.SortStableFunc(segs, func(a, b segment) int {
				switch {
				case a.start < b.start:
					return -1
				case a.start > b.start:
					return 1
				}
				return 0
			})
		}
		out[i] = newAxis(segs)
	}
	return out, nil
}

// odometer steps through every position tuple of a box, the dimension at
// order[len-1] varying fastest.
type odometer struct {
	n, pos  []uint64
	order   []int
	started bool
	done    bool
}

func newOdometer(n []uint64, l schema.Layout) *odometer {
	return &odometer{n: n, pos: make([]uint64, len(n)), order: dimOrder(len(n), l)}
}

func (o *odometer) next() bool {
	if o.done {
		return false
	}
	if !o.started {
		o.started = true
		for _, n := range o.n {
			if n == 0 {
				o.done = true
			}
		}
		return !o.done
	}
	for k := len(o.order) - 1; k >= 0; k-- {
		d := o.order[k]
		o.pos[d]++
		if o.pos[d] < o.n[d] {
			return true
		}
		o.pos[d] = 0
	}
	o.done = true
	return false
}

// walker yields ordinal tuples of a dense selection in a layout.
type walker struct {
	axes []*axis
	ords []uint64

	plain *odometer

	groups [][]group
	outer  *odometer
	inner  *odometer
	cell   schema.Layout
}

func newWalker(s *schema.Schema, axes []*axis, l schema.Layout) *walker {
	w := &walker{axes: axes, ords: make([]uint64, len(axes))}
	if l != schema.GlobalOrder {
		n := make([]uint64, len(axes))
		for i, a := range axes {
			n[i] = a.len()
		}
		w.plain = newOdometer(n, l)
		return w
	}
	o := newOrderer(s)
	w.groups = make([][]group, len(axes))
	counts := make([]uint64, len(axes))
	for i, a := range axes {
		w.groups[i] = a.tileGroups(o.lower[i], o.extent[i])
		counts[i] = uint64(len(w.groups[i]))
	}
	w.outer = newOdometer(counts, s.TileOrder())
	w.cell = s.CellOrder()
	return w
}

func (w *walker) next() bool {
	if w.plain != nil {
		if !w.plain.next() {
			return false
		}
		for i, a := range w.axes {
			w.ords[i] = a.at(w.plain.pos[i])
		}
		return true
	}
	for w.inner == nil || !w.inner.next() {
		if !w.outer.next() {
			return false
		}
		sizes := make([]uint64, len(w.axes))
		for i := range w.axes {
			sizes[i] = w.groups[i][w.outer.pos[i]].n
		}
		w.inner = newOdometer(sizes, w.cell)
	}
	for i, a := range w.axes {
		w.ords[i] = a.at(w.groups[i][w.outer.pos[i]].from + w.inner.pos[i])
	}
	return true
}

// denseCursor walks the selection lazily and resolves each cell against
// the newest dense fragment covering it.
type denseCursor struct {
	w     *walker
	dims  []*schema.Dimension
	frags []*fragment // newest first
	r     row
}

func newDenseCursor(s *schema.Schema, sa *subarray.Subarray, l schema.Layout, frags []*fragment) (*denseCursor, error) {
	dims := s.Domain().Dimensions()
	axes, err := selectionAxes(sa, dims, l == schema.GlobalOrder)
	if err != nil {
		return nil, err
	}
	c := &denseCursor{
		w:    newWalker(s, axes, l),
		dims: dims,
		r: row{
			ords:   make([]uint64, len(dims)),
			coords: make([][]byte, len(dims)),
		},
	}
	for i, d := range dims {
		c.r.coords[i] = make([]byte, d.Type().Size())
	}
	for i := len(frags) - 1; i >= 0; i-- {
		if frags[i].dense {
			c.frags = append(c.frags, frags[i])
		}
	}
	return c, nil
}

func (c *denseCursor) next() (*row, bool) {
	if !c.w.next() {
		return nil, false
	}
	copy(c.r.ords, c.w.ords)
	for i, d := range c.dims {
		datatype.PutOrdinal(d.Type(), c.r.coords[i], c.r.ords[i])
	}
	c.r.frag, c.r.idx = nil, 0
	for _, f := range c.frags {
		if idx, ok := f.contains(c.r.ords); ok {
			c.r.frag, c.r.idx = f, idx
			break
		}
	}
	return &c.r, true
}

// sparseCursor serves cells materialized from sparse fragments.
type sparseCursor struct {
	rows []row
	i    int
}

func (c *sparseCursor) next() (*row, bool) {
	if c.i >= len(c.rows) {
		return nil, false
	}
	c.i++
	return &c.rows[c.i-1], true
}

func coordKey(scratch []byte, coords [][]byte) []byte {
	scratch = scratch[:0]
	for _, c := range coords {
		scratch = bx.AppendBytes(scratch, c)
	}
	return scratch
}

// newSparseCursor collects selected cells from frags (oldest first). Unless
// the schema allows duplicates, a newer cell replaces an older one at the
// same coordinates.
func newSparseCursor(s *schema.Schema, sa *subarray.Subarray, l schema.Layout, frags []*fragment) (*sparseCursor, error) {
	dims := s.Domain().Dimensions()
	dedupe := !s.AllowsDups()

	var (
		rows    []row
		alive   []bool
		seen    = make(map[string]int)
		scratch []byte
	)
	for _, f := range frags {
		if f.dense {
			continue
		}
		cols := make([]*column, len(dims))
		for i, d := range dims {
			c, ok := f.cols[d.Name()]
			if !ok {
				return nil, corrupt("%s: missing dimension %q", f.rec.Name, d.Name())
			}
			cols[i] = c
		}
		for idx := range f.cellNum {
			coords := make([][]byte, len(dims))
			for i, c := range cols {
				coords[i], _ = c.cell(idx)
			}
			if !sa.Contains(coords) {
				continue
			}
			if dedupe {
				scratch = coordKey(scratch, coords)
				if prev, ok := seen[string(scratch)]; ok {
					alive[prev] = false
				}
				seen[string(scratch)] = len(rows)
			}
			rows = append(rows, row{coords: coords, frag: f, idx: idx})
			alive = append(alive, true)
		}
	}

	out := rows[:0]
	for i := range rows {
		if alive[i] {
			out = append(out, rows[i])
		}
	}
	if l != schema.Unordered {
		o := newOrderer(s)
		slices.SortStableFunc(out, func(a, b row) int { return o.compare(a.coords, b.coords, l) })
	}
	return &sparseCursor{rows: out}, nil
}
