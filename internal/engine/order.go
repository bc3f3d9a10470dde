package engine

import (
	"math"

	"github.com/tuannm99/novatile/internal/datatype"
	"github.com/tuannm99/novatile/internal/schema"
)

// orderer compares cells by coordinates under a layout.
type orderer struct {
	dims      []*schema.Dimension
	lower     []uint64 // ordinal of the domain lower bound, integer dims
	extent    []uint64 // tile extent in ordinals, integer dims
	tileOrder schema.Layout
	cellOrder schema.Layout
}

func newOrderer(s *schema.Schema) *orderer {
	dims := s.Domain().Dimensions()
	o := &orderer{
		dims:      dims,
		lower:     make([]uint64, len(dims)),
		extent:    make([]uint64, len(dims)),
		tileOrder: s.TileOrder(),
		cellOrder: s.CellOrder(),
	}
	for i, d := range dims {
		if !d.Type().IsInteger() {
			continue
		}
		o.lower[i], _ = datatype.Ordinal(d.Type(), d.Lower())
		o.extent[i] = extentOf(d)
	}
	return o
}

// extentOf is the tile extent of an integer dimension in ordinals. A
// missing extent makes the whole domain one tile.
func extentOf(d *schema.Dimension) uint64 {
	if ext := d.Extent(); len(ext) > 0 {
		e, _ := datatype.Ordinal(d.Type(), ext)
		z, _ := datatype.Ordinal(d.Type(), make([]byte, len(ext)))
		if e > z {
			return e - z
		}
	}
	span, full, err := d.Span()
	if err != nil || full || span == 0 {
		return math.MaxUint64
	}
	return span
}

func (o *orderer) tile(i int, v []byte) uint64 {
	if o.extent[i] == 0 {
		return 0
	}
	x, _ := datatype.Ordinal(o.dims[i].Type(), v)
	return (x - o.lower[i]) / o.extent[i]
}

// dimOrder lists dimension indices from slowest to fastest varying.
func dimOrder(n int, l schema.Layout) []int {
	out := make([]int, n)
	for i := range out {
		if l == schema.ColMajor {
			out[i] = n - 1 - i
		} else {
			out[i] = i
		}
	}
	return out
}

func (o *orderer) compareCells(a, b [][]byte, l schema.Layout) int {
	for _, i := range dimOrder(len(o.dims), l) {
		if c := datatype.Compare(o.dims[i].Type(), a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

// compare orders a and b by layout. Global order compares tiles first,
// then cells inside the tile.
func (o *orderer) compare(a, b [][]byte, l schema.Layout) int {
	if l != schema.GlobalOrder {
		return o.compareCells(a, b, l)
	}
	for _, i := range dimOrder(len(o.dims), o.tileOrder) {
		ta, tb := o.tile(i, a[i]), o.tile(i, b[i])
		if ta < tb {
			return -1
		}
		if ta > tb {
			return 1
		}
	}
	return o.compareCells(a, b, o.cellOrder)
}
