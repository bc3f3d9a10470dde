// Package subarray selects the cells a query touches: per dimension, a
// list of inclusive ranges whose union is the selection.
package subarray

import (
	"bytes"
	"errors"
	"fmt"
	"math/bits"

	"github.com/tuannm99/novatile/internal/datatype"
	"github.com/tuannm99/novatile/internal/schema"
)

var (
	ErrDimensionCountMismatch = errors.New("subarray: dimension count mismatch")
	ErrInvalidRange           = errors.New("subarray: invalid range")
	ErrDimensionNotFound      = errors.New("subarray: dimension not found")
)

// Range is an inclusive interval on one dimension. Stride is nil when
// every cell in the interval is selected.
type Range struct {
	Start  []byte
	End    []byte
	Stride []byte
}

type Subarray struct {
	schema *schema.Schema
	ranges [][]Range
	// implicit[i] is true while dimension i still holds the default
	// full-domain range.
	implicit []bool
	cellNum  *uint64
}

// New selects the whole domain of s.
func New(s *schema.Schema) *Subarray {
	dom := s.Domain()
	sa := &Subarray{
		schema:   s,
		ranges:   make([][]Range, dom.NDim()),
		implicit: make([]bool, dom.NDim()),
	}
	for i, dim := range dom.Dimensions() {
		if !dim.IsVar() {
			sa.ranges[i] = []Range{{Start: dim.Lower(), End: dim.Upper()}}
		}
		sa.implicit[i] = true
	}
	return sa
}

func (sa *Subarray) Schema() *schema.Schema { return sa.schema }
func (sa *Subarray) NDim() int              { return len(sa.ranges) }

// IsDefault reports whether dimension i still selects its full domain.
func (sa *Subarray) IsDefault(i int) bool {
	return i >= 0 && i < len(sa.implicit) && sa.implicit[i]
}

// SetSubarray replaces every range with one [start, end] pair per
// dimension, given in dimension order.
func SetSubarray[T datatype.Element](sa *Subarray, pairs ...T) error {
	dom := sa.schema.Domain()
	if len(pairs) != 2*dom.NDim() {
		return fmt.Errorf("%w: got %d values for %d dimensions", ErrDimensionCountMismatch, len(pairs), dom.NDim())
	}
	next := make([][]Range, dom.NDim())
	for i := range dom.NDim() {
		r, err := sa.makeRange(i, datatype.Of[T](), datatype.Encode(pairs[2*i]), datatype.Encode(pairs[2*i+1]), nil)
		if err != nil {
			return err
		}
		next[i] = []Range{r}
	}
	sa.ranges = next
	for i := range sa.implicit {
		sa.implicit[i] = false
	}
	sa.cellNum = nil
	_, _ = sa.CellNum()
	return nil
}

// AddRange appends a range on dimension dim. The first explicit range
// replaces the default full-domain range. A zero or absent stride selects
// every cell.
func AddRange[T datatype.Element](sa *Subarray, dim int, start, end T, stride ...T) error {
	var st []byte
	if len(stride) > 0 {
		st = datatype.Encode(stride[0])
	}
	return sa.AddRangeRaw(dim, datatype.Of[T](), datatype.Encode(start), datatype.Encode(end), st)
}

// AddRangeByName is AddRange addressed by dimension name.
func AddRangeByName[T datatype.Element](sa *Subarray, name string, start, end T, stride ...T) error {
	_, idx, ok := sa.schema.Domain().DimensionByName(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrDimensionNotFound, name)
	}
	return AddRange(sa, idx, start, end, stride...)
}

// AddRangeRaw appends a range given as raw values carried in a buffer of
// type buf.
func (sa *Subarray) AddRangeRaw(dim int, buf datatype.Datatype, start, end, stride []byte) error {
	r, err := sa.makeRange(dim, buf, start, end, stride)
	if err != nil {
		return err
	}
	sa.push(dim, r)
	return nil
}

// AddRangeVar appends a [start, end] range on a string dimension.
func (sa *Subarray) AddRangeVar(dim int, start, end []byte) error {
	d := sa.schema.Domain().Dimension(dim)
	if d == nil {
		return fmt.Errorf("%w: dimension index %d", ErrInvalidRange, dim)
	}
	if !d.IsVar() {
		return fmt.Errorf("%w: dimension %q is not variable-sized", datatype.ErrTypeMismatch, d.Name())
	}
	if bytes.Compare(start, end) > 0 {
		return fmt.Errorf("%w: start %q after end %q on %q", ErrInvalidRange, start, end, d.Name())
	}
	sa.push(dim, Range{Start: clone(start), End: clone(end)})
	return nil
}

// AddRangeVarByName is AddRangeVar addressed by dimension name.
func (sa *Subarray) AddRangeVarByName(name string, start, end []byte) error {
	_, idx, ok := sa.schema.Domain().DimensionByName(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrDimensionNotFound, name)
	}
	return sa.AddRangeVar(idx, start, end)
}

func (sa *Subarray) push(dim int, r Range) {
	if sa.implicit[dim] {
		sa.ranges[dim] = nil
		sa.implicit[dim] = false
	}
	sa.ranges[dim] = append(sa.ranges[dim], r)
	sa.cellNum = nil
}

func (sa *Subarray) makeRange(dim int, buf datatype.Datatype, start, end, stride []byte) (Range, error) {
	d := sa.schema.Domain().Dimension(dim)
	if d == nil {
		return Range{}, fmt.Errorf("%w: dimension index %d", ErrInvalidRange, dim)
	}
	if d.IsVar() {
		return Range{}, fmt.Errorf("%w: dimension %q needs AddRangeVar", datatype.ErrTypeMismatch, d.Name())
	}
	if err := datatype.Check(buf, d.Type()); err != nil {
		return Range{}, fmt.Errorf("dimension %q: %w", d.Name(), err)
	}
	dt := d.Type()
	if datatype.IsNaN(dt, start) || datatype.IsNaN(dt, end) {
		return Range{}, fmt.Errorf("%w: NaN bound on %q", ErrInvalidRange, d.Name())
	}
	if datatype.Compare(dt, start, end) > 0 {
		return Range{}, fmt.Errorf("%w: start %s after end %s on %q",
			ErrInvalidRange, datatype.Format(dt, start), datatype.Format(dt, end), d.Name())
	}
	if !d.Contains(start) || !d.Contains(end) {
		return Range{}, fmt.Errorf("%w: [%s, %s] outside domain of %q",
			ErrInvalidRange, datatype.Format(dt, start), datatype.Format(dt, end), d.Name())
	}
	r := Range{Start: clone(start), End: clone(end)}
	if stride != nil && !isZero(stride) {
		if !dt.IsInteger() {
			return Range{}, fmt.Errorf("%w: stride on non-integer dimension %q", ErrInvalidRange, d.Name())
		}
		if datatype.Compare(dt, stride, make([]byte, len(stride))) < 0 {
			return Range{}, fmt.Errorf("%w: negative stride on %q", ErrInvalidRange, d.Name())
		}
		r.Stride = clone(stride)
	}
	return r, nil
}

// RangeNum is the number of ranges on dimension dim.
func (sa *Subarray) RangeNum(dim int) (uint64, error) {
	if dim < 0 || dim >= len(sa.ranges) {
		return 0, fmt.Errorf("%w: dimension index %d", ErrInvalidRange, dim)
	}
	return uint64(len(sa.ranges[dim])), nil
}

// Range returns range idx of dimension dim.
func (sa *Subarray) Range(dim int, idx uint64) (Range, error) {
	n, err := sa.RangeNum(dim)
	if err != nil {
		return Range{}, err
	}
	if idx >= n {
		return Range{}, fmt.Errorf("%w: range index %d of %d", ErrInvalidRange, idx, n)
	}
	return sa.ranges[dim][idx], nil
}

// GetRange returns range idx of dimension dim decoded as T.
func GetRange[T datatype.Element](sa *Subarray, dim int, idx uint64) (start, end, stride T, err error) {
	r, err := sa.Range(dim, idx)
	if err != nil {
		return start, end, stride, err
	}
	if err := datatype.Check(datatype.Of[T](), sa.schema.Domain().Dimension(dim).Type()); err != nil {
		return start, end, stride, err
	}
	start = datatype.Decode[T](r.Start)[0]
	end = datatype.Decode[T](r.End)[0]
	if r.Stride != nil {
		stride = datatype.Decode[T](r.Stride)[0]
	}
	return start, end, stride, nil
}

// RangeVar returns range idx of a string dimension.
func (sa *Subarray) RangeVar(dim int, idx uint64) (start, end []byte, err error) {
	r, err := sa.Range(dim, idx)
	if err != nil {
		return nil, nil, err
	}
	return r.Start, r.End, nil
}

// Ranges returns the ranges of dimension dim.
func (sa *Subarray) Ranges(dim int) []Range {
	if dim < 0 || dim >= len(sa.ranges) {
		return nil
	}
	return append([]Range(nil), sa.ranges[dim]...)
}

// CellNum is the number of cells addressed: the product over dimensions
// of the union of the ranges. A cell covered by two ranges counts once.
func (sa *Subarray) CellNum() (uint64, error) {
	if sa.cellNum != nil {
		return *sa.cellNum, nil
	}
	total := uint64(1)
	for i := range sa.ranges {
		spans, err := sa.Spans(i)
		if err != nil {
			return 0, err
		}
		var sum uint64
		for _, sp := range spans {
			sum += sp.Count
		}
		hi, lo := bits.Mul64(total, sum)
		if hi != 0 {
			return 0, fmt.Errorf("%w: cell count overflows uint64", ErrInvalidRange)
		}
		total = lo
	}
	sa.cellNum = &total
	return total, nil
}

func strideOf(dt datatype.Datatype, r Range) uint64 {
	if r.Stride == nil {
		return 0
	}
	s, _ := datatype.Ordinal(dt, r.Stride)
	z, _ := datatype.Ordinal(dt, make([]byte, len(r.Stride)))
	return s - z
}

// Contains reports whether a cell with the given per-dimension coordinate
// values is selected.
func (sa *Subarray) Contains(coords [][]byte) bool {
	dom := sa.schema.Domain()
	for i, v := range coords {
		if !sa.containsOn(dom.Dimension(i), sa.ranges[i], sa.implicit[i], v) {
			return false
		}
	}
	return true
}

func (sa *Subarray) containsOn(dim *schema.Dimension, ranges []Range, implicit bool, v []byte) bool {
	if dim.IsVar() {
		if implicit {
			return true
		}
		for _, r := range ranges {
			if bytes.Compare(r.Start, v) <= 0 && bytes.Compare(v, r.End) <= 0 {
				return true
			}
		}
		return false
	}
	dt := dim.Type()
	for _, r := range ranges {
		if datatype.Compare(dt, r.Start, v) > 0 || datatype.Compare(dt, v, r.End) > 0 {
			continue
		}
		if st := strideOf(dt, r); st > 1 {
			lo, _ := datatype.Ordinal(dt, r.Start)
			x, _ := datatype.Ordinal(dt, v)
			if (x-lo)%st != 0 {
				continue
			}
		}
		return true
	}
	return false
}

// Clone returns an independent copy.
func (sa *Subarray) Clone() *Subarray {
	c := &Subarray{
		schema:   sa.schema,
		ranges:   make([][]Range, len(sa.ranges)),
		implicit: append([]bool(nil), sa.implicit...),
	}
	for i, rs := range sa.ranges {
		c.ranges[i] = append([]Range(nil), rs...)
	}
	return c
}

func isZero(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
