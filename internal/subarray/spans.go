package subarray

import (
	"fmt"
	"math"
	"math/big"

	"github.com/tuannm99/novatile/internal/datatype"
	"github.com/tuannm99/novatile/internal/schema"
)

// Span is Count ordinals Start, Start+Step, ... on one dimension.
type Span struct {
	Start uint64
	Count uint64
	Step  uint64
}

// Last is the largest ordinal of a non-empty span.
func (s Span) Last() uint64 { return s.Start + (s.Count-1)*s.Step }

// Spans returns the ordinals selected on integer dimension dim as
// disjoint spans in range order. A cell covered by several ranges is kept
// only in the first of them.
func (sa *Subarray) Spans(dim int) ([]Span, error) {
	if dim < 0 || dim >= len(sa.ranges) {
		return nil, fmt.Errorf("%w: dimension %d", ErrDimensionNotFound, dim)
	}
	d := sa.schema.Domain().Dimension(dim)
	dt := d.Type()
	if !dt.IsInteger() {
		return nil, fmt.Errorf("%w: dimension %q is %s", schema.ErrUnsupportedDomainType, d.Name(), dt)
	}
	var out []Span
	for _, r := range sa.ranges[dim] {
		lo, _ := datatype.Ordinal(dt, r.Start)
		hi, _ := datatype.Ordinal(dt, r.End)
		step := max(strideOf(dt, r), 1)
		n := (hi - lo) / step
		if n == math.MaxUint64 {
			return nil, fmt.Errorf("%w: range on %q selects 2^64 cells", ErrInvalidRange, d.Name())
		}
		pieces := []Span{{Start: lo, Count: n + 1, Step: step}}
		for _, prev := range out {
			var next []Span
			for _, p := range pieces {
				next = p.minus(prev, next)
			}
			if pieces = next; len(pieces) == 0 {
				break
			}
		}
		out = append(out, pieces...)
	}
	return out, nil
}

// minus appends the parts of s not covered by o to out.
func (s Span) minus(o Span, out []Span) []Span {
	k0, c, d, ok := s.overlap(o)
	if !ok {
		return append(out, s)
	}
	if d == 1 {
		out = s.cut(out, 0, k0)
		return s.cut(out, k0+c, s.Count)
	}
	from := uint64(0)
	for i := uint64(0); i < c; i++ {
		k := k0 + i*d
		out = s.cut(out, from, k)
		from = k + 1
	}
	return s.cut(out, from, s.Count)
}

func (s Span) cut(out []Span, from, to uint64) []Span {
	if to <= from {
		return out
	}
	return append(out, Span{Start: s.Start + from*s.Step, Count: to - from, Step: s.Step})
}

// overlap finds the indexes of s that o also covers: c indexes k0, k0+d,
// and so on.
func (s Span) overlap(o Span) (k0, c, d uint64, ok bool) {
	lo, hi := max(s.Start, o.Start), min(s.Last(), o.Last())
	if lo > hi {
		return 0, 0, 0, false
	}
	// s.Start + k*s.Step == o.Start + j*o.Step, solved for k modulo o.Step/g
	p, q := new(big.Int).SetUint64(s.Step), new(big.Int).SetUint64(o.Step)
	g := new(big.Int).GCD(nil, nil, p, q)
	diff := new(big.Int).Sub(new(big.Int).SetUint64(o.Start), new(big.Int).SetUint64(s.Start))
	if new(big.Int).Mod(diff, g).Sign() != 0 {
		return 0, 0, 0, false
	}
	m := new(big.Int).Div(q, g)
	base := new(big.Int)
	if m.Cmp(big.NewInt(1)) > 0 {
		inv := new(big.Int).ModInverse(new(big.Int).Div(p, g), m)
		base.Div(diff, g).Mul(base, inv).Mod(base, m)
	}

	// first index at or after lo
	kmin := new(big.Int).SetUint64(lo - s.Start)
	kmin.Add(kmin, p).Sub(kmin, big.NewInt(1)).Div(kmin, p)
	first := new(big.Int).Sub(base, kmin)
	first.Mod(first, m).Add(first, kmin)

	kmax := (hi - s.Start) / s.Step
	if !first.IsUint64() || first.Uint64() > kmax {
		return 0, 0, 0, false
	}
	k0, d = first.Uint64(), m.Uint64()
	return k0, (kmax-k0)/d + 1, d, true
}
