package schema

import (
	"github.com/tuannm99/novatile/internal/datatype"
)

// Dimension is one axis of a domain. String dimensions carry no bounds and
// no tile extent.
type Dimension struct {
	name    string
	typ     datatype.Datatype
	lower   []byte
	upper   []byte
	extent  []byte
	filters FilterList
	frozen  bool
}

// NewDimension builds a numeric dimension whose type is derived from T.
func NewDimension[T datatype.Element](name string, lower, upper, extent T) (*Dimension, error) {
	return NewDimensionOf(name, datatype.Of[T](),
		datatype.Encode(lower), datatype.Encode(upper), datatype.Encode(extent))
}

// NewDimensionOf builds a numeric dimension from raw values of type dt.
// Use it for date/time dimensions, which are carried as int64.
func NewDimensionOf(name string, dt datatype.Datatype, lower, upper, extent []byte) (*Dimension, error) {
	if name == "" {
		return nil, invalid("dimension name is empty")
	}
	if !dt.IsNumeric() {
		return nil, invalid("dimension %q: %s needs NewStringDimension", name, dt)
	}
	size := int(dt.Size())
	if len(lower) != size || len(upper) != size || len(extent) != size {
		return nil, invalid("dimension %q: values must be %d bytes", name, size)
	}
	if datatype.IsNaN(dt, lower) || datatype.IsNaN(dt, upper) || datatype.IsNaN(dt, extent) {
		return nil, invalid("dimension %q: NaN bound", name)
	}
	if datatype.Compare(dt, lower, upper) > 0 {
		return nil, invalid("dimension %q: lower bound %s exceeds upper bound %s",
			name, datatype.Format(dt, lower), datatype.Format(dt, upper))
	}
	zero := make([]byte, size)
	if datatype.Compare(dt, extent, zero) <= 0 {
		return nil, invalid("dimension %q: tile extent must be positive", name)
	}
	if dt.IsInteger() {
		span, full := integerSpan(dt, lower, upper)
		ext, _ := datatype.Ordinal(dt, extent)
		base, _ := datatype.Ordinal(dt, zero)
		if !full && ext-base > span {
			return nil, invalid("dimension %q: tile extent %s exceeds domain range",
				name, datatype.Format(dt, extent))
		}
	}
	return &Dimension{
		name:   name,
		typ:    dt,
		lower:  clone(lower),
		upper:  clone(upper),
		extent: clone(extent),
	}, nil
}

// NewStringDimension builds a variable-length ASCII dimension. Only sparse
// arrays accept it.
func NewStringDimension(name string) (*Dimension, error) {
	if name == "" {
		return nil, invalid("dimension name is empty")
	}
	return &Dimension{name: name, typ: datatype.StringASCII}, nil
}

// ParseDimension builds a dimension from textual bounds. String types
// ignore the bound arguments.
func ParseDimension(name string, dt datatype.Datatype, lower, upper, extent string) (*Dimension, error) {
	if dt.IsString() {
		return NewStringDimension(name)
	}
	lo, err := datatype.ParseValue(dt, lower)
	if err != nil {
		return nil, invalid("dimension %q lower: %v", name, err)
	}
	hi, err := datatype.ParseValue(dt, upper)
	if err != nil {
		return nil, invalid("dimension %q upper: %v", name, err)
	}
	ext, err := datatype.ParseValue(dt, extent)
	if err != nil {
		return nil, invalid("dimension %q extent: %v", name, err)
	}
	return NewDimensionOf(name, dt, lo, hi, ext)
}

func (d *Dimension) Name() string            { return d.name }
func (d *Dimension) Type() datatype.Datatype { return d.typ }
func (d *Dimension) IsVar() bool             { return d.typ.IsString() }
func (d *Dimension) Lower() []byte           { return d.lower }
func (d *Dimension) Upper() []byte           { return d.upper }
func (d *Dimension) Extent() []byte          { return d.extent }
func (d *Dimension) Filters() FilterList     { return d.filters.clone() }

// SetFilters replaces the filter pipeline.
func (d *Dimension) SetFilters(fl FilterList) error {
	if d.frozen {
		return ErrSchemaFrozen
	}
	if err := fl.validate(); err != nil {
		return err
	}
	d.filters = fl.clone()
	return nil
}

// Span returns upper-lower+1 for integer dimensions. full is true when the
// span covers all 2^64 values and does not fit in a uint64.
func (d *Dimension) Span() (span uint64, full bool, err error) {
	if !d.typ.IsInteger() {
		return 0, false, ErrUnsupportedDomainType
	}
	span, full = integerSpan(d.typ, d.lower, d.upper)
	return span, full, nil
}

// Contains reports whether v lies in [lower, upper]. String dimensions
// contain every value.
func (d *Dimension) Contains(v []byte) bool {
	if d.IsVar() {
		return true
	}
	return datatype.Compare(d.typ, d.lower, v) <= 0 && datatype.Compare(d.typ, v, d.upper) <= 0
}

func (d *Dimension) clone() *Dimension {
	c := *d
	c.lower, c.upper, c.extent = clone(d.lower), clone(d.upper), clone(d.extent)
	c.filters = d.filters.clone()
	c.frozen = false
	return &c
}

func integerSpan(dt datatype.Datatype, lower, upper []byte) (uint64, bool) {
	lo, _ := datatype.Ordinal(dt, lower)
	hi, _ := datatype.Ordinal(dt, upper)
	span := hi - lo + 1
	return span, span == 0
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
