package schema

import (
	"fmt"
	"math/bits"

	"github.com/tuannm99/novatile/internal/datatype"
)

// Domain is the ordered, name-unique list of dimensions of an array.
type Domain struct {
	dims   []*Dimension
	frozen bool
}

func NewDomain(dims ...*Dimension) (*Domain, error) {
	d := &Domain{}
	for _, dim := range dims {
		if err := d.AddDimension(dim); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// AddDimension appends dim. Names must be unique and every numeric
// dimension must share one datatype.
func (d *Domain) AddDimension(dim *Dimension) error {
	if d.frozen {
		return ErrSchemaFrozen
	}
	if dim == nil {
		return invalid("nil dimension")
	}
	for _, have := range d.dims {
		if have.name == dim.name {
			return invalid("duplicate dimension name %q", dim.name)
		}
		if !have.IsVar() && !dim.IsVar() && have.typ != dim.typ {
			return invalid("dimension %q is %s but domain is %s", dim.name, dim.typ, have.typ)
		}
	}
	d.dims = append(d.dims, dim.clone())
	return nil
}

func (d *Domain) NDim() int { return len(d.dims) }

func (d *Domain) Dimension(i int) *Dimension {
	if i < 0 || i >= len(d.dims) {
		return nil
	}
	return d.dims[i]
}

func (d *Domain) Dimensions() []*Dimension {
	return append([]*Dimension(nil), d.dims...)
}

// DimensionByName returns the dimension and its index.
func (d *Domain) DimensionByName(name string) (*Dimension, int, bool) {
	for i, dim := range d.dims {
		if dim.name == name {
			return dim, i, true
		}
	}
	return nil, -1, false
}

// Type returns the shared numeric type, or the string type when every
// dimension is a string dimension.
func (d *Domain) Type() datatype.Datatype {
	for _, dim := range d.dims {
		if !dim.IsVar() {
			return dim.typ
		}
	}
	if len(d.dims) > 0 {
		return d.dims[0].typ
	}
	return datatype.Any
}

// HasVarDimensions reports whether any dimension is a string dimension.
func (d *Domain) HasVarDimensions() bool {
	for _, dim := range d.dims {
		if dim.IsVar() {
			return true
		}
	}
	return false
}

// CellNum is the number of addressable cells. It is only defined for
// integer domains.
func (d *Domain) CellNum() (uint64, error) {
	if len(d.dims) == 0 {
		return 0, invalid("empty domain")
	}
	total := uint64(1)
	for _, dim := range d.dims {
		if !dim.typ.IsInteger() {
			return 0, fmt.Errorf("%w: dimension %q is %s", ErrUnsupportedDomainType, dim.name, dim.typ)
		}
		span, full, _ := dim.Span()
		if full {
			return 0, invalid("dimension %q: cell count overflows uint64", dim.name)
		}
		hi, lo := bits.Mul64(total, span)
		if hi != 0 {
			return 0, invalid("domain cell count overflows uint64")
		}
		total = lo
	}
	return total, nil
}

func (d *Domain) freeze() {
	d.frozen = true
	for _, dim := range d.dims {
		dim.frozen = true
	}
}
