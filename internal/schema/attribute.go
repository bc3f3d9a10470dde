package schema

import (
	"math"

	"github.com/tuannm99/novatile/internal/datatype"
)

// VarNum marks an attribute whose cells hold a variable number of values.
const VarNum = math.MaxUint32

// Attribute is a named, typed value stored per cell.
type Attribute struct {
	name       string
	typ        datatype.Datatype
	cellValNum uint32
	nullable   bool
	fill       []byte
	filters    FilterList
	frozen     bool
}

// NewAttribute creates an attribute with one value per cell, or variable
// length for string types.
func NewAttribute(name string, dt datatype.Datatype) (*Attribute, error) {
	if name == "" {
		return nil, invalid("attribute name is empty")
	}
	if !dt.Valid() {
		return nil, invalid("attribute %q: %v", name, dt)
	}
	a := &Attribute{name: name, typ: dt, cellValNum: 1}
	if dt.IsString() && dt != datatype.Char {
		a.cellValNum = VarNum
	}
	return a, nil
}

func (a *Attribute) Name() string            { return a.name }
func (a *Attribute) Type() datatype.Datatype { return a.typ }
func (a *Attribute) CellValNum() uint32      { return a.cellValNum }
func (a *Attribute) IsVar() bool             { return a.cellValNum == VarNum }
func (a *Attribute) Nullable() bool          { return a.nullable }
func (a *Attribute) Filters() FilterList     { return a.filters.clone() }

// CellSize is the byte width of one fixed-size cell.
func (a *Attribute) CellSize() uint64 {
	if a.IsVar() {
		return 0
	}
	return uint64(a.cellValNum) * a.typ.Size()
}

// FillValue is written to dense cells that no fragment covers. Variable
// attributes default to an empty value.
func (a *Attribute) FillValue() []byte {
	if a.fill != nil {
		return a.fill
	}
	if a.IsVar() {
		return []byte{}
	}
	return make([]byte, a.CellSize())
}

func (a *Attribute) SetCellValNum(n uint32) error {
	if a.frozen {
		return ErrSchemaFrozen
	}
	if n == 0 {
		return invalid("attribute %q: cell_val_num must be positive", a.name)
	}
	a.cellValNum = n
	a.fill = nil
	return nil
}

func (a *Attribute) SetNullable(nullable bool) error {
	if a.frozen {
		return ErrSchemaFrozen
	}
	a.nullable = nullable
	return nil
}

func (a *Attribute) SetFillValue(v []byte) error {
	if a.frozen {
		return ErrSchemaFrozen
	}
	if !a.IsVar() && uint64(len(v)) != a.CellSize() {
		return invalid("attribute %q: fill value must be %d bytes", a.name, a.CellSize())
	}
	a.fill = clone(v)
	if a.fill == nil {
		a.fill = []byte{}
	}
	return nil
}

func (a *Attribute) SetFilters(fl FilterList) error {
	if a.frozen {
		return ErrSchemaFrozen
	}
	if err := fl.validate(); err != nil {
		return err
	}
	a.filters = fl.clone()
	return nil
}

func (a *Attribute) clone() *Attribute {
	c := *a
	c.fill = clone(a.fill)
	c.filters = a.filters.clone()
	c.frozen = false
	return &c
}
