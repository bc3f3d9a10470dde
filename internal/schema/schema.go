// Package schema models array schemas: a domain of dimensions, a set of
// attributes, cell/tile ordering and capacity. A schema is built
// incrementally, validated with Check and frozen once registered.
package schema

import (
	"github.com/tuannm99/novatile/internal/datatype"
)

// CoordsName is the reserved pseudo-field binding all coordinates zipped
// in dimension order.
const CoordsName = "__coords"

// DefaultCapacity is the sparse tile target size used when none is set.
const DefaultCapacity uint64 = 10000

type Schema struct {
	arrayType  ArrayType
	domain     *Domain
	attrs      []*Attribute
	tileOrder  Layout
	cellOrder  Layout
	capacity   uint64
	allowsDups bool
	frozen     bool
}

func New(t ArrayType) *Schema {
	return &Schema{
		arrayType: t,
		domain:    &Domain{},
		tileOrder: RowMajor,
		cellOrder: RowMajor,
		capacity:  DefaultCapacity,
	}
}

func (s *Schema) ArrayType() ArrayType { return s.arrayType }
func (s *Schema) Domain() *Domain      { return s.domain }
func (s *Schema) TileOrder() Layout    { return s.tileOrder }
func (s *Schema) CellOrder() Layout    { return s.cellOrder }
func (s *Schema) Capacity() uint64     { return s.capacity }
func (s *Schema) AllowsDups() bool     { return s.allowsDups }
func (s *Schema) Frozen() bool         { return s.frozen }
func (s *Schema) NAttr() int           { return len(s.attrs) }

func (s *Schema) Attribute(i int) *Attribute {
	if i < 0 || i >= len(s.attrs) {
		return nil
	}
	return s.attrs[i]
}

func (s *Schema) Attributes() []*Attribute {
	return append([]*Attribute(nil), s.attrs...)
}

func (s *Schema) AttributeByName(name string) (*Attribute, int, bool) {
	for i, a := range s.attrs {
		if a.name == name {
			return a, i, true
		}
	}
	return nil, -1, false
}

// SetDomain replaces the domain with a copy of d.
func (s *Schema) SetDomain(d *Domain) error {
	if s.frozen {
		return ErrSchemaFrozen
	}
	nd := &Domain{}
	for _, dim := range d.dims {
		if _, _, clash := s.AttributeByName(dim.name); clash {
			return invalid("dimension %q collides with an attribute", dim.name)
		}
		if err := nd.AddDimension(dim); err != nil {
			return err
		}
	}
	s.domain = nd
	return nil
}

// AddDimension appends a dimension to the schema's domain.
func (s *Schema) AddDimension(dim *Dimension) error {
	if s.frozen {
		return ErrSchemaFrozen
	}
	if dim != nil {
		if _, _, clash := s.AttributeByName(dim.name); clash {
			return invalid("dimension %q collides with an attribute", dim.name)
		}
	}
	return s.domain.AddDimension(dim)
}

// AddAttribute appends a copy of a.
func (s *Schema) AddAttribute(a *Attribute) error {
	if s.frozen {
		return ErrSchemaFrozen
	}
	if a == nil {
		return invalid("nil attribute")
	}
	if a.name == CoordsName {
		return invalid("attribute name %q is reserved", a.name)
	}
	if _, _, dup := s.AttributeByName(a.name); dup {
		return invalid("duplicate attribute name %q", a.name)
	}
	if _, _, clash := s.domain.DimensionByName(a.name); clash {
		return invalid("attribute %q collides with a dimension", a.name)
	}
	s.attrs = append(s.attrs, a.clone())
	return nil
}

func (s *Schema) SetCapacity(c uint64) error {
	if s.frozen {
		return ErrSchemaFrozen
	}
	s.capacity = c
	return nil
}

func (s *Schema) SetAllowsDups(v bool) error {
	if s.frozen {
		return ErrSchemaFrozen
	}
	s.allowsDups = v
	return nil
}

func (s *Schema) SetTileOrder(l Layout) error {
	if s.frozen {
		return ErrSchemaFrozen
	}
	if l != RowMajor && l != ColMajor {
		return invalid("tile order must be row-major or col-major, got %s", l)
	}
	s.tileOrder = l
	return nil
}

func (s *Schema) SetCellOrder(l Layout) error {
	if s.frozen {
		return ErrSchemaFrozen
	}
	if l != RowMajor && l != ColMajor {
		return invalid("cell order must be row-major or col-major, got %s", l)
	}
	s.cellOrder = l
	return nil
}

// Check validates the schema as a whole. It is the gate every schema
// passes before an array is created from it.
func (s *Schema) Check() error {
	if s.arrayType != Dense && s.arrayType != Sparse {
		return invalid("unknown array type %d", s.arrayType)
	}
	if s.domain == nil || s.domain.NDim() == 0 {
		return invalid("schema has no dimensions")
	}
	if len(s.attrs) == 0 {
		return invalid("schema has no attributes")
	}
	if s.arrayType == Sparse && s.capacity == 0 {
		return invalid("sparse capacity must be positive")
	}
	if s.allowsDups && s.arrayType != Sparse {
		return invalid("allows_dups is only legal for sparse arrays")
	}
	if s.arrayType == Dense {
		for _, dim := range s.domain.dims {
			if !dim.typ.IsInteger() {
				return invalid("dense array dimension %q must be an integer type, got %s", dim.name, dim.typ)
			}
		}
		if _, err := s.domain.CellNum(); err != nil {
			return err
		}
	}
	for _, a := range s.attrs {
		if _, _, clash := s.domain.DimensionByName(a.name); clash {
			return invalid("attribute %q collides with a dimension", a.name)
		}
	}
	return nil
}

// Freeze makes the schema and everything reachable from it read-only.
func (s *Schema) Freeze() {
	s.frozen = true
	s.domain.freeze()
	for _, a := range s.attrs {
		a.frozen = true
	}
}

// Field describes a bindable name: an attribute, a dimension or the
// zipped coordinates.
type Field struct {
	Name       string
	Type       datatype.Datatype
	CellValNum uint32
	Nullable   bool
	IsDim      bool
	IsCoords   bool
}

func (f Field) IsVar() bool { return f.CellValNum == VarNum }

// Field resolves name against attributes, dimensions and CoordsName.
func (s *Schema) Field(name string) (Field, error) {
	if a, _, ok := s.AttributeByName(name); ok {
		return Field{Name: a.name, Type: a.typ, CellValNum: a.cellValNum, Nullable: a.nullable}, nil
	}
	if d, _, ok := s.domain.DimensionByName(name); ok {
		f := Field{Name: d.name, Type: d.typ, CellValNum: 1, IsDim: true}
		if d.IsVar() {
			f.CellValNum = VarNum
		}
		return f, nil
	}
	if name == CoordsName {
		if s.domain.HasVarDimensions() {
			return Field{}, invalid("%s is unavailable with string dimensions", CoordsName)
		}
		return Field{
			Name:       CoordsName,
			Type:       s.domain.Type(),
			CellValNum: uint32(s.domain.NDim()),
			IsDim:      true,
			IsCoords:   true,
		}, nil
	}
	return Field{}, &FieldError{Name: name}
}

// FieldError reports an unknown attribute or dimension name.
type FieldError struct {
	Name string
}

func (e *FieldError) Error() string { return "schema: no attribute or dimension named " + e.Name }
func (e *FieldError) Unwrap() error { return ErrFieldNotFound }
