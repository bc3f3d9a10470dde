package schema

import (
	"encoding/json"
	"fmt"

	"github.com/tuannm99/novatile/internal/datatype"
)

type dimensionJSON struct {
	Name    string            `json:"name"`
	Type    datatype.Datatype `json:"type"`
	Domain  []string          `json:"domain,omitempty"`
	Extent  string            `json:"tile_extent,omitempty"`
	Filters *FilterList       `json:"filters,omitempty"`
}

type attributeJSON struct {
	Name       string            `json:"name"`
	Type       datatype.Datatype `json:"type"`
	CellValNum uint32            `json:"cell_val_num"`
	Nullable   bool              `json:"nullable,omitempty"`
	FillValue  []byte            `json:"fill_value,omitempty"`
	Filters    *FilterList       `json:"filters,omitempty"`
}

type schemaJSON struct {
	ArrayType  ArrayType       `json:"array_type"`
	TileOrder  Layout          `json:"tile_order"`
	CellOrder  Layout          `json:"cell_order"`
	Capacity   uint64          `json:"capacity"`
	AllowsDups bool            `json:"allows_dups"`
	Dimensions []dimensionJSON `json:"dimensions"`
	Attributes []attributeJSON `json:"attributes"`
}

func filtersPtr(fl FilterList) *FilterList {
	if len(fl.Filters) == 0 && fl.MaxChunkSize == 0 {
		return nil
	}
	c := fl.clone()
	return &c
}

func (s *Schema) MarshalJSON() ([]byte, error) {
	out := schemaJSON{
		ArrayType:  s.arrayType,
		TileOrder:  s.tileOrder,
		CellOrder:  s.cellOrder,
		Capacity:   s.capacity,
		AllowsDups: s.allowsDups,
		Dimensions: make([]dimensionJSON, 0, s.domain.NDim()),
		Attributes: make([]attributeJSON, 0, len(s.attrs)),
	}
	for _, d := range s.domain.dims {
		dj := dimensionJSON{Name: d.name, Type: d.typ, Filters: filtersPtr(d.filters)}
		if !d.IsVar() {
			dj.Domain = []string{datatype.Format(d.typ, d.lower), datatype.Format(d.typ, d.upper)}
			dj.Extent = datatype.Format(d.typ, d.extent)
		}
		out.Dimensions = append(out.Dimensions, dj)
	}
	for _, a := range s.attrs {
		out.Attributes = append(out.Attributes, attributeJSON{
			Name:       a.name,
			Type:       a.typ,
			CellValNum: a.cellValNum,
			Nullable:   a.nullable,
			FillValue:  a.fill,
			Filters:    filtersPtr(a.filters),
		})
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds a schema through the regular constructors, checks
// it and freezes the result.
func (s *Schema) UnmarshalJSON(b []byte) error {
	var in schemaJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return fmt.Errorf("%w: decode: %w", ErrSchemaValidation, err)
	}

	out := New(in.ArrayType)
	for _, dj := range in.Dimensions {
		var (
			dim *Dimension
			err error
		)
		if dj.Type.IsString() {
			dim, err = NewStringDimension(dj.Name)
		} else {
			if len(dj.Domain) != 2 {
				return invalid("dimension %q: domain needs two bounds", dj.Name)
			}
			dim, err = ParseDimension(dj.Name, dj.Type, dj.Domain[0], dj.Domain[1], dj.Extent)
		}
		if err != nil {
			return err
		}
		if dj.Filters != nil {
			if err := dim.SetFilters(*dj.Filters); err != nil {
				return err
			}
		}
		if err := out.AddDimension(dim); err != nil {
			return err
		}
	}
	for _, aj := range in.Attributes {
		a, err := NewAttribute(aj.Name, aj.Type)
		if err != nil {
			return err
		}
		if err := a.SetCellValNum(aj.CellValNum); err != nil {
			return err
		}
		if err := a.SetNullable(aj.Nullable); err != nil {
			return err
		}
		if aj.FillValue != nil {
			if err := a.SetFillValue(aj.FillValue); err != nil {
				return err
			}
		}
		if aj.Filters != nil {
			if err := a.SetFilters(*aj.Filters); err != nil {
				return err
			}
		}
		if err := out.AddAttribute(a); err != nil {
			return err
		}
	}
	if err := out.SetTileOrder(in.TileOrder); err != nil {
		return err
	}
	if err := out.SetCellOrder(in.CellOrder); err != nil {
		return err
	}
	out.capacity = in.Capacity
	out.allowsDups = in.AllowsDups
	if err := out.Check(); err != nil {
		return err
	}
	out.Freeze()
	*s = *out
	return nil
}

// Marshal renders an indented JSON snapshot.
func Marshal(s *Schema) ([]byte, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Unmarshal decodes a snapshot into a frozen schema.
func Unmarshal(b []byte) (*Schema, error) {
	var s Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
