package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tuannm99/novatile/internal/datatype"
	"github.com/tuannm99/novatile/internal/schema"
)

// schemaFile is the YAML form accepted by "create --schema".
type schemaFile struct {
	ArrayType  string          `yaml:"array_type"`
	TileOrder  string          `yaml:"tile_order"`
	CellOrder  string          `yaml:"cell_order"`
	Capacity   uint64          `yaml:"capacity"`
	AllowsDups bool            `yaml:"allows_dups"`
	Dimensions []dimensionFile `yaml:"dimensions"`
	Attributes []attributeFile `yaml:"attributes"`
}

type dimensionFile struct {
	Name   string   `yaml:"name"`
	Type   string   `yaml:"type"`
	Domain []string `yaml:"domain"`
	Extent string   `yaml:"tile_extent"`
}

type attributeFile struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	CellValNum string `yaml:"cell_val_num"` // a count or "var"
	Nullable   bool   `yaml:"nullable"`
	Fill       string `yaml:"fill_value"`
	Filters    []struct {
		Type  uint8 `yaml:"type"`
		Level int32 `yaml:"level"`
	} `yaml:"filters"`
}

func readSchemaFile(path string) (*schema.Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f schemaFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s, err := f.build()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (f *schemaFile) build() (*schema.Schema, error) {
	var at schema.ArrayType
	if err := at.UnmarshalText([]byte(f.ArrayType)); err != nil {
		return nil, err
	}
	s := schema.New(at)

	for _, df := range f.Dimensions {
		dt, err := datatype.Parse(df.Type)
		if err != nil {
			return nil, err
		}
		var d *schema.Dimension
		if dt.IsString() {
			d, err = schema.NewStringDimension(df.Name)
		} else {
			if len(df.Domain) != 2 {
				return nil, fmt.Errorf("dimension %q: domain needs two bounds", df.Name)
			}
			d, err = schema.ParseDimension(df.Name, dt, df.Domain[0], df.Domain[1], df.Extent)
		}
		if err != nil {
			return nil, err
		}
		if err := s.AddDimension(d); err != nil {
			return nil, err
		}
	}

	for _, af := range f.Attributes {
		a, err := af.build()
		if err != nil {
			return nil, err
		}
		if err := s.AddAttribute(a); err != nil {
			return nil, err
		}
	}

	for _, o := range []struct {
		text string
		set  func(schema.Layout) error
	}{
		{f.TileOrder, s.SetTileOrder},
		{f.CellOrder, s.SetCellOrder},
	} {
		if o.text == "" {
			continue
		}
		l, err := schema.ParseLayout(o.text)
		if err != nil {
			return nil, err
		}
		if err := o.set(l); err != nil {
			return nil, err
		}
	}
	if f.Capacity > 0 {
		if err := s.SetCapacity(f.Capacity); err != nil {
			return nil, err
		}
	}
	if err := s.SetAllowsDups(f.AllowsDups); err != nil {
		return nil, err
	}
	return s, s.Check()
}

func (af attributeFile) build() (*schema.Attribute, error) {
	dt, err := datatype.Parse(af.Type)
	if err != nil {
		return nil, err
	}
	a, err := schema.NewAttribute(af.Name, dt)
	if err != nil {
		return nil, err
	}
	switch n := strings.ToLower(strings.TrimSpace(af.CellValNum)); n {
	case "":
	case "var":
		err = a.SetCellValNum(schema.VarNum)
	default:
		v, perr := strconv.ParseUint(n, 10, 32)
		if perr != nil {
			return nil, fmt.Errorf("attribute %q: cell_val_num %q", af.Name, af.CellValNum)
		}
		err = a.SetCellValNum(uint32(v))
	}
	if err != nil {
		return nil, err
	}
	if err := a.SetNullable(af.Nullable); err != nil {
		return nil, err
	}
	if af.Fill != "" {
		v, err := datatype.ParseValue(dt, af.Fill)
		if err != nil {
			return nil, err
		}
		if err := a.SetFillValue(v); err != nil {
			return nil, err
		}
	}
	if len(af.Filters) > 0 {
		var fl schema.FilterList
		for _, ff := range af.Filters {
			fl.Filters = append(fl.Filters, schema.Filter{Type: schema.FilterType(ff.Type), Level: ff.Level})
		}
		if err := a.SetFilters(fl); err != nil {
			return nil, err
		}
	}
	return a, nil
}
