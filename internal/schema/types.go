package schema

import (
	"fmt"
	"strings"
)

// ArrayType discriminants match the engine ABI.
type ArrayType uint8

const (
	Dense  ArrayType = 0
	Sparse ArrayType = 1
)

func (t ArrayType) String() string {
	switch t {
	case Dense:
		return "dense"
	case Sparse:
		return "sparse"
	default:
		return fmt.Sprintf("array_type(%d)", uint8(t))
	}
}

func (t ArrayType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *ArrayType) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "dense":
		*t = Dense
	case "sparse":
		*t = Sparse
	default:
		return invalid("unknown array type %q", b)
	}
	return nil
}

// Layout is a cell iteration order. Discriminants match the engine ABI.
type Layout uint8

const (
	RowMajor    Layout = 0
	ColMajor    Layout = 1
	GlobalOrder Layout = 2
	Unordered   Layout = 3
)

var layoutNames = [...]string{
	RowMajor:    "row-major",
	ColMajor:    "col-major",
	GlobalOrder: "global-order",
	Unordered:   "unordered",
}

func (l Layout) String() string {
	if int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return fmt.Sprintf("layout(%d)", uint8(l))
}

func (l Layout) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Layout) UnmarshalText(b []byte) error {
	v, err := ParseLayout(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

func ParseLayout(s string) (Layout, error) {
	n := strings.ToLower(strings.TrimSpace(s))
	for i, name := range layoutNames {
		if name == n {
			return Layout(i), nil
		}
	}
	return 0, invalid("unknown layout %q", s)
}

// FilterType discriminants match the engine ABI. Filters are persisted
// with the schema and handed to the engine untouched.
type FilterType uint8

const (
	FilterNone              FilterType = 0
	FilterGzip              FilterType = 1
	FilterZstd              FilterType = 2
	FilterLZ4               FilterType = 3
	FilterRLE               FilterType = 4
	FilterBzip2             FilterType = 5
	FilterDoubleDelta       FilterType = 6
	FilterBitWidthReduction FilterType = 7
	FilterBitShuffle        FilterType = 8
	FilterByteShuffle       FilterType = 9
	FilterPositiveDelta     FilterType = 10
	FilterChecksumMD5       FilterType = 12
	FilterChecksumSHA256    FilterType = 13
)

type Filter struct {
	Type  FilterType `json:"type"`
	Level int32      `json:"level,omitempty"`
}

type FilterList struct {
	Filters      []Filter `json:"filters,omitempty"`
	MaxChunkSize uint32   `json:"max_chunk_size,omitempty"`
}

func (fl FilterList) clone() FilterList {
	out := FilterList{MaxChunkSize: fl.MaxChunkSize}
	if len(fl.Filters) > 0 {
		out.Filters = append([]Filter(nil), fl.Filters...)
	}
	return out
}

func (fl FilterList) validate() error {
	for _, f := range fl.Filters {
		if f.Type > FilterChecksumSHA256 || f.Type == 11 {
			return invalid("unknown filter type %d", f.Type)
		}
	}
	return nil
}
