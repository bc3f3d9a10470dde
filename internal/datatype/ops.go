package datatype

import (
	"bytes"
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"

	"github.com/tuannm99/novatile/internal/alias/bx"
)

type ops struct {
	name  string
	size  int
	class Class
}

var table = [...]ops{
	Int32:         {"INT32", 4, ClassSigned},
	Int64:         {"INT64", 8, ClassSigned},
	Float32:       {"FLOAT32", 4, ClassFloat},
	Float64:       {"FLOAT64", 8, ClassFloat},
	Char:          {"CHAR", 1, ClassString},
	Int8:          {"INT8", 1, ClassSigned},
	UInt8:         {"UINT8", 1, ClassUnsigned},
	Int16:         {"INT16", 2, ClassSigned},
	UInt16:        {"UINT16", 2, ClassUnsigned},
	UInt32:        {"UINT32", 4, ClassUnsigned},
	UInt64:        {"UINT64", 8, ClassUnsigned},
	StringASCII:   {"STRING_ASCII", 1, ClassString},
	StringUTF8:    {"STRING_UTF8", 1, ClassString},
	StringUTF16:   {"STRING_UTF16", 2, ClassString},
	StringUTF32:   {"STRING_UTF32", 4, ClassString},
	StringUCS2:    {"STRING_UCS2", 2, ClassString},
	StringUCS4:    {"STRING_UCS4", 4, ClassString},
	Any:           {"ANY", 1, ClassAny},
	DateTimeYear:  {"DATETIME_YEAR", 8, ClassDateTime},
	DateTimeMonth: {"DATETIME_MONTH", 8, ClassDateTime},
	DateTimeWeek:  {"DATETIME_WEEK", 8, ClassDateTime},
	DateTimeDay:   {"DATETIME_DAY", 8, ClassDateTime},
	DateTimeHr:    {"DATETIME_HR", 8, ClassDateTime},
	DateTimeMin:   {"DATETIME_MIN", 8, ClassDateTime},
	DateTimeSec:   {"DATETIME_SEC", 8, ClassDateTime},
	DateTimeMS:    {"DATETIME_MS", 8, ClassDateTime},
	DateTimeUS:    {"DATETIME_US", 8, ClassDateTime},
	DateTimeNS:    {"DATETIME_NS", 8, ClassDateTime},
	DateTimePS:    {"DATETIME_PS", 8, ClassDateTime},
	DateTimeFS:    {"DATETIME_FS", 8, ClassDateTime},
	DateTimeAS:    {"DATETIME_AS", 8, ClassDateTime},
}

func signed(size int, b []byte) int64 {
	switch size {
	case 1:
		return int64(int8(b[0]))
	case 2:
		return int64(bx.I16(b))
	case 4:
		return int64(bx.I32(b))
	default:
		return bx.I64(b)
	}
}

func unsigned(size int, b []byte) uint64 {
	switch size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(bx.U16(b))
	case 4:
		return uint64(bx.U32(b))
	default:
		return bx.U64(b)
	}
}

func float(size int, b []byte) float64 {
	if size == 4 {
		return float64(bx.F32(b))
	}
	return bx.F64(b)
}

func putUnsigned(size int, b []byte, v uint64) {
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		bx.PutU16(b, uint16(v))
	case 4:
		bx.PutU32(b, uint32(v))
	default:
		bx.PutU64(b, v)
	}
}

// Compare orders two values of type d. Fixed-width types compare the first
// element; string types compare code unit by code unit.
func Compare(d Datatype, a, b []byte) int {
	o := table[d]
	switch o.class {
	case ClassSigned, ClassDateTime:
		return cmp.Compare(signed(o.size, a), signed(o.size, b))
	case ClassUnsigned:
		return cmp.Compare(unsigned(o.size, a), unsigned(o.size, b))
	case ClassFloat:
		return cmp.Compare(float(o.size, a), float(o.size, b))
	}
	if o.size == 1 {
		return bytes.Compare(a, b)
	}
	n := min(len(a), len(b)) / o.size
	for i := range n {
		off := i * o.size
		if c := cmp.Compare(unsigned(o.size, a[off:]), unsigned(o.size, b[off:])); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

// Ordinal maps an integer value onto uint64 preserving order, so spans
// and offsets can be computed without overflow for every integer width.
func Ordinal(d Datatype, b []byte) (uint64, error) {
	o := table[d]
	if len(b) < o.size {
		return 0, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrBadValue, d, o.size, len(b))
	}
	switch o.class {
	case ClassSigned, ClassDateTime:
		return uint64(signed(o.size, b)) ^ (1 << 63), nil
	case ClassUnsigned:
		return unsigned(o.size, b), nil
	}
	return 0, fmt.Errorf("%w: %s", ErrNotInteger, d)
}

// FromOrdinal is the inverse of Ordinal.
func FromOrdinal(d Datatype, v uint64) []byte {
	out := make([]byte, table[d].size)
	PutOrdinal(d, out, v)
	return out
}

// PutOrdinal writes the value with ordinal v into dst, which must hold
// Size() bytes.
func PutOrdinal(d Datatype, dst []byte, v uint64) {
	o := table[d]
	if o.class == ClassSigned || o.class == ClassDateTime {
		v ^= 1 << 63
	}
	putUnsigned(o.size, dst, v)
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Format renders a value. Fixed-width values with more than one element
// are joined with commas.
func Format(d Datatype, b []byte) string {
	o := table[d]
	if o.class == ClassString || o.class == ClassAny {
		switch o.size {
		case 1:
			return string(b)
		case 2:
			s, err := utf16le.NewDecoder().Bytes(b)
			if err != nil {
				return string(b)
			}
			return string(s)
		default:
			var sb strings.Builder
			for i := 0; i+4 <= len(b); i += 4 {
				sb.WriteRune(rune(bx.U32(b[i:])))
			}
			return sb.String()
		}
	}
	parts := make([]string, 0, len(b)/o.size)
	for off := 0; off+o.size <= len(b); off += o.size {
		e := b[off : off+o.size]
		switch o.class {
		case ClassSigned, ClassDateTime:
			parts = append(parts, strconv.FormatInt(signed(o.size, e), 10))
		case ClassUnsigned:
			parts = append(parts, strconv.FormatUint(unsigned(o.size, e), 10))
		case ClassFloat:
			parts = append(parts, strconv.FormatFloat(float(o.size, e), 'g', -1, o.size*8))
		}
	}
	return strings.Join(parts, ",")
}

// ParseValue encodes the textual form of one value of type d. For string
// types the whole text is one value.
func ParseValue(d Datatype, s string) ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDatatype, uint8(d))
	}
	o := table[d]
	out := make([]byte, o.size)
	switch o.class {
	case ClassSigned, ClassDateTime:
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, o.size*8)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q: %w", ErrBadValue, d, s, err)
		}
		putUnsigned(o.size, out, uint64(v))
	case ClassUnsigned:
		v, err := strconv.ParseUint(strings.TrimSpace(s), 10, o.size*8)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q: %w", ErrBadValue, d, s, err)
		}
		putUnsigned(o.size, out, v)
	case ClassFloat:
		v, err := strconv.ParseFloat(strings.TrimSpace(s), o.size*8)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q: %w", ErrBadValue, d, s, err)
		}
		if o.size == 4 {
			bx.PutF32(out, float32(v))
		} else {
			bx.PutF64(out, v)
		}
	default:
		return encodeString(d, s)
	}
	return out, nil
}

func encodeString(d Datatype, s string) ([]byte, error) {
	switch table[d].size {
	case 1:
		if d == StringASCII {
			for i := 0; i < len(s); i++ {
				if s[i] > 0x7f {
					return nil, fmt.Errorf("%w: non-ascii byte at %d", ErrBadValue, i)
				}
			}
		}
		return []byte(s), nil
	case 2:
		return utf16le.NewEncoder().Bytes([]byte(s))
	default:
		out := make([]byte, 0, utf8.RuneCountInString(s)*4)
		for _, r := range s {
			out = bx.AppendU32(out, uint32(r))
		}
		return out, nil
	}
}

// IsNaN reports whether a floating point value is NaN. Always false for
// other classes.
func IsNaN(d Datatype, b []byte) bool {
	o := table[d]
	return o.class == ClassFloat && math.IsNaN(float(o.size, b))
}
