// Package datatype is the scalar type system shared by schemas, ranges,
// predicates, buffers and metadata. Every per-type behaviour lives in one
// table indexed by Datatype; callers never switch on the tag themselves.
package datatype

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTypeMismatch    = errors.New("datatype: type mismatch")
	ErrUnknownDatatype = errors.New("datatype: unknown datatype")
	ErrNotInteger      = errors.New("datatype: not an integer type")
	ErrBadValue        = errors.New("datatype: malformed value")
)

// Datatype discriminants match the storage engine ABI and must not change.
type Datatype uint8

const (
	Int32         Datatype = 0
	Int64         Datatype = 1
	Float32       Datatype = 2
	Float64       Datatype = 3
	Char          Datatype = 4
	Int8          Datatype = 5
	UInt8         Datatype = 6
	Int16         Datatype = 7
	UInt16        Datatype = 8
	UInt32        Datatype = 9
	UInt64        Datatype = 10
	StringASCII   Datatype = 11
	StringUTF8    Datatype = 12
	StringUTF16   Datatype = 13
	StringUTF32   Datatype = 14
	StringUCS2    Datatype = 15
	StringUCS4    Datatype = 16
	Any           Datatype = 17
	DateTimeYear  Datatype = 18
	DateTimeMonth Datatype = 19
	DateTimeWeek  Datatype = 20
	DateTimeDay   Datatype = 21
	DateTimeHr    Datatype = 22
	DateTimeMin   Datatype = 23
	DateTimeSec   Datatype = 24
	DateTimeMS    Datatype = 25
	DateTimeUS    Datatype = 26
	DateTimeNS    Datatype = 27
	DateTimePS    Datatype = 28
	DateTimeFS    Datatype = 29
	DateTimeAS    Datatype = 30
)

// Class groups datatypes that share comparison and conversion rules.
type Class uint8

const (
	ClassSigned Class = iota + 1
	ClassUnsigned
	ClassFloat
	ClassString
	ClassDateTime
	ClassAny
)

// Valid reports whether d is a known discriminant.
func (d Datatype) Valid() bool {
	return int(d) < len(table) && table[d].name != ""
}

func (d Datatype) String() string {
	if !d.Valid() {
		return fmt.Sprintf("DATATYPE(%d)", uint8(d))
	}
	return table[d].name
}

// Size is the width in bytes of one scalar value.
func (d Datatype) Size() uint64 {
	if !d.Valid() {
		return 0
	}
	return uint64(table[d].size)
}

func (d Datatype) Class() Class {
	if !d.Valid() {
		return 0
	}
	return table[d].class
}

// IsInteger is true for signed, unsigned and date/time types: the kinds
// that can address dense cells.
func (d Datatype) IsInteger() bool {
	switch d.Class() {
	case ClassSigned, ClassUnsigned, ClassDateTime:
		return true
	}
	return false
}

func (d Datatype) IsFloat() bool  { return d.Class() == ClassFloat }
func (d Datatype) IsString() bool { return d.Class() == ClassString }

// IsNumeric is true for every fixed-width arithmetic type.
func (d Datatype) IsNumeric() bool { return d.IsInteger() || d.IsFloat() }

// Parse resolves a name such as "INT32" or "string_utf8".
func Parse(name string) (Datatype, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for i := range table {
		if table[i].name != "" && table[i].name == n {
			return Datatype(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDatatype, name)
}

// MarshalText lets datatypes appear by name in JSON and YAML documents.
func (d Datatype) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDatatype, uint8(d))
	}
	return []byte(d.String()), nil
}

func (d *Datatype) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Check validates that a buffer whose elements have type buf can carry
// values of the schema type want. The string family is compatible with
// unsigned buffers of the same code-unit width, and date/time values are
// carried in int64 buffers.
func Check(buf, want Datatype) error {
	if !buf.Valid() || !want.Valid() {
		return fmt.Errorf("%w: %s vs %s", ErrTypeMismatch, buf, want)
	}
	if buf == want {
		return nil
	}
	switch want.Class() {
	case ClassString, ClassAny:
		if buf.Size() != want.Size() {
			break
		}
		if buf.Class() == ClassString || buf.Class() == ClassUnsigned || buf == Char || buf == Any {
			return nil
		}
		if buf == Int8 && want.Size() == 1 {
			return nil
		}
	case ClassDateTime:
		if buf == Int64 {
			return nil
		}
	}
	return fmt.Errorf("%w: buffer %s cannot carry %s", ErrTypeMismatch, buf, want)
}
