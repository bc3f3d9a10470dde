package buffer

import (
	"fmt"

	"github.com/tuannm99/novatile/internal/datatype"
	"github.com/tuannm99/novatile/internal/schema"
)

// Kind is the shape of a binding.
type Kind uint8

const (
	Fixed Kind = iota
	Var
	FixedNullable
	VarNullable
)

func (k Kind) String() string {
	switch k {
	case Fixed:
		return "fixed"
	case Var:
		return "var"
	case FixedNullable:
		return "fixed-nullable"
	case VarNullable:
		return "var-nullable"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) IsVar() bool      { return k == Var || k == VarNullable }
func (k Kind) IsNullable() bool { return k == FixedNullable || k == VarNullable }

// Binding ties one field to caller memory. Data, Offsets and Validity
// alias the caller's slices; the table never copies or retains them past
// the next Bind of the same name.
type Binding struct {
	Field    schema.Field
	Kind     Kind
	ElemType datatype.Datatype
	ElemSize uint64

	Data     []byte
	Offsets  []uint64
	Validity []uint8

	cellsUsed    uint64
	dataUsed     uint64
	offsetsUsed  uint64
	validityUsed uint64
}

// cellBytes is the byte width of one fixed cell.
func (b *Binding) cellBytes() uint64 {
	return uint64(b.Field.CellValNum) * b.ElemSize
}

// CellCapacity is how many cells the bound memory can hold.
func (b *Binding) CellCapacity() uint64 {
	if b.Kind.IsVar() {
		return uint64(len(b.Offsets))
	}
	return uint64(len(b.Data)) / b.cellBytes()
}

// Capacity returns the byte capacity offered for offsets, data and
// validity.
func (b *Binding) Capacity() (offsets, data, validity uint64) {
	return uint64(len(b.Offsets)) * 8, uint64(len(b.Data)), uint64(len(b.Validity))
}

// Used returns the bytes populated (reads) or consumed (writes) in the
// last round.
func (b *Binding) Used() (offsets, data, validity uint64) {
	return b.offsetsUsed, b.dataUsed, b.validityUsed
}

func (b *Binding) CellsUsed() uint64 { return b.cellsUsed }

func (b *Binding) reset() {
	b.cellsUsed, b.dataUsed, b.offsetsUsed, b.validityUsed = 0, 0, 0, 0
}

// Fits reports whether one more cell holding value can be appended in the
// current round.
func (b *Binding) Fits(value []byte) bool {
	if b.cellsUsed >= b.CellCapacity() {
		return false
	}
	if b.Kind.IsVar() {
		return b.dataUsed+uint64(len(value)) <= uint64(len(b.Data))
	}
	return b.dataUsed+b.cellBytes() <= uint64(len(b.Data))
}

// Append writes one result cell into the bound memory. Fixed cells must be
// exactly one cell wide. Nulls on non-nullable bindings are rejected.
func (b *Binding) Append(value []byte, valid bool) error {
	if !b.Fits(value) {
		return fmt.Errorf("%w: %q", ErrCapacityExceeded, b.Field.Name)
	}
	if !valid && !b.Kind.IsNullable() {
		return fmt.Errorf("%w: null cell for non-nullable %q", ErrInvalidBuffer, b.Field.Name)
	}
	if b.Kind.IsVar() {
		if uint64(len(value))%b.ElemSize != 0 {
			return fmt.Errorf("%w: %q value of %d bytes is not a whole number of elements",
				ErrInvalidBuffer, b.Field.Name, len(value))
		}
		b.Offsets[b.cellsUsed] = b.dataUsed
		b.offsetsUsed += 8
	} else if uint64(len(value)) != b.cellBytes() {
		return fmt.Errorf("%w: %q cell is %d bytes, want %d",
			ErrInvalidBuffer, b.Field.Name, len(value), b.cellBytes())
	}
	copy(b.Data[b.dataUsed:], value)
	b.dataUsed += uint64(len(value))
	if b.Kind.IsNullable() {
		if valid {
			b.Validity[b.cellsUsed] = 1
		} else {
			b.Validity[b.cellsUsed] = 0
		}
		b.validityUsed++
	}
	b.cellsUsed++
	return nil
}

// Cell returns the i-th cell supplied by the caller for a write. Var
// offsets are byte offsets into Data and must be non-decreasing.
func (b *Binding) Cell(i uint64) (value []byte, valid bool, err error) {
	n := b.CellCapacity()
	if i >= n {
		return nil, false, fmt.Errorf("%w: cell %d of %d in %q", ErrInvalidBuffer, i, n, b.Field.Name)
	}
	valid = true
	if b.Kind.IsNullable() {
		valid = b.Validity[i] != 0
	}
	if !b.Kind.IsVar() {
		w := b.cellBytes()
		return b.Data[i*w : (i+1)*w], valid, nil
	}
	start := b.Offsets[i]
	end := uint64(len(b.Data))
	if i+1 < n {
		end = b.Offsets[i+1]
	}
	if start > end || end > uint64(len(b.Data)) {
		return nil, false, fmt.Errorf("%w: %q offsets [%d, %d) outside %d data bytes",
			ErrInvalidBuffer, b.Field.Name, start, end, len(b.Data))
	}
	if (end-start)%b.ElemSize != 0 {
		return nil, false, fmt.Errorf("%w: %q offset %d is not element aligned", ErrInvalidBuffer, b.Field.Name, start)
	}
	return b.Data[start:end], valid, nil
}

// Consume marks the whole bound input as consumed by a write round.
func (b *Binding) Consume() {
	b.cellsUsed = b.CellCapacity()
	b.dataUsed = uint64(len(b.Data))
	b.offsetsUsed = uint64(len(b.Offsets)) * 8
	b.validityUsed = uint64(len(b.Validity))
}

// SetUsed records byte counts reported by an engine round.
func (b *Binding) SetUsed(offsets, data, validity uint64) error {
	co, cd, cv := b.Capacity()
	if offsets > co || data > cd || validity > cv {
		return fmt.Errorf("%w: %q used (%d, %d, %d) over capacity (%d, %d, %d)",
			ErrCapacityExceeded, b.Field.Name, offsets, data, validity, co, cd, cv)
	}
	b.offsetsUsed, b.dataUsed, b.validityUsed = offsets, data, validity
	if b.Kind.IsVar() {
		b.cellsUsed = offsets / 8
	} else {
		b.cellsUsed = data / b.cellBytes()
	}
	return nil
}
