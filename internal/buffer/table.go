// Package buffer keeps the table of caller buffers bound to a query and
// the per-round accounting of how much of each buffer the engine used.
package buffer

import (
	"errors"
	"fmt"

	"github.com/tuannm99/novatile/internal/datatype"
	"github.com/tuannm99/novatile/internal/schema"
)

var (
	ErrBufferNotBound   = errors.New("buffer: buffer not bound")
	ErrInvalidBuffer    = errors.New("buffer: invalid buffer")
	ErrCapacityExceeded = errors.New("buffer: capacity exceeded")
)

// Elements is a result size expressed in elements: offsets, data values
// and validity bytes.
type Elements struct {
	Offsets  uint64
	Data     uint64
	Validity uint64
}

type Table struct {
	schema   *schema.Schema
	bindings map[string]*Binding
	order    []string
	rounds   int
}

func NewTable(s *schema.Schema) *Table {
	return &Table{
		schema:   s,
		bindings: make(map[string]*Binding),
	}
}

// BindFixed binds a fixed-size field to data.
func BindFixed[T datatype.Element](t *Table, name string, data []T) error {
	return t.bind(name, datatype.Of[T](), Fixed, datatype.AsBytes(data), nil, nil)
}

// BindVar binds a variable-size field. offsets holds one byte offset into
// data per cell.
func BindVar[T datatype.Element](t *Table, name string, offsets []uint64, data []T) error {
	return t.bind(name, datatype.Of[T](), Var, datatype.AsBytes(data), offsets, nil)
}

// BindFixedNullable binds a nullable fixed-size field; validity holds one
// byte per cell, 1 for present and 0 for null.
func BindFixedNullable[T datatype.Element](t *Table, name string, data []T, validity []uint8) error {
	return t.bind(name, datatype.Of[T](), FixedNullable, datatype.AsBytes(data), nil, validity)
}

// BindVarNullable binds a nullable variable-size field.
func BindVarNullable[T datatype.Element](t *Table, name string, offsets []uint64, data []T, validity []uint8) error {
	return t.bind(name, datatype.Of[T](), VarNullable, datatype.AsBytes(data), offsets, validity)
}

// bind validates a binding completely before registering it, so a failed
// bind leaves the table untouched.
func (t *Table) bind(name string, elem datatype.Datatype, kind Kind, data []byte, offsets []uint64, validity []uint8) error {
	f, err := t.schema.Field(name)
	if err != nil {
		return err
	}
	if err := datatype.Check(elem, f.Type); err != nil {
		return fmt.Errorf("bind %q: %w", name, err)
	}
	if f.IsVar() != kind.IsVar() {
		return fmt.Errorf("%w: %q is %s but bound as %s", ErrInvalidBuffer, name, shape(f), kind)
	}
	if f.Nullable != kind.IsNullable() {
		if f.Nullable {
			return fmt.Errorf("%w: %q is nullable and needs a validity buffer", ErrInvalidBuffer, name)
		}
		return fmt.Errorf("%w: %q is not nullable", ErrInvalidBuffer, name)
	}

	b := &Binding{
		Field:    f,
		Kind:     kind,
		ElemType: elem,
		ElemSize: elem.Size(),
		Data:     data,
		Offsets:  offsets,
		Validity: validity,
	}
	if !kind.IsVar() && uint64(len(data))%b.cellBytes() != 0 {
		return fmt.Errorf("%w: %q data holds %d bytes, not a multiple of the %d-byte cell",
			ErrInvalidBuffer, name, len(data), b.cellBytes())
	}
	if kind.IsNullable() && uint64(len(validity)) != b.CellCapacity() {
		return fmt.Errorf("%w: %q validity has %d entries for %d cells",
			ErrInvalidBuffer, name, len(validity), b.CellCapacity())
	}

	if _, ok := t.bindings[name]; !ok {
		t.order = append(t.order, name)
	}
	t.bindings[name] = b
	return nil
}

func shape(f schema.Field) string {
	if f.IsVar() {
		return "variable-sized"
	}
	return "fixed-sized"
}

// Get returns the binding for name.
func (t *Table) Get(name string) (*Binding, bool) {
	b, ok := t.bindings[name]
	return b, ok
}

// Names lists bound names in first-bind order.
func (t *Table) Names() []string { return append([]string(nil), t.order...) }

func (t *Table) Len() int { return len(t.bindings) }

// Bindings returns bindings in first-bind order.
func (t *Table) Bindings() []*Binding {
	out := make([]*Binding, 0, len(t.order))
	for _, n := range t.order {
		out = append(out, t.bindings[n])
	}
	return out
}

// Rounds is the number of completed rounds.
func (t *Table) Rounds() int { return t.rounds }

// BeginRound clears the used counts of every binding.
func (t *Table) BeginRound() {
	for _, b := range t.bindings {
		b.reset()
	}
}

// EndRound marks a round as completed, making result sizes visible.
func (t *Table) EndRound() { t.rounds++ }

// UsedBytes sums the data and offset bytes used in the last round.
func (t *Table) UsedBytes() uint64 {
	var total uint64
	for _, b := range t.bindings {
		total += b.dataUsed + b.offsetsUsed + b.validityUsed
	}
	return total
}

// ResultElements converts the byte counts of the last round into element
// counts. Before the first round it returns zero counts.
func (t *Table) ResultElements(name string) (Elements, error) {
	b, ok := t.bindings[name]
	if !ok {
		return Elements{}, fmt.Errorf("%w: %q", ErrBufferNotBound, name)
	}
	if t.rounds == 0 {
		return Elements{}, nil
	}
	return Elements{
		Offsets:  b.offsetsUsed / 8,
		Data:     b.dataUsed / b.ElemSize,
		Validity: b.validityUsed,
	}, nil
}

// ResultBufferElements reports ResultElements for every binding.
func (t *Table) ResultBufferElements() map[string]Elements {
	out := make(map[string]Elements, len(t.bindings))
	for name := range t.bindings {
		e, _ := t.ResultElements(name)
		out[name] = e
	}
	return out
}
