// Package condition builds immutable predicate trees over attribute values
// and evaluates them cell by cell.
package condition

import (
	"errors"
	"fmt"
	"slices"

	"github.com/tuannm99/novatile/internal/datatype"
	"github.com/tuannm99/novatile/internal/schema"
)

var (
	ErrInvalidOperator = errors.New("condition: invalid operator")
	ErrNilOperand      = errors.New("condition: nil operand")
)

// Op discriminants match the engine ABI.
type Op uint8

const (
	LT Op = 0
	LE Op = 1
	GT Op = 2
	GE Op = 3
	EQ Op = 4
	NE Op = 5
)

var opSymbols = [...]string{LT: "<", LE: "<=", GT: ">", GE: ">=", EQ: "==", NE: "!="}

func (o Op) String() string {
	if int(o) < len(opSymbols) {
		return opSymbols[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// ParseOp accepts the symbols printed by Op.String plus "=" and "<>".
func ParseOp(s string) (Op, error) {
	switch s {
	case "=":
		return EQ, nil
	case "<>":
		return NE, nil
	}
	for i, sym := range opSymbols {
		if sym == s {
			return Op(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidOperator, s)
}

// Combinator discriminants match the engine ABI.
type Combinator uint8

const (
	And Combinator = 0
	Or  Combinator = 1
	Not Combinator = 2
)

func (c Combinator) String() string {
	switch c {
	case And:
		return "AND"
	case Or:
		return "OR"
	case Not:
		return "NOT"
	default:
		return fmt.Sprintf("combinator(%d)", uint8(c))
	}
}

// ValueFunc yields the value of an attribute for the cell being tested.
// valid is false when the cell is null.
type ValueFunc func(attr string) (value []byte, valid bool)

// Condition is a node of a predicate tree. Nodes never change after
// construction, so one node may appear in several trees.
type Condition interface {
	Evaluate(get ValueFunc) bool
	// Attributes lists the distinct attribute names referenced.
	Attributes() []string
	String() string

	sealed()
}

type leaf struct {
	attr  string
	typ   datatype.Datatype
	op    Op
	value []byte
	null  bool
}

type combined struct {
	left, right Condition
	comb        Combinator
}

type negated struct {
	inner Condition
}

func (leaf) sealed()     {}
func (combined) sealed() {}
func (negated) sealed()  {}

func lookup(s *schema.Schema, attr string, op Op) (*schema.Attribute, error) {
	if op > NE {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOperator, op)
	}
	a, _, ok := s.AttributeByName(attr)
	if !ok {
		return nil, &schema.FieldError{Name: attr}
	}
	return a, nil
}

// New compares a numeric attribute against value.
func New[T datatype.Element](s *schema.Schema, attr string, op Op, value T) (Condition, error) {
	a, err := lookup(s, attr, op)
	if err != nil {
		return nil, err
	}
	if a.Type().IsString() || a.IsVar() {
		return nil, fmt.Errorf("%w: numeric literal against %s attribute %q", datatype.ErrTypeMismatch, a.Type(), attr)
	}
	if err := datatype.CheckElement[T](a.Type()); err != nil {
		return nil, fmt.Errorf("attribute %q: %w", attr, err)
	}
	return leaf{attr: attr, typ: a.Type(), op: op, value: datatype.Encode(value)}, nil
}

// NewString compares a string attribute against value.
func NewString(s *schema.Schema, attr string, op Op, value string) (Condition, error) {
	a, err := lookup(s, attr, op)
	if err != nil {
		return nil, err
	}
	if !a.Type().IsString() {
		return nil, fmt.Errorf("%w: string literal against %s attribute %q", datatype.ErrTypeMismatch, a.Type(), attr)
	}
	b, err := datatype.ParseValue(a.Type(), value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", datatype.ErrTypeMismatch, err)
	}
	return leaf{attr: attr, typ: a.Type(), op: op, value: b}, nil
}

// NewParsed builds a leaf from the textual form of the literal, parsed as
// the attribute's own type.
func NewParsed(s *schema.Schema, attr string, op Op, text string) (Condition, error) {
	a, err := lookup(s, attr, op)
	if err != nil {
		return nil, err
	}
	if a.Type().IsString() {
		return NewString(s, attr, op, text)
	}
	b, err := datatype.ParseValue(a.Type(), text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", datatype.ErrTypeMismatch, err)
	}
	return leaf{attr: attr, typ: a.Type(), op: op, value: b}, nil
}

// NewNull tests a nullable attribute for null (EQ) or not null (NE).
func NewNull(s *schema.Schema, attr string, op Op) (Condition, error) {
	a, err := lookup(s, attr, op)
	if err != nil {
		return nil, err
	}
	if op != EQ && op != NE {
		return nil, fmt.Errorf("%w: null only supports == and !=", ErrInvalidOperator)
	}
	if !a.Nullable() {
		return nil, fmt.Errorf("%w: attribute %q is not nullable", datatype.ErrTypeMismatch, attr)
	}
	return leaf{attr: attr, typ: a.Type(), op: op, null: true}, nil
}

// Combine joins two trees with AND or OR. The operands are not modified.
func Combine(left, right Condition, c Combinator) (Condition, error) {
	if left == nil || right == nil {
		return nil, ErrNilOperand
	}
	if c != And && c != Or {
		return nil, fmt.Errorf("%w: %s is unary, use Negate", ErrInvalidOperator, c)
	}
	return combined{left: left, right: right, comb: c}, nil
}

// Negate wraps c in NOT.
func Negate(c Condition) (Condition, error) {
	if c == nil {
		return nil, ErrNilOperand
	}
	return negated{inner: c}, nil
}

func (l leaf) Evaluate(get ValueFunc) bool {
	v, valid := get(l.attr)
	if l.null {
		if l.op == EQ {
			return !valid
		}
		return valid
	}
	if !valid || len(v) < len(l.value) && !l.typ.IsString() {
		return false
	}
	c := datatype.Compare(l.typ, v, l.value)
	switch l.op {
	case LT:
		return c < 0
	case LE:
		return c <= 0
	case GT:
		return c > 0
	case GE:
		return c >= 0
	case EQ:
		return c == 0
	default:
		return c != 0
	}
}

func (l leaf) Attributes() []string { return []string{l.attr} }

func (l leaf) String() string {
	if l.null {
		return fmt.Sprintf("%s %s null", l.attr, l.op)
	}
	if l.typ.IsString() {
		return fmt.Sprintf("%s %s %q", l.attr, l.op, datatype.Format(l.typ, l.value))
	}
	return fmt.Sprintf("%s %s %s", l.attr, l.op, datatype.Format(l.typ, l.value))
}

func (c combined) Evaluate(get ValueFunc) bool {
	if c.comb == And {
		return c.left.Evaluate(get) && c.right.Evaluate(get)
	}
	return c.left.Evaluate(get) || c.right.Evaluate(get)
}

func (c combined) Attributes() []string {
	out := c.left.Attributes()
	for _, a := range c.right.Attributes() {
		if !slices.Contains(out, a) {
			out = append(out, a)
		}
	}
	return out
}

func (c combined) String() string {
	return fmt.Sprintf("(%s %s %s)", c.left, c.comb, c.right)
}

func (n negated) Evaluate(get ValueFunc) bool { return !n.inner.Evaluate(get) }
func (n negated) Attributes() []string        { return n.inner.Attributes() }
func (n negated) String() string              { return fmt.Sprintf("NOT %s", n.inner) }
