// Package novatile is the public entry point: open an engine over a data
// directory, create arrays from schemas, and read or write them through
// queries.
package novatile

import (
	"github.com/tuannm99/novatile/internal/condition"
	"github.com/tuannm99/novatile/internal/datatype"
	"github.com/tuannm99/novatile/internal/engine"
	"github.com/tuannm99/novatile/internal/query"
	"github.com/tuannm99/novatile/internal/schema"
	"github.com/tuannm99/novatile/internal/subarray"
)

type (
	Datatype  = datatype.Datatype
	Element   = datatype.Element
	Schema    = schema.Schema
	Dimension = schema.Dimension
	Attribute = schema.Attribute
	ArrayType = schema.ArrayType
	Layout    = schema.Layout
	Subarray  = subarray.Subarray
	Condition = condition.Condition
	Query     = query.Query
	QueryType = query.Type
	Status    = query.Status
	Round     = query.Round
	Engine    = engine.Engine
	Options   = engine.Options
	Array     = engine.Array

	Op         = condition.Op
	Combinator = condition.Combinator
	OpenOption = engine.OpenOption
)

const (
	Dense  = schema.Dense
	Sparse = schema.Sparse

	RowMajor    = schema.RowMajor
	ColMajor    = schema.ColMajor
	GlobalOrder = schema.GlobalOrder
	Unordered   = schema.Unordered

	Read  = query.Read
	Write = query.Write

	Failed        = query.Failed
	Completed     = query.Completed
	InProgress    = query.InProgress
	Incomplete    = query.Incomplete
	Uninitialized = query.Uninitialized

	LT = condition.LT
	LE = condition.LE
	GT = condition.GT
	GE = condition.GE
	EQ = condition.EQ
	NE = condition.NE

	And = condition.And
	Or  = condition.Or
)

// Open starts an engine over dataDir.
func Open(dataDir string, opts Options) (*Engine, error) { return engine.New(dataDir, opts) }

func NewSchema(t ArrayType) *Schema { return schema.New(t) }

func NewDimension[T Element](name string, lower, upper, extent T) (*Dimension, error) {
	return schema.NewDimension(name, lower, upper, extent)
}

func NewAttribute(name string, dt Datatype) (*Attribute, error) { return schema.NewAttribute(name, dt) }

// WithTimestamp opens the array as of ts (milliseconds).
func WithTimestamp(ts uint64) OpenOption { return engine.WithTimestamp(ts) }

// NewQuery prepares a query of the array's open mode.
func NewQuery(arr *Array) (*Query, error) {
	return query.New(arr, query.WithPool(arr.AsyncPool()))
}

func SetSubarray[T Element](q *Query, pairs ...T) error { return query.SetSubarrayValues(q, pairs...) }

func AddRange[T Element](q *Query, dim int, start, end T, stride ...T) error {
	return query.AddRange(q, dim, start, end, stride...)
}

func BindFixed[T Element](q *Query, name string, data []T) error {
	return query.BindFixed(q, name, data)
}

func BindVar[T Element](q *Query, name string, offsets []uint64, data []T) error {
	return query.BindVar(q, name, offsets, data)
}

func BindFixedNullable[T Element](q *Query, name string, data []T, validity []uint8) error {
	return query.BindFixedNullable(q, name, data, validity)
}

func BindVarNullable[T Element](q *Query, name string, offsets []uint64, data []T, validity []uint8) error {
	return query.BindVarNullable(q, name, offsets, data, validity)
}

// NewCondition compares attr against value. The value type must match the
// attribute.
func NewCondition[T Element](s *Schema, attr string, op Op, value T) (Condition, error) {
	return condition.New(s, attr, op, value)
}

func NewStringCondition(s *Schema, attr string, op Op, value string) (Condition, error) {
	return condition.NewString(s, attr, op, value)
}

func Combine(left, right Condition, c Combinator) (Condition, error) {
	return condition.Combine(left, right, c)
}

func Negate(c Condition) (Condition, error) { return condition.Negate(c) }
