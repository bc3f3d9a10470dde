package schema

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novatile/internal/datatype"
)

func mustDim[T datatype.Element](t *testing.T, name string, lo, hi, ext T) *Dimension {
	t.Helper()
	d, err := NewDimension(name, lo, hi, ext)
	require.NoError(t, err)
	return d
}

func mustAttr(t *testing.T, name string, dt datatype.Datatype) *Attribute {
	t.Helper()
	a, err := NewAttribute(name, dt)
	require.NoError(t, err)
	return a
}

func denseSchema(t *testing.T) *Schema {
	t.Helper()
	s := New(Dense)
	require.NoError(t, s.AddDimension(mustDim[int32](t, "rows", 1, 4, 2)))
	require.NoError(t, s.AddDimension(mustDim[int32](t, "cols", 1, 4, 2)))

	a1 := mustAttr(t, "a1", datatype.Int32)
	require.NoError(t, a1.SetFilters(FilterList{Filters: []Filter{{Type: FilterGzip, Level: 5}}}))
	require.NoError(t, s.AddAttribute(a1))

	a2 := mustAttr(t, "a2", datatype.StringUTF8)
	require.NoError(t, a2.SetNullable(true))
	require.NoError(t, s.AddAttribute(a2))
	return s
}

func TestDomainCellNum(t *testing.T) {
	d, err := NewDomain(
		mustDim[int32](t, "d1", -10, 10, 5),
		mustDim[int32](t, "d2", 1, 10, 5),
	)
	require.NoError(t, err)

	n, err := d.CellNum()
	require.NoError(t, err)
	require.Equal(t, uint64(210), n)
}

func TestDomainCellNumUnsupported(t *testing.T) {
	t.Run("float", func(t *testing.T) {
		d, err := NewDomain(mustDim(t, "x", 0.0, 1.0, 0.5))
		require.NoError(t, err)
		_, err = d.CellNum()
		require.ErrorIs(t, err, ErrUnsupportedDomainType)
	})

	t.Run("string", func(t *testing.T) {
		sd, err := NewStringDimension("key")
		require.NoError(t, err)
		d, err := NewDomain(sd)
		require.NoError(t, err)
		_, err = d.CellNum()
		require.ErrorIs(t, err, ErrUnsupportedDomainType)
	})

	t.Run("overflow", func(t *testing.T) {
		d, err := NewDomain(
			mustDim[uint64](t, "a", 0, 1<<40, 1),
			mustDim[uint64](t, "b", 0, 1<<40, 1),
		)
		require.NoError(t, err)
		_, err = d.CellNum()
		require.ErrorIs(t, err, ErrSchemaValidation)
	})
}

func TestDomainAddDimension(t *testing.T) {
	d, err := NewDomain(mustDim[int32](t, "d1", 0, 9, 2))
	require.NoError(t, err)

	err = d.AddDimension(mustDim[int32](t, "d1", 0, 9, 2))
	require.ErrorIs(t, err, ErrSchemaValidation)

	err = d.AddDimension(mustDim[int64](t, "d2", 0, 9, 2))
	require.ErrorIs(t, err, ErrSchemaValidation)

	sd, err := NewStringDimension("s")
	require.NoError(t, err)
	require.NoError(t, d.AddDimension(sd))
	require.Equal(t, 2, d.NDim())
	require.Equal(t, datatype.Int32, d.Type())
}

func TestNewDimensionValidation(t *testing.T) {
	_, err := NewDimension[int32]("d", 5, 1, 1)
	require.ErrorIs(t, err, ErrSchemaValidation)

	_, err = NewDimension[int32]("d", 0, 9, 0)
	require.ErrorIs(t, err, ErrSchemaValidation)

	_, err = NewDimension[int32]("d", 0, 9, 11)
	require.ErrorIs(t, err, ErrSchemaValidation)

	_, err = NewDimensionOf("d", datatype.StringUTF8, nil, nil, nil)
	require.ErrorIs(t, err, ErrSchemaValidation)

	d, err := ParseDimension("t", datatype.DateTimeDay, "0", "364", "7")
	require.NoError(t, err)
	span, full, err := d.Span()
	require.NoError(t, err)
	require.False(t, full)
	require.Equal(t, uint64(365), span)
}

func TestSchemaCheck(t *testing.T) {
	t.Run("valid dense", func(t *testing.T) {
		require.NoError(t, denseSchema(t).Check())
	})

	t.Run("no dimensions", func(t *testing.T) {
		s := New(Sparse)
		require.NoError(t, s.AddAttribute(mustAttr(t, "a", datatype.Int32)))
		require.ErrorIs(t, s.Check(), ErrSchemaValidation)
	})

	t.Run("no attributes", func(t *testing.T) {
		s := New(Sparse)
		require.NoError(t, s.AddDimension(mustDim[int32](t, "d", 0, 9, 2)))
		require.ErrorIs(t, s.Check(), ErrSchemaValidation)
	})

	t.Run("sparse zero capacity", func(t *testing.T) {
		s := New(Sparse)
		require.NoError(t, s.AddDimension(mustDim[int32](t, "d", 0, 9, 2)))
		require.NoError(t, s.AddAttribute(mustAttr(t, "a", datatype.Int32)))
		require.NoError(t, s.SetCapacity(0))
		require.ErrorIs(t, s.Check(), ErrSchemaValidation)
	})

	t.Run("dups on dense", func(t *testing.T) {
		s := denseSchema(t)
		require.NoError(t, s.SetAllowsDups(true))
		require.ErrorIs(t, s.Check(), ErrSchemaValidation)
	})

	t.Run("dups on sparse", func(t *testing.T) {
		s := New(Sparse)
		require.NoError(t, s.AddDimension(mustDim[int32](t, "d", 0, 9, 2)))
		require.NoError(t, s.AddAttribute(mustAttr(t, "a", datatype.Int32)))
		require.NoError(t, s.SetAllowsDups(true))
		require.NoError(t, s.Check())
	})

	t.Run("dense float domain", func(t *testing.T) {
		s := New(Dense)
		require.NoError(t, s.AddDimension(mustDim(t, "x", 0.0, 1.0, 0.5)))
		require.NoError(t, s.AddAttribute(mustAttr(t, "a", datatype.Int32)))
		require.ErrorIs(t, s.Check(), ErrSchemaValidation)
	})
}

func TestSchemaNameCollisions(t *testing.T) {
	s := denseSchema(t)

	require.ErrorIs(t, s.AddAttribute(mustAttr(t, "a1", datatype.Int64)), ErrSchemaValidation)
	require.ErrorIs(t, s.AddAttribute(mustAttr(t, "rows", datatype.Int64)), ErrSchemaValidation)
	require.ErrorIs(t, s.AddAttribute(mustAttr(t, CoordsName, datatype.Int64)), ErrSchemaValidation)
	require.ErrorIs(t, s.AddDimension(mustDim[int32](t, "a1", 1, 4, 2)), ErrSchemaValidation)
	require.Equal(t, 2, s.NAttr())
}

func TestSchemaField(t *testing.T) {
	s := denseSchema(t)

	f, err := s.Field("a2")
	require.NoError(t, err)
	require.True(t, f.IsVar())
	require.True(t, f.Nullable)

	f, err = s.Field("rows")
	require.NoError(t, err)
	require.True(t, f.IsDim)
	require.Equal(t, datatype.Int32, f.Type)

	f, err = s.Field(CoordsName)
	require.NoError(t, err)
	require.True(t, f.IsCoords)
	require.Equal(t, uint32(2), f.CellValNum)

	_, err = s.Field("nope")
	require.ErrorIs(t, err, ErrFieldNotFound)
}

func TestSchemaJSONGolden(t *testing.T) {
	s := denseSchema(t)
	require.NoError(t, s.Check())

	data, err := Marshal(s)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "dense_schema", data)
}

func TestSchemaJSONRoundTripFreezes(t *testing.T) {
	s := denseSchema(t)
	data, err := Marshal(s)
	require.NoError(t, err)

	back, err := Unmarshal(data)
	require.NoError(t, err)
	require.True(t, back.Frozen())
	require.Equal(t, 2, back.Domain().NDim())

	a2, _, ok := back.AttributeByName("a2")
	require.True(t, ok)
	require.True(t, a2.Nullable())
	require.True(t, a2.IsVar())

	a1, _, ok := back.AttributeByName("a1")
	require.True(t, ok)
	require.Equal(t, FilterGzip, a1.Filters().Filters[0].Type)

	require.ErrorIs(t, back.AddAttribute(mustAttr(t, "a3", datatype.Int32)), ErrSchemaFrozen)
	require.ErrorIs(t, a1.SetNullable(true), ErrSchemaFrozen)
	require.ErrorIs(t, back.Domain().Dimension(0).SetFilters(FilterList{}), ErrSchemaValidation)

	n, err := back.Domain().CellNum()
	require.NoError(t, err)
	require.Equal(t, uint64(16), n)
}

func TestAttributeFillValue(t *testing.T) {
	a := mustAttr(t, "a", datatype.Int32)
	require.Equal(t, []byte{0, 0, 0, 0}, a.FillValue())

	require.ErrorIs(t, a.SetFillValue([]byte{1}), ErrSchemaValidation)
	require.NoError(t, a.SetFillValue(datatype.Encode[int32](-1)))
	require.Equal(t, datatype.Encode[int32](-1), a.FillValue())

	require.NoError(t, a.SetCellValNum(2))
	require.Equal(t, uint64(8), a.CellSize())
	require.Len(t, a.FillValue(), 8)
}
