package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novatile/internal/datatype"
	"github.com/tuannm99/novatile/internal/query"
	"github.com/tuannm99/novatile/internal/schema"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(t.TempDir(), Options{PageCacheCapacity: 16, AsyncWorkers: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func newAttr(t *testing.T, name string, dt datatype.Datatype) *schema.Attribute {
	t.Helper()
	a, err := schema.NewAttribute(name, dt)
	require.NoError(t, err)
	return a
}

// denseVector is a 1-D dense schema over rows [lo, hi].
func denseVector(t *testing.T, lo, hi, extent int32, attrs ...*schema.Attribute) *schema.Schema {
	t.Helper()
	s := schema.New(schema.Dense)
	d, err := schema.NewDimension[int32]("rows", lo, hi, extent)
	require.NoError(t, err)
	require.NoError(t, s.AddDimension(d))
	for _, a := range attrs {
		require.NoError(t, s.AddAttribute(a))
	}
	return s
}

// denseMatrix is a 2-D dense schema over [1,4]x[1,4] with 2x2 tiles.
func denseMatrix(t *testing.T) *schema.Schema {
	t.Helper()
	s := schema.New(schema.Dense)
	for _, name := range []string{"rows", "cols"} {
		d, err := schema.NewDimension[int32](name, 1, 4, 2)
		require.NoError(t, err)
		require.NoError(t, s.AddDimension(d))
	}
	require.NoError(t, s.AddAttribute(newAttr(t, "a", datatype.Int32)))
	return s
}

// sparsePoints is a 2-D sparse schema over [1,10]x[1,10].
func sparsePoints(t *testing.T, dups bool) *schema.Schema {
	t.Helper()
	s := schema.New(schema.Sparse)
	for _, name := range []string{"x", "y"} {
		d, err := schema.NewDimension[int32](name, 1, 10, 5)
		require.NoError(t, err)
		require.NoError(t, s.AddDimension(d))
	}
	require.NoError(t, s.AddAttribute(newAttr(t, "v", datatype.Int32)))
	require.NoError(t, s.SetAllowsDups(dups))
	return s
}

func openQuery(t *testing.T, e *Engine, uri string, mode query.Type, opts ...OpenOption) (*Array, *query.Query) {
	t.Helper()
	arr, err := e.OpenArray(uri, mode, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = arr.Close() })
	q, err := query.New(arr)
	require.NoError(t, err)
	return arr, q
}

func writeVector(t *testing.T, e *Engine, uri string, lo, hi int32, vals []int32, opts ...OpenOption) {
	t.Helper()
	arr, q := openQuery(t, e, uri, query.Write, opts...)
	require.NoError(t, query.SetSubarrayValues(q, lo, hi))
	require.NoError(t, query.BindFixed(q, "a1", vals))
	require.NoError(t, q.Submit(context.Background()))
	require.Equal(t, query.Completed, q.Status())
	require.NoError(t, arr.Close())
}

func readVector(t *testing.T, e *Engine, uri string, lo, hi int32) []int32 {
	t.Helper()
	_, q := openQuery(t, e, uri, query.Read)
	require.NoError(t, query.SetSubarrayValues(q, lo, hi))
	out := make([]int32, hi-lo+1)
	require.NoError(t, query.BindFixed(q, "a1", out))
	require.NoError(t, q.Submit(context.Background()))
	require.Equal(t, query.Completed, q.Status())
	n, err := q.ResultElements("a1")
	require.NoError(t, err)
	return out[:n.Data]
}

func writePoints(t *testing.T, e *Engine, uri string, xs, ys, vs []int32) error {
	t.Helper()
	_, q := openQuery(t, e, uri, query.Write)
	require.NoError(t, query.BindFixed(q, "x", xs))
	require.NoError(t, query.BindFixed(q, "y", ys))
	require.NoError(t, query.BindFixed(q, "v", vs))
	return q.Submit(context.Background())
}
