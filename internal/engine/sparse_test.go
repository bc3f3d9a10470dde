package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novatile/internal/datatype"
	"github.com/tuannm99/novatile/internal/query"
	"github.com/tuannm99/novatile/internal/schema"
)

type point struct{ x, y, v int32 }

func readPoints(t *testing.T, e *Engine, uri string, l schema.Layout, opts ...OpenOption) []point {
	t.Helper()
	_, q := openQuery(t, e, uri, query.Read, opts...)
	require.NoError(t, q.SetLayout(l))
	xs, ys, vs := make([]int32, 32), make([]int32, 32), make([]int32, 32)
	require.NoError(t, query.BindFixed(q, "x", xs))
	require.NoError(t, query.BindFixed(q, "y", ys))
	require.NoError(t, query.BindFixed(q, "v", vs))
	require.NoError(t, q.Submit(context.Background()))
	require.Equal(t, query.Completed, q.Status())

	n, err := q.ResultElements("v")
	require.NoError(t, err)
	out := make([]point, n.Data)
	for i := range out {
		out[i] = point{xs[i], ys[i], vs[i]}
	}
	return out
}

func TestSparse_Layouts(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateArray("pts", sparsePoints(t, false)))
	require.NoError(t, writePoints(t, e, "pts",
		[]int32{3, 1, 2, 1},
		[]int32{1, 2, 7, 1},
		[]int32{31, 12, 27, 11}))

	require.Equal(t, []point{{1, 1, 11}, {1, 2, 12}, {2, 7, 27}, {3, 1, 31}},
		readPoints(t, e, "pts", schema.RowMajor))
	require.Equal(t, []point{{1, 1, 11}, {3, 1, 31}, {1, 2, 12}, {2, 7, 27}},
		readPoints(t, e, "pts", schema.ColMajor))
	require.Equal(t, []point{{3, 1, 31}, {1, 2, 12}, {2, 7, 27}, {1, 1, 11}},
		readPoints(t, e, "pts", schema.Unordered))
	// (2,7) sits in the second column of tiles, so it comes after (3,1).
	require.Equal(t, []point{{1, 1, 11}, {1, 2, 12}, {3, 1, 31}, {2, 7, 27}},
		readPoints(t, e, "pts", schema.GlobalOrder))
}

func TestSparse_NewerFragmentWins(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateArray("pts", sparsePoints(t, false)))
	require.NoError(t, writePoints(t, e, "pts", []int32{1, 2}, []int32{1, 2}, []int32{1, 2}))
	require.NoError(t, writePoints(t, e, "pts", []int32{2, 3}, []int32{2, 3}, []int32{20, 30}))

	require.Equal(t, []point{{1, 1, 1}, {2, 2, 20}, {3, 3, 30}}, readPoints(t, e, "pts", schema.RowMajor))
}

func TestSparse_DuplicatesAllowed(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateArray("pts", sparsePoints(t, true)))
	require.NoError(t, writePoints(t, e, "pts", []int32{1, 1}, []int32{1, 1}, []int32{1, 2}))
	require.NoError(t, writePoints(t, e, "pts", []int32{1}, []int32{1}, []int32{3}))

	got := readPoints(t, e, "pts", schema.Unordered)
	require.Equal(t, []point{{1, 1, 1}, {1, 1, 2}, {1, 1, 3}}, got)
}

func TestSparse_WriteErrors(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateArray("pts", sparsePoints(t, false)))

	err := writePoints(t, e, "pts", []int32{1, 1}, []int32{1, 1}, []int32{1, 2})
	require.ErrorIs(t, err, ErrDuplicateCoords)

	err = writePoints(t, e, "pts", []int32{1, 11}, []int32{1, 1}, []int32{1, 2})
	require.ErrorIs(t, err, ErrOutOfDomain)
	require.Contains(t, err.Error(), "x = 11")

	_, q := openQuery(t, e, "pts", query.Write)
	require.NoError(t, query.BindFixed(q, "x", []int32{1}))
	require.NoError(t, query.BindFixed(q, "v", []int32{1}))
	require.Error(t, q.Submit(context.Background()))

	arr, err := e.OpenArray("pts", query.Read)
	require.NoError(t, err)
	defer arr.Close()
	frags, err := arr.Fragments()
	require.NoError(t, err)
	require.Empty(t, frags)
}

func TestSparse_GlobalOrderWrite(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateArray("pts", sparsePoints(t, false)))

	_, w := openQuery(t, e, "pts", query.Write)
	require.NoError(t, w.SetLayout(schema.GlobalOrder))
	require.NoError(t, query.BindFixed(w, "x", []int32{1, 1}))
	require.NoError(t, query.BindFixed(w, "y", []int32{1, 2}))
	require.NoError(t, query.BindFixed(w, "v", []int32{11, 12}))
	require.NoError(t, w.Submit(context.Background()))
	require.Equal(t, query.InProgress, w.Status())

	require.NoError(t, query.BindFixed(w, "x", []int32{3}))
	require.NoError(t, query.BindFixed(w, "y", []int32{1}))
	require.NoError(t, query.BindFixed(w, "v", []int32{31}))
	require.NoError(t, w.Submit(context.Background()))
	require.NoError(t, w.Finalize(context.Background()))
	require.Equal(t, query.Completed, w.Status())

	require.Equal(t, []point{{1, 1, 11}, {1, 2, 12}, {3, 1, 31}}, readPoints(t, e, "pts", schema.RowMajor))
}

func TestSparse_GlobalOrderUnsorted(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateArray("pts", sparsePoints(t, false)))

	_, w := openQuery(t, e, "pts", query.Write)
	require.NoError(t, w.SetLayout(schema.GlobalOrder))
	require.NoError(t, query.BindFixed(w, "x", []int32{2, 1}))
	require.NoError(t, query.BindFixed(w, "y", []int32{1, 1}))
	require.NoError(t, query.BindFixed(w, "v", []int32{1, 2}))
	require.NoError(t, w.Submit(context.Background()))

	err := w.Finalize(context.Background())
	require.ErrorIs(t, err, ErrUnsortedWrite)
	require.Equal(t, query.Failed, w.Status())
}

func TestSparse_CoordsBufferAndRange(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateArray("pts", sparsePoints(t, false)))

	_, w := openQuery(t, e, "pts", query.Write)
	require.NoError(t, query.BindFixed(w, schema.CoordsName, []int32{1, 1, 5, 5, 9, 9}))
	require.NoError(t, query.BindFixed(w, "v", []int32{1, 5, 9}))
	require.NoError(t, w.Submit(context.Background()))

	_, r := openQuery(t, e, "pts", query.Read)
	require.NoError(t, query.SetSubarrayValues[int32](r, 2, 10, 1, 10))
	coords := make([]int32, 6)
	vs := make([]int32, 3)
	require.NoError(t, query.BindFixed(r, schema.CoordsName, coords))
	require.NoError(t, query.BindFixed(r, "v", vs))
	require.NoError(t, r.Submit(context.Background()))

	n, err := r.ResultElements(schema.CoordsName)
	require.NoError(t, err)
	require.Equal(t, uint64(4), n.Data)
	require.Equal(t, []int32{5, 5, 9, 9}, coords[:4])
	require.Equal(t, []int32{5, 9}, vs[:2])
}

func TestSparse_Pagination(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateArray("pts", sparsePoints(t, false)))
	var xs, ys, vs []int32
	for x := int32(1); x <= 10; x++ {
		for y := int32(1); y <= 3; y++ {
			xs, ys, vs = append(xs, x), append(ys, y), append(vs, x*10+y)
		}
	}
	require.NoError(t, writePoints(t, e, "pts", xs, ys, vs))

	_, q := openQuery(t, e, "pts", query.Read)
	buf := make([]int32, 4)
	require.NoError(t, query.BindFixed(q, "v", buf))
	var got []int32
	err := q.Iterate(context.Background(), func(r query.Round) error {
		got = append(got, buf[:r.Elements["v"].Data]...)
		return nil
	}, query.IterateOptions{})
	require.NoError(t, err)
	require.Equal(t, vs, got)
}

func TestTimestamps_ViewAndFragments(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateArray("vec", denseVector(t, 0, 9, 5, newAttr(t, "a1", datatype.Int32))))

	writeVector(t, e, "vec", 0, 1, []int32{1, 2}, WithTimestamp(10))
	writeVector(t, e, "vec", 0, 1, []int32{3, 4}, WithTimestamp(20))

	_, q := openQuery(t, e, "vec", query.Read, WithTimestamp(15))
	require.NoError(t, query.SetSubarrayValues[int32](q, 0, 1))
	out := make([]int32, 2)
	require.NoError(t, query.BindFixed(q, "a1", out))
	require.NoError(t, q.Submit(context.Background()))
	require.Equal(t, []int32{1, 2}, out)

	require.Equal(t, []int32{3, 4}, readVector(t, e, "vec", 0, 1))

	arr, err := e.OpenArray("vec", query.Read)
	require.NoError(t, err)
	defer arr.Close()
	frags, err := arr.Fragments()
	require.NoError(t, err)
	require.Len(t, frags, 2)
	require.Equal(t, uint64(10), frags[0].TimestampStart)
	require.Equal(t, uint64(20), frags[1].TimestampEnd)
	require.True(t, frags[0].Dense)
	require.True(t, strings.HasPrefix(frags[0].URI, "vec/"+FragmentsDir+"/__10_10_"))
	require.True(t, strings.HasSuffix(frags[0].URI, "_1"))

	bounds, ok, err := arr.NonEmptyDomain()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, datatype.Encode[int32](0), bounds[0][0])
	require.Equal(t, datatype.Encode[int32](1), bounds[0][1])
}

func TestWrite_FragmentInfoOnQuery(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateArray("vec", denseVector(t, 0, 9, 5, newAttr(t, "a1", datatype.Int32))))

	_, w := openQuery(t, e, "vec", query.Write, WithTimestamp(42))
	require.NoError(t, query.SetSubarrayValues[int32](w, 0, 0))
	require.NoError(t, query.BindFixed(w, "a1", []int32{7}))
	require.NoError(t, w.Submit(context.Background()))

	require.Equal(t, uint32(1), w.FragmentNum())
	start, end, err := w.FragmentTimestampRange(0)
	require.NoError(t, err)
	require.Equal(t, uint64(42), start)
	require.Equal(t, uint64(42), end)
	uri, err := w.FragmentURI(0)
	require.NoError(t, err)
	require.Contains(t, uri, "__42_42_")
	_, err = w.FragmentURI(1)
	require.Error(t, err)
}

func TestArray_Reopen(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateArray("vec", denseVector(t, 0, 9, 5, newAttr(t, "a1", datatype.Int32))))

	arr, err := e.OpenArray("vec", query.Read)
	require.NoError(t, err)
	defer arr.Close()
	frags, err := arr.Fragments()
	require.NoError(t, err)
	require.Empty(t, frags)
	_, ok, err := arr.NonEmptyDomain()
	require.NoError(t, err)
	require.False(t, ok)

	writeVector(t, e, "vec", 0, 1, []int32{1, 2})

	require.NoError(t, arr.Reopen())
	frags, err = arr.Fragments()
	require.NoError(t, err)
	require.Len(t, frags, 1)

	require.NoError(t, arr.Close())
	require.ErrorIs(t, arr.Reopen(), ErrArrayClosed)
}

func TestArray_Metadata(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateArray("vec", denseVector(t, 0, 9, 5, newAttr(t, "a1", datatype.Int32))))

	w, err := e.OpenArray("vec", query.Write)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.PutMetadata("zeta", datatype.Int32, 2, datatype.Encode[int32](1, 2)))
	require.NoError(t, w.PutMetadata("alpha", datatype.StringUTF8, 5, []byte("hello")))
	require.ErrorIs(t, w.PutMetadata("bad", datatype.Int64, 2, []byte{1}), ErrInvalidMetadata)
	require.ErrorIs(t, w.PutMetadata("", datatype.Int32, 1, datatype.Encode[int32](1)), ErrInvalidMetadata)
	require.ErrorIs(t, w.PutMetadata("any", datatype.Any, 1, []byte{1}), ErrInvalidMetadata)

	r, err := e.OpenArray("vec", query.Read)
	require.NoError(t, err)
	defer r.Close()
	require.ErrorIs(t, r.PutMetadata("k", datatype.Int32, 1, datatype.Encode[int32](1)), ErrInvalidMode)

	n, err := r.MetadataNum()
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)
	first, err := r.MetadataAt(0)
	require.NoError(t, err)
	require.Equal(t, "alpha", first.Key)
	require.Equal(t, []byte("hello"), first.Value)
	_, err = r.MetadataAt(2)
	require.ErrorIs(t, err, ErrMetadataNotFound)

	m, err := r.GetMetadata("zeta")
	require.NoError(t, err)
	require.Equal(t, datatype.Int32, m.Type)
	require.Equal(t, uint32(2), m.Num)
	require.Equal(t, []int32{1, 2}, datatype.Decode[int32](m.Value))

	dt, ok, err := r.HasMetadata("zeta")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, datatype.Int32, dt)

	require.NoError(t, w.DeleteMetadata("zeta"))
	require.NoError(t, w.DeleteMetadata("missing"))
	_, ok, err = r.HasMetadata("zeta")
	require.NoError(t, err)
	require.False(t, ok)
	_, err = r.GetMetadata("zeta")
	require.ErrorIs(t, err, ErrMetadataNotFound)
}

func TestQuery_SubmitAsync(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.CreateArray("vec", denseVector(t, 0, 9, 5, newAttr(t, "a1", datatype.Int32))))
	writeVector(t, e, "vec", 0, 9, []int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})

	arr, err := e.OpenArray("vec", query.Read)
	require.NoError(t, err)
	defer arr.Close()
	q, err := query.New(arr, query.WithPool(arr.AsyncPool()))
	require.NoError(t, err)
	out := make([]int32, 10)
	require.NoError(t, query.BindFixed(q, "a1", out))

	done := make(chan error, 1)
	require.NoError(t, q.SubmitAsync(context.Background(), func(err error) { done <- err }))
	require.NoError(t, <-done)
	require.Equal(t, query.Completed, q.Status())
	require.Equal(t, int32(9), out[9])
}
