package metadata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novatile/internal/datatype"
	"github.com/tuannm99/novatile/internal/engine"
	"github.com/tuannm99/novatile/internal/query"
	"github.com/tuannm99/novatile/internal/schema"
)

func openArray(t *testing.T) *engine.Array {
	t.Helper()
	e, err := engine.New(t.TempDir(), engine.Options{PageCacheCapacity: 8, AsyncWorkers: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	s := schema.New(schema.Dense)
	d, err := schema.NewDimension[int32]("rows", 0, 9, 10)
	require.NoError(t, err)
	require.NoError(t, s.AddDimension(d))
	a, err := schema.NewAttribute("a", datatype.Int32)
	require.NoError(t, err)
	require.NoError(t, s.AddAttribute(a))
	require.NoError(t, e.CreateArray("arr", s))

	arr, err := e.OpenArray("arr", query.Write)
	require.NoError(t, err)
	t.Cleanup(func() { _ = arr.Close() })
	return arr
}

func TestStrict_TypedRoundTrip(t *testing.T) {
	arr := openArray(t)

	require.NoError(t, Put(arr, "ints", int64(1), 2, 3))
	require.NoError(t, Put(arr, "pi", 3.14))
	require.NoError(t, PutString(arr, "name", "héllo"))

	ints, err := Get[int64](arr, "ints")
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, ints)

	pi, err := Get[float64](arr, "pi")
	require.NoError(t, err)
	require.Equal(t, []float64{3.14}, pi)

	name, err := GetString(arr, "name")
	require.NoError(t, err)
	require.Equal(t, "héllo", name)
}

func TestStrict_ErrorsSurface(t *testing.T) {
	arr := openArray(t)
	require.NoError(t, Put(arr, "ints", int32(7)))

	_, err := Get[int32](arr, "missing")
	require.ErrorIs(t, err, engine.ErrMetadataNotFound)

	_, err = Get[float32](arr, "ints")
	require.ErrorIs(t, err, datatype.ErrTypeMismatch)

	_, err = GetString(arr, "ints")
	require.ErrorIs(t, err, ErrNotString)

	require.ErrorIs(t, PutString(arr, "", "x"), engine.ErrInvalidMetadata)
}

func TestLenient_PutJSON(t *testing.T) {
	arr := openArray(t)

	n := PutJSON(arr, []byte(`{
		"metadata_num": 4,
		"metadata": [
			{"key": "k1", "value_type": 11, "value": "abc"},
			{"key": "k2", "value_type": "INT32", "value_num": 3, "value": [1, 2, 3]},
			{"key": "bad", "value_type": 0, "value": [1.5]},
			{"key": "k3", "value_type": 3, "value": 2.5}
		]
	}`))
	require.Equal(t, 3, n)

	s, err := GetString(arr, "k1")
	require.NoError(t, err)
	require.Equal(t, "abc", s)

	m, err := arr.GetMetadata("k1")
	require.NoError(t, err)
	require.Equal(t, datatype.StringASCII, m.Type)

	ints, err := Get[int32](arr, "k2")
	require.NoError(t, err)
	require.Equal(t, []int32{1, 2, 3}, ints)

	f, err := Get[float64](arr, "k3")
	require.NoError(t, err)
	require.Equal(t, []float64{2.5}, f)

	_, err = arr.GetMetadata("bad")
	require.ErrorIs(t, err, engine.ErrMetadataNotFound)
}

func TestLenient_MalformedLeavesExisting(t *testing.T) {
	arr := openArray(t)
	require.NoError(t, Put(arr, "keep", uint16(5)))

	for _, payload := range []string{
		`{"metadata": [`,
		`not json`,
		`{"metadata": "nope"}`,
		`{"metadata": [{"key": "keep", "value_type": 99, "value": [1]}]}`,
		`{"metadata": [{"key": "keep", "value_type": "UINT16", "value_num": 2, "value": [1]}]}`,
	} {
		require.NotPanics(t, func() {
			require.Zero(t, PutJSON(arr, []byte(payload)))
		}, payload)
	}
	require.False(t, PutJSONForKey(arr, "keep", []byte(`{"value_type": "INT32", "value": "x"}`)))

	got, err := Get[uint16](arr, "keep")
	require.NoError(t, err)
	require.Equal(t, []uint16{5}, got)
}

func TestLenient_PutJSONForKey(t *testing.T) {
	arr := openArray(t)

	require.True(t, PutJSONForKey(arr, "override", []byte(`{"key": "ignored", "value_type": "UINT8", "value": [1, 2]}`)))
	require.True(t, PutJSONForKey(arr, "", []byte(`{"key": "own", "value_type": "INT64", "value": [9]}`)))
	require.False(t, PutJSONForKey(arr, "", []byte(`{"value_type": "INT64", "value": [9]}`)))

	b, err := Get[uint8](arr, "override")
	require.NoError(t, err)
	require.Equal(t, []uint8{1, 2}, b)
	_, err = arr.GetMetadata("ignored")
	require.ErrorIs(t, err, engine.ErrMetadataNotFound)

	v, err := Get[int64](arr, "own")
	require.NoError(t, err)
	require.Equal(t, []int64{9}, v)
}

func TestLenient_GetAndAllJSON(t *testing.T) {
	arr := openArray(t)
	require.NoError(t, Put(arr, "b", int32(1), -2))
	require.NoError(t, PutString(arr, "a", "text"))

	raw, ok := GetJSON(arr, "b")
	require.True(t, ok)
	require.JSONEq(t, `{"key":"b","value_type":"INT32","value_num":2,"value":[1,-2]}`, string(raw))

	_, ok = GetJSON(arr, "missing")
	require.False(t, ok)

	all := AllJSON(arr)
	require.JSONEq(t, `{
		"metadata_num": 2,
		"metadata": [
			{"key":"a","value_type":"STRING_UTF8","value_num":4,"value":"text"},
			{"key":"b","value_type":"INT32","value_num":2,"value":[1,-2]}
		]
	}`, string(all))

	// Rendered items feed back into the lenient writer.
	var doc struct {
		Metadata []json.RawMessage `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(all, &doc))
	require.True(t, PutJSONForKey(arr, "copy", doc.Metadata[1]))
	got, err := Get[int32](arr, "copy")
	require.NoError(t, err)
	require.Equal(t, []int32{1, -2}, got)
}
