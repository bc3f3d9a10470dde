package bx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLittleEndianReadWrite(t *testing.T) {
	b := make([]byte, 8)

	PutU16(b, 0x1234)
	require.Equal(t, []byte{0x34, 0x12}, b[:2])
	require.Equal(t, uint16(0x1234), U16(b))

	PutU32(b, 0x01020304)
	require.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, b[:4])
	require.Equal(t, uint32(0x01020304), U32(b))

	PutU64(b, 0x0102030405060708)
	require.Equal(t, []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}, b)
	require.Equal(t, uint64(0x0102030405060708), U64(b))
}

func TestSignedAndFloat(t *testing.T) {
	b := make([]byte, 8)

	i32 := int32(-123456)
	PutU32(b, uint32(i32))
	require.Equal(t, i32, I32(b))

	i64 := int64(-1234567890)
	PutU64(b, uint64(i64))
	require.Equal(t, i64, I64(b))

	PutF32(b, 1.5)
	require.Equal(t, float32(1.5), F32(b))

	PutF64(b, -2.25)
	require.Equal(t, -2.25, F64(b))
}

func TestReader(t *testing.T) {
	var b []byte
	b = AppendU32(b, 7)
	b = AppendU64(b, 1<<40)
	b = AppendBytes(b, []byte("abc"))

	r := NewReader(b)
	require.Equal(t, uint32(7), r.U32())
	require.Equal(t, uint64(1<<40), r.U64())
	require.Equal(t, []byte("abc"), r.Bytes())
	require.NoError(t, r.Err())
	require.Equal(t, 0, r.Remaining())

	// short read latches the error
	require.Equal(t, uint32(0), r.U32())
	require.ErrorIs(t, r.Err(), ErrShort)
}
