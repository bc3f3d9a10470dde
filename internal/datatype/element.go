package datatype

import (
	"reflect"
	"unsafe"
)

// Element is the set of Go scalar types a caller buffer may hold.
type Element interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Of returns the canonical datatype for the Go element type T.
func Of[T Element]() Datatype {
	var zero T
	switch reflect.TypeOf(zero).Kind() {
	case reflect.Int8:
		return Int8
	case reflect.Int16:
		return Int16
	case reflect.Int32:
		return Int32
	case reflect.Int64:
		return Int64
	case reflect.Uint8:
		return UInt8
	case reflect.Uint16:
		return UInt16
	case reflect.Uint32:
		return UInt32
	case reflect.Uint64:
		return UInt64
	case reflect.Float32:
		return Float32
	default:
		return Float64
	}
}

// AsBytes views s as raw bytes without copying. The view shares memory
// with s, so engine writes through it land in the caller's slice.
func AsBytes[T Element](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(unsafe.Sizeof(zero)))
}

// Encode copies values into a fresh byte slice.
func Encode[T Element](vals ...T) []byte {
	out := make([]byte, len(vals)*int(Of[T]().Size()))
	copy(out, AsBytes(vals))
	return out
}

// Decode copies whole elements out of b.
func Decode[T Element](b []byte) []T {
	var zero T
	n := len(b) / int(unsafe.Sizeof(zero))
	out := make([]T, n)
	copy(AsBytes(out), b)
	return out
}

// Check is the generic form of Check for a Go element type.
func CheckElement[T Element](want Datatype) error {
	return Check(Of[T](), want)
}
