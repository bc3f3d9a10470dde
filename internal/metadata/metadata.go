// Package metadata layers typed and JSON helpers over an array's
// key/value metadata.
//
// The typed helpers are strict: every failure is returned. The JSON
// helpers are lenient: a malformed item is logged and skipped, and the
// rest of the payload is still applied.
package metadata

import (
	"errors"
	"fmt"

	"github.com/tuannm99/novatile/internal/datatype"
	"github.com/tuannm99/novatile/internal/engine"
)

var ErrNotString = errors.New("metadata: value is not a string")

// Store is the metadata surface of an open array.
type Store interface {
	PutMetadata(key string, dt datatype.Datatype, num uint32, value []byte) error
	GetMetadata(key string) (engine.Metadata, error)
	AllMetadata() ([]engine.Metadata, error)
}

var _ Store = (*engine.Array)(nil)

// Put stores vals under key with the datatype of T.
func Put[T datatype.Element](s Store, key string, vals ...T) error {
	return s.PutMetadata(key, datatype.Of[T](), uint32(len(vals)), datatype.Encode(vals...))
}

// PutString stores v as a UTF-8 string.
func PutString(s Store, key, v string) error {
	return s.PutMetadata(key, datatype.StringUTF8, uint32(len(v)), []byte(v))
}

// Get returns the values under key. The stored type must be readable as T.
func Get[T datatype.Element](s Store, key string) ([]T, error) {
	m, err := s.GetMetadata(key)
	if err != nil {
		return nil, err
	}
	if err := datatype.CheckElement[T](m.Type); err != nil {
		return nil, fmt.Errorf("metadata %q: %w", key, err)
	}
	return datatype.Decode[T](m.Value), nil
}

// GetString returns a string-typed value decoded from its encoding.
func GetString(s Store, key string) (string, error) {
	m, err := s.GetMetadata(key)
	if err != nil {
		return "", err
	}
	if !m.Type.IsString() {
		return "", fmt.Errorf("%w: %q is %s", ErrNotString, key, m.Type)
	}
	return datatype.Format(m.Type, m.Value), nil
}
