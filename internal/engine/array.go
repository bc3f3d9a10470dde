package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/tuannm99/novatile/internal/datatype"
	"github.com/tuannm99/novatile/internal/query"
	"github.com/tuannm99/novatile/internal/schema"
)

var (
	_ query.Array        = (*Array)(nil)
	_ query.PoolProvider = (*Array)(nil)
)

// Array is an open handle. Reads see the fragments that existed at the
// handle's timestamp; Reopen moves the view forward.
type Array struct {
	eng     *Engine
	st      *arrayState
	key     string
	uri     string
	mode    query.Type
	fixedTS uint64

	mu     sync.Mutex
	ts     uint64
	frags  []fragmentRecord
	closed bool
}

func (a *Array) URI() string            { return a.uri }
func (a *Array) Schema() *schema.Schema { return a.st.schema }
func (a *Array) QueryType() query.Type  { return a.mode }
func (a *Array) AsyncPool() *query.Pool { return a.eng.pool }

// Timestamp is the view (reads) or stamp (pinned writes) timestamp in ms.
func (a *Array) Timestamp() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ts
}

func (a *Array) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.closed
}

func (a *Array) refresh() error {
	ts := a.fixedTS
	if ts == 0 {
		ts = max(nowMillis(), a.st.lastTimestamp())
	}
	recs, err := a.st.catalog.fragments(context.Background(), ts)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.ts, a.frags = ts, recs
	a.mu.Unlock()
	return nil
}

// Close releases the handle. Closing twice is a no-op.
func (a *Array) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()
	return a.eng.release(a.key)
}

// Reopen refreshes the fragment view without closing the handle.
func (a *Array) Reopen() error {
	if err := a.check(); err != nil {
		return err
	}
	return a.refresh()
}

func (a *Array) check() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("%w: %s", ErrArrayClosed, a.uri)
	}
	return nil
}

func (a *Array) checkWrite() error {
	if err := a.check(); err != nil {
		return err
	}
	if a.mode != query.Write {
		return fmt.Errorf("%w: %s opened for %s", ErrInvalidMode, a.uri, a.mode)
	}
	return nil
}

func (a *Array) snapshot() []fragmentRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frags
}

// NewSession starts the engine side of one query.
func (a *Array) NewSession() (query.Session, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	if a.mode == query.Write {
		return &writeSession{arr: a}, nil
	}
	return &readSession{arr: a}, nil
}

// FragmentInfo describes a fragment visible to this handle.
type FragmentInfo struct {
	query.FragmentInfo
	Dense          bool
	NonEmptyDomain [][2][]byte
}

// Fragments lists the visible fragments, oldest first.
func (a *Array) Fragments() ([]FragmentInfo, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	nd := a.st.schema.Domain().NDim()
	recs := a.snapshot()
	out := make([]FragmentInfo, 0, len(recs))
	for _, r := range recs {
		ned, err := decodeDomain(r.NonEmptyDomain, nd)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r.Name, err)
		}
		out = append(out, FragmentInfo{FragmentInfo: a.st.fragmentInfo(r), Dense: r.Dense, NonEmptyDomain: ned})
	}
	return out, nil
}

// NonEmptyDomain is the per-dimension bounding box of all visible cells.
// ok is false when the array holds no fragments.
func (a *Array) NonEmptyDomain() (bounds [][2][]byte, ok bool, err error) {
	frags, err := a.Fragments()
	if err != nil {
		return nil, false, err
	}
	dims := a.st.schema.Domain().Dimensions()
	for _, f := range frags {
		if f.CellNum == 0 {
			continue
		}
		if bounds == nil {
			bounds = make([][2][]byte, len(dims))
			copy(bounds, f.NonEmptyDomain)
			continue
		}
		for i, dim := range dims {
			if datatype.Compare(dim.Type(), f.NonEmptyDomain[i][0], bounds[i][0]) < 0 {
				bounds[i][0] = f.NonEmptyDomain[i][0]
			}
			if datatype.Compare(dim.Type(), f.NonEmptyDomain[i][1], bounds[i][1]) > 0 {
				bounds[i][1] = f.NonEmptyDomain[i][1]
			}
		}
	}
	return bounds, bounds != nil, nil
}

// PutMetadata stores num elements of dt under key, replacing any previous
// value. The array must be open for writing.
func (a *Array) PutMetadata(key string, dt datatype.Datatype, num uint32, value []byte) error {
	if err := a.checkWrite(); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidMetadata)
	}
	if !dt.Valid() || dt == datatype.Any {
		return fmt.Errorf("%w: %q has unsupported type %s", ErrInvalidMetadata, key, dt)
	}
	if want := uint64(num) * dt.Size(); uint64(len(value)) != want {
		return fmt.Errorf("%w: %q has %d bytes, want %d for %d x %s", ErrInvalidMetadata, key, len(value), want, num, dt)
	}
	return a.st.catalog.putMetadata(context.Background(), Metadata{Key: key, Type: dt, Num: num, Value: value})
}

// DeleteMetadata removes key. Missing keys are ignored.
func (a *Array) DeleteMetadata(key string) error {
	if err := a.checkWrite(); err != nil {
		return err
	}
	return a.st.catalog.deleteMetadata(context.Background(), key)
}

// GetMetadata returns the value stored under key or ErrMetadataNotFound.
func (a *Array) GetMetadata(key string) (Metadata, error) {
	if err := a.check(); err != nil {
		return Metadata{}, err
	}
	return a.st.catalog.getMetadata(context.Background(), key)
}

// HasMetadata reports whether key exists and its type.
func (a *Array) HasMetadata(key string) (datatype.Datatype, bool, error) {
	m, err := a.GetMetadata(key)
	if err != nil {
		if isNotFound(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return m.Type, true, nil
}

// AllMetadata returns every entry ordered by key.
func (a *Array) AllMetadata() ([]Metadata, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	return a.st.catalog.listMetadata(context.Background())
}

func (a *Array) MetadataNum() (uint64, error) {
	all, err := a.AllMetadata()
	return uint64(len(all)), err
}

// MetadataAt returns the i-th entry in key order.
func (a *Array) MetadataAt(i uint64) (Metadata, error) {
	all, err := a.AllMetadata()
	if err != nil {
		return Metadata{}, err
	}
	if i >= uint64(len(all)) {
		return Metadata{}, fmt.Errorf("%w: index %d of %d", ErrMetadataNotFound, i, len(all))
	}
	return all[i], nil
}
