// Package engine is a local storage engine for arrays. Arrays live in
// directories under a data dir: a JSON schema file, a SQLite catalog of
// fragments and metadata, and a paged blob file holding fragment payloads.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tuannm99/novatile/internal/bufferpool"
	locking "github.com/tuannm99/novatile/internal/lock"
	"github.com/tuannm99/novatile/internal/query"
	"github.com/tuannm99/novatile/internal/schema"
	"github.com/tuannm99/novatile/internal/storage"
)

const (
	schemaFile  = "__schema.json"
	catalogFile = "__catalog.db"
	blobBase    = "__fragments.data"
)

type Options struct {
	// PageCacheCapacity is the number of pages shared by all open arrays.
	PageCacheCapacity int
	// AsyncWorkers sizes the pool behind Query.SubmitAsync.
	AsyncWorkers int
	// FragmentCacheSize is the number of decoded fragments kept per open
	// array. Defaults to DefaultFragmentCacheSize.
	FragmentCacheSize int
}

const DefaultFragmentCacheSize = 64

type Engine struct {
	DataDir string
	SM      *storage.StorageManager

	cache  *bufferpool.Cache
	arrays *locking.Registry[string, *arrayState]
	pool   *query.Pool
	closed atomic.Bool

	fragCacheSize int
}

// ArrayMeta is the on-disk descriptor of an array.
type ArrayMeta struct {
	URI       string         `json:"uri"`
	Schema    *schema.Schema `json:"schema"`
	CreatedAt time.Time      `json:"created_at"`
}

func New(dataDir string, opts Options) (*Engine, error) {
	if err := os.MkdirAll(dataDir, storage.FileMode0755); err != nil {
		return nil, err
	}
	pool, err := query.NewPool(opts.AsyncWorkers)
	if err != nil {
		return nil, fmt.Errorf("engine: async pool: %w", err)
	}
	if opts.FragmentCacheSize <= 0 {
		opts.FragmentCacheSize = DefaultFragmentCacheSize
	}
	sm := storage.NewStorageManager()
	return &Engine{
		DataDir:       dataDir,
		SM:            sm,
		cache:         bufferpool.NewCache(sm, opts.PageCacheCapacity),
		arrays:        locking.NewRegistry[string, *arrayState](),
		pool:          pool,
		fragCacheSize: opts.FragmentCacheSize,
	}, nil
}

// Close stops the async pool and flushes cached pages. Arrays still open
// keep working for synchronous calls.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.pool.Release()
	return e.cache.FlushAll()
}

// arrayDir maps a uri to its directory. Relative uris live under DataDir.
func (e *Engine) arrayDir(uri string) (string, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURI)
	}
	if filepath.IsAbs(uri) {
		return filepath.Clean(uri), nil
	}
	clean := filepath.Clean(filepath.FromSlash(uri))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes the data dir", ErrInvalidURI, uri)
	}
	return filepath.Join(e.DataDir, clean), nil
}

func writeArrayMeta(dir string, meta *ArrayMeta) error {
	if err := os.MkdirAll(dir, storage.FileMode0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, schemaFile), data, storage.FileMode0644)
}

func readArrayMeta(dir string) (*ArrayMeta, error) {
	data, err := os.ReadFile(filepath.Join(dir, schemaFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrArrayNotFound
	}
	if err != nil {
		return nil, err
	}
	var meta ArrayMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("engine: read %s: %w", schemaFile, err)
	}
	if meta.Schema == nil {
		return nil, fmt.Errorf("engine: %s has no schema", schemaFile)
	}
	return &meta, nil
}

// ArrayExists reports whether uri holds an array.
func (e *Engine) ArrayExists(uri string) bool {
	dir, err := e.arrayDir(uri)
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(dir, schemaFile))
	return err == nil
}

// CreateArray registers a new array. The schema must pass Check and is
// frozen once the array exists.
func (e *Engine) CreateArray(uri string, s *schema.Schema) error {
	if s == nil {
		return fmt.Errorf("%w: nil schema", schema.ErrSchemaValidation)
	}
	if err := s.Check(); err != nil {
		return err
	}
	dir, err := e.arrayDir(uri)
	if err != nil {
		return err
	}
	if e.ArrayExists(uri) {
		return fmt.Errorf("%w: %s", ErrArrayExists, uri)
	}

	meta := &ArrayMeta{URI: uri, Schema: s, CreatedAt: time.Now().UTC()}
	if err := writeArrayMeta(dir, meta); err != nil {
		return err
	}
	cat, err := openCatalog(filepath.Join(dir, catalogFile))
	if err != nil {
		return err
	}
	if err := cat.Close(); err != nil {
		return err
	}
	s.Freeze()
	slog.Info("engine: array created", "uri", uri, "type", s.ArrayType(), "dims", s.Domain().NDim(), "attrs", s.NAttr())
	return nil
}

// ArraySchema loads the schema of uri without opening it.
func (e *Engine) ArraySchema(uri string) (*schema.Schema, error) {
	dir, err := e.arrayDir(uri)
	if err != nil {
		return nil, err
	}
	meta, err := readArrayMeta(dir)
	if err != nil {
		if errors.Is(err, ErrArrayNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrArrayNotFound, uri)
		}
		return nil, err
	}
	return meta.Schema, nil
}

// RemoveArray deletes uri and all its fragments. Open arrays cannot be
// removed.
func (e *Engine) RemoveArray(uri string) error {
	dir, err := e.arrayDir(uri)
	if err != nil {
		return err
	}
	if !e.ArrayExists(uri) {
		return fmt.Errorf("%w: %s", ErrArrayNotFound, uri)
	}
	if e.arrays.Held(dir) > 0 {
		return fmt.Errorf("%w: %s", ErrArrayInUse, uri)
	}
	fs := storage.LocalFileSet{Dir: dir, Base: blobBase}
	if err := e.cache.Drop(fs, false); err != nil {
		return err
	}
	if err := fs.Remove(); err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	slog.Info("engine: array removed", "uri", uri)
	return nil
}

type openConfig struct {
	timestamp uint64
}

type OpenOption func(*openConfig)

// WithTimestamp pins the array view to fragments ending at or before ts
// (reads) or stamps new fragments with ts (writes). ts is in milliseconds.
func WithTimestamp(ts uint64) OpenOption {
	return func(c *openConfig) { c.timestamp = ts }
}

// OpenArray opens uri for reading or writing. Handles on the same uri share
// catalog and blob state.
func (e *Engine) OpenArray(uri string, mode query.Type, opts ...OpenOption) (*Array, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if mode != query.Read && mode != query.Write {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}
	var cfg openConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	dir, err := e.arrayDir(uri)
	if err != nil {
		return nil, err
	}

	st, err := e.arrays.Acquire(dir, func() (*arrayState, error) {
		return e.openState(uri, dir)
	})
	if err != nil {
		return nil, err
	}

	a := &Array{
		eng:     e,
		st:      st,
		key:     dir,
		uri:     uri,
		mode:    mode,
		fixedTS: cfg.timestamp,
	}
	if err := a.refresh(); err != nil {
		_ = e.release(dir)
		return nil, err
	}
	slog.Debug("engine: array opened", "uri", uri, "mode", mode, "timestamp", a.ts)
	return a, nil
}

func (e *Engine) release(key string) error {
	return e.arrays.Release(key, func(st *arrayState) error {
		return st.close(e.cache)
	})
}
