package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/tuannm99/novatile/internal/bufferpool"
	"github.com/tuannm99/novatile/internal/metrics"
	"github.com/tuannm99/novatile/internal/query"
	"github.com/tuannm99/novatile/internal/schema"
	"github.com/tuannm99/novatile/internal/storage"
)

// arrayState is shared by every open handle on one array.
type arrayState struct {
	uri     string
	dir     string
	schema  *schema.Schema
	catalog *catalog
	fs      storage.LocalFileSet
	blobs   *storage.BlobStore
	decoded *lru.Cache[string, *fragment] // by fragment name

	mu   sync.Mutex
	last uint64 // newest fragment timestamp
}

func (e *Engine) openState(uri, dir string) (*arrayState, error) {
	meta, err := readArrayMeta(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, uri)
	}
	cat, err := openCatalog(filepath.Join(dir, catalogFile))
	if err != nil {
		return nil, err
	}
	last, err := cat.lastTimestamp(context.Background())
	if err != nil {
		_ = cat.Close()
		return nil, err
	}
	fs := storage.LocalFileSet{Dir: dir, Base: blobBase}
	blobs, err := storage.NewBlobStore(e.SM, fs, e.cache.View(fs))
	if err != nil {
		_ = cat.Close()
		return nil, err
	}
	decoded, err := lru.New[string, *fragment](e.fragCacheSize)
	if err != nil {
		_ = cat.Close()
		return nil, err
	}
	return &arrayState{
		uri:     uri,
		dir:     dir,
		schema:  meta.Schema,
		catalog: cat,
		fs:      fs,
		blobs:   blobs,
		decoded: decoded,
		last:    last,
	}, nil
}

func (st *arrayState) close(cache *bufferpool.Cache) error {
	dropErr := cache.Drop(st.fs, true)
	if err := st.catalog.Close(); err != nil {
		return err
	}
	return dropErr
}

func (st *arrayState) lastTimestamp() uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.last
}

// nextTimestamp hands out strictly increasing write timestamps unless the
// writer pinned one.
func (st *arrayState) nextTimestamp(fixed uint64) uint64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	ts := fixed
	if ts == 0 {
		ts = max(nowMillis(), st.last+1)
	}
	st.last = max(st.last, ts)
	return ts
}

// persist stores f as a new fragment and registers it in the catalog.
func (st *arrayState) persist(ctx context.Context, f *fragment, fixedTS uint64, ned [][2][]byte) (query.FragmentInfo, error) {
	ts := st.nextTimestamp(fixedTS)
	f.rec = fragmentRecord{
		Name:           fragmentName(ts),
		TimestampStart: ts,
		TimestampEnd:   ts,
		Dense:          f.dense,
		CellNum:        f.cellNum,
		NonEmptyDomain: encodeDomain(ned),
	}
	ref, err := st.blobs.Write(f.encode())
	if err != nil {
		return query.FragmentInfo{}, fmt.Errorf("engine: write fragment: %w", err)
	}
	f.rec.Blob = ref
	if err := st.catalog.insertFragment(ctx, f.rec); err != nil {
		return query.FragmentInfo{}, err
	}
	metrics.FragmentsWritten.Inc()
	slog.Debug("engine: fragment written",
		"uri", st.uri,
		"fragment", f.rec.Name,
		"cells", f.cellNum,
		"bytes", ref.Length,
	)
	return st.fragmentInfo(f.rec), nil
}

func (st *arrayState) fragmentInfo(r fragmentRecord) query.FragmentInfo {
	return query.FragmentInfo{
		Name:           r.Name,
		URI:            st.uri + "/" + FragmentsDir + "/" + r.Name,
		TimestampStart: r.TimestampStart,
		TimestampEnd:   r.TimestampEnd,
		CellNum:        r.CellNum,
	}
}

// load returns the fragments of recs in order. Fragments are immutable, so
// decoded ones are shared through the cache; misses are read and decoded
// in parallel.
func (st *arrayState) load(ctx context.Context, recs []fragmentRecord) ([]*fragment, error) {
	out := make([]*fragment, len(recs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, rec := range recs {
		if f, ok := st.decoded.Get(rec.Name); ok {
			metrics.FragmentCacheLookups.WithLabelValues("hit").Inc()
			out[i] = f
			continue
		}
		metrics.FragmentCacheLookups.WithLabelValues("miss").Inc()
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b, err := st.blobs.Read(rec.Blob)
			if err != nil {
				return fmt.Errorf("engine: read fragment %s: %w", rec.Name, err)
			}
			f, err := decodeFragment(rec, b)
			if err != nil {
				return err
			}
			st.decoded.Add(rec.Name, f)
			out[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
