// Package filestore keeps whole files as dense 1-D byte arrays: one cell
// per byte along "position", the bytes in attribute "contents", and the
// original size and type in array metadata.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/tuannm99/novatile/internal/datatype"
	"github.com/tuannm99/novatile/internal/engine"
	"github.com/tuannm99/novatile/internal/metadata"
	"github.com/tuannm99/novatile/internal/query"
	"github.com/tuannm99/novatile/internal/schema"
)

const (
	DimensionName = "position"
	AttributeName = "contents"

	KeyFileSize     = "file_size"
	KeyMimeType     = "mime_type"
	KeyOriginalName = "original_file_name"

	DefaultChunkSize = 1 << 20
	defaultMimeType  = "application/octet-stream"
)

const (
	KB uint64 = 1 << 10
	MB uint64 = 1 << 20
	GB uint64 = 1 << 30
)

var (
	ErrOutOfRange = errors.New("filestore: range outside the stored file")
	ErrShortRead  = errors.New("filestore: input ended before the declared size")
)

// TileExtent picks the tile extent for a file of size bytes.
func TileExtent(size uint64) uint64 {
	switch {
	case size <= 1*MB:
		return 256 * KB
	case size <= 100*MB:
		return 1 * MB
	case size <= 10*GB:
		return 1 * MB
	default:
		return 100 * MB
	}
}

// Schema is the array schema for a file of size bytes. The domain is
// rounded up to whole tiles.
func Schema(size uint64) (*schema.Schema, error) {
	ext := TileExtent(size)
	tiles := max((size+ext-1)/ext, 1)
	d, err := schema.NewDimension[uint64](DimensionName, 0, tiles*ext-1, ext)
	if err != nil {
		return nil, err
	}
	a, err := schema.NewAttribute(AttributeName, datatype.UInt8)
	if err != nil {
		return nil, err
	}
	s := schema.New(schema.Dense)
	if err := s.AddDimension(d); err != nil {
		return nil, err
	}
	if err := s.AddAttribute(a); err != nil {
		return nil, err
	}
	return s, nil
}

// FileInfo is what the store records about an imported file.
type FileInfo struct {
	Size         uint64
	MimeType     string
	OriginalName string
}

type ImportOptions struct {
	// MimeType is sniffed from the content when empty.
	MimeType string
	// Overwrite removes an existing array at the target uri first.
	Overwrite bool
}

type Store struct {
	eng   *engine.Engine
	chunk int
	stall int
}

type Option func(*Store)

// WithChunkSize sets the bytes moved per query round.
func WithChunkSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.chunk = n
		}
	}
}

// WithMaxZeroProgressRounds bounds empty read rounds before an export
// gives up.
func WithMaxZeroProgressRounds(n int) Option {
	return func(s *Store) { s.stall = n }
}

func New(eng *engine.Engine, opts ...Option) *Store {
	s := &Store{eng: eng, chunk: DefaultChunkSize}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ImportFile stores the file at path under uri.
func (s *Store) ImportFile(ctx context.Context, uri, path string, opts ImportOptions) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	info := FileInfo{Size: uint64(st.Size()), MimeType: opts.MimeType, OriginalName: filepath.Base(path)}
	if info.MimeType == "" {
		info.MimeType = mime.TypeByExtension(filepath.Ext(path))
	}
	return s.Import(ctx, uri, f, info, opts)
}

// Import creates an array under uri and writes exactly info.Size bytes
// from r into it, one global-order round per chunk.
func (s *Store) Import(ctx context.Context, uri string, r io.Reader, info FileInfo, opts ImportOptions) error {
	if opts.Overwrite && s.eng.ArrayExists(uri) {
		if err := s.eng.RemoveArray(uri); err != nil {
			return err
		}
	}
	sch, err := Schema(info.Size)
	if err != nil {
		return err
	}
	if err := s.eng.CreateArray(uri, sch); err != nil {
		return err
	}
	if info.MimeType == "" {
		info.MimeType = opts.MimeType
	}
	if err := s.fill(ctx, uri, r, info); err != nil {
		if rerr := s.eng.RemoveArray(uri); rerr != nil {
			slog.Warn("filestore: cleanup failed", "uri", uri, "err", rerr)
		}
		return err
	}
	return nil
}

func (s *Store) fill(ctx context.Context, uri string, r io.Reader, info FileInfo) error {
	arr, err := s.eng.OpenArray(uri, query.Write)
	if err != nil {
		return err
	}
	defer func() { _ = arr.Close() }()

	if info.Size > 0 {
		sniffed, err := s.write(ctx, arr, r, info.Size)
		if err != nil {
			return err
		}
		if info.MimeType == "" {
			info.MimeType = sniffed
		}
	}
	if info.MimeType == "" {
		info.MimeType = defaultMimeType
	}

	if err := metadata.Put(arr, KeyFileSize, info.Size); err != nil {
		return err
	}
	if err := metadata.PutString(arr, KeyMimeType, info.MimeType); err != nil {
		return err
	}
	if err := metadata.PutString(arr, KeyOriginalName, info.OriginalName); err != nil {
		return err
	}
	slog.Info("filestore: imported", "uri", uri, "size", info.Size, "mime", info.MimeType)
	return nil
}

// write streams size bytes into arr and returns the content type sniffed
// from the first chunk.
func (s *Store) write(ctx context.Context, arr *engine.Array, r io.Reader, size uint64) (string, error) {
	q, err := query.New(arr)
	if err != nil {
		return "", err
	}
	if err := q.SetLayout(schema.GlobalOrder); err != nil {
		return "", err
	}
	if err := query.SetSubarrayValues(q, 0, size-1); err != nil {
		return "", err
	}

	var sniffed string
	buf := make([]byte, s.chunk)
	for done := uint64(0); done < size; {
		n := min(uint64(len(buf)), size-done)
		if _, err := io.ReadFull(r, buf[:n]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return "", fmt.Errorf("%w: got %d of %d bytes", ErrShortRead, done, size)
			}
			return "", err
		}
		if done == 0 {
			sniffed = http.DetectContentType(buf[:n])
		}
		if err := query.BindFixed(q, AttributeName, buf[:n]); err != nil {
			return "", err
		}
		if err := q.Submit(ctx); err != nil {
			return "", err
		}
		done += n
	}
	if err := q.Finalize(ctx); err != nil {
		return "", err
	}
	return sniffed, nil
}

// Info reads the recorded size and type of the file under uri.
func (s *Store) Info(uri string) (FileInfo, error) {
	arr, err := s.eng.OpenArray(uri, query.Read)
	if err != nil {
		return FileInfo{}, err
	}
	defer func() { _ = arr.Close() }()
	return info(arr)
}

func info(arr *engine.Array) (FileInfo, error) {
	size, err := metadata.Get[uint64](arr, KeyFileSize)
	if err != nil {
		return FileInfo{}, err
	}
	if len(size) != 1 {
		return FileInfo{}, fmt.Errorf("%w: %s holds %d values", engine.ErrInvalidMetadata, KeyFileSize, len(size))
	}
	fi := FileInfo{Size: size[0]}
	if fi.MimeType, err = metadata.GetString(arr, KeyMimeType); err != nil && !errors.Is(err, engine.ErrMetadataNotFound) {
		return FileInfo{}, err
	}
	if fi.OriginalName, err = metadata.GetString(arr, KeyOriginalName); err != nil && !errors.Is(err, engine.ErrMetadataNotFound) {
		return FileInfo{}, err
	}
	return fi, nil
}

// Export writes the whole stored file to w.
func (s *Store) Export(ctx context.Context, uri string, w io.Writer) (int64, error) {
	arr, err := s.eng.OpenArray(uri, query.Read)
	if err != nil {
		return 0, err
	}
	defer func() { _ = arr.Close() }()
	fi, err := info(arr)
	if err != nil {
		return 0, err
	}
	return s.read(ctx, arr, 0, fi.Size, w)
}

// ExportFile writes the stored file to path, replacing it.
func (s *Store) ExportFile(ctx context.Context, uri, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := s.Export(ctx, uri, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// ReadRange writes length bytes starting at offset to w.
func (s *Store) ReadRange(ctx context.Context, uri string, offset, length uint64, w io.Writer) (int64, error) {
	arr, err := s.eng.OpenArray(uri, query.Read)
	if err != nil {
		return 0, err
	}
	defer func() { _ = arr.Close() }()
	fi, err := info(arr)
	if err != nil {
		return 0, err
	}
	if offset > fi.Size || length > fi.Size-offset {
		return 0, fmt.Errorf("%w: [%d, %d) of %d bytes", ErrOutOfRange, offset, offset+length, fi.Size)
	}
	return s.read(ctx, arr, offset, length, w)
}

// read pages [offset, offset+length) through a chunk-sized buffer.
func (s *Store) read(ctx context.Context, arr *engine.Array, offset, length uint64, w io.Writer) (int64, error) {
	if length == 0 {
		return 0, nil
	}
	q, err := query.New(arr)
	if err != nil {
		return 0, err
	}
	if err := query.SetSubarrayValues(q, offset, offset+length-1); err != nil {
		return 0, err
	}
	buf := make([]byte, min(uint64(s.chunk), length))
	if err := query.BindFixed(q, AttributeName, buf); err != nil {
		return 0, err
	}

	var written int64
	err = q.Iterate(ctx, func(r query.Round) error {
		n := r.Elements[AttributeName].Data
		m, err := w.Write(buf[:n])
		written += int64(m)
		return err
	}, query.IterateOptions{MaxZeroProgressRounds: s.stall})
	if err != nil {
		return written, err
	}
	slog.Debug("filestore: read", "uri", arr.URI(), "offset", offset, "bytes", written)
	return written, nil
}
