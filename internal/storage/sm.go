package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// StorageManager maps page ids onto segment files. Page id p lives in
// segment p / pagesPerSegment at offset (p % pagesPerSegment) * PageSize.
type StorageManager struct {
	pagesPerSegment uint32
}

type Option func(*StorageManager)

// WithSegmentPages caps the pages held by one segment file.
func WithSegmentPages(n uint32) Option {
	return func(sm *StorageManager) {
		if n > 0 {
			sm.pagesPerSegment = n
		}
	}
}

func NewStorageManager(opts ...Option) *StorageManager {
	sm := &StorageManager{pagesPerSegment: MaxPagePerSegment}
	for _, o := range opts {
		o(sm)
	}
	return sm
}

func (sm *StorageManager) locate(pageID uint32) (uint32, int64) {
	return pageID / sm.pagesPerSegment, int64(pageID%sm.pagesPerSegment) * PageSize
}

// LoadPage reads page pageID into a fresh buffer. Bytes past the end of
// the segment read as zeros.
func (sm *StorageManager) LoadPage(fs FileSet, pageID uint32) (*Page, error) {
	seg, off := sm.locate(pageID)
	f, err := fs.OpenSegment(seg)
	if err != nil {
		return nil, err
	}
	defer closeFile(f)

	buf := make([]byte, PageSize)
	if _, err := f.ReadAt(buf, off); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("storage: read page %d: %w", pageID, err)
	}
	return &Page{ID: pageID, Buf: buf}, nil
}

// SavePage writes p back to its slot.
func (sm *StorageManager) SavePage(fs FileSet, p *Page) error {
	if len(p.Buf) != PageSize {
		return fmt.Errorf("%w: page %d holds %d bytes", ErrWrongSize, p.ID, len(p.Buf))
	}
	seg, off := sm.locate(p.ID)
	f, err := fs.OpenSegment(seg)
	if err != nil {
		return err
	}
	defer closeFile(f)

	if _, err := f.WriteAt(p.Buf, off); err != nil {
		return fmt.Errorf("storage: write page %d: %w", p.ID, err)
	}
	return nil
}

// CountPages is one past the highest page present in fs. Only the last
// segment may be short.
func (sm *StorageManager) CountPages(fs FileSet) (uint32, error) {
	segs, err := fs.Segments()
	if err != nil || len(segs) == 0 {
		return 0, err
	}
	last := segs[len(segs)-1]
	f, err := fs.OpenSegment(last)
	if err != nil {
		return 0, err
	}
	info, err := f.Stat()
	closeFile(f)
	if err != nil {
		return 0, err
	}
	inLast := uint32((info.Size() + PageSize - 1) / PageSize)
	return last*sm.pagesPerSegment + inLast, nil
}

func closeFile(f *os.File) {
	if err := f.Close(); err != nil {
		slog.Warn("storage: close segment", "file", f.Name(), "err", err)
	}
}
