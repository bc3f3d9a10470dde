package storage

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tuannm99/novatile/internal/alias/bx"
)

// PageCache is the page access the blob store needs; the buffer pool's
// file-set view implements it.
type PageCache interface {
	GetPage(pageID uint32) (*Page, error)
	Unpin(page *Page, dirty bool) error
	FlushAll() error
}

// BlobRef points to a page chain holding one blob.
//   - FirstPageID: first page of the chain
//   - Length:      total payload bytes across the chain
type BlobRef struct {
	FirstPageID uint32
	Length      uint64
}

// Blob page layout (PageSize bytes total):
//
//	[0..3]   uint32 nextPageID   // 0 => end of chain
//	[4..5]   uint16 used         // payload bytes on this page
//	[6..]    payload bytes
const (
	blobHeaderSize  = 6
	blobPayloadSize = PageSize - blobHeaderSize
)

// BlobStore appends immutable byte blobs to a segmented file as linked
// page chains. Pages are written through a PageCache.
type BlobStore struct {
	cache PageCache

	mu   sync.Mutex
	next uint32 // first unallocated page
}

// NewBlobStore opens the blob file fs. Existing pages are counted so new
// chains append after them.
func NewBlobStore(sm *StorageManager, fs FileSet, cache PageCache) (*BlobStore, error) {
	n, err := sm.CountPages(fs)
	if err != nil {
		return nil, err
	}
	return &BlobStore{cache: cache, next: n}, nil
}

// Pages reports how many pages the file holds, allocated chains included.
func (b *BlobStore) Pages() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next
}

func pagesFor(n int) uint32 {
	return uint32((n + blobPayloadSize - 1) / blobPayloadSize)
}

// Write stores data as a new chain and flushes it.
func (b *BlobStore) Write(data []byte) (BlobRef, error) {
	if len(data) == 0 {
		return BlobRef{}, ErrEmptyBlob
	}

	b.mu.Lock()
	first := b.next
	n := pagesFor(len(data))
	b.next += n
	b.mu.Unlock()

	slog.Debug("blob: write", "len", len(data), "firstPageID", first, "pages", n)

	off := 0
	for i := range n {
		pageID := first + i
		p, err := b.cache.GetPage(pageID)
		if err != nil {
			return BlobRef{}, err
		}
		chunk := min(len(data)-off, blobPayloadSize)

		var next uint32
		if i+1 < n {
			next = pageID + 1
		}
		clear(p.Buf)
		bx.PutU32(p.Buf[0:4], next)
		bx.PutU16(p.Buf[4:6], uint16(chunk))
		copy(p.Buf[blobHeaderSize:], data[off:off+chunk])
		off += chunk

		if err := b.cache.Unpin(p, true); err != nil {
			return BlobRef{}, err
		}
	}

	if err := b.cache.FlushAll(); err != nil {
		return BlobRef{}, err
	}
	return BlobRef{FirstPageID: first, Length: uint64(len(data))}, nil
}

// Read loads the full blob behind ref.
func (b *BlobStore) Read(ref BlobRef) ([]byte, error) {
	if ref.Length == 0 {
		return nil, ErrEmptyBlob
	}

	out := make([]byte, 0, ref.Length)
	remaining := ref.Length
	pageID := ref.FirstPageID

	for remaining > 0 {
		p, err := b.cache.GetPage(pageID)
		if err != nil {
			return nil, err
		}
		next := bx.U32(p.Buf[0:4])
		used := uint64(bx.U16(p.Buf[4:6]))

		if used > blobPayloadSize || used > remaining || used == 0 {
			_ = b.cache.Unpin(p, false)
			return nil, fmt.Errorf("%w: page %d used=%d remaining=%d", ErrTruncatedBlob, pageID, used, remaining)
		}
		out = append(out, p.Buf[blobHeaderSize:blobHeaderSize+used]...)
		remaining -= used

		if err := b.cache.Unpin(p, false); err != nil {
			return nil, err
		}
		if remaining > 0 {
			if next == 0 {
				return nil, fmt.Errorf("%w: remaining=%d", ErrTruncatedBlob, remaining)
			}
			pageID = next
		}
	}
	return out, nil
}
