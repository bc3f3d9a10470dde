package storage

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// directCache goes straight to disk without caching.
type directCache struct {
	sm *StorageManager
	fs FileSet
}

func (d directCache) GetPage(pageID uint32) (*Page, error) { return d.sm.LoadPage(d.fs, pageID) }
func (d directCache) FlushAll() error                      { return nil }

func (d directCache) Unpin(p *Page, dirty bool) error {
	if !dirty {
		return nil
	}
	return d.sm.SavePage(d.fs, p)
}

func newTestBlobStore(t *testing.T, dir string) *BlobStore {
	t.Helper()
	sm := NewStorageManager()
	fs := LocalFileSet{Dir: dir, Base: "blobs"}
	bs, err := NewBlobStore(sm, fs, directCache{sm: sm, fs: fs})
	require.NoError(t, err)
	return bs
}

func TestBlobStore_WriteRead_MultiPage(t *testing.T) {
	bs := newTestBlobStore(t, t.TempDir())

	data := bytes.Repeat([]byte("0123456789"), 3*PageSize/10)
	ref, err := bs.Write(data)
	require.NoError(t, err)
	require.Equal(t, uint32(0), ref.FirstPageID)
	require.Equal(t, uint64(len(data)), ref.Length)
	require.Equal(t, pagesFor(len(data)), bs.Pages())

	got, err := bs.Read(ref)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestBlobStore_ChainsAppendAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	bs := newTestBlobStore(t, dir)

	ref1, err := bs.Write([]byte("first"))
	require.NoError(t, err)
	ref2, err := bs.Write([]byte("second"))
	require.NoError(t, err)
	require.Equal(t, ref1.FirstPageID+1, ref2.FirstPageID)

	reopened := newTestBlobStore(t, dir)
	require.Equal(t, uint32(2), reopened.Pages())
	ref3, err := reopened.Write([]byte("third"))
	require.NoError(t, err)
	require.Equal(t, uint32(2), ref3.FirstPageID)

	for ref, want := range map[BlobRef]string{ref1: "first", ref2: "second", ref3: "third"} {
		got, err := reopened.Read(ref)
		require.NoError(t, err)
		require.Equal(t, want, string(got))
	}
}

func TestBlobStore_Errors(t *testing.T) {
	bs := newTestBlobStore(t, t.TempDir())

	_, err := bs.Write(nil)
	require.ErrorIs(t, err, ErrEmptyBlob)

	_, err = bs.Read(BlobRef{})
	require.ErrorIs(t, err, ErrEmptyBlob)

	ref, err := bs.Write([]byte("short"))
	require.NoError(t, err)
	ref.Length = PageSize * 2
	_, err = bs.Read(ref)
	require.ErrorIs(t, err, ErrTruncatedBlob)
}
