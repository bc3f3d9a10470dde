package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novatile/internal/storage"
)

func newTestCache(t *testing.T, capacity int) (*Cache, storage.LocalFileSet) {
	t.Helper()
	fs := storage.LocalFileSet{Dir: t.TempDir(), Base: "blobs"}
	return NewCache(storage.NewStorageManager(), capacity), fs
}

func TestCache_GetPage_LoadsAndPins(t *testing.T) {
	c, fs := newTestCache(t, 4)

	p1, err := c.GetPage(fs, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(0), p1.PageID())

	key, _, ok := fsKeyOf(fs)
	require.True(t, ok)
	idx, ok := c.table[PageTag{FSKey: key, PageID: 0}]
	require.True(t, ok)
	require.Equal(t, int32(1), c.frames[idx].Pin)

	p2, err := c.GetPage(fs, 0)
	require.NoError(t, err)
	require.Same(t, p1, p2)
	require.Equal(t, int32(2), c.frames[idx].Pin)
}

func TestCache_Full_NoFreeFrame(t *testing.T) {
	c, fs := newTestCache(t, 1)

	p0, err := c.GetPage(fs, 0)
	require.NoError(t, err)

	_, err = c.GetPage(fs, 1)
	require.ErrorIs(t, err, ErrNoFreeFrame)

	require.NoError(t, c.Unpin(fs, p0, false))
	p1, err := c.GetPage(fs, 1)
	require.NoError(t, err)
	require.Equal(t, uint32(1), p1.PageID())
}

func TestCache_EvictFlushesDirty(t *testing.T) {
	c, fs := newTestCache(t, 1)

	p0, err := c.GetPage(fs, 0)
	require.NoError(t, err)
	copy(p0.Buf, "dirty")
	require.NoError(t, c.Unpin(fs, p0, true))

	// loading page 1 evicts page 0 and writes it out
	p1, err := c.GetPage(fs, 1)
	require.NoError(t, err)
	require.NoError(t, c.Unpin(fs, p1, false))

	again, err := c.GetPage(fs, 0)
	require.NoError(t, err)
	require.Equal(t, "dirty", string(again.Buf[:5]))
}

func TestCache_FileSetsAreIsolated(t *testing.T) {
	c, fsA := newTestCache(t, 4)
	fsB := storage.LocalFileSet{Dir: fsA.Dir, Base: "other"}

	a, err := c.GetPage(fsA, 0)
	require.NoError(t, err)
	b, err := c.GetPage(fsB, 0)
	require.NoError(t, err)
	require.NotSame(t, a, b)

	copy(a.Buf, "A")
	require.NoError(t, c.Unpin(fsA, a, true))
	require.NoError(t, c.Unpin(fsB, b, false))
	require.NoError(t, c.Flush(fsA))

	disk, err := storage.NewStorageManager().LoadPage(fsA, 0)
	require.NoError(t, err)
	require.Equal(t, byte('A'), disk.Buf[0])
}

func TestCache_Drop(t *testing.T) {
	c, fs := newTestCache(t, 2)

	p, err := c.GetPage(fs, 0)
	require.NoError(t, err)
	require.ErrorIs(t, c.Drop(fs, true), ErrPagePinned)

	require.NoError(t, c.Unpin(fs, p, true))
	require.NoError(t, c.Drop(fs, false))
	require.Empty(t, c.table)
	for _, f := range c.frames {
		require.Nil(t, f)
	}
}

func TestCache_UnsupportedFileSet(t *testing.T) {
	c := NewCache(storage.NewStorageManager(), 0)
	require.Equal(t, DefaultCapacity, c.Capacity())

	_, err := c.GetPage(nil, 0)
	require.ErrorIs(t, err, ErrUnsupportedFileSet)
}

func TestView_BacksBlobStore(t *testing.T) {
	c, fs := newTestCache(t, 2)
	sm := storage.NewStorageManager()

	bs, err := storage.NewBlobStore(sm, fs, c.View(fs))
	require.NoError(t, err)

	// larger than the cache: chain pages must cycle through two frames
	data := make([]byte, 5*storage.PageSize)
	for i := range data {
		data[i] = byte(i % 251)
	}
	ref, err := bs.Write(data)
	require.NoError(t, err)

	got, err := bs.Read(ref)
	require.NoError(t, err)
	require.Equal(t, data, got)
}
