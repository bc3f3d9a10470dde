package bufferpool

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/tuannm99/novatile/internal/metrics"
	"github.com/tuannm99/novatile/internal/storage"
)

// PageTag names a page across every file set the cache serves.
type PageTag struct {
	FSKey  string
	PageID uint32
}

type Frame struct {
	Tag   PageTag
	FS    storage.LocalFileSet
	Page  *storage.Page
	Dirty bool
	Pin   int32
}

// Cache is the page cache shared by all arrays of an engine.
type Cache struct {
	sm *storage.StorageManager

	mu     sync.Mutex
	frames []*Frame        // nil == free slot
	table  map[PageTag]int // tag -> frame index
	repl   Replacer
}

func NewCache(sm *storage.StorageManager, capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		sm:     sm,
		frames: make([]*Frame, capacity),
		table:  make(map[PageTag]int),
		repl:   newClock(capacity),
	}
}

func (c *Cache) Capacity() int { return len(c.frames) }

func fsKeyOf(fs storage.FileSet) (string, storage.LocalFileSet, bool) {
	lfs, ok := fs.(storage.LocalFileSet)
	if !ok {
		return "", storage.LocalFileSet{}, false
	}
	dir := filepath.Clean(lfs.Dir)
	return dir + "|" + lfs.Base, storage.LocalFileSet{Dir: dir, Base: lfs.Base}, true
}

// GetPage pins and returns page (fs, pageID), loading it on a miss.
func (c *Cache) GetPage(fs storage.FileSet, pageID uint32) (*storage.Page, error) {
	key, lfs, ok := fsKeyOf(fs)
	if !ok {
		return nil, ErrUnsupportedFileSet
	}
	tag := PageTag{FSKey: key, PageID: pageID}

	c.mu.Lock()
	defer c.mu.Unlock()

	if idx, ok := c.table[tag]; ok {
		if f := c.frames[idx]; f != nil {
			metrics.PageCacheLookups.WithLabelValues("hit").Inc()
			f.Pin++
			c.repl.Touch(idx)
			if f.Pin == 1 {
				c.repl.SetEvictable(idx, false)
			}
			return f.Page, nil
		}
		delete(c.table, tag)
	}
	metrics.PageCacheLookups.WithLabelValues("miss").Inc()

	idx, err := c.claimFrame()
	if err != nil {
		return nil, err
	}

	page, err := c.sm.LoadPage(lfs, pageID)
	if err != nil {
		c.frames[idx] = nil
		return nil, err
	}

	c.frames[idx] = &Frame{Tag: tag, FS: lfs, Page: page, Pin: 1}
	c.table[tag] = idx
	c.repl.Touch(idx)
	c.repl.SetEvictable(idx, false)
	return page, nil
}

// claimFrame returns an empty frame index, evicting (and flushing) a victim
// when every slot is taken.
func (c *Cache) claimFrame() (int, error) {
	for i, f := range c.frames {
		if f == nil {
			return i, nil
		}
	}

	idx, ok := c.repl.Victim()
	if !ok {
		return -1, ErrNoFreeFrame
	}
	victim := c.frames[idx]
	if victim == nil {
		return idx, nil
	}
	if victim.Pin != 0 {
		return -1, ErrNoFreeFrame
	}
	if victim.Dirty {
		if err := c.sm.SavePage(victim.FS, victim.Page); err != nil {
			c.repl.Touch(idx)
			c.repl.SetEvictable(idx, true)
			return -1, err
		}
	}

	slog.Debug("bufferpool: evict", "fs", victim.Tag.FSKey, "page", victim.Tag.PageID)
	metrics.PageCacheEvictions.Inc()
	delete(c.table, victim.Tag)
	c.frames[idx] = nil
	return idx, nil
}

// Unpin drops one pin on page and optionally marks it dirty.
func (c *Cache) Unpin(fs storage.FileSet, page *storage.Page, dirty bool) error {
	if page == nil {
		return nil
	}
	key, _, ok := fsKeyOf(fs)
	if !ok {
		return ErrUnsupportedFileSet
	}
	tag := PageTag{FSKey: key, PageID: page.PageID()}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx, ok := c.table[tag]
	if !ok {
		return nil
	}
	f := c.frames[idx]
	if f == nil {
		delete(c.table, tag)
		return nil
	}
	if dirty {
		f.Dirty = true
	}
	if f.Pin > 0 {
		f.Pin--
		if f.Pin == 0 {
			c.repl.SetEvictable(idx, true)
		}
	}
	return nil
}

// FlushAll writes every dirty frame back to disk.
func (c *Cache) FlushAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked("")
}

// Flush writes the dirty frames of one file set back to disk.
func (c *Cache) Flush(fs storage.FileSet) error {
	key, _, ok := fsKeyOf(fs)
	if !ok {
		return ErrUnsupportedFileSet
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked(key)
}

func (c *Cache) flushLocked(key string) error {
	for _, f := range c.frames {
		if f == nil || !f.Dirty {
			continue
		}
		if key != "" && f.Tag.FSKey != key {
			continue
		}
		if err := c.sm.SavePage(f.FS, f.Page); err != nil {
			return err
		}
		f.Dirty = false
	}
	return nil
}

// Drop forgets every page of fs, flushing dirty ones. It must run before
// the underlying files are removed. Pinned pages yield ErrPagePinned.
func (c *Cache) Drop(fs storage.FileSet, flush bool) error {
	key, _, ok := fsKeyOf(fs)
	if !ok {
		return ErrUnsupportedFileSet
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range c.frames {
		if f != nil && f.Tag.FSKey == key && f.Pin != 0 {
			return ErrPagePinned
		}
	}
	for i, f := range c.frames {
		if f == nil || f.Tag.FSKey != key {
			continue
		}
		if flush && f.Dirty {
			if err := c.sm.SavePage(f.FS, f.Page); err != nil {
				return err
			}
		}
		delete(c.table, f.Tag)
		c.frames[i] = nil
		c.repl.Forget(i)
	}
	return nil
}

var _ storage.PageCache = (*View)(nil)

// View binds the cache to one file set.
type View struct {
	c  *Cache
	fs storage.FileSet
}

// View returns a file-set scoped page cache backed by c.
func (c *Cache) View(fs storage.FileSet) *View {
	return &View{c: c, fs: fs}
}

func (v *View) GetPage(pageID uint32) (*storage.Page, error) { return v.c.GetPage(v.fs, pageID) }
func (v *View) Unpin(page *storage.Page, dirty bool) error   { return v.c.Unpin(v.fs, page, dirty) }
func (v *View) FlushAll() error                              { return v.c.Flush(v.fs) }
