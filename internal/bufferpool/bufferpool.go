// Package bufferpool caches storage pages in a fixed set of frames shared by
// every open array. Frames are pinned while in use and recycled with a
// CLOCK replacer once unpinned.
package bufferpool

import "errors"

var (
	DefaultCapacity = 128

	ErrNoFreeFrame        = errors.New("bufferpool: no free frame available (all pinned)")
	ErrPagePinned         = errors.New("bufferpool: page is pinned")
	ErrUnsupportedFileSet = errors.New("bufferpool: unsupported FileSet (cache requires LocalFileSet)")
)

// Replacer chooses which unpinned frame to recycle.
type Replacer interface {
	Touch(frame int)
	SetEvictable(frame int, evictable bool)
	Victim() (frame int, ok bool)
	Forget(frame int)
	Evictable() int
}
