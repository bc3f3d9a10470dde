package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// FileSet is a blob file split across numbered segment files.
type FileSet interface {
	OpenSegment(segNo uint32) (*os.File, error)
	Segments() ([]uint32, error)
}

var _ FileSet = LocalFileSet{}

// LocalFileSet keeps the segments of one blob file in Dir, named Base,
// Base.1, Base.2 and so on.
type LocalFileSet struct {
	Dir  string
	Base string
}

// SegmentName is the file name of segment segNo.
func (lfs LocalFileSet) SegmentName(segNo uint32) string {
	if segNo == 0 {
		return lfs.Base
	}
	return fmt.Sprintf("%s.%d", lfs.Base, segNo)
}

// OpenSegment opens segNo for reading and writing, creating it when
// missing.
func (lfs LocalFileSet) OpenSegment(segNo uint32) (*os.File, error) {
	if err := os.MkdirAll(lfs.Dir, FileMode0755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(lfs.Dir, lfs.SegmentName(segNo)), os.O_RDWR|os.O_CREATE, FileMode0644)
}

// Segments lists the segment numbers present on disk, ascending. A missing
// directory holds none.
func (lfs LocalFileSet) Segments() ([]uint32, error) {
	ents, err := os.ReadDir(lfs.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var segs []uint32
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		if e.Name() == lfs.Base {
			segs = append(segs, 0)
			continue
		}
		suffix, ok := strings.CutPrefix(e.Name(), lfs.Base+".")
		if !ok {
			continue
		}
		if n, err := strconv.ParseUint(suffix, 10, 32); err == nil && n > 0 {
			segs = append(segs, uint32(n))
		}
	}
	slices.Sort(segs)
	return segs, nil
}

// Remove deletes every segment of the blob file.
func (lfs LocalFileSet) Remove() error {
	segs, err := lfs.Segments()
	if err != nil {
		return err
	}
	for _, seg := range segs {
		err := os.Remove(filepath.Join(lfs.Dir, lfs.SegmentName(seg)))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}
