package storage

import "errors"

const (
	PageSize          = 8 << 10 // 8 KiB
	SegmentSize       = 1 << 30 // 1 GiB
	MaxPagePerSegment = SegmentSize / PageSize
)

const (
	FileMode0644 = 0o644
	FileMode0755 = 0o755
)

var (
	ErrWrongSize     = errors.New("storage: buffer size != PageSize")
	ErrEmptyBlob     = errors.New("storage: empty blob")
	ErrTruncatedBlob = errors.New("storage: truncated blob chain")
)
