package engine

import "errors"

var (
	ErrArrayNotFound    = errors.New("engine: array not found")
	ErrArrayExists      = errors.New("engine: array already exists")
	ErrArrayInUse       = errors.New("engine: array is open")
	ErrArrayClosed      = errors.New("engine: array is closed")
	ErrInvalidMode      = errors.New("engine: operation not allowed in this open mode")
	ErrInvalidURI       = errors.New("engine: invalid array uri")
	ErrMetadataNotFound = errors.New("engine: metadata key not found")
	ErrInvalidMetadata  = errors.New("engine: invalid metadata value")
	ErrWriteShape       = errors.New("engine: write buffers do not match the selection")
	ErrOutOfDomain      = errors.New("engine: coordinate outside the domain")
	ErrDuplicateCoords  = errors.New("engine: duplicate coordinates")
	ErrUnsortedWrite    = errors.New("engine: cells are not in global order")
	ErrCorruptFragment  = errors.New("engine: corrupt fragment")
	ErrEngineClosed     = errors.New("engine: closed")
)

func isNotFound(err error) bool { return errors.Is(err, ErrMetadataNotFound) }
