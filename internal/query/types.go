package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/tuannm99/novatile/internal/buffer"
	"github.com/tuannm99/novatile/internal/condition"
	"github.com/tuannm99/novatile/internal/schema"
	"github.com/tuannm99/novatile/internal/subarray"
)

// Type is the query direction. Discriminants match the engine ABI.
type Type uint8

const (
	Read  Type = 0
	Write Type = 1
)

func (t Type) String() string {
	switch t {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return fmt.Sprintf("query_type(%d)", uint8(t))
	}
}

func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "read", "r":
		return Read, nil
	case "write", "w":
		return Write, nil
	}
	return 0, fmt.Errorf("%w: unknown query type %q", ErrQueryState, s)
}

// Status discriminants match the engine ABI.
type Status uint8

const (
	Failed        Status = 0
	Completed     Status = 1
	InProgress    Status = 2
	Incomplete    Status = 3
	Uninitialized Status = 4
)

func (s Status) String() string {
	switch s {
	case Failed:
		return "FAILED"
	case Completed:
		return "COMPLETED"
	case InProgress:
		return "INPROGRESS"
	case Incomplete:
		return "INCOMPLETE"
	case Uninitialized:
		return "UNINITIALIZED"
	default:
		return fmt.Sprintf("STATUS(%d)", uint8(s))
	}
}

// StatusReason explains an INCOMPLETE status.
type StatusReason uint8

const (
	ReasonNone           StatusReason = 0
	ReasonUserBufferSize StatusReason = 1
)

func (r StatusReason) String() string {
	if r == ReasonUserBufferSize {
		return "USER_BUFFER_SIZE"
	}
	return "NONE"
}

// Request is everything the engine needs for one round.
type Request struct {
	Type      Type
	Layout    schema.Layout
	Subarray  *subarray.Subarray
	Condition condition.Condition
	Buffers   *buffer.Table
}

// Result is the engine's verdict on one round.
type Result struct {
	Status Status
	Reason StatusReason
}

// Estimate is an upper-bound result size in bytes.
type Estimate struct {
	Offsets  uint64
	Data     uint64
	Validity uint64
}

// FragmentInfo describes one fragment written by a query.
type FragmentInfo struct {
	Name           string
	URI            string
	TimestampStart uint64
	TimestampEnd   uint64
	CellNum        uint64
}

// Array is an opened array as seen by queries.
type Array interface {
	URI() string
	Schema() *schema.Schema
	QueryType() Type
	NewSession() (Session, error)
}

// Session is the engine-side state of one query. The engine resumes an
// incomplete read from where the previous round stopped.
type Session interface {
	Submit(ctx context.Context, req *Request) (Result, error)
	Finalize(ctx context.Context, req *Request) error
	Estimate(ctx context.Context, req *Request, name string) (Estimate, error)
	Fragments() []FragmentInfo
}

// PoolProvider is implemented by arrays that supply their own worker
// pool for SubmitAsync.
type PoolProvider interface {
	AsyncPool() *Pool
}
