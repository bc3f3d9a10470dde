package query

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tuannm99/novatile/internal/buffer"
	"github.com/tuannm99/novatile/internal/metrics"
)

// DefaultMaxZeroProgressRounds bounds consecutive INCOMPLETE rounds that
// return no data before a read loop gives up.
const DefaultMaxZeroProgressRounds = 10

// Round is what one read round produced.
type Round struct {
	Index    int
	Status   Status
	Reason   StatusReason
	Elements map[string]buffer.Elements
}

// Empty reports whether the round returned no cells.
func (r Round) Empty() bool {
	for _, e := range r.Elements {
		if e.Data > 0 || e.Offsets > 0 || e.Validity > 0 {
			return false
		}
	}
	return true
}

type IterateOptions struct {
	// MaxZeroProgressRounds defaults to DefaultMaxZeroProgressRounds.
	MaxZeroProgressRounds int
	// OnStall runs after each zero-progress INCOMPLETE round, before the
	// next submit. It may re-bind larger buffers.
	OnStall func(q *Query, streak int) error
}

// Iterate runs the read pagination loop: submit, hand the round to fn,
// stop on COMPLETED. fn must consume the bound buffers before returning,
// as the next round overwrites them. A zero-progress INCOMPLETE round
// means the buffers cannot hold the next cell; after
// MaxZeroProgressRounds of those in a row the loop fails with
// ErrQueryStalled.
func (q *Query) Iterate(ctx context.Context, fn func(Round) error, opts IterateOptions) error {
	if q.qtype != Read {
		return fmt.Errorf("%w: iterate applies to reads only", ErrQueryState)
	}
	limit := opts.MaxZeroProgressRounds
	if limit <= 0 {
		limit = DefaultMaxZeroProgressRounds
	}

	streak := 0
	for i := 0; ; i++ {
		if err := q.Submit(ctx); err != nil {
			return err
		}
		round := Round{
			Index:    i,
			Status:   q.Status(),
			Reason:   q.StatusDetails(),
			Elements: q.ResultBufferElements(),
		}
		if fn != nil {
			if err := fn(round); err != nil {
				return err
			}
		}
		if round.Status == Completed {
			return nil
		}
		if round.Status != Incomplete {
			return fmt.Errorf("%w: unexpected status %s", ErrQueryState, round.Status)
		}
		if !round.Empty() {
			streak = 0
			continue
		}

		streak++
		slog.Debug("query: zero-progress round", "uri", q.array.URI(), "streak", streak, "reason", round.Reason)
		if streak >= limit {
			metrics.QueryStalls.Inc()
			return fmt.Errorf("%w: %d consecutive empty incomplete rounds", ErrQueryStalled, streak)
		}
		if opts.OnStall != nil {
			if err := opts.OnStall(q, streak); err != nil {
				return err
			}
		}
	}
}
