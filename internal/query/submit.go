package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tuannm99/novatile/internal/buffer"
	"github.com/tuannm99/novatile/internal/metrics"
	"github.com/tuannm99/novatile/internal/schema"
)

// Submit runs one round and blocks until the engine reports a status.
// After INCOMPLETE the caller consumes the partial result and submits
// again; the engine resumes exactly where it stopped.
func (q *Query) Submit(ctx context.Context) error {
	if err := q.acquire(); err != nil {
		return err
	}
	defer q.release()
	return q.submit(ctx)
}

// SubmitAsync starts one round on a background worker and returns. done
// is called exactly once with the round's error, after the query has been
// released, so done may submit again.
func (q *Query) SubmitAsync(ctx context.Context, done func(error)) error {
	if err := q.acquire(); err != nil {
		return err
	}
	pool := q.pool
	if pool == nil {
		p, err := sharedPool()
		if err != nil {
			q.release()
			return err
		}
		pool = p
	}
	err := pool.Go(func() {
		err := q.submit(ctx)
		q.release()
		if done != nil {
			done(err)
		}
	})
	if err != nil {
		q.release()
		return fmt.Errorf("query: schedule async submit: %w", err)
	}
	return nil
}

func (q *Query) submit(ctx context.Context) error {
	switch st := q.Status(); st {
	case Completed, Failed:
		return fmt.Errorf("%w: submit on a %s query", ErrQueryState, st)
	}
	if q.buffers.Len() == 0 {
		return fmt.Errorf("%w: no buffers bound", buffer.ErrBufferNotBound)
	}
	if q.qtype == Write {
		if err := q.checkWriteBuffers(); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := q.ensureSession(); err != nil {
		return err
	}

	q.setStatus(InProgress, ReasonNone)
	q.buffers.BeginRound()
	start := time.Now()
	res, err := q.session.Submit(ctx, q.request())
	if err != nil {
		return q.fail("submit", err)
	}
	q.buffers.EndRound()

	q.mu.Lock()
	q.status, q.reason = res.Status, res.Reason
	q.rounds++
	round := q.rounds
	q.mu.Unlock()

	used := q.buffers.UsedBytes()
	metrics.ObserveSubmit(q.qtype.String(), res.Status.String(), time.Since(start), used)
	slog.Debug("query: submit",
		"uri", q.array.URI(),
		"type", q.qtype,
		"layout", q.layout,
		"round", round,
		"status", res.Status,
		"reason", res.Reason,
		"bytes", used,
	)
	return nil
}

func (q *Query) ensureSession() error {
	if q.session != nil {
		return nil
	}
	s, err := q.array.NewSession()
	if err != nil {
		return q.fail("open session", err)
	}
	q.session = s
	return nil
}

func (q *Query) fail(op string, err error) error {
	e := &EngineError{Op: op, URI: q.array.URI(), Err: err}
	q.mu.Lock()
	q.status, q.reason, q.err = Failed, ReasonNone, e
	q.mu.Unlock()
	slog.Debug("query: failed", "uri", q.array.URI(), "op", op, "err", err)
	return e
}

// checkWriteBuffers requires every attribute, and for sparse arrays the
// coordinates, to be bound before a write round.
func (q *Query) checkWriteBuffers() error {
	for _, a := range q.schema.Attributes() {
		if _, ok := q.buffers.Get(a.Name()); !ok {
			return fmt.Errorf("%w: attribute %q", buffer.ErrBufferNotBound, a.Name())
		}
	}
	if q.schema.ArrayType() == schema.Dense {
		return nil
	}
	if _, ok := q.buffers.Get(schema.CoordsName); ok {
		return nil
	}
	for _, d := range q.schema.Domain().Dimensions() {
		if _, ok := q.buffers.Get(d.Name()); !ok {
			return fmt.Errorf("%w: dimension %q", buffer.ErrBufferNotBound, d.Name())
		}
	}
	return nil
}

// Finalize flushes a global-order write, moving it to COMPLETED. It is a
// no-op for reads and for other layouts.
func (q *Query) Finalize(ctx context.Context) error {
	if err := q.acquire(); err != nil {
		return err
	}
	defer q.release()
	if q.qtype != Write || q.layout != schema.GlobalOrder || q.session == nil {
		return nil
	}
	if q.Status() != InProgress {
		return nil
	}
	if err := q.session.Finalize(ctx, q.request()); err != nil {
		return q.fail("finalize", err)
	}
	q.setStatus(Completed, ReasonNone)
	slog.Debug("query: finalized", "uri", q.array.URI(), "fragments", len(q.session.Fragments()))
	return nil
}

func (q *Query) estimate(ctx context.Context, name string, wantVar, wantNullable bool) (Estimate, error) {
	if err := q.acquire(); err != nil {
		return Estimate{}, err
	}
	defer q.release()
	if q.qtype != Read {
		return Estimate{}, fmt.Errorf("%w: estimates apply to reads only", ErrQueryState)
	}
	f, err := q.schema.Field(name)
	if err != nil {
		return Estimate{}, err
	}
	if f.IsVar() != wantVar {
		return Estimate{}, fmt.Errorf("%w: %q variable-sized is %v", buffer.ErrInvalidBuffer, name, f.IsVar())
	}
	if f.Nullable != wantNullable {
		return Estimate{}, fmt.Errorf("%w: %q nullable is %v", buffer.ErrInvalidBuffer, name, f.Nullable)
	}
	if err := q.ensureSession(); err != nil {
		return Estimate{}, err
	}
	est, err := q.session.Estimate(ctx, q.request(), name)
	if err != nil {
		return Estimate{}, &EngineError{Op: "estimate", URI: q.array.URI(), Err: err}
	}
	return est, nil
}

// EstResultSize returns an upper-bound data size in bytes for a fixed
// field under the current selection.
func (q *Query) EstResultSize(ctx context.Context, name string) (uint64, error) {
	e, err := q.estimate(ctx, name, false, false)
	return e.Data, err
}

// EstResultSizeVar returns upper-bound offsets and data sizes in bytes.
func (q *Query) EstResultSizeVar(ctx context.Context, name string) (offsets, data uint64, err error) {
	e, err := q.estimate(ctx, name, true, false)
	return e.Offsets, e.Data, err
}

func (q *Query) EstResultSizeNullable(ctx context.Context, name string) (data, validity uint64, err error) {
	e, err := q.estimate(ctx, name, false, true)
	return e.Data, e.Validity, err
}

func (q *Query) EstResultSizeVarNullable(ctx context.Context, name string) (offsets, data, validity uint64, err error) {
	e, err := q.estimate(ctx, name, true, true)
	return e.Offsets, e.Data, e.Validity, err
}

func (q *Query) fragments() []FragmentInfo {
	if q.session == nil {
		return nil
	}
	return q.session.Fragments()
}

// FragmentNum is the number of fragments this query wrote.
func (q *Query) FragmentNum() uint32 { return uint32(len(q.fragments())) }

func (q *Query) fragment(i uint32) (FragmentInfo, error) {
	fs := q.fragments()
	if int(i) >= len(fs) {
		return FragmentInfo{}, fmt.Errorf("%w: index %d of %d", ErrFragmentNotFound, i, len(fs))
	}
	return fs[i], nil
}

func (q *Query) FragmentURI(i uint32) (string, error) {
	f, err := q.fragment(i)
	return f.URI, err
}

func (q *Query) FragmentTimestampRange(i uint32) (start, end uint64, err error) {
	f, err := q.fragment(i)
	return f.TimestampStart, f.TimestampEnd, err
}
