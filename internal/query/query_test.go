package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novatile/internal/buffer"
	"github.com/tuannm99/novatile/internal/condition"
	"github.com/tuannm99/novatile/internal/datatype"
	"github.com/tuannm99/novatile/internal/schema"
)

type fakeArray struct {
	s       *schema.Schema
	qtype   Type
	session *fakeSession
}

func (a *fakeArray) URI() string            { return "mem://fake" }
func (a *fakeArray) Schema() *schema.Schema { return a.s }
func (a *fakeArray) QueryType() Type        { return a.qtype }
func (a *fakeArray) NewSession() (Session, error) {
	return a.session, nil
}

// fakeSession streams values into the "a" binding, as many as fit per
// round.
type fakeSession struct {
	values    []int32
	cursor    int
	err       error
	gate      chan struct{}
	finalized int
	submits   int
}

func (f *fakeSession) Submit(ctx context.Context, req *Request) (Result, error) {
	f.submits++
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return Result{}, f.err
	}
	if req.Type == Write {
		if req.Layout == schema.GlobalOrder {
			return Result{Status: InProgress}, nil
		}
		return Result{Status: Completed}, nil
	}
	b, _ := req.Buffers.Get("a")
	for f.cursor < len(f.values) {
		v := datatype.Encode(f.values[f.cursor])
		if !b.Fits(v) {
			return Result{Status: Incomplete, Reason: ReasonUserBufferSize}, nil
		}
		if err := b.Append(v, true); err != nil {
			return Result{}, err
		}
		f.cursor++
	}
	return Result{Status: Completed}, nil
}

func (f *fakeSession) Finalize(ctx context.Context, req *Request) error {
	f.finalized++
	return f.err
}

func (f *fakeSession) Estimate(ctx context.Context, req *Request, name string) (Estimate, error) {
	return Estimate{Data: uint64(len(f.values)) * 4}, nil
}

func (f *fakeSession) Fragments() []FragmentInfo {
	if f.finalized == 0 {
		return nil
	}
	return []FragmentInfo{{Name: "__1_1_x_1", URI: "mem://fake/__fragments/__1_1_x_1", TimestampStart: 1, TimestampEnd: 1}}
}

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s := schema.New(schema.Dense)
	d, err := schema.NewDimension[int32]("d", 0, 99, 10)
	require.NoError(t, err)
	require.NoError(t, s.AddDimension(d))
	a, err := schema.NewAttribute("a", datatype.Int32)
	require.NoError(t, err)
	require.NoError(t, s.AddAttribute(a))
	b, err := schema.NewAttribute("b", datatype.Float64)
	require.NoError(t, err)
	require.NoError(t, s.AddAttribute(b))
	require.NoError(t, s.Check())
	s.Freeze()
	return s
}

func newQuery(t *testing.T, qt Type, sess *fakeSession) *Query {
	t.Helper()
	q, err := New(&fakeArray{s: testSchema(t), qtype: qt, session: sess})
	require.NoError(t, err)
	return q
}

func TestSubmitRequiresBuffers(t *testing.T) {
	q := newQuery(t, Read, &fakeSession{})
	err := q.Submit(context.Background())
	require.ErrorIs(t, err, buffer.ErrBufferNotBound)
	require.Equal(t, Uninitialized, q.Status())
}

func TestReadStateMachine(t *testing.T) {
	sess := &fakeSession{values: []int32{1, 2, 3, 4, 5}}
	q := newQuery(t, Read, sess)
	ctx := context.Background()

	buf := make([]int32, 2)
	require.NoError(t, BindFixed(q, "a", buf))

	var got []int32
	var statuses []Status
	for {
		require.NoError(t, q.Submit(ctx))
		statuses = append(statuses, q.Status())
		e, err := q.ResultElements("a")
		require.NoError(t, err)
		got = append(got, buf[:e.Data]...)
		if q.Status() == Completed {
			break
		}
		require.Equal(t, ReasonUserBufferSize, q.StatusDetails())
	}
	require.Equal(t, []int32{1, 2, 3, 4, 5}, got)
	require.Equal(t, []Status{Incomplete, Incomplete, Completed}, statuses)

	err := q.Submit(ctx)
	require.ErrorIs(t, err, ErrQueryState)
	require.ErrorIs(t, BindFixed(q, "a", buf), ErrQueryState)
}

func TestEngineFailureIsTerminal(t *testing.T) {
	cause := errors.New("disk on fire")
	q := newQuery(t, Read, &fakeSession{err: cause})
	require.NoError(t, BindFixed(q, "a", make([]int32, 4)))

	err := q.Submit(context.Background())
	require.ErrorIs(t, err, ErrEngine)
	require.ErrorIs(t, err, cause)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, "submit", ee.Op)
	require.Equal(t, Failed, q.Status())
	require.Same(t, ee, q.Err())

	require.ErrorIs(t, q.Submit(context.Background()), ErrQueryState)
}

func TestConfigureOnlyBeforeSubmit(t *testing.T) {
	sess := &fakeSession{values: []int32{1, 2, 3}}
	q := newQuery(t, Read, sess)
	require.NoError(t, SetSubarrayValues[int32](q, 0, 2))
	require.NoError(t, AddRange[int32](q, 0, 5, 6))
	n, err := q.RangeNum(0)
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)

	require.NoError(t, BindFixed(q, "a", make([]int32, 1)))
	require.NoError(t, q.Submit(context.Background()))
	require.Equal(t, Incomplete, q.Status())

	require.ErrorIs(t, AddRange[int32](q, 0, 7, 8), ErrQueryState)
	require.ErrorIs(t, q.SetLayout(schema.ColMajor), ErrQueryState)
	require.ErrorIs(t, q.SetCondition(nil), ErrQueryState)

	// rebinding between incomplete rounds is legal
	require.NoError(t, BindFixed(q, "a", make([]int32, 8)))
	require.NoError(t, q.Submit(context.Background()))
	require.Equal(t, Completed, q.Status())
	e, err := q.ResultElements("a")
	require.NoError(t, err)
	require.Equal(t, uint64(2), e.Data)
}

func TestSetCondition(t *testing.T) {
	s := testSchema(t)

	rq, err := New(&fakeArray{s: s, qtype: Read, session: &fakeSession{}})
	require.NoError(t, err)
	c1, err := condition.New[int32](s, "a", condition.LT, 5)
	require.NoError(t, err)
	c2, err := condition.New(s, "b", condition.GE, 1.5)
	require.NoError(t, err)
	require.NoError(t, rq.SetCondition(c1))
	require.NoError(t, rq.SetCondition(c2))
	require.Equal(t, c2, rq.Condition())

	wq, err := New(&fakeArray{s: s, qtype: Write, session: &fakeSession{}})
	require.NoError(t, err)
	require.ErrorIs(t, wq.SetCondition(c1), ErrQueryState)
}

func TestSetLayout(t *testing.T) {
	q := newQuery(t, Read, &fakeSession{})
	require.ErrorIs(t, q.SetLayout(schema.Unordered), ErrInvalidLayout)
	require.NoError(t, q.SetLayout(schema.ColMajor))
	require.Equal(t, schema.ColMajor, q.Layout())
}

func TestWriteNeedsEveryAttribute(t *testing.T) {
	q := newQuery(t, Write, &fakeSession{})
	require.NoError(t, BindFixed(q, "a", []int32{1}))
	require.ErrorIs(t, q.Submit(context.Background()), buffer.ErrBufferNotBound)

	require.NoError(t, BindFixed(q, "b", []float64{1}))
	require.NoError(t, q.Submit(context.Background()))
	require.Equal(t, Completed, q.Status())
}

func TestGlobalWriteFinalize(t *testing.T) {
	sess := &fakeSession{}
	q := newQuery(t, Write, sess)
	ctx := context.Background()
	require.NoError(t, q.SetLayout(schema.GlobalOrder))
	require.NoError(t, BindFixed(q, "a", []int32{1}))
	require.NoError(t, BindFixed(q, "b", []float64{1}))

	require.NoError(t, q.Submit(ctx))
	require.Equal(t, InProgress, q.Status())
	require.NoError(t, q.Submit(ctx))
	require.Equal(t, uint32(0), q.FragmentNum())

	require.NoError(t, q.Finalize(ctx))
	require.Equal(t, Completed, q.Status())
	require.Equal(t, 1, sess.finalized)

	require.Equal(t, uint32(1), q.FragmentNum())
	uri, err := q.FragmentURI(0)
	require.NoError(t, err)
	require.Contains(t, uri, "__fragments")
	start, end, err := q.FragmentTimestampRange(0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), start)
	require.Equal(t, uint64(1), end)
	_, err = q.FragmentURI(3)
	require.ErrorIs(t, err, ErrFragmentNotFound)

	// finalize on a finished query does nothing
	require.NoError(t, q.Finalize(ctx))
	require.Equal(t, 1, sess.finalized)
}

func TestFinalizeReadIsNoop(t *testing.T) {
	sess := &fakeSession{values: []int32{1}}
	q := newQuery(t, Read, sess)
	require.NoError(t, q.Finalize(context.Background()))
	require.Equal(t, Uninitialized, q.Status())
	require.Equal(t, 0, sess.finalized)
}

func TestIterateStalls(t *testing.T) {
	// a bound buffer of zero cells can never make progress
	sess := &fakeSession{values: []int32{1, 2}}
	q := newQuery(t, Read, sess)
	require.NoError(t, BindFixed(q, "a", []int32{}))

	stalls := 0
	err := q.Iterate(context.Background(), nil, IterateOptions{
		MaxZeroProgressRounds: 3,
		OnStall: func(*Query, int) error {
			stalls++
			return nil
		},
	})
	require.ErrorIs(t, err, ErrQueryStalled)
	require.Equal(t, 2, stalls)
	require.Equal(t, 3, sess.submits)
}

func TestIterateGrowsOnStall(t *testing.T) {
	sess := &fakeSession{values: []int32{7, 8, 9}}
	q := newQuery(t, Read, sess)
	buf := []int32{}
	require.NoError(t, BindFixed(q, "a", buf))

	var got []int32
	err := q.Iterate(context.Background(), func(r Round) error {
		got = append(got, buf[:r.Elements["a"].Data]...)
		return nil
	}, IterateOptions{
		OnStall: func(q *Query, _ int) error {
			buf = make([]int32, 2)
			return BindFixed(q, "a", buf)
		},
	})
	require.NoError(t, err)
	require.Equal(t, []int32{7, 8, 9}, got)
	require.Equal(t, Completed, q.Status())
}

func TestEstimate(t *testing.T) {
	q := newQuery(t, Read, &fakeSession{values: []int32{1, 2, 3}})
	n, err := q.EstResultSize(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, uint64(12), n)

	_, _, err = q.EstResultSizeVar(context.Background(), "a")
	require.ErrorIs(t, err, buffer.ErrInvalidBuffer)

	wq := newQuery(t, Write, &fakeSession{})
	_, err = wq.EstResultSize(context.Background(), "a")
	require.ErrorIs(t, err, ErrQueryState)
}

func TestSubmitAsync(t *testing.T) {
	gate := make(chan struct{})
	sess := &fakeSession{values: []int32{1, 2}, gate: gate}
	q := newQuery(t, Read, sess)
	require.NoError(t, BindFixed(q, "a", make([]int32, 4)))

	var calls atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, q.SubmitAsync(context.Background(), func(err error) {
		defer wg.Done()
		require.NoError(t, err)
		calls.Add(1)
	}))

	// the query is busy until the engine returns
	require.ErrorIs(t, q.Submit(context.Background()), ErrQueryState)
	require.ErrorIs(t, q.SubmitAsync(context.Background(), nil), ErrQueryState)
	_, err := q.RangeNum(0)
	require.ErrorIs(t, err, ErrQueryState)
	_, _, _, err = GetRange[int32](q, 0, 0)
	require.ErrorIs(t, err, ErrQueryState)

	close(gate)
	wg.Wait()
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, Completed, q.Status())

	n, err := q.RangeNum(0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), n)
	_, _, _, err = GetRange[int32](q, 0, 0)
	require.NoError(t, err)
}
