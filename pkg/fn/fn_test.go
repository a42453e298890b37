package fn

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

// --- Result ---

func TestOkAndErr(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("Ok should be ok")
	}
	v, err := r.Unwrap()
	if v != 42 || err != nil {
		t.Fatal("wrong unwrap")
	}

	e := Err[int](errors.New("fail"))
	if e.IsOk() || !e.IsErr() || e.Error() == nil {
		t.Fatal("Err should be err")
	}
}

func TestErrfWraps(t *testing.T) {
	base := errors.New("root")
	r := Errf[string]("stage %d: %w", 2, base)
	if !errors.Is(r.Error(), base) {
		t.Fatal("Errf should keep the wrapped error")
	}
	if r.Error().Error() != "stage 2: root" {
		t.Fatalf("unexpected message %q", r.Error())
	}
}

func TestUnwrapOr(t *testing.T) {
	if Ok(1).UnwrapOr(9) != 1 {
		t.Fatal("should return value")
	}
	if Err[int](errors.New("x")).UnwrapOr(9) != 9 {
		t.Fatal("should return fallback")
	}
}

func TestMapResult(t *testing.T) {
	r := MapResult(Ok(5), strconv.Itoa)
	if v, _ := r.Unwrap(); v != "5" {
		t.Fatal("MapResult failed")
	}
	e := MapResult(Err[int](errors.New("x")), strconv.Itoa)
	if e.IsOk() {
		t.Fatal("MapResult on Err should stay Err")
	}
}

func TestFromPair(t *testing.T) {
	if v, _ := FromPair(strconv.Atoi("42")).Unwrap(); v != 42 {
		t.Fatal("FromPair failed")
	}
	if FromPair(strconv.Atoi("nope")).IsOk() {
		t.Fatal("FromPair should fail")
	}
}

func TestPartition(t *testing.T) {
	vals, errs := Partition([]Result[int]{Ok(1), Err[int](errors.New("e1")), Ok(3), Err[int](errors.New("e3"))})
	if len(vals) != 2 || vals[0] != 1 || vals[1] != 3 {
		t.Fatalf("unexpected values %v", vals)
	}
	if len(errs) != 2 || errs[1].Error() != "e1" || errs[3].Error() != "e3" {
		t.Fatalf("unexpected errors %v", errs)
	}
}

// --- Stages ---

func TestThen(t *testing.T) {
	double := Stage[int, int](func(_ context.Context, v int) Result[int] { return Ok(v * 2) })
	str := Stage[int, string](func(_ context.Context, v int) Result[string] { return Ok(strconv.Itoa(v)) })

	v, err := Then(double, str)(context.Background(), 21).Unwrap()
	if err != nil || v != "42" {
		t.Fatalf("expected 42, got %q (%v)", v, err)
	}
}

func TestThenShortCircuits(t *testing.T) {
	called := false
	fail := Stage[int, int](func(context.Context, int) Result[int] { return Err[int](errors.New("stop")) })
	next := Stage[int, int](func(_ context.Context, v int) Result[int] { called = true; return Ok(v) })

	r := Then(fail, next)(context.Background(), 1)
	if r.IsOk() || called {
		t.Fatal("second stage must not run after a failure")
	}
}

func TestTapStage(t *testing.T) {
	var seen int
	r := TapStage(func(_ context.Context, v int) { seen = v })(context.Background(), 7)
	if v, _ := r.Unwrap(); v != 7 || seen != 7 {
		t.Fatal("TapStage should observe and pass through")
	}
}

func TestTracedStagePassesResult(t *testing.T) {
	s := TracedStage("test", Stage[int, int](func(_ context.Context, v int) Result[int] { return Ok(v + 1) }))
	if v, _ := s(context.Background(), 1).Unwrap(); v != 2 {
		t.Fatal("TracedStage changed the result")
	}
	f := TracedStage("test", Stage[int, int](func(context.Context, int) Result[int] { return Err[int](errors.New("x")) }))
	if f(context.Background(), 1).IsOk() {
		t.Fatal("TracedStage swallowed the error")
	}
}

// --- Parallel ---

func TestParMapResultOrderAndBound(t *testing.T) {
	var active, peak atomic.Int32
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	out := ParMapResult(context.Background(), items, 3, func(_ context.Context, v int) Result[int] {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return Ok(v * v)
	})
	for i, r := range out {
		if v, _ := r.Unwrap(); v != items[i]*items[i] {
			t.Fatalf("index %d: expected %d, got %d", i, items[i]*items[i], v)
		}
	}
	if peak.Load() > 3 {
		t.Fatalf("expected at most 3 workers, saw %d", peak.Load())
	}
}

func TestParMapResultEmpty(t *testing.T) {
	out := ParMapResult(context.Background(), []int{}, 4, func(_ context.Context, v int) Result[int] { return Ok(v) })
	if len(out) != 0 {
		t.Fatal("expected empty output")
	}
}

func TestParMapResultCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var calls atomic.Int32
	out := ParMapResult(ctx, []int{1, 2, 3}, 1, func(_ context.Context, v int) Result[int] {
		calls.Add(1)
		return Ok(v)
	})
	failed := 0
	for _, r := range out {
		if errors.Is(r.Error(), context.Canceled) {
			failed++
		}
	}
	if failed+int(calls.Load()) != 3 {
		t.Fatalf("every item should either run or fail with context.Canceled")
	}
}

// --- Retry ---

func fastRetry(n int) RetryOpts {
	return RetryOpts{MaxAttempts: n, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond}
}

func TestRetrySucceedsEventually(t *testing.T) {
	calls := 0
	r := Retry(context.Background(), fastRetry(3), func(context.Context) Result[string] {
		calls++
		if calls < 3 {
			return Err[string](errors.New("transient"))
		}
		return Ok("done")
	})
	if v, _ := r.Unwrap(); v != "done" || calls != 3 {
		t.Fatalf("expected success on third call, got %q after %d", v, calls)
	}
}

func TestRetryExhausts(t *testing.T) {
	calls := 0
	r := Retry(context.Background(), fastRetry(4), func(context.Context) Result[int] {
		calls++
		return Err[int](errors.New("always"))
	})
	if r.IsOk() || calls != 4 {
		t.Fatalf("expected 4 failing calls, got %d", calls)
	}
}

func TestRetryPermanentStops(t *testing.T) {
	calls := 0
	base := errors.New("bad request")
	r := Retry(context.Background(), fastRetry(5), func(context.Context) Result[int] {
		calls++
		return Err[int](Permanent(base))
	})
	if calls != 1 || !errors.Is(r.Error(), base) {
		t.Fatalf("expected a single call with the permanent cause, got %d calls (%v)", calls, r.Error())
	}
}

func TestRetryableFilter(t *testing.T) {
	calls := 0
	opts := fastRetry(5)
	opts.Retryable = func(error) bool { return false }
	Retry(context.Background(), opts, func(context.Context) Result[int] {
		calls++
		return Err[int](errors.New("x"))
	})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := RetryOpts{MaxAttempts: 10, InitialWait: time.Hour}
	r := Retry(ctx, opts, func(context.Context) Result[int] {
		cancel()
		return Err[int](errors.New("x"))
	})
	if !errors.Is(r.Error(), context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", r.Error())
	}
}

// --- Slices ---

func TestBatch(t *testing.T) {
	b := Batch([]int{1, 2, 3, 4, 5}, 2)
	if len(b) != 3 || len(b[2]) != 1 || b[2][0] != 5 {
		t.Fatalf("unexpected batches %v", b)
	}
	if Batch([]int{1}, 0) != nil {
		t.Fatal("n <= 0 should return nil")
	}
	if len(Batch([]int{}, 3)) != 0 {
		t.Fatal("empty input should produce no batches")
	}
}

func TestMap(t *testing.T) {
	out := Map([]int{1, 2}, strconv.Itoa)
	if out[0] != "1" || out[1] != "2" {
		t.Fatalf("unexpected %v", out)
	}
}
