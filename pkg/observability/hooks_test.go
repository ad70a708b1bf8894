package observability

import (
	"context"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	s := NoopSolverHooks{}
	s.OnSolveStart(ctx, "projection", 4)
	s.OnSolveComplete(ctx, "projection", time.Millisecond, nil)

	w := NoopSweepHooks{}
	w.OnSweepStart(ctx, "accurate", 10)
	w.OnStep(ctx, 0, 1e-9, true)
	w.OnSweepComplete(ctx, 10, time.Second, nil)

	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "sweep")
	c.OnCacheMiss(ctx, "sweep")
	c.OnCacheSet(ctx, "sweep", 1024)

	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "POST", "/v1/solve")
	h.OnResponse(ctx, "POST", "/v1/solve", 200, time.Millisecond)
}

func TestGlobalHooksRegistry(t *testing.T) {
	Reset()

	if _, ok := Solver().(NoopSolverHooks); !ok {
		t.Error("Solver() should return NoopSolverHooks by default")
	}
	if _, ok := Sweep().(NoopSweepHooks); !ok {
		t.Error("Sweep() should return NoopSweepHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}

	solver := &countingSolverHooks{}
	SetSolverHooks(solver)
	if Solver() != solver {
		t.Error("SetSolverHooks should set custom hooks")
	}
	Solver().OnSolveStart(context.Background(), "projection", 3)
	if solver.starts != 1 {
		t.Errorf("starts = %d, want 1", solver.starts)
	}

	sweep := &testSweepHooks{}
	SetSweepHooks(sweep)
	if Sweep() != sweep {
		t.Error("SetSweepHooks should set custom hooks")
	}

	cache := &testCacheHooks{}
	SetCacheHooks(cache)
	if Cache() != cache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	Reset()
	if _, ok := Solver().(NoopSolverHooks); !ok {
		t.Error("Reset() should restore NoopSolverHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()
	defer Reset()

	custom := &testSweepHooks{}
	SetSweepHooks(custom)
	SetSweepHooks(nil)

	if Sweep() != custom {
		t.Error("SetSweepHooks(nil) should be ignored")
	}
}

type countingSolverHooks struct {
	NoopSolverHooks
	starts int
}

func (c *countingSolverHooks) OnSolveStart(context.Context, string, int) { c.starts++ }

type testSweepHooks struct{ NoopSweepHooks }
type testCacheHooks struct{ NoopCacheHooks }
