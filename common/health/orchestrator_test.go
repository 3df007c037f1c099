package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failingProbe() Prober {
	return ProbeFunc(func(ctx context.Context) error {
		return errors.New("connection refused")
	})
}

func healthyProbe() Prober {
	return ProbeFunc(func(ctx context.Context) error {
		return nil
	})
}

// register declares a dependency and moves it into Starting the way Start
// does, without launching the probe loop, so transitions can be driven
// deterministically through probeOnce.
func register(t *testing.T, o *Orchestrator, check Check) {
	t.Helper()
	require.NoError(t, o.Register(check))

	o.mu.Lock()
	dep := o.deps[check.Name]
	dep.startedAt = time.Now()
	o.transitionLocked(dep, StateStarting)
	o.mu.Unlock()
}

func stateOf(t *testing.T, o *Orchestrator, name string) string {
	t.Helper()
	for _, st := range o.Snapshot() {
		if st.Name == name {
			return st.State
		}
	}
	t.Fatalf("dependency %s not found in snapshot", name)
	return ""
}

func TestRegister_Validation(t *testing.T) {
	o := NewOrchestrator(nil)

	assert.Error(t, o.Register(Check{Prober: healthyProbe(), Interval: time.Second}), "missing name")
	assert.Error(t, o.Register(Check{Name: "db", Interval: time.Second}), "missing prober")
	assert.Error(t, o.Register(Check{Name: "db", Prober: healthyProbe()}), "missing interval")

	require.NoError(t, o.Register(Check{Name: "db", Prober: healthyProbe(), Interval: time.Second}))
	assert.Error(t, o.Register(Check{Name: "db", Prober: healthyProbe(), Interval: time.Second}), "duplicate name")
}

func TestStateMachine_StartingToHealthy(t *testing.T) {
	o := NewOrchestrator(nil)
	register(t, o, Check{
		Name:             "backend",
		Prober:           healthyProbe(),
		Interval:         time.Second,
		FailureThreshold: 3,
		Hard:             true,
	})

	o.probeOnce(context.Background(), "backend")
	assert.Equal(t, "healthy", stateOf(t, o, "backend"))
	assert.True(t, o.Ready())
}

func TestStateMachine_SustainedFailureReachesUnhealthy(t *testing.T) {
	o := NewOrchestrator(nil)
	register(t, o, Check{
		Name:             "backend",
		Prober:           failingProbe(),
		Interval:         time.Second,
		FailureThreshold: 3,
		Hard:             true,
	})

	ctx := context.Background()
	o.probeOnce(ctx, "backend")
	assert.Equal(t, "starting", stateOf(t, o, "backend"), "one failure stays in starting")
	o.probeOnce(ctx, "backend")
	assert.Equal(t, "starting", stateOf(t, o, "backend"), "two failures stay in starting")
	o.probeOnce(ctx, "backend")
	assert.Equal(t, "unhealthy", stateOf(t, o, "backend"), "threshold reached")
	assert.False(t, o.Ready())
}

func TestStateMachine_UnhealthyRecoversThroughProbation(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	probe := ProbeFunc(func(ctx context.Context) error {
		if fail.Load() {
			return errors.New("probe failed")
		}
		return nil
	})

	o := NewOrchestrator(nil)
	register(t, o, Check{
		Name:             "backend",
		Prober:           probe,
		Interval:         time.Second,
		FailureThreshold: 2,
		Hard:             true,
	})

	ctx := context.Background()
	o.probeOnce(ctx, "backend")
	o.probeOnce(ctx, "backend")
	require.Equal(t, "unhealthy", stateOf(t, o, "backend"))

	// A success from Unhealthy must pass through Starting, never jump
	// straight to Healthy.
	fail.Store(false)
	o.probeOnce(ctx, "backend")
	assert.Equal(t, "starting", stateOf(t, o, "backend"))
	assert.False(t, o.Ready())

	o.probeOnce(ctx, "backend")
	assert.Equal(t, "healthy", stateOf(t, o, "backend"))
	assert.True(t, o.Ready())
}

func TestStateMachine_HealthyBlipEntersProbation(t *testing.T) {
	var fail atomic.Bool
	probe := ProbeFunc(func(ctx context.Context) error {
		if fail.Load() {
			return errors.New("probe failed")
		}
		return nil
	})

	o := NewOrchestrator(nil)
	register(t, o, Check{
		Name:             "backend",
		Prober:           probe,
		Interval:         time.Second,
		FailureThreshold: 3,
		Hard:             true,
	})

	ctx := context.Background()
	o.probeOnce(ctx, "backend")
	require.Equal(t, "healthy", stateOf(t, o, "backend"))

	fail.Store(true)
	o.probeOnce(ctx, "backend")
	assert.Equal(t, "starting", stateOf(t, o, "backend"), "single blip goes to probation, not unhealthy")

	fail.Store(false)
	o.probeOnce(ctx, "backend")
	assert.Equal(t, "healthy", stateOf(t, o, "backend"))
}

func TestStateMachine_StartGraceIgnoresEarlyFailures(t *testing.T) {
	o := NewOrchestrator(nil)
	register(t, o, Check{
		Name:             "backend",
		Prober:           failingProbe(),
		Interval:         time.Second,
		FailureThreshold: 1,
		StartGrace:       time.Hour,
		Hard:             true,
	})

	ctx := context.Background()
	o.probeOnce(ctx, "backend")
	o.probeOnce(ctx, "backend")
	assert.Equal(t, "starting", stateOf(t, o, "backend"), "failures within grace do not count")
}

func TestWaitReady_BlocksUntilHardDependencyHealthy(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	probe := ProbeFunc(func(ctx context.Context) error {
		if fail.Load() {
			return errors.New("not up yet")
		}
		return nil
	})

	o := NewOrchestrator(nil)
	require.NoError(t, o.Register(Check{
		Name:             "backend",
		Prober:           probe,
		Interval:         5 * time.Millisecond,
		Timeout:          time.Second,
		FailureThreshold: 100,
		Hard:             true,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)
	defer o.Stop()

	released := make(chan error, 1)
	go func() {
		waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer waitCancel()
		released <- o.WaitReady(waitCtx)
	}()

	// The waiter must stay blocked while the hard dependency is failing.
	select {
	case err := <-released:
		t.Fatalf("WaitReady returned %v before dependency was healthy", err)
	case <-time.After(50 * time.Millisecond):
	}

	fail.Store(false)

	select {
	case err := <-released:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitReady did not return after dependency became healthy")
	}
	assert.True(t, o.Ready())
}

func TestWaitReady_StaysBlockedOnUnhealthyDependency(t *testing.T) {
	o := NewOrchestrator(nil)
	require.NoError(t, o.Register(Check{
		Name:             "backend",
		Prober:           failingProbe(),
		Interval:         5 * time.Millisecond,
		Timeout:          time.Second,
		FailureThreshold: 3,
		Hard:             true,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.Start(ctx)
	defer o.Stop()

	// Four failing intervals against a threshold of three: the dependency
	// must reach unhealthy and the waiter must remain blocked throughout.
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer waitCancel()
	err := o.WaitReady(waitCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "unhealthy", stateOf(t, o, "backend"))
}

func TestWaitReady_SoftDependencyNeverBlocks(t *testing.T) {
	o := NewOrchestrator(nil)
	register(t, o, Check{
		Name:             "log-sink",
		Prober:           failingProbe(),
		Interval:         time.Second,
		FailureThreshold: 1,
		Hard:             false,
	})

	ctx := context.Background()
	o.probeOnce(ctx, "log-sink")
	require.Equal(t, "unhealthy", stateOf(t, o, "log-sink"))

	assert.True(t, o.Ready())
	require.NoError(t, o.WaitReady(context.Background()))
}
