package health

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the probed health state of a single dependency.
type State int

const (
	// StateUnknown means the dependency is declared but not yet probed.
	StateUnknown State = iota
	// StateStarting means probing is underway but the dependency has not
	// proven healthy yet, or a previously healthy dependency is in probation
	// after a failed probe.
	StateStarting
	// StateHealthy means the most recent probes succeeded.
	StateHealthy
	// StateUnhealthy means probing failed at least the configured number of
	// consecutive times.
	StateUnhealthy
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateHealthy:
		return "healthy"
	case StateUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Check declares one monitored dependency.
type Check struct {
	// Name is the logical service name of the dependency.
	Name string

	// Prober performs the functional probe.
	Prober Prober

	// Interval is the time between probe attempts.
	Interval time.Duration

	// Timeout bounds a single probe attempt.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failures before the
	// dependency transitions from Starting to Unhealthy.
	FailureThreshold int

	// StartGrace is the window after monitoring starts during which probe
	// failures are not counted, so a slow-booting dependency is not declared
	// unhealthy before it had a fair chance to come up.
	StartGrace time.Duration

	// Hard marks this dependency as blocking: the dependent's readiness is
	// the logical AND of all hard dependencies being healthy. Soft
	// dependencies are monitored but never gate readiness.
	Hard bool
}

// Status is a point-in-time snapshot of one dependency's health.
type Status struct {
	Name                 string    `json:"name"`
	State                string    `json:"state"`
	Hard                 bool      `json:"hard"`
	ConsecutiveFailures  int       `json:"consecutive_failures"`
	ConsecutiveSuccesses int       `json:"consecutive_successes"`
	LastTransition       time.Time `json:"last_transition"`
}

type dependency struct {
	check          Check
	state          State
	failures       int
	successes      int
	lastTransition time.Time
	startedAt      time.Time
	everSucceeded  bool
}

// Orchestrator tracks the probed health state of a set of declared
// dependencies and gates dependent readiness on the hard ones.
//
// State transitions are applied atomically with respect to concurrent
// WaitReady callers: a waiter blocked in WaitReady is released by the
// transition that satisfies the readiness predicate, with no lost wakeups.
type Orchestrator struct {
	logger *slog.Logger

	mu     sync.Mutex
	deps   map[string]*dependency
	order  []string
	notify chan struct{}

	cancel  context.CancelFunc
	stopped sync.WaitGroup
}

// NewOrchestrator creates an orchestrator with no dependencies declared.
func NewOrchestrator(logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		logger: logger,
		deps:   make(map[string]*dependency),
		notify: make(chan struct{}),
	}
}

// Register declares a dependency. All dependencies must be registered before
// Start. Registering the same name twice is a configuration error.
func (o *Orchestrator) Register(check Check) error {
	if check.Name == "" {
		return fmt.Errorf("health: dependency name is required")
	}
	if check.Prober == nil {
		return fmt.Errorf("health: dependency %s has no prober", check.Name)
	}
	if check.Interval <= 0 {
		return fmt.Errorf("health: dependency %s has no probe interval", check.Name)
	}
	if check.FailureThreshold <= 0 {
		check.FailureThreshold = 3
	}
	if check.Timeout <= 0 {
		check.Timeout = check.Interval
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.deps[check.Name]; exists {
		return fmt.Errorf("health: dependency %s registered twice", check.Name)
	}
	o.deps[check.Name] = &dependency{
		check:          check,
		state:          StateUnknown,
		lastTransition: time.Now(),
	}
	o.order = append(o.order, check.Name)
	return nil
}

// Start begins the probe loop for every registered dependency. Each
// dependency is probed on its own ticking goroutine, independent of request
// traffic. Scheduling the first probe moves the dependency from Unknown to
// Starting.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.mu.Lock()
	names := append([]string(nil), o.order...)
	now := time.Now()
	for _, name := range names {
		dep := o.deps[name]
		dep.startedAt = now
		o.transitionLocked(dep, StateStarting)
	}
	o.mu.Unlock()

	for _, name := range names {
		o.stopped.Add(1)
		go o.probeLoop(ctx, name)
	}
}

// Stop cancels all probe loops and waits for them to exit.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.stopped.Wait()
}

// Ready reports whether every hard dependency is currently healthy.
func (o *Orchestrator) Ready() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.readyLocked()
}

// WaitReady blocks until every hard dependency is healthy, or until ctx is
// done. Soft dependencies never block. Waiting while a hard dependency is
// unhealthy is not an error, it is designed startup ordering.
func (o *Orchestrator) WaitReady(ctx context.Context) error {
	o.mu.Lock()
	for !o.readyLocked() {
		ch := o.notify
		o.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
		o.mu.Lock()
	}
	o.mu.Unlock()
	return nil
}

// Snapshot returns the current status of every dependency in registration
// order.
func (o *Orchestrator) Snapshot() []Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Status, 0, len(o.order))
	for _, name := range o.order {
		dep := o.deps[name]
		out = append(out, Status{
			Name:                 name,
			State:                dep.state.String(),
			Hard:                 dep.check.Hard,
			ConsecutiveFailures:  dep.failures,
			ConsecutiveSuccesses: dep.successes,
			LastTransition:       dep.lastTransition,
		})
	}
	return out
}

func (o *Orchestrator) probeLoop(ctx context.Context, name string) {
	defer o.stopped.Done()

	o.mu.Lock()
	dep := o.deps[name]
	interval := dep.check.Interval
	o.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First probe runs immediately rather than one interval in.
	o.probeOnce(ctx, name)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.probeOnce(ctx, name)
		}
	}
}

func (o *Orchestrator) probeOnce(ctx context.Context, name string) {
	o.mu.Lock()
	dep := o.deps[name]
	prober := dep.check.Prober
	timeout := dep.check.Timeout
	o.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	err := prober.Probe(probeCtx)
	cancel()

	if ctx.Err() != nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.recordFailureLocked(dep, err)
	} else {
		o.recordSuccessLocked(dep)
	}
}

func (o *Orchestrator) recordSuccessLocked(dep *dependency) {
	dep.everSucceeded = true
	dep.successes++
	dep.failures = 0

	switch dep.state {
	case StateStarting:
		o.transitionLocked(dep, StateHealthy)
	case StateUnhealthy:
		// Re-enter probation; Unhealthy never flips directly to Healthy.
		dep.successes = 1
		o.transitionLocked(dep, StateStarting)
	}
}

func (o *Orchestrator) recordFailureLocked(dep *dependency, err error) {
	dep.successes = 0

	// Failures inside the start grace window do not count against a
	// dependency that has not come up yet.
	if !dep.everSucceeded && time.Since(dep.startedAt) < dep.check.StartGrace {
		o.logger.Debug("probe failed within start grace",
			slog.String("dependency", dep.check.Name),
			slog.String("error", err.Error()),
		)
		return
	}

	switch dep.state {
	case StateHealthy:
		// A single failure from Healthy re-enters probation rather than
		// flipping straight to Unhealthy, so a transient blip does not flap
		// dependent readiness.
		dep.failures = 1
		o.transitionLocked(dep, StateStarting)
	case StateStarting:
		dep.failures++
		if dep.failures >= dep.check.FailureThreshold {
			o.transitionLocked(dep, StateUnhealthy)
		}
	case StateUnhealthy:
		dep.failures++
	}

	o.logger.Warn("dependency probe failed",
		slog.String("dependency", dep.check.Name),
		slog.String("state", dep.state.String()),
		slog.Int("consecutive_failures", dep.failures),
		slog.String("error", err.Error()),
	)
}

func (o *Orchestrator) transitionLocked(dep *dependency, next State) {
	if dep.state == next {
		return
	}
	prev := dep.state
	dep.state = next
	dep.lastTransition = time.Now()

	o.logger.Info("dependency state transition",
		slog.String("dependency", dep.check.Name),
		slog.String("from", prev.String()),
		slog.String("to", next.String()),
	)

	// Wake every WaitReady caller; each re-checks the readiness predicate
	// under the lock, so there are no lost wakeups and no spurious returns.
	close(o.notify)
	o.notify = make(chan struct{})
}

func (o *Orchestrator) readyLocked() bool {
	for _, dep := range o.deps {
		if dep.check.Hard && dep.state != StateHealthy {
			return false
		}
	}
	return true
}
