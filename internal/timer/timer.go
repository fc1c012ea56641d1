// Package timer tracks the time budget of an inspection across reloads.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/ukydev/truck-inspection/internal/draft"
)

// DefaultBudget is the time allotted to one inspection.
const DefaultBudget = 600 * time.Second

// TickInterval is the cadence of Run.
const TickInterval = time.Second

// Phase is the state of the timer state machine.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseRunning  Phase = "running"
	PhaseOvertime Phase = "overtime"
)

// Snapshot is the persisted form of a started timer: seconds left at the
// moment it was started and that moment in Unix milliseconds.
type Snapshot struct {
	TimeLeft  int   `json:"timeLeft"`
	StartTime int64 `json:"startTime"`
}

// State is the timer as observed at one instant.
type State struct {
	Phase            Phase `json:"phase"`
	RemainingSeconds int   `json:"remaining_seconds"`
	OvertimeSeconds  int   `json:"overtime_seconds"`
	Expired          bool  `json:"expired"`
}

// SnapshotStore persists the snapshot. draft.Store satisfies it.
type SnapshotStore interface {
	Load(ctx context.Context, key string, v any) (bool, error)
	Save(ctx context.Context, key string, v any) error
	Remove(ctx context.Context, key string) error
}

var _ SnapshotStore = (*draft.Store)(nil)

// Timer is a countdown that turns into an upward overtime counter once the
// budget is spent.
type Timer struct {
	store  SnapshotStore
	budget time.Duration
	now    func() time.Time
	mu     sync.Mutex
}

// Option configures a Timer.
type Option func(*Timer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Timer) { t.now = now }
}

// New creates a timer persisted in store. A non-positive budget selects
// DefaultBudget.
func New(store SnapshotStore, budget time.Duration, opts ...Option) *Timer {
	if budget <= 0 {
		budget = DefaultBudget
	}
	t := &Timer{store: store, budget: budget, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Budget returns the configured time allowance.
func (t *Timer) Budget() time.Duration { return t.budget }

// Start persists the current remaining time together with the start
// instant. Starting an already started timer keeps its original snapshot.
func (t *Timer) Start(ctx context.Context) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var snap Snapshot
	found, err := t.store.Load(ctx, draft.TimerKey, &snap)
	if err != nil {
		return t.idle(), err
	}
	if found {
		return t.stateAt(snap, t.now()), nil
	}
	snap = Snapshot{TimeLeft: int(t.budget / time.Second), StartTime: t.now().UnixMilli()}
	if err := t.store.Save(ctx, draft.TimerKey, snap); err != nil {
		return t.idle(), err
	}
	return t.stateAt(snap, t.now()), nil
}

// Reset returns the timer to idle with the full budget.
func (t *Timer) Reset(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.Remove(ctx, draft.TimerKey)
}

// State reconstructs the timer from its snapshot and the wall clock.
func (t *Timer) State(ctx context.Context) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var snap Snapshot
	found, err := t.store.Load(ctx, draft.TimerKey, &snap)
	if err != nil || !found {
		return t.idle(), err
	}
	return t.stateAt(snap, t.now()), nil
}

// Run ticks every TickInterval until ctx is done, calling onTick with each
// observed state. onExpire is called once, on the tick that first observes
// the running to overtime transition. Either callback may be nil.
func (t *Timer) Run(ctx context.Context, onTick func(State), onExpire func()) error {
	prev, err := t.State(ctx)
	if err != nil {
		return err
	}
	alerted := false

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		cur, err := t.State(ctx)
		if err != nil {
			return err
		}
		if onTick != nil {
			onTick(cur)
		}
		if !alerted && prev.Phase == PhaseRunning && cur.Phase == PhaseOvertime {
			alerted = true
			if onExpire != nil {
				onExpire()
			}
		}
		prev = cur
	}
}

func (t *Timer) idle() State {
	return State{Phase: PhaseIdle, RemainingSeconds: int(t.budget / time.Second)}
}

func (t *Timer) stateAt(snap Snapshot, now time.Time) State {
	elapsed := int(now.Sub(time.UnixMilli(snap.StartTime)) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := snap.TimeLeft - elapsed
	if remaining > 0 {
		return State{Phase: PhaseRunning, RemainingSeconds: remaining}
	}
	return State{
		Phase:            PhaseOvertime,
		RemainingSeconds: 0,
		OvertimeSeconds:  -remaining,
		Expired:          true,
	}
}
