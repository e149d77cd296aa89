package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sustainabot/sustainabot/internal/domain/analysis"
)

// The runtime is a single serialized event loop: every state transition on
// the model happens inside one goroutine consuming typed messages, so the
// pending-analysis map needs no locking. Side-effecting work (analysis
// calls, comment posting) runs outside the loop in the pipeline and reports
// back by injecting completion messages; the loop itself only transitions
// state.

// Message is a typed event consumed by the runtime loop.
type Message interface {
	isMessage()
}

// AnalysisRequested creates a pending entry for a newly triggered analysis.
type AnalysisRequested struct {
	ID       string
	Repo     string
	PRNumber int
}

// AnalysisStarted moves a pending entry to in-progress.
type AnalysisStarted struct {
	ID string
}

// AnalysisCompleted moves an entry to its successful terminal state.
type AnalysisCompleted struct {
	ID string
}

// AnalysisFailed moves an entry to its failed terminal state.
type AnalysisFailed struct {
	ID     string
	Reason string
}

// Tick is the periodic housekeeping message; entries older than the
// retention window are dropped regardless of state.
type Tick struct {
	Now time.Time
}

// ShutdownRequested marks the model unhealthy and stops the tick
// subscription. In-flight work is allowed to complete.
type ShutdownRequested struct{}

// snapshotRequest asks the loop for a copy of the current model. It rides
// the same message channel as state transitions, so a snapshot dispatched
// after other messages observes their effects.
type snapshotRequest struct {
	reply chan Model
}

func (AnalysisRequested) isMessage() {}
func (AnalysisStarted) isMessage()   {}
func (AnalysisCompleted) isMessage() {}
func (AnalysisFailed) isMessage()    {}
func (Tick) isMessage()              {}
func (ShutdownRequested) isMessage() {}
func (snapshotRequest) isMessage()   {}

// Model is the runtime's entire mutable state.
type Model struct {
	Healthy bool
	Pending map[string]analysis.Pending
}

// NewModel returns the initial model.
func NewModel() Model {
	return Model{
		Healthy: true,
		Pending: make(map[string]analysis.Pending),
	}
}

// Update applies one message to the model and returns the new model. It is
// a synchronous, side-effect-free transition so tests can drive the state
// machine without the loop. now supplies entry creation times; retention
// bounds how long entries survive.
func Update(m Model, msg Message, now time.Time, retention time.Duration) Model {
	switch msg := msg.(type) {
	case AnalysisRequested:
		m.Pending[msg.ID] = analysis.Pending{
			ID:        msg.ID,
			Repo:      msg.Repo,
			PRNumber:  msg.PRNumber,
			Status:    analysis.StatusPending,
			CreatedAt: now,
		}

	case AnalysisStarted:
		if p, ok := m.Pending[msg.ID]; ok && !p.Status.Terminal() {
			p.Status = analysis.StatusInProgress
			m.Pending[msg.ID] = p
		}

	case AnalysisCompleted:
		if p, ok := m.Pending[msg.ID]; ok && !p.Status.Terminal() {
			p.Status = analysis.StatusCompleted
			m.Pending[msg.ID] = p
		}

	case AnalysisFailed:
		if p, ok := m.Pending[msg.ID]; ok && !p.Status.Terminal() {
			p.Status = analysis.StatusFailed
			p.Reason = msg.Reason
			m.Pending[msg.ID] = p
		}

	case Tick:
		for id, p := range m.Pending {
			if msg.Now.Sub(p.CreatedAt) > retention {
				delete(m.Pending, id)
			}
		}

	case ShutdownRequested:
		m.Healthy = false
	}

	return m
}

// Runtime owns the model and serializes all transitions through one
// message channel. Snapshot queries travel on that same channel, so a read
// is answered only after every message dispatched before it has been
// applied.
type Runtime struct {
	msgs      chan Message
	done      chan struct{}
	tick      time.Duration
	retention time.Duration
	now       func() time.Time // for testing
}

// NewRuntime creates a runtime with the given tick interval and pending
// retention window.
func NewRuntime(tick, retention time.Duration) *Runtime {
	return &Runtime{
		msgs:      make(chan Message, 64),
		done:      make(chan struct{}),
		tick:      tick,
		retention: retention,
		now:       time.Now,
	}
}

// Start launches the loop and its tick subscription. It returns once the
// loop goroutine is running; the loop stops when ctx is cancelled or a
// ShutdownRequested message arrives and drains.
func (r *Runtime) Start(ctx context.Context) {
	go r.loop(ctx)
}

func (r *Runtime) loop(ctx context.Context) {
	defer close(r.done)

	model := NewModel()

	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			model = Update(model, Tick{Now: r.now()}, r.now(), r.retention)

		case msg := <-r.msgs:
			if req, ok := msg.(snapshotRequest); ok {
				req.reply <- snapshot(model)
				continue
			}
			model = Update(model, msg, r.now(), r.retention)
			if _, ok := msg.(ShutdownRequested); ok {
				// Subscription stops; pending reads still answer so
				// /health can report the degraded state.
				ticker.Stop()
				slog.Info("runtime shutting down, tick subscription stopped")
			}
		}
	}
}

// Dispatch injects a message into the loop. It never blocks forever: if the
// loop is gone the message is dropped, which only happens during shutdown.
func (r *Runtime) Dispatch(msg Message) {
	select {
	case r.msgs <- msg:
	case <-r.done:
	}
}

// Snapshot returns a copy of the current model. The query enters the message
// channel behind any messages dispatched before it, so the copy reflects all
// of their transitions.
func (r *Runtime) Snapshot() Model {
	reply := make(chan Model, 1)
	select {
	case r.msgs <- snapshotRequest{reply: reply}:
	case <-r.done:
		return Model{Healthy: false, Pending: map[string]analysis.Pending{}}
	}
	select {
	case m := <-reply:
		return m
	case <-r.done:
		// The loop exited between accepting the query and answering it.
		return Model{Healthy: false, Pending: map[string]analysis.Pending{}}
	}
}

// Healthy reports whether the runtime is accepting new work.
func (r *Runtime) Healthy() bool {
	return r.Snapshot().Healthy
}

func snapshot(m Model) Model {
	out := Model{Healthy: m.Healthy, Pending: make(map[string]analysis.Pending, len(m.Pending))}
	for id, p := range m.Pending {
		out.Pending[id] = p
	}
	return out
}
