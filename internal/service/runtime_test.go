package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sustainabot/sustainabot/internal/domain/analysis"
)

func TestUpdateLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	retention := time.Hour

	m := NewModel()
	m = Update(m, AnalysisRequested{ID: "a1", Repo: "acme/green-api", PRNumber: 42}, now, retention)

	p, ok := m.Pending["a1"]
	if !ok {
		t.Fatal("entry not created")
	}
	if p.Status != analysis.StatusPending || p.Repo != "acme/green-api" || p.PRNumber != 42 {
		t.Fatalf("entry = %+v", p)
	}

	m = Update(m, AnalysisStarted{ID: "a1"}, now, retention)
	if m.Pending["a1"].Status != analysis.StatusInProgress {
		t.Fatalf("status = %q after start", m.Pending["a1"].Status)
	}

	m = Update(m, AnalysisCompleted{ID: "a1"}, now, retention)
	if m.Pending["a1"].Status != analysis.StatusCompleted {
		t.Fatalf("status = %q after completion", m.Pending["a1"].Status)
	}

	// Terminal entries do not transition again.
	m = Update(m, AnalysisFailed{ID: "a1", Reason: "late failure"}, now, retention)
	if m.Pending["a1"].Status != analysis.StatusCompleted {
		t.Fatalf("terminal entry transitioned to %q", m.Pending["a1"].Status)
	}
}

func TestUpdateFailureKeepsReason(t *testing.T) {
	now := time.Now()
	m := NewModel()
	m = Update(m, AnalysisRequested{ID: "a2", Repo: "acme/api", PRNumber: 1}, now, time.Hour)
	m = Update(m, AnalysisStarted{ID: "a2"}, now, time.Hour)
	m = Update(m, AnalysisFailed{ID: "a2", Reason: "analysis service unavailable"}, now, time.Hour)

	p := m.Pending["a2"]
	if p.Status != analysis.StatusFailed {
		t.Fatalf("status = %q", p.Status)
	}
	if p.Reason != "analysis service unavailable" {
		t.Fatalf("reason = %q", p.Reason)
	}
}

func TestUpdateUnknownIDIsNoop(t *testing.T) {
	m := NewModel()
	m = Update(m, AnalysisStarted{ID: "missing"}, time.Now(), time.Hour)
	m = Update(m, AnalysisCompleted{ID: "missing"}, time.Now(), time.Hour)
	if len(m.Pending) != 0 {
		t.Fatalf("pending = %d, want 0", len(m.Pending))
	}
}

func TestUpdateTickGarbageCollection(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	retention := time.Hour

	m := NewModel()
	m = Update(m, AnalysisRequested{ID: "old", Repo: "acme/a", PRNumber: 1}, created, retention)

	// 59 minutes in: still retained.
	m = Update(m, Tick{Now: created.Add(59 * time.Minute)}, created, retention)
	if _, ok := m.Pending["old"]; !ok {
		t.Fatal("entry dropped before retention elapsed")
	}

	// 61 minutes in: dropped, terminal or not.
	m = Update(m, Tick{Now: created.Add(61 * time.Minute)}, created, retention)
	if _, ok := m.Pending["old"]; ok {
		t.Fatal("entry survived past retention")
	}
}

func TestUpdateShutdown(t *testing.T) {
	m := NewModel()
	if !m.Healthy {
		t.Fatal("fresh model unhealthy")
	}
	m = Update(m, ShutdownRequested{}, time.Now(), time.Hour)
	if m.Healthy {
		t.Fatal("model healthy after shutdown")
	}
}

func TestRuntimeLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRuntime(10*time.Millisecond, time.Hour)
	r.Start(ctx)

	r.Dispatch(AnalysisRequested{ID: "r1", Repo: "acme/green-api", PRNumber: 3})
	r.Dispatch(AnalysisStarted{ID: "r1"})
	r.Dispatch(AnalysisCompleted{ID: "r1"})

	// Snapshot serializes behind the dispatched messages.
	snap := r.Snapshot()
	if !snap.Healthy {
		t.Fatal("runtime unhealthy")
	}
	p, ok := snap.Pending["r1"]
	if !ok {
		t.Fatal("entry missing from snapshot")
	}
	if p.Status != analysis.StatusCompleted {
		t.Fatalf("status = %q", p.Status)
	}

	// Mutating the snapshot must not leak into the loop's model.
	delete(snap.Pending, "r1")
	if _, ok := r.Snapshot().Pending["r1"]; !ok {
		t.Fatal("snapshot shares state with the loop")
	}

	r.Dispatch(ShutdownRequested{})
	deadline := time.Now().Add(time.Second)
	for r.Healthy() {
		if time.Now().After(deadline) {
			t.Fatal("runtime still healthy after shutdown request")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRuntimeSnapshotObservesPriorDispatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRuntime(time.Minute, time.Hour)
	r.Start(ctx)

	// A read issued right after a burst of messages must reflect every one
	// of them: the query rides the same channel, so it cannot overtake them.
	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("s%d", i)
		r.Dispatch(AnalysisRequested{ID: id, Repo: "acme/green-api", PRNumber: i})
		r.Dispatch(AnalysisStarted{ID: id})
		r.Dispatch(AnalysisCompleted{ID: id})

		p, ok := r.Snapshot().Pending[id]
		if !ok {
			t.Fatalf("iteration %d: entry missing from snapshot", i)
		}
		if p.Status != analysis.StatusCompleted {
			t.Fatalf("iteration %d: status = %q, want %q", i, p.Status, analysis.StatusCompleted)
		}
	}
}

func TestRuntimeTickExpiresEntries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Retention of zero drops every entry on the first tick.
	r := NewRuntime(5*time.Millisecond, time.Nanosecond)
	r.Start(ctx)

	r.Dispatch(AnalysisRequested{ID: "gone", Repo: "acme/a", PRNumber: 1})

	deadline := time.Now().Add(time.Second)
	for {
		if len(r.Snapshot().Pending) == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("entry never garbage collected")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
