package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Luka0103/studyconnect/domain"
)

type blockingMover struct {
	release chan struct{}
	calls   atomic.Int32
}

func (m *blockingMover) ReconcileMove(ctx context.Context, _ domain.ID, _ domain.ColumnKey) Outcome {
	m.calls.Add(1)
	if m.release != nil {
		<-m.release
	}
	if _, ok := ctx.Deadline(); !ok {
		return OutcomeStale
	}
	return OutcomeConfirmed
}

func TestDispatcherDeliversOutcome(t *testing.T) {
	m := &blockingMover{}
	d := NewDispatcher(m, DispatcherConfig{Workers: 2, Buffer: 4, Timeout: time.Second}, log.New())
	defer d.Close()

	got := make(chan Outcome, 1)
	d.Submit("1", domain.ColumnDone, func(o Outcome) { got <- o })

	select {
	case o := <-got:
		if o != OutcomeConfirmed {
			t.Fatalf("unexpected outcome %v", o)
		}
	case <-time.After(time.Second):
		t.Fatalf("outcome not delivered")
	}
}

func TestDispatcherRunsInlineWhenSaturated(t *testing.T) {
	m := &blockingMover{release: make(chan struct{})}
	d := NewDispatcher(m, DispatcherConfig{Workers: 1, Buffer: 0, Timeout: time.Second, HandoffTimeout: time.Millisecond}, log.New())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		d.Submit(domain.ID(string(rune('a'+i))), domain.ColumnTodo, func(Outcome) { wg.Done() })
	}

	deadline := time.Now().Add(time.Second)
	for m.calls.Load() < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if n := m.calls.Load(); n != 5 {
		t.Fatalf("expected all five jobs running concurrently, got %d", n)
	}
	close(m.release)
	wg.Wait()
	d.Close()
}

func TestDispatcherSubmitAfterClose(t *testing.T) {
	m := &blockingMover{}
	d := NewDispatcher(m, DispatcherConfig{Workers: 1, Timeout: time.Second}, log.New())
	d.Close()

	got := make(chan Outcome, 1)
	d.Submit("1", domain.ColumnDone, func(o Outcome) { got <- o })
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatalf("job submitted after close never ran")
	}
}

func TestCloseWaitsForQueuedJobs(t *testing.T) {
	m := &blockingMover{release: make(chan struct{})}
	d := NewDispatcher(m, DispatcherConfig{Workers: 1, Buffer: 8, Timeout: time.Second}, log.New())

	var done atomic.Int32
	for i := 0; i < 3; i++ {
		d.Submit("1", domain.ColumnDone, func(Outcome) { done.Add(1) })
	}
	close(m.release)
	d.Close()
	if n := done.Load(); n != 3 {
		t.Fatalf("expected 3 completed jobs after close, got %d", n)
	}
}
