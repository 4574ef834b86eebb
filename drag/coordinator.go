// Package drag turns drag gestures into optimistic board moves and hands
// them to reconciliation.
package drag

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/Luka0103/studyconnect/board"
	"github.com/Luka0103/studyconnect/domain"
	"github.com/Luka0103/studyconnect/reconcile"
)

// Position addresses a slot in a column.
type Position struct {
	Column domain.ColumnKey `json:"column"`
	Index  int              `json:"index"`
}

// DropEvent ends a drag. A nil Destination means the task was dropped outside
// any column.
type DropEvent struct {
	TaskID      domain.ID `json:"taskId"`
	Source      Position  `json:"source"`
	Destination *Position `json:"destination"`
}

// State is the per-task drag lifecycle.
type State int

const (
	StateResting State = iota
	StateDragging
	StateReconciling
)

func (s State) String() string {
	switch s {
	case StateDragging:
		return "dragging"
	case StateReconciling:
		return "reconciling"
	}
	return "resting"
}

// MarshalText renders the state name in JSON bodies.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Submitter runs reconciliation asynchronously.
type Submitter interface {
	Submit(taskID domain.ID, column domain.ColumnKey, done func(reconcile.Outcome))
}

// Pending tracks one reconciliation started by Drop.
type Pending struct {
	TaskID domain.ID

	done    chan struct{}
	outcome reconcile.Outcome
}

// Done is closed once the reconciliation finished.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the reconciliation finished and returns its outcome.
func (p *Pending) Wait() reconcile.Outcome {
	<-p.done
	return p.outcome
}

// Coordinator applies drops to the store and tracks drag state per task.
type Coordinator struct {
	store  *board.Store
	moves  Submitter
	logger *log.Logger

	mu       sync.Mutex
	dragging map[domain.ID]bool
	inflight map[domain.ID]int
}

func NewCoordinator(store *board.Store, moves Submitter, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Coordinator{
		store:    store,
		moves:    moves,
		logger:   logger,
		dragging: map[domain.ID]bool{},
		inflight: map[domain.ID]int{},
	}
}

// Begin marks taskID as being dragged.
func (c *Coordinator) Begin(taskID domain.ID) {
	c.mu.Lock()
	c.dragging[taskID] = true
	c.mu.Unlock()
}

// Cancel abandons a drag without touching the board.
func (c *Coordinator) Cancel(taskID domain.ID) {
	c.mu.Lock()
	delete(c.dragging, taskID)
	c.mu.Unlock()
}

// State reports where taskID is in its drag lifecycle. Reconciling wins over
// dragging so a task dragged again before its last move settled still shows
// the pending save.
func (c *Coordinator) State(taskID domain.ID) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.inflight[taskID] > 0:
		return StateReconciling
	case c.dragging[taskID]:
		return StateDragging
	}
	return StateResting
}

// Drop ends a drag. It returns nil when nothing changed: the task was dropped
// outside any column, on its own slot, or the source no longer matches the
// board. Otherwise the move is already visible in the store and the returned
// Pending resolves once the backend answered.
func (c *Coordinator) Drop(ev DropEvent) *Pending {
	c.Cancel(ev.TaskID)

	fields := log.Fields{"task_id": ev.TaskID, "from": ev.Source.Column, "from_index": ev.Source.Index}
	dst := ev.Destination
	if dst == nil {
		c.logger.WithFields(fields).Debug("drag.drop: outside any column")
		return nil
	}
	if *dst == ev.Source {
		c.logger.WithFields(fields).Debug("drag.drop: same position")
		return nil
	}
	if !dst.Column.Valid() || !ev.Source.Column.Valid() {
		c.logger.WithFields(fields).WithField("to", dst.Column).Warn("drag.drop: unknown column")
		return nil
	}

	var applied bool
	if dst.Column == ev.Source.Column {
		applied = c.store.MoveWithinColumn(dst.Column, ev.Source.Index, dst.Index, ev.TaskID)
	} else {
		applied = c.store.MoveAcrossColumns(ev.Source.Column, dst.Column, ev.Source.Index, dst.Index, ev.TaskID)
	}
	fields["to"] = dst.Column
	fields["to_index"] = dst.Index
	if !applied {
		c.logger.WithFields(fields).Warn("drag.drop: stale source, ignored")
		return nil
	}

	p := &Pending{TaskID: ev.TaskID, done: make(chan struct{})}
	c.mu.Lock()
	c.inflight[ev.TaskID]++
	c.mu.Unlock()
	c.logger.WithFields(fields).Debug("drag.drop: applied, reconciling")

	c.moves.Submit(ev.TaskID, dst.Column, func(o reconcile.Outcome) {
		c.mu.Lock()
		if c.inflight[ev.TaskID]--; c.inflight[ev.TaskID] <= 0 {
			delete(c.inflight, ev.TaskID)
		}
		c.mu.Unlock()
		p.outcome = o
		close(p.done)
	})
	return p
}
