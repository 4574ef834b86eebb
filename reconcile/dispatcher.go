package reconcile

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Luka0103/studyconnect/domain"
)

// DispatcherConfig sizes the move worker pool.
type DispatcherConfig struct {
	Workers        int
	Buffer         int
	Timeout        time.Duration
	HandoffTimeout time.Duration
}

// Mover reconciles a single move.
type Mover interface {
	ReconcileMove(ctx context.Context, id domain.ID, column domain.ColumnKey) Outcome
}

type moveJob struct {
	taskID domain.ID
	column domain.ColumnKey
	done   func(Outcome)
}

// Dispatcher runs move reconciliations off the caller's goroutine. Jobs are
// independent of any request context so a closed view never cancels them.
type Dispatcher struct {
	mover  Mover
	cfg    DispatcherConfig
	logger *log.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan moveJob
	wg     sync.WaitGroup
}

// NewDispatcher starts cfg.Workers goroutines. Zero values fall back to a
// single worker with an unbuffered queue.
func NewDispatcher(mover Mover, cfg DispatcherConfig, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	d := &Dispatcher{
		mover:  mover,
		cfg:    cfg,
		logger: logger,
		jobs:   make(chan moveJob, cfg.Buffer),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	logger.Infof("move dispatcher started, workers: %d, buffer: %d, timeout: %v, handoff: %v", cfg.Workers, cfg.Buffer, cfg.Timeout, cfg.HandoffTimeout)
	return d
}

// Submit schedules a reconciliation and never blocks for longer than the
// handoff timeout. When the pool is saturated or closed the job runs on its
// own goroutine. done, if non-nil, receives the outcome exactly once.
func (d *Dispatcher) Submit(taskID domain.ID, column domain.ColumnKey, done func(Outcome)) {
	job := moveJob{taskID: taskID, column: column, done: done}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		go d.run(job)
		return
	}
	if d.enqueue(job) {
		d.mu.RUnlock()
		return
	}
	d.wg.Add(1)
	d.mu.RUnlock()

	d.logger.WithFields(log.Fields{"task_id": taskID, "column": column}).Debug("move dispatcher saturated, running inline")
	go func() {
		defer d.wg.Done()
		d.run(job)
	}()
}

// Close stops accepting queued work and waits for every submitted job.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) enqueue(job moveJob) bool {
	select {
	case d.jobs <- job:
		return true
	default:
	}
	if d.cfg.HandoffTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(d.cfg.HandoffTimeout)
	defer timer.Stop()
	select {
	case d.jobs <- job:
		return true
	case <-timer.C:
		return false
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for j := range d.jobs {
		outcome := d.run(j)
		if outcome == OutcomeStale {
			d.logger.Errorf("move reconciliation left board stale, task: %s, column: %s, worker: %d", j.taskID, j.column, id)
		}
	}
}

func (d *Dispatcher) run(j moveJob) Outcome {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	outcome := d.mover.ReconcileMove(ctx, j.taskID, j.column)
	cancel()
	if j.done != nil {
		j.done(outcome)
	}
	return outcome
}
