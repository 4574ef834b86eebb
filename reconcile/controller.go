// Package reconcile bridges optimistic board state and the remote task
// collaborator.
package reconcile

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Luka0103/studyconnect/board"
	"github.com/Luka0103/studyconnect/domain"
)

// Options tune a Controller.
type Options struct {
	// ExpireOverdue moves tasks past their deadline into the expired column
	// whenever server data is applied.
	ExpireOverdue bool
	// Now defaults to time.Now.
	Now func() time.Time
	// Timeout bounds each remote call once it is detached from the caller.
	// Zero means 30s.
	Timeout time.Duration
}

// Controller issues remote operations and applies their outcome to the store.
// Create and update are applied after the round trip because the backend may
// rewrite fields; moves are applied by the caller before the round trip.
type Controller struct {
	store    *board.Store
	tasks    TaskCollaborator
	groups   GroupCollaborator
	identity Identity
	logger   *log.Logger
	opts     Options

	mu       sync.RWMutex
	memberOf []domain.Group
	adminOf  []domain.Group
}

// NewController wires a controller. groups may be nil when group features
// are not used.
func NewController(store *board.Store, tasks TaskCollaborator, groups GroupCollaborator, identity Identity, logger *log.Logger, opts Options) *Controller {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Controller{
		store:    store,
		tasks:    tasks,
		groups:   groups,
		identity: identity,
		logger:   logger,
		opts:     opts,
		memberOf: []domain.Group{},
		adminOf:  []domain.Group{},
	}
}

// Create validates draft, submits it and inserts the server's copy. Nothing
// is shown on the board before the backend answers.
func (c *Controller) Create(ctx context.Context, draft domain.Draft) (domain.Task, error) {
	if err := draft.Validate(); err != nil {
		return domain.Task{}, err
	}
	ctx, cancel := c.detach(ctx)
	defer cancel()
	task, err := c.tasks.CreateTask(ctx, draft)
	if err != nil {
		c.logger.WithError(err).WithField("title", draft.Title).Warn("reconcile.create: remote call failed")
		return domain.Task{}, err
	}
	task = c.normalize([]domain.Task{task})[0]
	c.store.Insert(task)
	c.logger.WithFields(log.Fields{"task_id": task.ID, "status": task.Status}).Debug("reconcile.create: applied")
	return task, nil
}

// Update validates patch, submits it and relocates the task according to the
// server's canonical copy. On failure the displayed task is left as it was.
func (c *Controller) Update(ctx context.Context, id domain.ID, patch domain.Patch) (domain.Task, error) {
	if err := patch.Validate(); err != nil {
		return domain.Task{}, err
	}
	ctx, cancel := c.detach(ctx)
	defer cancel()
	task, err := c.tasks.UpdateTask(ctx, id, patch)
	if err != nil {
		c.logger.WithError(err).WithField("task_id", id).Warn("reconcile.update: remote call failed")
		return domain.Task{}, err
	}
	task = c.normalize([]domain.Task{task})[0]
	// UpsertInto keeps the position when the column is unchanged and removes
	// the copy from any other column otherwise.
	c.store.UpsertInto(domain.ToColumnKey(task.Status), task)
	return task, nil
}

// ReconcileMove persists a move that is already visible on the board. A
// rejected move is repaired by replacing the whole board with server data,
// which also discards any other optimistic move still in flight.
func (c *Controller) ReconcileMove(ctx context.Context, id domain.ID, column domain.ColumnKey) Outcome {
	fields := log.Fields{"task_id": id, "column": column}
	err := c.tasks.SetStatus(ctx, id, column.Status())
	if err == nil {
		c.logger.WithFields(fields).Debug("reconcile.move: confirmed")
		return OutcomeConfirmed
	}
	c.logger.WithFields(fields).WithError(err).Warn("reconcile.move: rejected, refetching board")
	if _, rerr := c.Refresh(ctx); rerr != nil {
		c.logger.WithFields(fields).WithError(rerr).Error("reconcile.move: refetch failed, board is stale")
		return OutcomeStale
	}
	return OutcomeRefetched
}

// Refresh replaces the board with the backend's task list.
func (c *Controller) Refresh(ctx context.Context) (domain.Board, error) {
	uid, err := c.identity.UserID()
	if err != nil {
		return nil, err
	}
	ctx, cancel := c.detach(ctx)
	defer cancel()
	tasks, err := c.tasks.ListTasks(ctx, uid)
	if err != nil {
		return nil, err
	}
	return c.store.ReplaceAll(c.normalize(tasks)), nil
}

// RefreshGroups reloads the member and admin group lists. The member list is
// stored as soon as it arrives; a failing admin list is logged and the
// previous one kept, since not every backend serves it.
func (c *Controller) RefreshGroups(ctx context.Context) error {
	if c.groups == nil {
		return nil
	}
	uid, err := c.identity.UserID()
	if err != nil {
		return err
	}
	ctx, cancel := c.detach(ctx)
	defer cancel()

	member, err := c.groups.ListGroups(ctx, uid)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.memberOf = member
	c.mu.Unlock()

	admin, err := c.groups.ListAdminGroups(ctx, uid)
	if err != nil {
		c.logger.WithError(err).WithField("user_id", uid).Warn("reconcile.groups: admin list unavailable, keeping previous")
		return nil
	}
	c.mu.Lock()
	c.adminOf = admin
	c.mu.Unlock()
	return nil
}

// JoinGroup joins groupID. There is no optimistic effect; once the backend
// confirms, tasks and groups are refetched. A failed refetch is logged only.
func (c *Controller) JoinGroup(ctx context.Context, groupID domain.ID) error {
	if c.groups == nil {
		return errNoGroups
	}
	ctx, cancel := c.detach(ctx)
	defer cancel()
	if _, err := c.groups.JoinGroup(ctx, groupID); err != nil {
		c.logger.WithError(err).WithField("group_id", groupID).Warn("reconcile.join: remote call failed")
		return err
	}
	if _, err := c.Refresh(ctx); err != nil {
		c.logger.WithError(err).Warn("reconcile.join: task refetch failed")
	}
	if err := c.RefreshGroups(ctx); err != nil {
		c.logger.WithError(err).Warn("reconcile.join: group refetch failed")
	}
	return nil
}

// Groups returns the groups the user is a member of, as of the last refresh.
func (c *Controller) Groups() []domain.Group {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Group(nil), c.memberOf...)
}

// AdminGroups returns the groups the user administers.
func (c *Controller) AdminGroups() []domain.Group {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Group(nil), c.adminOf...)
}

// Board returns a snapshot of the store.
func (c *Controller) Board() domain.Board {
	return c.store.Snapshot()
}

// detach keeps the caller's values but not its cancellation: a closed view
// must not abort a call whose result still lands on the shared board.
func (c *Controller) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.opts.Timeout)
}

func (c *Controller) normalize(tasks []domain.Task) []domain.Task {
	if !c.opts.ExpireOverdue {
		return tasks
	}
	return domain.MarkExpired(tasks, c.opts.Now())
}
