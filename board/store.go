// Package board owns the in-memory partition of tasks into ordered columns.
package board

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/Luka0103/studyconnect/domain"
)

// Store is the single owner of the board. Each exported method runs as one
// critical section, so callers never observe a partially applied operation.
type Store struct {
	logger *log.Logger

	mu      sync.Mutex
	board   domain.Board
	version uint64
	changed chan struct{}
}

// NewStore returns a store holding an empty, fully populated board.
func NewStore(logger *log.Logger) *Store {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Store{
		logger:  logger,
		board:   domain.NewBoard(),
		changed: make(chan struct{}),
	}
}

// ReplaceAll partitions tasks into columns, discarding the previous board.
// Input order is kept within each column; for duplicate ids the last one wins.
func (s *Store) ReplaceAll(tasks []domain.Task) domain.Board {
	last := make(map[domain.ID]int, len(tasks))
	for i, t := range tasks {
		last[t.ID] = i
	}
	next := domain.NewBoard()
	for i, t := range tasks {
		if last[t.ID] != i {
			continue
		}
		key := domain.ToColumnKey(t.Status)
		next[key] = append(next[key], t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.board = next
	s.bumpLocked()
	return s.board.Clone()
}

// Insert appends task to the end of its mapped column.
func (s *Store) Insert(task domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(task.ID)
	key := domain.ToColumnKey(task.Status)
	s.board[key] = append(s.board[key], task)
	s.bumpLocked()
}

// MoveWithinColumn moves the entry at from to position to within column. It
// reports false and leaves the board untouched when either index is outside
// the column as it is at the time of the call, or when the entry at from is
// no longer taskID.
func (s *Store) MoveWithinColumn(column domain.ColumnKey, from, to int, taskID domain.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.board[column]
	if !ok {
		s.logger.WithField("column", column).Warn("board.move: unknown column")
		return false
	}
	if from < 0 || from >= len(col) || to < 0 || to >= len(col) {
		s.logger.WithFields(log.Fields{
			"column": column,
			"from":   from,
			"to":     to,
			"length": len(col),
		}).Warn("board.move: index out of range, ignoring")
		return false
	}
	if col[from].ID != taskID {
		s.logger.WithFields(log.Fields{
			"column":  column,
			"from":    from,
			"task_id": taskID,
			"found":   col[from].ID,
		}).Warn("board.move: source slot holds another task, ignoring")
		return false
	}
	if from == to {
		return true
	}
	task := col[from]
	col = append(col[:from], col[from+1:]...)
	s.board[column] = insertAt(col, to, task)
	s.bumpLocked()
	return true
}

// MoveAcrossColumns removes taskID from fromColumn, sets its status to the
// destination column and inserts it at index to of toColumn. When the entry at
// from is not taskID the task is looked up by id in the source column.
func (s *Store) MoveAcrossColumns(fromColumn, toColumn domain.ColumnKey, from, to int, taskID domain.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, okSrc := s.board[fromColumn]
	_, okDst := s.board[toColumn]
	if !okSrc || !okDst {
		s.logger.WithFields(log.Fields{"from_column": fromColumn, "to_column": toColumn}).Warn("board.move: unknown column")
		return false
	}
	if from < 0 || from >= len(src) || src[from].ID != taskID {
		from = indexOf(src, taskID)
	}
	if from < 0 {
		s.logger.WithFields(log.Fields{
			"column":  fromColumn,
			"task_id": taskID,
		}).Warn("board.move: task not in source column, ignoring")
		return false
	}

	task := src[from]
	s.board[fromColumn] = append(src[:from], src[from+1:]...)
	task.Status = toColumn.Status()
	dst := s.board[toColumn]
	if to < 0 {
		to = 0
	}
	if to > len(dst) {
		to = len(dst)
	}
	s.board[toColumn] = insertAt(dst, to, task)
	s.bumpLocked()
	return true
}

// RemoveEverywhere drops taskID from whichever column holds it.
func (s *Store) RemoveEverywhere(taskID domain.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.removeLocked(taskID) {
		return false
	}
	s.bumpLocked()
	return true
}

// UpsertInto replaces task in place when column already holds its id and
// appends it otherwise. Copies of the id in other columns are removed.
func (s *Store) UpsertInto(column domain.ColumnKey, task domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.board[column]
	if !ok {
		s.logger.WithField("column", column).Warn("board.upsert: unknown column, using todo")
		column = domain.ColumnTodo
		col = s.board[column]
	}
	if i := indexOf(col, task.ID); i >= 0 {
		col[i] = task
		s.bumpLocked()
		return
	}
	s.removeLocked(task.ID)
	s.board[column] = append(s.board[column], task)
	s.bumpLocked()
}

// SnapshotVersion returns a deep copy of the board together with the version
// it was taken at.
func (s *Store) SnapshotVersion() (domain.Board, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Clone(), s.version
}

// Snapshot returns a deep copy of the board.
func (s *Store) Snapshot() domain.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Clone()
}

// Column returns a copy of a single column.
func (s *Store) Column(key domain.ColumnKey) []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	col := s.board[key]
	out := make([]domain.Task, len(col))
	copy(out, col)
	return out
}

// Locate finds the column and index of taskID.
func (s *Store) Locate(taskID domain.ID) (domain.ColumnKey, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range domain.Columns {
		if i := indexOf(s.board[k], taskID); i >= 0 {
			return k, i, true
		}
	}
	return "", -1, false
}

// Version increases by one on every mutation.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Changed returns a channel that is closed by the next mutation.
func (s *Store) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

func (s *Store) removeLocked(taskID domain.ID) bool {
	removed := false
	for _, k := range domain.Columns {
		col := s.board[k]
		if i := indexOf(col, taskID); i >= 0 {
			s.board[k] = append(col[:i], col[i+1:]...)
			removed = true
		}
	}
	return removed
}

func (s *Store) bumpLocked() {
	s.version++
	close(s.changed)
	s.changed = make(chan struct{})
}

func indexOf(col []domain.Task, id domain.ID) int {
	for i := range col {
		if col[i].ID == id {
			return i
		}
	}
	return -1
}

func insertAt(col []domain.Task, i int, t domain.Task) []domain.Task {
	col = append(col, domain.Task{})
	copy(col[i+1:], col[i:])
	col[i] = t
	return col
}
