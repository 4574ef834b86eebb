package domain

import (
	"strings"
	"unicode"
)

// ColumnKey identifies one of the fixed board columns.
type ColumnKey string

const (
	ColumnTodo       ColumnKey = "todo"
	ColumnInProgress ColumnKey = "inProgress"
	ColumnDone       ColumnKey = "done"
	ColumnExpired    ColumnKey = "expired"
)

// Columns lists every column key in display order.
var Columns = [...]ColumnKey{ColumnTodo, ColumnInProgress, ColumnDone, ColumnExpired}

// Valid reports whether k is one of the four known columns.
func (k ColumnKey) Valid() bool {
	switch k {
	case ColumnTodo, ColumnInProgress, ColumnDone, ColumnExpired:
		return true
	}
	return false
}

// Status is the status sent to the backend for tasks dropped into k. The
// backend accepts the column key form and normalises it itself.
func (k ColumnKey) Status() Status {
	return Status(k)
}

// ToColumnKey converts a snake_case status into its column key. Unknown
// statuses land in the todo column.
func ToColumnKey(status string) ColumnKey {
	var b strings.Builder
	b.Grow(len(status))
	upper := false
	for _, r := range status {
		if r == '_' {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	key := ColumnKey(b.String())
	if !key.Valid() {
		return ColumnTodo
	}
	return key
}

// Board partitions tasks into columns. A Board built by NewBoard always holds
// every column key.
type Board map[ColumnKey][]Task

// NewBoard returns a board with every column present and empty.
func NewBoard() Board {
	b := make(Board, len(Columns))
	for _, k := range Columns {
		b[k] = []Task{}
	}
	return b
}

// Clone deep-copies the column slices.
func (b Board) Clone() Board {
	out := NewBoard()
	for k, col := range b {
		cp := make([]Task, len(col))
		copy(cp, col)
		out[k] = cp
	}
	return out
}

// Len returns the number of tasks across all columns.
func (b Board) Len() int {
	n := 0
	for _, col := range b {
		n += len(col)
	}
	return n
}
