package domain

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
)

// ID identifies a task or group. The backend emits integer ids, the board
// treats them as opaque strings.
type ID string

// UnmarshalJSON accepts both JSON strings and JSON numbers.
func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := sonic.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	if string(data) == "null" {
		*id = ""
		return nil
	}
	raw := string(data)
	if _, err := strconv.ParseFloat(raw, 64); err != nil {
		return fmt.Errorf("id: %q is neither a string nor a number", raw)
	}
	*id = ID(raw)
	return nil
}

// Status is the backend's task-state vocabulary.
type Status = string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusExpired    Status = "expired"
)

// Kind classifies a task.
type Kind string

const (
	KindHomework Kind = "homework"
	KindExam     Kind = "exam"
	KindProject  Kind = "project"
)

func (k Kind) Valid() bool {
	switch k {
	case KindHomework, KindExam, KindProject:
		return true
	}
	return false
}

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// DateLayout is the wire format of deadlines.
const DateLayout = "2006-01-02"

// Date is a calendar day in DateLayout.
type Date string

// Time parses the date in UTC.
func (d Date) Time() (time.Time, error) {
	return time.Parse(DateLayout, string(d))
}

// GroupRef is the group summary embedded in a task.
type GroupRef struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// Task is a single board item.
type Task struct {
	ID       ID        `json:"id"`
	Title    string    `json:"title"`
	Deadline Date      `json:"deadline"`
	Kind     Kind      `json:"kind"`
	Priority Priority  `json:"priority"`
	Status   Status    `json:"status"`
	Progress int       `json:"progress"`
	Group    *GroupRef `json:"group,omitempty"`
	Assignee *string   `json:"assignee,omitempty"`
	Notes    *string   `json:"notes,omitempty"`
}

// Draft carries the fields of a task that does not exist yet.
type Draft struct {
	Title    string   `json:"title"`
	Deadline Date     `json:"deadline"`
	Kind     Kind     `json:"kind"`
	Priority Priority `json:"priority"`
	Status   Status   `json:"status,omitempty"`
	GroupID  *ID      `json:"group_id,omitempty"`
	Assignee *string  `json:"assignee,omitempty"`
	Notes    *string  `json:"notes,omitempty"`
	Progress *int     `json:"progress,omitempty"`
}

// Patch carries the changed fields of an existing task. Nil fields are left
// untouched by the backend.
type Patch struct {
	Title    *string   `json:"title,omitempty"`
	Deadline *Date     `json:"deadline,omitempty"`
	Kind     *Kind     `json:"kind,omitempty"`
	Priority *Priority `json:"priority,omitempty"`
	Status   *Status   `json:"status,omitempty"`
	GroupID  *ID       `json:"group_id,omitempty"`
	Assignee *string   `json:"assignee,omitempty"`
	Notes    *string   `json:"notes,omitempty"`
	Progress *int      `json:"progress,omitempty"`
}

// MarkExpired returns a copy of tasks where every task whose deadline lies
// before today and that is not done carries StatusExpired. Tasks with an
// unparsable deadline are left alone.
func MarkExpired(tasks []Task, today time.Time) []Task {
	y, m, d := today.Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	out := make([]Task, len(tasks))
	copy(out, tasks)
	for i := range out {
		if ToColumnKey(out[i].Status) == ColumnDone {
			continue
		}
		due, err := out[i].Deadline.Time()
		if err != nil {
			continue
		}
		if due.Before(cutoff) {
			out[i].Status = StatusExpired
		}
	}
	return out
}

func (id ID) String() string { return string(id) }

// Int returns the numeric form of the id, used when the backend expects an
// integer in a request body.
func (id ID) Int() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return n, err == nil
}
