package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestTaskDecodesNumericIDs(t *testing.T) {
	payload := `{"id":42,"title":"Essay","deadline":"2024-05-01","kind":"homework","priority":"high","status":"in_progress","progress":10,"group":{"id":7,"name":"Algo"},"assignee":null}`

	var task Task
	if err := sonic.Unmarshal([]byte(payload), &task); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if task.ID != "42" {
		t.Fatalf("expected id 42, got %q", task.ID)
	}
	if task.Group == nil || task.Group.ID != "7" || task.Group.Name != "Algo" {
		t.Fatalf("unexpected group %#v", task.Group)
	}
	if task.Assignee != nil {
		t.Fatalf("expected nil assignee, got %q", *task.Assignee)
	}
}

func TestTaskDecodesStringIDs(t *testing.T) {
	var task Task
	if err := sonic.Unmarshal([]byte(`{"id":"abc","status":"todo"}`), &task); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if task.ID != "abc" {
		t.Fatalf("expected id abc, got %q", task.ID)
	}
}

func TestIDRejectsObjects(t *testing.T) {
	var task Task
	if err := sonic.Unmarshal([]byte(`{"id":{"x":1}}`), &task); err == nil {
		t.Fatalf("expected error for object id")
	}
}

func TestDraftMarshalOmitsUnsetFields(t *testing.T) {
	d := Draft{Title: "Essay", Deadline: "2024-05-01", Kind: KindHomework, Priority: PriorityHigh}
	payload, err := sonic.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, field := range []string{"group_id", "status", "progress", "notes"} {
		if strings.Contains(string(payload), field) {
			t.Fatalf("expected %s to be omitted, got %s", field, payload)
		}
	}
}

func TestMarkExpired(t *testing.T) {
	today := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
	tasks := []Task{
		{ID: "past", Deadline: "2024-05-01", Status: StatusTodo},
		{ID: "past-done", Deadline: "2024-05-01", Status: StatusDone},
		{ID: "today", Deadline: "2024-05-10", Status: StatusInProgress},
		{ID: "bad", Deadline: "soon", Status: StatusTodo},
	}

	out := MarkExpired(tasks, today)

	want := map[ID]Status{
		"past":      StatusExpired,
		"past-done": StatusDone,
		"today":     StatusInProgress,
		"bad":       StatusTodo,
	}
	for _, task := range out {
		if task.Status != want[task.ID] {
			t.Fatalf("task %s: expected status %q, got %q", task.ID, want[task.ID], task.Status)
		}
	}
	if tasks[0].Status != StatusTodo {
		t.Fatalf("input slice was modified")
	}
}
