package reconcile

import (
	"context"

	"github.com/Luka0103/studyconnect/domain"
)

// TaskCollaborator is the remote source of truth for tasks.
type TaskCollaborator interface {
	ListTasks(ctx context.Context, userID string) ([]domain.Task, error)
	CreateTask(ctx context.Context, draft domain.Draft) (domain.Task, error)
	UpdateTask(ctx context.Context, id domain.ID, patch domain.Patch) (domain.Task, error)
	SetStatus(ctx context.Context, id domain.ID, status domain.Status) error
}

// GroupCollaborator lists and joins study groups.
type GroupCollaborator interface {
	ListGroups(ctx context.Context, userID string) ([]domain.Group, error)
	ListAdminGroups(ctx context.Context, userID string) ([]domain.Group, error)
	JoinGroup(ctx context.Context, groupID domain.ID) (domain.Group, error)
}

// Identity resolves the user the board belongs to.
type Identity interface {
	UserID() (string, error)
}

// Outcome is the result of reconciling an optimistic move.
type Outcome int

const (
	// OutcomeConfirmed means the backend accepted the move as applied.
	OutcomeConfirmed Outcome = iota
	// OutcomeRefetched means the backend rejected the move and the board was
	// replaced with server data.
	OutcomeRefetched
	// OutcomeStale means both the move and the refetch failed; the board still
	// shows the optimistic layout.
	OutcomeStale
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeRefetched:
		return "refetched"
	case OutcomeStale:
		return "stale"
	}
	return "unknown"
}
