package activity

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"taskflow/api/internal/store"
	"taskflow/api/internal/util"
)

type Action string

const (
	CreatedWorkspace     Action = "created_workspace"
	UpdatedWorkspace     Action = "updated_workspace"
	DeletedWorkspace     Action = "deleted_workspace"
	TransferredOwnership Action = "transferred_workspace_ownership"
	RemovedMember        Action = "removed_member"
	InvitedMember        Action = "invited_member"
	JoinedWorkspace      Action = "joined_workspace"
	CreatedProject       Action = "created_project"
	DeletedProject       Action = "deleted_project"
	CreatedTask          Action = "created_task"
	UpdatedTask          Action = "updated_task"
	DeletedTask          Action = "deleted_task"
	CreatedSubTask       Action = "created_subtask"
	UpdatedSubTask       Action = "updated_subtask"
	AddedComment         Action = "added_comment"
	WatchedTask          Action = "watched_task"
	ArchivedTask         Action = "archived_task"
	AddedAttachment      Action = "added_attachment"
)

type ResourceType string

const (
	ResourceTask      ResourceType = "Task"
	ResourceProject   ResourceType = "Project"
	ResourceWorkspace ResourceType = "Workspace"
	ResourceComment   ResourceType = "Comment"
	ResourceUser      ResourceType = "User"
)

// Sink persists activity entries. Both the Postgres store and the Mongo
// activity store satisfy it.
type Sink interface {
	InsertActivity(ctx context.Context, entry store.ActivityEntry) error
	ListActivityByResource(ctx context.Context, resourceID string, limit int) ([]store.ActivityEntry, error)
}

// Entry is a pending record, collected during a mutation and written once
// the mutation has been persisted.
type Entry struct {
	UserID       string
	Action       Action
	ResourceType ResourceType
	ResourceID   string
	Description  string
}

type Recorder struct {
	sink Sink
	log  logrus.FieldLogger
	now  func() time.Time
}

func NewRecorder(sink Sink, log logrus.FieldLogger) *Recorder {
	return &Recorder{sink: sink, log: log, now: time.Now}
}

// Record appends one entry. Failures are logged and never returned.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	entry := store.ActivityEntry{
		ID:           util.NewID("act"),
		UserID:       e.UserID,
		Action:       string(e.Action),
		ResourceType: string(e.ResourceType),
		ResourceID:   e.ResourceID,
		Details:      map[string]any{"description": e.Description},
		CreatedAt:    r.now().UTC(),
	}
	if err := r.sink.InsertActivity(ctx, entry); err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"action":      entry.Action,
			"resource_id": entry.ResourceID,
		}).Warn("activity record failed")
	}
}

// ListByResource returns every entry for a resource, newest first.
func (r *Recorder) ListByResource(ctx context.Context, resourceID string) ([]store.ActivityEntry, error) {
	entries, err := r.sink.ListActivityByResource(ctx, resourceID, 0)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

// Truncate shortens long text for activity descriptions.
func Truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
