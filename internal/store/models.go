package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a looked-up record does not exist.
var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a write that collided with a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

type User struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

type WorkspaceMember struct {
	UserID   string    `json:"user"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

type Workspace struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Color       string            `json:"color"`
	Description string            `json:"description"`
	Owner       string            `json:"owner"`
	Members     []WorkspaceMember `json:"members"`
	ProjectIDs  []string          `json:"projects"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

type ProjectMember struct {
	UserID   string    `json:"user"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

type Project struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	WorkspaceID string          `json:"workspace"`
	Status      string          `json:"status"`
	Priority    string          `json:"priority"`
	StartDate   *time.Time      `json:"startDate,omitempty"`
	DueDate     *time.Time      `json:"dueDate,omitempty"`
	Tags        []string        `json:"tags"`
	Members     []ProjectMember `json:"members"`
	TaskIDs     []string        `json:"tasks"`
	Progress    int             `json:"progress"`
	IsArchived  bool            `json:"isArchived"`
	CreatedBy   string          `json:"createdBy"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type SubTask struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
}

type Attachment struct {
	FileName   string    `json:"fileName"`
	FileURL    string    `json:"fileUrl"`
	FileType   string    `json:"fileType,omitempty"`
	FileSize   int64     `json:"fileSize"`
	UploadedBy string    `json:"uploadedBy,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type Task struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	ProjectID      string       `json:"project"`
	Status         string       `json:"status"`
	Priority       string       `json:"priority"`
	Assignees      []string     `json:"assignees"`
	Watchers       []string     `json:"watchers"`
	DueDate        *time.Time   `json:"dueDate,omitempty"`
	CompletedAt    *time.Time   `json:"completedAt,omitempty"`
	EstimatedHours float64      `json:"estimatedHours,omitempty"`
	ActualHours    float64      `json:"actualHours,omitempty"`
	Tags           []string     `json:"tags"`
	SubTasks       []SubTask    `json:"subtasks"`
	CommentIDs     []string     `json:"comments"`
	Attachments    []Attachment `json:"attachments"`
	IsArchived     bool         `json:"isArchived"`
	CreatedBy      string       `json:"createdBy"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

type Mention struct {
	UserID string `json:"user"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

type Reaction struct {
	Emoji  string `json:"emoji"`
	UserID string `json:"user"`
}

type Comment struct {
	ID          string       `json:"id"`
	Text        string       `json:"text"`
	TaskID      string       `json:"task"`
	AuthorID    string       `json:"author"`
	Mentions    []Mention    `json:"mentions"`
	Reactions   []Reaction   `json:"reactions"`
	Attachments []Attachment `json:"attachments"`
	IsEdited    bool         `json:"isEdited"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// ActivityEntry is an append-only audit record. It references the acting
// user and the resource by id only.
type ActivityEntry struct {
	ID           string         `json:"id" bson:"_id"`
	UserID       string         `json:"user" bson:"user"`
	Action       string         `json:"action" bson:"action"`
	ResourceType string         `json:"resourceType" bson:"resourceType"`
	ResourceID   string         `json:"resourceId" bson:"resourceId"`
	Details      map[string]any `json:"details" bson:"details"`
	CreatedAt    time.Time      `json:"createdAt" bson:"createdAt"`
}

type WorkspaceInvite struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	UserID      string    `json:"user"`
	Role        string    `json:"role"`
	Token       string    `json:"-"`
	ExpiresAt   time.Time `json:"expiresAt"`
	CreatedAt   time.Time `json:"createdAt"`
}

type WorkspaceStats struct {
	TotalProjects           int `json:"totalProjects"`
	TotalProjectsInProgress int `json:"totalProjectInProgress"`
	TotalTasks              int `json:"totalTasks"`
	TotalTasksCompleted     int `json:"totalTaskCompleted"`
	TotalTasksToDo          int `json:"totalTaskToDo"`
	TotalTasksInProgress    int `json:"totalTaskInProgress"`
}
