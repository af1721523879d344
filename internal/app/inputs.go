package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var projectStatuses = map[string]struct{}{
	"PLANNING":    {},
	"IN PROGRESS": {},
	"COMPLETED":   {},
	"ON HOLD":     {},
	"CANCELLED":   {},
}

var taskStatuses = map[string]struct{}{
	"To Do":       {},
	"In Progress": {},
	"Review":      {},
	"Done":        {},
}

var priorities = map[string]struct{}{
	"Low":    {},
	"Medium": {},
	"High":   {},
}

const (
	defaultWorkspaceColor  = "#FF5733"
	defaultProjectStatus   = "PLANNING"
	defaultProjectPriority = "Medium"
	defaultTaskStatus      = "To Do"
	defaultTaskPriority    = "Low"
	taskStatusDone         = "Done"
	descriptionLimit       = 50
)

type CreateWorkspaceInput struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

type UpdateWorkspaceInput struct {
	Name        *string `json:"name"`
	Color       *string `json:"color"`
	Description *string `json:"description"`
}

type ProjectMemberInput struct {
	User string `json:"user"`
	Role string `json:"role"`
}

type CreateProjectInput struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Status      string               `json:"status"`
	Priority    string               `json:"priority"`
	StartDate   Date                 `json:"startDate"`
	DueDate     Date                 `json:"dueDate"`
	Tags        TagList              `json:"tags"`
	Members     []ProjectMemberInput `json:"members"`
}

type CreateTaskInput struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Status         string   `json:"status"`
	Priority       string   `json:"priority"`
	DueDate        Date     `json:"dueDate"`
	Assignees      []string `json:"assignees"`
	Tags           TagList  `json:"tags"`
	EstimatedHours float64  `json:"estimatedHours"`
}

type AttachmentInput struct {
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
}

// TagList accepts either a JSON array of strings or one comma separated
// string. Entries are trimmed and blanks dropped.
type TagList []string

func (t *TagList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = nil
		return nil
	}
	var raw []string
	if len(data) > 0 && data[0] == '"' {
		var joined string
		if err := json.Unmarshal(data, &joined); err != nil {
			return err
		}
		raw = strings.Split(joined, ",")
	} else if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("tags must be a string or a list of strings")
	}
	*t = cleanTags(raw)
	return nil
}

func cleanTags(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	tags := make([]string, 0, len(raw))
	for _, tag := range raw {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

// Date accepts RFC 3339 timestamps, plain YYYY-MM-DD dates, empty strings
// and null.
type Date struct {
	Time *time.Time
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("dates must be strings")
	}
	if raw == nil || strings.TrimSpace(*raw) == "" {
		d.Time = nil
		return nil
	}
	value := strings.TrimSpace(*raw)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			utc := parsed.UTC()
			d.Time = &utc
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", value)
}

func normalizeChoice(value, fallback string, allowed map[string]struct{}) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, true
	}
	_, ok := allowed[value]
	return value, ok
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
