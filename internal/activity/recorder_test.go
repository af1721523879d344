package activity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"taskflow/api/internal/logging"
	"taskflow/api/internal/store"
)

type fakeSink struct {
	entries   []store.ActivityEntry
	insertErr error
}

func (f *fakeSink) InsertActivity(_ context.Context, entry store.ActivityEntry) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeSink) ListActivityByResource(_ context.Context, resourceID string, limit int) ([]store.ActivityEntry, error) {
	out := make([]store.ActivityEntry, 0)
	for _, entry := range f.entries {
		if entry.ResourceID == resourceID {
			out = append(out, entry)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func TestRecordStoresDescription(t *testing.T) {
	sink := &fakeSink{}
	recorder := NewRecorder(sink, logging.Discard())

	recorder.Record(context.Background(), Entry{
		UserID:       "user_a",
		Action:       CreatedTask,
		ResourceType: ResourceTask,
		ResourceID:   "task_1",
		Description:  "created task Ship it",
	})

	if len(sink.entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(sink.entries))
	}
	entry := sink.entries[0]
	if entry.Action != "created_task" || entry.ResourceType != "Task" || entry.UserID != "user_a" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Details["description"] != "created task Ship it" {
		t.Fatalf("description = %v", entry.Details["description"])
	}
	if !strings.HasPrefix(entry.ID, "act_") {
		t.Fatalf("id = %q", entry.ID)
	}
}

func TestRecordSwallowsSinkErrors(t *testing.T) {
	recorder := NewRecorder(&fakeSink{insertErr: errors.New("down")}, logging.Discard())
	recorder.Record(context.Background(), Entry{Action: UpdatedTask, ResourceID: "task_1"})
}

func TestListByResourceNewestFirst(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sink := &fakeSink{entries: []store.ActivityEntry{
		{ID: "a", ResourceID: "task_1", CreatedAt: base},
		{ID: "b", ResourceID: "task_1", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "c", ResourceID: "task_2", CreatedAt: base.Add(time.Hour)},
		{ID: "d", ResourceID: "task_1", CreatedAt: base.Add(time.Minute)},
	}}
	entries, err := NewRecorder(sink, logging.Discard()).ListByResource(context.Background(), "task_1")
	if err != nil {
		t.Fatalf("ListByResource() error = %v", err)
	}
	got := make([]string, 0, len(entries))
	for _, entry := range entries {
		got = append(got, entry.ID)
	}
	if strings.Join(got, ",") != "b,d,a" {
		t.Fatalf("order = %v, want b,d,a", got)
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "short", want: "short"},
		{in: strings.Repeat("x", 50), want: strings.Repeat("x", 50)},
		{in: strings.Repeat("x", 51), want: strings.Repeat("x", 50) + "..."},
		{in: strings.Repeat("é", 60), want: strings.Repeat("é", 50) + "..."},
	}
	for _, tc := range cases {
		if got := Truncate(tc.in, 50); got != tc.want {
			t.Fatalf("Truncate(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestListByResourceReturnsLongHistories(t *testing.T) {
	sink := &fakeSink{}
	recorder := NewRecorder(sink, logging.Discard())
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 250; i++ {
		sink.entries = append(sink.entries, store.ActivityEntry{
			ID:         fmt.Sprintf("act_%d", i),
			ResourceID: "tsk_busy",
			Action:     string(UpdatedTask),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
	}

	entries, err := recorder.ListByResource(context.Background(), "tsk_busy")
	if err != nil {
		t.Fatalf("ListByResource() error = %v", err)
	}
	if len(entries) != 250 {
		t.Fatalf("got %d entries, want 250", len(entries))
	}
	if entries[0].ID != "act_249" {
		t.Fatalf("newest entry = %s", entries[0].ID)
	}
}
