package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskflow/api/internal/activity"
	"taskflow/api/internal/rbac"
	"taskflow/api/internal/store"
	"taskflow/api/internal/util"
)

func (s *Service) CreateTask(ctx context.Context, actor, projectID string, input CreateTaskInput) (store.Task, error) {
	project, err := s.memberProject(ctx, actor, projectID)
	if err != nil {
		return store.Task{}, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Task{}, invalid("Task title is required")
	}
	status, ok := normalizeChoice(input.Status, defaultTaskStatus, taskStatuses)
	if !ok {
		return store.Task{}, invalid("Invalid task status")
	}
	priority, ok := normalizeChoice(input.Priority, defaultTaskPriority, priorities)
	if !ok {
		return store.Task{}, invalid("Invalid task priority")
	}
	if input.EstimatedHours < 0 {
		return store.Task{}, invalid("Estimated hours cannot be negative")
	}

	now := s.now().UTC()
	tags := []string(input.Tags)
	if tags == nil {
		tags = []string{}
	}
	task := store.Task{
		ID:             util.NewID("tsk"),
		Title:          title,
		Description:    input.Description,
		ProjectID:      project.ID,
		Status:         status,
		Priority:       priority,
		Assignees:      uniqueIDs(input.Assignees),
		Watchers:       []string{},
		DueDate:        input.DueDate.Time,
		EstimatedHours: input.EstimatedHours,
		Tags:           tags,
		SubTasks:       []store.SubTask{},
		CommentIDs:     []string{},
		Attachments:    []store.Attachment{},
		CreatedBy:      actor,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if status == taskStatusDone {
		task.CompletedAt = &now
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return store.Task{}, err
	}

	var fx effects
	fx.index(task, project.WorkspaceID)
	fx.record(actor, activity.CreatedTask, activity.ResourceTask, task.ID, "created task "+activity.Truncate(task.Title, descriptionLimit))
	s.flush(ctx, &fx)
	return task, nil
}

func (s *Service) GetTask(ctx context.Context, actor, taskID string) (TaskDetails, error) {
	task, project, err := s.memberTask(ctx, actor, taskID)
	if err != nil {
		return TaskDetails{}, err
	}
	profiles, err := s.usersByID(ctx, task.Assignees, task.Watchers)
	if err != nil {
		return TaskDetails{}, err
	}
	return TaskDetails{
		Task:      task,
		Assignees: profileList(profiles, task.Assignees),
		Watchers:  profileList(profiles, task.Watchers),
		Project:   project,
	}, nil
}

// taskChange describes what a mutation did, for the activity log.
type taskChange struct {
	action      activity.Action
	description string
}

// updateTask runs mutate against a freshly loaded task after checking that
// actor is a member of the task's project, then persists the result.
func (s *Service) updateTask(ctx context.Context, actor, taskID string, mutate func(*store.Task) (taskChange, error)) (store.Task, error) {
	task, project, err := s.memberTask(ctx, actor, taskID)
	if err != nil {
		return store.Task{}, err
	}
	change, err := mutate(&task)
	if err != nil {
		return store.Task{}, err
	}
	task.UpdatedAt = s.now().UTC()
	if err := s.store.SaveTask(ctx, task); err != nil {
		return store.Task{}, err
	}

	var fx effects
	fx.index(task, project.WorkspaceID)
	fx.record(actor, change.action, activity.ResourceTask, task.ID, change.description)
	s.flush(ctx, &fx)
	return task, nil
}

func fieldChange(field, from, to string) taskChange {
	description := fmt.Sprintf("updated task %s from %s to %s", field,
		activity.Truncate(from, descriptionLimit), activity.Truncate(to, descriptionLimit))
	return taskChange{action: activity.UpdatedTask, description: description}
}

func (s *Service) UpdateTaskTitle(ctx context.Context, actor, taskID, title string) (store.Task, error) {
	return s.updateTask(ctx, actor, taskID, func(task *store.Task) (taskChange, error) {
		title = strings.TrimSpace(title)
		if title == "" {
			return taskChange{}, invalid("Task title is required")
		}
		change := fieldChange("title", task.Title, title)
		task.Title = title
		return change, nil
	})
}

func (s *Service) UpdateTaskDescription(ctx context.Context, actor, taskID, description string) (store.Task, error) {
	return s.updateTask(ctx, actor, taskID, func(task *store.Task) (taskChange, error) {
		change := fieldChange("description", task.Description, description)
		task.Description = description
		return change, nil
	})
}

// UpdateTaskStatus allows any transition between statuses. Moving to Done
// stamps completedAt; moving away clears it.
func (s *Service) UpdateTaskStatus(ctx context.Context, actor, taskID, status string) (store.Task, error) {
	return s.updateTask(ctx, actor, taskID, func(task *store.Task) (taskChange, error) {
		status = strings.TrimSpace(status)
		if _, ok := taskStatuses[status]; !ok {
			return taskChange{}, invalid("Invalid task status")
		}
		change := fieldChange("status", task.Status, status)
		task.Status = status
		if status == taskStatusDone {
			completed := s.now().UTC()
			task.CompletedAt = &completed
		} else {
			task.CompletedAt = nil
		}
		return change, nil
	})
}

func (s *Service) UpdateTaskPriority(ctx context.Context, actor, taskID, priority string) (store.Task, error) {
	return s.updateTask(ctx, actor, taskID, func(task *store.Task) (taskChange, error) {
		priority = strings.TrimSpace(priority)
		if _, ok := priorities[priority]; !ok {
			return taskChange{}, invalid("Invalid task priority")
		}
		change := fieldChange("priority", task.Priority, priority)
		task.Priority = priority
		return change, nil
	})
}

func (s *Service) UpdateTaskAssignees(ctx context.Context, actor, taskID string, assignees []string) (store.Task, error) {
	return s.updateTask(ctx, actor, taskID, func(task *store.Task) (taskChange, error) {
		next := uniqueIDs(assignees)
		change := taskChange{
			action:      activity.UpdatedTask,
			description: fmt.Sprintf("updated task assignees from %d to %d", len(task.Assignees), len(next)),
		}
		task.Assignees = next
		return change, nil
	})
}

func (s *Service) AddSubTask(ctx context.Context, actor, taskID, title string) (store.Task, error) {
	return s.updateTask(ctx, actor, taskID, func(task *store.Task) (taskChange, error) {
		title = strings.TrimSpace(title)
		if title == "" {
			return taskChange{}, invalid("Subtask title is required")
		}
		task.SubTasks = append(task.SubTasks, store.SubTask{
			ID:        util.NewID("sub"),
			Title:     title,
			CreatedAt: s.now().UTC(),
		})
		return taskChange{
			action:      activity.CreatedSubTask,
			description: "created subtask " + activity.Truncate(title, descriptionLimit),
		}, nil
	})
}

func (s *Service) UpdateSubTask(ctx context.Context, actor, taskID, subTaskID string, completed bool) (store.Task, error) {
	return s.updateTask(ctx, actor, taskID, func(task *store.Task) (taskChange, error) {
		for i := range task.SubTasks {
			if task.SubTasks[i].ID != subTaskID {
				continue
			}
			task.SubTasks[i].Completed = completed
			verb := "marked subtask incomplete"
			if completed {
				verb = "marked subtask complete"
			}
			return taskChange{
				action:      activity.UpdatedSubTask,
				description: verb + " " + activity.Truncate(task.SubTasks[i].Title, descriptionLimit),
			}, nil
		}
		return taskChange{}, notFound("Subtask not found")
	})
}

// WatchTask flips actor's presence in the watcher list.
func (s *Service) WatchTask(ctx context.Context, actor, taskID string) (store.Task, error) {
	return s.updateTask(ctx, actor, taskID, func(task *store.Task) (taskChange, error) {
		watchers := make([]string, 0, len(task.Watchers)+1)
		watching := false
		for _, id := range task.Watchers {
			if id == actor {
				watching = true
				continue
			}
			watchers = append(watchers, id)
		}
		verb := "stopped watching"
		if !watching {
			watchers = append(watchers, actor)
			verb = "started watching"
		}
		task.Watchers = watchers
		return taskChange{
			action:      activity.WatchedTask,
			description: verb + " task " + activity.Truncate(task.Title, descriptionLimit),
		}, nil
	})
}

func (s *Service) ArchiveTask(ctx context.Context, actor, taskID string) (store.Task, error) {
	return s.updateTask(ctx, actor, taskID, func(task *store.Task) (taskChange, error) {
		task.IsArchived = !task.IsArchived
		verb := "unarchived"
		if task.IsArchived {
			verb = "archived"
		}
		return taskChange{
			action:      activity.ArchivedTask,
			description: verb + " task " + activity.Truncate(task.Title, descriptionLimit),
		}, nil
	})
}

// DeleteTask is open to the task's assignees and the project creator.
func (s *Service) DeleteTask(ctx context.Context, actor, taskID string) error {
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return err
	}
	project, err := s.loadProject(ctx, task.ProjectID)
	if err != nil {
		return err
	}
	if !rbac.CanDeleteTask(task, project, actor) {
		return forbidden("You are not allowed to delete this task")
	}
	if err := s.store.DeleteTask(ctx, task.ID, project.ID); err != nil {
		return err
	}

	var fx effects
	fx.unindex(task.ID)
	fx.record(actor, activity.DeletedTask, activity.ResourceTask, task.ID, "deleted task "+activity.Truncate(task.Title, descriptionLimit))
	s.flush(ctx, &fx)
	return nil
}

func (s *Service) ListMyTasks(ctx context.Context, actor string) ([]MyTaskView, error) {
	tasks, err := s.store.ListTasksByAssignee(ctx, actor)
	if err != nil {
		return nil, err
	}
	titles := make(map[string]string)
	views := make([]MyTaskView, 0, len(tasks))
	for _, task := range tasks {
		title, ok := titles[task.ProjectID]
		if !ok {
			project, err := s.store.GetProject(ctx, task.ProjectID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			title = project.Title
			titles[task.ProjectID] = title
		}
		views = append(views, MyTaskView{Task: task, Project: ProjectRef{ID: task.ProjectID, Title: title}})
	}
	return views, nil
}

func (s *Service) ListTaskActivity(ctx context.Context, actor, taskID string) ([]ActivityView, error) {
	if _, _, err := s.memberTask(ctx, actor, taskID); err != nil {
		return nil, err
	}
	entries, err := s.recorder.ListByResource(ctx, taskID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.UserID)
	}
	profiles, err := s.usersByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	views := make([]ActivityView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, ActivityView{ActivityEntry: entry, User: profile(profiles, entry.UserID)})
	}
	return views, nil
}
