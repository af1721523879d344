package app

import (
	"context"
	"strings"

	"taskflow/api/internal/activity"
	"taskflow/api/internal/rbac"
	"taskflow/api/internal/store"
	"taskflow/api/internal/util"
)

// CreateProject adds a project to the workspace. The creator always ends up
// a manager; every other listed member must already belong to the workspace.
func (s *Service) CreateProject(ctx context.Context, actor, workspaceID string, input CreateProjectInput) (store.Project, error) {
	ws, err := s.memberWorkspace(ctx, actor, workspaceID)
	if err != nil {
		return store.Project{}, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Project{}, invalid("Project title is required")
	}
	status, ok := normalizeChoice(input.Status, defaultProjectStatus, projectStatuses)
	if !ok {
		return store.Project{}, invalid("Invalid project status")
	}
	priority, ok := normalizeChoice(input.Priority, defaultProjectPriority, priorities)
	if !ok {
		return store.Project{}, invalid("Invalid project priority")
	}

	now := s.now().UTC()
	members := make([]store.ProjectMember, 0, len(input.Members)+1)
	seen := make(map[string]struct{}, len(input.Members)+1)
	for _, candidate := range input.Members {
		userID := strings.TrimSpace(candidate.User)
		if userID == "" {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		if !rbac.IsWorkspaceMember(ws, userID) {
			return store.Project{}, invalid("Project members must belong to the workspace")
		}
		seen[userID] = struct{}{}
		members = append(members, store.ProjectMember{
			UserID:   userID,
			Role:     string(rbac.NormalizeProjectRole(candidate.Role)),
			JoinedAt: now,
		})
	}
	if _, listed := seen[actor]; listed {
		for i := range members {
			if members[i].UserID == actor {
				members[i].Role = string(rbac.RoleManager)
			}
		}
	} else {
		members = append(members, store.ProjectMember{UserID: actor, Role: string(rbac.RoleManager), JoinedAt: now})
	}

	tags := []string(input.Tags)
	if tags == nil {
		tags = []string{}
	}
	project := store.Project{
		ID:          util.NewID("prj"),
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		WorkspaceID: ws.ID,
		Status:      status,
		Priority:    priority,
		StartDate:   input.StartDate.Time,
		DueDate:     input.DueDate.Time,
		Tags:        tags,
		Members:     members,
		TaskIDs:     []string{},
		CreatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateProject(ctx, project); err != nil {
		return store.Project{}, err
	}

	var fx effects
	fx.record(actor, activity.CreatedProject, activity.ResourceProject, project.ID, "created project "+project.Title)
	s.flush(ctx, &fx)
	return project, nil
}

func (s *Service) GetProject(ctx context.Context, actor, projectID string) (ProjectDetails, error) {
	project, err := s.memberProject(ctx, actor, projectID)
	if err != nil {
		return ProjectDetails{}, err
	}
	return s.projectDetails(ctx, project)
}

func (s *Service) ListProjectTasks(ctx context.Context, actor, projectID string) ([]TaskView, error) {
	if _, err := s.memberProject(ctx, actor, projectID); err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasksByProject(ctx, projectID, false)
	if err != nil {
		return nil, err
	}
	return s.taskViews(ctx, tasks)
}

// DeleteProject removes the project and its tasks. Workspace owners and
// admins may delete any project in the workspace.
func (s *Service) DeleteProject(ctx context.Context, actor, projectID string) error {
	project, err := s.loadProject(ctx, projectID)
	if err != nil {
		return err
	}
	ws, err := s.loadWorkspace(ctx, project.WorkspaceID)
	if err != nil {
		return err
	}
	if !rbac.IsWorkspaceOwnerOrAdmin(ws, actor) {
		return forbidden("Only the workspace owner or an admin can delete projects")
	}
	taskIDs, err := s.store.DeleteProject(ctx, project.ID, ws.ID)
	if err != nil {
		return err
	}

	var fx effects
	fx.unindex(taskIDs...)
	fx.record(actor, activity.DeletedProject, activity.ResourceProject, project.ID, "deleted project "+project.Title)
	s.flush(ctx, &fx)
	return nil
}
