package app

import (
	"context"
	"strings"

	"taskflow/api/internal/activity"
	"taskflow/api/internal/rbac"
	"taskflow/api/internal/search"
	"taskflow/api/internal/store"
	"taskflow/api/internal/util"
)

// CreateWorkspace makes actor the owner and only member of a new workspace.
func (s *Service) CreateWorkspace(ctx context.Context, actor string, input CreateWorkspaceInput) (store.Workspace, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Workspace{}, invalid("Workspace name is required")
	}
	color := strings.TrimSpace(input.Color)
	if color == "" {
		color = defaultWorkspaceColor
	}
	now := s.now().UTC()
	ws := store.Workspace{
		ID:          util.NewID("ws"),
		Name:        name,
		Color:       color,
		Description: strings.TrimSpace(input.Description),
		Owner:       actor,
		Members:     []store.WorkspaceMember{{UserID: actor, Role: string(rbac.RoleOwner), JoinedAt: now}},
		ProjectIDs:  []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateWorkspace(ctx, ws); err != nil {
		return store.Workspace{}, err
	}

	var fx effects
	fx.record(actor, activity.CreatedWorkspace, activity.ResourceWorkspace, ws.ID, "created workspace "+ws.Name)
	s.flush(ctx, &fx)
	return ws, nil
}

func (s *Service) ListWorkspaces(ctx context.Context, actor string) ([]store.Workspace, error) {
	return s.store.ListWorkspacesForUser(ctx, actor)
}

func (s *Service) GetWorkspace(ctx context.Context, actor, workspaceID string) (WorkspaceDetails, error) {
	ws, err := s.memberWorkspace(ctx, actor, workspaceID)
	if err != nil {
		return WorkspaceDetails{}, err
	}
	return s.workspaceDetails(ctx, ws)
}

func (s *Service) GetWorkspaceProjects(ctx context.Context, actor, workspaceID string) ([]store.Project, error) {
	if _, err := s.memberWorkspace(ctx, actor, workspaceID); err != nil {
		return nil, err
	}
	return s.store.ListProjectsByWorkspace(ctx, workspaceID, false)
}

func (s *Service) GetWorkspaceStats(ctx context.Context, actor, workspaceID string) (store.WorkspaceStats, error) {
	if _, err := s.memberWorkspace(ctx, actor, workspaceID); err != nil {
		return store.WorkspaceStats{}, err
	}
	return s.store.WorkspaceStats(ctx, workspaceID)
}

func (s *Service) UpdateWorkspace(ctx context.Context, actor, workspaceID string, input UpdateWorkspaceInput) (store.Workspace, error) {
	ws, err := s.loadWorkspace(ctx, workspaceID)
	if err != nil {
		return store.Workspace{}, err
	}
	if !rbac.IsWorkspaceOwnerOrAdmin(ws, actor) {
		return store.Workspace{}, forbidden("Only the workspace owner or an admin can update the workspace")
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return store.Workspace{}, invalid("Workspace name is required")
		}
		ws.Name = name
	}
	if input.Color != nil && strings.TrimSpace(*input.Color) != "" {
		ws.Color = strings.TrimSpace(*input.Color)
	}
	if input.Description != nil {
		ws.Description = strings.TrimSpace(*input.Description)
	}
	ws.UpdatedAt = s.now().UTC()
	if err := s.store.SaveWorkspace(ctx, ws); err != nil {
		return store.Workspace{}, err
	}

	var fx effects
	fx.record(actor, activity.UpdatedWorkspace, activity.ResourceWorkspace, ws.ID, "updated workspace "+ws.Name)
	s.flush(ctx, &fx)
	return ws, nil
}

// DeleteWorkspace removes the workspace with its projects, tasks, comments
// and pending invites.
func (s *Service) DeleteWorkspace(ctx context.Context, actor, workspaceID string) error {
	ws, err := s.loadWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	if !rbac.IsWorkspaceOwner(ws, actor) {
		return forbidden("Only the workspace owner can delete the workspace")
	}
	taskIDs, err := s.store.DeleteWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}

	var fx effects
	fx.unindex(taskIDs...)
	fx.record(actor, activity.DeletedWorkspace, activity.ResourceWorkspace, ws.ID, "deleted workspace "+ws.Name)
	s.flush(ctx, &fx)
	return nil
}

func (s *Service) ListArchivedTasks(ctx context.Context, actor, workspaceID string) ([]TaskView, error) {
	if _, err := s.memberWorkspace(ctx, actor, workspaceID); err != nil {
		return nil, err
	}
	tasks, err := s.store.ListArchivedTasksByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	return s.taskViews(ctx, tasks)
}

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// SearchTasks runs a full text query scoped to one workspace. Out of range
// paging is clamped before it reaches the index.
func (s *Service) SearchTasks(ctx context.Context, actor, workspaceID, text string, limit, offset int) (search.Response, error) {
	if _, err := s.memberWorkspace(ctx, actor, workspaceID); err != nil {
		return search.Response{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	if s.search == nil {
		return search.Response{}, unavailable("Search is not configured")
	}
	switch {
	case limit <= 0:
		limit = defaultSearchLimit
	case limit > maxSearchLimit:
		limit = maxSearchLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.search.Search(search.Query{
		Text:        text,
		WorkspaceID: workspaceID,
		Limit:       limit,
		Offset:      offset,
	}), nil
}
