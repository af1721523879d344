package app

import (
	"context"
	"time"

	"taskflow/api/internal/store"
)

type MemberView struct {
	User     store.User `json:"user"`
	Role     string     `json:"role"`
	JoinedAt time.Time  `json:"joinedAt"`
}

type WorkspaceDetails struct {
	store.Workspace
	Members []MemberView `json:"members"`
}

type ProjectDetails struct {
	store.Project
	Members []MemberView `json:"members"`
}

type TaskView struct {
	store.Task
	Assignees []store.User `json:"assignees"`
}

type TaskDetails struct {
	store.Task
	Assignees []store.User  `json:"assignees"`
	Watchers  []store.User  `json:"watchers"`
	Project   store.Project `json:"project"`
}

type CommentView struct {
	store.Comment
	Author store.User `json:"author"`
}

type ActivityView struct {
	store.ActivityEntry
	User store.User `json:"user"`
}

type ProjectRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type MyTaskView struct {
	store.Task
	Project ProjectRef `json:"project"`
}

type AttachmentUpload struct {
	Attachment store.Attachment `json:"attachment"`
	UploadURL  string           `json:"uploadUrl"`
	Task       store.Task       `json:"task"`
}

// usersByID resolves profiles for ids. Unknown ids map to a bare User
// carrying only the id.
func (s *Service) usersByID(ctx context.Context, ids ...[]string) (map[string]store.User, error) {
	var all []string
	for _, group := range ids {
		all = append(all, group...)
	}
	all = uniqueIDs(all)
	profiles := make(map[string]store.User, len(all))
	if len(all) == 0 {
		return profiles, nil
	}
	users, err := s.store.ListUsersByIDs(ctx, all)
	if err != nil {
		return nil, err
	}
	for _, user := range users {
		profiles[user.ID] = user
	}
	return profiles, nil
}

func profile(profiles map[string]store.User, id string) store.User {
	if user, ok := profiles[id]; ok {
		return user
	}
	return store.User{ID: id}
}

func profileList(profiles map[string]store.User, ids []string) []store.User {
	users := make([]store.User, 0, len(ids))
	for _, id := range ids {
		users = append(users, profile(profiles, id))
	}
	return users
}

func (s *Service) workspaceDetails(ctx context.Context, ws store.Workspace) (WorkspaceDetails, error) {
	ids := make([]string, 0, len(ws.Members))
	for _, member := range ws.Members {
		ids = append(ids, member.UserID)
	}
	profiles, err := s.usersByID(ctx, ids)
	if err != nil {
		return WorkspaceDetails{}, err
	}
	members := make([]MemberView, 0, len(ws.Members))
	for _, member := range ws.Members {
		members = append(members, MemberView{User: profile(profiles, member.UserID), Role: member.Role, JoinedAt: member.JoinedAt})
	}
	return WorkspaceDetails{Workspace: ws, Members: members}, nil
}

func (s *Service) projectDetails(ctx context.Context, project store.Project) (ProjectDetails, error) {
	ids := make([]string, 0, len(project.Members))
	for _, member := range project.Members {
		ids = append(ids, member.UserID)
	}
	profiles, err := s.usersByID(ctx, ids)
	if err != nil {
		return ProjectDetails{}, err
	}
	members := make([]MemberView, 0, len(project.Members))
	for _, member := range project.Members {
		members = append(members, MemberView{User: profile(profiles, member.UserID), Role: member.Role, JoinedAt: member.JoinedAt})
	}
	return ProjectDetails{Project: project, Members: members}, nil
}

func (s *Service) taskViews(ctx context.Context, tasks []store.Task) ([]TaskView, error) {
	groups := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		groups = append(groups, task.Assignees)
	}
	profiles, err := s.usersByID(ctx, groups...)
	if err != nil {
		return nil, err
	}
	views := make([]TaskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, TaskView{Task: task, Assignees: profileList(profiles, task.Assignees)})
	}
	return views, nil
}

func (s *Service) commentView(ctx context.Context, comment store.Comment) (CommentView, error) {
	profiles, err := s.usersByID(ctx, []string{comment.AuthorID})
	if err != nil {
		return CommentView{}, err
	}
	return CommentView{Comment: comment, Author: profile(profiles, comment.AuthorID)}, nil
}
