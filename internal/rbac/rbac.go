package rbac

import (
	"errors"
	"strings"

	"taskflow/api/internal/store"
)

type Role string
type Action string

// Workspace roles.
const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Project roles.
const (
	RoleManager     Role = "manager"
	RoleContributor Role = "contributor"
	RoleProjectView Role = "viewer"
)

const (
	ActionRead     Action = "read"
	ActionWrite    Action = "write"
	ActionManage   Action = "manage"
	ActionDelete   Action = "delete"
	ActionTransfer Action = "transfer"
)

var ErrOwnerNotInvitable = errors.New("owner role cannot be granted by invite")

// Can reports whether a workspace role permits the action. Unknown roles are
// denied everything.
func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleAdmin:
		return action == ActionRead || action == ActionWrite || action == ActionManage
	case RoleMember:
		return action == ActionRead || action == ActionWrite
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

func WorkspaceRole(ws store.Workspace, userID string) (Role, bool) {
	if userID == "" {
		return "", false
	}
	for _, member := range ws.Members {
		if member.UserID == userID {
			return Role(member.Role), true
		}
	}
	return "", false
}

func IsWorkspaceMember(ws store.Workspace, userID string) bool {
	_, ok := WorkspaceRole(ws, userID)
	return ok
}

func IsWorkspaceOwner(ws store.Workspace, userID string) bool {
	return userID != "" && ws.Owner == userID
}

// IsWorkspaceOwnerOrAdmin checks the owner field first, so an owner passes
// even when the stored member role says otherwise.
func IsWorkspaceOwnerOrAdmin(ws store.Workspace, userID string) bool {
	if IsWorkspaceOwner(ws, userID) {
		return true
	}
	role, ok := WorkspaceRole(ws, userID)
	return ok && Can(role, ActionManage)
}

func IsProjectMember(p store.Project, userID string) bool {
	if userID == "" {
		return false
	}
	for _, member := range p.Members {
		if member.UserID == userID {
			return true
		}
	}
	return false
}

// CanDeleteTask allows task assignees and the user who created the project.
func CanDeleteTask(t store.Task, p store.Project, userID string) bool {
	if userID == "" {
		return false
	}
	if p.CreatedBy == userID {
		return true
	}
	for _, assignee := range t.Assignees {
		if assignee == userID {
			return true
		}
	}
	return false
}

func NormalizeProjectRole(role string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(role))) {
	case RoleManager:
		return RoleManager
	case RoleProjectView:
		return RoleProjectView
	default:
		return RoleContributor
	}
}

// NormalizeInviteRole defaults to member and refuses the owner role.
func NormalizeInviteRole(role string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(role))) {
	case "", RoleMember:
		return RoleMember, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleViewer:
		return RoleViewer, nil
	case RoleOwner:
		return "", ErrOwnerNotInvitable
	default:
		return RoleMember, nil
	}
}
