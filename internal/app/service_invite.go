package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"taskflow/api/internal/activity"
	"taskflow/api/internal/invite"
	"taskflow/api/internal/rbac"
	"taskflow/api/internal/store"
	"taskflow/api/internal/util"
)

type InviteResult struct {
	WorkspaceID string    `json:"workspaceId"`
	UserID      string    `json:"userId"`
	Role        string    `json:"role"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// InviteUserToWorkspace issues a signed invite for an existing user and
// emails them the redemption link. An expired invite for the same user is
// replaced; a live one is a conflict.
func (s *Service) InviteUserToWorkspace(ctx context.Context, actor, workspaceID, email, role string) (InviteResult, error) {
	grant, err := rbac.NormalizeInviteRole(role)
	if err != nil {
		return InviteResult{}, invalid("The owner role cannot be granted by invitation")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return InviteResult{}, invalid("Email is required")
	}
	ws, err := s.loadWorkspace(ctx, workspaceID)
	if err != nil {
		return InviteResult{}, err
	}
	if !rbac.IsWorkspaceOwnerOrAdmin(ws, actor) {
		return InviteResult{}, forbidden("Only the workspace owner or an admin can invite members")
	}
	target, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return InviteResult{}, notFound("User not found")
	}
	if err != nil {
		return InviteResult{}, err
	}
	if rbac.IsWorkspaceMember(ws, target.ID) {
		return InviteResult{}, conflict("User is already a member of this workspace")
	}

	existing, err := s.store.GetInvite(ctx, ws.ID, target.ID)
	switch {
	case err == nil && existing.ExpiresAt.After(s.now()):
		return InviteResult{}, conflict("User has already been invited to this workspace")
	case err == nil:
		if err := s.store.DeleteInvite(ctx, existing.ID); err != nil {
			return InviteResult{}, err
		}
	case !errors.Is(err, store.ErrNotFound):
		return InviteResult{}, err
	}

	token, expiresAt, err := s.invites.Issue(ws.ID, target.ID, string(grant))
	if err != nil {
		return InviteResult{}, err
	}
	record := store.WorkspaceInvite{
		ID:          util.NewID("inv"),
		WorkspaceID: ws.ID,
		UserID:      target.ID,
		Role:        string(grant),
		Token:       token,
		ExpiresAt:   expiresAt,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateInvite(ctx, record); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return InviteResult{}, conflict("User has already been invited to this workspace")
		}
		return InviteResult{}, err
	}

	inviterName := "A teammate"
	if inviter, err := s.store.GetUserByID(ctx, actor); err == nil && inviter.Name != "" {
		inviterName = inviter.Name
	}
	var fx effects
	fx.email(invitationEmail{
		to:            target.Email,
		inviterName:   inviterName,
		workspaceName: ws.Name,
		link:          s.inviteLink(ws.ID, token),
	})
	fx.record(actor, activity.InvitedMember, activity.ResourceWorkspace, ws.ID,
		fmt.Sprintf("invited %s to workspace %s as %s", target.Email, ws.Name, grant))
	s.flush(ctx, &fx)

	return InviteResult{
		WorkspaceID: ws.ID,
		UserID:      target.ID,
		Role:        string(grant),
		ExpiresAt:   expiresAt,
	}, nil
}

func (s *Service) inviteLink(workspaceID, token string) string {
	return fmt.Sprintf("%s/workspace-invite/%s?tk=%s", s.cfg.FrontendURL, url.PathEscape(workspaceID), url.QueryEscape(token))
}

// AcceptInviteByToken redeems a signed invite for the principal it was
// issued to. The invite record is consumed in the same write that adds the
// membership, so a token redeems at most once.
func (s *Service) AcceptInviteByToken(ctx context.Context, actor, token string) (store.Workspace, error) {
	token = strings.TrimSpace(token)
	claims, err := s.invites.Parse(token)
	switch {
	case errors.Is(err, invite.ErrExpired):
		return store.Workspace{}, expired("Invitation has expired")
	case err != nil:
		return store.Workspace{}, invalidSignature("Invalid invitation token")
	}
	if claims.UserID != actor {
		return store.Workspace{}, forbidden("This invitation was issued to another user")
	}
	ws, err := s.loadWorkspace(ctx, claims.WorkspaceID)
	if err != nil {
		return store.Workspace{}, err
	}
	if rbac.IsWorkspaceMember(ws, actor) {
		return store.Workspace{}, conflict("You are already a member of this workspace")
	}
	record, err := s.store.GetInvite(ctx, ws.ID, actor)
	if errors.Is(err, store.ErrNotFound) || (err == nil && record.Token != token) {
		return store.Workspace{}, notFound("Invitation not found")
	}
	if err != nil {
		return store.Workspace{}, err
	}

	role := claims.Role
	if role == "" {
		role = string(rbac.RoleMember)
	}
	now := s.now().UTC()
	ws.Members = append(ws.Members, store.WorkspaceMember{UserID: actor, Role: role, JoinedAt: now})
	ws.UpdatedAt = now
	if err := s.store.JoinWorkspace(ctx, ws, record.ID); err != nil {
		return store.Workspace{}, err
	}

	var fx effects
	fx.record(actor, activity.JoinedWorkspace, activity.ResourceWorkspace, ws.ID, "joined workspace "+ws.Name)
	s.flush(ctx, &fx)
	return ws, nil
}

// AcceptGenerateInvite joins actor to the workspace through an open invite
// link, as a plain member.
func (s *Service) AcceptGenerateInvite(ctx context.Context, actor, workspaceID string) (store.Workspace, error) {
	ws, err := s.loadWorkspace(ctx, workspaceID)
	if err != nil {
		return store.Workspace{}, err
	}
	if rbac.IsWorkspaceMember(ws, actor) {
		return store.Workspace{}, conflict("You are already a member of this workspace")
	}
	now := s.now().UTC()
	ws.Members = append(ws.Members, store.WorkspaceMember{UserID: actor, Role: string(rbac.RoleMember), JoinedAt: now})
	ws.UpdatedAt = now
	if err := s.store.SaveWorkspace(ctx, ws); err != nil {
		return store.Workspace{}, err
	}

	var fx effects
	fx.record(actor, activity.JoinedWorkspace, activity.ResourceWorkspace, ws.ID, "joined workspace "+ws.Name)
	s.flush(ctx, &fx)
	return ws, nil
}

// TransferWorkspaceOwnership hands the workspace to another member. Both role
// changes land in one save, so exactly one member holds the owner role.
func (s *Service) TransferWorkspaceOwnership(ctx context.Context, actor, workspaceID, newOwnerID string) (store.Workspace, error) {
	ws, err := s.loadWorkspace(ctx, workspaceID)
	if err != nil {
		return store.Workspace{}, err
	}
	if !rbac.IsWorkspaceOwner(ws, actor) {
		return store.Workspace{}, forbidden("Only the workspace owner can transfer ownership")
	}
	newOwnerID = strings.TrimSpace(newOwnerID)
	if newOwnerID == "" || newOwnerID == actor {
		return store.Workspace{}, invalid("Choose another member to transfer ownership to")
	}
	if !rbac.IsWorkspaceMember(ws, newOwnerID) {
		return store.Workspace{}, notFound("User is not a member of this workspace")
	}

	for i := range ws.Members {
		switch {
		case ws.Members[i].UserID == newOwnerID:
			ws.Members[i].Role = string(rbac.RoleOwner)
		case ws.Members[i].UserID == actor, ws.Members[i].Role == string(rbac.RoleOwner):
			ws.Members[i].Role = string(rbac.RoleAdmin)
		}
	}
	ws.Owner = newOwnerID
	ws.UpdatedAt = s.now().UTC()
	if err := s.store.SaveWorkspace(ctx, ws); err != nil {
		return store.Workspace{}, err
	}

	var fx effects
	fx.record(actor, activity.TransferredOwnership, activity.ResourceWorkspace, ws.ID, "transferred ownership of workspace "+ws.Name)
	s.flush(ctx, &fx)
	return ws, nil
}

// RemoveWorkspaceMember drops a member from the workspace and from every
// project in it. The owner cannot be removed.
func (s *Service) RemoveWorkspaceMember(ctx context.Context, actor, workspaceID, targetID string) (store.Workspace, error) {
	ws, err := s.loadWorkspace(ctx, workspaceID)
	if err != nil {
		return store.Workspace{}, err
	}
	if !rbac.IsWorkspaceOwnerOrAdmin(ws, actor) {
		return store.Workspace{}, forbidden("Only the workspace owner or an admin can remove members")
	}
	if rbac.IsWorkspaceOwner(ws, targetID) {
		return store.Workspace{}, forbidden("Cannot remove the workspace owner")
	}
	if !rbac.IsWorkspaceMember(ws, targetID) {
		return store.Workspace{}, notFound("User is not a member of this workspace")
	}

	members := make([]store.WorkspaceMember, 0, len(ws.Members)-1)
	for _, member := range ws.Members {
		if member.UserID != targetID {
			members = append(members, member)
		}
	}
	ws.Members = members
	ws.UpdatedAt = s.now().UTC()
	if err := s.store.SaveWorkspace(ctx, ws); err != nil {
		return store.Workspace{}, err
	}
	if err := s.removeFromProjects(ctx, ws.ID, targetID); err != nil {
		s.log.WithError(err).WithField("workspace_id", ws.ID).Warn("remove member from projects")
	}

	var fx effects
	fx.record(actor, activity.RemovedMember, activity.ResourceWorkspace, ws.ID, "removed a member from workspace "+ws.Name)
	s.flush(ctx, &fx)
	return ws, nil
}

func (s *Service) removeFromProjects(ctx context.Context, workspaceID, userID string) error {
	projects, err := s.store.ListProjectsByWorkspace(ctx, workspaceID, true)
	if err != nil {
		return err
	}
	for _, project := range projects {
		if !rbac.IsProjectMember(project, userID) {
			continue
		}
		kept := make([]store.ProjectMember, 0, len(project.Members))
		for _, member := range project.Members {
			if member.UserID != userID {
				kept = append(kept, member)
			}
		}
		project.Members = kept
		if err := s.store.SaveProject(ctx, project); err != nil {
			return err
		}
	}
	return nil
}
