package app

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"taskflow/api/internal/auth"
)

func (s *HTTPServer) handleCreateWorkspace(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	var body CreateWorkspaceInput
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	ws, err := s.service.CreateWorkspace(r.Context(), principal.UserID, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ws)
}

func (s *HTTPServer) handleListWorkspaces(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	workspaces, err := s.service.ListWorkspaces(r.Context(), principal.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, workspaces)
}

func (s *HTTPServer) handleGetWorkspace(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	ws, err := s.service.GetWorkspace(r.Context(), principal.UserID, mux.Vars(r)["workspaceId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *HTTPServer) handleUpdateWorkspace(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	var body UpdateWorkspaceInput
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	ws, err := s.service.UpdateWorkspace(r.Context(), principal.UserID, mux.Vars(r)["workspaceId"], body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *HTTPServer) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	if err := s.service.DeleteWorkspace(r.Context(), principal.UserID, mux.Vars(r)["workspaceId"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Workspace deleted successfully"})
}

func (s *HTTPServer) handleWorkspaceProjects(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	projects, err := s.service.GetWorkspaceProjects(r.Context(), principal.UserID, mux.Vars(r)["workspaceId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *HTTPServer) handleWorkspaceStats(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	stats, err := s.service.GetWorkspaceStats(r.Context(), principal.UserID, mux.Vars(r)["workspaceId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (s *HTTPServer) handleArchivedTasks(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	tasks, err := s.service.ListArchivedTasks(r.Context(), principal.UserID, mux.Vars(r)["workspaceId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *HTTPServer) handleSearchTasks(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	query := r.URL.Query()
	limit, err := queryInt(query, "limit", defaultSearchLimit)
	if err == nil && limit < 1 {
		err = invalid("limit must be a positive integer")
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	offset, err := queryInt(query, "offset", 0)
	if err == nil && offset < 0 {
		err = invalid("offset must not be negative")
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	response, err := s.service.SearchTasks(r.Context(), principal.UserID, mux.Vars(r)["workspaceId"], query.Get("q"), limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleInviteMember(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	var body struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	result, err := s.service.InviteUserToWorkspace(r.Context(), principal.UserID, mux.Vars(r)["workspaceId"], body.Email, body.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Invitation sent", "invite": result})
}

func (s *HTTPServer) handleAcceptInviteToken(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	ws, err := s.service.AcceptInviteByToken(r.Context(), principal.UserID, body.Token)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Invitation accepted successfully", "workspace": ws})
}

func (s *HTTPServer) handleAcceptGenerateInvite(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	ws, err := s.service.AcceptGenerateInvite(r.Context(), principal.UserID, mux.Vars(r)["workspaceId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Invitation accepted successfully", "workspace": ws})
}

func (s *HTTPServer) handleTransferOwnership(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	var body struct {
		NewOwnerID string `json:"newOwnerId"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	ws, err := s.service.TransferWorkspaceOwnership(r.Context(), principal.UserID, mux.Vars(r)["workspaceId"], body.NewOwnerID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *HTTPServer) handleRemoveMember(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	var body struct {
		UserID string `json:"userId"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	ws, err := s.service.RemoveWorkspaceMember(r.Context(), principal.UserID, mux.Vars(r)["workspaceId"], body.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func queryInt(query url.Values, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(query.Get(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid(name + " must be an integer")
	}
	return value, nil
}
