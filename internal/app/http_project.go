package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"taskflow/api/internal/auth"
)

func (s *HTTPServer) handleCreateProject(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	var body CreateProjectInput
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	project, err := s.service.CreateProject(r.Context(), principal.UserID, mux.Vars(r)["workspaceId"], body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *HTTPServer) handleGetProject(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	project, err := s.service.GetProject(r.Context(), principal.UserID, mux.Vars(r)["projectId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *HTTPServer) handleDeleteProject(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	if err := s.service.DeleteProject(r.Context(), principal.UserID, mux.Vars(r)["projectId"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Project deleted successfully"})
}

func (s *HTTPServer) handleProjectTasks(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	tasks, err := s.service.ListProjectTasks(r.Context(), principal.UserID, mux.Vars(r)["projectId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *HTTPServer) handleCreateTask(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	var body CreateTaskInput
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	task, err := s.service.CreateTask(r.Context(), principal.UserID, mux.Vars(r)["projectId"], body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}
