package app

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"taskflow/api/internal/auth"
	"taskflow/api/internal/store"
)

func (s *HTTPServer) handleMyTasks(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	tasks, err := s.service.ListMyTasks(r.Context(), principal.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *HTTPServer) handleGetTask(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	task, err := s.service.GetTask(r.Context(), principal.UserID, mux.Vars(r)["taskId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *HTTPServer) handleDeleteTask(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	if err := s.service.DeleteTask(r.Context(), principal.UserID, mux.Vars(r)["taskId"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Task deleted successfully"})
}

type taskFieldUpdate func(ctx context.Context, actor, taskID, value string) (store.Task, error)

// updateField decodes {"<field>": "..."} and applies it through update.
func (s *HTTPServer) updateField(w http.ResponseWriter, r *http.Request, principal auth.Principal, field string, update taskFieldUpdate) {
	var body map[string]string
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	task, err := update(r.Context(), principal.UserID, mux.Vars(r)["taskId"], body[field])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *HTTPServer) handleUpdateTitle(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	s.updateField(w, r, principal, "title", s.service.UpdateTaskTitle)
}

func (s *HTTPServer) handleUpdateDescription(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	s.updateField(w, r, principal, "description", s.service.UpdateTaskDescription)
}

func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	s.updateField(w, r, principal, "status", s.service.UpdateTaskStatus)
}

func (s *HTTPServer) handleUpdatePriority(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	s.updateField(w, r, principal, "priority", s.service.UpdateTaskPriority)
}

func (s *HTTPServer) handleUpdateAssignees(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	var body struct {
		Assignees []string `json:"assignees"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	task, err := s.service.UpdateTaskAssignees(r.Context(), principal.UserID, mux.Vars(r)["taskId"], body.Assignees)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *HTTPServer) handleAddSubTask(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	s.updateField(w, r, principal, "title", s.service.AddSubTask)
}

func (s *HTTPServer) handleUpdateSubTask(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	var body struct {
		Completed bool `json:"completed"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	vars := mux.Vars(r)
	task, err := s.service.UpdateSubTask(r.Context(), principal.UserID, vars["taskId"], vars["subTaskId"], body.Completed)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *HTTPServer) handleListComments(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	comments, err := s.service.ListTaskComments(r.Context(), principal.UserID, mux.Vars(r)["taskId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (s *HTTPServer) handleAddComment(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	comment, err := s.service.AddComment(r.Context(), principal.UserID, mux.Vars(r)["taskId"], body.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (s *HTTPServer) handleTaskActivity(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	entries, err := s.service.ListTaskActivity(r.Context(), principal.UserID, mux.Vars(r)["taskId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *HTTPServer) handleWatchTask(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	task, err := s.service.WatchTask(r.Context(), principal.UserID, mux.Vars(r)["taskId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *HTTPServer) handleArchiveTask(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	task, err := s.service.ArchiveTask(r.Context(), principal.UserID, mux.Vars(r)["taskId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *HTTPServer) handleAddAttachment(w http.ResponseWriter, r *http.Request, principal auth.Principal) {
	var body AttachmentInput
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	upload, err := s.service.AddTaskAttachment(r.Context(), principal.UserID, mux.Vars(r)["taskId"], body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, upload)
}
