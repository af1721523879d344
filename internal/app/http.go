package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"taskflow/api/internal/auth"
	"taskflow/api/internal/realtime"
)

type HTTPServer struct {
	service    *Service
	verifier   *auth.Verifier
	hub        *realtime.Hub
	corsOrigin string
	log        logrus.FieldLogger
}

func NewHTTPServer(service *Service, verifier *auth.Verifier, hub *realtime.Hub, corsOrigin string, log logrus.FieldLogger) *HTTPServer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &HTTPServer{service: service, verifier: verifier, hub: hub, corsOrigin: corsOrigin, log: log}
}

// authedHandler receives the verified caller.
type authedHandler func(w http.ResponseWriter, r *http.Request, principal auth.Principal)

func (s *HTTPServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/realtime", s.handleRealtime).Methods(http.MethodGet)

	api.Handle("/workspaces", s.authed(s.handleCreateWorkspace)).Methods(http.MethodPost)
	api.Handle("/workspaces", s.authed(s.handleListWorkspaces)).Methods(http.MethodGet)
	api.Handle("/workspaces/accept-invite-token", s.authed(s.handleAcceptInviteToken)).Methods(http.MethodPost)
	api.Handle("/workspaces/{workspaceId}", s.authed(s.handleGetWorkspace)).Methods(http.MethodGet)
	api.Handle("/workspaces/{workspaceId}", s.authed(s.handleUpdateWorkspace)).Methods(http.MethodPut)
	api.Handle("/workspaces/{workspaceId}", s.authed(s.handleDeleteWorkspace)).Methods(http.MethodDelete)
	api.Handle("/workspaces/{workspaceId}/projects", s.authed(s.handleWorkspaceProjects)).Methods(http.MethodGet)
	api.Handle("/workspaces/{workspaceId}/projects", s.authed(s.handleCreateProject)).Methods(http.MethodPost)
	api.Handle("/workspaces/{workspaceId}/stats", s.authed(s.handleWorkspaceStats)).Methods(http.MethodGet)
	api.Handle("/workspaces/{workspaceId}/archived-tasks", s.authed(s.handleArchivedTasks)).Methods(http.MethodGet)
	api.Handle("/workspaces/{workspaceId}/search", s.authed(s.handleSearchTasks)).Methods(http.MethodGet)
	api.Handle("/workspaces/{workspaceId}/invite-member", s.authed(s.handleInviteMember)).Methods(http.MethodPost)
	api.Handle("/workspaces/{workspaceId}/accept-generate-invite", s.authed(s.handleAcceptGenerateInvite)).Methods(http.MethodPost)
	api.Handle("/workspaces/{workspaceId}/transfer-ownership", s.authed(s.handleTransferOwnership)).Methods(http.MethodPost)
	api.Handle("/workspaces/{workspaceId}/remove-member", s.authed(s.handleRemoveMember)).Methods(http.MethodPost)

	api.Handle("/projects/{projectId}", s.authed(s.handleGetProject)).Methods(http.MethodGet)
	api.Handle("/projects/{projectId}", s.authed(s.handleDeleteProject)).Methods(http.MethodDelete)
	api.Handle("/projects/{projectId}/tasks", s.authed(s.handleProjectTasks)).Methods(http.MethodGet)
	api.Handle("/projects/{projectId}/tasks", s.authed(s.handleCreateTask)).Methods(http.MethodPost)

	api.Handle("/tasks/my-tasks", s.authed(s.handleMyTasks)).Methods(http.MethodGet)
	api.Handle("/tasks/{taskId}", s.authed(s.handleGetTask)).Methods(http.MethodGet)
	api.Handle("/tasks/{taskId}", s.authed(s.handleDeleteTask)).Methods(http.MethodDelete)
	api.Handle("/tasks/{taskId}/title", s.authed(s.handleUpdateTitle)).Methods(http.MethodPut)
	api.Handle("/tasks/{taskId}/description", s.authed(s.handleUpdateDescription)).Methods(http.MethodPut)
	api.Handle("/tasks/{taskId}/status", s.authed(s.handleUpdateStatus)).Methods(http.MethodPut)
	api.Handle("/tasks/{taskId}/priority", s.authed(s.handleUpdatePriority)).Methods(http.MethodPut)
	api.Handle("/tasks/{taskId}/assignees", s.authed(s.handleUpdateAssignees)).Methods(http.MethodPut)
	api.Handle("/tasks/{taskId}/subtasks", s.authed(s.handleAddSubTask)).Methods(http.MethodPost)
	api.Handle("/tasks/{taskId}/subtasks/{subTaskId}", s.authed(s.handleUpdateSubTask)).Methods(http.MethodPut)
	api.Handle("/tasks/{taskId}/comments", s.authed(s.handleListComments)).Methods(http.MethodGet)
	api.Handle("/tasks/{taskId}/comments", s.authed(s.handleAddComment)).Methods(http.MethodPost)
	api.Handle("/tasks/{taskId}/activity", s.authed(s.handleTaskActivity)).Methods(http.MethodGet)
	api.Handle("/tasks/{taskId}/watch", s.authed(s.handleWatchTask)).Methods(http.MethodPost)
	api.Handle("/tasks/{taskId}/archive", s.authed(s.handleArchiveTask)).Methods(http.MethodPost)
	api.Handle("/tasks/{taskId}/attachments", s.authed(s.handleAddAttachment)).Methods(http.MethodPost)

	return s.withMiddleware(router)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{}
	for name, err := range s.service.Ready(ctx) {
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// handleRealtime upgrades to a WebSocket. Browsers cannot set headers on the
// upgrade request, so the token may also come from the query string.
func (s *HTTPServer) handleRealtime(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, string(KindUnavailable), "Realtime is not available")
		return
	}
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		token = bearerToken(r)
	}
	principal, ok := s.verify(w, token)
	if !ok {
		return
	}
	s.hub.ServeWS(w, r, principal.UserID)
}

func (s *HTTPServer) authed(next authedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := s.verify(w, bearerToken(r))
		if !ok {
			return
		}
		next(w, r, principal)
	})
}

func (s *HTTPServer) verify(w http.ResponseWriter, token string) (auth.Principal, bool) {
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return auth.Principal{}, false
	}
	principal, err := s.verifier.Parse(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return auth.Principal{}, false
	}
	return principal, true
}

// fail writes err as a JSON error body. Unexpected errors are logged and
// reported without detail.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapError(err)
	if status == http.StatusInternalServerError {
		s.log.WithError(err).WithFields(logrus.Fields{
			"request_id": requestIDFrom(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		}).Error("request failed")
	}
	writeError(w, status, code, message)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		s.log.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      writer.status,
			"duration_ms": time.Since(started).Milliseconds(),
		}).Info("request")
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the WebSocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
	})
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return invalid("Invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, code, message string) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message
	}
	return http.StatusInternalServerError, string(KindInternal), "Internal server error"
}
