package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"taskflow/api/internal/activity"
	"taskflow/api/internal/config"
	"taskflow/api/internal/invite"
	"taskflow/api/internal/rbac"
	"taskflow/api/internal/realtime"
	"taskflow/api/internal/search"
	"taskflow/api/internal/store"
)

// DataStore is the persistence the service needs. store.PostgresStore
// implements it.
type DataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	ListUsersByIDs(context.Context, []string) ([]store.User, error)

	CreateWorkspace(context.Context, store.Workspace) error
	GetWorkspace(context.Context, string) (store.Workspace, error)
	ListWorkspacesForUser(context.Context, string) ([]store.Workspace, error)
	SaveWorkspace(context.Context, store.Workspace) error
	JoinWorkspace(context.Context, store.Workspace, string) error
	DeleteWorkspace(context.Context, string) ([]string, error)
	WorkspaceStats(context.Context, string) (store.WorkspaceStats, error)

	CreateProject(context.Context, store.Project) error
	GetProject(context.Context, string) (store.Project, error)
	ListProjectsByWorkspace(context.Context, string, bool) ([]store.Project, error)
	SaveProject(context.Context, store.Project) error
	DeleteProject(context.Context, string, string) ([]string, error)

	CreateTask(context.Context, store.Task) error
	GetTask(context.Context, string) (store.Task, error)
	SaveTask(context.Context, store.Task) error
	DeleteTask(context.Context, string, string) error
	ListTasksByProject(context.Context, string, bool) ([]store.Task, error)
	ListTasksByAssignee(context.Context, string) ([]store.Task, error)
	ListArchivedTasksByWorkspace(context.Context, string) ([]store.Task, error)

	CreateComment(context.Context, store.Comment) error
	ListCommentsByTask(context.Context, string) ([]store.Comment, error)

	GetInvite(context.Context, string, string) (store.WorkspaceInvite, error)
	CreateInvite(context.Context, store.WorkspaceInvite) error
	DeleteInvite(context.Context, string) error

	InsertActivity(context.Context, store.ActivityEntry) error
	ListActivityByResource(context.Context, string, int) ([]store.ActivityEntry, error)

	Ping(ctx context.Context) error
}

// SearchIndex is the task search backend.
type SearchIndex interface {
	IndexTask(search.TaskRecord)
	DeleteTasks([]string)
	Search(search.Query) search.Response
}

// AttachmentStore hands out upload URLs for task attachments.
type AttachmentStore interface {
	PresignUpload(ctx context.Context, key string) (string, error)
	ObjectURL(key string) string
}

// Mailer delivers invitation emails.
type Mailer interface {
	IsConfigured() bool
	SendInvitationEmail(to, inviterName, workspaceName, inviteURL string) error
}

// Dependencies are the collaborators wired in by the process entry point.
// Only Store and Invites are required.
type Dependencies struct {
	Store    DataStore
	Activity activity.Sink
	Notifier realtime.Notifier
	Search   SearchIndex
	Blobs    AttachmentStore
	Mailer   Mailer
	Invites  *invite.Issuer
	Logger   logrus.FieldLogger
	// Checks are extra readiness probes keyed by component name.
	Checks map[string]func(context.Context) error
}

type Service struct {
	cfg      config.Config
	store    DataStore
	recorder *activity.Recorder
	notifier realtime.Notifier
	search   SearchIndex
	blobs    AttachmentStore
	mailer   Mailer
	invites  *invite.Issuer
	log      logrus.FieldLogger
	checks   map[string]func(context.Context) error
	now      func() time.Time

	// Side effects run one batch at a time, in the order mutations flushed
	// them, on a single worker.
	queueMu sync.Mutex
	queue   chan queuedEffects
	closed  bool
	pending sync.WaitGroup
	worker  sync.WaitGroup
}

func New(cfg config.Config, deps Dependencies) *Service {
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	sink := deps.Activity
	if sink == nil {
		sink = deps.Store
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}
	invites := deps.Invites
	if invites == nil {
		invites = invite.NewIssuer(cfg.InviteSecret, cfg.InviteTTL)
	}
	s := &Service{
		cfg:      cfg,
		store:    deps.Store,
		recorder: activity.NewRecorder(sink, log),
		notifier: notifier,
		search:   deps.Search,
		blobs:    deps.Blobs,
		mailer:   deps.Mailer,
		invites:  invites,
		log:      log,
		checks:   deps.Checks,
		now:      time.Now,
		queue:    make(chan queuedEffects, effectQueueSize),
	}
	s.worker.Add(1)
	go s.runEffectQueue()
	return s
}

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, string, string, any) error { return nil }

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Ready runs every readiness probe and returns the failures by name.
func (s *Service) Ready(ctx context.Context) map[string]error {
	results := map[string]error{"database": s.store.Ping(ctx)}
	for name, check := range s.checks {
		results[name] = check(ctx)
	}
	return results
}

// Drain blocks until every side effect queued so far has finished.
func (s *Service) Drain() {
	s.pending.Wait()
}

// Close drains the effect queue and stops its worker. Effects flushed after
// Close run inline.
func (s *Service) Close() {
	s.queueMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.queueMu.Unlock()
	s.worker.Wait()
}

func (s *Service) loadWorkspace(ctx context.Context, workspaceID string) (store.Workspace, error) {
	ws, err := s.store.GetWorkspace(ctx, workspaceID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Workspace{}, notFound("Workspace not found")
	}
	return ws, err
}

func (s *Service) loadProject(ctx context.Context, projectID string) (store.Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Project{}, notFound("Project not found")
	}
	return project, err
}

func (s *Service) loadTask(ctx context.Context, taskID string) (store.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Task{}, notFound("Task not found")
	}
	return task, err
}

func (s *Service) memberWorkspace(ctx context.Context, actor, workspaceID string) (store.Workspace, error) {
	ws, err := s.loadWorkspace(ctx, workspaceID)
	if err != nil {
		return store.Workspace{}, err
	}
	if !rbac.IsWorkspaceMember(ws, actor) {
		return store.Workspace{}, forbidden("You are not a member of this workspace")
	}
	return ws, nil
}

func (s *Service) memberProject(ctx context.Context, actor, projectID string) (store.Project, error) {
	project, err := s.loadProject(ctx, projectID)
	if err != nil {
		return store.Project{}, err
	}
	if !rbac.IsProjectMember(project, actor) {
		return store.Project{}, forbidden("You are not a member of this project")
	}
	return project, nil
}

// memberTask loads a task and its project and checks project membership.
func (s *Service) memberTask(ctx context.Context, actor, taskID string) (store.Task, store.Project, error) {
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return store.Task{}, store.Project{}, err
	}
	project, err := s.memberProject(ctx, actor, task.ProjectID)
	if err != nil {
		return store.Task{}, store.Project{}, err
	}
	return task, project, nil
}

// AuthorizeTaskSubscription gates realtime joins to project members.
func (s *Service) AuthorizeTaskSubscription(ctx context.Context, userID, taskID string) error {
	_, _, err := s.memberTask(ctx, userID, taskID)
	return err
}
