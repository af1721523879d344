package app

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"taskflow/api/internal/config"
	"taskflow/api/internal/invite"
	"taskflow/api/internal/logging"
	"taskflow/api/internal/search"
	"taskflow/api/internal/store"
)

// memStore is an in-memory DataStore with the same linking and cascade
// behaviour as the Postgres store. Records are deep-copied on the way in and
// out so callers cannot mutate stored state.
type memStore struct {
	mu         sync.Mutex
	users      map[string]store.User
	workspaces map[string]store.Workspace
	projects   map[string]store.Project
	tasks      map[string]store.Task
	comments   map[string]store.Comment
	invites    map[string]store.WorkspaceInvite
	activity   []store.ActivityEntry

	pingFn           func(context.Context) error
	insertActivityFn func(context.Context, store.ActivityEntry) error
	// beforeCreateInvite runs ahead of the insert, outside the lock.
	beforeCreateInvite func(store.WorkspaceInvite)
}

func newMemStore(users ...store.User) *memStore {
	m := &memStore{
		users:      make(map[string]store.User),
		workspaces: make(map[string]store.Workspace),
		projects:   make(map[string]store.Project),
		tasks:      make(map[string]store.Task),
		comments:   make(map[string]store.Comment),
		invites:    make(map[string]store.WorkspaceInvite),
	}
	for _, user := range users {
		m.users[user.ID] = user
	}
	return m
}

func clone[T any](value T) T {
	data, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return out
}

func (m *memStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (m *memStore) ListUsersByIDs(_ context.Context, ids []string) ([]store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]store.User, 0, len(ids))
	for _, id := range ids {
		if user, ok := m.users[id]; ok {
			users = append(users, user)
		}
	}
	return users, nil
}

func (m *memStore) CreateWorkspace(_ context.Context, ws store.Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workspaces[ws.ID] = clone(ws)
	return nil
}

func (m *memStore) GetWorkspace(_ context.Context, id string) (store.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[id]
	if !ok {
		return store.Workspace{}, store.ErrNotFound
	}
	return clone(ws), nil
}

func (m *memStore) ListWorkspacesForUser(_ context.Context, userID string) ([]store.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Workspace, 0)
	for _, ws := range m.workspaces {
		for _, member := range ws.Members {
			if member.UserID == userID {
				out = append(out, clone(ws))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) SaveWorkspace(_ context.Context, ws store.Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workspaces[ws.ID]; !ok {
		return store.ErrNotFound
	}
	m.workspaces[ws.ID] = clone(ws)
	return nil
}

func (m *memStore) JoinWorkspace(_ context.Context, ws store.Workspace, inviteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workspaces[ws.ID]; !ok {
		return store.ErrNotFound
	}
	m.workspaces[ws.ID] = clone(ws)
	delete(m.invites, inviteID)
	return nil
}

func (m *memStore) DeleteWorkspace(_ context.Context, workspaceID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var taskIDs []string
	for id, project := range m.projects {
		if project.WorkspaceID != workspaceID {
			continue
		}
		taskIDs = append(taskIDs, m.deleteProjectTasksLocked(id)...)
		delete(m.projects, id)
	}
	for id, inv := range m.invites {
		if inv.WorkspaceID == workspaceID {
			delete(m.invites, id)
		}
	}
	delete(m.workspaces, workspaceID)
	return taskIDs, nil
}

func (m *memStore) WorkspaceStats(_ context.Context, workspaceID string) (store.WorkspaceStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats store.WorkspaceStats
	for _, project := range m.projects {
		if project.WorkspaceID != workspaceID || project.IsArchived {
			continue
		}
		stats.TotalProjects++
		if project.Status == "IN PROGRESS" {
			stats.TotalProjectsInProgress++
		}
		for _, task := range m.tasks {
			if task.ProjectID != project.ID || task.IsArchived {
				continue
			}
			stats.TotalTasks++
			switch task.Status {
			case "Done":
				stats.TotalTasksCompleted++
			case "To Do":
				stats.TotalTasksToDo++
			case "In Progress":
				stats.TotalTasksInProgress++
			}
		}
	}
	return stats, nil
}

func (m *memStore) CreateProject(_ context.Context, project store.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[project.WorkspaceID]
	if !ok {
		return store.ErrNotFound
	}
	ws.ProjectIDs = append(ws.ProjectIDs, project.ID)
	m.workspaces[ws.ID] = ws
	m.projects[project.ID] = clone(project)
	return nil
}

func (m *memStore) GetProject(_ context.Context, id string) (store.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	project, ok := m.projects[id]
	if !ok {
		return store.Project{}, store.ErrNotFound
	}
	return clone(project), nil
}

func (m *memStore) ListProjectsByWorkspace(_ context.Context, workspaceID string, includeArchived bool) ([]store.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Project, 0)
	for _, project := range m.projects {
		if project.WorkspaceID == workspaceID && (includeArchived || !project.IsArchived) {
			out = append(out, clone(project))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) SaveProject(_ context.Context, project store.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[project.ID]; !ok {
		return store.ErrNotFound
	}
	m.projects[project.ID] = clone(project)
	return nil
}

func (m *memStore) DeleteProject(_ context.Context, projectID, workspaceID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws, ok := m.workspaces[workspaceID]; ok {
		ws.ProjectIDs = without(ws.ProjectIDs, projectID)
		m.workspaces[workspaceID] = ws
	}
	taskIDs := m.deleteProjectTasksLocked(projectID)
	delete(m.projects, projectID)
	return taskIDs, nil
}

func (m *memStore) deleteProjectTasksLocked(projectID string) []string {
	var taskIDs []string
	for id, task := range m.tasks {
		if task.ProjectID != projectID {
			continue
		}
		taskIDs = append(taskIDs, id)
		m.deleteTaskLocked(id)
	}
	return taskIDs
}

func (m *memStore) deleteTaskLocked(taskID string) {
	for id, comment := range m.comments {
		if comment.TaskID == taskID {
			delete(m.comments, id)
		}
	}
	delete(m.tasks, taskID)
}

func (m *memStore) CreateTask(_ context.Context, task store.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	project, ok := m.projects[task.ProjectID]
	if !ok {
		return store.ErrNotFound
	}
	project.TaskIDs = append(project.TaskIDs, task.ID)
	m.projects[project.ID] = project
	m.tasks[task.ID] = clone(task)
	return nil
}

func (m *memStore) GetTask(_ context.Context, id string) (store.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return store.Task{}, store.ErrNotFound
	}
	return clone(task), nil
}

func (m *memStore) SaveTask(_ context.Context, task store.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; !ok {
		return store.ErrNotFound
	}
	m.tasks[task.ID] = clone(task)
	return nil
}

func (m *memStore) DeleteTask(_ context.Context, taskID, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if project, ok := m.projects[projectID]; ok {
		project.TaskIDs = without(project.TaskIDs, taskID)
		m.projects[projectID] = project
	}
	m.deleteTaskLocked(taskID)
	return nil
}

func (m *memStore) ListTasksByProject(_ context.Context, projectID string, includeArchived bool) ([]store.Task, error) {
	return m.filterTasks(func(task store.Task) bool {
		return task.ProjectID == projectID && (includeArchived || !task.IsArchived)
	}), nil
}

func (m *memStore) ListTasksByAssignee(_ context.Context, userID string) ([]store.Task, error) {
	return m.filterTasks(func(task store.Task) bool {
		return !task.IsArchived && contains(task.Assignees, userID)
	}), nil
}

func (m *memStore) ListArchivedTasksByWorkspace(_ context.Context, workspaceID string) ([]store.Task, error) {
	m.mu.Lock()
	inWorkspace := make(map[string]bool)
	for id, project := range m.projects {
		inWorkspace[id] = project.WorkspaceID == workspaceID
	}
	m.mu.Unlock()
	return m.filterTasks(func(task store.Task) bool {
		return task.IsArchived && inWorkspace[task.ProjectID]
	}), nil
}

func (m *memStore) filterTasks(keep func(store.Task) bool) []store.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Task, 0)
	for _, task := range m.tasks {
		if keep(task) {
			out = append(out, clone(task))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memStore) CreateComment(_ context.Context, comment store.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[comment.TaskID]
	if !ok {
		return store.ErrNotFound
	}
	task.CommentIDs = append(task.CommentIDs, comment.ID)
	m.tasks[task.ID] = task
	m.comments[comment.ID] = clone(comment)
	return nil
}

func (m *memStore) ListCommentsByTask(_ context.Context, taskID string) ([]store.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Comment, 0)
	for _, comment := range m.comments {
		if comment.TaskID == taskID {
			out = append(out, clone(comment))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) GetInvite(_ context.Context, workspaceID, userID string) (store.WorkspaceInvite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invites {
		if inv.WorkspaceID == workspaceID && inv.UserID == userID {
			return inv, nil
		}
	}
	return store.WorkspaceInvite{}, store.ErrNotFound
}

func (m *memStore) CreateInvite(_ context.Context, inv store.WorkspaceInvite) error {
	if hook := m.beforeCreateInvite; hook != nil {
		hook(inv)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.invites {
		if existing.WorkspaceID == inv.WorkspaceID && existing.UserID == inv.UserID {
			return store.ErrConflict
		}
	}
	m.invites[inv.ID] = inv
	return nil
}

func (m *memStore) DeleteInvite(_ context.Context, inviteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.invites, inviteID)
	return nil
}

func (m *memStore) InsertActivity(ctx context.Context, entry store.ActivityEntry) error {
	if m.insertActivityFn != nil {
		if err := m.insertActivityFn(ctx, entry); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = append(m.activity, clone(entry))
	return nil
}

func (m *memStore) ListActivityByResource(_ context.Context, resourceID string, limit int) ([]store.ActivityEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.ActivityEntry, 0)
	for i := len(m.activity) - 1; i >= 0; i-- {
		if m.activity[i].ResourceID == resourceID {
			out = append(out, clone(m.activity[i]))
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) Ping(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

func (m *memStore) activityFor(resourceID string) []store.ActivityEntry {
	entries, _ := m.ListActivityByResource(context.Background(), resourceID, 0)
	return entries
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

type publishedEvent struct {
	topic   string
	event   string
	payload any
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (f *fakeNotifier) Publish(_ context.Context, topic, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{topic: topic, event: event, payload: payload})
	return f.err
}

func (f *fakeNotifier) published() []publishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedEvent(nil), f.events...)
}

type fakeSearch struct {
	mu        sync.Mutex
	indexed   map[string]search.TaskRecord
	deleted   []string
	lastQuery search.Query
}

func (f *fakeSearch) IndexTask(record search.TaskRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexed == nil {
		f.indexed = make(map[string]search.TaskRecord)
	}
	f.indexed[record.ID] = record
}

func (f *fakeSearch) isIndexed(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.indexed[id]
	return ok
}

func (f *fakeSearch) query() search.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery
}

func (f *fakeSearch) DeleteTasks(ids []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ids...)
	for _, id := range ids {
		delete(f.indexed, id)
	}
}

func (f *fakeSearch) Search(q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	results := []search.Result{}
	for _, record := range f.indexed {
		if record.WorkspaceID == q.WorkspaceID {
			results = append(results, search.Result{ID: record.ID, Title: record.Title, WorkspaceID: record.WorkspaceID})
		}
	}
	return search.Response{Results: results, Total: len(results), Query: q.Text}
}

type fakeBlobs struct {
	err error
}

func (f fakeBlobs) PresignUpload(_ context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://blobs.test/upload/" + key + "?sig=1", nil
}

func (f fakeBlobs) ObjectURL(key string) string {
	return "https://blobs.test/" + key
}

type sentInvite struct {
	to, inviter, workspace, link string
}

type fakeMailer struct {
	mu         sync.Mutex
	configured bool
	sent       []sentInvite
}

func (f *fakeMailer) IsConfigured() bool { return f.configured }

func (f *fakeMailer) SendInvitationEmail(to, inviterName, workspaceName, inviteURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentInvite{to: to, inviter: inviterName, workspace: workspaceName, link: inviteURL})
	return nil
}

func (f *fakeMailer) messages() []sentInvite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentInvite(nil), f.sent...)
}

type testEnv struct {
	svc      *Service
	store    *memStore
	notifier *fakeNotifier
	search   *fakeSearch
	mailer   *fakeMailer
}

var testUsers = []store.User{
	{ID: "usr_alice", Name: "Alice", Email: "alice@example.com"},
	{ID: "usr_bob", Name: "Bob", Email: "bob@example.com"},
	{ID: "usr_carol", Name: "Carol", Email: "carol@example.com"},
	{ID: "usr_dave", Name: "Dave", Email: "dave@example.com"},
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    newMemStore(testUsers...),
		notifier: &fakeNotifier{},
		search:   &fakeSearch{},
		mailer:   &fakeMailer{configured: true},
	}
	cfg := config.Config{FrontendURL: "http://app.test", InviteSecret: "invite-secret", InviteTTL: invite.DefaultTTL}
	env.svc = New(cfg, Dependencies{
		Store:    env.store,
		Notifier: env.notifier,
		Search:   env.search,
		Blobs:    fakeBlobs{},
		Mailer:   env.mailer,
		Invites:  invite.NewIssuer(cfg.InviteSecret, cfg.InviteTTL),
		Logger:   logging.Discard(),
	})
	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	env.svc.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	t.Cleanup(env.svc.Close)
	return env
}
