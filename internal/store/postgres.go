package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Users

const userColumns = `id, name, email, profile_picture`

func scanUser(row rowScanner) (User, error) {
	var user User
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &user.ProfilePicture); err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
	if err != nil {
		return User{}, notFound(err, "get user")
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, email))
	if err != nil {
		return User{}, notFound(err, "get user by email")
	}
	return user, nil
}

func (s *PostgresStore) ListUsersByIDs(ctx context.Context, userIDs []string) ([]User, error) {
	if len(userIDs) == 0 {
		return []User{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0, len(userIDs))
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Workspaces

const workspaceColumns = `id, name, color, description, owner_id, members, project_ids, created_at, updated_at`

func scanWorkspace(row rowScanner) (Workspace, error) {
	var (
		ws         Workspace
		members    []byte
		projectIDs []byte
	)
	if err := row.Scan(&ws.ID, &ws.Name, &ws.Color, &ws.Description, &ws.Owner, &members, &projectIDs, &ws.CreatedAt, &ws.UpdatedAt); err != nil {
		return Workspace{}, err
	}
	if err := fromJSON(members, &ws.Members); err != nil {
		return Workspace{}, fmt.Errorf("decode workspace members: %w", err)
	}
	if err := fromJSON(projectIDs, &ws.ProjectIDs); err != nil {
		return Workspace{}, fmt.Errorf("decode workspace projects: %w", err)
	}
	return ws, nil
}

func (s *PostgresStore) CreateWorkspace(ctx context.Context, ws Workspace) error {
	members, err := toJSON(ws.Members)
	if err != nil {
		return err
	}
	projectIDs, err := toJSON(ws.ProjectIDs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, name, color, description, owner_id, members, project_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $8)
	`, ws.ID, ws.Name, ws.Color, ws.Description, ws.Owner, members, projectIDs, ws.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetWorkspace(ctx context.Context, workspaceID string) (Workspace, error) {
	ws, err := scanWorkspace(s.db.QueryRowContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE id=$1`, workspaceID))
	if err != nil {
		return Workspace{}, notFound(err, "get workspace")
	}
	return ws, nil
}

func (s *PostgresStore) ListWorkspacesForUser(ctx context.Context, userID string) ([]Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+workspaceColumns+`
		FROM workspaces
		WHERE members @> jsonb_build_array(jsonb_build_object('user', $1::text))
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	workspaces := make([]Workspace, 0)
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		workspaces = append(workspaces, ws)
	}
	return workspaces, rows.Err()
}

// SaveWorkspace overwrites the mutable fields of a workspace.
func (s *PostgresStore) SaveWorkspace(ctx context.Context, ws Workspace) error {
	return saveWorkspace(ctx, s.db, ws)
}

func saveWorkspace(ctx context.Context, q querier, ws Workspace) error {
	members, err := toJSON(ws.Members)
	if err != nil {
		return err
	}
	projectIDs, err := toJSON(ws.ProjectIDs)
	if err != nil {
		return err
	}
	result, err := q.ExecContext(ctx, `
		UPDATE workspaces
		SET name=$2, color=$3, description=$4, owner_id=$5, members=$6::jsonb, project_ids=$7::jsonb, updated_at=NOW()
		WHERE id=$1
	`, ws.ID, ws.Name, ws.Color, ws.Description, ws.Owner, members, projectIDs)
	if err != nil {
		return fmt.Errorf("update workspace: %w", err)
	}
	return expectRow(result)
}

// JoinWorkspace saves the workspace membership and consumes the invite in one
// transaction.
func (s *PostgresStore) JoinWorkspace(ctx context.Context, ws Workspace, inviteID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := saveWorkspace(ctx, tx, ws); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM workspace_invites WHERE id=$1`, inviteID); err != nil {
			return fmt.Errorf("consume invite: %w", err)
		}
		return nil
	})
}

// DeleteWorkspace removes the workspace and everything it owns, children
// first. It returns the ids of the deleted tasks.
func (s *PostgresStore) DeleteWorkspace(ctx context.Context, workspaceID string) ([]string, error) {
	var taskIDs []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		taskIDs, err = selectIDs(ctx, tx, `
			SELECT t.id FROM tasks t JOIN projects p ON p.id = t.project_id WHERE p.workspace_id=$1
		`, workspaceID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE task_id = ANY($1)`, taskIDs); err != nil {
			return fmt.Errorf("delete workspace comments: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ANY($1)`, taskIDs); err != nil {
			return fmt.Errorf("delete workspace tasks: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE workspace_id=$1`, workspaceID); err != nil {
			return fmt.Errorf("delete workspace projects: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM workspace_invites WHERE workspace_id=$1`, workspaceID); err != nil {
			return fmt.Errorf("delete workspace invites: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM workspaces WHERE id=$1`, workspaceID); err != nil {
			return fmt.Errorf("delete workspace: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return taskIDs, nil
}

func (s *PostgresStore) WorkspaceStats(ctx context.Context, workspaceID string) (WorkspaceStats, error) {
	var stats WorkspaceStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM projects WHERE workspace_id=$1 AND NOT is_archived),
			(SELECT COUNT(*) FROM projects WHERE workspace_id=$1 AND NOT is_archived AND status='IN PROGRESS'),
			COUNT(t.id),
			COUNT(t.id) FILTER (WHERE t.status='Done'),
			COUNT(t.id) FILTER (WHERE t.status='To Do'),
			COUNT(t.id) FILTER (WHERE t.status='In Progress')
		FROM projects p
		JOIN tasks t ON t.project_id = p.id AND NOT t.is_archived
		WHERE p.workspace_id=$1 AND NOT p.is_archived
	`, workspaceID).Scan(
		&stats.TotalProjects,
		&stats.TotalProjectsInProgress,
		&stats.TotalTasks,
		&stats.TotalTasksCompleted,
		&stats.TotalTasksToDo,
		&stats.TotalTasksInProgress,
	)
	if err != nil {
		return WorkspaceStats{}, fmt.Errorf("workspace stats: %w", err)
	}
	return stats, nil
}

// Projects

const projectColumns = `p.id, p.workspace_id, p.title, p.description, p.status, p.priority, p.start_date, p.due_date,
	p.tags, p.members, p.task_ids, p.is_archived, p.created_by, p.created_at, p.updated_at,
	COALESCE((
		SELECT ROUND(100.0 * COUNT(*) FILTER (WHERE t.status = 'Done') / NULLIF(COUNT(*), 0))
		FROM tasks t WHERE t.project_id = p.id AND NOT t.is_archived
	), 0)::int`

func scanProject(row rowScanner) (Project, error) {
	var (
		p                   Project
		startDate, dueDate  sql.NullTime
		tags, members, tIDs []byte
	)
	if err := row.Scan(&p.ID, &p.WorkspaceID, &p.Title, &p.Description, &p.Status, &p.Priority, &startDate, &dueDate,
		&tags, &members, &tIDs, &p.IsArchived, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt, &p.Progress); err != nil {
		return Project{}, err
	}
	p.StartDate = nullTime(startDate)
	p.DueDate = nullTime(dueDate)
	if err := fromJSON(tags, &p.Tags); err != nil {
		return Project{}, fmt.Errorf("decode project tags: %w", err)
	}
	if err := fromJSON(members, &p.Members); err != nil {
		return Project{}, fmt.Errorf("decode project members: %w", err)
	}
	if err := fromJSON(tIDs, &p.TaskIDs); err != nil {
		return Project{}, fmt.Errorf("decode project tasks: %w", err)
	}
	return p, nil
}

// CreateProject inserts the project and appends its id to the owning
// workspace in one transaction.
func (s *PostgresStore) CreateProject(ctx context.Context, p Project) error {
	tags, err := toJSON(p.Tags)
	if err != nil {
		return err
	}
	members, err := toJSON(p.Members)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projects (id, workspace_id, title, description, status, priority, start_date, due_date,
				tags, members, task_ids, is_archived, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10::jsonb, '[]'::jsonb, FALSE, $11, $12, $12)
		`, p.ID, p.WorkspaceID, p.Title, p.Description, p.Status, p.Priority, p.StartDate, p.DueDate,
			tags, members, p.CreatedBy, p.CreatedAt); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		result, err := tx.ExecContext(ctx, `
			UPDATE workspaces SET project_ids = project_ids || to_jsonb($2::text), updated_at=NOW() WHERE id=$1
		`, p.WorkspaceID, p.ID)
		if err != nil {
			return fmt.Errorf("link project to workspace: %w", err)
		}
		return expectRow(result)
	})
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.id=$1`, projectID))
	if err != nil {
		return Project{}, notFound(err, "get project")
	}
	return p, nil
}

func (s *PostgresStore) ListProjectsByWorkspace(ctx context.Context, workspaceID string, includeArchived bool) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		WHERE p.workspace_id=$1 AND ($2 OR NOT p.is_archived)
		ORDER BY p.created_at DESC
	`, workspaceID, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *PostgresStore) SaveProject(ctx context.Context, p Project) error {
	tags, err := toJSON(p.Tags)
	if err != nil {
		return err
	}
	members, err := toJSON(p.Members)
	if err != nil {
		return err
	}
	taskIDs, err := toJSON(p.TaskIDs)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET title=$2, description=$3, status=$4, priority=$5, start_date=$6, due_date=$7,
			tags=$8::jsonb, members=$9::jsonb, task_ids=$10::jsonb, is_archived=$11, updated_at=NOW()
		WHERE id=$1
	`, p.ID, p.Title, p.Description, p.Status, p.Priority, p.StartDate, p.DueDate, tags, members, taskIDs, p.IsArchived)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return expectRow(result)
}

// DeleteProject unlinks the project from its workspace, deletes its tasks and
// their comments, then the project row. Re-running it on a partially deleted
// project is safe. It returns the ids of the deleted tasks.
func (s *PostgresStore) DeleteProject(ctx context.Context, projectID, workspaceID string) ([]string, error) {
	var taskIDs []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE workspaces SET project_ids = project_ids - $2::text, updated_at=NOW() WHERE id=$1
		`, workspaceID, projectID); err != nil {
			return fmt.Errorf("unlink project: %w", err)
		}
		var err error
		taskIDs, err = selectIDs(ctx, tx, `SELECT id FROM tasks WHERE project_id=$1`, projectID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE task_id = ANY($1)`, taskIDs); err != nil {
			return fmt.Errorf("delete project comments: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE project_id=$1`, projectID); err != nil {
			return fmt.Errorf("delete project tasks: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=$1`, projectID); err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return taskIDs, nil
}

// Tasks

const taskColumns = `t.id, t.project_id, t.title, t.description, t.status, t.priority, t.assignees, t.watchers,
	t.due_date, t.completed_at, t.estimated_hours, t.actual_hours, t.tags, t.sub_tasks, t.comment_ids, t.attachments,
	t.is_archived, t.created_by, t.created_at, t.updated_at`

func scanTask(row rowScanner) (Task, error) {
	var (
		t                                             Task
		dueDate, completedAt                          sql.NullTime
		assignees, watchers, tags, subTasks, comments []byte
		attachments                                   []byte
	)
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.Priority, &assignees, &watchers,
		&dueDate, &completedAt, &t.EstimatedHours, &t.ActualHours, &tags, &subTasks, &comments, &attachments,
		&t.IsArchived, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Task{}, err
	}
	t.DueDate = nullTime(dueDate)
	t.CompletedAt = nullTime(completedAt)
	for _, field := range []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"assignees", assignees, &t.Assignees},
		{"watchers", watchers, &t.Watchers},
		{"tags", tags, &t.Tags},
		{"subtasks", subTasks, &t.SubTasks},
		{"comments", comments, &t.CommentIDs},
		{"attachments", attachments, &t.Attachments},
	} {
		if err := fromJSON(field.raw, field.dst); err != nil {
			return Task{}, fmt.Errorf("decode task %s: %w", field.name, err)
		}
	}
	return t, nil
}

type taskJSON struct {
	assignees, watchers, tags, subTasks, comments, attachments string
}

func encodeTask(t Task) (taskJSON, error) {
	var (
		out taskJSON
		err error
	)
	if out.assignees, err = toJSON(t.Assignees); err != nil {
		return out, err
	}
	if out.watchers, err = toJSON(t.Watchers); err != nil {
		return out, err
	}
	if out.tags, err = toJSON(t.Tags); err != nil {
		return out, err
	}
	if out.subTasks, err = toJSON(t.SubTasks); err != nil {
		return out, err
	}
	if out.comments, err = toJSON(t.CommentIDs); err != nil {
		return out, err
	}
	if out.attachments, err = toJSON(t.Attachments); err != nil {
		return out, err
	}
	return out, nil
}

// CreateTask inserts the task and appends its id to the owning project in one
// transaction.
func (s *PostgresStore) CreateTask(ctx context.Context, t Task) error {
	encoded, err := encodeTask(t)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (id, project_id, title, description, status, priority, assignees, watchers, due_date,
				completed_at, estimated_hours, actual_hours, tags, sub_tasks, comment_ids, attachments, is_archived,
				created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9, $10, $11, $12, $13::jsonb, $14::jsonb,
				$15::jsonb, $16::jsonb, $17, $18, $19, $19)
		`, t.ID, t.ProjectID, t.Title, t.Description, t.Status, t.Priority, encoded.assignees, encoded.watchers,
			t.DueDate, t.CompletedAt, t.EstimatedHours, t.ActualHours, encoded.tags, encoded.subTasks,
			encoded.comments, encoded.attachments, t.IsArchived, t.CreatedBy, t.CreatedAt); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		result, err := tx.ExecContext(ctx, `
			UPDATE projects SET task_ids = task_ids || to_jsonb($2::text), updated_at=NOW() WHERE id=$1
		`, t.ProjectID, t.ID)
		if err != nil {
			return fmt.Errorf("link task to project: %w", err)
		}
		return expectRow(result)
	})
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id=$1`, taskID))
	if err != nil {
		return Task{}, notFound(err, "get task")
	}
	return t, nil
}

// SaveTask overwrites the mutable fields of a task. Concurrent saves are
// last-write-wins.
func (s *PostgresStore) SaveTask(ctx context.Context, t Task) error {
	encoded, err := encodeTask(t)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET title=$2, description=$3, status=$4, priority=$5, assignees=$6::jsonb, watchers=$7::jsonb,
			due_date=$8, completed_at=$9, estimated_hours=$10, actual_hours=$11, tags=$12::jsonb,
			sub_tasks=$13::jsonb, comment_ids=$14::jsonb, attachments=$15::jsonb, is_archived=$16, updated_at=NOW()
		WHERE id=$1
	`, t.ID, t.Title, t.Description, t.Status, t.Priority, encoded.assignees, encoded.watchers, t.DueDate,
		t.CompletedAt, t.EstimatedHours, t.ActualHours, encoded.tags, encoded.subTasks, encoded.comments,
		encoded.attachments, t.IsArchived)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return expectRow(result)
}

// DeleteTask unlinks the task from its project, then deletes its comments
// and the task row.
func (s *PostgresStore) DeleteTask(ctx context.Context, taskID, projectID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE projects SET task_ids = task_ids - $2::text, updated_at=NOW() WHERE id=$1
		`, projectID, taskID); err != nil {
			return fmt.Errorf("unlink task: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE task_id=$1`, taskID); err != nil {
			return fmt.Errorf("delete task comments: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, taskID); err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) ListTasksByProject(ctx context.Context, projectID string, includeArchived bool) ([]Task, error) {
	return s.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM tasks t
		WHERE t.project_id=$1 AND ($2 OR NOT t.is_archived)
		ORDER BY t.created_at DESC
	`, projectID, includeArchived)
}

func (s *PostgresStore) ListTasksByAssignee(ctx context.Context, userID string) ([]Task, error) {
	return s.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM tasks t
		WHERE t.assignees @> jsonb_build_array($1::text) AND NOT t.is_archived
		ORDER BY t.created_at DESC
	`, userID)
}

func (s *PostgresStore) ListArchivedTasksByWorkspace(ctx context.Context, workspaceID string) ([]Task, error) {
	return s.queryTasks(ctx, `
		SELECT `+taskColumns+` FROM tasks t
		JOIN projects p ON p.id = t.project_id
		WHERE p.workspace_id=$1 AND t.is_archived
		ORDER BY t.updated_at DESC
	`, workspaceID)
}

func (s *PostgresStore) queryTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Comments

// CreateComment inserts the comment and appends its id to the task in one
// transaction.
func (s *PostgresStore) CreateComment(ctx context.Context, c Comment) error {
	mentions, err := toJSON(c.Mentions)
	if err != nil {
		return err
	}
	reactions, err := toJSON(c.Reactions)
	if err != nil {
		return err
	}
	attachments, err := toJSON(c.Attachments)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO comments (id, task_id, author_id, text, mentions, reactions, attachments, is_edited, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7::jsonb, $8, $9, $9)
		`, c.ID, c.TaskID, c.AuthorID, c.Text, mentions, reactions, attachments, c.IsEdited, c.CreatedAt); err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		result, err := tx.ExecContext(ctx, `
			UPDATE tasks SET comment_ids = comment_ids || to_jsonb($2::text), updated_at=NOW() WHERE id=$1
		`, c.TaskID, c.ID)
		if err != nil {
			return fmt.Errorf("link comment to task: %w", err)
		}
		return expectRow(result)
	})
}

func (s *PostgresStore) ListCommentsByTask(ctx context.Context, taskID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, author_id, text, mentions, reactions, attachments, is_edited, created_at, updated_at
		FROM comments
		WHERE task_id=$1
		ORDER BY created_at DESC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := make([]Comment, 0)
	for rows.Next() {
		var (
			c                                Comment
			mentions, reactions, attachments []byte
		)
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Text, &mentions, &reactions, &attachments, &c.IsEdited, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		if err := fromJSON(mentions, &c.Mentions); err != nil {
			return nil, fmt.Errorf("decode comment mentions: %w", err)
		}
		if err := fromJSON(reactions, &c.Reactions); err != nil {
			return nil, fmt.Errorf("decode comment reactions: %w", err)
		}
		if err := fromJSON(attachments, &c.Attachments); err != nil {
			return nil, fmt.Errorf("decode comment attachments: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// Invites

func (s *PostgresStore) GetInvite(ctx context.Context, workspaceID, userID string) (WorkspaceInvite, error) {
	var invite WorkspaceInvite
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, user_id, role, token, expires_at, created_at
		FROM workspace_invites WHERE workspace_id=$1 AND user_id=$2
	`, workspaceID, userID).Scan(&invite.ID, &invite.WorkspaceID, &invite.UserID, &invite.Role, &invite.Token, &invite.ExpiresAt, &invite.CreatedAt)
	if err != nil {
		return WorkspaceInvite{}, notFound(err, "get invite")
	}
	return invite, nil
}

func (s *PostgresStore) CreateInvite(ctx context.Context, invite WorkspaceInvite) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_invites (id, workspace_id, user_id, role, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, invite.ID, invite.WorkspaceID, invite.UserID, invite.Role, invite.Token, invite.ExpiresAt, invite.CreatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteInvite(ctx context.Context, inviteID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM workspace_invites WHERE id=$1`, inviteID); err != nil {
		return fmt.Errorf("delete invite: %w", err)
	}
	return nil
}

// Activity

func (s *PostgresStore) InsertActivity(ctx context.Context, entry ActivityEntry) error {
	if entry.Details == nil {
		entry.Details = map[string]any{}
	}
	details, err := toJSON(entry.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, user_id, action, resource_type, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
	`, entry.ID, entry.UserID, entry.Action, entry.ResourceType, entry.ResourceID, details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ListActivityByResource returns a resource's entries newest first. A limit
// of zero or less returns every entry.
func (s *PostgresStore) ListActivityByResource(ctx context.Context, resourceID string, limit int) ([]ActivityEntry, error) {
	var rowLimit any
	if limit > 0 {
		rowLimit = limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, action, resource_type, resource_id, details, created_at
		FROM activity_log
		WHERE resource_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, resourceID, rowLimit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	entries := make([]ActivityEntry, 0)
	for rows.Next() {
		var (
			entry   ActivityEntry
			details []byte
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Action, &entry.ResourceType, &entry.ResourceID, &details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if err := fromJSON(details, &entry.Details); err != nil {
			return nil, fmt.Errorf("decode activity details: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func selectIDs(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func toJSON(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	if string(data) == "null" {
		return "[]", nil
	}
	return string(data), nil
}

func fromJSON(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}

func nullTime(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func notFound(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func expectRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
