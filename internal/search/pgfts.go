package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search matches the generated tasks.fts column with plainto_tsquery and
// ranks by ts_rank, using ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || q.WorkspaceID == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	const tsQuery = "plainto_tsquery('english', $1)"
	where := "t.fts @@ " + tsQuery + " AND p.workspace_id = $2"
	if !q.IncludeArchived {
		where += " AND NOT t.is_archived"
	}
	args := []any{q.Text, q.WorkspaceID}

	ctx := context.Background()

	var total int
	countSQL := `SELECT count(*) FROM tasks t JOIN projects p ON p.id = t.project_id WHERE ` + where
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT t.id, t.title,
			ts_headline('english', coalesce(t.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
			t.project_id, p.workspace_id, t.status, t.priority
		FROM tasks t
		JOIN projects p ON p.id = t.project_id
		WHERE %s
		ORDER BY ts_rank(t.fts, %s) DESC, t.created_at DESC
		LIMIT %d OFFSET %d`, tsQuery, where, tsQuery, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.ProjectID, &r.WorkspaceID, &r.Status, &r.Priority); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every task for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]TaskRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT t.id, t.title, t.description, t.project_id, p.workspace_id, t.status, t.priority, t.is_archived
		FROM tasks t
		JOIN projects p ON p.id = t.project_id
	`)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]TaskRecord, 0)
	for rows.Next() {
		var t TaskRecord
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.ProjectID, &t.WorkspaceID, &t.Status, &t.Priority, &t.IsArchived); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}
