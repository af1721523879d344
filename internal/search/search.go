package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	ProjectID   string `json:"projectId"`
	WorkspaceID string `json:"workspaceId"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
}

// Query describes a search request. Searches are always scoped to one
// workspace.
type Query struct {
	Text            string
	WorkspaceID     string
	IncludeArchived bool
	Limit           int
	Offset          int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// TaskRecord is the data we index for a task.
type TaskRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ProjectID   string `json:"projectId"`
	WorkspaceID string `json:"workspaceId"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	IsArchived  bool   `json:"isArchived"`
}
