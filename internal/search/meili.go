package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/sirupsen/logrus"
)

const idxTasks = "taskflow_tasks"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	log     logrus.FieldLogger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the task index. An
// unreachable server is not an error: the health loop keeps probing and the
// service falls back to Postgres meanwhile.
func NewMeili(url, apiKey string, log logrus.FieldLogger) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		log:    log,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.WithError(err).WithField("url", url).Warn("meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxTasks,
		PrimaryKey: "id",
	}); err != nil {
		m.log.WithError(err).Debug("create task index (may already exist)")
	}

	index := m.client.Index(idxTasks)
	filterable := []interface{}{"workspaceId", "projectId", "status", "priority", "isArchived"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.WithError(err).Warn("update filterable attributes")
	}
	searchable := []string{"title", "description"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.WithError(err).Warn("update searchable attributes")
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info("meilisearch recovered, reconfiguring task index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID:              idxTasks,
			Query:                 q.Text,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			Filter:                taskFilters(q),
			AttributesToHighlight: []string{"title", "description"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		}},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func taskFilters(q Query) []string {
	filters := []string{fmt.Sprintf("workspaceId = %q", q.WorkspaceID)}
	if !q.IncludeArchived {
		filters = append(filters, "isArchived = false")
	}
	return filters
}

func hitToResult(hit meili.Hit) Result {
	return Result{
		ID:          decodeString(hit, "id"),
		Title:       firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title")),
		Snippet:     firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "description")),
		ProjectID:   decodeString(hit, "projectId"),
		WorkspaceID: decodeString(hit, "workspaceId"),
		Status:      decodeString(hit, "status"),
		Priority:    decodeString(hit, "priority"),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	value, _ := formatted[key].(string)
	return strings.TrimSpace(value)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexTasks adds or replaces tasks in the index.
func (m *Meili) IndexTasks(tasks []TaskRecord) error {
	if len(tasks) == 0 {
		return nil
	}
	_, err := m.client.Index(idxTasks).AddDocuments(tasks, nil)
	return err
}

// DeleteTask removes a task from the index.
func (m *Meili) DeleteTask(id string) error {
	_, err := m.client.Index(idxTasks).DeleteDocument(id, nil)
	return err
}
