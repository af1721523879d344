package search

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
	log   logrus.FieldLogger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS, log logrus.FieldLogger) *Service {
	return &Service{meili: meili, pgfts: pgfts, log: log}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.WithError(err).Warn("meilisearch search failed, falling back to pgfts")
	}
	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		s.log.WithError(err).Error("pgfts search failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexTask pushes a task to Meilisearch. Postgres needs no indexing call,
// its fts column is generated.
func (s *Service) IndexTask(t TaskRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	if err := s.meili.IndexTasks([]TaskRecord{t}); err != nil {
		s.log.WithError(err).WithField("task_id", t.ID).Warn("index task")
	}
}

// DeleteTasks removes tasks from Meilisearch.
func (s *Service) DeleteTasks(ids []string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	for _, id := range ids {
		if err := s.meili.DeleteTask(id); err != nil {
			s.log.WithError(err).WithField("task_id", id).Warn("delete task from index")
		}
	}
}

// ReindexAllFromPG reloads every task from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	tasks, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		s.log.WithError(err).Warn("search reindex load failed")
		return
	}
	if err := s.meili.IndexTasks(tasks); err != nil {
		s.log.WithError(err).Warn("search reindex failed")
		return
	}
	s.log.WithField("tasks", len(tasks)).Info("search index rebuilt")
}

// Close stops background work.
func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
