package search

import (
	"context"
	"sync"

	"flames/api/internal/store"
	"go.uber.org/zap"
)

type backend interface {
	Searcher
	Healthy() bool
	IndexNominations([]NominationRecord) error
	IndexContacts([]ContactRecord) error
	DeleteNomination(id string) error
	DeleteContact(id string) error
	Close()
}

type fallback interface {
	Searcher
	LoadAllRecords(ctx context.Context) ([]NominationRecord, []ContactRecord, error)
}

// Service is the facade that tries Meilisearch first and falls back to
// Postgres matching.
type Service struct {
	primary  backend
	fallback fallback
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewService creates a search service. Either side may be nil: without
// Meilisearch every query goes to Postgres, without Postgres (memory store)
// queries return nothing unless Meilisearch answers.
func NewService(m *Meili, pg *PgSearch, logger *zap.Logger) *Service {
	s := &Service{logger: logger}
	if m != nil {
		s.primary = m
	}
	if pg != nil {
		s.fallback = pg
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("search")
	return s
}

func (s *Service) meiliReady() bool {
	return s.primary != nil && s.primary.Healthy()
}

// Search tries Meilisearch if healthy, otherwise falls back to Postgres.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meiliReady() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to postgres", zap.Error(err))
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("postgres search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexNomination indexes a nomination (fire-and-forget to Meilisearch).
func (s *Service) IndexNomination(n store.Nomination) {
	record := NominationRecord{
		ID:       n.ID,
		Kind:     string(n.Kind),
		FullName: n.FullName,
		Email:    n.Email,
		Phone:    n.Phone,
		Details:  JoinDetails(n.Details),
		Approved: n.Approved,
	}
	s.async("index nomination", n.ID, func() error {
		return s.primary.IndexNominations([]NominationRecord{record})
	})
}

// RemoveNomination drops a nomination from the index (fire-and-forget).
func (s *Service) RemoveNomination(id string) {
	s.async("delete nomination", id, func() error {
		return s.primary.DeleteNomination(id)
	})
}

// IndexContact indexes a contact message (fire-and-forget to Meilisearch).
func (s *Service) IndexContact(c store.ContactMessage) {
	record := ContactRecord{
		ID:       c.ID,
		FullName: c.FullName,
		Email:    c.Email,
		Message:  c.Message,
		Resolved: c.Resolved,
	}
	s.async("index contact", c.ID, func() error {
		return s.primary.IndexContacts([]ContactRecord{record})
	})
}

// RemoveContact drops a contact message from the index (fire-and-forget).
func (s *Service) RemoveContact(id string) {
	s.async("delete contact", id, func() error {
		return s.primary.DeleteContact(id)
	})
}

func (s *Service) async(op, id string, fn func() error) {
	if !s.meiliReady() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(); err != nil {
			s.logger.Warn(op+" failed", zap.String("id", id), zap.Error(err))
		}
	}()
}

// ReindexAllFromPG pushes every searchable record from Postgres into
// Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if !s.meiliReady() || s.fallback == nil {
		return
	}
	nominations, contacts, err := s.fallback.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Error("reindex load failed", zap.Error(err))
		return
	}
	if err := s.primary.IndexNominations(nominations); err != nil {
		s.logger.Error("reindex nominations", zap.Error(err))
	}
	if err := s.primary.IndexContacts(contacts); err != nil {
		s.logger.Error("reindex contacts", zap.Error(err))
	}
}

// Close waits for in-flight index writes and stops the health monitor.
func (s *Service) Close() {
	s.wg.Wait()
	if s.primary != nil {
		s.primary.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
