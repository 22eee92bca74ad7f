// Package moderation implements the approval workflow shared by volunteer
// applications, speaker nominations and partner requests, plus the resolve
// workflow of contact messages.
package moderation

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"flames/api/internal/dashboard"
	"flames/api/internal/metrics"
	"flames/api/internal/rbac"
	"flames/api/internal/store"
)

// Store is the persistence surface the workflow needs. Cross-collection
// writes go through WithinTx.
type Store interface {
	WithinTx(ctx context.Context, fn func(store.Tx) error) error

	CreateNomination(ctx context.Context, n store.Nomination) (store.Nomination, error)
	GetNomination(ctx context.Context, kind store.Kind, id string) (store.Nomination, error)
	NominationExists(ctx context.Context, kind store.Kind, field, value string) (bool, error)
	ListNominations(ctx context.Context, kind store.Kind, view dashboard.View) (dashboard.Page[store.Nomination], error)
	ListPublished(ctx context.Context, kind store.Kind, limit int) ([]store.Published, error)

	CreateContact(ctx context.Context, c store.ContactMessage) (store.ContactMessage, error)
	ListContacts(ctx context.Context, view dashboard.View) (dashboard.Page[store.ContactMessage], error)

	CreateSubscriber(ctx context.Context, sub store.Subscriber) error
	ListSubscribers(ctx context.Context, view dashboard.View) (dashboard.Page[store.Subscriber], error)
	DeleteSubscriber(ctx context.Context, email string) error

	CreateTicket(ctx context.Context, t store.Ticket) (store.Ticket, error)
	GetTicketByReference(ctx context.Context, ref string) (store.Ticket, error)
	ListTickets(ctx context.Context, view dashboard.View) (dashboard.Page[store.Ticket], error)
	SummarizeTickets(ctx context.Context) (store.TicketSummary, error)
}

type Mailer interface {
	SendApplicationReceived(to, fullName, kindLabel, role string) error
	SendApprovalNotice(to, fullName, kindLabel, role string) error
	SendSubscriberWelcome(to string) error
}

type MediaUploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Indexer receives committed records. Implementations must not block.
type Indexer interface {
	IndexNomination(n store.Nomination)
	RemoveNomination(id string)
	IndexContact(c store.ContactMessage)
	RemoveContact(id string)
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Email  string
	Admin  bool
}

type Service struct {
	store   Store
	mailer  Mailer
	media   MediaUploader
	indexer Indexer
	metrics *metrics.Moderation
	logger  *zap.Logger
	now     func() time.Time

	// URL prefixes a submitted mediaUrl must start with.
	mediaOrigins []string
}

type Option func(*Service)

func WithMailer(m Mailer) Option { return func(s *Service) { s.mailer = m } }

func WithMedia(m MediaUploader) Option { return func(s *Service) { s.media = m } }

// WithMediaOrigins lists where uploaded media is served from. A submission
// may only reference a mediaUrl under one of these.
func WithMediaOrigins(origins ...string) Option {
	return func(s *Service) {
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "" {
				continue
			}
			if !strings.HasSuffix(origin, "/") {
				origin += "/"
			}
			s.mediaOrigins = append(s.mediaOrigins, origin)
		}
	}
}

func WithIndexer(i Indexer) Option { return func(s *Service) { s.indexer = i } }

func WithMetrics(m *metrics.Moderation) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(st Store, opts ...Option) *Service {
	s := &Service{
		store:  st,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func authorize(actor Actor, action rbac.Action) error {
	if !rbac.Can(rbac.FromClaim(actor.Admin), action) {
		return ErrForbidden
	}
	return nil
}

func checkVersion(expected, current int64) error {
	if expected != 0 && expected != current {
		return ErrVersionConflict
	}
	return nil
}

// translate maps store sentinels onto the package's own.
func translate(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *Service) observe(kind, op string, start time.Time, err error) {
	s.metrics.Observe(kind, op, outcome(err), time.Since(start))
}

func outcome(err error) string {
	var (
		dup *DuplicateError
		val *ValidationError
	)
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrVersionConflict), errors.Is(err, ErrAlreadyArrived):
		return metrics.OutcomeConflict
	case errors.Is(err, ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, ErrForbidden):
		return metrics.OutcomeDenied
	case errors.As(err, &dup), errors.As(err, &val):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}

func (s *Service) index(n store.Nomination) {
	if s.indexer != nil {
		s.indexer.IndexNomination(n)
	}
}

func (s *Service) unindex(id string) {
	if s.indexer != nil {
		s.indexer.RemoveNomination(id)
	}
}
