package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"flames/api/internal/dashboard"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Kind names a nomination flavour. It doubles as the partition key of the
// nominations and published_records tables.
type Kind string

const (
	KindVolunteer Kind = "volunteer"
	KindSpeaker   Kind = "speaker"
	KindPartner   Kind = "partner"
)

type Nomination struct {
	ID        string
	Kind      Kind
	FullName  string
	Email     string
	Phone     string
	LinkedIn  string
	Instagram string
	Twitter   string
	Details   map[string]string
	Approved  bool
	MediaURL  string
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// Published is the live copy of an approved nomination.
type Published struct {
	ID           string
	Kind         Kind
	NominationID string
	FullName     string
	Email        string
	Phone        string
	LinkedIn     string
	Instagram    string
	Twitter      string
	Details      map[string]string
	MediaURL     string
	PublishedAt  time.Time
	UpdatedAt    time.Time
}

type ContactMessage struct {
	ID        string
	FullName  string
	Email     string
	Message   string
	Resolved  bool
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// Ticket is one purchase. ReferenceID is the code printed on the e-ticket QR.
// AmountPaid is in paise.
type Ticket struct {
	ID          string
	ReferenceID string
	TicketType  string
	FullName    string
	Email       string
	Phone       string
	Quantity    int
	AmountPaid  int64
	Coupon      string
	PurchasedAt time.Time
	CheckedIn   bool
	CheckedInAt time.Time
	UpdatedAt   time.Time
	Version     int64
}

// TicketSummary totals the whole ticket table.
type TicketSummary struct {
	Orders      int
	TicketsSold int
	Revenue     int64
	CheckedIn   int
}

type Subscriber struct {
	Email        string
	Source       string
	SubscribedAt time.Time
}

type AdminUser struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	Admin        bool
	CreatedAt    time.Time
}

// Tx is the set of writes that must commit or roll back together. Reads made
// through GetXForUpdate hold a row lock until the transaction ends.
type Tx interface {
	GetNominationForUpdate(ctx context.Context, kind Kind, id string) (Nomination, error)
	SaveNomination(ctx context.Context, n Nomination) (Nomination, error)
	DeleteNomination(ctx context.Context, kind Kind, id string) error
	// EmailTaken reports whether a nomination other than exceptID already
	// uses email within kind.
	EmailTaken(ctx context.Context, kind Kind, email, exceptID string) (bool, error)

	FindPublishedByNomination(ctx context.Context, kind Kind, nominationID string) (Published, bool, error)
	FindPublishedByEmail(ctx context.Context, kind Kind, email string) (Published, bool, error)
	InsertPublished(ctx context.Context, p Published) error
	SavePublished(ctx context.Context, p Published) error
	DeletePublished(ctx context.Context, kind Kind, id string) error

	GetContactForUpdate(ctx context.Context, id string) (ContactMessage, error)
	SaveContact(ctx context.Context, c ContactMessage) (ContactMessage, error)
	DeleteContact(ctx context.Context, id string) error

	GetTicketForUpdate(ctx context.Context, id string) (Ticket, error)
	SaveTicket(ctx context.Context, t Ticket) (Ticket, error)
}

// PublishFrom copies the public fields of n into a published record.
func PublishFrom(n Nomination, id string, at time.Time) Published {
	return Published{
		ID:           id,
		Kind:         n.Kind,
		NominationID: n.ID,
		FullName:     n.FullName,
		Email:        n.Email,
		Phone:        n.Phone,
		LinkedIn:     n.LinkedIn,
		Instagram:    n.Instagram,
		Twitter:      n.Twitter,
		Details:      cloneDetails(n.Details),
		MediaURL:     n.MediaURL,
		PublishedAt:  at,
		UpdatedAt:    at,
	}
}

func (n Nomination) DashboardKey() dashboard.Key {
	return dashboard.Key{CreatedAt: n.CreatedAt, ID: n.ID}
}

func (n Nomination) DashboardFlag() bool { return n.Approved }

func (n Nomination) SearchFields() []string {
	fields := []string{n.FullName, n.Email}
	keys := make([]string, 0, len(n.Details))
	for k := range n.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, n.Details[k])
	}
	return fields
}

func (c ContactMessage) DashboardKey() dashboard.Key {
	return dashboard.Key{CreatedAt: c.CreatedAt, ID: c.ID}
}

func (c ContactMessage) DashboardFlag() bool { return c.Resolved }

func (c ContactMessage) SearchFields() []string {
	return []string{c.FullName, c.Email, c.Message}
}

func (t Ticket) DashboardKey() dashboard.Key {
	return dashboard.Key{CreatedAt: t.PurchasedAt, ID: t.ID}
}

func (t Ticket) DashboardFlag() bool { return t.CheckedIn }

func (t Ticket) SearchFields() []string {
	return []string{t.FullName, t.Email, t.ReferenceID}
}

func (s Subscriber) DashboardKey() dashboard.Key {
	return dashboard.Key{CreatedAt: s.SubscribedAt, ID: s.Email}
}

func (s Subscriber) DashboardFlag() bool { return false }

func (s Subscriber) SearchFields() []string { return []string{s.Email, s.Source} }

func cloneDetails(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
