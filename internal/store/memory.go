package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"flames/api/internal/dashboard"
)

// MemoryStore keeps every collection in process. A transaction runs against a
// private copy of the state which replaces the live state only on success.
type MemoryStore struct {
	mu    sync.RWMutex
	state memState
	now   func() time.Time
}

type memState struct {
	nominations map[string]Nomination
	published   map[string]Published
	contacts    map[string]ContactMessage
	subscribers map[string]Subscriber
	tickets     map[string]Ticket
	admins      map[string]AdminUser
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: memState{
			nominations: map[string]Nomination{},
			published:   map[string]Published{},
			contacts:    map[string]ContactMessage{},
			subscribers: map[string]Subscriber{},
			tickets:     map[string]Ticket{},
			admins:      map[string]AdminUser{},
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s memState) clone() memState {
	out := memState{
		nominations: make(map[string]Nomination, len(s.nominations)),
		published:   make(map[string]Published, len(s.published)),
		contacts:    make(map[string]ContactMessage, len(s.contacts)),
		subscribers: make(map[string]Subscriber, len(s.subscribers)),
		tickets:     make(map[string]Ticket, len(s.tickets)),
		admins:      make(map[string]AdminUser, len(s.admins)),
	}
	for k, v := range s.nominations {
		v.Details = cloneDetails(v.Details)
		out.nominations[k] = v
	}
	for k, v := range s.published {
		v.Details = cloneDetails(v.Details)
		out.published[k] = v
	}
	for k, v := range s.contacts {
		out.contacts[k] = v
	}
	for k, v := range s.subscribers {
		out.subscribers[k] = v
	}
	for k, v := range s.tickets {
		out.tickets[k] = v
	}
	for k, v := range s.admins {
		out.admins[k] = v
	}
	return out
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{state: s.state.clone(), now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *MemoryStore) CreateNomination(_ context.Context, n Nomination) (Nomination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.nominations[n.ID]; ok {
		return Nomination{}, ErrAlreadyExists
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	n.UpdatedAt = n.CreatedAt
	n.Version = 1
	n.Details = cloneDetails(n.Details)
	s.state.nominations[n.ID] = n
	return n, nil
}

func (s *MemoryStore) GetNomination(_ context.Context, kind Kind, id string) (Nomination, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.state.nominations[id]
	if !ok || n.Kind != kind {
		return Nomination{}, ErrNotFound
	}
	n.Details = cloneDetails(n.Details)
	return n, nil
}

func (s *MemoryStore) NominationExists(_ context.Context, kind Kind, field, value string) (bool, error) {
	if field != "email" && field != "phone" {
		return false, fmt.Errorf("nomination exists: unsupported field %q", field)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.state.nominations {
		if n.Kind != kind {
			continue
		}
		if (field == "email" && n.Email == value) || (field == "phone" && n.Phone == value) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) ListNominations(_ context.Context, kind Kind, view dashboard.View) (dashboard.Page[Nomination], error) {
	s.mu.RLock()
	items := make([]Nomination, 0)
	for _, n := range s.state.nominations {
		if n.Kind == kind {
			n.Details = cloneDetails(n.Details)
			items = append(items, n)
		}
	}
	s.mu.RUnlock()
	return dashboard.Paginate(items, view)
}

func (s *MemoryStore) ListPublished(_ context.Context, kind Kind, limit int) ([]Published, error) {
	if limit <= 0 {
		limit = dashboard.MaxLimit
	}
	s.mu.RLock()
	items := make([]Published, 0)
	for _, p := range s.state.published {
		if p.Kind == kind {
			p.Details = cloneDetails(p.Details)
			items = append(items, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].PublishedAt.Equal(items[j].PublishedAt) {
			return items[i].PublishedAt.After(items[j].PublishedAt)
		}
		return items[i].ID > items[j].ID
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *MemoryStore) CreateContact(_ context.Context, c ContactMessage) (ContactMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.contacts[c.ID]; ok {
		return ContactMessage{}, ErrAlreadyExists
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	c.UpdatedAt = c.CreatedAt
	c.Version = 1
	s.state.contacts[c.ID] = c
	return c, nil
}

func (s *MemoryStore) ListContacts(_ context.Context, view dashboard.View) (dashboard.Page[ContactMessage], error) {
	s.mu.RLock()
	items := make([]ContactMessage, 0, len(s.state.contacts))
	for _, c := range s.state.contacts {
		items = append(items, c)
	}
	s.mu.RUnlock()
	return dashboard.Paginate(items, view)
}

func (s *MemoryStore) CreateSubscriber(_ context.Context, sub Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.subscribers[sub.Email]; ok {
		return ErrAlreadyExists
	}
	if sub.SubscribedAt.IsZero() {
		sub.SubscribedAt = s.now()
	}
	s.state.subscribers[sub.Email] = sub
	return nil
}

func (s *MemoryStore) ListSubscribers(_ context.Context, view dashboard.View) (dashboard.Page[Subscriber], error) {
	s.mu.RLock()
	items := make([]Subscriber, 0, len(s.state.subscribers))
	for _, sub := range s.state.subscribers {
		items = append(items, sub)
	}
	s.mu.RUnlock()
	return dashboard.Paginate(items, view)
}

func (s *MemoryStore) DeleteSubscriber(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.subscribers[email]; !ok {
		return ErrNotFound
	}
	delete(s.state.subscribers, email)
	return nil
}

func (s *MemoryStore) CreateTicket(_ context.Context, t Ticket) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.tickets[t.ID]; ok {
		return Ticket{}, ErrAlreadyExists
	}
	for _, existing := range s.state.tickets {
		if existing.ReferenceID == t.ReferenceID {
			return Ticket{}, ErrAlreadyExists
		}
	}
	if t.PurchasedAt.IsZero() {
		t.PurchasedAt = s.now()
	}
	t.UpdatedAt = s.now()
	t.Version = 1
	s.state.tickets[t.ID] = t
	return t, nil
}

func (s *MemoryStore) GetTicketByReference(_ context.Context, ref string) (Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.state.tickets {
		if t.ReferenceID == ref {
			return t, nil
		}
	}
	return Ticket{}, ErrNotFound
}

func (s *MemoryStore) ListTickets(_ context.Context, view dashboard.View) (dashboard.Page[Ticket], error) {
	s.mu.RLock()
	items := make([]Ticket, 0, len(s.state.tickets))
	for _, t := range s.state.tickets {
		items = append(items, t)
	}
	s.mu.RUnlock()
	return dashboard.Paginate(items, view)
}

func (s *MemoryStore) SummarizeTickets(context.Context) (TicketSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum TicketSummary
	for _, t := range s.state.tickets {
		sum.Orders++
		sum.TicketsSold += t.Quantity
		sum.Revenue += t.AmountPaid
		if t.CheckedIn {
			sum.CheckedIn++
		}
	}
	return sum, nil
}

func (s *MemoryStore) GetAdminByEmail(_ context.Context, email string) (AdminUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.state.admins {
		if user.Email == email {
			return user, nil
		}
	}
	return AdminUser{}, ErrNotFound
}

func (s *MemoryStore) GetAdminByID(_ context.Context, id string) (AdminUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.state.admins[id]
	if !ok {
		return AdminUser{}, ErrNotFound
	}
	return user, nil
}

func (s *MemoryStore) UpsertAdmin(_ context.Context, user AdminUser) (AdminUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.state.admins {
		if existing.Email == user.Email {
			existing.DisplayName = user.DisplayName
			existing.PasswordHash = user.PasswordHash
			existing.Admin = user.Admin
			s.state.admins[id] = existing
			return existing, nil
		}
	}
	user.CreatedAt = s.now()
	s.state.admins[user.ID] = user
	return user, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Snapshot returns copies of the nominations and published records of one
// kind. Tests use it to assert on both collections at once.
func (s *MemoryStore) Snapshot(kind Kind) ([]Nomination, []Published) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	noms := make([]Nomination, 0)
	for _, n := range s.state.nominations {
		if n.Kind == kind {
			n.Details = cloneDetails(n.Details)
			noms = append(noms, n)
		}
	}
	pubs := make([]Published, 0)
	for _, p := range s.state.published {
		if p.Kind == kind {
			p.Details = cloneDetails(p.Details)
			pubs = append(pubs, p)
		}
	}
	sort.Slice(noms, func(i, j int) bool { return noms[i].ID < noms[j].ID })
	sort.Slice(pubs, func(i, j int) bool { return pubs[i].ID < pubs[j].ID })
	return noms, pubs
}

type memTx struct {
	state memState
	now   func() time.Time
}

func (t *memTx) GetNominationForUpdate(_ context.Context, kind Kind, id string) (Nomination, error) {
	n, ok := t.state.nominations[id]
	if !ok || n.Kind != kind {
		return Nomination{}, ErrNotFound
	}
	n.Details = cloneDetails(n.Details)
	return n, nil
}

func (t *memTx) SaveNomination(_ context.Context, n Nomination) (Nomination, error) {
	current, ok := t.state.nominations[n.ID]
	if !ok || current.Kind != n.Kind {
		return Nomination{}, ErrNotFound
	}
	n.CreatedAt = current.CreatedAt
	n.Version = current.Version + 1
	n.UpdatedAt = t.now()
	n.Details = cloneDetails(n.Details)
	t.state.nominations[n.ID] = n
	return n, nil
}

func (t *memTx) DeleteNomination(_ context.Context, kind Kind, id string) error {
	n, ok := t.state.nominations[id]
	if !ok || n.Kind != kind {
		return ErrNotFound
	}
	delete(t.state.nominations, id)
	return nil
}

func (t *memTx) EmailTaken(_ context.Context, kind Kind, email, exceptID string) (bool, error) {
	for id, n := range t.state.nominations {
		if id != exceptID && n.Kind == kind && n.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) FindPublishedByNomination(_ context.Context, kind Kind, nominationID string) (Published, bool, error) {
	return t.findPublished(func(p Published) bool {
		return p.Kind == kind && p.NominationID == nominationID
	})
}

func (t *memTx) FindPublishedByEmail(_ context.Context, kind Kind, email string) (Published, bool, error) {
	return t.findPublished(func(p Published) bool {
		return p.Kind == kind && p.Email == email
	})
}

func (t *memTx) findPublished(match func(Published) bool) (Published, bool, error) {
	var (
		found Published
		ok    bool
	)
	for _, p := range t.state.published {
		if !match(p) {
			continue
		}
		// Deterministic pick when several match.
		if !ok || p.ID < found.ID {
			found, ok = p, true
		}
	}
	if ok {
		found.Details = cloneDetails(found.Details)
	}
	return found, ok, nil
}

func (t *memTx) InsertPublished(_ context.Context, p Published) error {
	for id, existing := range t.state.published {
		if existing.Kind == p.Kind && existing.Email == p.Email {
			p.ID = id
			break
		}
	}
	p.Details = cloneDetails(p.Details)
	p.UpdatedAt = p.PublishedAt
	t.state.published[p.ID] = p
	return nil
}

func (t *memTx) SavePublished(_ context.Context, p Published) error {
	current, ok := t.state.published[p.ID]
	if !ok || current.Kind != p.Kind {
		return ErrNotFound
	}
	p.Details = cloneDetails(p.Details)
	p.UpdatedAt = t.now()
	t.state.published[p.ID] = p
	return nil
}

func (t *memTx) DeletePublished(_ context.Context, kind Kind, id string) error {
	p, ok := t.state.published[id]
	if !ok || p.Kind != kind {
		return ErrNotFound
	}
	delete(t.state.published, id)
	return nil
}

func (t *memTx) GetContactForUpdate(_ context.Context, id string) (ContactMessage, error) {
	c, ok := t.state.contacts[id]
	if !ok {
		return ContactMessage{}, ErrNotFound
	}
	return c, nil
}

func (t *memTx) SaveContact(_ context.Context, c ContactMessage) (ContactMessage, error) {
	current, ok := t.state.contacts[c.ID]
	if !ok {
		return ContactMessage{}, ErrNotFound
	}
	c.CreatedAt = current.CreatedAt
	c.Version = current.Version + 1
	c.UpdatedAt = t.now()
	t.state.contacts[c.ID] = c
	return c, nil
}

func (t *memTx) DeleteContact(_ context.Context, id string) error {
	if _, ok := t.state.contacts[id]; !ok {
		return ErrNotFound
	}
	delete(t.state.contacts, id)
	return nil
}

func (t *memTx) GetTicketForUpdate(_ context.Context, id string) (Ticket, error) {
	ticket, ok := t.state.tickets[id]
	if !ok {
		return Ticket{}, ErrNotFound
	}
	return ticket, nil
}

func (t *memTx) SaveTicket(_ context.Context, ticket Ticket) (Ticket, error) {
	current, ok := t.state.tickets[ticket.ID]
	if !ok {
		return Ticket{}, ErrNotFound
	}
	ticket.ReferenceID = current.ReferenceID
	ticket.PurchasedAt = current.PurchasedAt
	ticket.Version = current.Version + 1
	ticket.UpdatedAt = t.now()
	t.state.tickets[ticket.ID] = ticket
	return ticket, nil
}
