package moderation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"flames/api/internal/metrics"
	"flames/api/internal/store"
)

var (
	admin  = Actor{UserID: "adm_1", Email: "ops@flames.test", Admin: true}
	viewer = Actor{UserID: "usr_1", Email: "fan@flames.test"}
)

type sentMail struct {
	template string
	to       string
	role     string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) record(template, to, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{template: template, to: to, role: role})
	return nil
}

func (m *fakeMailer) SendApplicationReceived(to, _, _, role string) error {
	return m.record("received", to, role)
}

func (m *fakeMailer) SendApprovalNotice(to, _, _, role string) error {
	return m.record("approval", to, role)
}

func (m *fakeMailer) SendSubscriberWelcome(to string) error {
	return m.record("welcome", to, "")
}

type fakeUploader struct {
	keys []string
	err  error
}

func (u *fakeUploader) Upload(_ context.Context, key string, _ []byte, _ string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.keys = append(u.keys, key)
	return "https://cdn.flames.test/" + key, nil
}

type fakeIndexer struct {
	indexed []string
	removed []string
}

func (i *fakeIndexer) IndexNomination(n store.Nomination) { i.indexed = append(i.indexed, n.ID) }
func (i *fakeIndexer) RemoveNomination(id string) { i.removed = append(i.removed, id) }
func (i *fakeIndexer) IndexContact(c store.ContactMessage) { i.indexed = append(i.indexed, c.ID) }
func (i *fakeIndexer) RemoveContact(id string) { i.removed = append(i.removed, id) }

// failingStore injects an error into the transaction after the wrapped
// writes have been staged.
type failingStore struct {
	*store.MemoryStore
	failOn string
}

var errInjected = errors.New("injected failure")

func (f *failingStore) WithinTx(ctx context.Context, fn func(store.Tx) error) error {
	return f.MemoryStore.WithinTx(ctx, func(tx store.Tx) error {
		return fn(&failingTx{Tx: tx, failOn: f.failOn})
	})
}

type failingTx struct {
	store.Tx
	failOn string
}

func (t *failingTx) InsertPublished(ctx context.Context, p store.Published) error {
	if t.failOn == "insert" {
		return errInjected
	}
	return t.Tx.InsertPublished(ctx, p)
}

func (t *failingTx) SavePublished(ctx context.Context, p store.Published) error {
	if t.failOn == "save" {
		return errInjected
	}
	return t.Tx.SavePublished(ctx, p)
}

func (t *failingTx) DeleteNomination(ctx context.Context, kind store.Kind, id string) error {
	if t.failOn == "delete" {
		return errInjected
	}
	return t.Tx.DeleteNomination(ctx, kind, id)
}

type harness struct {
	svc     *Service
	store   *store.MemoryStore
	mailer  *fakeMailer
	media   *fakeUploader
	indexer *fakeIndexer
	metrics *metrics.Moderation
}

var fixedNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   store.NewMemoryStore(),
		mailer:  &fakeMailer{},
		media:   &fakeUploader{},
		indexer: &fakeIndexer{},
		metrics: metrics.NewModeration(prometheus.NewRegistry()),
	}
	h.svc = h.build(t, h.store)
	return h
}

func (h *harness) build(t *testing.T, st Store) *Service {
	return NewService(st,
		WithLogger(zaptest.NewLogger(t)),
		WithMailer(h.mailer),
		WithMedia(h.media),
		WithMediaOrigins("https://cdn.flames.test"),
		WithIndexer(h.indexer),
		WithMetrics(h.metrics),
		WithClock(func() time.Time { return fixedNow }),
	)
}

func volunteer(email, phone string) Submission {
	return Submission{
		FullName: "Asha Rao",
		Email:    email,
		Phone:    phone,
		Details:  map[string]string{"role": "Logistics", "whyVolunteer": "I love the community"},
	}
}

func (h *harness) submit(t *testing.T, email, phone string) store.Nomination {
	t.Helper()
	n, err := h.svc.Submit(context.Background(), store.KindVolunteer, volunteer(email, phone))
	require.NoError(t, err)
	return n
}

func (h *harness) approve(t *testing.T, n store.Nomination) store.Nomination {
	t.Helper()
	res, err := h.svc.Approve(context.Background(), admin, n.Kind, n.ID, n.Version)
	require.NoError(t, err)
	return res.Nomination
}
