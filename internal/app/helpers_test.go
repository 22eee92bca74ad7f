package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"flames/api/internal/auth"
	"flames/api/internal/config"
	"flames/api/internal/moderation"
	"flames/api/internal/store"
)

// fakeStore is the in-memory store with an overridable Ping.
type fakeStore struct {
	*store.MemoryStore
	pingFn func(context.Context) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{MemoryStore: store.NewMemoryStore()}
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakeUploader struct{}

func (fakeUploader) Upload(_ context.Context, key string, _ []byte, _ string) (string, error) {
	return "https://cdn.flames.test/" + key, nil
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	}
}

func newTestService(fs *fakeStore, opts ...Option) *Service {
	mod := moderation.NewService(fs,
		moderation.WithMedia(fakeUploader{}),
		moderation.WithMediaOrigins("https://cdn.flames.test/"),
	)
	return New(testConfig(), fs, mod, opts...)
}

func newTestServer(fs *fakeStore, opts ...Option) *HTTPServer {
	return NewHTTPServer(newTestService(fs, opts...), "*")
}

func tokenFor(t *testing.T, admin bool) string {
	t.Helper()
	claims := auth.NewClaims("adm_test", "jti_"+t.Name(), "ops@flames.test", "Ops", admin, time.Now(), time.Hour)
	token, err := auth.IssueToken([]byte(testConfig().JWTSecret), claims)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

type request struct {
	method    string
	path      string
	body      string
	token     string
	ifMatch   string
	remote    string
	forwarded string
}

func serve(t *testing.T, server *HTTPServer, req request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if req.body != "" {
		body = bytes.NewBufferString(req.body)
	}
	r := httptest.NewRequest(req.method, req.path, body)
	if req.body != "" {
		r.Header.Set("Content-Type", "application/json")
	}
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	if req.ifMatch != "" {
		r.Header.Set("If-Match", req.ifMatch)
	}
	if req.remote != "" {
		r.RemoteAddr = req.remote
	}
	if req.forwarded != "" {
		r.Header.Set("X-Forwarded-For", req.forwarded)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, r)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected status %d, got %d body=%s", want, rr.Code, rr.Body.String())
	}
}

func expectCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, rr, status)
	if got, _ := decode(t, rr)["code"].(string); got != code {
		t.Fatalf("expected code %s, got %q", code, got)
	}
}

const volunteerBody = `{
	"fullName": "Asha Rao",
	"email": "a@x.com",
	"phone": "9999999999",
	"details": {"role": "Logistics", "whyVolunteer": "I love the community"}
}`

