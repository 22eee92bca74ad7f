package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flames/api/internal/metrics"
	"flames/api/internal/session"
)

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(newFakeStore())

	rr := serve(t, server, request{method: http.MethodGet, path: "/api/health"})
	expectStatus(t, rr, http.StatusOK)

	if ok, exists := decode(t, rr)["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestReadyEndpoint_Success(t *testing.T) {
	server := newTestServer(newFakeStore())

	rr := serve(t, server, request{method: http.MethodGet, path: "/api/ready"})
	expectStatus(t, rr, http.StatusOK)

	response := decode(t, rr)
	if status := response["status"]; status != "ready" {
		t.Errorf("expected status=ready, got %v", status)
	}
	checks, ok := response["checks"].(map[string]any)
	if !ok {
		t.Fatalf("expected checks object, got %v", response["checks"])
	}
	dbCheck, _ := checks["database"].(map[string]any)
	if dbCheck["status"] != "ok" {
		t.Errorf("expected database status=ok, got %v", dbCheck)
	}
	if _, exists := checks["redis"]; exists {
		t.Error("redis check reported without a session store")
	}
}

func TestReadyEndpoint_DatabaseFailure(t *testing.T) {
	fs := newFakeStore()
	fs.pingFn = func(context.Context) error { return errors.New("connection refused") }
	server := newTestServer(fs)

	rr := serve(t, server, request{method: http.MethodGet, path: "/api/ready"})
	expectStatus(t, rr, http.StatusServiceUnavailable)

	response := decode(t, rr)
	if response["ok"] != false {
		t.Errorf("expected ok=false, got %v", response["ok"])
	}
	checks, _ := response["checks"].(map[string]any)
	dbCheck, _ := checks["database"].(map[string]any)
	if dbCheck["error"] != "connection refused" {
		t.Errorf("expected error message, got %v", dbCheck["error"])
	}
}

func TestReadyEndpoint_ChecksRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	sessions, err := session.NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}
	t.Cleanup(func() { sessions.Close() })
	server := newTestServer(newFakeStore(), WithSessions(sessions))

	rr := serve(t, server, request{method: http.MethodGet, path: "/api/ready"})
	expectStatus(t, rr, http.StatusOK)

	mr.Close()
	rr = serve(t, server, request{method: http.MethodGet, path: "/api/ready"})
	expectStatus(t, rr, http.StatusServiceUnavailable)
	checks, _ := decode(t, rr)["checks"].(map[string]any)
	if redisCheck, _ := checks["redis"].(map[string]any); redisCheck["status"] != "error" {
		t.Errorf("expected redis error, got %v", checks["redis"])
	}
}

func TestMetricsEndpointExposesRequestCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	server := NewHTTPServer(newTestService(newFakeStore()), "*",
		WithMetrics(metrics.NewHTTP(reg), promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	serve(t, server, request{method: http.MethodGet, path: "/api/health"})
	rr := serve(t, server, request{method: http.MethodGet, path: "/metrics"})
	expectStatus(t, rr, http.StatusOK)

	if !strings.Contains(rr.Body.String(), `flames_http_requests_total{method="GET",route="/api/health",status="200"} 1`) {
		t.Fatalf("expected health request counter, got:\n%s", rr.Body.String())
	}
}

func TestMetricsEndpointAbsentWithoutHandler(t *testing.T) {
	rr := serve(t, newTestServer(newFakeStore()), request{method: http.MethodGet, path: "/metrics"})
	expectStatus(t, rr, http.StatusNotFound)
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/api/admin/nominations/speaker/nom_1/approve": "/api/admin/nominations/{kind}/{id}/approve",
		"/api/admin/contacts/msg_1":                    "/api/admin/contacts/{id}",
		"/api/admin/tickets/tkt_1/checkin":             "/api/admin/tickets/{id}/checkin",
		"/api/admin/tickets/summary":                   "/api/admin/tickets/summary",
		"/api/applications/volunteer/check":            "/api/applications/{kind}/check",
		"/api/public/partner":                          "/api/public/{kind}",
		"/api/health":                                  "/api/health",
		"/wp-login.php":                                "unmatched",
		"/metrics":                                     "/metrics",
	}
	for path, want := range cases {
		if got := routeLabel(path); got != want {
			t.Errorf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}
