package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsRegistersEverything(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.LoginsTotal.WithLabelValues("saml", "created").Inc()
	metrics.LoginFailuresTotal.WithLabelValues("oidc").Inc()
	metrics.FlowsStartedTotal.WithLabelValues("saml").Inc()
	metrics.ConfigOperationsTotal.WithLabelValues("create").Inc()
	metrics.DiscoveryLookupsTotal.WithLabelValues("hit").Inc()
	metrics.SyncedUsersTotal.WithLabelValues("created").Add(2)
	metrics.SessionsActive.Set(5)

	if got := testutil.ToFloat64(metrics.LoginsTotal.WithLabelValues("saml", "created")); got != 1 {
		t.Errorf("expected 1 login, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.SyncedUsersTotal.WithLabelValues("created")); got != 2 {
		t.Errorf("expected 2 synced users, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.SessionsActive); got != 5 {
		t.Errorf("expected 5 active sessions, got %v", got)
	}
}

func TestNewMetricsDoubleRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetrics(registry)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	NewMetrics(registry)
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	handler := HTTPMetricsMiddleware(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest("GET", "/api/v1/sso/discover", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	count := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/sso/discover", "418"))
	if count != 1 {
		t.Errorf("expected 1 request counted, got %v", count)
	}
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.LoginsTotal.WithLabelValues("ldap", "updated").Inc()

	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "fedgate_logins_total") {
		t.Error("expected fedgate_logins_total in scrape output")
	}
}
