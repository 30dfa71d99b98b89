package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(HTTPMiddleware)
	r.Get("/orex-ws/records/{table}/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("form"))
	})
	r.Post("/orex-ws/login", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Invalid username or password", http.StatusUnauthorized)
	})
	r.Get("/orex-ws/templates/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func TestHTTPMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	router := newRouter()
	for _, path := range []string{"/orex-ws/records/letters/1", "/orex-ws/records/people/42"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/orex-ws/records/{table}/{id}", "200"))
	if got != 2 {
		t.Errorf("requests for route pattern = %v, want 2", got)
	}
}

func TestHTTPMiddlewareStatus(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	router := newRouter()
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/orex-ws/login", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orex-ws/templates/a.odt", nil))

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/orex-ws/login", "401")); got != 1 {
		t.Errorf("401 count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HTTPErrorsTotal.WithLabelValues("unauthorized")); got != 1 {
		t.Errorf("unauthorized errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/orex-ws/templates/{name}", "204")); got != 1 {
		t.Errorf("204 count = %v, want 1", got)
	}
}

func TestHTTPMiddlewareUnmatchedPaths(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	router := newRouter()
	for _, path := range []string{"/wp-login.php", "/.env", "/orex-ws/unknown"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", unmatchedRoute, "404")); got != 3 {
		t.Errorf("unmatched 404 count = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.HTTPErrorsTotal.WithLabelValues("not_found")); got != 3 {
		t.Errorf("not_found errors = %v, want 3", got)
	}
}

func TestHTTPMiddlewareGateRejection(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	// a rejection written before routing never gets a pattern
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Unsupported browser", http.StatusForbidden)
		})
	}
	r := chi.NewRouter()
	r.Use(HTTPMiddleware, deny)
	r.Get("/orex-ws", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orex-ws", nil))

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", unmatchedRoute, "403")); got != 1 {
		t.Errorf("rejected request count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HTTPErrorsTotal.WithLabelValues("forbidden")); got != 1 {
		t.Errorf("forbidden errors = %v, want 1", got)
	}
}

func TestHTTPMiddlewareNoMetrics(t *testing.T) {
	SetGlobal(nil)

	wrapped := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orex-ws", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}

func TestErrorClass(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{400, "bad_request"},
		{401, "unauthorized"},
		{403, "forbidden"},
		{404, "not_found"},
		{405, "client_error"},
		{413, "too_large"},
		{422, "unprocessable"},
		{500, "server_error"},
		{502, "server_error"},
		{503, "unavailable"},
	}

	for _, tt := range tests {
		if got := errorClass(tt.status); got != tt.want {
			t.Errorf("errorClass(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}
