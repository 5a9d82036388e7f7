package api

// NOTE: Tests cannot use t.Parallel() due to shared package state.

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/codr1/courtbook/internal/api/auth"
	"github.com/codr1/courtbook/internal/api/authz"
	"github.com/codr1/courtbook/internal/metrics"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/store/memstore"
)

func TestChainMiddlewareOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := ChainMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mark("inner"), mark("outer"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	want := []string{"outer", "inner", "handler"}
	if len(order) != len(want) {
		t.Fatalf("order: %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order: %v", order)
		}
	}
}

func TestWithRequestID(t *testing.T) {
	var seen string
	handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))
	if seen == "" || recorder.Header().Get("X-Request-ID") != seen {
		t.Fatalf("request id: %q header: %q", seen, recorder.Header().Get("X-Request-ID"))
	}

	const incoming = "0b8f3c9e-5d0a-4d6c-9a57-3f1b2a8c7e11"
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", incoming)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != incoming {
		t.Fatalf("expected incoming id to be kept, got %q", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "<script>")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen == "<script>" {
		t.Fatal("expected malformed id to be replaced")
	}
}

func TestWithRecovery(t *testing.T) {
	handler := WithRecovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("status: %d", recorder.Code)
	}
	if recorder.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("content type: %s", recorder.Header().Get("Content-Type"))
	}
}

func TestWithAuth(t *testing.T) {
	s := memstore.New()
	user, err := s.Users().Create(t.Context(), models.User{
		Username:     "owner",
		PasswordHash: "unused",
		Email:        "owner@example.com",
		Name:         "Owner",
		IsCourtOwner: true,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	tokens, err := auth.NewTokenIssuer("middleware-secret", time.Hour)
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}
	auth.InitHandlers(auth.Options{Store: s, Tokens: tokens})

	var got *authz.AuthUser
	handler := WithAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = authz.UserFromContext(r.Context())
	}))

	token, _ := tokens.Issue(user.ID)
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got == nil || got.ID != user.ID || !got.IsCourtOwner {
		t.Fatalf("expected resolved owner, got %+v", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer forged")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got != nil {
		t.Fatalf("expected anonymous request for invalid token, got %+v", got)
	}
}

func TestWithMetricsUsesRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/courts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	handler := WithMetrics(mux)

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "GET /api/courts/{id}", "404")
	before := testutil.ToFloat64(counter)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/courts/7", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/courts/8", nil))

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Fatalf("expected 2 requests under one pattern, got %v", got)
	}
}

func TestResponseWriterKeepsFirstStatus(t *testing.T) {
	recorder := httptest.NewRecorder()
	wrapped := wrapResponseWriter(recorder)

	_, _ = wrapped.Write([]byte("ok"))
	wrapped.WriteHeader(http.StatusTeapot)

	if wrapped.status != http.StatusOK {
		t.Fatalf("status: %d", wrapped.status)
	}
}
