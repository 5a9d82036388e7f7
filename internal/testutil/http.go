package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/codr1/courtbook/internal/api/authz"
	"github.com/codr1/courtbook/internal/models"
)

// NewJSONRequest builds a request whose body is payload encoded as JSON. A
// nil payload sends no body.
func NewJSONRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// WithUser attaches user to the request the way the auth middleware does.
func WithUser(req *http.Request, user models.User) *http.Request {
	return req.WithContext(authz.ContextWithUser(req.Context(), &authz.AuthUser{
		ID:           user.ID,
		Username:     user.Username,
		IsCourtOwner: user.IsCourtOwner,
	}))
}

// Serve routes req through a mux holding only pattern so path values resolve.
func Serve(pattern string, handler http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, handler)
	recorder := httptest.NewRecorder()
	mux.ServeHTTP(recorder, req)
	return recorder
}

// DecodeBody decodes the recorded JSON response into dst.
func DecodeBody(t *testing.T, recorder *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(recorder.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, recorder.Body.String())
	}
}

// ErrorMessage returns the message field of a JSON error response.
func ErrorMessage(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	DecodeBody(t, recorder, &body)
	return body.Message
}
