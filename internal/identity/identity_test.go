package identity

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func serve(t *testing.T, r *http.Request) (string, *httptest.ResponseRecorder) {
	t.Helper()
	var got string
	h := Middleware(false)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = SessionIDFromContext(r.Context())
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return got, w
}

func TestMiddlewarePrefersHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws/session?session_id=from-query", nil)
	r.Header.Set(SessionHeaderName, "from-header")

	got, w := serve(t, r)
	if got != "from-header" {
		t.Errorf("Expected from-header, got %q", got)
	}
	if w.Header().Get(SessionHeaderName) != "from-header" {
		t.Errorf("Expected session ID echoed in header, got %q", w.Header().Get(SessionHeaderName))
	}
}

func TestMiddlewareUsesQueryThenCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws/session?session_id=chat-42", nil)
	if got, _ := serve(t, r); got != "chat-42" {
		t.Errorf("Expected chat-42, got %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/ws/session", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "cookie-id"})
	if got, _ := serve(t, r); got != "cookie-id" {
		t.Errorf("Expected cookie-id, got %q", got)
	}
}

func TestMiddlewareIssuesSessionID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws/session?session_id=bad%20id%21", nil)

	got, w := serve(t, r)
	if _, err := uuid.Parse(got); err != nil {
		t.Fatalf("Expected a generated UUID, got %q", got)
	}
	cookie := w.Header().Get("Set-Cookie")
	if !strings.Contains(cookie, SessionCookieName+"="+got) {
		t.Errorf("Expected cookie to carry the new ID, got %q", cookie)
	}
}

func TestSanitizeSessionID(t *testing.T) {
	tests := map[string]string{
		"  abc-1  ":              "abc-1",
		"chat:123.4_x":           "chat:123.4_x",
		"":                       "",
		"has space":              "",
		strings.Repeat("a", 129): "",
		"<script>":               "",
	}
	for in, want := range tests {
		if got := SanitizeSessionID(in); got != want {
			t.Errorf("SanitizeSessionID(%q) = %q, want %q", in, got, want)
		}
	}
}
