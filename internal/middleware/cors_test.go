package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveCORS(origins []string, method, origin string) (*httptest.ResponseRecorder, bool) {
	called := false
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	r := httptest.NewRequest(method, "/api/save-work", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w, called
}

func TestCORS_Wildcard(t *testing.T) {
	w, called := serveCORS([]string{"*"}, http.MethodGet, "https://app.example")
	if !called {
		t.Fatal("Expected handler to run")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Expected origin echoed, got %q", got)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("Wildcard must not allow credentials")
	}
}

func TestCORS_ExplicitOrigin(t *testing.T) {
	w, _ := serveCORS([]string{"https://app.example"}, http.MethodGet, "https://app.example")
	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("Expected credentials for explicit origin")
	}

	w, _ = serveCORS([]string{"https://app.example"}, http.MethodGet, "https://evil.example")
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("Unlisted origin must not be allowed")
	}
}

func TestCORS_Preflight(t *testing.T) {
	w, called := serveCORS([]string{"*"}, http.MethodOptions, "https://app.example")
	if called {
		t.Error("Preflight must not reach the handler")
	}
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}
