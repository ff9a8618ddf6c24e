package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	const secret = "app-secret"
	body := `{"object":"page","entry":[]}`

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
		w.WriteHeader(http.StatusOK)
	})
	h := VerifySignature(secret)(next)

	tests := []struct {
		name      string
		signature string
		want      int
	}{
		{"valid", Sign(secret, []byte(body)), http.StatusOK},
		{"wrong secret", Sign("other", []byte(body)), http.StatusForbidden},
		{"missing", "", http.StatusForbidden},
		{"not hex", "sha256=zzzz", http.StatusForbidden},
		{"sha1 form", "sha1=abcdef", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
			if tt.signature != "" {
				req.Header.Set(SignatureHeader, tt.signature)
			}
			w := httptest.NewRecorder()

			h.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("Expected status %d, got %d", tt.want, w.Code)
			}
			if tt.want == http.StatusOK && seen != body {
				t.Errorf("Expected body to be passed through, got %q", seen)
			}
		})
	}
}

func TestVerifySignatureDisabled(t *testing.T) {
	called := false
	h := VerifySignature("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{}"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !called {
		t.Error("Expected handler to run when no secret is configured")
	}
}
