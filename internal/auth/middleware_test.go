package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRequireAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newManager(t)

	r := gin.New()
	r.GET("/x", RequireAccessToken(m), func(c *gin.Context) {
		id, _ := IdentityFrom(c.Request.Context())
		c.String(http.StatusOK, id.UserID+"/"+id.Role)
	})

	tok, _ := m.IssueAccess(time.Now(), "user-1", "viewer", 0)
	cases := []struct {
		header string
		code   int
	}{
		{"", http.StatusUnauthorized},
		{"Basic abc", http.StatusUnauthorized},
		{"Bearer not-a-token", http.StatusUnauthorized},
		{"Bearer " + tok, http.StatusOK},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		r.ServeHTTP(w, req)
		if w.Code != tc.code {
			t.Fatalf("%q: expected %d, got %d", tc.header, tc.code, w.Code)
		}
		if tc.code == http.StatusOK && w.Body.String() != "user-1/viewer" {
			t.Fatalf("unexpected identity %q", w.Body.String())
		}
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"BEARER abc":   "abc",
	}
	for in, want := range cases {
		got, ok := bearerToken(in)
		if !ok || got != want {
			t.Fatalf("%q: got %q %v", in, got, ok)
		}
	}
	for _, in := range []string{"", "Bearer", "Bearer   ", "Token abc"} {
		if _, ok := bearerToken(in); ok {
			t.Fatalf("%q: expected rejection", in)
		}
	}
}

func TestIdentityFrom(t *testing.T) {
	if _, ok := IdentityFrom(context.Background()); ok {
		t.Fatalf("empty context must not carry an identity")
	}
	if _, ok := IdentityFrom(WithIdentity(context.Background(), Identity{UserID: "u"})); ok {
		t.Fatalf("identity without role must be rejected")
	}
	id, ok := IdentityFrom(WithIdentity(context.Background(), Identity{UserID: "u", Role: "viewer"}))
	if !ok || id.UserID != "u" || id.Role != "viewer" {
		t.Fatalf("unexpected identity %+v %v", id, ok)
	}
}
