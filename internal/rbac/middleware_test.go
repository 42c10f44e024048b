package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"voice-scheduler/internal/auth"

	"github.com/gin-gonic/gin"
)

func serveAs(role string, allowed ...string) int {
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		if role != "" {
			ctx := auth.WithIdentity(c.Request.Context(), auth.Identity{UserID: "u", Role: role})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}, RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(200)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireAnyRole_AdminBypasses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	if code := serveAs(RoleAdmin, Writers...); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_ViewerCannotWrite(t *testing.T) {
	gin.SetMode(gin.TestMode)
	if code := serveAs(RoleViewer, Writers...); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
	if code := serveAs(RoleViewer, Readers...); code != 200 {
		t.Fatalf("expected 200 for read, got %d", code)
	}
}

func TestRequireAnyRole_UnknownOrMissingRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	if code := serveAs("finance", "finance"); code != 403 {
		t.Fatalf("expected unknown role denied, got %d", code)
	}
	if code := serveAs("", Readers...); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}
