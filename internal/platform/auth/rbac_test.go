package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithRoles(method string, roles ...string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, roles))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRequireRole_Allowed(t *testing.T) {
	c, rec := contextWithRoles(http.MethodGet, RoleMonitor)
	if err := RequireRole(RoleMonitor, RoleDataManager)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	c, _ := contextWithRoles(http.MethodGet, RoleMonitor)
	err := RequireRole(RoleDataManager)(okHandler)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	c, _ := contextWithRoles(http.MethodGet, RoleAdmin)
	if err := RequireRole(RoleDataManager)(okHandler)(c); err != nil {
		t.Fatalf("admin should pass, got %v", err)
	}
}

func TestReadWrite(t *testing.T) {
	tests := []struct {
		method string
		role   string
		allow  bool
	}{
		{http.MethodGet, RoleMonitor, true},
		{http.MethodPost, RoleMonitor, false},
		{http.MethodPut, RoleInvestigator, true},
		{http.MethodDelete, RoleDataManager, true},
		{http.MethodGet, "guest", false},
	}
	for _, tt := range tests {
		c, _ := contextWithRoles(tt.method, tt.role)
		err := ReadWrite()(okHandler)(c)
		if tt.allow && err != nil {
			t.Errorf("%s as %s: expected allowed, got %v", tt.method, tt.role, err)
		}
		if !tt.allow && err == nil {
			t.Errorf("%s as %s: expected forbidden", tt.method, tt.role)
		}
	}
}

func TestUserIDFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), UserIDKey, "user-7")
	if got := UserIDFromContext(ctx); got != "user-7" {
		t.Errorf("expected user-7, got %q", got)
	}
	if got := UserIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}
