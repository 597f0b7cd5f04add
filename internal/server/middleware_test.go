package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/entitle/internal/auditcontext"
	"github.com/smallbiznis/entitle/internal/permission"
	"github.com/smallbiznis/entitle/internal/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	principal permission.Principal
	actorType string
	actorID   string
	ctx       context.Context
}

func principalTestRouter(t *testing.T, captured *capturedRequest) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{}
	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	r.Use(s.PrincipalRequired())
	r.GET("/ping", func(c *gin.Context) {
		captured.principal = s.principalFrom(c)
		captured.actorType, captured.actorID = auditcontext.ActorFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})
	return r
}

func TestPrincipalRequiredParsesUserHeaders(t *testing.T) {
	var captured capturedRequest
	r := principalTestRouter(t, &captured)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	userID := node.Generate()

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-User-Id", userID.String())
	req.Header.Set("X-User-Role", "Manager")
	req.Header.Set("X-Custom-Permissions", "view_audit_logs, metrics_enabled ,")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID, captured.principal.ID)
	assert.Equal(t, permission.RoleManager, captured.principal.Role)
	assert.Equal(t, []string{"view_audit_logs", "metrics_enabled"}, captured.principal.CustomPermissions)
	assert.Equal(t, "user", captured.actorType)
	assert.Equal(t, userID.String(), captured.actorID)
}

func TestPrincipalRequiredSystemActor(t *testing.T) {
	var captured capturedRequest
	r := principalTestRouter(t, &captured)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-User-Id", "system")
	req.Header.Set("X-User-Role", "superadmin")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, snowflake.ID(0), captured.principal.ID)
	assert.Equal(t, permission.RoleSuperadmin, captured.principal.Role)
	assert.Equal(t, "system", captured.actorType)
	assert.Empty(t, captured.actorID)
}

func TestPrincipalRequiredRejectsBadIdentity(t *testing.T) {
	var captured capturedRequest
	r := principalTestRouter(t, &captured)

	tests := []struct {
		name string
		id   string
		role string
	}{
		{"missing user id", "", "admin"},
		{"garbage user id", "not-a-snowflake", "admin"},
		{"unknown role", "1234567890", "owner"},
		{"missing role", "1234567890", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			req.Header.Set("X-User-Id", tt.id)
			req.Header.Set("X-User-Role", tt.role)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func tenantTestRouter(t *testing.T, captured *capturedRequest) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{}
	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	r.Use(s.PrincipalRequired())
	r.GET("/tenants/:tenant_id/ping", s.TenantRequired(), func(c *gin.Context) {
		captured.principal = s.principalFrom(c)
		captured.ctx = c.Request.Context()
		c.Status(http.StatusOK)
	})
	return r
}

func TestTenantRequiredScopesContext(t *testing.T) {
	var captured capturedRequest
	r := tenantTestRouter(t, &captured)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	tenantID := node.Generate()

	req := httptest.NewRequest(http.MethodGet, "/tenants/"+tenantID.String()+"/ping", nil)
	req.Header.Set("X-User-Id", node.Generate().String())
	req.Header.Set("X-User-Role", "admin")
	req.Header.Set("X-Tenant-Id", tenantID.String())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tenantID, captured.principal.TenantID)
	got, ok := tenantctx.TenantIDFromContext(captured.ctx)
	assert.True(t, ok)
	assert.Equal(t, tenantID, got)
}

func TestTenantRequiredRejectsCrossTenantCaller(t *testing.T) {
	var captured capturedRequest
	r := tenantTestRouter(t, &captured)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/tenants/"+node.Generate().String()+"/ping", nil)
	req.Header.Set("X-User-Id", node.Generate().String())
	req.Header.Set("X-User-Role", "admin")
	req.Header.Set("X-Tenant-Id", node.Generate().String())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTenantRequiredSuperadminCrossesTenants(t *testing.T) {
	var captured capturedRequest
	r := tenantTestRouter(t, &captured)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	tenantID := node.Generate()

	req := httptest.NewRequest(http.MethodGet, "/tenants/"+tenantID.String()+"/ping", nil)
	req.Header.Set("X-User-Id", node.Generate().String())
	req.Header.Set("X-User-Role", "superadmin")
	req.Header.Set("X-Tenant-Id", node.Generate().String())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tenantID, captured.principal.TenantID)
}
