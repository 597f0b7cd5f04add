package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/entitle/internal/tenantctx"
)

// GetEntitlements returns the merged entitlement snapshot with provenance.
func (s *Server) GetEntitlements(c *gin.Context) {
	tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant", "invalid tenant id"))
		return
	}
	includeExpired := strings.EqualFold(c.Query("include_expired"), "true")

	resolved, err := s.resolver.ResolveForTenant(c.Request.Context(), tenantID, includeExpired)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resolved)
}

// GetCapabilities returns one access decision per known feature, for the
// client capability manifest.
func (s *Server) GetCapabilities(c *gin.Context) {
	tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant", "invalid tenant id"))
		return
	}

	decisions, err := s.engineSvc.ResolveAllFeatures(c.Request.Context(), tenantID, s.principalFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"capabilities": decisions})
}

// CheckAccess computes the decision for a single feature. A denied
// decision is a normal 200 response, not an error.
func (s *Server) CheckAccess(c *gin.Context) {
	tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant", "invalid tenant id"))
		return
	}
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		AbortWithError(c, newValidationError("key", "invalid_feature_key", "invalid feature key"))
		return
	}

	decision, err := s.engineSvc.CanAccessFeature(c.Request.Context(), tenantID, s.principalFrom(c), key)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}
