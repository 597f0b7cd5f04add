package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/entitle/internal/auditcontext"
	"github.com/smallbiznis/entitle/internal/permission"
	"github.com/smallbiznis/entitle/internal/tenantctx"
)

const principalContextKey = "entitle.principal"

// PrincipalRequired builds the calling principal from the identity headers
// set by the edge proxy. This service performs no authentication itself.
func (s *Server) PrincipalRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		userIDRaw := strings.TrimSpace(c.GetHeader("X-User-Id"))
		roleRaw := strings.TrimSpace(c.GetHeader("X-User-Role"))

		principal := permission.Principal{Role: permission.ParseRole(roleRaw)}
		if userIDRaw != "system" {
			userID, err := snowflake.ParseString(userIDRaw)
			if err != nil || userID == 0 {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			principal.ID = userID
		}
		if !principal.Role.Known() {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		if custom := strings.TrimSpace(c.GetHeader("X-Custom-Permissions")); custom != "" {
			for _, grant := range strings.Split(custom, ",") {
				grant = strings.TrimSpace(grant)
				if grant != "" {
					principal.CustomPermissions = append(principal.CustomPermissions, grant)
				}
			}
		}

		c.Set(principalContextKey, principal)

		actorType, actorID := "system", ""
		if principal.ID != 0 {
			actorType, actorID = "user", principal.ID.String()
		}
		ctx := auditcontext.WithActor(c.Request.Context(), actorType, actorID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// TenantRequired parses the tenant path segment and scopes the request
// context to it. Non-superadmin callers may only address their own tenant.
func (s *Server) TenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, err := snowflake.ParseString(strings.TrimSpace(c.Param("tenant_id")))
		if err != nil || tenantID == 0 {
			AbortWithError(c, newValidationError("tenant_id", "invalid_tenant", "invalid tenant id"))
			return
		}

		principal := s.principalFrom(c)
		if principal.Role != permission.RoleSuperadmin {
			headerTenant := strings.TrimSpace(c.GetHeader("X-Tenant-Id"))
			if headerTenant != "" && headerTenant != tenantID.String() {
				AbortWithError(c, ErrForbidden)
				return
			}
		}
		principal.TenantID = tenantID
		c.Set(principalContextKey, principal)

		ctx := tenantctx.WithTenantID(c.Request.Context(), tenantID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// authorize gates one admin route through the policy enforcer.
func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := s.principalFrom(c)

		actor := "system"
		if principal.ID != 0 {
			actor = "user:" + principal.ID.String()
		}

		tenantID := strings.TrimSpace(c.Param("tenant_id"))
		if tenantID == "" {
			// Catalog routes are not tenant scoped; authorize against a
			// shared domain so role policies still apply.
			tenantID = "catalog"
		}

		if err := s.authzSvc.Authorize(c.Request.Context(), actor, tenantID, string(principal.Role), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) principalFrom(c *gin.Context) permission.Principal {
	if value, ok := c.Get(principalContextKey); ok {
		if principal, ok := value.(permission.Principal); ok {
			return principal
		}
	}
	return permission.Principal{}
}
