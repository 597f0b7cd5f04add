package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	subdomain "github.com/smallbiznis/entitle/internal/subscription/domain"
)

func (s *Server) ListOverrides(c *gin.Context) {
	includeExpired := strings.EqualFold(c.Query("include_expired"), "true")

	overrides, err := s.subscriptionSvc.ListOverrides(c.Request.Context(), includeExpired)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"overrides": overrides})
}

func (s *Server) UpsertOverride(c *gin.Context) {
	var req subdomain.UpsertOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Key = strings.TrimSpace(c.Param("key"))
	if strings.TrimSpace(req.CreatedBy) == "" {
		req.CreatedBy = s.actorFrom(c)
	}

	override, err := s.subscriptionSvc.UpsertOverride(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, override)
}

func (s *Server) ExpireOverride(c *gin.Context) {
	var req subdomain.ExpireOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Key = strings.TrimSpace(c.Param("key"))
	if strings.TrimSpace(req.ChangedBy) == "" {
		req.ChangedBy = s.actorFrom(c)
	}

	override, err := s.subscriptionSvc.ExpireOverride(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, override)
}
