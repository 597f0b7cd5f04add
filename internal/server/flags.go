package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	flagdomain "github.com/smallbiznis/entitle/internal/flag/domain"
)

func (s *Server) ListFlags(c *gin.Context) {
	flags, err := s.flagSvc.GetFlags(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flags": flags})
}

func (s *Server) GetFlag(c *gin.Context) {
	flag, err := s.flagSvc.GetFlag(c.Request.Context(), c.Param("key"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, flag)
}

type setFlagBody struct {
	Enabled   *bool   `json:"enabled"`
	ChangedBy string  `json:"changed_by"`
	Reason    *string `json:"reason,omitempty"`
}

func (s *Server) SetFlag(c *gin.Context) {
	var body setFlagBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Enabled == nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	changedBy := strings.TrimSpace(body.ChangedBy)
	if changedBy == "" {
		changedBy = s.actorFrom(c)
	}

	flag, err := s.flagSvc.SetFlag(c.Request.Context(), flagdomain.SetFlagRequest{
		Key:       c.Param("key"),
		Enabled:   *body.Enabled,
		ChangedBy: changedBy,
		Reason:    body.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, flag)
}

func (s *Server) BulkSetFlags(c *gin.Context) {
	var req flagdomain.BulkSetFlagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.ChangedBy) == "" {
		req.ChangedBy = s.actorFrom(c)
	}

	flags, err := s.flagSvc.BulkSetFlags(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flags": flags})
}

func (s *Server) ResetFlags(c *gin.Context) {
	var req flagdomain.ResetFlagsRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.ChangedBy) == "" {
		req.ChangedBy = s.actorFrom(c)
	}

	if err := s.flagSvc.ResetToDefaults(c.Request.Context(), req); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
