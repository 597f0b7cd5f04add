package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	subdomain "github.com/smallbiznis/entitle/internal/subscription/domain"
)

func (s *Server) GetSubscription(c *gin.Context) {
	subscription, err := s.subscriptionSvc.Get(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, subscription)
}

func (s *Server) CreateSubscription(c *gin.Context) {
	var req subdomain.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	subscription, err := s.subscriptionSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, subscription)
}

func (s *Server) ChangePlan(c *gin.Context) {
	var req subdomain.ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.ChangedBy) == "" {
		req.ChangedBy = s.actorFrom(c)
	}

	subscription, err := s.subscriptionSvc.ChangePlan(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, subscription)
}

func (s *Server) TransitionSubscription(c *gin.Context) {
	var req subdomain.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.ChangedBy) == "" {
		req.ChangedBy = s.actorFrom(c)
	}

	subscription, err := s.subscriptionSvc.Transition(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, subscription)
}

// actorFrom labels the caller for audit attribution.
func (s *Server) actorFrom(c *gin.Context) string {
	principal := s.principalFrom(c)
	if principal.ID != 0 {
		return principal.ID.String()
	}
	return "system"
}
