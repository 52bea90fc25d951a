// Package api exposes the validation queue and project status over HTTP so
// reviewers can work the queue from a browser or external tool while the
// pipeline waits at the validation boundary.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/narravid/narravid/internal/application/handlers"
	"github.com/narravid/narravid/internal/domain/entities"
	"github.com/narravid/narravid/internal/domain/ports"
	"github.com/narravid/narravid/internal/domain/services"
)

// Server holds the HTTP surface's dependencies.
type Server struct {
	validation *handlers.ValidationHandler
	status     *handlers.StatusHandler
	logger     *slog.Logger
}

// NewServer creates the HTTP server facade.
func NewServer(validation *handlers.ValidationHandler, status *handlers.StatusHandler, logger *slog.Logger) *Server {
	return &Server{validation: validation, status: status, logger: logger}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")
	{
		v1.GET("/validation/pending", s.listPending)
		v1.POST("/validation/items/:id/decision", s.decide)
		v1.GET("/status", s.projectStatus)
	}
	return router
}

// decisionRequest is the wire form of a reviewer decision.
type decisionRequest struct {
	Action         string `json:"action" binding:"required"`
	TargetEntityID string `json:"target_entity_id"`
	Edited         *struct {
		Name         string `json:"name"`
		Kind         string `json:"kind"`
		Description  string `json:"description"`
		VoiceProfile string `json:"voice_profile"`
		AssetRef     string `json:"asset_ref"`
	} `json:"edited"`
}

func (s *Server) listPending(c *gin.Context) {
	items, err := s.validation.Pending(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if items == nil {
		items = []*entities.PendingItem{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) decide(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	decision := entities.Decision{
		Action:         entities.DecisionAction(req.Action),
		TargetEntityID: req.TargetEntityID,
	}
	if req.Edited != nil {
		decision.Edit = &entities.EntityEdit{
			Name:         req.Edited.Name,
			Kind:         entities.EntityKind(req.Edited.Kind),
			Description:  req.Edited.Description,
			VoiceProfile: req.Edited.VoiceProfile,
			AssetRef:     req.Edited.AssetRef,
		}
	}

	itemID := c.Param("id")
	if err := s.validation.Decide(c.Request.Context(), itemID, decision); err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Info("decision applied",
		slog.String("item", itemID),
		slog.String("action", req.Action))
	c.JSON(http.StatusOK, gin.H{"status": "applied"})
}

func (s *Server) projectStatus(c *gin.Context) {
	status, err := s.status.Handle(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// fail maps domain errors to HTTP status codes.
func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ports.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrAlreadyDecided):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrAliasTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case services.IsInputError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
