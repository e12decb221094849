// Package v1 provides the REST read API for diagram collaboration data.
package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/domain"
	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/room"
	"github.com/Calambillo11235813/PRIMER-PARCIAL-SW1/internal/store"
)

// Handler handles HTTP requests.
type Handler struct {
	store store.Store
	rooms *room.Registry
}

// NewHandler creates a new handler.
func NewHandler(store store.Store, rooms *room.Registry) *Handler {
	return &Handler{
		store: store,
		rooms: rooms,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/v1/diagramas/:diagrama_id/cambios", h.GetChanges)
	e.GET("/v1/diagramas/:diagrama_id/estructura", h.GetStructure)
	e.GET("/v1/diagramas/:diagrama_id/usuarios", h.GetConnectedUsers)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// GetChanges retrieves the change log for a diagram, newest first.
// GET /v1/diagramas/:diagrama_id/cambios
func (h *Handler) GetChanges(c echo.Context) error {
	diagramID := c.Param("diagrama_id")
	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 {
			limit = val
		}
	}

	ctx := c.Request().Context()

	changes, err := h.store.ListChanges(ctx, diagramID, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if changes == nil {
		changes = []domain.ChangeRecord{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"cambios": changes,
	})
}

// GetStructure retrieves the current structure of a diagram.
// GET /v1/diagramas/:diagrama_id/estructura
func (h *Handler) GetStructure(c echo.Context) error {
	diagramID := c.Param("diagrama_id")
	ctx := c.Request().Context()

	structure, err := h.store.GetStructure(ctx, diagramID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if structure == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "diagrama no encontrado"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"diagrama_id": diagramID,
		"estructura":  structure,
	})
}

// GetConnectedUsers retrieves the presence list of a diagram's room. A
// diagram without a live room has no connected users.
// GET /v1/diagramas/:diagrama_id/usuarios
func (h *Handler) GetConnectedUsers(c echo.Context) error {
	diagramID := c.Param("diagrama_id")

	users := []domain.ConnectedUser{}
	if r, ok := h.rooms.Get(diagramID); ok {
		users = r.ConnectedUsers()
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"diagrama_id":         diagramID,
		"usuarios_conectados": users,
	})
}
