package bodysystem

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes the body-system map.
type Handler struct {
	m *Map
}

// NewHandler creates a new body-system handler. m may be nil when no map is
// configured.
func NewHandler(m *Map) *Handler {
	return &Handler{m: m}
}

// RegisterRoutes registers the body-system route on the PCS API group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/body-systems", h.List)
}

// List handles GET /api/v1/pcs/body-systems
func (h *Handler) List(c echo.Context) error {
	if h.m == nil {
		return echo.NewHTTPError(http.StatusNotFound, "body system map not configured")
	}
	return c.JSON(http.StatusOK, h.m)
}
