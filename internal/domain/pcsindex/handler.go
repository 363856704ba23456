package pcsindex

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/pcsguide/pkg/pagination"
)

// maxBrowseHits bounds how many hits a single browse request walks.
const maxBrowseHits = 1000

// Handler exposes the term index for browsing.
type Handler struct {
	index *Index
}

// NewHandler creates a new term index handler.
func NewHandler(index *Index) *Handler {
	return &Handler{index: index}
}

// RegisterRoutes registers the index routes on the PCS API group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/index", h.Browse)
}

// Browse handles GET /api/v1/pcs/index?q=...
func (h *Handler) Browse(c echo.Context) error {
	q := c.QueryParam("q")
	if strings.TrimSpace(q) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter 'q' is required")
	}
	p := pagination.FromContext(c)
	hits := h.index.Lookup(q, maxBrowseHits)
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Window(hits, p), len(hits), p))
}
