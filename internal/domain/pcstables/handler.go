package pcstables

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Handler exposes the code tables.
type Handler struct {
	store *Store
}

// NewHandler creates a new code table handler.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes registers the table routes on the PCS API group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/tables/:prefix", h.GetTable)
}

// GetTable handles GET /api/v1/pcs/tables/:prefix
func (h *Handler) GetTable(c echo.Context) error {
	prefix := strings.ToUpper(strings.TrimSpace(c.Param("prefix")))
	t, err := h.store.Get(prefix)
	switch {
	case errors.Is(err, ErrShortPrefix):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrTableNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, t)
}
