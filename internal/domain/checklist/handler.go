package checklist

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes checklist constraints and note classification.
type Handler struct {
	provider   *Provider
	classifier *Classifier
}

// NewHandler creates a new checklist handler.
func NewHandler(provider *Provider, classifier *Classifier) *Handler {
	return &Handler{provider: provider, classifier: classifier}
}

// RegisterRoutes registers the checklist routes on the PCS API group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/checklists", h.List)
	g.GET("/checklists/:id", h.Get)
	g.POST("/classify", h.Classify)
}

type summary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// List handles GET /api/v1/pcs/checklists
func (h *Handler) List(c echo.Context) error {
	out := []summary{}
	for _, d := range h.classifier.Definitions() {
		out = append(out, summary{ID: d.ID, Title: d.Title})
	}
	return c.JSON(http.StatusOK, out)
}

// Get handles GET /api/v1/pcs/checklists/:id
func (h *Handler) Get(c echo.Context) error {
	cons, err := h.provider.Constraints(c.Param("id"))
	switch {
	case errors.Is(err, ErrUnknownChecklist):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotConfigured):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, cons)
}

// ClassifyRequest is the body of POST /api/v1/pcs/classify.
type ClassifyRequest struct {
	Text string `json:"text" validate:"required"`
}

// ClassifyResponse adds the selected checklist's title to a Detection.
type ClassifyResponse struct {
	Detection
	Title string `json:"title,omitempty"`
}

// Classify handles POST /api/v1/pcs/classify
func (h *Handler) Classify(c echo.Context) error {
	var req ClassifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	d := h.classifier.Detect(ctx, req.Text)
	if err := ctx.Err(); err != nil {
		return err
	}
	resp := ClassifyResponse{Detection: d}
	if d.Label != "" {
		resp.Title, _ = h.classifier.Title(d.Label)
	}
	return c.JSON(http.StatusOK, resp)
}
