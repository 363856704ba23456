package navigator

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/pcsguide/internal/domain/checklist"
	"github.com/ehr/pcsguide/internal/domain/rules"
)

// Handler exposes code proposals and note analysis.
type Handler struct {
	svc *Service
}

// NewHandler creates a new navigator handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the navigator routes on the PCS API group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/propose", h.Propose)
	g.POST("/analyze", h.Analyze)
}

// ProposeRequest is the body of POST /api/v1/pcs/propose.
type ProposeRequest struct {
	Query string      `json:"query"`
	Facts rules.Facts `json:"facts"`
	Limit int         `json:"limit" validate:"gte=0"`
}

// Propose handles POST /api/v1/pcs/propose
func (h *Handler) Propose(c echo.Context) error {
	var req ProposeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res := h.svc.Propose(c.Request().Context(), req.Query, req.Facts, req.Limit)
	return c.JSON(http.StatusOK, res)
}

// Analyze handles POST /api/v1/pcs/analyze
func (h *Handler) Analyze(c echo.Context) error {
	var req AnalyzeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Analyze(c.Request().Context(), req)
	if errors.Is(err, checklist.ErrUnknownChecklist) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}
