package export

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/edc/edc/internal/domain"
	"github.com/edc/edc/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/trials/:id/export", h.Export, auth.RequireRole(auth.Readers...))
}

func (h *Handler) Export(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	format, err := ParseFormat(c.QueryParam("format"))
	if err != nil {
		return domain.HTTPError(err, "")
	}
	ctx := c.Request().Context()
	meta, err := h.svc.Export(ctx, id, format, auth.UserIDFromContext(ctx))
	if err != nil {
		return domain.HTTPError(err, "trial not found")
	}
	c.Response().Header().Set(echo.HeaderLocation, "/api/v1/exports/"+meta.Key)
	return c.JSON(http.StatusCreated, meta)
}
