package crf

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/edc/edc/internal/domain"
	"github.com/edc/edc/internal/platform/auth"
	"github.com/edc/edc/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	forms := api.Group("/crfs", auth.ReadWrite())
	forms.GET("", h.List)
	forms.GET("/:id", h.Get)
	forms.POST("", h.Create)
	forms.PUT("/:id", h.Update)
	forms.DELETE("/:id", h.Delete)
	forms.GET("/:id/items", h.ListItems)
	forms.POST("/:id/items", h.CreateItem)

	// Monitors may verify but not edit.
	api.POST("/crfs/:id/verify", h.Verify, auth.RequireRole(auth.Readers...))

	items := api.Group("/crf-items", auth.ReadWrite())
	items.GET("/:id", h.GetItem)
	items.PUT("/:id", h.UpdateItem)
	items.DELETE("/:id", h.DeleteItem)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- CRF Handlers --

func (h *Handler) Create(c echo.Context) error {
	var f CRF
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), &f); err != nil {
		return domain.HTTPError(err, "crf not found")
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	f, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return domain.HTTPError(err, "crf not found")
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()

	var (
		items []*CRF
		err   error
	)
	if raw := c.QueryParam("visit_id"); raw != "" {
		visitID, perr := uuid.Parse(raw)
		if perr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid visit_id")
		}
		items, err = h.svc.ListByVisit(ctx, visitID)
	} else {
		items, err = h.svc.List(ctx)
	}
	if err != nil {
		return domain.HTTPError(err, "crfs not found")
	}
	return c.JSON(http.StatusOK, pagination.Paginate(items, pg, c.Path()))
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var f CRF
	if err := c.Bind(&f); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f.ID = id
	if err := h.svc.Update(c.Request().Context(), &f); err != nil {
		return domain.HTTPError(err, "crf not found")
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return domain.HTTPError(err, "crf not found")
	}
	return c.NoContent(http.StatusNoContent)
}

type verifyRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

// Verify marks the form verified by user_id, or by the caller when the body
// names nobody and the caller's subject is a uuid.
func (h *Handler) Verify(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if req.UserID == uuid.Nil {
		req.UserID, _ = uuid.Parse(auth.UserIDFromContext(ctx))
	}
	f, err := h.svc.Verify(ctx, id, req.UserID)
	if err != nil {
		return domain.HTTPError(err, "crf not found")
	}
	return c.JSON(http.StatusOK, f)
}

// -- Item Handlers --

func (h *Handler) CreateItem(c echo.Context) error {
	crfID, err := parseID(c)
	if err != nil {
		return err
	}
	var it Item
	if err := c.Bind(&it); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	it.CRFID = crfID
	if err := h.svc.CreateItem(c.Request().Context(), &it); err != nil {
		return domain.HTTPError(err, "crf item not found")
	}
	return c.JSON(http.StatusCreated, it)
}

func (h *Handler) ListItems(c echo.Context) error {
	crfID, err := parseID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, err := h.svc.ListItems(c.Request().Context(), crfID)
	if err != nil {
		return domain.HTTPError(err, "crf items not found")
	}
	return c.JSON(http.StatusOK, pagination.Paginate(items, pg, c.Path()))
}

func (h *Handler) GetItem(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	it, err := h.svc.GetItem(c.Request().Context(), id)
	if err != nil {
		return domain.HTTPError(err, "crf item not found")
	}
	return c.JSON(http.StatusOK, it)
}

func (h *Handler) UpdateItem(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var it Item
	if err := c.Bind(&it); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	it.ID = id
	if err := h.svc.UpdateItem(c.Request().Context(), &it); err != nil {
		return domain.HTTPError(err, "crf item not found")
	}
	return c.JSON(http.StatusOK, it)
}

func (h *Handler) DeleteItem(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteItem(c.Request().Context(), id); err != nil {
		return domain.HTTPError(err, "crf item not found")
	}
	return c.NoContent(http.StatusNoContent)
}
