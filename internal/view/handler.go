package view

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/edc/edc/internal/platform/auth"
)

type Handler struct {
	sessions *SessionManager
	deps     Deps
}

func NewHandler(sessions *SessionManager, deps Deps) *Handler {
	return &Handler{sessions: sessions, deps: deps}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/pages", auth.RequireRole(auth.Readers...))
	g.POST("/:page", h.Open)
	g.GET("/sessions/:sid", h.Get)
	g.POST("/sessions/:sid/events", h.Event)
	g.DELETE("/sessions/:sid", h.Close)
}

type sessionResponse struct {
	SessionID string   `json:"session_id"`
	View      PageView `json:"view"`
}

type eventResponse struct {
	Outcome Outcome  `json:"outcome"`
	View    PageView `json:"view"`
}

func eventError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrUnknownEvent), errors.Is(err, ErrBadDraft):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUnknownItem), errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrUnknownPage):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func owner(c echo.Context) string {
	return auth.UserIDFromContext(c.Request().Context())
}

// Open activates a page. The CRF editor takes ?id= to edit an existing form.
func (h *Handler) Open(c echo.Context) error {
	var id uuid.UUID
	if raw := c.QueryParam("id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
		}
		id = parsed
	}
	page, err := NewPage(c.Param("page"), h.deps, id)
	if err != nil {
		return eventError(err)
	}
	s, err := h.sessions.Open(c.Request().Context(), owner(c), page)
	if err != nil {
		return eventError(err)
	}
	return c.JSON(http.StatusCreated, sessionResponse{SessionID: s.ID, View: page.View()})
}

func (h *Handler) Get(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("sid"), owner(c))
	if err != nil {
		return eventError(err)
	}
	return c.JSON(http.StatusOK, sessionResponse{SessionID: s.ID, View: s.Page.View()})
}

// Event applies one event. Store failures are part of a 200 response; the
// page keeps its previous list and shows the failure.
func (h *Handler) Event(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("sid"), owner(c))
	if err != nil {
		return eventError(err)
	}
	var ev Event
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if ev.Mutating() && !auth.HasRole(auth.RolesFromContext(c.Request().Context()), auth.Writers...) {
		return echo.NewHTTPError(http.StatusForbidden, "read-only role")
	}
	out, err := s.Page.Handle(c.Request().Context(), ev)
	if err != nil {
		return eventError(err)
	}
	return c.JSON(http.StatusOK, eventResponse{Outcome: out, View: s.Page.View()})
}

func (h *Handler) Close(c echo.Context) error {
	if err := h.sessions.Close(c.Param("sid"), owner(c)); err != nil {
		return eventError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
