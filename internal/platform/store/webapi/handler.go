package webapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/edc/edc/internal/platform/store"
)

// Handler serves the /data/v1 wire over a store.Client.
type Handler struct {
	client store.Client
}

func NewHandler(client store.Client) *Handler {
	return &Handler{client: client}
}

// RegisterRoutes mounts the wire under g, which should be rooted at /data/v1.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/:kind/query", h.Query)
	g.GET("/:kind/:id", h.Get)
	g.POST("/:kind", h.Create)
	g.PATCH("/:kind/:id", h.Update)
	g.DELETE("/:kind/:id", h.Delete)
}

func kindParam(c echo.Context) (store.Kind, error) {
	k, ok := store.ParseKind(c.Param("kind"))
	if !ok {
		return "", echo.NewHTTPError(http.StatusNotFound, "unknown entity kind")
	}
	return k, nil
}

func idParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func storeError(err error) error {
	var re *store.RemoteError
	if errors.As(err, &re) && re.Status >= 400 && re.Status < 500 {
		return echo.NewHTTPError(re.Status, re.Err.Error())
	}
	kind := store.Classify(err)
	return echo.NewHTTPError(store.HTTPStatus(kind), err.Error())
}

func (h *Handler) Query(c echo.Context) error {
	kind, err := kindParam(c)
	if err != nil {
		return err
	}
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	filters := make([]store.Filter, 0, len(req.Filters))
	for _, f := range req.Filters {
		v, err := store.DecodeValue(f.Value)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		filters = append(filters, store.Eq(f.Column, v))
	}
	recs, err := h.client.Query(c.Request().Context(), kind, req.Columns, filters...)
	if err != nil {
		return storeError(err)
	}
	out := queryResponse{Records: make([]map[string]any, 0, len(recs))}
	for _, r := range recs {
		out.Records = append(out.Records, store.EncodeFields(r))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Get(c echo.Context) error {
	kind, err := kindParam(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var columns []string
	if cols := c.QueryParam("columns"); cols != "" {
		columns = strings.Split(cols, ",")
	}
	rec, err := h.client.Get(c.Request().Context(), kind, id, columns)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, store.EncodeFields(rec))
}

func decodeWrite(c echo.Context) (store.Fields, error) {
	var req struct {
		Fields map[string]any `json:"fields"`
	}
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	fields := make(store.Fields, len(req.Fields))
	for k, v := range req.Fields {
		dv, err := store.DecodeValue(v)
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		fields[k] = dv
	}
	return fields, nil
}

func (h *Handler) Create(c echo.Context) error {
	kind, err := kindParam(c)
	if err != nil {
		return err
	}
	fields, err := decodeWrite(c)
	if err != nil {
		return err
	}
	id, err := h.client.Create(c.Request().Context(), kind, fields)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusCreated, createResponse{ID: id})
}

func (h *Handler) Update(c echo.Context) error {
	kind, err := kindParam(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	fields, err := decodeWrite(c)
	if err != nil {
		return err
	}
	if err := h.client.Update(c.Request().Context(), kind, id, fields); err != nil {
		return storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Delete(c echo.Context) error {
	kind, err := kindParam(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.client.Delete(c.Request().Context(), kind, id); err != nil {
		return storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
