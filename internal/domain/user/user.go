// Package user reads the directory of people who can verify a CRF. Users
// are owned by the store's identity side and never written from here.
package user

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/edc/edc/internal/domain"
	"github.com/edc/edc/internal/platform/auth"
	"github.com/edc/edc/internal/platform/store"
	"github.com/edc/edc/pkg/pagination"
)

type User struct {
	ID        uuid.UUID `json:"user_id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
}

func (u *User) Key() uuid.UUID { return u.ID }

func (u *User) Clone() *User {
	c := *u
	return &c
}

const (
	ColID        = "userId"
	ColFullName  = "fullName"
	ColEmail     = "email"
	ColFirstName = "firstName"
	ColLastName  = "lastName"
)

var Columns = []string{ColFullName, ColEmail, ColFirstName, ColLastName}

var codec = domain.Codec[*User]{Kind: store.KindUser, Columns: Columns, ToModel: ToModel}

func ToModel(r store.Record) *User {
	return &User{
		ID:        r.ID(ColID),
		FullName:  r.String(ColFullName),
		Email:     r.String(ColEmail),
		FirstName: r.String(ColFirstName),
		LastName:  r.String(ColLastName),
	}
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	List(ctx context.Context) ([]*User, error)
}

type storeRepo struct {
	client store.Client
}

func NewStoreRepo(client store.Client) Repository {
	return &storeRepo{client: client}
}

func (r *storeRepo) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return domain.Get(ctx, r.client, codec, id)
}

func (r *storeRepo) List(ctx context.Context) ([]*User, error) {
	return domain.List(ctx, r.client, codec)
}

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/users", auth.RequireRole(auth.Readers...))
	g.GET("", h.List)
	g.GET("/:id", h.Get)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	users, err := h.repo.List(c.Request().Context())
	if err != nil {
		return domain.HTTPError(err, "users not found")
	}
	return c.JSON(http.StatusOK, pagination.Paginate(users, pg, c.Path()))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	u, err := h.repo.GetByID(c.Request().Context(), id)
	if err != nil {
		return domain.HTTPError(err, "user not found")
	}
	return c.JSON(http.StatusOK, u)
}
