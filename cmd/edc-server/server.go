package main

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/edc/edc/internal/config"
	"github.com/edc/edc/internal/domain/crf"
	"github.com/edc/edc/internal/domain/export"
	"github.com/edc/edc/internal/domain/integrity"
	"github.com/edc/edc/internal/domain/subject"
	"github.com/edc/edc/internal/domain/trial"
	"github.com/edc/edc/internal/domain/user"
	"github.com/edc/edc/internal/domain/visit"
	"github.com/edc/edc/internal/platform/auth"
	"github.com/edc/edc/internal/platform/blobstore"
	"github.com/edc/edc/internal/platform/db"
	"github.com/edc/edc/internal/platform/metrics"
	"github.com/edc/edc/internal/platform/middleware"
	"github.com/edc/edc/internal/platform/store/webapi"
	"github.com/edc/edc/internal/platform/storeconn"
	"github.com/edc/edc/internal/view"
)

const version = "0.1.0"

// newServer builds the HTTP surface over an opened store and export bucket.
// The returned session manager must be Run by the caller.
func newServer(cfg *config.Config, conn *storeconn.Conn, blobs blobstore.BlobStore, m *metrics.Metrics, logger zerolog.Logger) (*echo.Echo, *view.SessionManager, error) {
	policy, err := integrity.ParsePolicy(cfg.IntegrityDeletePolicy)
	if err != nil {
		return nil, nil, err
	}
	integrityOpts := integrity.Options{CheckParents: cfg.IntegrityCheckParents, Policy: policy}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger, m))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(m.Middleware())

	// Health and metrics stay outside auth.
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
			"store":   conn.Backend,
		})
	})
	e.GET("/health/store", storeconn.HealthHandler(conn))
	e.GET("/metrics", m.Handler())

	authMW, err := authMiddleware(cfg)
	if err != nil {
		return nil, nil, err
	}
	scoped := []echo.MiddlewareFunc{authMW}
	if conn.Pool != nil {
		scoped = append(scoped, db.TenantMiddleware(conn.Pool, cfg.DefaultTenant))
	}
	scoped = append(scoped, middleware.Audit(logger))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	apiV1 := e.Group("/api/v1", scoped...)
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	// Export downloads stream; they get no deadline.
	apiV1.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/api/v1/exports/"))

	client := conn.Client
	chk := integrity.New(client, integrityOpts, logger)

	trial.NewHandler(trial.NewService(trial.NewStoreRepo(client), chk)).RegisterRoutes(apiV1)
	subject.NewHandler(subject.NewService(subject.NewStoreRepo(client), chk)).RegisterRoutes(apiV1)
	visit.NewHandler(visit.NewService(visit.NewStoreRepo(client), chk)).RegisterRoutes(apiV1)
	crf.NewHandler(crf.NewService(crf.NewStoreRepo(client), crf.NewItemStoreRepo(client), chk)).RegisterRoutes(apiV1)
	user.NewHandler(user.NewStoreRepo(client)).RegisterRoutes(apiV1)

	export.NewHandler(export.NewService(export.StoreSources(client), blobs, logger)).RegisterRoutes(apiV1)
	blobstore.NewBlobHandler(blobs).RegisterRoutes(apiV1)

	sessions := view.NewSessionManager(cfg.SessionIdleTimeout, m, logger)
	view.NewHandler(sessions, view.Deps{
		Connector: conn,
		Integrity: integrityOpts,
		Logger:    logger,
		Now:       time.Now,
	}).RegisterRoutes(apiV1)

	// Wire endpoint of the web API backend, so one instance can front another.
	dataV1 := e.Group("/data/v1", append(scoped, dataRoles())...)
	webapi.NewHandler(client).RegisterRoutes(dataV1)

	return e, sessions, nil
}

// dataRoles treats store queries as reads even though they are POSTs.
func dataRoles() echo.MiddlewareFunc {
	read, write := auth.RequireRole(auth.Readers...), auth.RequireRole(auth.Writers...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		readNext, writeNext := read(next), write(next)
		return func(c echo.Context) error {
			if c.Request().Method == http.MethodGet || strings.HasSuffix(c.Request().URL.Path, "/query") {
				return readNext(c)
			}
			return writeNext(c)
		}
	}
}

func authMiddleware(cfg *config.Config) (echo.MiddlewareFunc, error) {
	if cfg.IsDev() {
		return auth.DevAuthMiddleware(), nil
	}
	key, err := resolveSigningKey(cfg.AuthSigningKey)
	if err != nil {
		return nil, err
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: key,
	}), nil
}

// resolveSigningKey decodes the hex AUTH_SIGNING_KEY. Empty means tokens are
// checked against the issuer's JWKS instead.
func resolveSigningKey(envValue string) ([]byte, error) {
	if envValue == "" {
		return nil, nil
	}
	decoded, err := hex.DecodeString(envValue)
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_SIGNING_KEY hex value: %w", err)
	}
	return decoded, nil
}
