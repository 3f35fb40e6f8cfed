// Package storeconn opens the entity store named by the single STORE_URL
// setting and hands out per-page connections to it.
package storeconn

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/edc/edc/internal/platform/db"
	"github.com/edc/edc/internal/platform/store"
	"github.com/edc/edc/internal/platform/store/memory"
	"github.com/edc/edc/internal/platform/store/pgstore"
	"github.com/edc/edc/internal/platform/store/sqlitestore"
	"github.com/edc/edc/internal/platform/store/webapi"
)

// Options carries what Open needs from the service configuration.
type Options struct {
	URL        string
	Token      string
	Timeout    time.Duration
	MaxConns   int32
	MinConns   int32
	Observer   store.Observer
	HTTPClient *http.Client
}

// Conn is an opened store. Client is already instrumented.
type Conn struct {
	Client  store.Client
	Backend string
	// Pool is set for the postgres backend only.
	Pool *pgxpool.Pool

	ping  func(ctx context.Context) error
	close func()
}

// Open selects a backend from the URL scheme:
//
//	memory://                 in-process store
//	postgres://, postgresql:// pgx pool over entity_record
//	sqlite://<path>           local SQLite file
//	http://, https://         remote web API
func Open(ctx context.Context, opts Options, logger zerolog.Logger) (*Conn, error) {
	if opts.URL == "" {
		return nil, store.ErrConfigurationMissing
	}
	scheme, _, ok := strings.Cut(opts.URL, "://")
	if !ok {
		return nil, fmt.Errorf("store url %q has no scheme", opts.URL)
	}

	var (
		raw store.Client
		c   = &Conn{Backend: strings.ToLower(scheme), close: func() {}}
	)
	switch c.Backend {
	case "memory":
		raw = memory.New()
		c.ping = func(context.Context) error { return nil }
	case "postgres", "postgresql":
		pool, err := db.NewPool(ctx, opts.URL, opts.MaxConns, opts.MinConns)
		if err != nil {
			return nil, err
		}
		pg := pgstore.New(pool)
		raw, c.Pool, c.ping, c.close = pg, pool, pg.Ping, pool.Close
	case "sqlite":
		// sqlite:///abs/path.db, sqlite://relative.db and sqlite://:memory:
		lite, err := sqlitestore.Open(opts.URL[len(scheme)+3:])
		if err != nil {
			return nil, err
		}
		raw, c.ping = lite, lite.Ping
		c.close = func() { _ = lite.Close() }
	case "http", "https":
		webOpts := []webapi.Option{}
		if opts.Token != "" {
			webOpts = append(webOpts, webapi.WithToken(webapi.StaticToken(opts.Token)))
		}
		if opts.HTTPClient != nil {
			webOpts = append(webOpts, webapi.WithHTTPClient(opts.HTTPClient))
		}
		api, err := webapi.New(opts.URL, webOpts...)
		if err != nil {
			return nil, err
		}
		raw, c.ping = api, api.Ping
	default:
		return nil, fmt.Errorf("unsupported store scheme %q", scheme)
	}

	c.Client = store.Instrument(raw, logger.With().Str("component", "store").Str("backend", c.Backend).Logger(), opts.Timeout, opts.Observer)
	logger.Info().Str("backend", c.Backend).Msg("entity store opened")
	return c, nil
}

// Connect implements store.Connector.
func (c *Conn) Connect(ctx context.Context) (store.Client, error) {
	if c == nil || c.Client == nil {
		return nil, store.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, store.Remote("connect", "", err)
	}
	return c.Client, nil
}

// Ping checks the backend is reachable.
func (c *Conn) Ping(ctx context.Context) error {
	if c == nil || c.ping == nil {
		return store.ErrNotConnected
	}
	return c.ping(ctx)
}

// Close releases backend resources.
func (c *Conn) Close() {
	if c != nil && c.close != nil {
		c.close()
	}
}

// HealthHandler answers /health/store.
func HealthHandler(c *Conn) echo.HandlerFunc {
	return func(ec echo.Context) error {
		ctx, cancel := context.WithTimeout(ec.Request().Context(), 5*time.Second)
		defer cancel()

		body := map[string]interface{}{"backend": c.Backend}
		if c.Pool != nil {
			body["pool"] = db.GetPoolStats(c.Pool)
		}
		if err := c.Ping(ctx); err != nil {
			body["status"] = "unhealthy"
			body["error"] = err.Error()
			body["kind"] = store.Classify(err)
			return ec.JSON(http.StatusServiceUnavailable, body)
		}
		body["status"] = "healthy"
		return ec.JSON(http.StatusOK, body)
	}
}
