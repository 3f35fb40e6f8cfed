package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/edc/edc/internal/config"
	"github.com/edc/edc/internal/domain/export"
	"github.com/edc/edc/internal/platform/blobstore"
	"github.com/edc/edc/internal/platform/db"
	"github.com/edc/edc/internal/platform/metrics"
	"github.com/edc/edc/internal/platform/storeconn"
	"github.com/edc/edc/migrations"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "edc-server",
		Short:        "Clinical trial data capture API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(exportCmd())
	return rootCmd
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openBlobs(ctx context.Context, cfg *config.Config) (blobstore.BlobStore, error) {
	return blobstore.Open(ctx, blobstore.Options{
		Driver: cfg.ExportDriver,
		Dir:    cfg.ExportDir,
		S3: blobstore.S3Config{
			Region:    cfg.ExportS3Region,
			Bucket:    cfg.ExportS3Bucket,
			Endpoint:  cfg.ExportS3Endpoint,
			PathStyle: cfg.ExportS3PathStyle,
		},
	})
}

func openStore(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger zerolog.Logger) (*storeconn.Conn, error) {
	opts := storeconn.Options{
		URL:      cfg.StoreURL,
		Token:    cfg.StoreToken,
		Timeout:  cfg.StoreTimeout,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	}
	if m != nil {
		opts.Observer = m
	}
	return storeconn.Open(ctx, opts, logger)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	conn, err := openStore(ctx, cfg, m, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open entity store")
		return err
	}
	defer conn.Close()

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open export store")
		return err
	}

	e, sessions, err := newServer(cfg, conn, blobs, m, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sessions.Run(gctx)
		return nil
	})
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", conn.Backend).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// postgresPool opens a pool for the migration and tenant commands, which
// only apply to the postgres backend.
func postgresPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	switch cfg.StoreScheme() {
	case "postgres", "postgresql":
	default:
		return nil, fmt.Errorf("STORE_URL must be a postgres url, got scheme %q", cfg.StoreScheme())
	}
	return db.NewPool(ctx, cfg.StoreURL, cfg.DBMaxConns, cfg.DBMinConns)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := postgresPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
			count, err := db.NewMigrator(pool, migrations.FS).Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", db.SchemaFor("default"), "Target schema for migrations")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := postgresPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd, schema, statuses)
			return nil
		},
	}
	statusCmd.Flags().String("schema", db.SchemaFor("default"), "Target schema for migrations")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(cmd *cobra.Command, schema string, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create and migrate a tenant schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := postgresPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Creating tenant schema: %s\n", db.SchemaFor(name))
			if err := db.CreateTenantSchema(ctx, pool, name, migrations.FS); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")

	cmd.AddCommand(createCmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export one trial with its subjects, visits and forms",
		RunE: func(cmd *cobra.Command, args []string) error {
			trialArg, _ := cmd.Flags().GetString("trial")
			formatArg, _ := cmd.Flags().GetString("format")

			trialID, err := uuid.Parse(trialArg)
			if err != nil {
				return fmt.Errorf("--trial must be a trial id: %w", err)
			}
			format, err := export.ParseFormat(formatArg)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			return runExport(cmd, cfg, logger, trialID, format)
		},
	}
	cmd.Flags().String("trial", "", "Trial id to export")
	cmd.Flags().String("format", string(export.FormatJSON), "Export format (json or csv)")
	return cmd
}

func runExport(cmd *cobra.Command, cfg *config.Config, logger zerolog.Logger, trialID uuid.UUID, format export.Format) error {
	ctx := cmd.Context()
	conn, err := openStore(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		return err
	}

	meta, err := export.NewService(export.StoreSources(conn.Client), blobs, logger).Export(ctx, trialID, format, "cli")
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}
