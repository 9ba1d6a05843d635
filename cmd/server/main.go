package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"GoRowSearch/internal/config"
	"GoRowSearch/internal/index"
	"GoRowSearch/internal/server"
	"GoRowSearch/internal/store"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	os.Exit(submain(context.Background()))
}

func submain(ctx context.Context) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "gorowsearch",
		Short:         "Search a row store through a full-text index",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	config.RegisterFlags(v, cmd.Flags())

	cmd.AddCommand(newCheckSchemaCommand())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	})
	return cmd
}

func newCheckSchemaCommand() *cobra.Command {
	var stamp bool
	cmd := &cobra.Command{
		Use:   "check-schema <file>",
		Short: "Validate a schema file",
		Long:  "Validate a schema file. With --stamp the file is rewritten with its checksum.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := index.LoadSchema(args[0])
			if err != nil {
				return err
			}
			if stamp {
				if err := index.SaveSchema(args[0], s); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d fields ok\n", args[0], len(s.Fields))
			if s.Checksum != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "checksum %s\n", s.Checksum)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&stamp, "stamp", false, "rewrite the file with its checksum")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if cfg.SchemaPath == "" {
		return fmt.Errorf("%w: --schema is required", config.ErrInvalidConfig)
	}
	schema, err := index.LoadSchema(cfg.SchemaPath)
	if err != nil {
		return err
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("starting GoRowSearch",
		"version", Version,
		"listen", cfg.Listen,
		"store", cfg.Store.Driver,
		"schema", cfg.SchemaPath,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mgr, err := server.NewIndexManager(ctx, cfg, schema, st, reg, logger)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("initialize index: %w", err)
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			logger.Error("close index", "error", err)
		}
	}()

	refreshCtx, cancelRefresh := context.WithCancel(ctx)
	defer cancelRefresh()
	go mgr.RunRefresher(refreshCtx)

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      server.NewHandler(mgr, reg, logger).Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(cfg config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		st, err := store.OpenSQLite(cfg.Store.DSN, logger)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return store.NewMemory(), nil
	}
}
