package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	web "yogastudio/internal/adapters/http"
	"yogastudio/internal/adapters/http/perf"
	"yogastudio/internal/adapters/interceptor"
	"yogastudio/internal/application/scenario"
)

const shutdownTimeout = 5 * time.Second

type serveOptions struct {
	scenarioPath string
	watch        bool
	addr         string
}

func newServeCmd(a *app) *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the mocked API and the control endpoints",
		Long: `Serve answers every call under the API prefix from the rule registry and
exposes /__harness/ for registering rules, awaiting aliases and streaming hits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.watch && opts.scenarioPath == "" {
				return errors.New("--watch needs --scenario")
			}
			addr := opts.addr
			if addr == "" {
				addr = a.cfg.ListenAddr
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", addr, err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, ln, opts)
		},
	}
	cmd.Flags().StringVar(&opts.scenarioPath, "scenario", "", "scenario file applied at start")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "reload the scenario when the file changes")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (default from listen_addr)")
	return cmd
}

// serve runs the control server on ln until ctx is cancelled.
func (a *app) serve(ctx context.Context, ln net.Listener, opts serveOptions) error {
	engineOpts := []interceptor.Option{interceptor.WithAwaitTimeout(a.cfg.AwaitTimeout)}
	runID := ""
	if a.cfg.JournalPath != "" {
		store, closeJournal, err := a.openJournal()
		if err != nil {
			ln.Close()
			return err
		}
		defer closeJournal()
		runID = uuid.New().String()
		engineOpts = append(engineOpts, interceptor.WithRecorder(store, runID))
	}
	engine := interceptor.NewEngine(engineOpts...)

	if opts.scenarioPath != "" {
		sc, err := scenario.Load(opts.scenarioPath)
		if err != nil {
			ln.Close()
			return err
		}
		if err := scenario.Apply(engine, sc); err != nil {
			ln.Close()
			return err
		}
	}
	if opts.watch {
		go func() {
			err := scenario.Watch(ctx, opts.scenarioPath, scenario.DefaultDebounce, func(sc scenario.Scenario) {
				if err := scenario.Replace(engine, sc); err != nil {
					slog.Error("scenario_event", "event", "reload_failed", "path", opts.scenarioPath, "error", err.Error())
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("scenario_event", "event", "watch_failed", "path", opts.scenarioPath, "error", err.Error())
			}
		}()
	}

	srv := &http.Server{
		Handler: web.NewMux(web.Deps{
			Engine:         engine,
			APIPrefix:      a.cfg.APIPrefix,
			Collector:      perf.NewCollector(perf.DefaultRingSize),
			AllowedOrigins: []string{a.cfg.AppURL},
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("server_event", "event", "started", "version", version, "addr", ln.Addr().String(), "api_prefix", a.cfg.APIPrefix, "run_id", runID)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("server_event", "event", "stopped", "run_id", runID, "unmatched", len(engine.Unmatched()))
	return nil
}
