package cli

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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/shiden34/internal/engine"
	"github.com/roach88/shiden34/internal/rpc"
)

// DefaultAddr is the listen address of serve.
const DefaultAddr = ":9944"

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database        string
	Addr            string
	ShutdownTimeout time.Duration

	onListen func(addr string) // called once the listener is bound
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(rootOpts, nil)
}

func newServeCommand(rootOpts *RootOptions, onListen func(addr string)) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts, onListen: onListen}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledger over JSON-RPC",
		Long: `Serve the ledger over JSON-RPC 2.0 at /rpc and Prometheus metrics at
/metrics. Calls from all clients are applied one at a time in arrival
order and journaled to the database.

Methods: Ledger.Ping, Ledger.Deploy, Ledger.Transact, Ledger.Query.

Examples:
  shiden34 serve --db ./ledger.db
  shiden34 serve --db ./ledger.db --addr 127.0.0.1:9944`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Addr, "addr", DefaultAddr, "listen address")
	cmd.Flags().DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", 5*time.Second, "graceful shutdown timeout")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := opts.Logger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := engine.NewMetrics(reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register metrics", err)
	}

	st, e, err := openEngine(ctx, opts.Database, logger, engine.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer st.Close()

	handler, err := rpc.NewHandler(rpc.NewService(e, logger), reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build handler", err)
	}

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	addr := ln.Addr().String()
	logger.Info("serving ledger",
		"addr", addr,
		"db", opts.Database,
		"deployed", e.Deployed(),
		"seq", e.Seq(),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", addr)
	if opts.onListen != nil {
		opts.onListen(addr)
	}

	if err := serveLedger(ctx, e, srv, ln, opts.ShutdownTimeout, logger); err != nil {
		return WrapExitError(ExitFailure, "server stopped", err)
	}
	return nil
}

// serveLedger runs the engine loop and srv until ctx is cancelled. The HTTP
// server shuts down first; the engine is stopped only afterwards, so every
// call submitted by a handler is applied before serveLedger returns.
func serveLedger(ctx context.Context, e *engine.Engine, srv *http.Server, ln net.Listener, timeout time.Duration, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	engineCtx := context.WithoutCancel(gctx)
	g.Go(func() error {
		if err := e.Run(engineCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("engine loop: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "timeout", timeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			_ = srv.Close()
		}
		e.Stop()
		return err
	})

	return g.Wait()
}
