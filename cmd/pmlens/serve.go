package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/pmlens/pkg/server"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP analysis server",
		Long: `Start an HTTP server that analyzes uploaded event logs.

Endpoints:
  POST /api/analyze   multipart "file" field or raw body; ?format=, ?output=, ?name=
  GET  /api/health    liveness
  GET  /metrics       Prometheus metrics

Examples:
  pmlens serve                    # Start on the configured port (8080)
  pmlens serve --port 3000        # Start on custom port
  pmlens serve --host 0.0.0.0     # Listen on all interfaces`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			if cmd.Flags().Changed("host") {
				a.cfg.Server.Host = host
			}
			return runServe(cmd, a)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	cmd.Flags().StringVar(&host, "host", "localhost", "Host to bind to")

	return cmd
}

func runServe(cmd *cobra.Command, a *app) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	analyzer, err := a.analyzer(ctx, nil)
	if err != nil {
		return err
	}

	sc := a.cfg.Server
	srv := server.New(analyzer, server.Config{
		MaxUploadBytes: sc.MaxUploadBytes(),
		ReadTimeout:    sc.ReadTimeout,
		WriteTimeout:   sc.WriteTimeout,
		Report:         a.reportOptions(),
	}, a.logger)

	addr := sc.Addr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	url := "http://" + addr
	if sc.Host == "0.0.0.0" || sc.Host == "" {
		url = fmt.Sprintf("http://localhost:%d", sc.Port)
	}

	w := cmd.ErrOrStderr()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  ╭─────────────────────────────────────╮")
	fmt.Fprintln(w, "  │         PMLENS SERVER               │")
	fmt.Fprintln(w, "  ├─────────────────────────────────────┤")
	fmt.Fprintf(w, "  │  Local:   %-25s │\n", url)
	fmt.Fprintln(w, "  │                                     │")
	fmt.Fprintln(w, "  │  Press Ctrl+C to stop               │")
	fmt.Fprintln(w, "  ╰─────────────────────────────────────╯")
	fmt.Fprintln(w)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(listener)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		fmt.Fprintln(w, "\nShutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errChan
	}
}
