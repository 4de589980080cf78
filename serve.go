package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"writingway/server"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr string
		mock bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.ServerAddr
			}
			return runServe(cmd.Context(), a, addr, mock)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config server_addr)")
	cmd.Flags().BoolVar(&mock, "mock", false, "use the scripted mock backend")
	return cmd
}

func runServe(ctx context.Context, a *app, addr string, mock bool) error {
	agent, err := a.agent(mock)
	if err != nil {
		return err
	}
	srv, err := server.New(agent, a.store, server.Options{
		HighlightDuration: a.cfg.Generation.HighlightDuration,
		GenerateTimeout:   a.cfg.AI.Timeout,
		Log:               a.log.Named("server"),
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hs := &http.Server{
		Addr:              addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("starting web server", zap.String("addr", addr), zap.Bool("mock", mock))
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Close()
	return hs.Shutdown(shutdownCtx)
}
