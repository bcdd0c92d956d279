package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shoplens/cartdetect/internal/auth"
	"github.com/shoplens/cartdetect/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the detection API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var resolver auth.Resolver
		if cfg.Auth.JWTSecret != "" {
			resolver = auth.TokenService{
				Secret: []byte(cfg.Auth.JWTSecret),
				Issuer: cfg.Auth.Issuer,
			}
		} else {
			zap.L().Warn("no jwt secret configured, all requests are anonymous")
		}

		api := server.New(
			env.Gateway,
			env.Registry,
			env.Recorder,
			env.Consensus,
			env.Fetcher,
			env.Coordinator,
			resolver,
			cfg.Server.AllowedOrigins,
		)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: api.Router(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			if err := shutdownServer(srv); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

const shutdownGrace = 10 * time.Second

// shutdownServer drains in-flight requests on a fresh context; the
// signal context is already cancelled by the time shutdown starts.
func shutdownServer(srv *http.Server) error {
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(sctx)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
