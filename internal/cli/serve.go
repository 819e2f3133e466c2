package cli

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/scan-check/internal/auth"
	"github.com/example/scan-check/internal/handlers"
	"github.com/example/scan-check/internal/server"
	"github.com/example/scan-check/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web interface",
	Long: `Start the web interface: pick a scan, preview it and analyze it.

Endpoints:
  GET  /              Upload page
  POST /select        Replace the selected image (multipart field "file")
  POST /analyze       Submit the selected image
  GET  /preview/:id   Preview of the selected image
  GET  /api/state     Current state as JSON
  GET  /api/history   Recent analyses (needs DATABASE_DSN)
  GET  /api/metrics   Aggregate metrics (needs DATABASE_DSN)
  GET  /health        Health check

Set JWT_SECRET to require a bearer token; each token subject gets its own
session.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("listen", "l", "", "address to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		a.cfg.Server.Listen = listen
	}

	sessions := session.NewManager(a.newSession)

	authMiddleware := auth.FixedOwner(session.LocalOwner)
	if a.cfg.Auth.JWTSecret != "" {
		authMiddleware = auth.JWTMiddleware(a.cfg.Auth.JWTSecret, a.cfg.Auth.JWTAudience)
	}

	router := gin.Default()
	handlers.New(sessions, a.previews, a.history, a.logger).RegisterRoutes(router, authMiddleware)

	srv := &http.Server{
		Addr:    a.cfg.Server.Listen,
		Handler: router,
	}

	a.logger.Info("scan-check listening",
		zap.String("addr", a.cfg.Server.Listen),
		zap.String("transport", a.cfg.Classifier.Transport),
		zap.Bool("auth", a.cfg.Auth.JWTSecret != ""))
	return server.Run(srv, a.cfg.Server.ShutdownTimeout, a.logger, server.Options{
		OnShutdown: sessions.Close,
	})
}
