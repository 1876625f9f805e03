package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"content-history/core/loader"
	"content-history/core/logger"
	"content-history/core/middleware/auth"
	"content-history/core/middleware/rayid"
	"content-history/core/server"
	"content-history/feature/history"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// startCmd serves the history API until interrupted.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the history API server",
	Long: `Serves the commit log, undo, rollback and synchronize endpoints over HTTP.
Every request is tagged with a ray ID and, when server.api_key is set,
must carry it in the X-API-Key header.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		zap.ReplaceGlobals(a.logger)

		srv, loaded, err := newServer(a.cfg.Server, a.logger, history.NewFeature(a.service))
		if err != nil {
			return err
		}
		a.logger.Info("Features loaded", zap.Strings("features", loaded))

		errc := make(chan error, 1)
		go func() {
			a.logger.Info("Starting server", zap.String("addr", a.cfg.Server.Addr()))
			errc <- srv.Listen(a.cfg.Server.Addr())
		}()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		select {
		case err := <-errc:
			return err
		case <-sig:
		}

		// An undo or rollback in flight keeps its lock until it returns.
		a.logger.Info("Shutting down server")
		return srv.ShutdownWithTimeout(shutdownTimeout)
	},
}

// newServer builds the fiber app with the request middleware and every
// enabled feature mounted.
func newServer(cfg server.Config, l *zap.Logger, features ...loader.Feature) (*fiber.App, []string, error) {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Use(rayid.New())
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		rl := logger.WithRayID(l, c)
		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("took", time.Since(start)),
		}
		if err != nil {
			rl.Error("Request failed", append(fields, zap.Error(err))...)
			return err
		}
		rl.Info("Request served", fields...)
		return nil
	})

	if !cfg.RequiresAuth() {
		l.Warn("No API key configured, the history API is unprotected")
	}
	app.Use(auth.New(auth.Config{ApiKey: cfg.ApiKey}))

	mgr := loader.NewManager()
	for _, f := range features {
		mgr.Register(f)
	}
	loaded, err := mgr.LoadAll(app)
	if err != nil {
		return nil, nil, err
	}
	return app, loaded, nil
}

func init() {
	RootCmd.AddCommand(startCmd)
}
