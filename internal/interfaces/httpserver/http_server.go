// Package httpserver wraps the gin engine serving the REST surface,
// the websocket entrypoint and the operational endpoints.
package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/xtendplex/chat-server/internal/config"
	"github.com/xtendplex/chat-server/internal/gateway"
	"github.com/xtendplex/chat-server/internal/infrastructure/identity"
	"github.com/xtendplex/chat-server/internal/interfaces/httpserver/handlers"
	"github.com/xtendplex/chat-server/internal/interfaces/httpserver/middlewares"
	"github.com/xtendplex/chat-server/internal/interfaces/httpserver/routes"
)

// HttpServer wraps the gin engine with graceful shutdown helpers.
type HttpServer struct {
	cfg    *config.Config
	engine *gin.Engine
	log    zerolog.Logger
}

// New constructs the HTTP server with default middleware and routes.
func New(cfg *config.Config, log zerolog.Logger, gw *gateway.Gateway, validator identity.TokenValidator, handlerProvider *handlers.Provider, routeProvider *routes.Provider) *HttpServer {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())
	engine.Use(middlewares.RequestID())

	registerCoreRoutes(engine, cfg, gw)
	routeProvider.Register(engine, middlewares.AuthMiddleware(validator))

	return &HttpServer{
		cfg:    cfg,
		engine: engine,
		log:    log,
	}
}

// Engine exposes the router for tests.
func (s *HttpServer) Engine() *gin.Engine { return s.engine }

// Run starts the HTTP listener and handles graceful shutdown via
// context cancellation.
func (s *HttpServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr()).Msg("HTTP server listening")
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("HTTP server error")
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("Context cancelled, shutting down HTTP server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func registerCoreRoutes(engine *gin.Engine, cfg *config.Config, gw *gateway.Gateway) {
	engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": cfg.ServiceName,
			"status":  "ok",
		})
	})

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	engine.GET("/readyz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Auth on the socket happens in-band through the authenticate
	// event, not through a bearer header.
	engine.GET("/ws", func(c *gin.Context) {
		gw.HandleWS(c.Writer, c.Request)
	})
}
