package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"

	"github.com/xtendplex/chat-server/internal/config"
	"github.com/xtendplex/chat-server/internal/domain/message"
	"github.com/xtendplex/chat-server/internal/domain/reaction"
	"github.com/xtendplex/chat-server/internal/domain/room"
	"github.com/xtendplex/chat-server/internal/gateway"
	"github.com/xtendplex/chat-server/internal/infrastructure/database"
	"github.com/xtendplex/chat-server/internal/infrastructure/identity"
	"github.com/xtendplex/chat-server/internal/infrastructure/logger"
	"github.com/xtendplex/chat-server/internal/infrastructure/observability"
	messagerepo "github.com/xtendplex/chat-server/internal/infrastructure/repository/message"
	reactionrepo "github.com/xtendplex/chat-server/internal/infrastructure/repository/reaction"
	roomrepo "github.com/xtendplex/chat-server/internal/infrastructure/repository/room"
	userrepo "github.com/xtendplex/chat-server/internal/infrastructure/repository/user"
	"github.com/xtendplex/chat-server/internal/interfaces/httpserver"
	"github.com/xtendplex/chat-server/internal/interfaces/httpserver/handlers"
	"github.com/xtendplex/chat-server/internal/interfaces/httpserver/routes"
	v1 "github.com/xtendplex/chat-server/internal/interfaces/httpserver/routes/v1"
)

// Application bundles the long-running parts of the chat server.
type Application struct {
	httpServer *httpserver.HttpServer
	log        zerolog.Logger
}

func NewApplication(httpServer *httpserver.HttpServer, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		log:        log,
	}
}

func (a *Application) Start(ctx context.Context) error {
	return a.httpServer.Run(ctx)
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	db, err := database.Connect(database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}

	if err := database.AutoMigrate(ctx, db, log); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	validator, err := newTokenValidator(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize token validator")
	}

	users := userrepo.NewRepository(db)
	rooms := roomrepo.NewRepository(db)
	messages := messagerepo.NewRepository(db)
	reactions := reactionrepo.NewRepository(db)

	roomService, err := room.NewService(rooms, users, cfg.DirectRoomCache, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize room service")
	}
	messageService := message.NewService(messages, rooms, users, cfg.MaxContentLength, log)
	reactionService := reaction.NewService(reactions, messages, rooms, users, log)

	gw := gateway.New(gateway.Config{
		HandshakeTimeout: cfg.HandshakeTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		PongTimeout:      cfg.PongTimeout,
		SendBuffer:       cfg.SendBuffer,
		MaxMessageBytes:  cfg.MaxMessageBytes,
		CheckOrigin:      originChecker(cfg.AllowedOrigins),
	}, validator, users, roomService, messageService, reactionService, log)

	handlerProvider := handlers.NewProvider(roomService, messageService, users, cfg.BackfillPageLimit)
	routeProvider := routes.NewProvider(v1.NewRoutes(handlerProvider))

	httpServer := httpserver.New(cfg, log, gw, validator, handlerProvider, routeProvider)
	app := NewApplication(httpServer, log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

func newTokenValidator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (identity.TokenValidator, error) {
	if cfg.AuthInsecureSecret != "" {
		log.Warn().Msg("using insecure HMAC token validation")
		return identity.NewHMACValidator(cfg.AuthInsecureSecret), nil
	}
	return identity.NewJWKSValidator(ctx, identity.JWKSConfig{
		JWKSURL:  cfg.AuthJWKSURL,
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
	}, log)
}

func originChecker(allowed []string) func(*http.Request) bool {
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
