package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"notes-backend/internal/config"
	"notes-backend/internal/handler"
	"notes-backend/internal/middleware"
	"notes-backend/internal/repository"
	"notes-backend/internal/service"
	"notes-backend/internal/websocket"
	"notes-backend/pkg/jwt"
	"notes-backend/pkg/logger"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(logger.Options{
		Level:      cfg.Logging.Level,
		Production: cfg.Server.Env == "production",
		FilePath:   cfg.Logging.File,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	for _, warning := range cfg.Warnings {
		zlog.Warn("configuration fallback", zap.String("detail", warning))
	}
	if cfg.JWT.Secret == config.DefaultJWTSecret {
		zlog.Warn("using the built-in development signing secret; set JWT_SECRET")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	userRepo, noteRepo, err := openStorage(ctx, cfg.Storage, zlog)
	if err != nil {
		zlog.Fatal("failed to open storage", zap.Error(err))
	}

	tokens, err := jwt.NewManager(jwt.Options{
		Issuer:    cfg.JWT.Issuer,
		Audience:  cfg.JWT.Audience,
		Secret:    cfg.JWT.Secret,
		Lifetime:  cfg.JWT.Lifetime,
		ClockSkew: cfg.JWT.ClockSkew,
	})
	if err != nil {
		zlog.Fatal("invalid token configuration", zap.Error(err))
	}

	wsManager := websocket.NewManager(websocket.Options{
		MaxConnPerUser: cfg.WebSocket.MaxConnPerUser,
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingPeriod,
	}, zlog.Named("websocket"))
	go wsManager.Run(ctx)

	identityService := service.NewIdentityService(userRepo)
	authService := service.NewAuthService(identityService, tokens)
	userService := service.NewUserService(userRepo)
	syncService := service.NewSyncService(noteRepo, wsManager, zlog.Named("sync"))
	noteService := service.NewNoteService(noteRepo, syncService)

	wsManager.SetMessageHandler(syncService)

	gate := middleware.NewGate(tokens, zlog.Named("gate"))

	r := handler.NewRouter(handler.Handlers{
		Auth:      handler.NewAuthHandler(authService, zlog),
		Users:     handler.NewUserHandler(userService, zlog),
		Notes:     handler.NewNoteHandler(noteService, zlog),
		Sync:      handler.NewSyncHandler(syncService, zlog),
		WebSocket: handler.NewWebSocketHandler(wsManager, gate, zlog.Named("websocket")),
	}, gate, middleware.CORSOptions{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: cfg.CORS.AllowedMethods,
		AllowedHeaders: cfg.CORS.AllowedHeaders,
	}, zlog.Named("http"))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zlog.Info("starting notes backend",
			zap.String("addr", addr),
			zap.String("env", cfg.Server.Env),
			zap.String("storage", cfg.Storage.Driver),
			zap.Duration("token_lifetime", cfg.JWT.Lifetime),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
		return
	}

	select {
	case <-wsManager.Done():
	case <-shutdownCtx.Done():
	}

	zlog.Info("server stopped gracefully")
}

func openStorage(ctx context.Context, cfg config.StorageConfig, zlog *zap.Logger) (repository.UserRepository, repository.NoteRepository, error) {
	if cfg.Driver != config.StorageCouchDB {
		zlog.Info("using in-memory storage; data is lost on restart")
		return repository.NewMemoryUserRepository(), repository.NewMemoryNoteRepository(), nil
	}

	couchURL := url.URL{
		Scheme: "http",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
	}

	client, err := kivik.New("couch", couchURL.String())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to CouchDB: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	created, err := repository.EnsureDatabase(initCtx, client, cfg.Name)
	if err != nil {
		return nil, nil, err
	}
	if created {
		zlog.Info("created database", zap.String("name", cfg.Name))
	}

	zlog.Info("using CouchDB storage",
		zap.String("host", cfg.Host),
		zap.String("port", cfg.Port),
		zap.String("database", cfg.Name),
	)

	return repository.NewCouchUserRepository(client, cfg.Name), repository.NewCouchNoteRepository(client, cfg.Name), nil
}
