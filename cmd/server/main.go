package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/exemplo/exemplo-api/internal/config"
	"github.com/exemplo/exemplo-api/internal/posts"
	"github.com/exemplo/exemplo-api/internal/roles"
	"github.com/exemplo/exemplo-api/internal/store"
	"github.com/exemplo/exemplo-api/internal/users"
)

func main() {
	if err := run(); err != nil {
		slog.Error("exit", slog.Any("err", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	level, _ := cfg.SlogLevel()

	logger := httplog.NewLogger("exemplo-api", httplog.Options{
		JSON:     cfg.LogJSON,
		LogLevel: level,
		Concise:  true,
	})
	log := logger.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Store ────────────────────────────────────────────────
	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store %s: %w", cfg.StoreDriver, err)
	}
	defer closeStore()
	log.Info("store ready", slog.String("driver", cfg.StoreDriver))

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg, repo, logger),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return serve(ctx, srv, cfg.ShutdownTimeout, log)
}

// serve runs srv until ctx is done and then shuts it down gracefully. A
// listener failure is returned to the caller.
func serve(ctx context.Context, srv *http.Server, timeout time.Duration, log *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// newRouter mounts the handler groups behind the shared middleware stack.
func newRouter(cfg *config.Config, repo store.Repository, logger *httplog.Logger) http.Handler {
	userHandler := users.NewHandler(repo, logger.Logger)
	postHandler := posts.NewHandler(repo, repo, logger.Logger)
	roleHandler := roles.NewHandler(repo, repo, logger.Logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Location"},
		MaxAge:         300,
	}))
	r.Use(chimw.AllowContentType("application/json"))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	r.Mount("/usuarios", userHandler.Routes())
	r.Mount("/posts", postHandler.Routes())
	r.Mount("/cargos", roleHandler.Routes())
	return r
}

// openStore connects the backend named by cfg.StoreDriver and prepares its
// schema. The returned func releases the connection.
func openStore(ctx context.Context, cfg *config.Config) (store.Repository, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrate: %w", err)
		}
		return pg, pool.Close, nil

	case config.DriverMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("mongo connect: %w", err)
		}
		disconnect := func() { _ = client.Disconnect(context.Background()) }
		ms := store.NewMongoStore(client.Database(cfg.MongoDB))
		if err := ms.EnsureIndexes(ctx); err != nil {
			disconnect()
			return nil, nil, fmt.Errorf("mongo indexes: %w", err)
		}
		return ms, disconnect, nil

	case config.DriverRedis:
		rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, fmt.Errorf("redis connect: %w", err)
		}
		return store.NewRedisStore(rdb), func() { _ = rdb.Close() }, nil

	case config.DriverMemory:
		return store.NewMemoryStore(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
