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

	"github.com/gin-gonic/gin"

	"recipelens/pkg/auth"
	"recipelens/pkg/config"
	"recipelens/pkg/database"
	"recipelens/pkg/ingredient"
	"recipelens/pkg/logging"
	"recipelens/pkg/pipeline"
	"recipelens/pkg/recipe"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format, nil)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// `./recipelens migrate` runs AutoMigrate and seeding then exits.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := migrateAndSeed(ctx, cfg.DB, log); err != nil {
			return err
		}
		fmt.Println("migration and seeding completed")
		return nil
	}

	store, closeStore, err := database.OpenStore(ctx, cfg.DB, log)
	if err != nil {
		return err
	}
	defer closeStore()

	s, err := newServer(ctx, cfg, log, store)
	if err != nil {
		return err
	}
	defer s.pipeline.Close()

	gin.SetMode(cfg.Server.GinMode)
	r := newRouter(s)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr, "auth_required", cfg.Auth.Required)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newServer loads the ingredient catalog and builds the pipeline over store.
func newServer(ctx context.Context, cfg *config.Config, log *slog.Logger, store recipe.Store) (*server, error) {
	cat, err := loadCatalog(cfg.Ingredient.CatalogPath)
	if err != nil {
		return nil, err
	}
	p, err := pipeline.FromConfig(ctx, cfg, cat, store, log)
	if err != nil {
		return nil, err
	}
	return &server{
		cfg:      cfg,
		log:      log,
		pipeline: p,
		matcher:  recipe.NewMatcher(store, cat),
		searcher: recipe.NewSearcher(store),
		verifier: auth.NewVerifier(cfg.Auth),
	}, nil
}

func loadCatalog(path string) (*ingredient.Catalog, error) {
	if path == "" {
		return ingredient.DefaultCatalog()
	}
	return ingredient.LoadCatalog(path)
}

func newRouter(s *server) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = s.cfg.Upload.MaxBytes
	r.Use(gin.Recovery(), requestIDMiddleware(), accessLogMiddleware(s.log))
	setupRoutes(r, s)
	return r
}
