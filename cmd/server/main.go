// Package main is the application entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"ragcore-go/internal/config"
	"ragcore-go/internal/handler"
	"ragcore-go/internal/middleware"
	"ragcore-go/internal/pipeline"
	"ragcore-go/internal/service"
	"ragcore-go/internal/store"
	"ragcore-go/internal/store/elastic"
	"ragcore-go/internal/store/flatfile"
	"ragcore-go/internal/store/pgvector"
	"ragcore-go/pkg/database"
	"ragcore-go/pkg/embedding"
	"ragcore-go/pkg/log"
)

func main() {
	// 1. Load configuration.
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. Initialize the logger.
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("logger initialized")

	// 3. Assemble the ranked fragment store backends. A backend that
	// fails to initialize is skipped so the service can still come up
	// degraded; the flat-file fallback is always last in the chain.
	embeddingClient := embedding.NewClient(cfg.Embedding)
	backends := buildBackends(cfg)

	// 4. Wire the ingestion pipeline and the search engine.
	processor := pipeline.NewProcessor(embeddingClient, backends, cfg.Ingest)
	searchService := service.NewSearchService(embeddingClient, backends, cfg.Search)

	// 5. Set up the Gin engine and routes.
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := r.Group("/api/v1")
	{
		documents := apiV1.Group("/documents")
		{
			documentHandler := handler.NewDocumentHandler(processor)
			documents.POST("/ingest", documentHandler.Ingest)
			documents.DELETE("", documentHandler.Delete)
		}
		apiV1.GET("/search", handler.NewSearchHandler(searchService).Search)
	}

	// 6. Start the HTTP server with graceful shutdown.
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received, stopping server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP server shutdown failed: %v", err)
	}
	log.Info("server stopped gracefully")
}

// buildBackends creates the ranked backend chain from the configuration:
// pgvector when a DSN is configured, Elasticsearch when addresses are
// configured, and always the flat-file fallback.
func buildBackends(cfg config.Config) []store.FragmentStore {
	var backends []store.FragmentStore

	if dsn := cfg.Database.Postgres.DSN; dsn != "" {
		if err := database.InitPostgres(dsn); err != nil {
			log.Error("failed to connect to Postgres, continuing without the vector backend", err)
		} else if pgStore, err := pgvector.New(database.DB, cfg.Embedding.Dimensions); err != nil {
			log.Error("failed to initialize the pgvector store, continuing without it", err)
		} else {
			backends = append(backends, pgStore)
		}
	}

	if cfg.Elasticsearch.Addresses != "" {
		esStore, err := elastic.New(cfg.Elasticsearch, cfg.Embedding.Dimensions)
		if err != nil {
			log.Error("failed to initialize the Elasticsearch store, continuing without it", err)
		} else {
			backends = append(backends, esStore)
		}
	}

	backends = append(backends, flatfile.New(cfg.Store.FlatFilePath, cfg.Embedding.Dimensions))

	names := make([]string, 0, len(backends))
	for _, b := range backends {
		names = append(names, b.Name())
	}
	log.Infof("fragment store backends (ranked): %v", names)
	return backends
}
