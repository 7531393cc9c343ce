package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"simple-bot/internal/config"
	"simple-bot/internal/db"
	"simple-bot/internal/handlers"
	"simple-bot/internal/repositories"
	"simple-bot/internal/routes"
	"simple-bot/internal/services"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// corsMiddleware adds CORS headers to all responses
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// App holds the long-lived components shared by the HTTP server and the CLI
type App struct {
	Config       *config.AppConfig
	Sessions     *services.SessionManager
	VectorStore  repositories.VectorRepository
	SessionStore repositories.SessionRepository
	HealthChecks map[string]handlers.HealthCheck
	Logger       *zap.SugaredLogger
}

// generatorHealth is implemented by generators whose endpoint can be checked cheaply
type generatorHealth interface {
	HealthCheck(ctx context.Context) error
}

// NewApp validates cfg and builds every component. Backing stores are pinged
// so an unreachable Chroma or Redis is reported at startup.
func NewApp(ctx context.Context, cfg *config.AppConfig, logger *zap.SugaredLogger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, services.NewPipelineError(services.ErrConfig, "startup", err, "")
	}

	embedder, err := services.NewHFEmbedder(cfg.Embedder, cfg.HFToken, logger.Named("embedder"))
	if err != nil {
		return nil, err
	}
	generator, err := services.NewGenerator(cfg.Generator, cfg.HFToken, logger.Named("generator"))
	if err != nil {
		return nil, err
	}
	template, err := services.NewPromptTemplate(cfg.Generator.PromptTemplate)
	if err != nil {
		return nil, err
	}
	chunker, err := services.NewChunker(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)
	if err != nil {
		return nil, services.NewPipelineError(services.ErrConfig, "startup", err, "")
	}

	var keywords *services.KeywordExtractor
	if cfg.Chunker.ExtractKeywords {
		keywords = services.NewKeywordExtractor()
	}

	vectorStore, err := initializeVectorStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	sessionStore, err := initializeSessionStore(ctx, cfg, logger)
	if err != nil {
		vectorStore.Close()
		return nil, err
	}

	ingestor, err := services.NewIngestor(services.IngestorOptions{
		Loader:           services.NewPDFLoader("", logger.Named("loader")),
		Chunker:          chunker,
		Keywords:         keywords,
		NumKeywords:      cfg.Chunker.NumKeywords,
		DocumentKeywords: cfg.Chunker.DocumentKeywords,
		Embedder:         embedder,
		Store:            vectorStore,
		Generator:        generator,
		Template:         template,
		TopK:             cfg.Retrieval.TopK,
		CollectionPrefix: cfg.VectorStore.CollectionPrefix,
		Logger:           logger.Named("ingest"),
	})
	if err != nil {
		vectorStore.Close()
		sessionStore.Close()
		return nil, err
	}

	logger.Infof("Pipeline ready: provider=%s chunk_size=%d overlap=%d top_k=%d vector_store=%s session_store=%s",
		cfg.Generator.Provider, cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap, cfg.Retrieval.TopK,
		cfg.VectorStore.Type, cfg.SessionStore.Type)

	checks := map[string]handlers.HealthCheck{
		"vector_store":  vectorStore.Ping,
		"session_store": sessionStore.Ping,
	}
	if g, ok := generator.(generatorHealth); ok {
		checks["generator"] = g.HealthCheck
	}

	return &App{
		Config:       cfg,
		Sessions:     services.NewSessionManager(ingestor, sessionStore, cfg.SessionStore.DropOnClose, logger.Named("session")),
		VectorStore:  vectorStore,
		SessionStore: sessionStore,
		HealthChecks: checks,
		Logger:       logger,
	}, nil
}

// Close releases the store connections
func (a *App) Close() error {
	return errors.Join(a.VectorStore.Close(), a.SessionStore.Close())
}

// NewServer builds the HTTP server for app
func NewServer(app *App) *http.Server {
	logger := app.Logger.Named("server")

	h := &routes.Handlers{
		Health:   handlers.NewHealthHandler(app.HealthChecks, logger),
		Sessions: handlers.NewSessionHandler(app.Sessions, app.Config.Server.MaxUploadBytes, logger),
	}

	router := mux.NewRouter()
	routes.RegisterRoutes(router, h)

	// Add Swagger endpoints
	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("none"),
		httpSwagger.DomID("swagger-ui"),
	))

	return &http.Server{
		Addr:              app.Config.Server.Addr,
		Handler:           otelhttp.NewHandler(corsMiddleware(router), "simple-bot"),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// initializeVectorStore creates the configured vector repository
func initializeVectorStore(ctx context.Context, cfg *config.AppConfig, logger *zap.SugaredLogger) (repositories.VectorRepository, error) {
	if cfg.VectorStore.Type == "memory" {
		logger.Warn("Using in-memory vector store; collections are lost on restart")
		return repositories.NewMemoryVectorRepository(), nil
	}

	c := cfg.VectorStore.Chroma
	logger.Infof("Connecting to ChromaDB: %s:%d", c.Host, c.Port)

	store := repositories.NewChromaVectorRepository(db.NewChromaDBClient(db.ChromaDBConfig{
		Host:     c.Host,
		Port:     c.Port,
		Tenant:   c.Tenant,
		Database: c.Database,
		Timeout:  time.Duration(c.TimeoutSecs) * time.Second,
	}))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		logger.Errorf("ChromaDB connection failed: %v", err)
		logger.Info("Hint: Ensure ChromaDB is running (docker run -d -p 8000:8000 chromadb/chroma)")
		return nil, services.NewPipelineError(services.ErrVectorStoreUnavailable, "startup", err, "")
	}
	logger.Info("ChromaDB connected successfully")
	return store, nil
}

// initializeSessionStore creates the configured session repository
func initializeSessionStore(ctx context.Context, cfg *config.AppConfig, logger *zap.SugaredLogger) (repositories.SessionRepository, error) {
	if cfg.SessionStore.Type == "memory" {
		return repositories.NewMemorySessionRepository(cfg.SessionTTL()), nil
	}

	r := cfg.SessionStore.Redis
	logger.Infof("Connecting to Redis: %s:%d (DB: %d)", r.Host, r.Port, r.DB)

	redisConfig := db.DefaultRedisConfig()
	redisConfig.Host = r.Host
	redisConfig.Port = r.Port
	redisConfig.Password = r.Password
	redisConfig.DB = r.DB
	redisConfig.PoolSize = r.PoolSize
	client := db.NewRedisClient(redisConfig)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		logger.Errorf("Redis connection failed: %v", err)
		logger.Info("Hint: Ensure Redis is running (docker run -d -p 6379:6379 redis:7-alpine)")
		return nil, fmt.Errorf("redis session store: %w", err)
	}
	logger.Info("Redis connected successfully")

	return repositories.NewRedisSessionRepository(client.GetClient(), cfg.SessionTTL()), nil
}
