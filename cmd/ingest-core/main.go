package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodia-labs/ingest-core/internal/adapters/driven/ai"
	"github.com/custodia-labs/ingest-core/internal/adapters/driven/auth"
	"github.com/custodia-labs/ingest-core/internal/adapters/driven/blob"
	"github.com/custodia-labs/ingest-core/internal/adapters/driven/docintel"
	"github.com/custodia-labs/ingest-core/internal/adapters/driven/memory"
	"github.com/custodia-labs/ingest-core/internal/adapters/driven/postgres"
	redisadapter "github.com/custodia-labs/ingest-core/internal/adapters/driven/redis"
	"github.com/custodia-labs/ingest-core/internal/adapters/driven/vespa"
	httpadapter "github.com/custodia-labs/ingest-core/internal/adapters/driving/http"
	"github.com/custodia-labs/ingest-core/internal/chunker"
	"github.com/custodia-labs/ingest-core/internal/core/domain"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driven"
	"github.com/custodia-labs/ingest-core/internal/core/services"
	"github.com/custodia-labs/ingest-core/internal/worker"
	"github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	// Get run mode from environment (RUN_MODE) or command line arg
	mode := getEnv("RUN_MODE", "all")
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	log.Printf("ingest-core %s starting in %s mode", version, mode)

	// Configuration from environment
	port := getEnvInt("PORT", 8080)
	redisURL := getEnv("REDIS_URL", "")
	databaseURL := getEnv("DATABASE_URL", "")
	vespaURL := getEnv("SEARCH_SERVICE_ENDPOINT", getEnv("VESPA_URL", "http://localhost:8080"))
	extractionEndpoint := getEnv("EXTRACTION_ENDPOINT", "")
	extractionKey := getEnv("EXTRACTION_API_KEY", "")
	openAIKey := getEnv("OPENAI_API_KEY", "")
	embeddingModel := getEnv("EMBEDDING_MODEL", "text-embedding-3-large")
	blobEndpoint := getEnv("BLOB_ENDPOINT", "")
	blobKey := getEnv("BLOB_API_KEY", "")
	jwtSecret := getEnv("JWT_SECRET", "")
	devMode := getEnvBool("AUTH_DEV_MODE", false)

	defaultIndex := getEnv("SEARCH_INDEX_NAME", "default-index")
	sourceContainer := getEnv("BLOB_CONTAINER_NAME", "source")
	parallelism := getEnvInt("MAX_PARALLEL_DOCUMENTS", 20)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutdown signal received, stopping...")
		cancel()
	}()

	// ===== Initialize Redis (optional) =====
	var redisClient *redis.Client
	if redisURL != "" {
		log.Println("Connecting to Redis...")
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Println("Redis connected")
	}

	// ===== Initialize PostgreSQL (optional) =====
	var db *postgres.DB
	if databaseURL != "" {
		log.Println("Connecting to PostgreSQL...")
		dbConfig := postgres.Config{
			URL:             databaseURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300)) * time.Second,
			ConnMaxIdleTime: time.Duration(getEnvInt("DB_CONN_MAX_IDLE_SEC", 60)) * time.Second,
		}
		var err error
		db, err = postgres.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		// Initialize schema (idempotent)
		if err := db.InitSchema(ctx); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		log.Println("PostgreSQL connected and schema initialized")
	}

	// ===== Job store, queue and rate limiter =====
	// Redis-backed when available; process-local fallbacks otherwise.
	// Local fallbacks enforce limits per instance only.
	var jobStore driven.JobStore
	var taskQueue driven.TaskQueue
	var rateLimiter driven.RateLimiter
	if redisClient != nil {
		jobStore = redisadapter.NewJobStore(redisClient)
		queue, err := redisadapter.NewQueue(redisClient, hostname())
		if err != nil {
			log.Fatalf("Failed to create task queue: %v", err)
		}
		taskQueue = queue
		rateLimiter = redisadapter.NewRateLimiter(redisClient)
	} else {
		log.Println("Redis not configured, using in-process job store and queue")
		jobStore = memory.NewJobStore()
		taskQueue = memory.NewQueue(1024)
		rateLimiter = memory.NewRateLimiter()
	}

	// ===== Stage adapters =====
	var extractor driven.TextExtractor
	if extractionEndpoint != "" {
		ex, err := docintel.NewExtractor(extractionEndpoint, extractionKey)
		if err != nil {
			log.Fatalf("Failed to create extraction client: %v", err)
		}
		extractor = ex
	}

	var embedder driven.EmbeddingService
	if openAIKey != "" {
		emb, err := ai.NewOpenAIEmbedding(openAIKey, embeddingModel, getEnv("OPENAI_BASE_URL", ""))
		if err != nil {
			log.Fatalf("Failed to create embedding service: %v", err)
		}
		embedder = emb
	}

	searchEngine := vespa.NewSearchEngine(vespa.DefaultConfig(vespaURL))

	var blobStore driven.BlobStore
	if blobEndpoint != "" {
		bs, err := blob.NewStore(blobEndpoint, blobKey)
		if err != nil {
			log.Fatalf("Failed to create blob store: %v", err)
		}
		blobStore = bs
	}

	// ===== Postgres-backed stores =====
	var principalStore driven.PrincipalStore
	var usageStore driven.UsageStore
	if db != nil {
		principalStore = postgres.NewPrincipalStore(db)
		usageStore = postgres.NewUsageStore(db)
	}

	// ===== Core services =====
	logger := slog.Default()

	orchestrator := services.NewOrchestrator(services.OrchestratorConfig{
		Jobs:         jobStore,
		Queue:        taskQueue,
		Blobs:        blobStore,
		Extractor:    extractor,
		Chunker:      chunker.New(chunker.DefaultConfig()),
		Embedder:     embedder,
		Search:       searchEngine,
		Logger:       logger,
		Parallelism:  parallelism,
		Container:    sourceContainer,
		DefaultIndex: defaultIndex,
	})

	bridge := services.NewBridge(services.BridgeConfig{
		Jobs: jobStore,
		Svc:  orchestrator,
	})

	authService := services.NewAuthService(principalStore, devMode, logger)
	meter := services.NewMeter(usageStore, getEnvInt("USAGE_BUFFER", 1024), logger)
	defer meter.Close()
	searchService := services.NewSearchService(searchEngine, embedder, defaultIndex, logger)

	var internalTokens *auth.Adapter
	if jwtSecret != "" {
		internalTokens = auth.NewAdapter(jwtSecret)
	} else {
		log.Println("JWT_SECRET not set, internal endpoints are unprotected")
	}

	// ===== HTTP server =====
	serverCfg := httpadapter.Config{
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            port,
		Version:         version,
		DefaultIndex:    defaultIndex,
		UploadContainer: getEnv("UPLOAD_CONTAINER_NAME", "uploads"),
		RequiredConfig: map[string]string{
			"EXTRACTION_ENDPOINT":     extractionEndpoint,
			"OPENAI_API_KEY":          openAIKey,
			"SEARCH_SERVICE_ENDPOINT": vespaURL,
			"BLOB_ENDPOINT":           blobEndpoint,
		},
	}
	server := httpadapter.NewServer(serverCfg, httpadapter.Dependencies{
		Jobs:           orchestrator,
		Search:         searchService,
		AuthService:    authService,
		Bridge:         bridge,
		Meter:          meter,
		Limiter:        rateLimiter,
		Quotas:         domain.DefaultQuotaTable(),
		Blobs:          blobStore,
		Embedder:       embedder,
		InternalTokens: internalTokens,
	})

	// ===== Worker =====
	jobWorker := worker.New(worker.Config{
		TaskQueue:    taskQueue,
		Orchestrator: orchestrator,
		Logger:       logger,
		Concurrency:  getEnvInt("WORKER_CONCURRENCY", 2),
	})

	switch mode {
	case "server":
		if err := server.Start(); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case "worker":
		if err := jobWorker.Start(ctx); err != nil {
			log.Fatalf("Worker failed: %v", err)
		}
		<-ctx.Done()
		jobWorker.Stop()
	case "all":
		if err := jobWorker.Start(ctx); err != nil {
			log.Fatalf("Worker failed: %v", err)
		}
		if err := server.Start(); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
		jobWorker.Stop()
	default:
		log.Fatalf("Unknown run mode: %s (expected server, worker or all)", mode)
	}
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "ingest-worker"
	}
	return name
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}
