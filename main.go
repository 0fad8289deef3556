package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"claimscompanion/backend/features/chat"
	"claimscompanion/backend/features/claim"
	"claimscompanion/backend/features/document"
	"claimscompanion/backend/features/job"
	"claimscompanion/backend/features/policy"
	"claimscompanion/backend/features/search"
	"claimscompanion/backend/features/stats"
	"claimscompanion/backend/features/user"
	"claimscompanion/backend/internal/adapter/gemini"
	"claimscompanion/backend/internal/adapter/ocr"
	wstore "claimscompanion/backend/internal/adapter/weaviate"
	"claimscompanion/backend/internal/chunk"
	"claimscompanion/backend/internal/config"
	"claimscompanion/backend/internal/index"
	applog "claimscompanion/backend/internal/logger"
	"claimscompanion/backend/internal/middleware"
	"claimscompanion/backend/internal/retrieval"
	"claimscompanion/backend/internal/validation"
	"claimscompanion/backend/internal/vector"
	"claimscompanion/backend/internal/worker"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

// chunkStore is what every vector backend must provide.
type chunkStore interface {
	Add(ctx context.Context, chunks []chunk.Chunk) error
	Search(ctx context.Context, query string, k int) ([]retrieval.Result, error)
	ResolveRefs(ctx context.Context, refs []string) ([]retrieval.Result, error)
	Count(ctx context.Context) (int, error)
	DeleteBySource(ctx context.Context, docID string) error
}

func main() {
	// Initialize structured logger
	logger := slog.New(applog.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(logger)

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// 2. Database Connection
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("failed to open db connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Retry connection
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", cfg.BootstrapRetryAttempts)
		time.Sleep(time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second)
	}

	if err := db.Ping(); err != nil {
		slog.Error("failed to ping db after retries", "error", err)
		os.Exit(1)
	}

	// 3. Run Migrations
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		slog.Error("failed to create migration driver", "error", err)
		os.Exit(1)
	}

	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		slog.Error("failed to create migration instance", "error", err)
		os.Exit(1)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("migrations applied successfully")

	// 4. Gemini Adapters
	ctx := context.Background()

	embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey)
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}
	defer embedder.Close()

	var (
		docCompleter  validation.Completer
		chatResponder chat.Responder
	)
	if cfg.GeminiAPIKey != "" {
		completer, err := gemini.NewCompleter(ctx, cfg.GeminiAPIKey)
		if err != nil {
			slog.Error("failed to create completer", "error", err)
			os.Exit(1)
		}
		defer completer.Close()
		docCompleter = completer
		chatResponder = completer
	} else {
		slog.Warn("GEMINI_API_KEY not set, document validation and chat degrade to basic behavior")
	}

	// 5. Vector Backend
	var vecIndex chunkStore
	switch cfg.VectorBackend {
	case "weaviate":
		wCfg := weaviate.Config{
			Host:   cfg.WeaviateHost,
			Scheme: cfg.WeaviateScheme,
		}
		wClient, err := weaviate.NewClient(wCfg)
		if err != nil {
			slog.Error("failed to create weaviate client", "error", err)
			os.Exit(1)
		}

		wAdapter := vector.NewWeaviateClientAdapter(wClient)

		// Retry Weaviate Schema Ensure
		for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
			if err := vector.EnsureSchema(ctx, wAdapter); err == nil {
				slog.Info("weaviate schema ensured")
				break
			}
			slog.Warn("failed to ensure weaviate schema, retrying...", "attempt", i+1, "error", err)
			time.Sleep(time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second)
		}
		if err := vector.EnsureSchema(ctx, wAdapter); err != nil {
			slog.Error("failed to ensure weaviate schema after retries", "error", err)
			os.Exit(1)
		}

		vecIndex = wstore.NewStore(wClient, embedder)
	default:
		vecIndex = index.NewMemory(embedder)
	}

	// 6. NSQ Producer
	nsqCfg := nsq.NewConfig()
	nsqProducer, err := nsq.NewProducer(cfg.NSQDHost, nsqCfg)
	if err != nil {
		slog.Error("failed to create NSQ producer", "error", err)
		os.Exit(1)
	}

	// Pre-create topics to avoid consumer startup errors.
	// NSQ creates topics lazily on publish, but consumers querying lookupd
	// will fail 404 until then, so we hit the nsqd http api explicitly.
	go preCreateTopics(cfg.NSQDHTTP, config.TopicPolicyIngest, config.TopicChatMessage)

	// 7. Features
	chunker := chunk.NewSplitter(cfg.ChunkMaxChars, cfg.ChunkOverlapChars)
	ocrClient := ocr.NewClient(cfg.OCRURL)

	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retrievalService := retrieval.NewService(vecIndex, queryLogger)

	validator := validation.NewValidator(ocrClient, docCompleter)
	engine := validation.NewEngine(validator)

	// Feature: User
	userRepo := user.NewPostgresRepo(db)
	userService := user.NewService(userRepo)
	userHandler := user.NewHandler(userService)

	// Feature: Claim & Document (mutually dependent at runtime)
	claimRepo := claim.NewPostgresRepo(db)
	documentRepo := document.NewPostgresRepo(db)

	claimService := claim.NewService(claimRepo, engine)
	documentService := document.NewService(documentRepo, validator, claimService, cfg.UploadDir)
	claimService.BindDocuments(documentService)
	documentService.BindRefresher(claimService)

	claimHandler := claim.NewHandler(claimService)
	documentHandler := document.NewHandler(documentService, int(cfg.MaxUploadSizeMB))

	// Feature: Chat
	chatRepo := chat.NewPostgresRepo(db)
	chatService := chat.NewService(chatRepo, claimService, retrievalService, chatResponder, nsqProducer)
	chatHandler := chat.NewHandler(chatService)

	// Feature: Policy corpus
	policyRepo := policy.NewPostgresRepo(db)
	policyService := policy.NewService(policyRepo, nsqProducer, vecIndex)
	policyHandler := policy.NewHandler(policyService, cfg.PolicyDir, cfg.MaxUploadSizeMB)

	// Feature: Job (dead letters)
	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, nsqProducer)
	jobHandler := job.NewHandler(jobService)

	// Feature: Search (direct retrieval access)
	searchHandler := search.NewHandler(retrievalService, cfg.SearchTopK)

	// Feature: Stats
	statsService := stats.NewService(claimRepo, documentRepo, chatRepo, vecIndex)
	statsHandler := stats.NewHandler(statsService)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	route := func(pattern string, h http.HandlerFunc) {
		http.Handle(pattern, middleware.CorrelationID(enableCORS(h)))
	}

	// Routes
	route("POST /users", userHandler.Create)
	route("GET /users", userHandler.List)
	route("GET /users/{id}", userHandler.Get)

	route("POST /claims", claimHandler.Create)
	route("GET /claims", claimHandler.List)
	route("GET /claims/{id}", claimHandler.Get)
	route("PUT /claims/{id}/status", claimHandler.UpdateStatus)
	route("GET /claims/{id}/validation", claimHandler.Validation)
	route("GET /requirements/{claimType}", claimHandler.Requirements)

	route("POST /claims/{id}/documents", documentHandler.Upload)
	route("GET /claims/{id}/documents", documentHandler.List)
	route("DELETE /documents/{id}", documentHandler.Delete)

	route("POST /claims/{id}/messages", chatHandler.Send)
	route("GET /claims/{id}/messages", chatHandler.History)

	route("POST /search", searchHandler.Search)

	route("POST /policies", policyHandler.Upload)
	route("GET /policies", policyHandler.List)
	route("DELETE /policies/{id}", policyHandler.Delete)

	route("GET /jobs", jobHandler.List)
	route("POST /jobs/{id}/retry", jobHandler.Retry)

	route("GET /stats", statsHandler.Overview)

	// 8. Worker (Policy Ingest Consumer)
	ingestConsumer := worker.NewIngestConsumer(chunker, ocrClient, vecIndex, policyRepo, jobRepo)

	consumer, err := nsq.NewConsumer(config.TopicPolicyIngest, "backend", nsq.NewConfig())
	if err != nil {
		slog.Error("failed to create NSQ consumer for policy ingest", "error", err)
	} else {
		consumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
			return ingestConsumer.HandleMessage(m)
		}))
		if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			slog.Error("failed to connect to NSQLookupd", "error", err)
		} else {
			slog.Info("NSQ policy ingest consumer connected")
		}
	}

	// 9. Start Server
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	slog.Info("server starting", "port", cfg.ServerPort)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.ServerPort), nil); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func preCreateTopics(nsqdHTTP string, topics ...string) {
	// Wait for nsqd to be ready
	time.Sleep(2 * time.Second)

	for _, topic := range topics {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		resp, err := http.Post(url, "application/json", nil)
		if err != nil {
			slog.Warn("failed to pre-create topic", "topic", topic, "error", err, "url", url)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			slog.Info("topic pre-created successfully", "topic", topic)
		}
	}
}
