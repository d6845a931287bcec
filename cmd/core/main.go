// Command core is the composition root for the semantic search engine: it
// wires the Embedding Service, Graph Store Adapter, Index Manager,
// Ingestion Pipeline, and Search Orchestrator together and exposes them
// through a flag-driven CLI, mirroring cmd/embed's embed/search command
// switch. Every dependency is constructed explicitly here; no package
// reaches for a global singleton.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/go-redis/redis/v8"

	"github.com/developer-mesh/semantic-graph-search/internal/config"
	"github.com/developer-mesh/semantic-graph-search/internal/observability"
	"github.com/developer-mesh/semantic-graph-search/pkg/embedding"
	"github.com/developer-mesh/semantic-graph-search/pkg/graphstore"
	"github.com/developer-mesh/semantic-graph-search/pkg/health"
	"github.com/developer-mesh/semantic-graph-search/pkg/index"
	"github.com/developer-mesh/semantic-graph-search/pkg/ingest"
	"github.com/developer-mesh/semantic-graph-search/pkg/search"

	_ "github.com/lib/pq"
)

var (
	configPath = flag.String("config", "", "path to a YAML config file overriding defaults")
	command    = flag.String("command", "health", "command to execute: ingest, search, suggest, health")
	document   = flag.String("document", "", "document text to ingest (ingest command)")
	sourceDoc  = flag.String("source", "cli", "source_doc label for ingested chunks (ingest command)")
	language   = flag.String("language", "", "language hint; empty detects per chunk (ingest command)")
	intents    = flag.String("intents", "", "comma-separated Intent names to link ingested chunks to")
	query      = flag.String("query", "", "query text (search, suggest commands)")
	strategy   = flag.String("strategy", "hybrid", "search strategy: vector, fulltext, hybrid, intent")
	k          = flag.Int("k", 10, "number of results to return (search command)")
)

type core struct {
	store        *graphstore.Adapter
	embedSvc     *embedding.Service
	pipeline     *ingest.Pipeline
	orchestrator *search.Orchestrator
	checker      *health.Checker
	logger       observability.Logger
}

func main() {
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	c, err := buildCore(ctx)
	if err != nil {
		log.Fatalf("failed to initialize core: %v", err)
	}
	defer c.embedSvc.Close()
	defer c.store.Close()

	switch *command {
	case "ingest":
		err = runIngest(ctx, c)
	case "search":
		err = runSearch(ctx, c)
	case "suggest":
		err = runSuggest(ctx, c)
	case "health":
		err = runHealth(ctx, c)
	default:
		err = fmt.Errorf("unknown command: %s", *command)
	}
	if err != nil {
		log.Fatalf("command %q failed: %v", *command, err)
	}
}

func buildCore(ctx context.Context) (*core, error) {
	logger := observability.NewLogger("core")
	metrics := observability.NewMetrics("search_engine", "core")

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := graphstore.NewAdapter(cfg.StoreURI, cfg.PoolSize, cfg.PoolAcquireTimeout, cfg.StoreQueryTimeout, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("initialize graph store: %w", err)
	}

	provider, err := newEmbeddingProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize embedding provider: %w", err)
	}

	var redisClient redis.UniversalClient
	if cfg.CacheURI != "" {
		opt, err := redis.ParseURL(cfg.CacheURI)
		if err != nil {
			return nil, fmt.Errorf("invalid cache_uri: %w", err)
		}
		redisClient = redis.NewClient(opt)
	}

	cache, err := embedding.NewCache(4096, redisClient, cfg.CacheTTL, cfg.EmbeddingDim, cfg.CacheOpTimeout, metrics)
	if err != nil {
		return nil, fmt.Errorf("initialize embedding cache: %w", err)
	}

	embedSvc := embedding.NewService(provider, cache, embedding.Config{
		MaxInputChars:      cfg.MaxInputChars,
		BatchSize:          cfg.BatchSize,
		QueueHighWatermark: cfg.QueueHighWatermark,
		ModelTimeout:       cfg.ModelTimeout,
	}, logger, metrics)
	embedSvc.SetNormalizer(ingest.Normalize)
	if err := embedSvc.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize embedding service: %w", err)
	}

	indexMgr := index.NewManager(store, cfg.EmbeddingDim, logger)
	if err := indexMgr.Bootstrap(ctx, 30*time.Second); err != nil {
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	pipeline := ingest.NewPipeline(
		ingest.NewSentenceChunker(cfg.ChunkChars, cfg.OverlapChars),
		ingest.NewScriptDetector(),
		embedSvc,
		store,
		logger,
		metrics,
		cfg.BatchSize,
	)

	orchestrator := search.NewOrchestrator(store, embedSvc, cfg.QueryTimeout, cfg.RRFK, logger, metrics)

	checker := health.NewChecker(
		modelProbe{embedSvc},
		store,
		func(checkCtx context.Context) bool {
			return indexMgr.Verify(checkCtx, 5*time.Second).Healthy
		},
		redisProbe(redisClient),
		2*time.Second,
		metrics,
	)

	return &core{
		store:        store,
		embedSvc:     embedSvc,
		pipeline:     pipeline,
		orchestrator: orchestrator,
		checker:      checker,
		logger:       logger,
	}, nil
}

func runIngest(ctx context.Context, c *core) error {
	if *document == "" {
		return fmt.Errorf("-document is required")
	}
	var intentNames []string
	if *intents != "" {
		intentNames = strings.Split(*intents, ",")
	}

	results := c.pipeline.Ingest(ctx, *document, *sourceDoc, *language, intentNames)
	for _, r := range results {
		switch {
		case r.Err != nil:
			fmt.Printf("chunk %d FAILED: %v\n", r.Position, r.Err)
		case r.Created:
			fmt.Printf("chunk %d ingested: %s\n", r.Position, r.ChunkHash)
		default:
			fmt.Printf("chunk %d skipped (already ingested): %s\n", r.Position, r.ChunkHash)
		}
	}

	summary := ingest.Summarize(results)
	fmt.Printf("chunks_ingested=%d chunks_skipped=%d\n", summary.ChunksIngested, summary.ChunksSkipped)
	for _, f := range summary.Failures {
		fmt.Printf("failure position=%d reason=%q\n", f.Position, f.Reason)
	}
	return nil
}

func runSearch(ctx context.Context, c *core) error {
	if *query == "" {
		return fmt.Errorf("-query is required")
	}
	req := search.DefaultRequest(*query)
	req.K = *k
	req.Strategy = search.Strategy(*strategy)

	resp, err := c.orchestrator.Search(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("partial=%v results=%d\n", resp.Partial, len(resp.Results))
	for _, r := range resp.Results {
		fmt.Printf("%s\tscore=%.4f\n", r.ChunkHash, r.Score)
	}
	return nil
}

func runSuggest(ctx context.Context, c *core) error {
	if *query == "" {
		return fmt.Errorf("-query is required")
	}
	suggestions, err := c.orchestrator.Suggest(ctx, *query, *language)
	if err != nil {
		return err
	}
	for _, s := range suggestions {
		fmt.Printf("%s (lang=%s, frequency=%d)\n", s.Name, s.Lang, s.Frequency)
	}
	return nil
}

func runHealth(ctx context.Context, c *core) error {
	report := c.checker.Check(ctx)
	fmt.Printf("healthy=%v\n", report.Healthy)
	for _, comp := range report.Components {
		status := "ok"
		if !comp.Healthy {
			status = comp.Err
		}
		fmt.Printf("  %s: %s\n", comp.Name, status)
	}
	if !report.Healthy {
		os.Exit(1)
	}
	return nil
}

// modelProbe adapts the Embedding Service's idempotent Initialize into a
// health.ModelProbe: a service that already initialized successfully
// answers Ping immediately, since re-running Initialize is a no-op.
type modelProbe struct{ svc *embedding.Service }

func (p modelProbe) Ping(ctx context.Context) error { return p.svc.Initialize(ctx) }

// redisProbe adapts an optional redis.UniversalClient into a
// health.CacheProbe; a nil client (cache disabled by configuration)
// returns a nil CacheProbe so Checker treats it as healthy-by-absence.
func redisProbe(client redis.UniversalClient) health.CacheProbe {
	if client == nil {
		return nil
	}
	return redisPinger{client}
}

type redisPinger struct{ client redis.UniversalClient }

func (r redisPinger) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func newEmbeddingProvider(ctx context.Context, cfg config.Config) (embedding.Provider, error) {
	if os.Getenv("SEARCH_ENGINE_USE_MOCK_PROVIDER") == "true" {
		return embedding.NewMockProvider(cfg.ModelID, cfg.EmbeddingDim), nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := bedrockruntime.NewFromConfig(awsCfg)
	return embedding.NewBedrockProvider(client, cfg.ModelID, cfg.EmbeddingDim), nil
}
