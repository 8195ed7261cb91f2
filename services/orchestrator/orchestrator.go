// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator provides the HTTP service around the PV-curve agent.
//
// The service wires the agent's capabilities (language backend, retrieval,
// simulator, session archive) from configuration and exposes chat,
// session, and document endpoints over gin.
//
// # Usage
//
//	cfg := orchestrator.Config{Port: 12210}
//	svc, err := orchestrator.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
//
// Tests and embedders can inject components through Options:
//
//	svc, err := orchestrator.New(cfg, &orchestrator.Options{
//	    LLMClient:  llm.NewMockClient(),
//	    Registerer: prometheus.NewRegistry(),
//	})
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/pvagent/services/agent"
	"github.com/AleutianAI/pvagent/services/history"
	"github.com/AleutianAI/pvagent/services/llm"
	"github.com/AleutianAI/pvagent/services/orchestrator/middleware"
	"github.com/AleutianAI/pvagent/services/orchestrator/observability"
	"github.com/AleutianAI/pvagent/services/orchestrator/routes"
	"github.com/AleutianAI/pvagent/services/orchestrator/sessions"
	"github.com/AleutianAI/pvagent/services/pvcurve"
	"github.com/AleutianAI/pvagent/services/retrieval"
	storebadger "github.com/AleutianAI/pvagent/services/storage/badger"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the orchestrator service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until it stops. Resources are
	// released when Run returns.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine

	// Close releases resources without running the server.
	Close()
}

// =============================================================================
// Configuration
// =============================================================================

const (
	// OTelStdout selects the stdout span exporter instead of OTLP.
	OTelStdout = "stdout"

	// OTelDisabled turns tracing off.
	OTelDisabled = "none"
)

// Config holds orchestrator configuration options.
//
// # Description
//
// All fields are optional; zero values take the defaults applied by New.
//
// # Examples
//
//	cfg := Config{
//	    Port:        12210,
//	    LLMBackend:  llm.BackendConfig{Type: "ollama", Model: "llama3"},
//	    WeaviateURL: "http://localhost:8080",
//	    HistoryPath: "/var/lib/pvagent/history",
//	}
type Config struct {
	// Port is the HTTP server port. Default: 12210
	Port int

	// LLMBackend selects and configures the language backend.
	// Default type: "ollama"
	LLMBackend llm.BackendConfig

	// Agent holds the orchestration settings (retry ceiling, plan length,
	// capability timeout, history-aware default).
	Agent agent.Config

	// WeaviateURL is the Weaviate vector database URL.
	// If empty, retrieval falls back to the built-in primer passages.
	WeaviateURL string

	// EmbeddingURL is the batch embedding service used for queries and
	// ingestion. When empty and the LLM backend is "openai", the OpenAI
	// embeddings API is used instead.
	EmbeddingURL string

	// EmbeddingModel names the OpenAI embedding model.
	// Default: "text-embedding-3-small"
	EmbeddingModel string

	// OTelEndpoint is the OpenTelemetry collector endpoint, "stdout", or
	// "none". Default: "localhost:4317"
	OTelEndpoint string

	// HistoryPath is the BadgerDB directory of the session archive.
	// Empty keeps the archive in memory.
	HistoryPath string

	// SimulatorURL points at an external power-flow service. Empty runs
	// the in-process sweep.
	SimulatorURL string

	// OutputDir receives curve CSV files from the in-process sweep.
	// Default: "generated"
	OutputDir string

	// Influx, when URL is set, mirrors every simulation result to InfluxDB.
	Influx history.InfluxConfig

	// SessionIdleTTL is how long a session stays in memory without use.
	// Default: 30 minutes
	SessionIdleTTL time.Duration

	// APIKeys, when non-empty, protects every /v1 route with a bearer
	// token. Health and metrics stay open.
	APIKeys middleware.APIKeys
}

// Options injects prebuilt components. Every field is optional.
type Options struct {
	// LLMClient replaces the backend built from Config.LLMBackend.
	LLMClient llm.Client

	// Simulator replaces the simulator built from Config.SimulatorURL.
	Simulator pvcurve.Simulator

	// Registerer receives the service metrics. Default: the Prometheus
	// default registry. When it is also a prometheus.Gatherer, /metrics
	// serves from it.
	Registerer prometheus.Registerer
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config        Config
	router        *gin.Engine
	metrics       *observability.AgentMetrics
	gatherer      prometheus.Gatherer
	db            *storebadger.DB
	store         *history.Store
	sink          history.ResultSink
	weaviate      *weaviate.Client
	retriever     agent.Retriever
	ingester      *retrieval.Ingester
	simulator     pvcurve.Simulator
	llmClient     llm.Client
	agent         *agent.Orchestrator
	registry      *sessions.Registry
	evictor       *sessions.Evictor
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new orchestrator Service.
//
// # Description
//
// New initializes, in order: tracing, metrics, the session archive and
// result sink, retrieval (Weaviate when configured and reachable, the
// static primer otherwise), the simulator, the language backend, the
// agent, the session registry with its idle evictor, and the router.
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//   - opts: Injected components. May be nil.
//
// # Outputs
//
//   - Service: Ready-to-run orchestrator service
//   - error: Non-nil if a required component fails to initialize. A
//     Weaviate failure is not fatal.
func New(cfg Config, opts *Options) (Service, error) {
	s := &service{config: applyConfigDefaults(cfg)}
	if opts == nil {
		opts = &Options{}
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	s.initMetrics(opts.Registerer)

	if err := s.initHistory(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize session archive: %w", err)
	}

	if err := s.initWeaviate(); err != nil {
		slog.Warn("Weaviate initialization failed, using built-in passages",
			"error", err)
		s.weaviate = nil
		s.ingester = nil
	}
	if s.retriever == nil {
		s.retriever = retrieval.NewStaticRetriever(nil)
	}

	s.simulator = opts.Simulator
	if s.simulator == nil {
		s.initSimulator()
	}

	s.llmClient = opts.LLMClient
	if s.llmClient == nil {
		if s.llmClient, err = llm.NewClient(s.config.LLMBackend); err != nil {
			s.cleanup()
			return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
		}
	}

	s.agent, err = agent.New(s.config.Agent, agent.Capabilities{
		Language:  llm.NewLanguage(s.llmClient, llm.GenerationParams{}),
		Retriever: s.retriever,
		Simulator: s.simulator,
		Recorder:  history.NewRecorder(s.store, s.sink),
	}, agent.WithObserver(s.metrics))
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize agent: %w", err)
	}

	s.registry = sessions.NewRegistry(s.store, s.metrics.SetActiveSessions)
	s.evictor = sessions.NewEvictor(s.registry, sessions.EvictorConfig{IdleTTL: s.config.SessionIdleTTL})
	if err := s.evictor.Start(context.Background()); err != nil {
		s.cleanup()
		return nil, err
	}

	s.initRouter()
	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting orchestrator server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// Close releases all resources.
func (s *service) Close() {
	s.cleanup()
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12210
	}
	if cfg.LLMBackend.Type == "" {
		cfg.LLMBackend.Type = "ollama"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "localhost:4317"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "generated"
	}
	if cfg.SessionIdleTTL <= 0 {
		cfg.SessionIdleTTL = sessions.DefaultEvictorConfig().IdleTTL
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Exports spans over OTLP gRPC to the configured collector, or to stdout
// when the endpoint is "stdout". "none" leaves the global no-op provider
// in place.
//
// # Outputs
//
//   - func(context.Context): Cleanup function to call on shutdown
//   - error: Non-nil if tracer setup fails
//
// # Limitations
//
//   - Uses insecure gRPC connection (appropriate for internal networks)
func (s *service) initTracer() (func(context.Context), error) {
	if s.config.OTelEndpoint == OTelDisabled {
		return nil, nil
	}
	ctx := context.Background()

	var (
		traceExporter sdktrace.SpanExporter
		err           error
	)
	if s.config.OTelEndpoint == OTelStdout {
		traceExporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	} else {
		var conn *grpc.ClientConn
		conn, err = grpc.NewClient(s.config.OTelEndpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
		}
		traceExporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("pvagent-orchestrator")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", "error", err)
		}
	}
	return cleanup, nil
}

func (s *service) initMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s.metrics = observability.NewAgentMetrics(reg)
	if g, ok := reg.(prometheus.Gatherer); ok {
		s.gatherer = g
	}
	slog.Info("Initialized Prometheus metrics")
}

// initHistory opens the session archive and the optional result sink.
func (s *service) initHistory() error {
	var err error
	if s.config.HistoryPath == "" {
		slog.Info("Session archive kept in memory")
		s.db, err = storebadger.OpenInMemory()
	} else {
		dbCfg := storebadger.DefaultConfig(s.config.HistoryPath)
		dbCfg.Logger = slog.Default().With("component", "badger")
		s.db, err = storebadger.Open(dbCfg)
	}
	if err != nil {
		return err
	}
	s.store = history.NewStore(s.db)

	if s.config.Influx.URL != "" {
		s.sink = history.NewInfluxSink(s.config.Influx)
		slog.Info("Mirroring simulation results to InfluxDB",
			"url", s.config.Influx.URL, "bucket", s.config.Influx.Bucket)
	}
	return nil
}

// initWeaviate connects to Weaviate, ensures the document class exists,
// and builds the retriever and ingester.
//
// # Outputs
//
//   - error: Non-nil if Weaviate is configured but unusable. Returns nil
//     when WeaviateURL is empty.
func (s *service) initWeaviate() error {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")
	if weaviateURL == "" {
		slog.Info("Weaviate URL not configured, using built-in passages")
		return nil
	}

	embedder, err := s.newEmbedder()
	if err != nil {
		return err
	}
	client, err := retrieval.NewWeaviateClient(weaviateURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := retrieval.EnsureSchema(ctx, client); err != nil {
		return err
	}

	s.weaviate = client
	s.retriever = retrieval.NewWeaviateRetriever(client, embedder)
	s.ingester = retrieval.NewIngester(client, embedder)
	slog.Info("Weaviate client initialized", "url", weaviateURL)
	return nil
}

func (s *service) newEmbedder() (retrieval.Embedder, error) {
	switch {
	case s.config.EmbeddingURL != "":
		return retrieval.NewHTTPEmbedder(s.config.EmbeddingURL), nil
	case strings.EqualFold(s.config.LLMBackend.Type, "openai"):
		apiKey := s.config.LLMBackend.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return retrieval.NewOpenAIEmbedder(apiKey, s.config.LLMBackend.BaseURL, s.config.EmbeddingModel), nil
	default:
		return nil, errors.New("no embedding service configured")
	}
}

func (s *service) initSimulator() {
	if s.config.SimulatorURL != "" {
		s.simulator = pvcurve.NewRemoteSimulator(s.config.SimulatorURL, s.config.Agent.CapabilityTimeout)
		slog.Info("Using remote power-flow service", "url", s.config.SimulatorURL)
		return
	}
	s.simulator = pvcurve.NewLocalSimulator(s.config.OutputDir)
	slog.Info("Using in-process PV sweep", "output_dir", s.config.OutputDir)
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("pvagent-orchestrator"))

	deps := routes.Dependencies{
		Processor:   s.agent,
		Registry:    s.registry,
		Archive:     s.store,
		Connections: s.metrics,
		Gatherer:    s.gatherer,
		APIKeys:     s.config.APIKeys,
	}
	if s.ingester != nil {
		deps.Ingester = s.ingester
	}
	routes.SetupRoutes(s.router, deps)
}

// cleanup releases all resources held by the service. Safe to call more
// than once.
func (s *service) cleanup() {
	if s.evictor != nil {
		s.evictor.Stop()
	}
	if s.sink != nil {
		s.sink.Close()
		s.sink = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Warn("Session archive close error", "error", err)
		}
		s.db = nil
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
		s.tracerCleanup = nil
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
