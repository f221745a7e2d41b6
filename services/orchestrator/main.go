// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/nereid-ai/codeassist/services/llm"
	"github.com/nereid-ai/codeassist/services/orchestrator/cache"
	"github.com/nereid-ai/codeassist/services/orchestrator/handlers"
	"github.com/nereid-ai/codeassist/services/orchestrator/middleware"
	"github.com/nereid-ai/codeassist/services/orchestrator/observability"
	"github.com/nereid-ai/codeassist/services/orchestrator/routes"
	"github.com/nereid-ai/codeassist/services/orchestrator/services"
	"github.com/nereid-ai/codeassist/services/vectorstore"
	badgerstore "github.com/nereid-ai/codeassist/services/storage/badger"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "codeassist-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("codeassist-gateway")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// envDuration reads an env var holding milliseconds; zero if unset or bad.
func envDuration(key string) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		slog.Warn("Ignoring invalid duration env var", "key", key, "value", raw)
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// envFloat reads a float env var; zero if unset or bad.
func envFloat(key string) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("Ignoring invalid float env var", "key", key, "value", raw)
		return 0
	}
	return f
}

// envUint reads an unsigned integer env var; zero if unset or bad.
func envUint(key string) uint64 {
	raw := os.Getenv(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		slog.Warn("Ignoring invalid integer env var", "key", key, "value", raw)
		return 0
	}
	return n
}

func newWeaviateClient() *weaviate.Client {
	weaviateURL := strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' ")
	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("WEAVIATE_SERVICE_URL not set. Context retrieval disabled.")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("WEAVIATE_SERVICE_URL is invalid. Context retrieval disabled.",
			"url", weaviateURL, "error", err)
		return nil
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		slog.Error("Failed to create Weaviate client", "error", err)
		return nil
	}
	if err := vectorstore.EnsureSchema(context.Background(), client); err != nil {
		log.Fatalf("Failed to ensure Weaviate schema: %v", err)
	}
	return client
}

func newBackend() llm.LLMClient {
	var backend llm.LLMClient
	var err error

	switch backendType := os.Getenv("LLM_BACKEND_TYPE"); backendType {
	case "openai":
		backend, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI-compatible LLM backend")
	case "ollama", "":
		backend, err = llm.NewOllamaClient()
		slog.Info("Using Ollama LLM backend")
	default:
		slog.Warn("Unknown LLM_BACKEND_TYPE, defaulting to ollama", "type", backendType)
		backend, err = llm.NewOllamaClient()
	}
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}
	return backend
}

func main() {
	port := os.Getenv("ASSIST_PORT")
	if port == "" {
		port = "8000"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	metrics := observability.InitMetrics()

	// Response cache on local disk.
	cacheDir := os.Getenv("CACHE_DIR")
	if cacheDir == "" {
		cacheDir = "/var/lib/codeassist/cache"
	}
	db, err := badgerstore.Open(badgerstore.DefaultConfig(cacheDir))
	if err != nil {
		log.Fatalf("Failed to open cache store at %s: %v", cacheDir, err)
	}
	defer db.Close()

	gcRunner, err := badgerstore.NewGCRunner(db, 5*time.Minute, 0.5, logger)
	if err != nil {
		log.Fatalf("Failed to create cache GC runner: %v", err)
	}
	gcRunner.Start()
	defer gcRunner.Stop()

	ttl := time.Duration(envUint("CACHE_TTL_SECONDS")) * time.Second
	gateway := cache.NewGateway(cache.NewBadgerStore(db), cache.Options{
		GetTimeout: envDuration("CACHE_GET_TIMEOUT_MS"),
		MemMargin:  envUint("ASSIST_MEM_MARGIN_BYTES"),
		TTL:        ttl,
	})

	// Vector search for context retrieval. A nil client degrades to
	// empty context on every request.
	var searcher vectorstore.Searcher
	if client := newWeaviateClient(); client != nil {
		searcher, err = vectorstore.NewWeaviateSearcher(client)
		if err != nil {
			log.Fatalf("Failed to create searcher: %v", err)
		}
	} else {
		searcher = vectorstore.Unavailable()
	}
	retriever := services.NewContextRetriever(searcher)

	gate := llm.NewGate(newBackend(), llm.GateOptions{
		MemMaxPercent: envFloat("ASSIST_MEM_MAX_PERCENT"),
		MinSpacing:    envDuration("ASSIST_GEN_SPACING_MS"),
		OnAdmissionWait: func(wait time.Duration) {
			metrics.AdmissionWaitSeconds.Observe(wait.Seconds())
		},
		OnOverloadRefusal: metrics.OverloadRefusalsTotal.Inc,
	})

	// Warm up in the background so the first request doesn't pay the
	// model load penalty. Failure is logged, not fatal.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		slog.Info("Warming up model...")
		if err := gate.Warmup(ctx); err != nil {
			slog.Warn("Model warmup failed", "error", err)
		} else {
			slog.Info("Model warmup complete")
		}
	}()

	h := handlers.New(gate, gateway, retriever, metrics, nil)

	router := gin.Default()
	router.Use(otelgin.Middleware("codeassist-gateway"))
	router.Use(middleware.Timing())
	router.Use(middleware.RateLimit(rate.NewLimiter(
		rate.Limit(middleware.DefaultRateLimit), middleware.DefaultRateBurst)))

	routes.SetupRoutes(router, h)

	slog.Info("Starting the code-assistance gateway", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
