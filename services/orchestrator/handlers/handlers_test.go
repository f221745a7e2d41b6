// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nereid-ai/codeassist/pkg/sysmem"
	"github.com/nereid-ai/codeassist/services/llm"
	"github.com/nereid-ai/codeassist/services/orchestrator/cache"
	"github.com/nereid-ai/codeassist/services/orchestrator/datatypes"
	"github.com/nereid-ai/codeassist/services/orchestrator/observability"
	"github.com/nereid-ai/codeassist/services/orchestrator/services"
	"github.com/nereid-ai/codeassist/services/vectorstore"
	badgerstore "github.com/nereid-ai/codeassist/services/storage/badger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeGate is an in-process Generator: Generate returns a canned string,
// GenerateStream emits canned fragments. Calls are counted.
type fakeGate struct {
	mu        sync.Mutex
	response  string
	fragments []string
	err       error

	generateCalls int
	streamCalls   int
	lastPrompt    string
	lastGenCtx    context.Context
}

func (f *fakeGate) Generate(ctx context.Context, prompt string, _ llm.GenerationParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateCalls++
	f.lastPrompt = prompt
	f.lastGenCtx = ctx
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeGate) GenerateStream(_ context.Context, prompt string, _ llm.GenerationParams, cb llm.StreamCallback) error {
	f.mu.Lock()
	f.streamCalls++
	f.lastPrompt = prompt
	fragments := f.fragments
	err := f.err
	f.mu.Unlock()

	if err != nil {
		return err
	}
	for _, frag := range fragments {
		if cbErr := cb(llm.StreamEvent{Type: llm.StreamEventToken, Content: frag}); cbErr != nil {
			return cbErr
		}
	}
	return nil
}

func (f *fakeGate) Status() llm.GateStatus { return llm.GateStatus{} }

// fakeSearcher serves canned documents for every query.
type fakeSearcher struct {
	mu   sync.Mutex
	docs []vectorstore.Document
	err  error
	seen []vectorstore.SearchOptions
}

func (f *fakeSearcher) Search(_ context.Context, _ string, opts vectorstore.SearchOptions) ([]vectorstore.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, opts)
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

type testEnv struct {
	router   *gin.Engine
	gate     *fakeGate
	searcher *fakeSearcher
	gateway  *cache.Gateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gateway := cache.NewGateway(cache.NewBadgerStore(db), cache.Options{
		Memory: sysmem.Fixed(sysmem.Snapshot{AvailableBytes: 64 << 30, UsedPercent: 30}),
	})

	gate := &fakeGate{}
	searcher := &fakeSearcher{}
	metrics := observability.NewMetricsWithRegistry(prometheus.NewRegistry())
	memory := sysmem.Fixed(sysmem.Snapshot{AvailableBytes: 8 << 30, UsedPercent: 42})

	h := New(gate, gateway, services.NewContextRetriever(searcher), metrics, memory)

	router := gin.New()
	router.POST("/v1/complete", h.HandleComplete)
	router.POST("/v1/chat", h.HandleChat)
	router.POST("/v1/review", h.HandleReview)
	router.POST("/v1/optimize", h.HandleOptimize)
	router.POST("/v1/refactor", h.HandleRefactor)
	router.GET("/health", h.HandleHealth)

	return &testEnv{router: router, gate: gate, searcher: searcher, gateway: gateway}
}

func (e *testEnv) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	e.router.ServeHTTP(w, req)
	return w
}

// sseTokens extracts the token contents and terminal event types from an
// SSE response body.
func sseTokens(t *testing.T, body string) (tokens []string, eventTypes []string) {
	t.Helper()
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event datatypes.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		eventTypes = append(eventTypes, event.Type)
		if event.Type == datatypes.StreamEventToken {
			tokens = append(tokens, event.Content)
		}
	}
	return tokens, eventTypes
}

func TestCompleteStreamsAndCaches(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.gate.fragments = []string{"def run(", "):", " pass"}
	env.searcher.docs = []vectorstore.Document{{Content: "def helper(): ...", Source: "dags/util.py"}}

	req := datatypes.CompletionRequest{Prompt: "def run", FilePath: "dags/main.py"}
	w := env.post(t, "/v1/complete", req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	tokens, types := sseTokens(t, w.Body.String())
	assert.Equal(t, []string{"def run(", "):", " pass"}, tokens)
	assert.Equal(t, datatypes.StreamEventDone, types[len(types)-1])

	// Retrieved context and partial code both made it into the prompt.
	assert.Contains(t, env.gate.lastPrompt, "def helper(): ...")
	assert.Contains(t, env.gate.lastPrompt, "def run")

	// Context retrieval was scoped to the request's directory.
	require.NotEmpty(t, env.searcher.seen)
	assert.Equal(t, "dags", env.searcher.seen[0].SourcePrefix)

	// Full text landed in the cache under the derived key.
	key := cache.DeriveKey(req.Prompt, req.FilePath)
	cached, ok := env.gateway.Get(context.Background(), key)
	require.True(t, ok)
	assert.Equal(t, "def run(): pass", cached)
}

func TestCompleteCacheHitSkipsGeneration(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.gate.fragments = []string{"result"}

	req := datatypes.CompletionRequest{Prompt: "x", FilePath: "a.py"}
	first := env.post(t, "/v1/complete", req)
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, 1, env.gate.streamCalls)

	second := env.post(t, "/v1/complete", req)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, 1, env.gate.streamCalls, "cache hit must not reach the backend")

	tokens, types := sseTokens(t, second.Body.String())
	assert.Equal(t, []string{"result"}, tokens)
	assert.Equal(t, datatypes.StreamEventDone, types[len(types)-1])
}

func TestCompleteValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	w := env.post(t, "/v1/complete", gin.H{"prompt": "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Zero(t, env.gate.streamCalls)
}

func TestCompleteOverloadEmitsErrorEvent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.gate.err = llm.ErrModelOverloaded

	req := datatypes.CompletionRequest{Prompt: "x", FilePath: "a.py"}
	w := env.post(t, "/v1/complete", req)

	_, types := sseTokens(t, w.Body.String())
	require.NotEmpty(t, types)
	assert.Equal(t, datatypes.StreamEventError, types[len(types)-1])

	// A failed stream never populates the cache.
	_, ok := env.gateway.Get(context.Background(), cache.DeriveKey(req.Prompt, req.FilePath))
	assert.False(t, ok)
}

func TestChatStreamsWithoutCaching(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.gate.fragments = []string{"It ", "loads ", "data."}

	w := env.post(t, "/v1/chat", datatypes.ChatRequest{
		Message:     "what does this do?",
		CurrentCode: "def load(): ...",
	})
	require.Equal(t, http.StatusOK, w.Code)

	tokens, _ := sseTokens(t, w.Body.String())
	assert.Equal(t, []string{"It ", "loads ", "data."}, tokens)
	assert.Contains(t, env.gate.lastPrompt, "what does this do?")
	assert.Contains(t, env.gate.lastPrompt, "def load(): ...")

	// Same request again still reaches the backend.
	env.post(t, "/v1/chat", datatypes.ChatRequest{Message: "what does this do?"})
	assert.Equal(t, 2, env.gate.streamCalls)
}

func TestReviewGeneratesAndParses(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.gate.response = `- line_start: 2
- line_end: 2
- severity: high
- type: standard
- description: missing retries in default_args
`
	// Nothing similar indexed: distances all above threshold.
	env.searcher.docs = []vectorstore.Document{{Content: "unrelated", Distance: 0.8}}

	w := env.post(t, "/v1/review", datatypes.ReviewRequest{Code: "dag = DAG('x')"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.ReviewResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, datatypes.ReviewSourceGenerated, resp.Source)
	require.Len(t, resp.Issues, 1)
	assert.Equal(t, "missing retries in default_args", resp.Issues[0].Description)
	assert.Equal(t, 1, env.gate.generateCalls)
}

func TestReviewSemanticCacheHit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	// Seed a cached review for previously indexed code.
	similarCode := "dag = DAG('etl')"
	issues := []datatypes.CodeIssue{{
		LineStart: 1, LineEnd: 1,
		Severity: "medium", Type: "standard",
		Description: "dag_id should describe the pipeline",
	}}
	key := cache.DeriveKey(services.BuildReviewPrompt(similarCode, "python"))
	env.gateway.SetJSON(context.Background(), key, issues)

	// The vector store says the incoming code is nearly identical.
	env.searcher.docs = []vectorstore.Document{{Content: similarCode, Distance: 0.1}}

	w := env.post(t, "/v1/review", datatypes.ReviewRequest{Code: "dag = DAG('etl2')"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.ReviewResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, datatypes.ReviewSourceExisting, resp.Source)
	require.Len(t, resp.Issues, 1)
	assert.Equal(t, "dag_id should describe the pipeline", resp.Issues[0].Description)
	assert.Zero(t, env.gate.generateCalls, "semantic hit must skip generation")
}

func TestReviewDistantMatchesIgnored(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.gate.response = "no issues"

	similarCode := "dag = DAG('etl')"
	key := cache.DeriveKey(services.BuildReviewPrompt(similarCode, "python"))
	env.gateway.SetJSON(context.Background(), key, []datatypes.CodeIssue{})

	// Same indexed code, but too far to count as similar.
	env.searcher.docs = []vectorstore.Document{{Content: similarCode, Distance: 0.8}}

	w := env.post(t, "/v1/review", datatypes.ReviewRequest{Code: "something else"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.ReviewResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, datatypes.ReviewSourceGenerated, resp.Source)
	assert.Equal(t, 1, env.gate.generateCalls)
}

func TestReviewOverloadReturns503(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.gate.err = llm.ErrModelOverloaded

	w := env.post(t, "/v1/review", datatypes.ReviewRequest{Code: "x = 1"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestOptimizeUsesRelatedCode(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.gate.fragments = []string{"optimized"}
	env.searcher.docs = []vectorstore.Document{{Content: "def helper(): ..."}}

	w := env.post(t, "/v1/optimize", datatypes.OptimizeRequest{
		Code:    "slow()",
		Context: []string{"a.py", "b.py"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	// One k=1 lookup per context file.
	require.Len(t, env.searcher.seen, 2)
	assert.Equal(t, 1, env.searcher.seen[0].Limit)
	assert.Equal(t, "a.py", env.searcher.seen[0].Source)
	assert.Equal(t, "b.py", env.searcher.seen[1].Source)

	assert.Contains(t, env.gate.lastPrompt, "slow()")
	assert.Contains(t, env.gate.lastPrompt, "def helper(): ...")
}

func TestRefactorTargetsVersion(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.gate.fragments = []string{"refactored"}

	w := env.post(t, "/v1/refactor", datatypes.RefactorRequest{
		Code:          "old_api()",
		TargetVersion: "2.10",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, env.gate.lastPrompt, "2.10")
	assert.Contains(t, env.gate.lastPrompt, "old_api()")

	tokens, _ := sseTokens(t, w.Body.String())
	assert.Equal(t, []string{"refactored"}, tokens)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "idle", body["model_status"])
	assert.InDelta(t, 42.0, body["memory_used_percent"], 1e-9)
}

// idleBackend is an LLMClient that must never be reached.
type idleBackend struct{}

func (idleBackend) Generate(context.Context, string, llm.GenerationParams) (string, error) {
	return "", nil
}

func (idleBackend) GenerateStream(context.Context, string, llm.GenerationParams, llm.StreamCallback) error {
	return nil
}

// TestReviewOverloadCountsRefusal drives a review through a real gate on a
// memory-starved host and verifies the refusal shows up on the counter,
// not just in the 503.
func TestReviewOverloadCountsRefusal(t *testing.T) {
	t.Parallel()

	db, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gateway := cache.NewGateway(cache.NewBadgerStore(db), cache.Options{
		Memory: sysmem.Fixed(sysmem.Snapshot{AvailableBytes: 64 << 30, UsedPercent: 30}),
	})
	metrics := observability.NewMetricsWithRegistry(prometheus.NewRegistry())

	gate := llm.NewGate(idleBackend{}, llm.GateOptions{
		Memory: sysmem.Fixed(sysmem.Snapshot{AvailableBytes: 1 << 30, UsedPercent: 99}),
		OnAdmissionWait: func(wait time.Duration) {
			metrics.AdmissionWaitSeconds.Observe(wait.Seconds())
		},
		OnOverloadRefusal: metrics.OverloadRefusalsTotal.Inc,
	})

	h := New(gate, gateway, services.NewContextRetriever(&fakeSearcher{}), metrics,
		sysmem.Fixed(sysmem.Snapshot{AvailableBytes: 1 << 30, UsedPercent: 99}))
	router := gin.New()
	router.POST("/v1/review", h.HandleReview)

	env := &testEnv{router: router}
	w := env.post(t, "/v1/review", datatypes.ReviewRequest{Code: "x = 1"})

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OverloadRefusalsTotal))
}

// TestReviewGenerationDetachedFromCallerContext verifies the deduplicated
// generation is not bound to the requesting client's lifetime: cancelling
// the request context after the fact must not cancel the shared call.
func TestReviewGenerationDetachedFromCallerContext(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.gate.response = "- line_start: 1\n- line_end: 1\n- severity: low\n- type: style\n- description: fine\n"

	ctx, cancel := context.WithCancel(context.Background())

	payload, err := json.Marshal(datatypes.ReviewRequest{Code: "x = 1"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/review", bytes.NewReader(payload)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	cancel()
	require.NotNil(t, env.gate.lastGenCtx)
	assert.NoError(t, env.gate.lastGenCtx.Err(),
		"generation context must survive the caller's cancellation")
}
