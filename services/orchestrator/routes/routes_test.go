// Copyright (C) 2025 Nereid AI (dev@nereid.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nereid-ai/codeassist/pkg/sysmem"
	"github.com/nereid-ai/codeassist/services/llm"
	"github.com/nereid-ai/codeassist/services/orchestrator/cache"
	"github.com/nereid-ai/codeassist/services/orchestrator/handlers"
	"github.com/nereid-ai/codeassist/services/orchestrator/services"
	"github.com/nereid-ai/codeassist/services/vectorstore"
	badgerstore "github.com/nereid-ai/codeassist/services/storage/badger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubGate struct{}

func (stubGate) Generate(context.Context, string, llm.GenerationParams) (string, error) {
	return "", nil
}
func (stubGate) GenerateStream(context.Context, string, llm.GenerationParams, llm.StreamCallback) error {
	return nil
}
func (stubGate) Status() llm.GateStatus { return llm.GateStatus{} }

type stubSearcher struct{}

func (stubSearcher) Search(context.Context, string, vectorstore.SearchOptions) ([]vectorstore.Document, error) {
	return nil, nil
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()

	db, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gateway := cache.NewGateway(cache.NewBadgerStore(db), cache.Options{
		Memory: sysmem.Fixed(sysmem.Snapshot{AvailableBytes: 64 << 30, UsedPercent: 30}),
	})
	h := handlers.New(stubGate{}, gateway, services.NewContextRetriever(stubSearcher{}), nil,
		sysmem.Fixed(sysmem.Snapshot{AvailableBytes: 8 << 30, UsedPercent: 40}))

	router := gin.New()
	SetupRoutes(router, h)
	return router
}

func TestRouteRegistration(t *testing.T) {
	t.Parallel()

	router := newRouter(t)

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/health"},
		{http.MethodGet, "/metrics"},
		{http.MethodPost, "/v1/complete"},
		{http.MethodPost, "/v1/chat"},
		{http.MethodPost, "/v1/review"},
		{http.MethodPost, "/v1/optimize"},
		{http.MethodPost, "/v1/refactor"},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, strings.NewReader("{}")))
		assert.NotEqual(t, http.StatusNotFound, w.Code, "%s %s not registered", tc.method, tc.path)
	}
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()

	router := newRouter(t)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	t.Parallel()

	router := newRouter(t)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
