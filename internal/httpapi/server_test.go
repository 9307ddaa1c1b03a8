package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/classifier"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/ingestion"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/observability"
	"github.com/milamanifest69-lgtm/SolanaProject/internal/storage/memory"
)

type recordingProcessor struct {
	mu       sync.Mutex
	payloads []string
}

func (p *recordingProcessor) Process(_ context.Context, payload []byte) (ingestion.Stats, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, string(payload))
	return ingestion.Stats{}, true
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_AlwaysAcknowledges(t *testing.T) {
	proc := &recordingProcessor{}
	router := NewRouter(Options{Processor: proc})

	tests := []struct {
		name   string
		body   string
		status string
	}{
		{"object", `{"signature":"s1"}`, "received"},
		{"array", `[{"signature":"s1"},{"signature":"s2"}]`, "received"},
		{"invalid json", `{not json`, "received"},
		{"scalar", `42`, "received"},
		{"empty", ``, "ignored"},
		{"whitespace", "  \n", "ignored"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, router, "/webhook", tt.body)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"status":"`+tt.status+`"}`, rec.Body.String())
		})
	}
	assert.Len(t, proc.payloads, 4)
}

func TestWebhook_BodyTooLarge(t *testing.T) {
	proc := &recordingProcessor{}
	router := NewRouter(Options{Processor: proc, MaxBodyBytes: 8})

	rec := post(t, router, "/webhook", `{"signature":"too-long"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, proc.payloads)
}

func TestWebhook_CustomPath(t *testing.T) {
	proc := &recordingProcessor{}
	router := NewRouter(Options{Processor: proc, WebhookPath: "/helius"})

	assert.Equal(t, http.StatusOK, post(t, router, "/helius", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, post(t, router, "/webhook", `{}`).Code)
}

func TestWebhook_EndToEnd(t *testing.T) {
	store := memory.NewSignalStore()
	c, err := classifier.New(nil, decimal.NewFromInt(100))
	require.NoError(t, err)
	metrics := observability.NewMetrics("test")
	pipeline := ingestion.NewPipeline(ingestion.Options{Classifier: c, Store: store, Metrics: metrics})
	router := NewRouter(Options{Processor: pipeline, Metrics: metrics})

	rec := post(t, router, "/webhook", `[{"signature":"w1","description":"Swap 150 SOL for USDC"},{"signature":"g1","description":"Swap 2 SOL"}]`)
	require.Equal(t, http.StatusOK, rec.Code)

	recs, err := store.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "w1", recs[0].Signature)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrec := httptest.NewRecorder()
	router.ServeHTTP(mrec, req)
	assert.Equal(t, http.StatusOK, mrec.Code)
	assert.Contains(t, mrec.Body.String(), "test_ingestion_signals_stored_total")
}

func TestHealthz(t *testing.T) {
	router := NewRouter(Options{Processor: &recordingProcessor{}})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
