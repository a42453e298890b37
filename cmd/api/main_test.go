package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/kk32340/SampleMLCode/engine/domain"
	"github.com/kk32340/SampleMLCode/engine/ingest"
	"github.com/kk32340/SampleMLCode/engine/rag"
	"github.com/kk32340/SampleMLCode/engine/semantic"
	"github.com/kk32340/SampleMLCode/pkg/app"
	"github.com/kk32340/SampleMLCode/pkg/config"
	"github.com/kk32340/SampleMLCode/pkg/metrics"
	"github.com/kk32340/SampleMLCode/pkg/natsutil"
)

// topicEmbedder places texts on one axis per known topic.
type topicEmbedder struct{ err error }

func (e topicEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		t = strings.ToLower(t)
		v := []float32{0.01, 0.01, 0.01}
		for axis, word := range []string{"refund", "shipping", "warranty"} {
			if strings.Contains(t, word) {
				v[axis] = 1
			}
		}
		out[i] = v
	}
	return out, nil
}

type stubGenerator struct{ err error }

func (g stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	if strings.HasPrefix(prompt, "Classify the user") {
		return "casual", nil
	}
	if g.err != nil {
		return "", g.err
	}
	return "Refunds take 5 days.", nil
}

func newTestServer(t *testing.T, p app.Providers) *server {
	t.Helper()
	cfg := config.Default()
	if p.Embedder == nil {
		p.Embedder = topicEmbedder{}
	}
	if p.Generator == nil {
		p.Generator = stubGenerator{}
	}
	p.Model = "stub-model"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := app.Assemble(cfg, p, semantic.NewMemoryIndex(), logger)
	if err != nil {
		t.Fatal(err)
	}
	s := newServer(a, metrics.New(), logger)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func seed(t *testing.T, h http.Handler) {
	t.Helper()
	rec := do(t, h, "POST", "/api/documents", `{"documents":[
		{"id":"refunds","content":"Refund requests are processed within 5 days."},
		{"id":"shipping","content":"Shipping takes two weeks."}
	]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("seed: %d %s", rec.Code, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, app.Providers{}).handler()
	for _, path := range []string{"/health", "/api/health"} {
		rec := do(t, h, "GET", path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
		var resp map[string]string
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp["status"] != "healthy" || resp["model"] != "stub-model" {
			t.Fatalf("unexpected body %v", resp)
		}
	}
}

func TestAskAnswersWithSources(t *testing.T) {
	h := newTestServer(t, app.Providers{}).handler()
	seed(t, h)

	rec := do(t, h, "POST", "/api/ask", `{"question":"How long does a refund take?","k":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var ans rag.Answer
	if err := json.NewDecoder(rec.Body).Decode(&ans); err != nil {
		t.Fatal(err)
	}
	if ans.Answer != "Refunds take 5 days." || len(ans.Sources) != 1 {
		t.Fatalf("unexpected answer %+v", ans)
	}
	if ans.Sources[0].Metadata[domain.MetaDocID] != "refunds" {
		t.Fatalf("unexpected source %+v", ans.Sources[0])
	}
}

type promptRecorder struct{ last string }

func (g *promptRecorder) Generate(_ context.Context, prompt string) (string, error) {
	g.last = prompt
	return "I don't know.", nil
}

func TestAskEmptyIndex(t *testing.T) {
	gen := &promptRecorder{}
	h := newTestServer(t, app.Providers{Generator: gen}).handler()
	rec := do(t, h, "POST", "/api/ask", `{"question":"anything"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var ans rag.Answer
	_ = json.NewDecoder(rec.Body).Decode(&ans)
	if len(ans.Sources) != 0 || ans.Sources == nil {
		t.Fatalf("expected empty sources, got %+v", ans.Sources)
	}
	if !strings.Contains(gen.last, "Context:\n"+rag.NoContextMessage) {
		t.Fatalf("prompt should carry the no-context marker:\n%s", gen.last)
	}
}

func TestAskErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		p    app.Providers
		body string
		want int
	}{
		{"invalid json", app.Providers{}, `{`, http.StatusBadRequest},
		{"empty question", app.Providers{}, `{"question":"  "}`, http.StatusBadRequest},
		{"negative k", app.Providers{}, `{"question":"refund","k":-1}`, http.StatusBadRequest},
		{"embedding down", app.Providers{Embedder: topicEmbedder{err: domain.EmbeddingFailure(errors.New("timeout"))}}, `{"question":"refund"}`, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, tt.p).handler()
			if rec := do(t, h, "POST", "/api/ask", tt.body); rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.InvalidArg("k", 0), http.StatusBadRequest},
		{domain.InvalidConfig("chunk_size", 0), http.StatusBadRequest},
		{&domain.DimensionError{Expected: 3, Got: 2}, http.StatusUnprocessableEntity},
		{domain.EmbeddingFailure(errors.New("x")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestAskDegradedCountsComposerError(t *testing.T) {
	s := newTestServer(t, app.Providers{Generator: stubGenerator{err: errors.New("quota")}})
	h := s.handler()
	seed(t, h)

	rec := do(t, h, "POST", "/api/ask", `{"question":"refund"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var ans rag.Answer
	_ = json.NewDecoder(rec.Body).Decode(&ans)
	if !ans.Degraded || !strings.HasPrefix(ans.Answer, rag.ErrorPrefix) {
		t.Fatalf("expected degraded answer, got %+v", ans)
	}
	if s.m.ComposerErrors.Value() != 1 {
		t.Fatalf("composer errors = %d", s.m.ComposerErrors.Value())
	}
}

func TestIngestReportsFailures(t *testing.T) {
	s := newTestServer(t, app.Providers{})
	h := s.handler()

	rec := do(t, h, "POST", "/api/documents", `{"documents":[{"id":"ok","content":"Warranty lasts a year."},{"id":"","content":"no id"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var report ingest.Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Ingested != 1 || len(report.Failures) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if s.m.DocsIngested.Value() != 1 || s.m.IngestFailures.Value() != 1 || s.m.IndexChunks.Value() != 1 {
		t.Fatal("ingest metrics not recorded")
	}

	if rec := do(t, h, "POST", "/api/documents", `{"documents":[]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty batch: expected 400, got %d", rec.Code)
	}
}

func TestDeleteAndStats(t *testing.T) {
	h := newTestServer(t, app.Providers{}).handler()
	seed(t, h)

	rec := do(t, h, "GET", "/api/index/stats", "")
	var stats StatsResponse
	_ = json.NewDecoder(rec.Body).Decode(&stats)
	if stats.Chunks != 2 || stats.Backend != config.BackendMemory {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if rec := do(t, h, "DELETE", "/api/documents/shipping", ""); rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}
	if rec := do(t, h, "DELETE", "/api/documents/shipping", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rec.Code)
	}

	rec = do(t, h, "GET", "/api/index/stats", "")
	_ = json.NewDecoder(rec.Body).Decode(&stats)
	if stats.Chunks != 1 {
		t.Fatalf("expected 1 chunk after delete, got %d", stats.Chunks)
	}
}

func TestTestEndpoint(t *testing.T) {
	h := newTestServer(t, app.Providers{}).handler()
	rec := do(t, h, "POST", "/test", `{"message":"/help"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp TestResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.UserMessage != "/help" || !strings.Contains(resp.BotResponse, "/clear") || resp.Timestamp != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestMessagesEndpoint(t *testing.T) {
	s := newTestServer(t, app.Providers{})
	h := s.handler()
	seed(t, h)

	rec := do(t, h, "POST", "/api/messages", `{"type":"message","text":"refund policy?","from":{"id":"u42"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var act Activity
	if err := json.NewDecoder(rec.Body).Decode(&act); err != nil {
		t.Fatal(err)
	}
	if act.Type != "message" || act.Text != "Refunds take 5 days." {
		t.Fatalf("unexpected reply %+v", act)
	}
	if s.app.Sessions.Len("u42") != 2 {
		t.Fatalf("expected exchange recorded, got %d messages", s.app.Sessions.Len("u42"))
	}

	rec = do(t, h, "POST", "/api/messages", `{"type":"conversationUpdate"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "acknowledged") {
		t.Fatalf("non-message activity: %d %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, app.Providers{}).handler()
	seed(t, h)
	do(t, h, "POST", "/api/ask", `{"question":"refund"}`)

	rec := do(t, h, "GET", "/metrics", "")
	body := rec.Body.String()
	for _, want := range []string{"rag_documents_ingested_total 2", "rag_queries_total 1", "rag_query_duration_seconds_count 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in metrics output", want)
		}
	}
}

func TestThrottle(t *testing.T) {
	s := newTestServer(t, app.Providers{})
	s.app.Config.Server.RateLimit = 0.001
	h := s.handler()
	if rec := do(t, h, "GET", "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("first: %d", rec.Code)
	}
	if rec := do(t, h, "GET", "/health", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second: expected 429, got %d", rec.Code)
	}
}

func TestNATSAskAndIngest(t *testing.T) {
	ns, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	ns.Start()
	if !ns.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
	})

	s := newTestServer(t, app.Providers{})
	if err := s.startNATS(nc); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	doc := domain.Document{ID: "refunds", Content: "Refund requests are processed within 5 days."}
	if err := natsutil.Publish(ctx, nc, ingest.IngestSubject, doc); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for s.m.DocsIngested.Value() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.m.DocsIngested.Value() != 1 {
		t.Fatal("document not ingested over NATS")
	}

	ans, err := natsutil.Call[AskRequest, *rag.Answer](ctx, nc, AskSubject, AskRequest{Question: "refund"})
	if err != nil {
		t.Fatal(err)
	}
	if ans == nil || ans.Answer != "Refunds take 5 days." {
		t.Fatalf("unexpected answer %+v", ans)
	}

	_, err = natsutil.Call[AskRequest, *rag.Answer](ctx, nc, AskSubject, AskRequest{Question: ""})
	if !errors.Is(err, natsutil.ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
}

