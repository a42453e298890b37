package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kk32340/SampleMLCode/engine/domain"
	"github.com/kk32340/SampleMLCode/engine/ingest"
	"github.com/kk32340/SampleMLCode/engine/rag"
	"github.com/kk32340/SampleMLCode/pkg/app"
	"github.com/kk32340/SampleMLCode/pkg/metrics"
	"github.com/kk32340/SampleMLCode/pkg/mid"
	"github.com/kk32340/SampleMLCode/pkg/natsutil"
	"github.com/kk32340/SampleMLCode/pkg/resilience"
)

// AskSubject is the NATS request/reply subject answered like POST /api/ask.
const AskSubject = "rag.ask"

const maxBodyBytes = 10 << 20

type server struct {
	app *app.App
	reg *metrics.Registry
	m   *metrics.RAG
	log *slog.Logger
	now func() time.Time
}

func newServer(a *app.App, reg *metrics.Registry, logger *slog.Logger) *server {
	return &server{app: a, reg: reg, m: metrics.NewRAG(reg), log: logger, now: time.Now}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/ask", s.handleAsk)
	mux.HandleFunc("POST /api/messages", s.handleMessages)
	mux.HandleFunc("POST /test", s.handleTest)
	mux.HandleFunc("POST /api/documents", s.handleIngest)
	mux.HandleFunc("DELETE /api/documents/{id}", s.handleDelete)
	mux.HandleFunc("GET /api/index/stats", s.handleStats)
	mux.Handle("GET /metrics", s.reg.Handler())
	return mux
}

func (s *server) handler() http.Handler {
	var lim *resilience.KeyedLimiter
	if rate := s.app.Config.Server.RateLimit; rate > 0 {
		burst := int(rate)
		if burst < 1 {
			burst = 1
		}
		lim = resilience.NewKeyedLimiter(resilience.LimiterOpts{Rate: rate, Burst: burst}, 10*time.Minute)
	}
	return mid.Chain(s.routes(),
		mid.Recover(s.log),
		mid.RequestID(),
		mid.Logger(s.log),
		mid.CORS(s.app.Config.Server.CORSOrigin),
		mid.Metrics(s.reg),
		mid.Throttle(lim),
		mid.OTel("rag-api"),
	)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps pipeline error kinds onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDimensionMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrEmbeddingUnavailable), errors.Is(err, domain.ErrGenerationUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "err", err, "request_id", mid.GetRequestID(r.Context()))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// refreshIndexGauge updates the index size gauge. Errors are ignored; the
// gauge keeps its previous value.
func (s *server) refreshIndexGauge(ctx context.Context) {
	if n, err := s.app.Index.Count(ctx); err == nil {
		s.m.IndexChunks.Set(int64(n))
	}
}

// --- Handlers ---

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"model":     s.app.Providers.Model,
		"timestamp": s.now().Format(time.RFC3339),
	})
}

// AskRequest is the JSON body for POST /api/ask. K defaults to the
// configured top-k when zero.
type AskRequest struct {
	Question string `json:"question"`
	K        int    `json:"k,omitempty"`
}

func (s *server) ask(ctx context.Context, req AskRequest) (*rag.Answer, error) {
	start := time.Now()
	ans, err := s.app.RAG.AskWith(ctx, rag.AskRequest{Query: req.Question, K: req.K})
	s.m.RecordQuery(start, err, err == nil && ans.Degraded)
	return ans, err
}

func (s *server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}
	ans, err := s.ask(r.Context(), req)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

// Activity is the subset of a bot-framework activity the server reads and
// writes.
type Activity struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	From      *ChannelAccount `json:"from,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// ChannelAccount identifies an activity sender.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

func (s *server) handleMessages(w http.ResponseWriter, r *http.Request) {
	var act Activity
	if !decode(w, r, &act) {
		return
	}
	text := strings.TrimSpace(act.Text)
	if act.Type != "message" || text == "" {
		s.log.Debug("activity ignored", "type", act.Type)
		writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
		return
	}
	user := "unknown"
	if act.From != nil && act.From.ID != "" {
		user = act.From.ID
	}
	reply := s.app.Bot.Handle(r.Context(), user, text)
	writeJSON(w, http.StatusOK, Activity{
		Type:      "message",
		Text:      reply,
		From:      &ChannelAccount{ID: "bot", Name: "Digital Agent"},
		Timestamp: s.now().Format(time.RFC3339),
	})
}

// TestRequest is the JSON body for POST /test.
type TestRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// TestResponse is returned by POST /test.
type TestResponse struct {
	UserMessage string `json:"user_message"`
	BotResponse string `json:"bot_response"`
	Timestamp   string `json:"timestamp"`
}

func (s *server) handleTest(w http.ResponseWriter, r *http.Request) {
	var req TestRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Message == "" {
		req.Message = "Hello!"
	}
	if req.UserID == "" {
		req.UserID = "test_user"
	}
	reply := s.app.Bot.Handle(r.Context(), req.UserID, req.Message)
	writeJSON(w, http.StatusOK, TestResponse{
		UserMessage: req.Message,
		BotResponse: reply,
		Timestamp:   s.now().Format(time.RFC3339),
	})
}

// IngestRequest is the JSON body for POST /api/documents.
type IngestRequest struct {
	Documents []domain.Document `json:"documents"`
}

func (s *server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Documents) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "documents is required"})
		return
	}
	report := s.app.Ingester.Ingest(r.Context(), req.Documents)
	s.m.RecordIngest(report.Ingested, report.Replaced, report.Chunks, len(report.Failures))
	s.refreshIndexGauge(r.Context())
	writeJSON(w, http.StatusOK, report)
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, err := s.app.Index.DeleteByDocument(r.Context(), id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if n == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "document not found"})
		return
	}
	s.refreshIndexGauge(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"doc_id": id, "deleted": n})
}

// StatsResponse is returned by GET /api/index/stats.
type StatsResponse struct {
	Backend  string `json:"backend"`
	Chunks   int    `json:"chunks"`
	Sessions int    `json:"sessions"`
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	n, err := s.app.Index.Count(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.m.IndexChunks.Set(int64(n))
	writeJSON(w, http.StatusOK, StatsResponse{
		Backend:  s.app.Config.Index.Backend,
		Chunks:   n,
		Sessions: s.app.Sessions.Sessions(),
	})
}

// --- NATS ---

// startNATS subscribes the ingest consumer and the rag.ask responder.
func (s *server) startNATS(nc *nats.Conn) error {
	_, err := ingest.StartConsumer(nc, s.app.IngestDeps(), ingest.ConsumerHooks{
		OnStored: func(st ingest.Stored) {
			s.m.RecordIngest(1, st.Replaced, st.Chunks, 0)
		},
		OnFailed: func(docID string, err error, dlq bool) {
			if dlq {
				s.m.IngestFailures.Inc()
			}
		},
	})
	if err != nil {
		return err
	}
	_, err = natsutil.Serve(nc, AskSubject, s.ask)
	return err
}
