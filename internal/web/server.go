package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"study-rag/internal/config"
	"study-rag/internal/metrics"
)

// BlankQuestionWarning is shown instead of calling the model for blank input
const BlankQuestionWarning = "Please enter a question first."

//go:embed templates/*.html
var templateFS embed.FS

// Answerer produces an explanation for one question
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

type page struct {
	Title    string
	Question string
	Answer   template.HTML
	Answered bool
	Error    string
	Warning  string
}

type answerRequest struct {
	Question string `json:"question"`
}

type answerResponse struct {
	Answer string `json:"answer,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Server serves the question form, the JSON API and metrics
type Server struct {
	cfg      config.ServerConfig
	answerer Answerer
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	tmpl     *template.Template
	md       goldmark.Markdown
}

func NewServer(cfg config.ServerConfig, answerer Answerer, m *metrics.Metrics, gatherer prometheus.Gatherer) *Server {
	return &Server{
		cfg:      cfg,
		answerer: answerer,
		metrics:  m,
		gatherer: gatherer,
		tmpl:     template.Must(template.ParseFS(templateFS, "templates/index.html")),
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", s.instrument("/", http.HandlerFunc(s.handleIndex)))
	mux.Handle("POST /{$}", s.instrument("/", http.HandlerFunc(s.handleAsk)))
	mux.Handle("POST /api/answer", s.instrument("/api/answer", http.HandlerFunc(s.handleAPIAnswer)))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Run serves until ctx is canceled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// answers can take a while
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("Serving study assistant")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info().Msg("Shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, page{Title: s.cfg.Title})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	question := r.FormValue("question")
	p := page{Title: s.cfg.Title, Question: question}

	if strings.TrimSpace(question) == "" {
		s.metrics.ObserveBlank()
		p.Warning = BlankQuestionWarning
		s.render(w, http.StatusOK, p)
		return
	}

	answer, err := s.answerer.Answer(r.Context(), question)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID(r)).Msg("Failed to answer question")
		p.Error = err.Error()
		s.render(w, http.StatusOK, p)
		return
	}

	rendered, err := s.markdown(answer)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to render markdown, showing plain text")
		rendered = template.HTML(template.HTMLEscapeString(answer))
	}
	p.Answer = rendered
	p.Answered = true
	s.render(w, http.StatusOK, p)
}

func (s *Server) handleAPIAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, answerResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.metrics.ObserveBlank()
		writeJSON(w, http.StatusBadRequest, answerResponse{Error: BlankQuestionWarning})
		return
	}

	answer, err := s.answerer.Answer(r.Context(), req.Question)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID(r)).Msg("Failed to answer question")
		writeJSON(w, http.StatusBadGateway, answerResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, answerResponse{Answer: answer})
}

func (s *Server) markdown(text string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(text), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func (s *Server) render(w http.ResponseWriter, status int, p page) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, "index.html", p); err != nil {
		log.Error().Err(err).Msg("Failed to render page")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}
