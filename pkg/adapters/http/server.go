package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/thicket"
	"github.com/aretw0/thicket/internal/logging"
	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
)

// Snapshotter exposes the live state of the trees an authority holds.
// *graph.Graph satisfies it.
type Snapshotter interface {
	Snapshot(treeID string) (*domain.TreeSnapshot, error)
}

// SubmitResponse is the body answering a submission.
type SubmitResponse struct {
	Results []ports.Result `json:"results"`
}

// Server exposes an authority over HTTP.
type Server struct {
	Authority ports.Authority
	Streams   *StreamManager

	snapshots Snapshotter
	trees     ports.TreeSource
	validate  *validator.Validate
	handlers  map[string]http.Handler
	origins   []string
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithStreams sets the stream manager feeding /events. Pass the same
// manager to the authority as its broadcaster.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithSnapshots serves live tree state on GET /trees/{treeID}.
func WithSnapshots(snap Snapshotter) Option {
	return func(s *Server) {
		s.snapshots = snap
	}
}

// WithTrees serves stored trees on GET /trees and as a fallback for
// GET /trees/{treeID}.
func WithTrees(src ports.TreeSource) Option {
	return func(s *Server) {
		s.trees = src
	}
}

// WithHandler mounts an extra handler, such as a metrics endpoint.
func WithHandler(pattern string, h http.Handler) Option {
	return func(s *Server) {
		s.handlers[pattern] = h
	}
}

// WithAllowedOrigins restricts CORS to origins. Defaults to any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a server in front of auth.
func NewServer(auth ports.Authority, opts ...Option) *Server {
	s := &Server{
		Authority: auth,
		validate:  newValidator(),
		handlers:  make(map[string]http.Handler),
		origins:   []string{"*"},
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}
	return s
}

// NewHandler creates the HTTP handler for auth.
func NewHandler(auth ports.Authority, opts ...Option) http.Handler {
	return NewServer(auth, opts...).Handler()
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/events", s.SubscribeEvents)
	r.Route("/trees", func(r chi.Router) {
		r.Get("/", s.ListTrees)
		r.Get("/{treeID}", s.GetTree)
		r.Post("/{treeID}/submit", s.Submit)
	})
	for pattern, h := range s.handlers {
		r.Handle(pattern, h)
	}
	return r
}

// Submit handles POST /trees/{treeID}/submit.
func (s *Server) Submit(w http.ResponseWriter, r *http.Request) {
	treeID := chi.URLParam(r, "treeID")

	var body SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("Submit: invalid request body", "tree_id", treeID, "error", err)
		return
	}
	if err := s.validate.Struct(body); err != nil {
		err = describeValidation(err)
		http.Error(w, fmt.Sprintf("Invalid submission: %v", err), http.StatusUnprocessableEntity)
		s.logger.Warn("Submit: invalid submission", "tree_id", treeID, "error", err)
		return
	}

	results, err := s.Authority.Submit(r.Context(), treeID, body.Patches, body.Inverses, body.IsRedo)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, fmt.Sprintf("Submit error: %v", err), status)
		s.logger.Error("Submit failed", "tree_id", treeID, "error", err)
		return
	}

	writeJSON(w, s.logger, SubmitResponse{Results: results})
}

// ListTrees handles GET /trees.
func (s *Server) ListTrees(w http.ResponseWriter, r *http.Request) {
	if s.trees == nil {
		http.Error(w, "No tree store configured", http.StatusNotImplemented)
		return
	}
	ids, err := s.trees.List(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("List error: %v", err), http.StatusInternalServerError)
		s.logger.Error("List trees failed", "error", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, s.logger, map[string][]string{"trees": ids})
}

// GetTree handles GET /trees/{treeID}. Live state wins over stored state.
func (s *Server) GetTree(w http.ResponseWriter, r *http.Request) {
	treeID := chi.URLParam(r, "treeID")

	var (
		snap *domain.TreeSnapshot
		err  = fmt.Errorf("tree %s: %w", treeID, domain.ErrTreeNotFound)
	)
	if s.snapshots != nil {
		snap, err = s.snapshots.Snapshot(treeID)
	}
	if snap == nil && s.trees != nil && errors.Is(err, domain.ErrTreeNotFound) {
		snap, err = s.trees.Load(r.Context(), treeID)
	}
	if err != nil {
		if errors.Is(err, domain.ErrTreeNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Load error: %v", err), http.StatusInternalServerError)
		s.logger.Error("Get tree failed", "tree_id", treeID, "error", err)
		return
	}
	writeJSON(w, s.logger, snap)
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, map[string]string{
		"app":     "thicket-http",
		"version": strings.TrimSpace(thicket.Version),
	})
}

// SubscribeEvents handles GET /events?tree={treeID} as a server-sent event
// stream of accepted patches.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	treeID := r.URL.Query().Get("tree")
	if treeID == "" {
		http.Error(w, "Query parameter tree is required", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(treeID)
	defer cancel()
	s.logger.Info("SSE client subscribed", "tree_id", treeID)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE client disconnected", "tree_id", treeID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: patches\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Response encode failed", "error", err)
	}
}
