// Package server exposes scene generation over HTTP. Each scene gets its own
// generation controller, created on first use and kept for the server's life.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"writingway/export"
	"writingway/generator"
	"writingway/models"
	"writingway/store"
)

type Server struct {
	agent    *generator.Agent
	store    *store.Store
	log      *zap.Logger
	ctrlCfg  generator.ControllerConfig
	timeout  time.Duration
	registry *registry
}

// Options tune the server.
type Options struct {
	// HighlightDuration is passed to every scene controller.
	HighlightDuration time.Duration
	// GenerateTimeout bounds a generate or retry request. Zero means no bound.
	GenerateTimeout time.Duration
	Log             *zap.Logger
}

// registry holds one controller per scene.
type registry struct {
	mu    sync.Mutex
	ctrls map[string]*generator.Controller
}

func newRegistry() *registry {
	return &registry{ctrls: make(map[string]*generator.Controller)}
}

func (r *registry) get(id string) (*generator.Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.ctrls[id]
	return c, ok
}

// add stores c unless a controller for id already exists, in which case the
// existing one is returned.
func (r *registry) add(id string, c *generator.Controller) *generator.Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.ctrls[id]; ok {
		return prev
	}
	r.ctrls[id] = c
	return c
}

func (r *registry) closeAll() {
	r.mu.Lock()
	ctrls := make([]*generator.Controller, 0, len(r.ctrls))
	for _, c := range r.ctrls {
		ctrls = append(ctrls, c)
	}
	r.ctrls = make(map[string]*generator.Controller)
	r.mu.Unlock()
	for _, c := range ctrls {
		c.Close()
	}
}

func New(agent *generator.Agent, st *store.Store, opts Options) (*Server, error) {
	if agent == nil {
		return nil, errors.New("generator agent required")
	}
	if st == nil {
		return nil, errors.New("store required")
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		agent:    agent,
		store:    st,
		log:      log,
		timeout:  opts.GenerateTimeout,
		registry: newRegistry(),
	}
	s.ctrlCfg = generator.ControllerConfig{
		HighlightDuration: opts.HighlightDuration,
		Save:              s.saveScene,
		Log:               log,
	}
	return s, nil
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/scenes/{id}", s.handleScene)
	mux.HandleFunc("POST /api/scenes/{id}/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/scenes/{id}/accept", s.handleAccept)
	mux.HandleFunc("POST /api/scenes/{id}/retry", s.handleRetry)
	mux.HandleFunc("POST /api/scenes/{id}/discard", s.handleDiscard)
	mux.HandleFunc("GET /api/projects/{id}/history", s.handleHistory)
	mux.HandleFunc("GET /api/projects/{id}/compendium", s.handleCompendium)
	mux.HandleFunc("GET /api/projects/{id}/export", s.handleExport)
	return logMiddleware(s.log, mux)
}

// Close cancels every open generation.
func (s *Server) Close() {
	s.registry.closeAll()
}

// controller returns the scene's controller, opening it on the scene's
// stored text the first time. An idle controller is refreshed from the store
// so edits saved elsewhere are not overwritten by the next generation.
func (s *Server) controller(ctx context.Context, sceneID string) (*generator.Controller, error) {
	if c, ok := s.registry.get(sceneID); ok {
		if c.State() != generator.StateIdle {
			return c, nil
		}
		text, err := s.storedText(ctx, sceneID)
		if err != nil {
			return nil, err
		}
		if err := c.SetText(text); err != nil && !errors.Is(err, generator.ErrSessionActive) {
			return nil, err
		}
		return c, nil
	}
	sc, err := s.store.Scene(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	text, err := s.storedText(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	c, err := generator.NewController(s.agent, generator.Scope{ProjectID: sc.ProjectID, SceneID: sc.ID}, text, s.ctrlCfg)
	if err != nil {
		return nil, err
	}
	if got := s.registry.add(sceneID, c); got != c {
		c.Close()
		return got, nil
	}
	return c, nil
}

func (s *Server) storedText(ctx context.Context, sceneID string) (string, error) {
	text, err := s.store.SceneText(ctx, sceneID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	return text, nil
}

func (s *Server) saveScene(ctx context.Context, scope generator.Scope, text string) error {
	_, err := s.store.SaveScene(ctx, scope.SceneID, text)
	return err
}

// --- Handlers ---

type generateReq struct {
	Beat          string                   `json:"beat"`
	Panel         generator.PanelSelection `json:"panel"`
	POVCharacter  string                   `json:"pov_character"`
	POV           string                   `json:"pov"`
	Tense         string                   `json:"tense"`
	ProsePromptID string                   `json:"prose_prompt_id"`
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	c, err := s.controller(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, c.Snapshot())
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req generateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sc, err := s.store.Scene(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := s.controller(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	opts, err := s.options(r.Context(), sc, req)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := s.generateContext(r.Context())
	defer cancel()
	if err := c.GenerateWith(ctx, generator.Request{Beat: req.Beat, Panel: req.Panel, Options: opts}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, c.Snapshot())
}

// options fills unset prose options from the scene and project.
func (s *Server) options(ctx context.Context, sc models.Scene, req generateReq) (generator.Options, error) {
	opts := generator.Options{
		POVCharacter:  firstNonEmpty(req.POVCharacter, sc.POVCharacter),
		POV:           firstNonEmpty(req.POV, sc.POV),
		Tense:         firstNonEmpty(req.Tense, sc.Tense),
		ProsePromptID: req.ProsePromptID,
	}
	if opts.ProsePromptID == "" {
		p, err := s.store.Project(ctx, sc.ProjectID)
		if err != nil {
			return opts, err
		}
		opts.ProsePromptID = p.SelectedProsePromptID
	}
	return opts, nil
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, (*generator.Controller).Accept)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, func(c *generator.Controller, ctx context.Context) error {
		ctx, cancel := s.generateContext(ctx)
		defer cancel()
		return c.Retry(ctx)
	})
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, (*generator.Controller).Discard)
}

func (s *Server) decide(w http.ResponseWriter, r *http.Request, fn func(*generator.Controller, context.Context) error) {
	c, err := s.controller(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := fn(c, r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, c.Snapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.Project(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	history, err := s.store.PromptHistory(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if history == nil {
		history = []models.PromptHistory{}
	}
	writeJSON(w, history)
}

func (s *Server) handleCompendium(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.Project(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	entries, err := s.store.SearchCompendium(r.Context(), id, r.URL.Query().Get("q"), 0)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []models.CompendiumEntry{}
	}
	writeJSON(w, entries)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := export.Manuscript(r.Context(), s.store, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(doc.Page()))
}

// --- Helpers ---

func (s *Server) generateContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(parent, s.timeout)
	}
	return context.WithCancel(parent)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, generator.ErrEmptyBeat):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, generator.ErrSessionActive),
		errors.Is(err, generator.ErrNoDecision),
		errors.Is(err, generator.ErrCancelled):
		return http.StatusConflict
	case errors.Is(err, generator.ErrBackendNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, generator.ErrStreamFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logMiddleware(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}
