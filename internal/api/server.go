package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Terasay/viau-sub000/internal/config"
	"github.com/Terasay/viau-sub000/internal/metrics"
	"github.com/Terasay/viau-sub000/internal/research"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type Server struct {
	cfg      config.APIConfig
	log      *slog.Logger
	research *research.Service
	metrics  *metrics.Collector
	mux      *chi.Mux

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(cfg config.APIConfig, logger *slog.Logger, svc *research.Service, collector *metrics.Collector) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.New("viau")
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		research: svc,
		metrics:  collector,
		mux:      chi.NewRouter(),
		limiters: make(map[string]*rate.Limiter),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(s.privilegeMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/categories", s.handleCategories)
		r.Post("/categories/{category}/preview", s.handlePreview)
		r.Get("/technologies/{tech_id}", s.handleTechnology)

		r.With(s.adminOnly).Post("/nations", s.handleCreateNation)
		r.Route("/nations/{nation_id}", func(r chi.Router) {
			r.Get("/", s.handleNation)
			r.With(s.adminOnly).Post("/points", s.handleGrantPoints)
			r.Get("/tree/{category}", s.handleTree)
			r.Get("/progress", s.handleProgress)
			r.With(s.researchLimit).Post("/research", s.handleResearch)
		})
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": s.research.ListCategories()})
}

func (s *Server) handleTechnology(w http.ResponseWriter, r *http.Request) {
	tech, err := s.research.Technology(chi.URLParam(r, "tech_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tech)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	reveal := queryBool(r, "reveal") && isPrivileged(r.Context())
	category := chi.URLParam(r, "category")
	tree, err := s.research.GetTechTree(r.Context(), research.TreeInput{
		CategoryID:   category,
		NationID:     chi.URLParam(r, "nation_id"),
		RevealHidden: reveal,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.metrics.TreeRequests.WithLabelValues(category, strconv.FormatBool(reveal)).Inc()
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Researched []string `json:"researched" validate:"dive,required"`
		Reveal     bool     `json:"reveal"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Researched == nil {
		in.Researched = []string{}
	}
	reveal := in.Reveal && isPrivileged(r.Context())
	category := chi.URLParam(r, "category")
	tree, err := s.research.GetTechTree(r.Context(), research.TreeInput{
		CategoryID:   category,
		Researched:   in.Researched,
		RevealHidden: reveal,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.metrics.TreeRequests.WithLabelValues(category, strconv.FormatBool(reveal)).Inc()
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TechID string `json:"tech_id" validate:"required,max=128"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	privileged := isPrivileged(r.Context())
	out, err := s.research.ResearchNode(r.Context(), research.ResearchInput{
		NationID:   chi.URLParam(r, "nation_id"),
		TechID:     in.TechID,
		Privileged: privileged,
	})
	s.metrics.ResearchCommits.WithLabelValues(commitOutcome(err), strconv.FormatBool(privileged)).Inc()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.metrics.PointsSpent.Add(float64(out.CostSpent))
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	records, err := s.research.GetProgress(r.Context(), chi.URLParam(r, "nation_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"progress": records})
}

func (s *Server) handleNation(w http.ResponseWriter, r *http.Request) {
	n, err := s.research.Nation(r.Context(), chi.URLParam(r, "nation_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleCreateNation(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name           string `json:"name" validate:"required,max=64"`
		ResearchPoints int64  `json:"research_points" validate:"gte=0"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	n, err := s.research.CreateNation(r.Context(), in.Name, in.ResearchPoints)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) handleGrantPoints(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Amount int64 `json:"amount" validate:"gt=0"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	balance, err := s.research.GrantPoints(r.Context(), chi.URLParam(r, "nation_id"), in.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"research_points": balance})
}

func commitOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, research.ErrAlreadyResearched):
		return "already_researched"
	case errors.Is(err, research.ErrInsufficientResearchPoints):
		return "insufficient_points"
	case errors.Is(err, research.ErrUnknownTechnology):
		return "unknown_technology"
	case errors.Is(err, research.ErrNationNotFound):
		return "nation_not_found"
	case errors.Is(err, research.ErrStorageConflict):
		return "conflict"
	default:
		return "error"
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	var insufficient *research.InsufficientPointsError
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":     insufficient.Error(),
			"kind":      "insufficient_research_points",
			"required":  insufficient.Required,
			"available": insufficient.Available,
		})
	case errors.Is(err, research.ErrCategoryNotFound):
		writeKindError(w, http.StatusNotFound, "category_not_found", err)
	case errors.Is(err, research.ErrNationNotFound):
		writeKindError(w, http.StatusNotFound, "nation_not_found", err)
	case errors.Is(err, research.ErrUnknownTechnology):
		writeKindError(w, http.StatusNotFound, "unknown_technology", err)
	case errors.Is(err, research.ErrAlreadyResearched):
		writeKindError(w, http.StatusConflict, "already_researched", err)
	case errors.Is(err, research.ErrStorageConflict):
		writeKindError(w, http.StatusConflict, "storage_conflict", err)
	case errors.Is(err, research.ErrInvalidAmount), errors.Is(err, research.ErrInvalidName):
		writeKindError(w, http.StatusBadRequest, "invalid_request", err)
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return validate.Struct(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func writeKindError(w http.ResponseWriter, status int, kind string, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error(), "kind": kind})
}

func queryBool(r *http.Request, key string) bool {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
