package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/pingstatus/internal/config"
	"github.com/hamed0406/pingstatus/internal/domain"
	apimw "github.com/hamed0406/pingstatus/internal/httpapi/middleware"
	"github.com/hamed0406/pingstatus/internal/repo"
	"github.com/hamed0406/pingstatus/internal/scheduler"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 1000
)

// Engine is the part of the schedule engine the API drives.
type Engine interface {
	Status(ctx context.Context) ([]scheduler.JobStatus, error)
	RunNow(ctx context.Context, name string) error
}

type Server struct {
	Logger   *zap.Logger
	Jobs     repo.JobStore
	Results  repo.ResultStore
	Engine   Engine
	Settings *config.Provider
}

func NewServer(l *zap.Logger, jobs repo.JobStore, rs repo.ResultStore, eng Engine, settings *config.Provider) *Server {
	return &Server{Logger: l, Jobs: jobs, Results: rs, Engine: eng, Settings: settings}
}

// Router builds the control API. metrics may be nil.
func (s *Server) Router(keys apimw.Keys, metrics http.Handler, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(pubRPM, pubBurst), apimw.RequireAny(keys))
			r.Get("/jobs", s.handleListJobs)
			r.Get("/jobs/{name}", s.handleGetJob)
			r.Get("/jobs/{name}/results", s.handleJobResults)
			r.Get("/results/latest", s.handleLatest)
			r.Get("/config", s.handleGetConfig)
		})
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(admRPM, admBurst), apimw.RequireAdmin(keys))
			r.Put("/jobs/{name}", s.handleUpsertJob)
			r.Delete("/jobs/{name}", s.handleDeleteJob)
			r.Post("/jobs/{name}/rename", s.handleRenameJob)
			r.Post("/jobs/{name}/run", s.handleRunJob)
			r.Put("/config", s.handleSetConfig)
			r.Post("/events", s.handleEvent)
		})
	})

	return r
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps store and engine errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Error(), Field: ve.Field})
	case errors.Is(err, repo.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, repo.ErrExists):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		s.Logger.Error("api_error", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	st, err := s.Engine.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.Jobs.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

type jobPayload struct {
	Target          string  `json:"target"`
	IntervalSec     float64 `json:"interval_sec"`
	Count           int     `json:"count"`
	ScheduleMinutes int     `json:"schedule_minutes"`
}

func (s *Server) handleUpsertJob(w http.ResponseWriter, r *http.Request) {
	var p jobPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad payload"})
		return
	}
	j := domain.Job{
		Name:            chi.URLParam(r, "name"),
		Target:          p.Target,
		IntervalSec:     p.IntervalSec,
		Count:           p.Count,
		ScheduleMinutes: p.ScheduleMinutes,
	}
	s.Settings.ApplyDefaults(&j)
	if err := s.Jobs.Upsert(r.Context(), j); err != nil {
		s.writeError(w, r, err)
		return
	}
	stored, err := s.Jobs.Get(r.Context(), j.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.Info("job_upserted",
		zap.String("job", stored.Name),
		zap.String("target", stored.Target),
		zap.Float64("interval_sec", stored.IntervalSec),
		zap.Int("count", stored.Count),
		zap.Int("schedule_minutes", stored.ScheduleMinutes),
	)
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.Jobs.Delete(r.Context(), name); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.Info("job_deleted", zap.String("job", name))
	w.WriteHeader(http.StatusNoContent)
}

type renamePayload struct {
	NewName string `json:"new_name"`
}

func (s *Server) handleRenameJob(w http.ResponseWriter, r *http.Request) {
	var p renamePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad payload"})
		return
	}
	old := chi.URLParam(r, "name")
	if err := s.Jobs.Rename(r.Context(), old, p.NewName); err != nil {
		s.writeError(w, r, err)
		return
	}
	j, err := s.Jobs.Get(r.Context(), p.NewName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.Info("job_renamed", zap.String("from", old), zap.String("to", p.NewName))
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.Engine.RunNow(r.Context(), name); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job": name, "status": "started"})
}

func (s *Server) handleJobResults(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	recs, err := s.Results.History(r.Context(), chi.URLParam(r, "name"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	recs, err := s.Results.Latest(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

type configView struct {
	Defaults config.Defaults `json:"defaults"`
	AdminID  int64           `json:"admin_id"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configView{Defaults: s.Settings.Defaults(), AdminID: s.Settings.AdminID()})
}

// handleSetConfig is the config-change event: new defaults apply to jobs
// created or updated afterwards.
func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	d := s.Settings.Defaults()
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad payload"})
		return
	}
	if err := s.Settings.SetDefaults(d); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.Info("config_defaults_changed",
		zap.Float64("interval_sec", d.IntervalSec),
		zap.Int("count", d.Count),
	)
	writeJSON(w, http.StatusOK, configView{Defaults: d, AdminID: s.Settings.AdminID()})
}
