package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"asset-studio/internal/domain"
	"asset-studio/internal/domain/model"
	"asset-studio/internal/infra/redis"
)

// submitRequest is the JSON payload for creating a job. A transform job
// names the source job whose result it re-renders.
type submitRequest struct {
	Kind        string `json:"kind"`
	Prompt      string `json:"prompt,omitempty"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Seed        string `json:"seed,omitempty"`
	SourceJobID string `json:"source_job_id,omitempty"`
	Direction   string `json:"direction,omitempty"`
}

type batchRequest struct {
	Count int `json:"count"`
	submitRequest
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		writeError(w, http.StatusNotFound, "authentication is not configured")
		return
	}
	var req struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.dashboardKey == "" || req.Key != s.dashboardKey {
		writeError(w, http.StatusForbidden, "invalid dashboard key")
		return
	}
	token, err := s.auth.Mint(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not mint session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		writeError(w, http.StatusNotFound, "authentication is not configured")
		return
	}
	s.auth.Clear(w)
	if s.limiter != nil {
		if err := s.limiter.Reset(r.Context(), redis.SubmitKey(r.RemoteAddr)); err != nil {
			s.log.Warn().Err(err).Msg("could not reset submit window")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	params, ok := s.toParams(w, req)
	if !ok {
		return
	}
	job, err := s.sched.Submit(params)
	if err != nil {
		s.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Count == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"jobs": []*model.Job{}})
		return
	}
	params, ok := s.toParams(w, req.submitRequest)
	if !ok {
		return
	}
	jobs, err := s.sched.SubmitBatch(req.Count, params)
	if err != nil {
		s.writeSchedulerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"batch_id": jobs[0].BatchID,
		"jobs":     jobs,
	})
}

// toParams converts the wire request, resolving a transform's source job to
// its result. Unresolvable sources are a submission error (422), same as any
// other malformed parameter.
func (s *Server) toParams(w http.ResponseWriter, req submitRequest) (model.JobParams, bool) {
	params := model.JobParams{
		Kind:      model.JobKind(req.Kind),
		Prompt:    req.Prompt,
		Width:     req.Width,
		Height:    req.Height,
		Seed:      req.Seed,
		Direction: model.Direction(req.Direction),
	}
	if params.Kind == model.JobKindTransform {
		src, ok := s.sched.Store().Job(req.SourceJobID)
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, "source_job_id does not name a known job")
			return params, false
		}
		if src.Result == nil {
			writeError(w, http.StatusUnprocessableEntity, "source job has no result to transform")
			return params, false
		}
		params.Source = src.Result
	}
	return params, true
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	st := s.sched.Store()
	if q := r.URL.Query().Get("status"); q != "" {
		status := model.JobStatus(q)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status filter")
			return
		}
		jobs := st.JobsByStatus(status)
		if jobs == nil {
			jobs = []*model.Job{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
		return
	}
	snap := st.Snapshot()
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := s.sched.Store().Job(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sched.Retry(id); err != nil {
		s.writeSchedulerError(w, err)
		return
	}
	job, _ := s.sched.Store().Job(id)
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleRemoveJob(w http.ResponseWriter, r *http.Request) {
	s.sched.Remove(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearAll(w http.ResponseWriter, _ *http.Request) {
	s.sched.ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Metrics())
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Store().Stats())
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{
		"max_concurrent_jobs": s.sched.Store().MaxConcurrent(),
	})
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MaxConcurrentJobs int `json:"max_concurrent_jobs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.sched.Store().SetMaxConcurrent(req.MaxConcurrentJobs); err != nil {
		s.writeSchedulerError(w, err)
		return
	}
	// A raised bound frees slots immediately, not on the next submission.
	s.sched.ProcessQueue()
	writeJSON(w, http.StatusOK, map[string]int{
		"max_concurrent_jobs": s.sched.Store().MaxConcurrent(),
	})
}

func (s *Server) writeSchedulerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrJobNotTerminal), errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrSchedulerClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
