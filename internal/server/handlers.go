package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/vecbench/internal/models"
	"github.com/hyperjump/vecbench/internal/results"
	"github.com/hyperjump/vecbench/internal/storage"
	"go.uber.org/zap"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

type runResponse struct {
	*models.ExperimentRun
	Tables []*results.ComparisonTable `json:"tables"`
}

type statusResponse struct {
	Runs            int64 `json:"runs"`
	ResultsBytes    int64 `json:"results_bytes"`
	TruthCacheBytes int64 `json:"truth_cache_bytes"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit", defaultLimit)
	if err != nil || limit <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	limit = min(limit, maxLimit)

	runs, err := s.storage.ListRuns(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*models.ExperimentRun{}
	}
	s.respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, tables, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	if tables == nil {
		tables = []*results.ComparisonTable{}
	}
	s.respondJSON(w, http.StatusOK, runResponse{ExperimentRun: run, Tables: tables})
}

func (s *Server) handleRunCSV(w http.ResponseWriter, r *http.Request) {
	_, tables, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	if len(tables) == 0 {
		s.respondError(w, http.StatusNotFound, "run has no results")
		return
	}
	table := tables[0]
	if name := r.URL.Query().Get("dataset"); name != "" {
		table = nil
		for _, t := range tables {
			if t.Dataset == name {
				table = t
				break
			}
		}
		if table == nil {
			s.respondError(w, http.StatusNotFound, "dataset not found")
			return
		}
	}
	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	if err := results.WriteCSV(w, table); err != nil {
		s.logger.Warn("write csv failed", zap.Error(err))
	}
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete run request", zap.String("id", id))
	if err := s.storage.DeleteRun(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("delete run failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.storage.CountRuns(r.Context())
	if err != nil {
		s.logger.Error("status: count runs failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	usage, err := storage.MeasureUsage(s.dbPath, s.cacheDir)
	if err != nil {
		s.logger.Warn("status: measure usage failed", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, statusResponse{
		Runs:            count,
		ResultsBytes:    usage.ResultsBytes,
		TruthCacheBytes: usage.TruthCacheBytes,
	})
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*models.ExperimentRun, []*results.ComparisonTable, bool) {
	id := chi.URLParam(r, "id")
	run, err := s.storage.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "run not found")
		} else {
			s.logger.Error("get run failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, nil, false
	}
	tables, err := s.storage.GetTables(r.Context(), id)
	if err != nil {
		s.logger.Error("get tables failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return nil, nil, false
	}
	return run, tables, true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
