package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tabellenwerk/standings/internal/core/domain"
	"github.com/tabellenwerk/standings/internal/standings/faults"
	"github.com/tabellenwerk/standings/internal/standings/queue"
	"github.com/tabellenwerk/standings/internal/standings/snapshot"
)

// Server exposes health probes, Prometheus metrics and the operator
// endpoints the CLI talks to.
type Server struct {
	monitor   *Monitor
	manager   *queue.Manager
	snapshots *snapshot.Service
	server    *http.Server
}

func NewServer(monitor *Monitor, manager *queue.Manager, snapshots *snapshot.Service, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		monitor:   monitor,
		manager:   manager,
		snapshots: snapshots,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("GET /queue/status", s.handleQueueStatus)
	mux.HandleFunc("GET /queue/jobs/{id}", s.handleJob)
	mux.HandleFunc("GET /queue/history", s.handleHistory)
	mux.HandleFunc("POST /queue/enqueue", s.handleEnqueue)
	mux.HandleFunc("POST /queue/jobs/{id}/retry", s.handleRetry)
	mux.HandleFunc("GET /queue/deadletter", s.handleDeadLetter)
	mux.HandleFunc("POST /queue/deadletter/{id}/reprocess", s.handleReprocess)
	mux.HandleFunc("POST /queue/deadletter/clear", s.handleClearDeadLetter)

	mux.HandleFunc("GET /snapshots", s.handleSnapshotList)
	mux.HandleFunc("POST /snapshots", s.handleSnapshotCreate)
	mux.HandleFunc("POST /snapshots/{id}/restore", s.handleSnapshotRestore)

	return s
}

func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if report.Status == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]string{"status": string(report.Status)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Check(r.Context()))
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.GetQueueStatus())
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.manager.JobByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	jobs, err := s.manager.GetJobHistory(r.Context(), r.URL.Query().Get("league"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

type enqueueRequest struct {
	LeagueID    string `json:"league_id"`
	SeasonID    string `json:"season_id"`
	Priority    int    `json:"priority"`
	Trigger     string `json:"trigger"`
	Description string `json:"description"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	id, err := s.manager.Enqueue(r.Context(), req.LeagueID, req.SeasonID,
		domain.JobPriority(req.Priority), req.Trigger, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.RetryFailedJob(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "requeued"})
}

func (s *Server) handleDeadLetter(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.GetDeadLetterJobs())
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.ReprocessDeadLetterJob(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "requeued"})
}

func (s *Server) handleClearDeadLetter(w http.ResponseWriter, r *http.Request) {
	count := s.manager.ClearDeadLetterQueue(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"cleared": count})
}

func (s *Server) handleSnapshotList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	snaps, err := s.snapshots.List(r.Context(), q.Get("league"), q.Get("season"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

type snapshotRequest struct {
	LeagueID    string `json:"league_id"`
	SeasonID    string `json:"season_id"`
	Description string `json:"description"`
}

func (s *Server) handleSnapshotCreate(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	snap, err := s.snapshots.Create(r.Context(), req.LeagueID, req.SeasonID, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleSnapshotRestore(w http.ResponseWriter, r *http.Request) {
	result, err := s.snapshots.Restore(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var ce *faults.ClassifiedError
	if errors.As(err, &ce) {
		switch ce.Type {
		case faults.TypeValidation, faults.TypeInvalidInput:
			status = http.StatusBadRequest
		case faults.TypeMissingData:
			status = http.StatusNotFound
		case faults.TypeConcurrency:
			status = http.StatusConflict
		case faults.TypeQueueFull, faults.TypeResourceExhausted:
			status = http.StatusTooManyRequests
		case faults.TypeFeatureDisabled, faults.TypeServiceUnavailable:
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
