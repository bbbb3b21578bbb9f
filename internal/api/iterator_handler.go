package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/sharding-system/pkg/iterator"
	"github.com/sharding-system/pkg/lookupservice"
	"github.com/sharding-system/pkg/models"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// JobStatus is the lifecycle state of a submitted batch iteration job.
type JobStatus string

const (
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
)

// Job tracks one TenantIterator.ProcessAllTenants run submitted over HTTP.
type Job struct {
	ID        string                   `json:"id"`
	Status    JobStatus                `json:"status"`
	Summary   *models.IterationSummary `json:"summary,omitempty"`
	Error     string                   `json:"error,omitempty"`
	StartedAt time.Time                `json:"started_at"`
	EndedAt   *time.Time               `json:"ended_at,omitempty"`
}

// IteratorHandler fronts TenantIterator's batch run as an async HTTP job,
// grounded on the teacher's internal/api/backup_handler.go pattern (submit
// a long-running operation, return a job id, poll for completion) — the
// same shape this spec needs for §4.10's worker-pool-bound tenant sweep.
type IteratorHandler struct {
	it     *iterator.Iterator
	lookup *lookupservice.Service
	logger *zap.Logger

	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewIteratorHandler constructs an IteratorHandler. The only task it
// currently exposes over HTTP is a consistency sweep (re-resolve every
// tenant and surface lookup errors), since TenantIterator's Go API is the
// extension point for arbitrary per-tenant work and an HTTP surface can
// only safely expose pre-baked tasks.
func NewIteratorHandler(it *iterator.Iterator, lookup *lookupservice.Service, logger *zap.Logger) *IteratorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IteratorHandler{it: it, lookup: lookup, logger: logger, jobs: make(map[string]*Job)}
}

type submitIterationRequest struct {
	ShardFilter string `json:"shard_filter"`
	Parallelism int    `json:"parallelism"`
}

// SubmitConsistencySweep handles POST /api/v1/iterate/verify: it kicks off
// a background TenantIterator run that re-resolves every tenant (optionally
// restricted to one shard) and returns the job id immediately.
func (h *IteratorHandler) SubmitConsistencySweep(w http.ResponseWriter, r *http.Request) {
	var req submitIterationRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
			return
		}
	}

	job := &Job{ID: uuid.NewString(), Status: JobRunning, StartedAt: time.Now()}
	h.mu.Lock()
	h.jobs[job.ID] = job
	h.mu.Unlock()

	go h.run(job, req)

	writeJSON(w, http.StatusAccepted, job)
}

func (h *IteratorHandler) run(job *Job, req submitIterationRequest) {
	summary, err := h.it.ProcessAllTenants(context.Background(), func(ctx context.Context, tenantID int64) error {
		_, _, err := h.lookup.FindShardByTenantID(ctx, tenantID)
		return err
	}, iterator.Options{ShardFilter: req.ShardFilter, Parallelism: req.Parallelism})

	now := time.Now()
	h.mu.Lock()
	defer h.mu.Unlock()
	job.EndedAt = &now
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
		h.logger.Error("iterator_handler: consistency sweep failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	job.Status = JobSucceeded
	job.Summary = &summary
}

// JobStatusHandler handles GET /api/v1/iterate/{jobId}.
func (h *IteratorHandler) JobStatusHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["jobId"]

	h.mu.RLock()
	job, ok := h.jobs[id]
	h.mu.RUnlock()
	if !ok {
		writeJSONError(w, http.StatusNotFound, "NOT_FOUND", "unknown job id")
		return
	}
	writeJSON(w, http.StatusOK, job)
}
