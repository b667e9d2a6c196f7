package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"genstudio/internal/dispatch"
	"genstudio/internal/domain"
	"genstudio/internal/middleware"
)

const maxCreateBody = 64 << 10

type createJobRequest struct {
	Kind           domain.JobKind   `json:"kind"`
	Prompt         string           `json:"prompt"`
	InputAssetRefs []string         `json:"input_asset_refs"`
	TemplateID     string           `json:"template_id"`
	Params         domain.JobParams `json:"params"`
}

type createJobResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Cost    int64  `json:"cost"`
	Balance *int64 `json:"balance,omitempty"`
}

type jobDTO struct {
	ID             string           `json:"id"`
	Kind           domain.JobKind   `json:"kind"`
	Status         domain.JobStatus `json:"status"`
	Prompt         string           `json:"prompt"`
	InputAssetRefs []string         `json:"input_asset_refs"`
	TemplateID     string           `json:"template_id,omitempty"`
	Params         domain.JobParams `json:"params"`
	Cost           int64            `json:"cost"`
	Refunded       bool             `json:"refunded"`
	ResultAssetRef string           `json:"result_asset_ref,omitempty"`
	ResultURL      string           `json:"result_url,omitempty"`
	Error          *jobErrorDTO     `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

type jobErrorDTO struct {
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

func toJobDTO(job *domain.Job) jobDTO {
	dto := jobDTO{
		ID:             job.ID,
		Kind:           job.Kind,
		Status:         job.Status,
		Prompt:         job.Prompt,
		InputAssetRefs: job.InputAssetRefs,
		TemplateID:     job.TemplateID,
		Params:         job.Params,
		Cost:           job.DebitedAmount,
		Refunded:       job.Refunded,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
	}
	if dto.InputAssetRefs == nil {
		dto.InputAssetRefs = []string{}
	}
	switch job.Status {
	case domain.JobStatusDone:
		dto.ResultAssetRef = job.ResultAssetRef
		dto.ResultURL = job.ResultURL
	case domain.JobStatusError:
		dto.Error = &jobErrorDTO{Message: job.ErrorMessage, Recoverable: job.Recoverable}
	}
	return dto
}

func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, r, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	var req createJobRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCreateBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		a.error(w, r, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Kind = domain.JobKind(strings.ToLower(strings.TrimSpace(string(req.Kind))))

	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	payloadHash := hashPayload(req)
	if idemKey != "" {
		if entry, ok := a.idempotency.Get(ownerID, idemKey); ok {
			if entry.PayloadHash != payloadHash {
				a.error(w, r, http.StatusConflict, "idempotency_conflict", "idempotency key reused with a different payload")
				return
			}
			a.json(w, http.StatusAccepted, createJobResponse{JobID: entry.JobID, Status: string(domain.JobStatusQueued), Cost: entry.Cost})
			return
		}
	}

	cost, err := a.Pricing.Price(r.Context(), req.Kind, strings.TrimSpace(req.TemplateID))
	if err != nil {
		a.fail(w, r, err, "price job")
		return
	}
	jobID, err := a.Jobs.CreateJob(r.Context(), dispatch.CreateJobInput{
		OwnerID:        ownerID,
		Kind:           req.Kind,
		Prompt:         req.Prompt,
		InputAssetRefs: req.InputAssetRefs,
		TemplateID:     req.TemplateID,
		Params:         req.Params,
		Locale:         middleware.LocaleFromContext(r.Context()),
		Cost:           cost,
	})
	if err != nil {
		a.fail(w, r, err, "create job")
		return
	}
	if idemKey != "" {
		a.idempotency.Put(ownerID, idemKey, payloadHash, jobID, cost)
	}

	resp := createJobResponse{JobID: jobID, Status: string(domain.JobStatusQueued), Cost: cost}
	if balance, err := a.Jobs.Balance(r.Context(), ownerID); err == nil {
		resp.Balance = &balance
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/jobs/%s", jobID))
	a.json(w, http.StatusAccepted, resp)
}

func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, r, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, r, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.Jobs.GetJob(r.Context(), ownerID, jobID)
	if err != nil {
		a.fail(w, r, err, "load job")
		return
	}
	a.json(w, http.StatusOK, toJobDTO(job))
}

func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, r, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			a.error(w, r, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = n
	}
	jobs, err := a.Jobs.ListJobs(r.Context(), ownerID, limit)
	if err != nil {
		a.fail(w, r, err, "list jobs")
		return
	}
	items := make([]jobDTO, 0, len(jobs))
	for i := range jobs {
		items = append(items, toJobDTO(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
