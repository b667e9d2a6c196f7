package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"genstudio/internal/adapter/memory"
	"genstudio/internal/dispatch"
	"genstudio/internal/domain"
	"genstudio/internal/middleware"
	"genstudio/internal/pricing"
)

type nopProducer struct{ count int }

func (p *nopProducer) Enqueue(context.Context, domain.QueueMessage) (string, error) {
	p.count++
	return "handle", nil
}

func newTestApp(t *testing.T, balance int64) (*App, *nopProducer) {
	t.Helper()
	store := memory.NewStore()
	if balance > 0 {
		if _, err := store.Credits().Grant(context.Background(), "owner-1", balance); err != nil {
			t.Fatalf("Grant error: %v", err)
		}
	}
	producer := &nopProducer{}
	d := dispatch.NewDispatcher(store.Jobs(), store.Credits(), producer, nil)
	catalog := pricing.NewCatalog(map[domain.JobKind]int64{
		domain.JobKindImage: 1,
		domain.JobKindVideo: 10,
		domain.JobKindCard:  2,
	}, store.Templates())
	return NewApp(d, catalog, nil), producer
}

func serve(app *App, method, target, owner string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Post("/v1/jobs", app.CreateJob)
	r.Get("/v1/jobs", app.ListJobs)
	r.Get("/v1/jobs/{job_id}", app.GetJob)
	r.Get("/v1/credits", app.Credits)

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req = req.WithContext(middleware.ContextWithOwnerID(req.Context(), owner))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateJobAccepted(t *testing.T) {
	app, producer := newTestApp(t, 10)
	rec := serve(app, http.MethodPost, "/v1/jobs", "owner-1", []byte(`{"kind":"video","prompt":"surfing cat"}`), nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp createJobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobID == "" || resp.Cost != 10 || resp.Balance == nil || *resp.Balance != 0 {
		t.Fatalf("response = %+v", resp)
	}
	if producer.count != 1 {
		t.Fatalf("enqueued = %d, want 1", producer.count)
	}

	rec = serve(app, http.MethodGet, "/v1/jobs/"+resp.JobID, "owner-1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var job jobDTO
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.Status != domain.JobStatusQueued || job.Kind != domain.JobKindVideo {
		t.Fatalf("job = %+v", job)
	}
}

func TestCreateJobErrorMapping(t *testing.T) {
	tests := []struct {
		name  string
		owner string
		body  string
		want  int
	}{
		{"insufficient balance", "owner-1", `{"kind":"video","prompt":"x"}`, http.StatusPaymentRequired},
		{"bad kind", "owner-1", `{"kind":"audio","prompt":"x"}`, http.StatusBadRequest},
		{"unknown field", "owner-1", `{"kind":"image","prompt":"x","quantity":4}`, http.StatusBadRequest},
		{"no owner", "", `{"kind":"image","prompt":"x"}`, http.StatusUnauthorized},
		{"unknown template", "owner-1", `{"kind":"image","prompt":"x","template_id":"missing"}`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app, producer := newTestApp(t, 5)
			rec := serve(app, http.MethodPost, "/v1/jobs", tc.owner, []byte(tc.body), nil)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.want, rec.Body.String())
			}
			if producer.count != 0 {
				t.Fatalf("enqueued = %d, want 0", producer.count)
			}
		})
	}
}

func TestCreateJobIdempotencyKey(t *testing.T) {
	app, producer := newTestApp(t, 10)
	headers := map[string]string{"Idempotency-Key": "req-1"}
	body := []byte(`{"kind":"image","prompt":"a kite"}`)

	first := serve(app, http.MethodPost, "/v1/jobs", "owner-1", body, headers)
	second := serve(app, http.MethodPost, "/v1/jobs", "owner-1", body, headers)
	if first.Code != http.StatusAccepted || second.Code != http.StatusAccepted {
		t.Fatalf("codes = %d, %d", first.Code, second.Code)
	}
	var a, b createJobResponse
	json.Unmarshal(first.Body.Bytes(), &a)
	json.Unmarshal(second.Body.Bytes(), &b)
	if a.JobID != b.JobID {
		t.Fatalf("job ids differ: %q vs %q", a.JobID, b.JobID)
	}
	if producer.count != 1 {
		t.Fatalf("enqueued = %d, want 1", producer.count)
	}

	conflict := serve(app, http.MethodPost, "/v1/jobs", "owner-1", []byte(`{"kind":"image","prompt":"a boat"}`), headers)
	if conflict.Code != http.StatusConflict {
		t.Fatalf("conflict status = %d, want 409", conflict.Code)
	}
}

func TestGetJobOfAnotherOwner(t *testing.T) {
	app, _ := newTestApp(t, 10)
	rec := serve(app, http.MethodPost, "/v1/jobs", "owner-1", []byte(`{"kind":"card","prompt":"birthday"}`), nil)
	var resp createJobResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)

	rec = serve(app, http.MethodGet, "/v1/jobs/"+resp.JobID, "owner-2", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListJobsAndCredits(t *testing.T) {
	app, _ := newTestApp(t, 10)
	for _, prompt := range []string{"one", "two"} {
		serve(app, http.MethodPost, "/v1/jobs", "owner-1", []byte(`{"kind":"image","prompt":"`+prompt+`"}`), nil)
	}

	rec := serve(app, http.MethodGet, "/v1/jobs?limit=10", "owner-1", nil, nil)
	var list struct {
		Items []jobDTO `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(list.Items))
	}
	if rec := serve(app, http.MethodGet, "/v1/jobs?limit=abc", "owner-1", nil, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", rec.Code)
	}

	rec = serve(app, http.MethodGet, "/v1/credits", "owner-1", nil, nil)
	var credits struct {
		Balance int64 `json:"balance"`
	}
	json.Unmarshal(rec.Body.Bytes(), &credits)
	if credits.Balance != 8 {
		t.Fatalf("balance = %d, want 8", credits.Balance)
	}
}

func TestHealthReportsFailingCheck(t *testing.T) {
	app, _ := newTestApp(t, 0)
	app.Checks["database"] = func(context.Context) error { return nil }
	rec := httptest.NewRecorder()
	app.Health(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	app.Checks["queue"] = func(context.Context) error { return context.DeadlineExceeded }
	rec = httptest.NewRecorder()
	app.Health(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
