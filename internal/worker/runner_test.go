package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"genstudio/internal/adapter/memory"
	"genstudio/internal/classify"
	"genstudio/internal/dispatch"
	"genstudio/internal/domain"
	"genstudio/internal/providers/replicate"
	"genstudio/internal/queue"
	"genstudio/internal/retry"
	"genstudio/internal/storage"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{9}, 128)...)

// upstream emulates the predictions API and the CDN that serves outputs.
type upstream struct {
	srv         *httptest.Server
	creates     atomic.Int32
	failCreates int32
	pollStatus  string
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{pollStatus: replicate.StatusSucceeded}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /predictions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		n := u.creates.Add(1)
		if n <= u.failCreates {
			http.Error(w, `{"detail":"internal server error"}`, http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "pred-e2e", "status": replicate.StatusStarting})
	})
	mux.HandleFunc("GET /predictions/{id}", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"id": r.PathValue("id"), "status": u.pollStatus}
		if u.pollStatus == replicate.StatusSucceeded {
			body["output"] = []string{u.srv.URL + "/files/out.png"}
		}
		json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("GET /files/out.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngBytes)
	})
	u.srv = httptest.NewServer(mux)
	t.Cleanup(u.srv.Close)
	return u
}

type pipeline struct {
	store      *memory.Store
	files      *storage.FileStore
	dispatcher *dispatch.Dispatcher
	cancel     context.CancelFunc
	done       chan error
}

func startPipeline(t *testing.T, u *upstream) *pipeline {
	t.Helper()
	store := memory.NewStore()
	if _, err := store.Credits().Grant(context.Background(), "owner-1", 10); err != nil {
		t.Fatalf("Grant error: %v", err)
	}
	files, err := storage.NewFileStore(t.TempDir(), "https://cdn.test/static")
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	client, err := replicate.NewClient(replicate.Options{
		APIToken:         "test-token",
		BaseURL:          u.srv.URL,
		VersionOverrides: map[string]string{"acme/image-model": "v1"},
		PollInterval:     time.Millisecond,
		MaxPollAttempts:  5,
		HTTPClient:       u.srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	processor, err := NewProcessor(Options{
		Jobs:      store.Jobs(),
		Templates: store.Templates(),
		Inputs:    storage.NewAssetResolver(store.Assets(), files, nil),
		Generator: client,
		Persister: storage.NewPersister(files, storage.PersisterOptions{HTTPClient: u.srv.Client()}),
		Models:    map[domain.JobKind]string{domain.JobKindImage: "acme/image-model"},
		Retry:     retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2},
	})
	if err != nil {
		t.Fatalf("NewProcessor error: %v", err)
	}

	q := queue.NewLocalQueue(8, 3, nil)
	ctx, cancel := context.WithCancel(context.Background())
	p := &pipeline{
		store:      store,
		files:      files,
		dispatcher: dispatch.NewDispatcher(store.Jobs(), store.Credits(), q, nil),
		cancel:     cancel,
		done:       make(chan error, 1),
	}
	runner := NewRunner(q, processor, 2, nil)
	go func() { p.done <- runner.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-p.done
	})
	return p
}

func (p *pipeline) waitTerminal(t *testing.T, jobID string) *domain.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		job, err := p.dispatcher.GetJob(context.Background(), "owner-1", jobID)
		if err != nil {
			t.Fatalf("GetJob error: %v", err)
		}
		if job.Status.Terminal() {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s stuck in %s", jobID, job.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (p *pipeline) balance(t *testing.T) int64 {
	t.Helper()
	b, err := p.dispatcher.Balance(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("Balance error: %v", err)
	}
	return b
}

func (p *pipeline) create(t *testing.T) string {
	t.Helper()
	jobID, err := p.dispatcher.CreateJob(context.Background(), dispatch.CreateJobInput{
		OwnerID: "owner-1",
		Kind:    domain.JobKindImage,
		Prompt:  "a paper boat on a pond",
		Locale:  "en",
		Cost:    10,
	})
	if err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}
	if b := p.balance(t); b != 0 {
		t.Fatalf("balance after create = %d, want 0", b)
	}
	return jobID
}

func TestPipelineStoresOutput(t *testing.T) {
	u := newUpstream(t)
	p := startPipeline(t, u)
	jobID := p.create(t)

	job := p.waitTerminal(t, jobID)
	if job.Status != domain.JobStatusDone {
		t.Fatalf("status = %q (%s), want done", job.Status, job.ErrorMessage)
	}
	stored, err := p.files.Read(job.ResultAssetRef)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if !bytes.Equal(stored, pngBytes) {
		t.Fatal("stored bytes differ from the provider output")
	}
	if !strings.HasPrefix(job.ResultURL, "https://cdn.test/static/generated/images/") {
		t.Fatalf("ResultURL = %q", job.ResultURL)
	}
	if b := p.balance(t); b != 0 {
		t.Fatalf("balance = %d, want 0", b)
	}
}

func TestPipelineRetriesUpstream5xx(t *testing.T) {
	u := newUpstream(t)
	u.failCreates = 1
	p := startPipeline(t, u)
	jobID := p.create(t)

	job := p.waitTerminal(t, jobID)
	if job.Status != domain.JobStatusDone || job.Refunded {
		t.Fatalf("job = %+v, want done without refund", job)
	}
	if n := u.creates.Load(); n != 2 {
		t.Fatalf("create calls = %d, want 2", n)
	}
	if b := p.balance(t); b != 0 {
		t.Fatalf("balance = %d, want 0", b)
	}
}

func TestPipelineBoundedPolling(t *testing.T) {
	u := newUpstream(t)
	u.pollStatus = replicate.StatusProcessing
	p := startPipeline(t, u)
	jobID := p.create(t)

	job := p.waitTerminal(t, jobID)
	if job.Status != domain.JobStatusError || !job.Recoverable {
		t.Fatalf("job = %+v, want recoverable error", job)
	}
	if want := classify.Message(classify.CategoryTimeout, "en"); job.ErrorMessage != want {
		t.Fatalf("ErrorMessage = %q, want %q", job.ErrorMessage, want)
	}
	if n := u.creates.Load(); n != 1 {
		t.Fatalf("create calls = %d, want 1 (poll timeouts are not retried)", n)
	}
	if b := p.balance(t); b != 10 {
		t.Fatalf("balance = %d, want 10", b)
	}
}

func TestRunnerStopsWhenQueueCloses(t *testing.T) {
	q := queue.NewLocalQueue(1, 1, nil)
	processor, err := NewProcessor(Options{Jobs: memory.NewStore().Jobs(), Generator: &fakeGenerator{}, Persister: &fakePersister{}})
	if err != nil {
		t.Fatalf("NewProcessor error: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- NewRunner(q, processor, 3, nil).Run(context.Background()) }()
	q.Close()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}
