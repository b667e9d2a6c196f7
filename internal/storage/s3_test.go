package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type recordedPut struct {
	method      string
	path        string
	contentType string
	body        string
	signed      bool
}

func TestS3StorePutUsesPresignedRequest(t *testing.T) {
	var (
		mu  sync.Mutex
		got recordedPut
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = recordedPut{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			body:        string(body),
			signed:      r.URL.Query().Get("X-Amz-Signature") != "",
		}
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store, err := NewS3Store(context.Background(), S3Options{
		Bucket:          "assets",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		UsePathStyle:    true,
		HTTPClient:      srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewS3Store error: %v", err)
	}

	key, err := store.Put(context.Background(), "generated/images/j1/image.png", "image/png", []byte("png"))
	if err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if key != "generated/images/j1/image.png" {
		t.Fatalf("key = %q", key)
	}
	mu.Lock()
	defer mu.Unlock()
	if got.method != http.MethodPut {
		t.Fatalf("method = %q, want PUT", got.method)
	}
	if got.path != "/assets/generated/images/j1/image.png" {
		t.Fatalf("path = %q", got.path)
	}
	if got.body != "png" || got.contentType != "image/png" {
		t.Fatalf("unexpected upload %+v", got)
	}
	if !got.signed {
		t.Fatal("expected a presigned URL")
	}
}

func TestS3StorePublicURL(t *testing.T) {
	store, err := NewS3Store(context.Background(), S3Options{
		Bucket:          "assets",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("NewS3Store error: %v", err)
	}
	url, err := store.PublicURL(context.Background(), "uploads/u1/a.png")
	if err != nil {
		t.Fatalf("PublicURL error: %v", err)
	}
	if !strings.HasPrefix(url, "http://127.0.0.1:9000/assets/uploads/u1/a.png?") || !strings.Contains(url, "X-Amz-Signature=") {
		t.Fatalf("presigned url = %q", url)
	}

	store.publicBaseURL = "https://cdn.test/"
	url, err = store.PublicURL(context.Background(), "uploads/u1/a.png")
	if err != nil {
		t.Fatalf("PublicURL error: %v", err)
	}
	if url != "https://cdn.test/uploads/u1/a.png" {
		t.Fatalf("public url = %q", url)
	}
}
