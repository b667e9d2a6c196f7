package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"genstudio/internal/domain"
	"genstudio/internal/infra"
)

const defaultMaxAssetBytes = 200 << 20

// StoredAsset describes an output copied into durable storage.
type StoredAsset struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
}

// PersisterOptions configures a Persister.
type PersisterOptions struct {
	HTTPClient *http.Client
	MaxBytes   int64
	Logger     *infra.Logger
}

// Persister copies short-lived provider outputs into a Backend.
type Persister struct {
	backend    Backend
	httpClient *http.Client
	maxBytes   int64
	logger     *infra.Logger
}

func NewPersister(backend Backend, opts PersisterOptions) *Persister {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxAssetBytes
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &Persister{backend: backend, httpClient: httpClient, maxBytes: maxBytes, logger: logger}
}

// Persist downloads remoteURL and stores it under the job's generated key.
// Every failure is reported as *PersistError.
func (p *Persister) Persist(ctx context.Context, jobID string, kind domain.JobKind, remoteURL string) (*StoredAsset, error) {
	if p == nil || p.backend == nil {
		return nil, &PersistError{Op: "configure", Err: ErrNoStore}
	}
	remoteURL = strings.TrimSpace(remoteURL)
	if !strings.HasPrefix(remoteURL, "http://") && !strings.HasPrefix(remoteURL, "https://") {
		return nil, &PersistError{Op: "download", Err: fmt.Errorf("invalid output url %q", remoteURL)}
	}

	data, contentType, err := p.download(ctx, remoteURL)
	if err != nil {
		return nil, &PersistError{Op: "download", Err: err}
	}

	ext := extensionForMIME(contentType)
	if ext == "" {
		ext = extensionFromURL(remoteURL)
	}
	key, err := p.backend.Put(ctx, GeneratedKey(jobID, kind, ext), contentType, data)
	if err != nil {
		return nil, &PersistError{Op: "upload", Err: err}
	}
	publicURL, err := p.backend.PublicURL(ctx, key)
	if err != nil {
		return nil, &PersistError{Op: "public url", Err: err}
	}

	p.logger.Info().
		Str("job_id", jobID).
		Str("key", key).
		Str("content_type", contentType).
		Int("bytes", len(data)).
		Msg("storage: persisted generated asset")
	return &StoredAsset{Key: key, URL: publicURL, ContentType: contentType, Size: int64(len(data))}, nil
}

func (p *Persister) download(ctx context.Context, remoteURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, "", fmt.Errorf("status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > p.maxBytes {
		return nil, "", fmt.Errorf("output exceeds %d bytes", p.maxBytes)
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty output")
	}
	contentType := normalizeMIME(resp.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" || contentType == "binary/octet-stream" {
		contentType = normalizeMIME(http.DetectContentType(data))
	}
	return data, contentType, nil
}
