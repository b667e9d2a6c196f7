package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"genstudio/internal/infra"
)

const (
	defaultBaseURL         = "https://api.replicate.com/v1"
	defaultPollInterval    = 5 * time.Second
	defaultMaxPollAttempts = 60
	maxResponseBytes       = 1 << 20
	maxErrorBodyChars      = 512
)

// Options configures the Replicate client.
type Options struct {
	APIToken         string
	BaseURL          string
	VersionOverrides map[string]string
	PollInterval     time.Duration
	MaxPollAttempts  int
	HTTPClient       *http.Client
	Logger           *infra.Logger
	Limiter          *rate.Limiter
	RequestTimeout   time.Duration
}

// Client talks to a Replicate-compatible predictions API.
type Client struct {
	token           string
	baseURL         string
	overrides       map[string]string
	pollInterval    time.Duration
	maxPollAttempts int
	httpClient      *http.Client
	logger          *infra.Logger
	limiter         *rate.Limiter

	mu       sync.Mutex
	versions map[string]string
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	token := strings.TrimSpace(opts.APIToken)
	if token == "" {
		return nil, ErrMissingAPIToken
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	maxPolls := opts.MaxPollAttempts
	if maxPolls <= 0 {
		maxPolls = defaultMaxPollAttempts
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	overrides := make(map[string]string, len(opts.VersionOverrides))
	for model, version := range opts.VersionOverrides {
		if version = strings.TrimSpace(version); version != "" {
			overrides[strings.TrimSpace(model)] = version
		}
	}
	return &Client{
		token:           token,
		baseURL:         baseURL,
		overrides:       overrides,
		pollInterval:    interval,
		maxPollAttempts: maxPolls,
		httpClient:      httpClient,
		logger:          logger,
		limiter:         opts.Limiter,
		versions:        make(map[string]string),
	}, nil
}

// ResolveVersion maps a model identifier to a concrete version id. Configured
// overrides and "owner/name:version" literals win; otherwise the model's
// latest version is looked up and cached.
func (c *Client) ResolveVersion(ctx context.Context, model string) (string, error) {
	model = strings.TrimSpace(model)
	if v, ok := c.overrides[model]; ok {
		return v, nil
	}
	if name, version, found := strings.Cut(model, ":"); found {
		if version = strings.TrimSpace(version); version != "" {
			return version, nil
		}
		model = name
	}
	owner, name, ok := strings.Cut(model, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", &APIError{Op: "resolve version", Body: fmt.Sprintf("invalid model identifier %q", model)}
	}

	c.mu.Lock()
	cached, hit := c.versions[model]
	c.mu.Unlock()
	if hit {
		return cached, nil
	}

	version, err := c.lookupVersion(ctx, owner, name)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.versions[model] = version
	c.mu.Unlock()
	c.logger.Debug().Str("model", model).Str("version", version).Msg("replicate: resolved model version")
	return version, nil
}

func (c *Client) lookupVersion(ctx context.Context, owner, name string) (string, error) {
	modelPath := "/models/" + url.PathEscape(owner) + "/" + url.PathEscape(name)

	var model modelResponse
	status, err := c.doJSON(ctx, http.MethodGet, modelPath, nil, &model, "get model")
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode == 0 {
			return "", err
		}
	} else {
		if model.LatestVersion != nil && model.LatestVersion.ID != "" {
			return model.LatestVersion.ID, nil
		}
		if model.DefaultVersion != nil && model.DefaultVersion.ID != "" {
			return model.DefaultVersion.ID, nil
		}
	}

	var list versionListResponse
	listStatus, err := c.doJSON(ctx, http.MethodGet, modelPath+"/versions", nil, &list, "list versions")
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
			return "", err
		}
	} else if len(list.Results) > 0 {
		sort.SliceStable(list.Results, func(i, j int) bool {
			return list.Results[i].CreatedAt > list.Results[j].CreatedAt
		})
		for _, v := range list.Results {
			if v.ID != "" {
				return v.ID, nil
			}
		}
	}

	code := listStatus
	if code == 0 || code/100 == 2 {
		code = status
	}
	if code/100 == 2 {
		code = http.StatusNotFound
	}
	return "", &APIError{Op: "resolve version", StatusCode: code, Body: fmt.Sprintf("no version available for %s/%s", owner, name)}
}

// CreatePrediction starts a prediction and returns its id. It does not retry.
func (c *Client) CreatePrediction(ctx context.Context, model string, input map[string]any) (string, error) {
	version, err := c.ResolveVersion(ctx, model)
	if err != nil {
		return "", err
	}
	var created Prediction
	if _, err := c.doJSON(ctx, http.MethodPost, "/predictions", createRequest{Version: version, Input: input}, &created, "create prediction"); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", &APIError{Op: "create prediction", Body: "response did not include a prediction id"}
	}
	c.logger.Info().
		Str("model", model).
		Str("prediction_id", created.ID).
		Str("status", created.Status).
		Msg("replicate: prediction created")
	return created.ID, nil
}

// GetPrediction fetches the current state of a prediction.
func (c *Client) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	var p Prediction
	if _, err := c.doJSON(ctx, http.MethodGet, "/predictions/"+url.PathEscape(id), nil, &p, "get prediction"); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = id
	}
	return &p, nil
}

// PollUntilSettled polls at a fixed interval until the prediction succeeds,
// fails or the poll ceiling is reached. A failed or canceled prediction is
// returned together with a *PredictionError.
func (c *Client) PollUntilSettled(ctx context.Context, id string) (*Prediction, error) {
	for attempt := 1; attempt <= c.maxPollAttempts; attempt++ {
		p, err := c.GetPrediction(ctx, id)
		if err != nil {
			return nil, err
		}
		if p.Settled() {
			if p.Status == StatusSucceeded {
				return p, nil
			}
			return p, &PredictionError{ID: p.ID, Status: p.Status, Message: p.ErrorText()}
		}
		c.logger.Debug().
			Str("prediction_id", id).
			Str("status", p.Status).
			Int("poll", attempt).
			Msg("replicate: prediction pending")
		if attempt == c.maxPollAttempts {
			break
		}
		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("%w: %s after %d polls", ErrPollTimeout, id, c.maxPollAttempts)
}

// Run creates a prediction and waits for it to settle. The prediction id is
// returned even when polling fails so callers can record it.
func (c *Client) Run(ctx context.Context, model string, input map[string]any) (string, *Prediction, error) {
	id, err := c.CreatePrediction(ctx, model, input)
	if err != nil {
		return "", nil, err
	}
	p, err := c.PollUntilSettled(ctx, id)
	return id, p, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any, op string) (int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, &APIError{Op: op, Err: err}
		}
	}
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("replicate: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("replicate: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &APIError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, &APIError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode/100 != 2 {
		return resp.StatusCode, &APIError{Op: op, StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(raw)), maxErrorBodyChars)}
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("replicate: decode %s response: %w", op, err)
		}
	}
	return resp.StatusCode, nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
