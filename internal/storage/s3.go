package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options configures an S3-compatible bucket.
type S3Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	// PublicBaseURL, when set, is used for public URLs instead of presigned GETs.
	PublicBaseURL string
	PresignExpiry time.Duration
	HTTPClient    *http.Client
}

// S3Store uploads through presigned PUT requests so the same upload target
// can be handed to other processes.
type S3Store struct {
	bucket        string
	publicBaseURL string
	expiry        time.Duration
	presign       *s3.PresignClient
	httpClient    *http.Client
}

// UploadTarget is a presigned request that stores one object.
type UploadTarget struct {
	URL     string
	Method  string
	Headers http.Header
	Expires time.Time
}

// NewS3Store builds a store from static credentials when provided, otherwise
// from the default AWS credential chain.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("storage: s3 bucket is required")
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}

	var cfg aws.Config
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		cfg = aws.Config{
			Region:      region,
			Credentials: credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		}
	} else {
		loaded, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return nil, fmt.Errorf("storage: load aws config: %w", err)
		}
		cfg = loaded
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	expiry := opts.PresignExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &S3Store{
		bucket:        opts.Bucket,
		publicBaseURL: strings.TrimSpace(opts.PublicBaseURL),
		expiry:        expiry,
		presign:       s3.NewPresignClient(client),
		httpClient:    httpClient,
	}, nil
}

// UploadTarget presigns a PUT for key.
func (s *S3Store) UploadTarget(ctx context.Context, key, contentType string) (*UploadTarget, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(cleanKey),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	req, err := s.presign.PresignPutObject(ctx, input, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return nil, fmt.Errorf("storage: presign put: %w", err)
	}
	return &UploadTarget{
		URL:     req.URL,
		Method:  req.Method,
		Headers: req.SignedHeader,
		Expires: time.Now().Add(s.expiry),
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if s == nil {
		return "", ErrNoStore
	}
	target, err := s.UploadTarget(ctx, key, contentType)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, target.Method, target.URL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("storage: build upload request: %w", err)
	}
	for name, values := range target.Headers {
		if strings.EqualFold(name, "host") {
			continue
		}
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.ContentLength = int64(len(data))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage: upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("storage: upload status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	cleanKey, _ := sanitizeKey(key)
	return cleanKey, nil
}

func (s *S3Store) PublicURL(ctx context.Context, key string) (string, error) {
	if s == nil {
		return "", ErrNoStore
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	if s.publicBaseURL != "" {
		return joinURL(s.publicBaseURL, cleanKey), nil
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(cleanKey),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", fmt.Errorf("storage: presign get: %w", err)
	}
	return req.URL, nil
}

var _ Backend = (*S3Store)(nil)
