package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"genstudio/internal/domain"
	"genstudio/internal/infra"
)

// ErrNoInputResolved is returned when none of a job's input refs resolve.
var ErrNoInputResolved = errors.New("storage: no input asset could be resolved")

// AssetResolver turns a job's input refs into URLs the provider can fetch.
// A ref is an asset id owned by the job owner, a key under the owner's
// upload prefix, or an absolute http(s) URL.
type AssetResolver struct {
	assets  domain.AssetRepository
	backend Backend
	logger  *infra.Logger
}

func NewAssetResolver(assets domain.AssetRepository, backend Backend, logger *infra.Logger) *AssetResolver {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &AssetResolver{assets: assets, backend: backend, logger: logger}
}

// Resolve returns URLs for up to domain.MaxInputAssets refs in order. Refs
// that fail are skipped; it fails only when refs were given and none resolved.
func (r *AssetResolver) Resolve(ctx context.Context, ownerID string, refs []string) ([]string, error) {
	if len(refs) > domain.MaxInputAssets {
		refs = refs[:domain.MaxInputAssets]
	}
	urls := make([]string, 0, len(refs))
	var lastErr error
	for _, ref := range refs {
		u, err := r.resolveOne(ctx, ownerID, strings.TrimSpace(ref))
		if err != nil {
			lastErr = err
			r.logger.Warn().Err(err).Str("owner_id", ownerID).Str("ref", ref).Msg("storage: input asset unresolved")
			continue
		}
		urls = append(urls, u)
	}
	if len(refs) > 0 && len(urls) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoInputResolved, lastErr)
	}
	return urls, nil
}

func (r *AssetResolver) resolveOne(ctx context.Context, ownerID, ref string) (string, error) {
	switch {
	case ref == "":
		return "", errors.New("empty ref")
	case strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://"):
		return ref, nil
	case strings.HasPrefix(ref, UploadPrefix(ownerID)):
		if r.backend == nil {
			return "", ErrNoStore
		}
		return r.backend.PublicURL(ctx, ref)
	}
	if _, err := uuid.Parse(ref); err != nil {
		return "", fmt.Errorf("unrecognized ref %q", ref)
	}
	if r.assets == nil || r.backend == nil {
		return "", ErrNoStore
	}
	asset, err := r.assets.GetForOwner(ctx, ownerID, ref)
	if err != nil {
		return "", err
	}
	return r.backend.PublicURL(ctx, asset.StorageKey)
}
