package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"genstudio/internal/domain"
	"genstudio/internal/infra"
	"genstudio/internal/sqlinline"
)

// TemplateRepositoryPG implements domain.TemplateRepository.
type TemplateRepositoryPG struct {
	db infra.SQLExecutor
}

func NewTemplateRepository(db infra.SQLExecutor) *TemplateRepositoryPG {
	return &TemplateRepositoryPG{db: db}
}

func (r *TemplateRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	var (
		tmpl     domain.Template
		kind     string
		paramsJS []byte
	)
	row := r.db.QueryRow(ctx, sqlinline.QSelectTemplate, id)
	if err := row.Scan(&tmpl.ID, &kind, &tmpl.PromptTemplate, &tmpl.Model, &tmpl.Cost, &paramsJS); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	tmpl.Kind = domain.JobKind(kind)
	if len(paramsJS) > 0 {
		if err := json.Unmarshal(paramsJS, &tmpl.Params); err != nil {
			return nil, fmt.Errorf("decode template params: %w", err)
		}
	}
	return &tmpl, nil
}

// AssetRepositoryPG implements domain.AssetRepository using PostgreSQL.
type AssetRepositoryPG struct {
	db infra.SQLExecutor
}

// NewAssetRepository constructs a new asset repository instance.
func NewAssetRepository(db infra.SQLExecutor) *AssetRepositoryPG {
	return &AssetRepositoryPG{db: db}
}

// GetForOwner loads an asset only when it belongs to ownerID.
func (r *AssetRepositoryPG) GetForOwner(ctx context.Context, ownerID, assetID string) (*domain.Asset, error) {
	var asset domain.Asset
	row := r.db.QueryRow(ctx, sqlinline.QSelectAssetForOwner, assetID, ownerID)
	if err := row.Scan(&asset.ID, &asset.OwnerID, &asset.JobID, &asset.StorageKey, &asset.ContentType, &asset.Bytes, &asset.CreatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &asset, nil
}

var (
	_ domain.TemplateRepository = (*TemplateRepositoryPG)(nil)
	_ domain.AssetRepository    = (*AssetRepositoryPG)(nil)
)
