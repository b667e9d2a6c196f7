package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"genstudio/internal/domain"
)

// Store keeps jobs, balances, templates and assets in memory for local
// development and tests. One mutex guards everything so a job transition and
// its ledger movement are applied together.
type Store struct {
	mu        sync.RWMutex
	jobs      map[string]*domain.Job
	balances  map[string]int64
	entries   []domain.CreditEntry
	templates map[string]*domain.Template
	assets    map[string]*domain.Asset
	now       func() time.Time
}

func NewStore() *Store {
	return &Store{
		jobs:      make(map[string]*domain.Job),
		balances:  make(map[string]int64),
		templates: make(map[string]*domain.Template),
		assets:    make(map[string]*domain.Asset),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Jobs returns the domain.JobRepository view of the store.
func (s *Store) Jobs() *Jobs { return &Jobs{s: s} }

// Credits returns the domain.CreditLedger view of the store.
func (s *Store) Credits() *Credits { return &Credits{s: s} }

// Templates returns the domain.TemplateRepository view of the store.
func (s *Store) Templates() *Templates { return &Templates{s: s} }

// Assets returns the domain.AssetRepository view of the store.
func (s *Store) Assets() *Assets { return &Assets{s: s} }

// PutTemplate seeds a catalog template.
func (s *Store) PutTemplate(tmpl domain.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := tmpl
	s.templates[tmpl.ID] = &clone
}

// PutAsset seeds an uploaded asset and returns its id.
func (s *Store) PutAsset(asset domain.Asset) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = s.now()
	}
	clone := asset
	s.assets[asset.ID] = &clone
	return asset.ID
}

// Entries returns a copy of the ledger movements in insertion order.
func (s *Store) Entries() []domain.CreditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CreditEntry(nil), s.entries...)
}

// must hold s.mu
func (s *Store) move(ownerID, jobID string, entryType domain.CreditEntryType, amount int64) int64 {
	s.balances[ownerID] += amount
	s.entries = append(s.entries, domain.CreditEntry{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		JobID:        jobID,
		EntryType:    entryType,
		Amount:       amount,
		BalanceAfter: s.balances[ownerID],
		CreatedAt:    s.now(),
	})
	return s.balances[ownerID]
}

// Jobs implements domain.JobRepository.
type Jobs struct{ s *Store }

func (r *Jobs) CreateWithDebit(_ context.Context, job *domain.Job) error {
	if job == nil || job.ID == "" {
		return domain.ErrInvalidJob
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return domain.ErrInvalidJob
	}
	if s.balances[job.OwnerID] < job.DebitedAmount {
		return domain.ErrInsufficientBalance
	}
	s.move(job.OwnerID, job.ID, domain.CreditEntryDebit, -job.DebitedAmount)

	now := s.now()
	job.Status = domain.JobStatusQueued
	job.Refunded = false
	job.CreatedAt = now
	job.UpdatedAt = now
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (r *Jobs) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	job, ok := r.s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job.Clone(), nil
}

func (r *Jobs) ListByOwner(_ context.Context, ownerID string, limit int) ([]domain.Job, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := make([]domain.Job, 0)
	for _, job := range r.s.jobs {
		if job.OwnerID == ownerID {
			items = append(items, *job.Clone())
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (r *Jobs) MarkProcessing(_ context.Context, jobID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	job, ok := r.s.jobs[jobID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if job.Status != domain.JobStatusQueued {
		return false, nil
	}
	job.Status = domain.JobStatusProcessing
	job.UpdatedAt = r.s.now()
	return true, nil
}

func (r *Jobs) MarkDone(_ context.Context, jobID string, result domain.Result) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return domain.ErrInvalidTransition
	}
	now := s.now()
	job.Status = domain.JobStatusDone
	job.ResultAssetRef = result.AssetRef
	job.ResultURL = result.URL
	if result.PredictionID != "" {
		job.PredictionID = result.PredictionID
	}
	job.Attempts = result.Attempts
	job.UpdatedAt = now

	asset := &domain.Asset{
		ID:          uuid.NewString(),
		OwnerID:     job.OwnerID,
		JobID:       job.ID,
		StorageKey:  result.AssetRef,
		ContentType: result.ContentType,
		Bytes:       result.Bytes,
		CreatedAt:   now,
	}
	s.assets[asset.ID] = asset
	return nil
}

func (r *Jobs) Fail(_ context.Context, jobID string, failure domain.Failure) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if job.Status.Terminal() || job.Refunded {
		return false, nil
	}
	job.Status = domain.JobStatusError
	job.ErrorMessage = failure.Message
	job.Recoverable = failure.Recoverable
	if failure.PredictionID != "" {
		job.PredictionID = failure.PredictionID
	}
	if failure.Attempts > job.Attempts {
		job.Attempts = failure.Attempts
	}
	job.Refunded = true
	job.UpdatedAt = s.now()
	s.move(job.OwnerID, job.ID, domain.CreditEntryRefund, job.DebitedAmount)
	return true, nil
}

// Credits implements domain.CreditLedger.
type Credits struct{ s *Store }

func (c *Credits) Balance(_ context.Context, ownerID string) (int64, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return c.s.balances[ownerID], nil
}

func (c *Credits) Grant(_ context.Context, ownerID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidJob
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.s.move(ownerID, "", domain.CreditEntryGrant, amount), nil
}

// Templates implements domain.TemplateRepository.
type Templates struct{ s *Store }

func (t *Templates) GetByID(_ context.Context, id string) (*domain.Template, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	tmpl, ok := t.s.templates[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *tmpl
	return &clone, nil
}

// Assets implements domain.AssetRepository.
type Assets struct{ s *Store }

func (a *Assets) GetForOwner(_ context.Context, ownerID, assetID string) (*domain.Asset, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	asset, ok := a.s.assets[assetID]
	if !ok || asset.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	clone := *asset
	return &clone, nil
}

var (
	_ domain.JobRepository      = (*Jobs)(nil)
	_ domain.CreditLedger       = (*Credits)(nil)
	_ domain.TemplateRepository = (*Templates)(nil)
	_ domain.AssetRepository    = (*Assets)(nil)
)
