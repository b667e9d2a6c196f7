// Package pricing decides what a generation request costs.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"genstudio/internal/domain"
)

// Catalog prices requests from per-kind defaults, overridden by the cost of
// the catalog template when one is referenced.
type Catalog struct {
	costs     map[domain.JobKind]int64
	templates domain.TemplateRepository
}

func NewCatalog(costs map[domain.JobKind]int64, templates domain.TemplateRepository) *Catalog {
	copied := make(map[domain.JobKind]int64, len(costs))
	for kind, cost := range costs {
		copied[kind] = cost
	}
	return &Catalog{costs: copied, templates: templates}
}

// Price returns the cost of one job of kind, optionally rendered from
// templateID. An unknown template or a template of another kind is an
// invalid job.
func (c *Catalog) Price(ctx context.Context, kind domain.JobKind, templateID string) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: unsupported kind %q", domain.ErrInvalidJob, kind)
	}
	cost := c.costs[kind]
	if templateID != "" {
		if c.templates == nil {
			return 0, fmt.Errorf("%w: templates are not available", domain.ErrInvalidJob)
		}
		tmpl, err := c.templates.GetByID(ctx, templateID)
		if errors.Is(err, domain.ErrNotFound) {
			return 0, fmt.Errorf("%w: unknown template %q", domain.ErrInvalidJob, templateID)
		}
		if err != nil {
			return 0, fmt.Errorf("load template: %w", err)
		}
		if tmpl.Kind != kind {
			return 0, fmt.Errorf("%w: template %q is for %s jobs", domain.ErrInvalidJob, templateID, tmpl.Kind)
		}
		if tmpl.Cost > 0 {
			cost = tmpl.Cost
		}
	}
	if cost <= 0 {
		return 0, fmt.Errorf("%w: no price configured for %s", domain.ErrInvalidJob, kind)
	}
	return cost, nil
}

// Costs returns the per-kind defaults.
func (c *Catalog) Costs() map[domain.JobKind]int64 {
	out := make(map[domain.JobKind]int64, len(c.costs))
	for kind, cost := range c.costs {
		out[kind] = cost
	}
	return out
}
