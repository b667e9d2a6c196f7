package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"genstudio/internal/domain"
	"genstudio/internal/sqlinline"
)

func TestTemplateGetByID(t *testing.T) {
	db := newStubDB()
	db.script(sqlinline.QSelectTemplate, "tpl-1", "card", "Greeting card: {prompt}", "", int64(2), []byte(`{"aspect_ratio":"4:5"}`))
	repo := NewTemplateRepository(db)

	tmpl, err := repo.GetByID(context.Background(), "tpl-1")
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if tmpl.Kind != domain.JobKindCard || tmpl.Params.AspectRatio != "4:5" {
		t.Fatalf("unexpected template %#v", tmpl)
	}
	if _, err := repo.GetByID(context.Background(), "tpl-2"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAssetGetForOwner(t *testing.T) {
	db := newStubDB()
	db.script(sqlinline.QSelectAssetForOwner, "a-1", "owner-1", "", "uploads/owner-1/a.png", "image/png", int64(128), time.Now())
	repo := NewAssetRepository(db)

	asset, err := repo.GetForOwner(context.Background(), "owner-1", "a-1")
	if err != nil {
		t.Fatalf("GetForOwner error: %v", err)
	}
	if asset.StorageKey != "uploads/owner-1/a.png" {
		t.Fatalf("StorageKey = %q", asset.StorageKey)
	}
	if _, err := repo.GetForOwner(context.Background(), "owner-2", "a-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
