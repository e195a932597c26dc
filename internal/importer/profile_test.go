package importer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestProfileManager_SaveAndGet(t *testing.T) {
	m := NewProfileManager(newMemKV())
	ctx := context.Background()

	saved, err := m.Save(ctx, "Weekly Products", Config{ContentType: "post", ContentStatus: "draft"})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if saved.ID != "weekly-products" {
		t.Errorf("ID = %q, want weekly-products", saved.ID)
	}

	got, err := m.Get(ctx, "weekly-products")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "Weekly Products" || got.Config.ContentType != "post" {
		t.Errorf("profile = %+v", got)
	}
}

func TestProfileManager_GetMissing(t *testing.T) {
	m := NewProfileManager(newMemKV())
	if _, err := m.Get(context.Background(), "nope"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("Get() error = %v, want ErrProfileNotFound", err)
	}
}

func TestProfileManager_SaveEmptyName(t *testing.T) {
	m := NewProfileManager(newMemKV())
	if _, err := m.Save(context.Background(), "???", Config{}); err == nil {
		t.Error("Save() with unusable name: error = nil, want error")
	}
}

func TestProfileManager_OverwriteKeepsCounters(t *testing.T) {
	m := NewProfileManager(newMemKV())
	ctx := context.Background()

	if _, err := m.Save(ctx, "Products", Config{ContentType: "post"}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Apply(ctx, "products"); err != nil {
		t.Fatal(err)
	}

	resaved, err := m.Save(ctx, "Products", Config{ContentType: "page"})
	if err != nil {
		t.Fatal(err)
	}
	if resaved.UseCount != 1 {
		t.Errorf("UseCount after overwrite = %d, want 1", resaved.UseCount)
	}
	if resaved.Config.ContentType != "page" {
		t.Errorf("Config.ContentType = %q, want updated value", resaved.Config.ContentType)
	}
}

func TestProfileManager_ApplyActivatesConfig(t *testing.T) {
	kv := newMemKV()
	m := NewProfileManager(kv)
	ctx := context.Background()

	if _, err := m.Save(ctx, "Remote Feed", Config{ContentType: "post", RemoteURL: "https://www.dropbox.com/s/x/y.csv"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := m.Apply(ctx, "remote-feed")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if cfg.RemoteURL == "" {
		t.Error("applied config lost the remote URL")
	}

	raw, err := kv.Get(ctx, KeyConfig)
	if err != nil {
		t.Fatalf("active config not written: %v", err)
	}
	var active Config
	if err := json.Unmarshal(raw, &active); err != nil {
		t.Fatal(err)
	}
	if active.RemoteURL != cfg.RemoteURL {
		t.Errorf("active config = %+v, want the profile's config", active)
	}

	p, _ := m.Get(ctx, "remote-feed")
	if p.UseCount != 1 || p.LastUsed.IsZero() {
		t.Errorf("usage counters = count %d lastUsed %v", p.UseCount, p.LastUsed)
	}
}

func TestProfileManager_ListSortedByName(t *testing.T) {
	m := NewProfileManager(newMemKV())
	ctx := context.Background()

	for _, name := range []string{"Zeta", "Alpha", "Mid"} {
		if _, err := m.Save(ctx, name, Config{}); err != nil {
			t.Fatal(err)
		}
	}

	profiles, err := m.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(profiles) != 3 {
		t.Fatalf("len = %d, want 3", len(profiles))
	}
	if profiles[0].Name != "Alpha" || profiles[1].Name != "Mid" || profiles[2].Name != "Zeta" {
		t.Errorf("order = %s, %s, %s", profiles[0].Name, profiles[1].Name, profiles[2].Name)
	}
}

func TestProfileManager_Delete(t *testing.T) {
	m := NewProfileManager(newMemKV())
	ctx := context.Background()

	if _, err := m.Save(ctx, "Doomed", Config{}); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, "doomed"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := m.Get(ctx, "doomed"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrProfileNotFound", err)
	}
	if err := m.Delete(ctx, "doomed"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("second Delete() error = %v, want ErrProfileNotFound", err)
	}
}
