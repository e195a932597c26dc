package importer

import (
	"context"
	"testing"
)

func TestSanitizeSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello World", "hello-world"},
		{"  Trimmed  ", "trimmed"},
		{"Already-a-slug", "already-a-slug"},
		{"Mixed CASE & Symbols!", "mixed-case-symbols"},
		{"<b>Tagged</b> Title", "tagged-title"},
		{"Caf&eacute; au lait", "caf-au-lait"},
		{"---", ""},
		{"", ""},
		{"100% Done", "100-done"},
	}

	for _, tt := range tests {
		if got := SanitizeSlug(tt.in); got != tt.want {
			t.Errorf("SanitizeSlug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUniqueSlug_NoCollision(t *testing.T) {
	store := newMemContent()
	seen := newSlugSet()

	slug, err := uniqueSlug(context.Background(), store, "post", "Hello World", "fallback", seen)
	if err != nil {
		t.Fatalf("uniqueSlug() error = %v", err)
	}
	if slug != "hello-world" {
		t.Errorf("slug = %q, want hello-world", slug)
	}
	if !seen.has("hello-world") {
		t.Error("assigned slug not tracked in the in-run set")
	}
}

func TestUniqueSlug_InRunCollision(t *testing.T) {
	store := newMemContent()
	seen := newSlugSet()
	ctx := context.Background()

	first, err := uniqueSlug(ctx, store, "post", "Hello", "fallback", seen)
	if err != nil {
		t.Fatal(err)
	}
	second, err := uniqueSlug(ctx, store, "post", "Hello", "fallback", seen)
	if err != nil {
		t.Fatal(err)
	}
	third, err := uniqueSlug(ctx, store, "post", "Hello", "fallback", seen)
	if err != nil {
		t.Fatal(err)
	}

	if first != "hello" || second != "hello-1" || third != "hello-2" {
		t.Errorf("slugs = %q, %q, %q, want hello, hello-1, hello-2", first, second, third)
	}
}

func TestUniqueSlug_StoreCollision(t *testing.T) {
	store := newMemContent()
	ctx := context.Background()

	if _, err := store.CreateRecord(ctx, RecordFields{ContentType: "post", Title: "Hello", Slug: "hello"}); err != nil {
		t.Fatal(err)
	}

	slug, err := uniqueSlug(ctx, store, "post", "Hello", "fallback", newSlugSet())
	if err != nil {
		t.Fatalf("uniqueSlug() error = %v", err)
	}
	if slug != "hello-1" {
		t.Errorf("slug = %q, want hello-1", slug)
	}
}

func TestUniqueSlug_FallbackForEmptyTitle(t *testing.T) {
	slug, err := uniqueSlug(context.Background(), newMemContent(), "post", "???", "import-abc123", newSlugSet())
	if err != nil {
		t.Fatalf("uniqueSlug() error = %v", err)
	}
	if slug != "import-abc123" {
		t.Errorf("slug = %q, want import-abc123", slug)
	}
}
