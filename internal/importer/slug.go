package importer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var (
	slugInvalid  = regexp.MustCompile(`[^a-z0-9]+`)
	slugCollapse = regexp.MustCompile(`-{2,}`)
)

// Sanitize turns arbitrary text into slug form: lowercase, tags stripped,
// non-alphanumeric runs collapsed to single hyphens, no leading or
// trailing hyphen.
func SanitizeSlug(s string) string {
	s = strings.ToLower(cleanText(s))
	s = slugInvalid.ReplaceAllString(s, "-")
	s = slugCollapse.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// slugSet tracks slugs assigned earlier in the same run, so two rows with
// identical titles collide in-run even before the store knows about either.
type slugSet map[string]struct{}

func newSlugSet() slugSet {
	return make(slugSet)
}

func (s slugSet) has(slug string) bool {
	_, ok := s[slug]
	return ok
}

func (s slugSet) add(slug string) {
	s[slug] = struct{}{}
}

// uniqueSlug derives a slug from title that collides with neither the
// store nor slugs already assigned in this run. Collisions get a numeric
// suffix starting at -1 and counting up.
func uniqueSlug(ctx context.Context, store ContentStore, contentType, title, fallback string, seen slugSet) (string, error) {
	base := SanitizeSlug(title)
	if base == "" {
		base = fallback
	}

	candidate := base
	for suffix := 1; ; suffix++ {
		if !seen.has(candidate) {
			existing, err := store.FindBySlug(ctx, contentType, candidate)
			if err != nil {
				return "", fmt.Errorf("checking slug %q: %w", candidate, err)
			}
			if existing == nil {
				seen.add(candidate)
				return candidate, nil
			}
		}
		candidate = fmt.Sprintf("%s-%d", base, suffix)
	}
}
