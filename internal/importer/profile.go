package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Profile is a named, saved import configuration.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Config    Config    `json:"config"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used,omitempty"`
	UseCount  int       `json:"use_count"`
}

// ErrProfileNotFound is returned when a profile id resolves to nothing.
var ErrProfileNotFound = errors.New("profile not found")

// ProfileManager stores named configurations under import.profiles.<id>.
// Applying a profile makes it the active configuration and bumps its
// usage counters.
type ProfileManager struct {
	kv  KV
	now func() time.Time
}

// NewProfileManager builds a manager over kv.
func NewProfileManager(kv KV) *ProfileManager {
	return &ProfileManager{kv: kv, now: time.Now}
}

// Save stores cfg under a profile named name. The id is derived from the
// name; saving an existing id overwrites the config but keeps usage
// counters.
func (m *ProfileManager) Save(ctx context.Context, name string, cfg Config) (*Profile, error) {
	id := SanitizeSlug(name)
	if id == "" {
		return nil, fmt.Errorf("profile name %q produces an empty id", name)
	}

	profile := Profile{
		ID:        id,
		Name:      name,
		Config:    cfg,
		CreatedAt: m.now(),
	}
	if existing, err := m.Get(ctx, id); err == nil {
		profile.CreatedAt = existing.CreatedAt
		profile.LastUsed = existing.LastUsed
		profile.UseCount = existing.UseCount
	}

	if err := m.write(ctx, profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Get loads one profile by id.
func (m *ProfileManager) Get(ctx context.Context, id string) (*Profile, error) {
	raw, err := m.kv.Get(ctx, KeyProfilePrefix+id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
		}
		return nil, fmt.Errorf("reading profile %s: %w", id, err)
	}

	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decoding profile %s: %w", id, err)
	}
	return &p, nil
}

// List returns all profiles sorted by name.
func (m *ProfileManager) List(ctx context.Context) ([]Profile, error) {
	entries, err := m.kv.List(ctx, KeyProfilePrefix)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}

	profiles := make([]Profile, 0, len(entries))
	for key, raw := range entries {
		var p Profile
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decoding profile at %s: %w", key, err)
		}
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

// Apply makes the profile's config the active import configuration and
// records the use.
func (m *ProfileManager) Apply(ctx context.Context, id string) (*Config, error) {
	profile, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(profile.Config)
	if err != nil {
		return nil, fmt.Errorf("encoding config from profile %s: %w", id, err)
	}
	if err := m.kv.Set(ctx, KeyConfig, raw); err != nil {
		return nil, fmt.Errorf("activating profile %s: %w", id, err)
	}

	profile.UseCount++
	profile.LastUsed = m.now()
	if err := m.write(ctx, *profile); err != nil {
		return nil, err
	}

	cfg := profile.Config
	return &cfg, nil
}

// Delete removes a profile.
func (m *ProfileManager) Delete(ctx context.Context, id string) error {
	if _, err := m.Get(ctx, id); err != nil {
		return err
	}
	if err := m.kv.Delete(ctx, KeyProfilePrefix+id); err != nil {
		return fmt.Errorf("deleting profile %s: %w", id, err)
	}
	return nil
}

func (m *ProfileManager) write(ctx context.Context, p Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding profile %s: %w", p.ID, err)
	}
	if err := m.kv.Set(ctx, KeyProfilePrefix+p.ID, raw); err != nil {
		return fmt.Errorf("writing profile %s: %w", p.ID, err)
	}
	return nil
}
