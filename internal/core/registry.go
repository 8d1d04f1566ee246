package core

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the profiles an ingest process knows about.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewRegistry returns a registry holding the given profiles.
func NewRegistry(profiles ...Profile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]Profile)}
	for _, p := range profiles {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a profile. Invalid profiles and duplicate names are rejected.
func (r *Registry) Register(p Profile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("profile %q: %w", p.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.profiles == nil {
		r.profiles = make(map[string]Profile)
	}
	if _, exists := r.profiles[p.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProfile, p.Name)
	}
	r.profiles[p.Name] = p
	return nil
}

// Get returns a profile by name.
func (r *Registry) Get(name string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return p, nil
}

// All returns every registered profile sorted by name.
func (r *Registry) All() []Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Match returns the profile that admits an object path. When several do,
// the longest InputPrefix wins, then the name sorting first.
func (r *Registry) Match(path string) (Profile, bool) {
	var (
		best  Profile
		found bool
	)
	for _, p := range r.All() {
		if !p.Admits(path) {
			continue
		}
		if !found || len(p.InputPrefix) > len(best.InputPrefix) {
			best, found = p, true
		}
	}
	return best, found
}
