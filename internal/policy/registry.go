package policy

import (
	"sort"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
)

// Registry holds the built-in profiles that ship with the binary.
// Profile files on disk take precedence over these.
type Registry struct {
	profiles map[string]domain.Profile
}

// NewRegistry creates a registry with all default profiles.
func NewRegistry() *Registry {
	return NewRegistryWithProfiles(StrictProfile(), CodingProfile(), StudyProfile())
}

// NewRegistryWithProfiles creates a registry with custom profiles (for testing).
func NewRegistryWithProfiles(profiles ...domain.Profile) *Registry {
	r := &Registry{
		profiles: make(map[string]domain.Profile),
	}
	for _, p := range profiles {
		r.Register(p)
	}
	return r
}

// Register adds a profile to the registry.
func (r *Registry) Register(p domain.Profile) {
	r.profiles[p.Name] = p
}

// Get returns a profile by name.
func (r *Registry) Get(name string) (domain.Profile, bool) {
	p, ok := r.profiles[name]
	return p, ok
}

// List returns all profile names, sorted.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
