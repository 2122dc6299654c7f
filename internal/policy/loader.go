package policy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
)

// profileExtensions are tried in order. JSON is valid YAML, so the same
// decoder reads the legacy policy.json layout.
var profileExtensions = []string{".yaml", ".yml", ".json"}

// FileProfileLoader implements domain.ProfileLoader.
// Files under dir win over built-in profiles, and nothing is cached: every
// Load reads the disk again so edits apply on the next cycle.
type FileProfileLoader struct {
	dir      string
	registry *Registry
}

// NewFileProfileLoader creates a loader reading <dir>/<name>.yaml with the
// default built-in profiles as fallback.
func NewFileProfileLoader(dir string) *FileProfileLoader {
	return &FileProfileLoader{dir: dir, registry: NewRegistry()}
}

// NewFileProfileLoaderWithRegistry creates a loader with a custom fallback registry (for testing).
func NewFileProfileLoaderWithRegistry(dir string, registry *Registry) *FileProfileLoader {
	return &FileProfileLoader{dir: dir, registry: registry}
}

// Dir returns the profile directory.
func (l *FileProfileLoader) Dir() string {
	return l.dir
}

// Load returns the named profile.
func (l *FileProfileLoader) Load(name string) (domain.Profile, error) {
	empty := domain.Profile{Name: name}.Normalized()

	if !validName(name) {
		return empty, fmt.Errorf("profile %q: invalid name: %w", name, domain.ErrConfigMissing)
	}

	if l.dir != "" {
		for _, ext := range profileExtensions {
			path := filepath.Join(l.dir, name+ext)
			data, err := os.ReadFile(path)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					continue
				}
				return empty, fmt.Errorf("profile %q: read %s: %v: %w", name, path, err, domain.ErrConfigMissing)
			}

			var p domain.Profile
			if err := yaml.Unmarshal(data, &p); err != nil {
				return empty, fmt.Errorf("profile %q: parse %s: %v: %w", name, path, err, domain.ErrConfigCorrupt)
			}
			if p.Name == "" {
				p.Name = name
			}
			return p.Normalized(), nil
		}
	}

	if l.registry != nil {
		if p, ok := l.registry.Get(name); ok {
			return p.Normalized(), nil
		}
	}

	return empty, fmt.Errorf("profile %q not found: %w", name, domain.ErrConfigMissing)
}

// List returns sorted names of all available profiles (built-in + files).
func (l *FileProfileLoader) List() []string {
	seen := make(map[string]bool)
	if l.registry != nil {
		for _, name := range l.registry.List() {
			seen[name] = true
		}
	}

	if l.dir != "" {
		entries, err := os.ReadDir(l.dir)
		if err == nil {
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				ext := filepath.Ext(e.Name())
				for _, known := range profileExtensions {
					if ext == known {
						seen[strings.TrimSuffix(e.Name(), ext)] = true
						break
					}
				}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// validName rejects names that would escape the profile directory.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// Ensure FileProfileLoader implements domain.ProfileLoader.
var _ domain.ProfileLoader = (*FileProfileLoader)(nil)
