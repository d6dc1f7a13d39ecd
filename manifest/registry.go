package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Registry holds the set of available provider manifests, keyed by domain.
type Registry struct {
	sync.RWMutex
	manifests map[string]*ProviderManifest
}

// NewRegistry creates an empty manifest registry.
func NewRegistry() *Registry {
	return &Registry{manifests: make(map[string]*ProviderManifest)}
}

// Add validates the manifest and registers it. Registering a domain twice
// is an error: manifests are loaded once and read-only thereafter.
func (r *Registry) Add(m *ProviderManifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	r.Lock()
	defer r.Unlock()
	if _, ok := r.manifests[m.Domain]; ok {
		return fmt.Errorf("manifest for domain %q already registered", m.Domain)
	}
	r.manifests[m.Domain] = m
	return nil
}

// Get returns the manifest for the given provider domain.
func (r *Registry) Get(domain string) (*ProviderManifest, bool) {
	r.RLock()
	defer r.RUnlock()
	m, ok := r.manifests[domain]
	return m, ok
}

// All returns all registered manifests, sorted by domain for stable output.
func (r *Registry) All() []*ProviderManifest {
	r.RLock()
	defer r.RUnlock()
	result := make([]*ProviderManifest, 0, len(r.manifests))
	for _, m := range r.manifests {
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Domain < result[j].Domain })
	return result
}

// LoadDir scans a providers directory for <domain>/manifest.json files and
// registers every manifest it finds. A broken manifest is logged and
// skipped so one bad provider does not take the whole host down.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, dirEntry := range entries {
		if !dirEntry.IsDir() {
			continue
		}
		path := filepath.Join(dir, dirEntry.Name(), "manifest.json")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		m, err := ParseFile(path)
		if err != nil {
			logrus.WithError(err).Errorf("error loading manifest for provider %s", dirEntry.Name())
			continue
		}
		if err := r.Add(m); err != nil {
			logrus.WithError(err).Errorf("error registering manifest for provider %s", dirEntry.Name())
			continue
		}
		logrus.Debugf("loaded manifest for provider %s", m.Domain)
	}
	return nil
}

// LoadBundle registers every manifest from a bundle document: a single
// YAML (or JSON) mapping of provider domain to manifest body, as served
// by a source repository.
func (r *Registry) LoadBundle(raw []byte) error {
	var bundle map[string]*ProviderManifest
	if err := yaml.Unmarshal(raw, &bundle); err != nil {
		return fmt.Errorf("invalid manifest bundle: %w", err)
	}
	domains := make([]string, 0, len(bundle))
	for domain := range bundle {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	for _, domain := range domains {
		m := bundle[domain]
		if m == nil {
			return fmt.Errorf("manifest bundle: empty entry for domain %q", domain)
		}
		if m.Domain == "" {
			m.Domain = domain
		}
		if m.Domain != domain {
			return fmt.Errorf(
				"manifest bundle: entry %q declares mismatching domain %q", domain, m.Domain,
			)
		}
		if err := r.Add(m); err != nil {
			return err
		}
	}
	return nil
}
