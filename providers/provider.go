package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/micha91/music-assistant-server/config"
	"github.com/micha91/music-assistant-server/manifest"
)

// Provider is a running provider instance. Setup brings the instance up
// (validating its configuration at minimum), Close releases whatever
// Setup acquired.
type Provider interface {
	Setup(ctx context.Context) error
	Close() error
	Manifest() *manifest.ProviderManifest
	Config() *config.ProviderConfig
}

// FactoryFunc builds a provider instance from its manifest and
// configuration.
type FactoryFunc func(m *manifest.ProviderManifest, conf *config.ProviderConfig) (Provider, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]FactoryFunc)
)

// RegisterFactory registers a provider factory under the init_class name
// its manifest declares. Provider packages call this from init, so
// importing a provider package is what makes it loadable.
func RegisterFactory(initClass string, factory FactoryFunc) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, ok := factories[initClass]; ok {
		panic(fmt.Sprintf("provider factory %q registered twice", initClass))
	}
	factories[initClass] = factory
}

func factoryFor(initClass string) (FactoryFunc, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	factory, ok := factories[initClass]
	return factory, ok
}
