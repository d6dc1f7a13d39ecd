package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/micha91/music-assistant-server/config"
	"github.com/micha91/music-assistant-server/manifest"
)

// Instance is a provider instance managed by the host, together with its
// availability bookkeeping. A failed setup leaves the instance in place
// with Available false and LastError set, so callers can surface the
// failure instead of silently missing a provider.
type Instance struct {
	InstanceID string
	Provider   Provider
	Available  bool
	LastError  string
}

// Host loads and unloads provider instances from their stored
// configurations and keeps them in sync with configuration changes.
type Host struct {
	registry *manifest.Registry
	cfg      *config.Controller

	// OnChange is invoked after the set of loaded instances changed.
	OnChange func()

	mu        sync.RWMutex
	instances map[string]*Instance
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewHost creates a Host and hooks it into the config controller, so
// saved or removed provider configs immediately reload or unload the
// matching instance.
func NewHost(registry *manifest.Registry, controller *config.Controller) *Host {
	h := &Host{
		registry:  registry,
		cfg:       controller,
		instances: make(map[string]*Instance),
	}
	controller.OnUpdated = func(conf *config.ProviderConfig) {
		h.reload(conf)
	}
	controller.OnRemoved = func(instanceID string) {
		h.unload(instanceID)
	}
	return h
}

// Start creates default configurations for load_by_default providers
// that have none yet, then loads every enabled provider instance.
// Providers that depend on another provider load in a second pass, after
// their dependency had a chance to come up.
func (h *Host) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.ctx = ctx
	h.cancel = cancel
	h.mu.Unlock()

	for _, m := range h.registry.All() {
		if !m.LoadByDefault {
			continue
		}
		existing, err := h.cfg.ProviderConfigs("", m.Domain)
		if err != nil || len(existing) > 0 {
			continue
		}
		conf, err := h.cfg.CreateDefault(m.Domain)
		if err != nil {
			logrus.WithError(err).Errorf("error creating default config for provider %s", m.Domain)
			continue
		}
		if err := h.cfg.SetProviderConfig(conf); err != nil {
			logrus.WithError(err).Errorf("error saving default config for provider %s", m.Domain)
		}
	}

	configs, err := h.cfg.ProviderConfigs("", "")
	if err != nil {
		return err
	}
	var deferred []*config.ProviderConfig
	for _, conf := range configs {
		if m, ok := h.registry.Get(conf.Domain); ok && m.DependsOn != "" {
			deferred = append(deferred, conf)
			continue
		}
		h.load(conf)
	}
	for _, conf := range deferred {
		h.load(conf)
	}
	return nil
}

// Stop unloads every instance and cancels the host context.
func (h *Host) Stop() {
	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	instanceIDs := make([]string, 0, len(h.instances))
	for instanceID := range h.instances {
		instanceIDs = append(instanceIDs, instanceID)
	}
	h.mu.Unlock()

	for _, instanceID := range instanceIDs {
		h.unload(instanceID)
	}
}

// Get returns the instance with the given instance ID.
func (h *Host) Get(instanceID string) (*Instance, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	instance, ok := h.instances[instanceID]
	return instance, ok
}

// Instances returns all managed instances, sorted by instance ID.
func (h *Host) Instances() []*Instance {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make([]*Instance, 0, len(h.instances))
	for _, instance := range h.instances {
		result = append(result, instance)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].InstanceID < result[j].InstanceID })
	return result
}

func (h *Host) load(conf *config.ProviderConfig) {
	log := logrus.WithField("instance", conf.InstanceID)

	if !conf.Enabled {
		log.Debug("provider is disabled, skipping")
		return
	}

	m, ok := h.registry.Get(conf.Domain)
	if !ok {
		h.setFailed(conf.InstanceID, fmt.Sprintf("no manifest available for domain %q", conf.Domain))
		return
	}
	if !m.MultiInstance && h.domainLoadedByOther(conf.Domain, conf.InstanceID) {
		h.setFailed(conf.InstanceID, fmt.Sprintf("provider %s does not support multiple instances", conf.Domain))
		return
	}
	if m.DependsOn != "" && !h.domainLoaded(m.DependsOn) {
		h.setFailed(conf.InstanceID, fmt.Sprintf("dependency %q is not loaded", m.DependsOn))
		return
	}

	factory, ok := factoryFor(m.InitClass)
	if !ok {
		h.setFailed(conf.InstanceID, fmt.Sprintf("no provider factory registered for %q", m.InitClass))
		return
	}
	provider, err := factory(m, conf)
	if err != nil {
		h.setFailed(conf.InstanceID, err.Error())
		return
	}

	h.mu.RLock()
	ctx := h.ctx
	h.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}

	instance := &Instance{InstanceID: conf.InstanceID, Provider: provider, Available: true}
	if err := provider.Setup(ctx); err != nil {
		log.WithError(err).Error("error setting up provider")
		instance.Available = false
		instance.LastError = err.Error()
	} else {
		log.Info("provider loaded")
	}

	h.mu.Lock()
	h.instances[conf.InstanceID] = instance
	h.mu.Unlock()
	h.notifyChange()
}

func (h *Host) unload(instanceID string) {
	h.mu.Lock()
	instance, ok := h.instances[instanceID]
	delete(h.instances, instanceID)
	h.mu.Unlock()
	if !ok {
		return
	}
	if instance.Provider != nil {
		if err := instance.Provider.Close(); err != nil {
			logrus.WithError(err).Errorf("error closing provider %s", instanceID)
		}
	}
	logrus.WithField("instance", instanceID).Info("provider unloaded")
	h.notifyChange()
}

// reload is invoked by the config controller after a config save. A
// disabled config unloads the instance, anything else replaces it.
func (h *Host) reload(conf *config.ProviderConfig) {
	h.unload(conf.InstanceID)
	if conf.Enabled {
		h.load(conf)
	}
}

func (h *Host) setFailed(instanceID, message string) {
	logrus.WithField("instance", instanceID).Error(message)
	h.mu.Lock()
	h.instances[instanceID] = &Instance{InstanceID: instanceID, LastError: message}
	h.mu.Unlock()
	h.notifyChange()
}

func (h *Host) domainLoaded(domain string) bool {
	return h.domainLoadedByOther(domain, "")
}

func (h *Host) domainLoadedByOther(domain, excludeInstanceID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for instanceID, instance := range h.instances {
		if instanceID == excludeInstanceID || instance.Provider == nil {
			continue
		}
		if instance.Provider.Manifest().Domain == domain && instance.Available {
			return true
		}
	}
	return false
}

func (h *Host) notifyChange() {
	if h.OnChange != nil {
		h.OnChange()
	}
}
