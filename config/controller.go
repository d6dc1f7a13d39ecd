package config

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/micha91/music-assistant-server/manifest"
)

const (
	confProviders = "providers"
	confServerID  = "server_id"
)

// Controller manages provider configurations on top of the persistent
// store and the manifest registry: listing, creating, updating and
// removing configs, with password values encrypted at rest.
type Controller struct {
	store    *Store
	registry *manifest.Registry
	cipher   *cipher
	serverID string

	// OnUpdated, when set, is called after a provider config is created
	// or changed. OnRemoved is called after a config is removed.
	OnUpdated func(*ProviderConfig)
	OnRemoved func(instanceID string)
}

// NewController creates a controller and loads the persistent store. A
// server ID is created on first start and doubles as the encryption key
// source for stored passwords.
func NewController(store *Store, registry *manifest.Registry) (*Controller, error) {
	if err := store.Load(); err != nil {
		return nil, err
	}
	serverID, _ := store.SetDefault(confServerID, uuid.NewString()).(string)
	if serverID == "" {
		return nil, fmt.Errorf("invalid server_id in storage")
	}
	return &Controller{
		store:    store,
		registry: registry,
		cipher:   newCipher(serverID),
		serverID: serverID,
	}, nil
}

// ServerID returns the unique ID of this server install.
func (c *Controller) ServerID() string {
	return c.serverID
}

// Close flushes pending writes.
func (c *Controller) Close() error {
	return c.store.Close()
}

// ProviderConfigs returns all stored provider configurations, optionally
// filtered by provider type and/or domain. Pass zero values to skip a
// filter.
func (c *Controller) ProviderConfigs(
	providerType manifest.ProviderType,
	domain string,
) ([]*ProviderConfig, error) {
	raw, _ := c.store.Get(confProviders, map[string]interface{}{}).(map[string]interface{})
	instanceIDs := make([]string, 0, len(raw))
	for instanceID := range raw {
		instanceIDs = append(instanceIDs, instanceID)
	}
	sort.Strings(instanceIDs)

	result := make([]*ProviderConfig, 0, len(raw))
	for _, instanceID := range instanceIDs {
		rawConf, ok := raw[instanceID].(map[string]interface{})
		if !ok {
			continue
		}
		if providerType != "" && rawConf["type"] != string(providerType) {
			continue
		}
		if domain != "" && rawConf["domain"] != domain {
			continue
		}
		conf, err := c.parseRaw(rawConf)
		if err != nil {
			logrus.WithError(err).Errorf("skipping invalid provider config %s", instanceID)
			continue
		}
		result = append(result, conf)
	}
	return result, nil
}

// ProviderConfig returns the configuration for a single provider instance.
func (c *Controller) ProviderConfig(instanceID string) (*ProviderConfig, error) {
	rawConf, ok := c.store.Get(confProviders+"/"+instanceID, nil).(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("no config found for provider instance %q", instanceID)
	}
	return c.parseRaw(rawConf)
}

func (c *Controller) parseRaw(rawConf map[string]interface{}) (*ProviderConfig, error) {
	domain, _ := rawConf["domain"].(string)
	m, ok := c.registry.Get(domain)
	if !ok {
		return nil, fmt.Errorf("no manifest available for domain %q", domain)
	}
	conf, err := ParseProviderConfig(m.ConfigEntries, rawConf, true)
	if err != nil {
		return nil, err
	}
	conf.decrypt = c.cipher.Decrypt
	return conf, nil
}

// SetProviderConfig creates or updates a provider configuration. Values
// are validated against the manifest entries and password values are
// encrypted before they hit the store.
func (c *Controller) SetProviderConfig(conf *ProviderConfig) error {
	m, ok := c.registry.Get(conf.Domain)
	if !ok {
		return fmt.Errorf("no manifest available for domain %q", conf.Domain)
	}
	if conf.InstanceID == "" {
		return fmt.Errorf("provider config is missing an instance_id")
	}
	// re-validate the values against the manifest entries
	validated, err := ParseProviderConfig(m.ConfigEntries, conf.ToRaw(), false)
	if err != nil {
		return err
	}
	for key, entryValue := range validated.Values {
		if entryValue.Type != manifest.EntryTypePassword {
			continue
		}
		plain, ok := entryValue.Value.(string)
		if !ok {
			continue
		}
		encrypted, err := c.cipher.Encrypt(plain)
		if err != nil {
			return err
		}
		validated.Values[key].Value = encrypted
	}
	validated.Type = m.Type
	validated.decrypt = c.cipher.Decrypt

	key := confProviders + "/" + conf.InstanceID
	newRaw := validated.ToRaw()
	if existing, ok := c.store.Get(key, nil).(map[string]interface{}); ok {
		if equalRaw(existing, newRaw) {
			return nil
		}
	}
	c.store.Set(key, newRaw)
	if c.OnUpdated != nil {
		c.OnUpdated(validated)
	}
	return nil
}

// CreateDefault builds a fresh (unsaved) config for the given provider
// domain, allocating the next free instance ID. The first instance uses
// the bare domain; further instances get a numeric suffix, which is only
// allowed when the manifest declares multi_instance.
func (c *Controller) CreateDefault(domain string) (*ProviderConfig, error) {
	m, ok := c.registry.Get(domain)
	if !ok {
		return nil, fmt.Errorf("unknown provider domain %q", domain)
	}
	existing, err := c.ProviderConfigs("", domain)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 && !m.MultiInstance {
		return nil, fmt.Errorf("provider %s does not support multiple instances", m.Name)
	}

	instanceID := domain
	name := m.Name
	if count := len(existing); count > 0 {
		instanceID = fmt.Sprintf("%s%d", domain, count+1)
		name = fmt.Sprintf("%s %d", m.Name, count+1)
	}

	conf, err := ParseProviderConfig(m.ConfigEntries, map[string]interface{}{
		"type":        string(m.Type),
		"domain":      m.Domain,
		"instance_id": instanceID,
		"name":        name,
		"values":      map[string]interface{}{},
	}, true)
	if err != nil {
		return nil, err
	}
	conf.decrypt = c.cipher.Decrypt
	return conf, nil
}

// RemoveProviderConfig deletes the configuration for a provider instance.
func (c *Controller) RemoveProviderConfig(instanceID string) error {
	key := confProviders + "/" + instanceID
	if _, ok := c.store.Get(key, nil).(map[string]interface{}); !ok {
		return fmt.Errorf("provider instance %q does not exist", instanceID)
	}
	c.store.Remove(key)
	if c.OnRemoved != nil {
		c.OnRemoved(instanceID)
	}
	return nil
}

// equalRaw compares two raw config maps without tripping over numeric
// types, which differ between freshly built maps and JSON round-trips.
func equalRaw(a, b map[string]interface{}) bool {
	return fmt.Sprint(normalizeRaw(a)) == fmt.Sprint(normalizeRaw(b))
}

func normalizeRaw(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := m[k].(type) {
		case map[string]interface{}:
			out[k] = normalizeRaw(v)
		case float64:
			if v == float64(int64(v)) {
				out[k] = int64(v)
			} else {
				out[k] = v
			}
		case int:
			out[k] = int64(v)
		default:
			out[k] = v
		}
	}
	return out
}
