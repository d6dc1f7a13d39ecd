package config

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/micha91/music-assistant-server/manifest"
)

// EntryValue is a config entry together with its parsed value.
type EntryValue struct {
	manifest.ConfigEntry
	Value interface{} `json:"value"`
}

// ParseValue combines a config entry with a raw stored value, coercing the
// value to the entry's declared type. A nil raw value falls back to the
// entry default; optional entries may end up with a nil value. When
// allowNil is set a required entry without a value is accepted too, which
// is used when creating a fresh default config that the user still has to
// fill in.
func ParseValue(entry *manifest.ConfigEntry, raw interface{}, allowNil bool) (*EntryValue, error) {
	result := &EntryValue{ConfigEntry: *entry, Value: raw}
	if result.Value == nil {
		result.Value = entry.DefaultValue
	}
	if entry.Type == manifest.EntryTypeLabel {
		result.Value = entry.Label
		return result, nil
	}
	if result.Value == nil {
		if !entry.IsRequired() || allowNil {
			return result, nil
		}
		return nil, fmt.Errorf("%s: no value provided for required entry", entry.Key)
	}

	coerced, ok := coerce(entry.Type, result.Value)
	if !ok {
		if entry.DefaultValue != nil {
			logrus.Warnf("%s has unexpected type %T, falling back to default", entry.Key, result.Value)
			result.Value, _ = coerce(entry.Type, entry.DefaultValue)
			return result, nil
		}
		return nil, fmt.Errorf("%s has unexpected type %T", entry.Key, result.Value)
	}
	result.Value = coerced

	if err := checkConstraints(entry, result.Value); err != nil {
		return nil, err
	}
	return result, nil
}

// coerce converts a raw decoded scalar to the canonical representation for
// the entry type. JSON decodes every number as float64 and YAML as int, so
// both are folded to int64 for integer entries and float64 for floats.
func coerce(t manifest.EntryType, v interface{}) (interface{}, bool) {
	switch t {
	case manifest.EntryTypeString, manifest.EntryTypePassword, manifest.EntryTypeLabel:
		s, ok := v.(string)
		return s, ok
	case manifest.EntryTypeBoolean:
		b, ok := v.(bool)
		return b, ok
	case manifest.EntryTypeInteger:
		switch n := v.(type) {
		case int:
			return int64(n), true
		case int64:
			return n, true
		case float64:
			if n == float64(int64(n)) {
				return int64(n), true
			}
		}
		return nil, false
	case manifest.EntryTypeFloat:
		switch n := v.(type) {
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		case float64:
			return n, true
		}
		return nil, false
	}
	return nil, false
}

func checkConstraints(entry *manifest.ConfigEntry, value interface{}) error {
	if len(entry.Options) > 0 && !entry.MultiValue {
		for _, opt := range entry.Options {
			optValue, _ := coerce(entry.Type, opt.Value)
			if optValue == value {
				return nil
			}
		}
		return fmt.Errorf("%s: value %v is not one of the allowed options", entry.Key, value)
	}
	if len(entry.Range) == 2 {
		var n float64
		switch v := value.(type) {
		case int64:
			n = float64(v)
		case float64:
			n = v
		}
		if n < float64(entry.Range[0]) || n > float64(entry.Range[1]) {
			return fmt.Errorf("%s: value %v outside range [%d, %d]",
				entry.Key, value, entry.Range[0], entry.Range[1])
		}
	}
	return nil
}

// ProviderConfig is the stored configuration for one provider instance.
type ProviderConfig struct {
	Type       manifest.ProviderType  `json:"type"`
	Domain     string                 `json:"domain"`
	InstanceID string                 `json:"instance_id"`
	Enabled    bool                   `json:"enabled"`
	Name       string                 `json:"name,omitempty"`
	Values     map[string]*EntryValue `json:"values"`

	decrypt func(string) (string, error)
}

// ParseProviderConfig builds a ProviderConfig from the raw stored map and
// the manifest's config entries.
func ParseProviderConfig(
	entries []manifest.ConfigEntry,
	raw map[string]interface{},
	allowNil bool,
) (*ProviderConfig, error) {
	conf := &ProviderConfig{Enabled: true, Values: make(map[string]*EntryValue, len(entries))}
	if v, ok := raw["type"].(string); ok {
		conf.Type = manifest.ProviderType(v)
	}
	if v, ok := raw["domain"].(string); ok {
		conf.Domain = v
	}
	if v, ok := raw["instance_id"].(string); ok {
		conf.InstanceID = v
	}
	if v, ok := raw["enabled"].(bool); ok {
		conf.Enabled = v
	}
	if v, ok := raw["name"].(string); ok {
		conf.Name = v
	}

	rawValues, _ := raw["values"].(map[string]interface{})
	for i := range entries {
		entry := &entries[i]
		value, err := ParseValue(entry, rawValues[entry.Key], allowNil)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", conf.Domain, err)
		}
		conf.Values[entry.Key] = value
	}
	return conf, nil
}

// GetValue returns the parsed value for the given entry key, decrypting
// password entries when a decrypt callback is attached.
func (c *ProviderConfig) GetValue(key string) (interface{}, error) {
	entryValue, ok := c.Values[key]
	if !ok {
		return nil, fmt.Errorf("unknown config entry %q", key)
	}
	if entryValue.Type == manifest.EntryTypePassword && c.decrypt != nil {
		if s, ok := entryValue.Value.(string); ok {
			return c.decrypt(s)
		}
	}
	return entryValue.Value, nil
}

// ToRaw returns the minimized map to persist: only values that differ from
// the entry default are stored.
func (c *ProviderConfig) ToRaw() map[string]interface{} {
	values := make(map[string]interface{})
	for key, entryValue := range c.Values {
		if entryValue.Value == nil {
			continue
		}
		if def, ok := coerce(entryValue.Type, entryValue.DefaultValue); ok && def == entryValue.Value {
			continue
		}
		values[key] = entryValue.Value
	}
	raw := map[string]interface{}{
		"type":        string(c.Type),
		"domain":      c.Domain,
		"instance_id": c.InstanceID,
		"enabled":     c.Enabled,
		"values":      values,
	}
	if c.Name != "" {
		raw["name"] = c.Name
	}
	return raw
}
