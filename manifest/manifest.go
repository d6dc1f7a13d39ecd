package manifest

import (
	"encoding/json"
	"fmt"
	"os"
)

// ProviderType classifies what kind of provider a manifest describes.
type ProviderType string

const (
	ProviderTypeMusic    ProviderType = "music"
	ProviderTypePlayer   ProviderType = "player"
	ProviderTypeMetadata ProviderType = "metadata"
	ProviderTypePlugin   ProviderType = "plugin"
)

// EntryType is the value type of a single config entry.
type EntryType string

const (
	EntryTypeString   EntryType = "string"
	EntryTypePassword EntryType = "password"
	EntryTypeBoolean  EntryType = "boolean"
	EntryTypeInteger  EntryType = "integer"
	EntryTypeFloat    EntryType = "float"
	EntryTypeLabel    EntryType = "label"
)

// ValueOption is a single selectable option for an enumerated config entry,
// with a human readable title separated from the stored value.
type ValueOption struct {
	Title string      `json:"title" yaml:"title" validate:"required"`
	Value interface{} `json:"value" yaml:"value"`
}

// ConfigEntry describes one named, typed configuration field exposed to a
// configuration UI, without its value. The key doubles as the identifier
// used for localization and persistent storage.
type ConfigEntry struct {
	Key   string    `json:"key" yaml:"key" validate:"required"`
	Type  EntryType `json:"type" yaml:"type" validate:"required,oneof=string password boolean integer float label"`
	Label string    `json:"label" yaml:"label" validate:"required"`

	// DefaultValue is used when no value is stored for the entry.
	DefaultValue interface{} `json:"default_value,omitempty" yaml:"default_value,omitempty"`
	// Required defaults to true when omitted: entries without an explicit
	// "required": false are mandatory.
	Required *bool `json:"required,omitempty" yaml:"required,omitempty"`
	// Options restricts the value to an enumerated list.
	Options []ValueOption `json:"options,omitempty" yaml:"options,omitempty"`
	// Range restricts a numeric value to [min, max].
	Range []int `json:"range,omitempty" yaml:"range,omitempty"`

	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	HelpLink    string `json:"help_link,omitempty" yaml:"help_link,omitempty"`
	// MultiValue allows selecting multiple values from the options list.
	MultiValue bool `json:"multi_value,omitempty" yaml:"multi_value,omitempty"`
	// DependsOn names another entry that must be set before this one
	// shows up in the frontend.
	DependsOn string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	// Hidden entries are stored but never rendered.
	Hidden bool `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	// Advanced entries are tucked away behind an "advanced" toggle.
	Advanced bool `json:"advanced,omitempty" yaml:"advanced,omitempty"`
}

// IsRequired reports whether a value must be present for this entry.
func (e *ConfigEntry) IsRequired() bool {
	return e.Required == nil || *e.Required
}

// ProviderManifest describes a provider: its identity, the config entries
// needed to set it up and how the host should load it. Manifests are pure
// value records: loaded once, read-only thereafter.
type ProviderManifest struct {
	Type        ProviderType `json:"type" yaml:"type" validate:"required,oneof=music player metadata plugin"`
	Domain      string       `json:"domain" yaml:"domain" validate:"required"`
	Name        string       `json:"name" yaml:"name" validate:"required"`
	Description string       `json:"description" yaml:"description"`
	CodeOwners  []string     `json:"codeowners" yaml:"codeowners"`

	// ConfigEntries lists the config entries required to set up this provider.
	ConfigEntries []ConfigEntry `json:"config_entries,omitempty" yaml:"config_entries,omitempty" validate:"dive"`
	// Requirements lists external packages the provider needs at runtime.
	Requirements []string `json:"requirements,omitempty" yaml:"requirements,omitempty"`
	// Documentation is a link to a help article for this provider.
	Documentation string `json:"documentation,omitempty" yaml:"documentation,omitempty"`
	// InitClass names the implementation to instantiate for this provider.
	// Implementations register themselves under this name with the host.
	InitClass string `json:"init_class,omitempty" yaml:"init_class,omitempty"`
	// MultiInstance allows multiple configured instances of the provider.
	MultiInstance bool `json:"multi_instance,omitempty" yaml:"multi_instance,omitempty"`
	// Builtin providers are part of the host and can not be removed.
	Builtin bool `json:"builtin,omitempty" yaml:"builtin,omitempty"`
	// LoadByDefault providers get a default config created on first start.
	LoadByDefault bool `json:"load_by_default,omitempty" yaml:"load_by_default,omitempty"`
	// DependsOn names another provider domain that must be loaded first.
	DependsOn string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// ConfigEntry returns the config entry with the given key, or nil when the
// manifest does not declare it.
func (m *ProviderManifest) ConfigEntry(key string) *ConfigEntry {
	for i := range m.ConfigEntries {
		if m.ConfigEntries[i].Key == key {
			return &m.ConfigEntries[i]
		}
	}
	return nil
}

// Parse decodes and validates a single manifest.json document.
func Parse(data []byte) (*ProviderManifest, error) {
	var m ProviderManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// ParseFile decodes and validates a manifest.json file on disk.
func ParseFile(path string) (*ProviderManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
