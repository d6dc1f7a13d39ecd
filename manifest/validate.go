package manifest

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the manifest against the schema rules a plugin host
// relies on:
//
//   - required identity fields are present and the type is a known kind
//   - every config entry key is unique within the manifest
//   - entries carrying an options list have distinct option values, and
//     every option value matches the entry's declared type
//   - entries carrying a range are numeric and the range is min <= max
//   - depends_on references resolve to another entry of the manifest
//   - a default value, when present, matches the declared type
func (m *ProviderManifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("manifest %q: %w", m.Domain, err)
	}
	if m.DependsOn == m.Domain && m.DependsOn != "" {
		return fmt.Errorf("manifest %q: depends_on references itself", m.Domain)
	}

	seen := make(map[string]struct{}, len(m.ConfigEntries))
	for i := range m.ConfigEntries {
		entry := &m.ConfigEntries[i]
		if _, ok := seen[entry.Key]; ok {
			return fmt.Errorf("manifest %q: duplicate config entry key %q", m.Domain, entry.Key)
		}
		seen[entry.Key] = struct{}{}
		if err := entry.validate(); err != nil {
			return fmt.Errorf("manifest %q: entry %q: %w", m.Domain, entry.Key, err)
		}
	}
	for i := range m.ConfigEntries {
		entry := &m.ConfigEntries[i]
		if entry.DependsOn == "" {
			continue
		}
		if entry.DependsOn == entry.Key {
			return fmt.Errorf("manifest %q: entry %q depends on itself", m.Domain, entry.Key)
		}
		if _, ok := seen[entry.DependsOn]; !ok {
			return fmt.Errorf(
				"manifest %q: entry %q depends on unknown entry %q",
				m.Domain, entry.Key, entry.DependsOn,
			)
		}
	}
	return nil
}

func (e *ConfigEntry) validate() error {
	if e.DefaultValue != nil && !matchesType(e.Type, e.DefaultValue) {
		return fmt.Errorf("default value %v does not match type %s", e.DefaultValue, e.Type)
	}

	if len(e.Options) > 0 {
		values := make(map[interface{}]struct{}, len(e.Options))
		for _, opt := range e.Options {
			if !matchesType(e.Type, opt.Value) {
				return fmt.Errorf("option %q value %v does not match type %s", opt.Title, opt.Value, e.Type)
			}
			key := normalize(opt.Value)
			if _, ok := values[key]; ok {
				return fmt.Errorf("duplicate option value %v", opt.Value)
			}
			values[key] = struct{}{}
		}
	}

	if len(e.Range) > 0 {
		if e.Type != EntryTypeInteger && e.Type != EntryTypeFloat {
			return fmt.Errorf("range is only valid on numeric entries, not %s", e.Type)
		}
		if len(e.Range) != 2 {
			return fmt.Errorf("range must be [min, max], got %v", e.Range)
		}
		if e.Range[0] > e.Range[1] {
			return fmt.Errorf("range min %d exceeds max %d", e.Range[0], e.Range[1])
		}
	}

	if e.MultiValue && len(e.Options) == 0 {
		return fmt.Errorf("multi_value requires an options list")
	}
	return nil
}

// matchesType reports whether a decoded scalar fits the entry type.
// JSON numbers arrive as float64 and YAML numbers as int, so numeric
// kinds accept both representations.
func matchesType(t EntryType, v interface{}) bool {
	switch t {
	case EntryTypeString, EntryTypePassword, EntryTypeLabel:
		_, ok := v.(string)
		return ok
	case EntryTypeBoolean:
		_, ok := v.(bool)
		return ok
	case EntryTypeInteger:
		switch n := v.(type) {
		case int, int64:
			return true
		case float64:
			return n == float64(int64(n))
		}
		return false
	case EntryTypeFloat:
		switch v.(type) {
		case int, int64, float64:
			return true
		}
		return false
	}
	return false
}

// normalize folds the numeric representations together so that map keys
// compare values, not decoder artifacts.
func normalize(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		if n == float64(int64(n)) {
			return int64(n)
		}
		return n
	}
	return v
}
