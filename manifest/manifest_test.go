package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

const smbManifest = `{
  "type": "music",
  "domain": "filesystem_smb",
  "name": "SMB/CIFS filesystem",
  "description": "Support for music files on a network share",
  "codeowners": ["@music-assistant"],
  "config_entries": [
    {"key": "path", "type": "string", "label": "Path"},
    {"key": "username", "type": "string", "label": "Username"},
    {"key": "password", "type": "password", "label": "Password"},
    {"key": "target_ip", "type": "string", "label": "Target IP", "required": false, "advanced": true},
    {
      "key": "sign_options",
      "type": "integer",
      "label": "Signing options",
      "default_value": 2,
      "advanced": true,
      "options": [
        {"title": "Signing disabled", "value": 0},
        {"title": "Sign when required", "value": 1},
        {"title": "Sign always", "value": 2}
      ]
    },
    {"key": "direct_tcp", "type": "boolean", "label": "Use Direct-TCP", "default_value": false, "advanced": true}
  ],
  "requirements": ["smbprotocol"],
  "documentation": "https://example.org/docs/smb",
  "init_class": "SMBFileSystemProvider",
  "multi_instance": true
}`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(smbManifest))
	if err != nil {
		t.Fatal(err)
	}
	if m.Domain != "filesystem_smb" {
		t.Errorf("expected domain %q, got %q", "filesystem_smb", m.Domain)
	}
	if m.Type != ProviderTypeMusic {
		t.Errorf("expected type %q, got %q", ProviderTypeMusic, m.Type)
	}
	if !m.MultiInstance {
		t.Error("expected multi_instance to be true")
	}
	if m.InitClass != "SMBFileSystemProvider" {
		t.Errorf("unexpected init_class %q", m.InitClass)
	}
	if len(m.ConfigEntries) != 6 {
		t.Fatalf("expected 6 config entries, got %d", len(m.ConfigEntries))
	}

	// entries without "required": false are implicitly mandatory
	if !m.ConfigEntries[0].IsRequired() {
		t.Error("path should be required")
	}
	if m.ConfigEntries[3].IsRequired() {
		t.Error("target_ip should be optional")
	}

	entry := m.ConfigEntry("sign_options")
	if entry == nil {
		t.Fatal("sign_options entry not found")
	}
	if len(entry.Options) != 3 {
		t.Errorf("expected 3 options, got %d", len(entry.Options))
	}
	if m.ConfigEntry("nope") != nil {
		t.Error("lookup of unknown key should return nil")
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{
			name: "missing domain",
			json: `{"type": "music", "name": "x"}`,
		},
		{
			name: "unknown provider type",
			json: `{"type": "widget", "domain": "x", "name": "x"}`,
		},
		{
			name: "unknown entry type",
			json: `{"type": "music", "domain": "x", "name": "x",
				"config_entries": [{"key": "a", "type": "blob", "label": "a"}]}`,
		},
		{
			name: "duplicate entry keys",
			json: `{"type": "music", "domain": "x", "name": "x",
				"config_entries": [
					{"key": "a", "type": "string", "label": "a"},
					{"key": "a", "type": "string", "label": "b"}]}`,
		},
		{
			name: "duplicate option values",
			json: `{"type": "music", "domain": "x", "name": "x",
				"config_entries": [{"key": "a", "type": "integer", "label": "a",
					"options": [
						{"title": "one", "value": 1},
						{"title": "uno", "value": 1}]}]}`,
		},
		{
			name: "option value type mismatch",
			json: `{"type": "music", "domain": "x", "name": "x",
				"config_entries": [{"key": "a", "type": "integer", "label": "a",
					"options": [{"title": "one", "value": "1"}]}]}`,
		},
		{
			name: "default value type mismatch",
			json: `{"type": "music", "domain": "x", "name": "x",
				"config_entries": [{"key": "a", "type": "boolean", "label": "a",
					"default_value": "yes"}]}`,
		},
		{
			name: "non integral default for integer",
			json: `{"type": "music", "domain": "x", "name": "x",
				"config_entries": [{"key": "a", "type": "integer", "label": "a",
					"default_value": 1.5}]}`,
		},
		{
			name: "range on string entry",
			json: `{"type": "music", "domain": "x", "name": "x",
				"config_entries": [{"key": "a", "type": "string", "label": "a",
					"range": [0, 10]}]}`,
		},
		{
			name: "inverted range",
			json: `{"type": "music", "domain": "x", "name": "x",
				"config_entries": [{"key": "a", "type": "integer", "label": "a",
					"range": [10, 0]}]}`,
		},
		{
			name: "depends_on unknown entry",
			json: `{"type": "music", "domain": "x", "name": "x",
				"config_entries": [{"key": "a", "type": "string", "label": "a",
					"depends_on": "missing"}]}`,
		},
		{
			name: "multi_value without options",
			json: `{"type": "music", "domain": "x", "name": "x",
				"config_entries": [{"key": "a", "type": "string", "label": "a",
					"multi_value": true}]}`,
		},
		{
			name: "manifest depends on itself",
			json: `{"type": "music", "domain": "x", "name": "x", "depends_on": "x"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.json)); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestParseIntegerDefaultFromJSON(t *testing.T) {
	// encoding/json decodes numbers as float64; integral defaults must
	// still validate against integer entries.
	m, err := Parse([]byte(`{"type": "music", "domain": "x", "name": "x",
		"config_entries": [{"key": "a", "type": "integer", "label": "a", "default_value": 42}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if m.ConfigEntries[0].DefaultValue != float64(42) {
		t.Errorf("unexpected default value %v", m.ConfigEntries[0].DefaultValue)
	}
}

func TestRegistryAddAndGet(t *testing.T) {
	reg := NewRegistry()
	m, err := Parse([]byte(smbManifest))
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Add(m); err != nil {
		t.Fatal(err)
	}
	if err := reg.Add(m); err == nil {
		t.Error("expected error on duplicate domain")
	}
	got, ok := reg.Get("filesystem_smb")
	if !ok || got.Name != m.Name {
		t.Errorf("Get returned %v, %v", got, ok)
	}
	if _, ok := reg.Get("bogus"); ok {
		t.Error("expected miss for unknown domain")
	}
	if all := reg.All(); len(all) != 1 {
		t.Errorf("expected 1 manifest, got %d", len(all))
	}
}

func TestRegistryLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(domain, body string) {
		if err := os.MkdirAll(filepath.Join(dir, domain), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, domain, "manifest.json"), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("filesystem_smb", smbManifest)
	write("broken", `{"type": "music"}`)
	// directories without a manifest.json are skipped
	if err := os.MkdirAll(filepath.Join(dir, "helpers"), 0o755); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry()
	if err := reg.LoadDir(dir); err != nil {
		t.Fatal(err)
	}
	if len(reg.All()) != 1 {
		t.Errorf("expected only the valid manifest to load, got %d", len(reg.All()))
	}
	if _, ok := reg.Get("filesystem_smb"); !ok {
		t.Error("filesystem_smb manifest missing")
	}
}

func TestRegistryLoadBundle(t *testing.T) {
	bundle := `
filesystem_smb:
  type: music
  name: SMB/CIFS filesystem
  config_entries:
    - key: path
      type: string
      label: Path
url:
  type: music
  domain: url
  name: URLs
`
	reg := NewRegistry()
	if err := reg.LoadBundle([]byte(bundle)); err != nil {
		t.Fatal(err)
	}
	m, ok := reg.Get("filesystem_smb")
	if !ok {
		t.Fatal("filesystem_smb manifest missing")
	}
	// domain may be implied by the bundle key
	if m.Domain != "filesystem_smb" {
		t.Errorf("expected implied domain, got %q", m.Domain)
	}
	if _, ok := reg.Get("url"); !ok {
		t.Error("url manifest missing")
	}
}

func TestRegistryLoadBundleMismatch(t *testing.T) {
	bundle := `
alpha:
  type: music
  domain: beta
  name: Mismatch
`
	reg := NewRegistry()
	if err := reg.LoadBundle([]byte(bundle)); err == nil {
		t.Error("expected error on mismatching bundle domain")
	}
}
