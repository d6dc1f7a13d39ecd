// Package smb describes the SMB/CIFS filesystem provider: its manifest
// and the typed connection parameters derived from a provider
// configuration. The actual SMB client lives outside this codebase.
package smb

import (
	"context"
	_ "embed"

	"github.com/micha91/music-assistant-server/config"
	"github.com/micha91/music-assistant-server/manifest"
	"github.com/micha91/music-assistant-server/providers"
)

//go:embed manifest.json
var manifestJSON []byte

// InitClass is the provider class name the manifest declares.
const InitClass = "SMBFileSystemProvider"

// Manifest parses the embedded provider manifest.
func Manifest() (*manifest.ProviderManifest, error) {
	return manifest.Parse(manifestJSON)
}

func init() {
	providers.RegisterFactory(InitClass, New)
}

// Provider is the manifest-level SMB provider. Setup validates the
// configured connection parameters; it does not open a connection.
type Provider struct {
	manifest *manifest.ProviderManifest
	config   *config.ProviderConfig
	params   *Params
}

// New builds an SMB provider instance from its manifest and config.
func New(m *manifest.ProviderManifest, conf *config.ProviderConfig) (providers.Provider, error) {
	return &Provider{manifest: m, config: conf}, nil
}

func (p *Provider) Setup(ctx context.Context) error {
	params, err := FromConfig(p.config)
	if err != nil {
		return err
	}
	p.params = params
	return nil
}

func (p *Provider) Close() error {
	return nil
}

func (p *Provider) Manifest() *manifest.ProviderManifest {
	return p.manifest
}

func (p *Provider) Config() *config.ProviderConfig {
	return p.config
}

// Params returns the validated connection parameters. It is nil before a
// successful Setup.
func (p *Provider) Params() *Params {
	return p.params
}
