package client

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/micha91/music-assistant-server/manifest"
	"github.com/micha91/music-assistant-server/source"
)

// Client periodically refreshes a provider-manifest bundle from a
// repository and decodes individual manifests out of it on demand.
type Client struct {
	Repository      source.Repository
	RefreshInterval time.Duration
	cancel          context.CancelFunc
}

// NewClient creates a new Client with the provided context, repository,
// and refresh interval. It refreshes the bundle once synchronously, so
// the Client is usable immediately, then starts a background goroutine
// to keep the bundle fresh. A failed initial refresh is returned as an
// error because the caller would otherwise start with an empty bundle.
func NewClient(ctx context.Context, repository source.Repository, refreshInterval time.Duration) (*Client, error) {
	// The derived context controls the lifetime of the background
	// refresh goroutine.
	ctx, cancel := context.WithCancel(ctx)

	client := &Client{
		Repository:      repository,
		RefreshInterval: refreshInterval,
		cancel:          cancel,
	}

	if err := client.Repository.Refresh(); err != nil {
		cancel()
		return nil, fmt.Errorf("initial refresh of %s: %w", repository.GetName(), err)
	}

	go refresh(ctx, client)

	return client, nil
}

// refresh periodically refreshes the manifest bundle from the repository
// until the context is canceled.
func refresh(ctx context.Context, client *Client) {
	ticker := time.NewTicker(client.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := client.Repository.Refresh(); err != nil {
				logrus.WithError(err).Error("error refreshing repository")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close stops the background refresh goroutine. It should be called when
// the Client is no longer needed to prevent a goroutine leak.
func (c *Client) Close() {
	c.cancel()
}

// GetManifest retrieves the provider manifest for the given domain from
// the bundle and validates it.
func (c *Client) GetManifest(domain string) (*manifest.ProviderManifest, error) {
	document, ok := c.Repository.GetData(domain)
	if !ok {
		return nil, fmt.Errorf("provider %s not found", domain)
	}

	// The repository hands out the document as a generic map; a yaml
	// round-trip decodes it into the typed manifest.
	raw, err := yaml.Marshal(document)
	if err != nil {
		return nil, err
	}
	var m manifest.ProviderManifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m.Domain == "" {
		m.Domain = domain
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("provider %s: %w", domain, err)
	}
	return &m, nil
}

// Manifests decodes the whole bundle and returns every valid provider
// manifest in it, sorted by domain. Invalid manifests are logged and
// skipped so one broken provider does not hide the rest.
func (c *Client) Manifests() ([]*manifest.ProviderManifest, error) {
	var bundle map[string]yaml.Node
	if err := yaml.Unmarshal(c.Repository.GetRawData(), &bundle); err != nil {
		return nil, err
	}

	domains := make([]string, 0, len(bundle))
	for domain := range bundle {
		domains = append(domains, domain)
	}
	sort.Strings(domains)

	manifests := make([]*manifest.ProviderManifest, 0, len(domains))
	for _, domain := range domains {
		m, err := c.GetManifest(domain)
		if err != nil {
			logrus.WithError(err).WithField("domain", domain).Warn("skipping invalid provider manifest")
			continue
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}
