package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// WebRepository is a struct that implements the Repository interface for
// handling a manifest/configuration bundle fetched from a remote HTTP
// endpoint.
type WebRepository struct {
	sync.RWMutex                        // RWMutex to synchronize access to data during refresh
	Name         string                 // Name of the configuration source
	data         map[string]interface{} // Map of document name to decoded document
	URL          *url.URL               // URL of the remote HTTP endpoint
	APIKey       string                 // Optional API key for X-API-Key header authentication
	rawData      []byte                 // Raw bytes of the bundle document
}

// NewWebRepository creates a WebRepository fetching the bundle from rawURL.
func NewWebRepository(name, rawURL string) (*WebRepository, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &WebRepository{Name: name, URL: u}, nil
}

// GetName returns the name of the configuration source.
func (w *WebRepository) GetName() string {
	return w.Name
}

// GetData returns the decoded document stored under the given name.
func (w *WebRepository) GetData(name string) (interface{}, bool) {
	w.RLock()
	defer w.RUnlock()
	document, isPresent := w.data[name]
	return document, isPresent
}

// GetRawData returns the raw bytes of the last fetched bundle.
func (w *WebRepository) GetRawData() []byte {
	w.RLock()
	defer w.RUnlock()
	return w.rawData
}

// Refresh fetches the bundle document from the remote HTTP endpoint and
// unmarshals it into the data map.
func (w *WebRepository) Refresh() error {
	ctx := context.Background()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, w.URL.String(), nil)
	if err != nil {
		logrus.Debug("error creating request")
		return err
	}

	// Set X-API-Key header if API key is configured
	if w.APIKey != "" {
		request.Header.Set("X-API-Key", w.APIKey)
	}

	resp, err := http.DefaultClient.Do(request)
	if err != nil {
		logrus.Debug("error doing request")
		return err
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			logrus.WithError(err).Debug("error closing response body")
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s fetching %s", resp.Status, w.URL)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		logrus.Debug("error reading response")
		return err
	}

	// Unmarshal to temp variable outside lock to prevent data corruption on error
	var tempData map[string]interface{}
	if err := yaml.Unmarshal(data, &tempData); err != nil {
		logrus.Debug("error unmarshalling response")
		return err
	}

	// Only lock for atomic data swap
	w.Lock()
	w.data = tempData
	w.rawData = data
	w.Unlock()

	return nil
}
