package source

import (
	"context"
	"io"
	"sync"

	"cloud.google.com/go/storage"
	"gopkg.in/yaml.v3"
)

// GcpStorageRepository is a struct that implements the Repository interface
// for handling a manifest/configuration bundle stored in a GCS bucket.
type GcpStorageRepository struct {
	sync.RWMutex                         // RWMutex to synchronize access to data during refresh
	Name          string                 // Name of the configuration source
	data          map[string]interface{} // Map of document name to decoded document
	BucketName    string                 // Name of the GCS bucket
	ObjectName    string                 // Name of the bundle file within the bucket
	Client        *storage.Client        // GCS client instance
	rawData       []byte                 // Raw bytes of the bundle file
	clientOnce    sync.Once              // Ensures client is initialized only once
	clientInitErr error                  // Stores error from client initialization
}

// NewGcpStorageRepository creates a GcpStorageRepository for the given
// bucket and object. Pre-set Client to use a custom (e.g. emulator) client.
func NewGcpStorageRepository(name, bucket, object string) *GcpStorageRepository {
	return &GcpStorageRepository{Name: name, BucketName: bucket, ObjectName: object}
}

// Refresh reads the bundle file from the GCS bucket and unmarshals it into
// the data map.
func (g *GcpStorageRepository) Refresh() error {
	ctx := context.Background()

	// Thread-safe client initialization using sync.Once (only if client not pre-configured)
	if g.Client == nil {
		g.clientOnce.Do(func() {
			g.Client, g.clientInitErr = storage.NewClient(ctx)
		})
		if g.clientInitErr != nil {
			return g.clientInitErr
		}
	}

	// Network I/O outside lock for better performance
	reader, err := g.Client.Bucket(g.BucketName).Object(g.ObjectName).NewReader(ctx)
	if err != nil {
		return err
	}
	defer reader.Close()

	fileContent, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	// Unmarshal to temp variable outside lock to prevent data corruption on error
	var tempData map[string]interface{}
	if err := yaml.Unmarshal(fileContent, &tempData); err != nil {
		return err
	}

	// Only lock for atomic data swap
	g.Lock()
	g.data = tempData
	g.rawData = fileContent
	g.Unlock()

	return nil
}

// GetName returns the name of the configuration source.
func (g *GcpStorageRepository) GetName() string {
	return g.Name
}

// GetData returns the decoded document stored under the given name.
func (g *GcpStorageRepository) GetData(name string) (interface{}, bool) {
	g.RLock()
	defer g.RUnlock()
	document, isPresent := g.data[name]
	return document, isPresent
}

// GetRawData returns the raw bytes of the last fetched bundle.
func (g *GcpStorageRepository) GetRawData() []byte {
	g.RLock()
	defer g.RUnlock()
	return g.rawData
}
