package source

// Repository is a remote (or local) store of a manifest/configuration
// bundle: a single YAML or JSON document mapping names to documents.
// Implementations cache the last successfully fetched bundle and swap it
// atomically on Refresh, so readers never observe a half-updated bundle.
type Repository interface {
	// GetName returns the name of the configuration source.
	GetName() string
	// GetData returns the decoded document stored under the given name.
	GetData(name string) (interface{}, bool)
	// GetRawData returns the raw bytes of the last fetched bundle.
	GetRawData() []byte
	// Refresh fetches the bundle from the backing store.
	Refresh() error
}
