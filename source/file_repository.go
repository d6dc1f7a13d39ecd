package source

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// FileRepository is a struct that implements the Repository interface for
// handling a manifest/configuration bundle stored in a local YAML file.
type FileRepository struct {
	sync.RWMutex                        // RWMutex to synchronize access to data during refresh
	Name         string                 // Name of the configuration source
	Path         string                 // File path of the bundle file
	data         map[string]interface{} // Map of document name to decoded document
	rawData      []byte                 // Raw bytes of the bundle file

	watcher *fsnotify.Watcher
}

// NewFileRepository creates a FileRepository for the given bundle file.
func NewFileRepository(name, path string) (*FileRepository, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &FileRepository{Name: name, Path: abs}, nil
}

// GetName returns the name of the configuration source.
func (f *FileRepository) GetName() string {
	return f.Name
}

// GetData returns the decoded document stored under the given name.
func (f *FileRepository) GetData(name string) (interface{}, bool) {
	f.RLock()
	defer f.RUnlock()
	document, isPresent := f.data[name]
	return document, isPresent
}

// GetRawData returns the raw bytes of the last read bundle file.
func (f *FileRepository) GetRawData() []byte {
	f.RLock()
	defer f.RUnlock()
	return f.rawData
}

// Refresh reads the bundle file and unmarshals it into the data map.
func (f *FileRepository) Refresh() error {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		logrus.Debug("error reading file")
		return err
	}

	// Unmarshal to a temp variable so a broken file does not clobber the
	// last good bundle.
	var tempData map[string]interface{}
	if err := yaml.Unmarshal(data, &tempData); err != nil {
		logrus.Debug("error unmarshalling file")
		return err
	}

	f.Lock()
	f.data = tempData
	f.rawData = data
	f.Unlock()

	return nil
}

// Watch starts an fsnotify watcher on the bundle file's directory and
// refreshes the repository whenever the file is rewritten. Watching the
// directory instead of the file keeps the watch alive across the
// rename-on-save most editors and atomic writers do. Close stops it.
func (f *FileRepository) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(f.Path)); err != nil {
		watcher.Close()
		return err
	}
	f.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != f.Path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if err := f.Refresh(); err != nil {
					logrus.WithError(err).Error("error refreshing repository after file change")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logrus.WithError(err).Error("error watching bundle file")
			}
		}
	}()
	return nil
}

// Close stops the file watcher, if one was started.
func (f *FileRepository) Close() error {
	if f.watcher == nil {
		return nil
	}
	return f.watcher.Close()
}
