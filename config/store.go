package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultSaveDelay is how long the store waits after a change before
// writing to disk, so bursts of updates coalesce into one write.
const DefaultSaveDelay = 30 * time.Second

// Store persists settings as a single JSON document. Keys address a
// multi-level hierarchy with a slash as separator, e.g.
// "providers/filesystem_smb/enabled". Writes are debounced and the
// previous file is kept as a .backup before every rewrite.
type Store struct {
	mu        sync.Mutex
	path      string
	data      map[string]interface{}
	timer     *time.Timer
	saveDelay time.Duration
	loaded    bool
}

// NewStore creates a store persisting to the given file path.
func NewStore(path string) *Store {
	return &Store{
		path:      path,
		data:      make(map[string]interface{}),
		saveDelay: DefaultSaveDelay,
	}
}

// Load reads the settings file, falling back to the .backup copy when the
// primary file is missing or corrupt. A fresh install starts empty.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return errors.New("store already loaded")
	}
	s.loaded = true

	for _, path := range []string{s.path, s.path + ".backup"} {
		raw, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		var data map[string]interface{}
		if err := json.Unmarshal(raw, &data); err != nil {
			logrus.WithError(err).Errorf("error while reading persistent storage file %s", path)
			continue
		}
		s.data = data
		logrus.Debugf("loaded persistent settings from %s", path)
		return nil
	}
	logrus.Debug("started with empty storage: no persistent storage file found")
	return nil
}

// Get returns the value at the given key path, or def when absent.
func (s *Store) Get(key string, def interface{}) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent := s.data
	subkeys := strings.Split(key, "/")
	for i, subkey := range subkeys {
		if i == len(subkeys)-1 {
			if value, ok := parent[subkey]; ok && value != nil {
				return value
			}
			return def
		}
		next, ok := parent[subkey].(map[string]interface{})
		if !ok {
			return def
		}
		parent = next
	}
	return def
}

// SetDefault stores def at the key path if nothing is present yet, and
// returns the resulting value.
func (s *Store) SetDefault(key string, def interface{}) interface{} {
	if existing := s.Get(key, nil); existing != nil {
		return existing
	}
	s.Set(key, def)
	return def
}

// Set stores a value at the given key path, creating intermediate levels
// as needed. Setting an unchanged value does not trigger a save.
func (s *Store) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent := s.data
	subkeys := strings.Split(key, "/")
	for i, subkey := range subkeys {
		if i == len(subkeys)-1 {
			if reflect.DeepEqual(parent[subkey], value) {
				return
			}
			parent[subkey] = value
			s.scheduleSave()
			return
		}
		next, ok := parent[subkey].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			parent[subkey] = next
		}
		parent = next
	}
}

// Remove deletes the value at the given key path.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent := s.data
	subkeys := strings.Split(key, "/")
	for i, subkey := range subkeys {
		if i == len(subkeys)-1 {
			if _, ok := parent[subkey]; !ok {
				return
			}
			delete(parent, subkey)
			s.scheduleSave()
			return
		}
		next, ok := parent[subkey].(map[string]interface{})
		if !ok {
			return
		}
		parent = next
	}
}

// scheduleSave (re)arms the debounce timer. Callers must hold s.mu.
func (s *Store) scheduleSave() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.saveDelay, func() {
		if err := s.Save(); err != nil {
			logrus.WithError(err).Error("error saving persistent storage")
		}
	})
}

// Save writes the settings to disk immediately, rotating the previous file
// to a .backup first.
func (s *Store) Save() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	raw, err := json.MarshalIndent(s.data, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return err
	}

	backup := s.path + ".backup"
	if _, err := os.Stat(s.path); err == nil {
		if _, err := os.Stat(backup); err == nil {
			if err := os.Remove(backup); err != nil {
				return err
			}
		}
		if err := os.Rename(s.path, backup); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return err
	}
	logrus.Debug("saved data to persistent storage")
	return nil
}

// Close flushes any pending save.
func (s *Store) Close() error {
	s.mu.Lock()
	pending := s.timer != nil
	s.mu.Unlock()
	if !pending {
		return nil
	}
	return s.Save()
}
