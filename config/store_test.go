package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "settings.json"))
	store.saveDelay = 10 * time.Millisecond
	require.NoError(t, store.Load())
	return store
}

func TestStoreGetSet(t *testing.T) {
	store := newTestStore(t)

	assert.Nil(t, store.Get("providers/smb", nil))
	assert.Equal(t, "fallback", store.Get("providers/smb", "fallback"))

	store.Set("providers/smb/enabled", true)
	assert.Equal(t, true, store.Get("providers/smb/enabled", nil))

	// intermediate levels are created on demand
	nested, ok := store.Get("providers/smb", nil).(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, nested["enabled"])

	// requesting a subkey of a non existing parent returns the default
	assert.Equal(t, 42, store.Get("missing/level/key", 42))
}

func TestStoreSetDefault(t *testing.T) {
	store := newTestStore(t)

	assert.Equal(t, "abc", store.SetDefault("server_id", "abc"))
	// second call keeps the stored value
	assert.Equal(t, "abc", store.SetDefault("server_id", "def"))
}

func TestStoreRemove(t *testing.T) {
	store := newTestStore(t)
	store.Set("providers/smb/enabled", true)
	store.Remove("providers/smb")
	assert.Nil(t, store.Get("providers/smb", nil))
	// removing a missing key is a no-op
	store.Remove("providers/never/there")
}

func TestStoreSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	store := NewStore(path)
	require.NoError(t, store.Load())
	store.Set("server_id", "abc")
	store.Set("providers/smb/domain", "filesystem_smb")
	require.NoError(t, store.Save())

	reloaded := NewStore(path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, "abc", reloaded.Get("server_id", nil))
	assert.Equal(t, "filesystem_smb", reloaded.Get("providers/smb/domain", nil))
}

func TestStoreBackupRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	store := NewStore(path)
	require.NoError(t, store.Load())
	store.Set("server_id", "first")
	require.NoError(t, store.Save())
	store.Set("server_id", "second")
	require.NoError(t, store.Save())

	backup, err := os.ReadFile(path + ".backup")
	require.NoError(t, err)
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(backup, &data))
	assert.Equal(t, "first", data["server_id"])
}

func TestStoreRecoversFromCorruptPrimary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	require.NoError(t, os.WriteFile(path+".backup", []byte(`{"server_id": "backup"}`), 0o600))

	store := NewStore(path)
	require.NoError(t, store.Load())
	assert.Equal(t, "backup", store.Get("server_id", nil))
}

func TestStoreDebouncedSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	store := NewStore(path)
	store.saveDelay = 20 * time.Millisecond
	require.NoError(t, store.Load())
	store.Set("server_id", "abc")

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "save should be deferred")

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 5*time.Millisecond)
}

func TestStoreCloseFlushesPendingSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	store := NewStore(path)
	require.NoError(t, store.Load())
	store.Set("server_id", "abc")
	require.NoError(t, store.Close())

	_, err := os.Stat(path)
	assert.NoError(t, err)
}
