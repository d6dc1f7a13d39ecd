package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testBundle = `filesystem_smb:
  type: music
  domain: filesystem_smb
  name: SMB/CIFS filesystem
fanarttv:
  type: metadata
  domain: fanarttv
  name: fanart.tv
`

const testBundleUpdated = `filesystem_smb:
  type: music
  domain: filesystem_smb
  name: Server Message Block
`

func TestFileRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifests.yaml")
	if err := os.WriteFile(path, []byte(testBundle), 0o644); err != nil {
		t.Fatal(err)
	}

	repo, err := NewFileRepository("manifests", path)
	if err != nil {
		t.Fatal(err)
	}
	if repo.GetName() != "manifests" {
		t.Errorf("expected %q, got %q", "manifests", repo.GetName())
	}

	if err := repo.Refresh(); err != nil {
		t.Fatal(err)
	}
	data, ok := repo.GetData("filesystem_smb")
	if !ok {
		t.Fatal("filesystem_smb not found in bundle")
	}
	document, ok := data.(map[string]interface{})
	if !ok {
		t.Fatalf("expected a document, got %T", data)
	}
	if document["name"] != "SMB/CIFS filesystem" {
		t.Errorf("expected %q, got %q", "SMB/CIFS filesystem", document["name"])
	}
	if _, ok := repo.GetData("fanarttv"); !ok {
		t.Error("fanarttv not found in bundle")
	}
	if len(repo.GetRawData()) == 0 {
		t.Error("raw data is empty")
	}
}

func TestFileRepositoryMissingFile(t *testing.T) {
	repo, err := NewFileRepository("manifests", filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Refresh(); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestFileRepositoryKeepsLastGoodBundle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifests.yaml")
	if err := os.WriteFile(path, []byte(testBundle), 0o644); err != nil {
		t.Fatal(err)
	}

	repo, err := NewFileRepository("manifests", path)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Refresh(); err != nil {
		t.Fatal(err)
	}

	// A broken rewrite must not clobber the last good bundle.
	if err := os.WriteFile(path, []byte("{not yaml: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := repo.Refresh(); err == nil {
		t.Error("expected an error for a broken file")
	}
	if _, ok := repo.GetData("filesystem_smb"); !ok {
		t.Error("last good bundle was lost")
	}
}

func TestFileRepositoryWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifests.yaml")
	if err := os.WriteFile(path, []byte(testBundle), 0o644); err != nil {
		t.Fatal(err)
	}

	repo, err := NewFileRepository("manifests", path)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Refresh(); err != nil {
		t.Fatal(err)
	}
	if err := repo.Watch(); err != nil {
		t.Fatal(err)
	}
	defer repo.Close()

	if err := os.WriteFile(path, []byte(testBundleUpdated), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if data, ok := repo.GetData("filesystem_smb"); ok {
			if document, ok := data.(map[string]interface{}); ok && document["name"] == "Server Message Block" {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("repository did not pick up the file change")
}
