package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// newLocalGitRepo initializes an on-disk Git repository containing a
// manifest bundle, so the tests can clone without network access.
func newLocalGitRepo(t *testing.T, bundle string) (string, *git.Repository) {
	t.Helper()

	dir := t.TempDir()
	r, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	commitBundle(t, dir, r, bundle)
	return dir, r
}

func commitBundle(t *testing.T, dir string, r *git.Repository, bundle string) {
	t.Helper()

	if err := os.WriteFile(filepath.Join(dir, "manifests.yaml"), []byte(bundle), 0o644); err != nil {
		t.Fatal(err)
	}
	w, err := r.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Add("manifests.yaml"); err != nil {
		t.Fatal(err)
	}
	_, err = w.Commit("update manifests", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "test",
			Email: "test@example.com",
			When:  time.Now(),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestGitRepository(t *testing.T) {
	dir, _ := newLocalGitRepo(t, testBundle)

	repo, err := NewGitRepository("manifests", dir, "manifests.yaml", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if repo.GetName() != "manifests" {
		t.Errorf("expected %q, got %q", "manifests", repo.GetName())
	}

	// First refresh clones, the second hits the already-up-to-date path.
	if err := repo.Refresh(); err != nil {
		t.Fatal(err)
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
	if document["type"] != "music" {
		t.Errorf("expected %q, got %q", "music", document["type"])
	}
	if len(repo.GetRawData()) == 0 {
		t.Error("raw data is empty")
	}
}

func TestGitRepositoryPullsUpdates(t *testing.T) {
	dir, r := newLocalGitRepo(t, testBundle)

	repo, err := NewGitRepository("manifests", dir, "manifests.yaml", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Refresh(); err != nil {
		t.Fatal(err)
	}

	commitBundle(t, dir, r, testBundleUpdated)
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
	if document["name"] != "Server Message Block" {
		t.Errorf("expected %q, got %q", "Server Message Block", document["name"])
	}
}

func TestGitRepositoryMissingFile(t *testing.T) {
	dir, _ := newLocalGitRepo(t, testBundle)

	repo, err := NewGitRepository("manifests", dir, "nope.yaml", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Refresh(); err == nil {
		t.Error("expected an error for a missing bundle file")
	}
}
