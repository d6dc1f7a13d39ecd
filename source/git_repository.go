package source

import (
	"context"
	"io"
	"net/url"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// GitRepository is a struct that implements the Repository interface for
// handling a manifest/configuration bundle stored in a file within a Git
// repository. The repository is cloned into memory on the first refresh
// and pulled on every refresh after that.
type GitRepository struct {
	sync.RWMutex                         // RWMutex to synchronize access to data during refresh
	Name          string                 // Name of the configuration source
	data          map[string]interface{} // Map of document name to decoded document
	URL           *url.URL               // URL of the Git repository
	Path          string                 // Path to the bundle file within the repository
	Branch        string                 // Branch to check out (default branch when empty)
	Auth          *http.BasicAuth        // BasicAuth to use when cloning/pulling
	gitRepository *git.Repository        // Go-Git repository instance for the in-memory clone
	fs            billy.Filesystem       // In-memory filesystem holding the clone
	rawData       []byte                 // Raw bytes of the bundle file
}

// NewGitRepository creates a GitRepository for the bundle file at path
// within the repository at rawURL.
func NewGitRepository(name, rawURL, path, branch string, auth *http.BasicAuth) (*GitRepository, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &GitRepository{Name: name, URL: u, Path: path, Branch: branch, Auth: auth}, nil
}

// GetName returns the name of the configuration source.
func (g *GitRepository) GetName() string {
	return g.Name
}

// GetData returns the decoded document stored under the given name.
func (g *GitRepository) GetData(name string) (interface{}, bool) {
	g.RLock()
	defer g.RUnlock()
	document, isPresent := g.data[name]
	return document, isPresent
}

// GetRawData returns the raw bytes of the last fetched bundle.
func (g *GitRepository) GetRawData() []byte {
	g.RLock()
	defer g.RUnlock()
	return g.rawData
}

// Refresh clones or pulls the Git repository and re-reads the bundle file.
func (g *GitRepository) Refresh() error {
	ctx := context.Background()

	if g.fs == nil {
		g.fs = memfs.New()
		logrus.Debugf("Cloning %s into memory", g.URL.String())
		r, err := git.CloneContext(ctx, memory.NewStorage(), g.fs, &git.CloneOptions{
			URL:  g.URL.String(),
			Auth: g.Auth,
		})
		if err != nil {
			g.fs = nil
			return err
		}

		if g.Branch != "" {
			w, err := r.Worktree()
			if err != nil {
				return err
			}
			err = w.Checkout(&git.CheckoutOptions{
				Branch: plumbing.NewBranchReferenceName(g.Branch),
				Force:  true,
			})
			if err != nil {
				return err
			}
		}

		logrus.Debug("Cloned")
		g.gitRepository = r
	} else {
		w, err := g.gitRepository.Worktree()
		if err != nil {
			return err
		}
		logrus.Debug("Pulling")

		pullOptions := &git.PullOptions{Auth: g.Auth}
		if g.Branch != "" {
			pullOptions.ReferenceName = plumbing.NewBranchReferenceName(g.Branch)
			pullOptions.SingleBranch = true
			pullOptions.Force = true
		}

		err = w.PullContext(ctx, pullOptions)
		if err != nil && err != git.NoErrAlreadyUpToDate {
			return err
		}
		if err == git.NoErrAlreadyUpToDate {
			logrus.Debug("Already up to date")
		} else {
			logrus.Debug("Pulled")
		}
	}

	file, err := g.fs.Open(g.Path)
	if err != nil {
		return err
	}
	defer func(file billy.File) {
		if err := file.Close(); err != nil {
			logrus.WithError(err).Error("error closing file")
		}
	}(file)

	fileContent, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	var tempData map[string]interface{}
	if err := yaml.Unmarshal(fileContent, &tempData); err != nil {
		logrus.Debug("error unmarshalling file")
		return err
	}

	g.Lock()
	g.data = tempData
	g.rawData = fileContent
	g.Unlock()

	return nil
}
