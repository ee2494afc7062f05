package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// EnsureWorkspace is the provisioning step: it guarantees a usable git
// repository at RepoPath (cloning from RemoteURL when absent) and the data
// directory inside it. Any failure here aborts the run before the
// downloader executes.
func (p *Publisher) EnsureWorkspace(ctx context.Context, branch string) error {
	_, err := gogit.PlainOpen(p.RepoPath)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		if p.RemoteURL == "" {
			return fmt.Errorf("no repository at %s and no remote URL to clone from", p.RepoPath)
		}
		if err := p.clone(ctx, branch); err != nil {
			return err
		}
	} else if err != nil {
		return fmt.Errorf("failed to open repository at %s: %w", p.RepoPath, err)
	}

	dataPath := filepath.Join(p.RepoPath, p.DataDir)
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

func (p *Publisher) clone(ctx context.Context, branch string) error {
	opts := &gogit.CloneOptions{
		URL:           p.RemoteURL,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
	}
	if auth := p.auth(); auth != nil {
		opts.Auth = auth
	}
	if _, err := gogit.PlainCloneContext(ctx, p.RepoPath, false, opts); err != nil {
		return fmt.Errorf("failed to clone %s: %w", p.RemoteURL, err)
	}
	return nil
}
