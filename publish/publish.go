// Package publish stages the data directory, decides whether anything
// changed since HEAD, and conditionally commits and pushes. A run produces
// exactly zero or one commit.
package publish

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"

	config "github.com/jpxlab/jpxsync"
)

// Result reports what the publisher did for one run.
type Result struct {
	Committed bool
	Hash      string
	Message   string
	Files     []string
}

type Publisher struct {
	RepoPath      string
	DataDir       string // path of the data directory relative to the repo root
	RemoteURL     string // optional override; default is the repo's origin
	Actor         string
	Token         string
	Author        config.Identity
	MessagePrefix string

	// Now is injectable so the timestamped message is deterministic in tests.
	Now func() time.Time

	log *zap.Logger
}

func New(repoPath string, cfg *config.Config, log *zap.Logger) *Publisher {
	return &Publisher{
		RepoPath:      repoPath,
		DataDir:       cfg.DataDir,
		RemoteURL:     cfg.RepoURL,
		Actor:         cfg.Actor,
		Token:         cfg.Token,
		Author:        cfg.Author,
		MessagePrefix: cfg.MessagePrefix,
		Now:           time.Now,
		log:           log,
	}
}

// Publish stages everything under the data directory and, iff the staged or
// worktree state differs from HEAD there, commits with the timestamped
// message and pushes. No difference is a no-op success.
func (p *Publisher) Publish(ctx context.Context) (*Result, error) {
	repo, err := gogit.PlainOpen(p.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", p.RepoPath, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get working tree: %w", err)
	}

	if _, err := wt.Add(p.DataDir); err != nil {
		return nil, fmt.Errorf("failed to stage %s: %w", p.DataDir, err)
	}

	changed, files, err := p.changedFiles(wt)
	if err != nil {
		return nil, err
	}
	if !changed {
		p.log.Info("no changes under data directory, skipping commit", zap.String("dir", p.DataDir))
		return &Result{}, nil
	}

	now := p.Now().UTC()
	msg := fmt.Sprintf("%s %s", p.MessagePrefix, now.Format("2006-01-02 15:04:05"))
	hash, err := wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  p.Author.Name,
			Email: p.Author.Email,
			When:  now,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("commit failed: %w", err)
	}
	p.log.Info("committed data changes",
		zap.String("hash", hash.String()),
		zap.Int("files", len(files)))

	if err := p.push(ctx, repo); err != nil {
		// the local commit stays; the run fails and the next pass retries the push
		return nil, fmt.Errorf("push failed: %w", err)
	}

	return &Result{Committed: true, Hash: hash.String(), Message: msg, Files: files}, nil
}

// changedFiles reports whether any file under the data directory differs
// from HEAD in either the index or the worktree.
func (p *Publisher) changedFiles(wt *gogit.Worktree) (bool, []string, error) {
	st, err := wt.Status()
	if err != nil {
		return false, nil, fmt.Errorf("failed to compute status: %w", err)
	}

	prefix := strings.TrimSuffix(p.DataDir, "/") + "/"
	var files []string
	for path, s := range st {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		if s.Staging != gogit.Unmodified || s.Worktree != gogit.Unmodified {
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return len(files) > 0, files, nil
}

func (p *Publisher) push(ctx context.Context, repo *gogit.Repository) error {
	if p.RemoteURL == "" {
		if _, err := repo.Remote(gogit.DefaultRemoteName); err != nil {
			if errors.Is(err, gogit.ErrRemoteNotFound) {
				p.log.Warn("no remote configured, commit left local")
				return nil
			}
			return err
		}
	}

	opts := &gogit.PushOptions{RemoteName: gogit.DefaultRemoteName}
	if p.RemoteURL != "" {
		opts.RemoteURL = p.RemoteURL
	}
	if auth := p.auth(); auth != nil {
		opts.Auth = auth
	}

	err := repo.PushContext(ctx, opts)
	if errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

// auth builds HTTPS basic auth from the actor and token. The token never
// appears in the remote URL or the logs.
func (p *Publisher) auth() transport.AuthMethod {
	if p.Token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: p.Actor, Password: p.Token}
}
