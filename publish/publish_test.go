package publish

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	config "github.com/jpxlab/jpxsync"
)

var fixedTime = time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)

func newTestPublisher(t *testing.T, repoPath string) *Publisher {
	t.Helper()
	return &Publisher{
		RepoPath:      repoPath,
		DataDir:       "jpx_data",
		Author:        config.Identity{Name: "GitHub Actions", Email: "actions@github.com"},
		MessagePrefix: "Automatic JPX CSV update",
		Now:           func() time.Time { return fixedTime },
		log:           zaptest.NewLogger(t),
	}
}

// initRepo creates a repository with one committed file under jpx_data.
func initRepo(t *testing.T) (string, *gogit.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	writeData(t, dir, "prices.csv", "date,price\n2024-01-12,100\n")

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("jpx_data")
	require.NoError(t, err)
	_, err = wt.Commit("initial data", &gogit.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: fixedTime.Add(-24 * time.Hour)},
	})
	require.NoError(t, err)
	return dir, repo
}

func writeData(t *testing.T, repoPath, name, content string) {
	t.Helper()
	dataDir := filepath.Join(repoPath, "jpx_data")
	require.NoError(t, os.MkdirAll(dataDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, name), []byte(content), 0644))
}

func commitCount(t *testing.T, repo *gogit.Repository) int {
	t.Helper()
	iter, err := repo.Log(&gogit.LogOptions{})
	require.NoError(t, err)
	defer iter.Close()
	n := 0
	require.NoError(t, iter.ForEach(func(*object.Commit) error { n++; return nil }))
	return n
}

func TestPublishNoChangeIsNoOp(t *testing.T) {
	dir, repo := initRepo(t)
	p := newTestPublisher(t, dir)

	// rewrite the same bytes; content is identical to HEAD
	writeData(t, dir, "prices.csv", "date,price\n2024-01-12,100\n")

	res, err := p.Publish(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Committed)
	assert.Equal(t, 1, commitCount(t, repo))
}

func TestPublishCommitsChangedContent(t *testing.T) {
	dir, repo := initRepo(t)
	p := newTestPublisher(t, dir)

	writeData(t, dir, "prices.csv", "date,price\n2024-01-15,120\n")

	res, err := p.Publish(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.Equal(t, "Automatic JPX CSV update 2024-01-15 08:00:00", res.Message)
	assert.Equal(t, []string{"jpx_data/prices.csv"}, res.Files)
	assert.Equal(t, 2, commitCount(t, repo))

	head, err := repo.Head()
	require.NoError(t, err)
	commit, err := repo.CommitObject(head.Hash())
	require.NoError(t, err)
	assert.Equal(t, "GitHub Actions", commit.Author.Name)
	assert.Equal(t, "actions@github.com", commit.Author.Email)
}

func TestPublishCommitsNewFile(t *testing.T) {
	dir, repo := initRepo(t)
	p := newTestPublisher(t, dir)

	writeData(t, dir, "irs_settlement_rates_20240115.pdf", "%PDF-1.4 fake")

	res, err := p.Publish(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.Equal(t, 2, commitCount(t, repo))
}

func TestPublishSecondRunIsIdempotent(t *testing.T) {
	dir, repo := initRepo(t)
	p := newTestPublisher(t, dir)

	writeData(t, dir, "prices.csv", "date,price\n2024-01-15,120\n")

	res, err := p.Publish(context.Background())
	require.NoError(t, err)
	require.True(t, res.Committed)

	res, err = p.Publish(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Committed)
	assert.Equal(t, 2, commitCount(t, repo))
}

func TestPublishIgnoresChangesOutsideDataDir(t *testing.T) {
	dir, repo := initRepo(t)
	p := newTestPublisher(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("notes"), 0644))

	res, err := p.Publish(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Committed)
	assert.Equal(t, 1, commitCount(t, repo))
}

func TestPublishPushesToRemote(t *testing.T) {
	if _, err := exec.LookPath("git-receive-pack"); err != nil {
		t.Skip("git-receive-pack not available for the file transport")
	}

	dir, repo := initRepo(t)

	bare := t.TempDir()
	_, err := gogit.PlainInit(bare, true)
	require.NoError(t, err)
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{Name: gogit.DefaultRemoteName, URLs: []string{bare}})
	require.NoError(t, err)

	p := newTestPublisher(t, dir)
	writeData(t, dir, "prices.csv", "date,price\n2024-01-15,120\n")

	res, err := p.Publish(context.Background())
	require.NoError(t, err)
	require.True(t, res.Committed)

	remote, err := gogit.PlainOpen(bare)
	require.NoError(t, err)
	refs, err := remote.References()
	require.NoError(t, err)
	found := false
	require.NoError(t, refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Hash().String() == res.Hash {
			found = true
		}
		return nil
	}))
	assert.True(t, found, "pushed commit not found in remote")
}

func TestPushFailureLeavesLocalCommit(t *testing.T) {
	dir, repo := initRepo(t)

	// origin points at a path that cannot exist, so the push must fail
	_, err := repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: gogit.DefaultRemoteName,
		URLs: []string{filepath.Join(t.TempDir(), "nonexistent", "remote")},
	})
	require.NoError(t, err)

	p := newTestPublisher(t, dir)
	writeData(t, dir, "prices.csv", "date,price\n2024-01-15,120\n")

	_, err = p.Publish(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push failed")

	// the commit was created before the push and stays local
	assert.Equal(t, 2, commitCount(t, repo))
	head, err := repo.Head()
	require.NoError(t, err)
	commit, err := repo.CommitObject(head.Hash())
	require.NoError(t, err)
	assert.Equal(t, "Automatic JPX CSV update 2024-01-15 08:00:00", commit.Message)
}

func TestPublishWithoutRemoteKeepsCommitLocal(t *testing.T) {
	dir, repo := initRepo(t)
	p := newTestPublisher(t, dir)

	writeData(t, dir, "prices.csv", "date,price\n2024-01-15,120\n")

	// no origin configured: the commit succeeds and the push is skipped
	res, err := p.Publish(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.Equal(t, 2, commitCount(t, repo))
}

func TestEnsureWorkspaceCreatesDataDir(t *testing.T) {
	dir, _ := initRepo(t)
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "jpx_data")))

	p := newTestPublisher(t, dir)
	require.NoError(t, p.EnsureWorkspace(context.Background(), "master"))

	info, err := os.Stat(filepath.Join(dir, "jpx_data"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestEnsureWorkspaceFailsWithoutRepoOrRemote(t *testing.T) {
	p := newTestPublisher(t, t.TempDir())
	err := p.EnsureWorkspace(context.Background(), "main")
	require.Error(t, err)
}
