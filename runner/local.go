package runner

import (
	"context"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"time"
)

// LocalRunner executes an external downloader program with no arguments.
// The program is expected to populate DataDir and exit zero on success;
// everything else about it (retries, parsing, target URLs) is its own
// concern.
type LocalRunner struct {
	Script  string
	DataDir string
	Env     []string
}

func NewLocalRunner(script, dataDir string) *LocalRunner {
	return &LocalRunner{Script: script, DataDir: dataDir}
}

func (l *LocalRunner) Run(ctx context.Context) (Result, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, l.Script)
	if len(l.Env) > 0 {
		cmd.Env = l.Env
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		return Result{Output: string(out)}, fmt.Errorf("downloader run failed: %w: %s", err, string(out))
	}

	files, err := writtenSince(l.DataDir, start)
	if err != nil {
		return Result{Output: string(out)}, err
	}
	return Result{FilesWritten: files, Output: string(out)}, nil
}

// writtenSince lists files under dir whose mtime is at or after the given
// instant. The script itself reports nothing, so this is how the pipeline
// learns what it wrote.
func writtenSince(dir string, since time.Time) ([]string, error) {
	// coarse filesystems round mtimes down
	since = since.Truncate(time.Second)
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.ModTime().Before(since) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	return files, nil
}
