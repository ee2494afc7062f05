// Package fetch implements the native JPX downloader: it scrapes the
// exchange's publication pages for the latest file links and downloads
// them into the data directory with date-stamped names.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	config "github.com/jpxlab/jpxsync"
	"github.com/jpxlab/jpxsync/runner"
)

const defaultBaseURL = "https://www.jpx.co.jp"

// JPX serves the pages to a browser User-Agent only.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

type JPXDownloader struct {
	BaseURL string
	OutDir  string
	Sources []config.Source
	Client  *http.Client
	Now     func() time.Time
	log     *zap.Logger
}

func NewJPXDownloader(outDir string, sources []config.Source, log *zap.Logger) *JPXDownloader {
	return &JPXDownloader{
		BaseURL: defaultBaseURL,
		OutDir:  outDir,
		Sources: sources,
		Client:  &http.Client{Timeout: 60 * time.Second},
		Now:     time.Now,
		log:     log,
	}
}

// Run fetches every configured source. A source that yields no link or
// fails to download fails the whole run; files already written stay on
// disk for the publisher to pick up or ignore.
func (d *JPXDownloader) Run(ctx context.Context) (runner.Result, error) {
	if err := os.MkdirAll(d.OutDir, 0755); err != nil {
		return runner.Result{}, fmt.Errorf("failed to create output dir: %w", err)
	}

	var written []string
	var errs []error
	for _, src := range d.Sources {
		path, err := d.fetchSource(ctx, src)
		if err != nil {
			d.log.Error("source fetch failed", zap.String("source", src.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))
			continue
		}
		d.log.Info("source downloaded", zap.String("source", src.Name), zap.String("path", path))
		written = append(written, path)
	}

	return runner.Result{FilesWritten: written}, errors.Join(errs...)
}

func (d *JPXDownloader) fetchSource(ctx context.Context, src config.Source) (string, error) {
	link, err := d.findLink(ctx, src)
	if err != nil {
		return "", err
	}
	link = d.absoluteURL(link)

	name := fmt.Sprintf("%s_%s%s", src.Prefix, d.Now().Format("20060102"), fileExt(link, src.Match))
	path := filepath.Join(d.OutDir, name)
	if err := d.download(ctx, link, path); err != nil {
		return "", err
	}
	return path, nil
}

func (d *JPXDownloader) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download of %s returned HTTP %d", url, resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// fileExt names the output extension after the discovered link, so a match
// pattern written without a leading dot ("csv") still yields "x.csv". The
// pattern is the fallback when the link has no extension.
func fileExt(link, match string) string {
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		link = link[:i]
	}
	if ext := path.Ext(link); ext != "" {
		return strings.ToLower(ext)
	}
	match = strings.ToLower(strings.TrimPrefix(match, "."))
	if match == "" {
		return ""
	}
	return "." + match
}

// absoluteURL resolves links relative to the JPX site root.
func (d *JPXDownloader) absoluteURL(link string) string {
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	if strings.HasPrefix(link, "/") {
		return d.BaseURL + link
	}
	return d.BaseURL + "/" + link
}
