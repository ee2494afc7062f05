package runner

import "context"

// Result is what a downloader reports back: the files it wrote under the
// data directory and any diagnostic output it produced.
type Result struct {
	FilesWritten []string
	Output       string
}

// Downloader fetches the JPX files into the data directory. Implementations
// are interchangeable: the native scraper, an external script, or a Cloud
// Run job. A non-nil error means the run must stop before any commit is
// attempted.
type Downloader interface {
	Run(ctx context.Context) (Result, error)
}
