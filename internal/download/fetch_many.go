package download

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one URL in FetchMany. Exactly one of Artifact and
// Err is set.
type Result struct {
	URL      string
	Artifact *Artifact
	Err      error
}

// FetchMany downloads urls with at most parallelism concurrent fetches. Each
// URL runs the full retry path independently; results keep the order of urls.
func (d *Downloader) FetchMany(ctx context.Context, urls []string, opts Options, parallelism int) []Result {
	results := make([]Result, len(urls))
	if len(urls) == 0 {
		return results
	}
	if parallelism <= 0 {
		parallelism = 1
	}

	var g errgroup.Group
	g.SetLimit(parallelism)
	for i, u := range urls {
		g.Go(func() error {
			artifact, err := d.Fetch(ctx, u, opts)
			results[i] = Result{URL: u, Artifact: artifact, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// RemoveAll deletes every artifact in results.
func RemoveAll(results []Result) {
	for _, r := range results {
		if r.Artifact != nil {
			_ = r.Artifact.Remove()
		}
	}
}
