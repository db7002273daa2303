package syncengine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/mailkeep/mailkeep/internal/mailgraph"
)

// downloadResult is one message body fetch outcome, indexed identically to
// the page's item slice.
type downloadResult struct {
	bytes []byte
	err   error
}

// downloadPresent fetches the MIME body for every item named by indices,
// bounded to e.opts.MaxParallelDownloads concurrent requests — the same
// errgroup.SetLimit fan-out the teacher uses for its own bounded transfer
// pool. Results land in a slice indexed exactly like items: downloads may
// complete in any order, but the caller applies them back by walking that
// slice in page order, so database writes stay deterministic regardless of
// which request happened to finish first.
func (e *Engine) downloadPresent(ctx context.Context, items []mailgraph.Item, indices []int) []downloadResult {
	results := make([]downloadResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MaxParallelDownloads)

	for _, idx := range indices {
		idx := idx
		messageID := items[idx].ID

		g.Go(func() error {
			data, err := e.provider.FetchMIME(gctx, messageID)
			results[idx] = downloadResult{bytes: data, err: err}

			// A single message's download failure is recorded per spec.md
			// §4.5.6, not fatal to the rest of the page's downloads.
			return nil
		})
	}

	_ = g.Wait()

	return results
}
