package main

import (
	"context"
	"time"

	"github.com/sells-group/student-map/internal/fetcher"
	"github.com/sells-group/student-map/internal/ingest"
	"github.com/sells-group/student-map/internal/markers"
	"github.com/sells-group/student-map/internal/store"
)

func newFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries: cfg.Fetch.MaxRetries,
		RatePerSec: cfg.Fetch.RatePerSec,
	})
}

func newMarkerStore() *markers.Store {
	return markers.NewStore(ingest.Definitions(cfg.Sources))
}

// fillMarkers loads every source into ms, from snapshots when fromSnapshot
// is set. Fresh loads are saved to st when one is configured.
func fillMarkers(ctx context.Context, ms *markers.Store, st store.Store, fromSnapshot bool) []ingest.Result {
	if fromSnapshot {
		return ingest.LoadSnapshots(ctx, st, cfg.Sources, ms)
	}

	var opts []ingest.Option
	if st != nil {
		opts = append(opts, ingest.WithSnapshots(st))
	}
	return ingest.NewLoader(newFetcher(), opts...).LoadAll(ctx, cfg.Sources, ms)
}
