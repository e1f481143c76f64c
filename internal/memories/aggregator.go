package memories

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/SolsticeMemorials/keepsake/backend/internal/blob"
	"go.uber.org/zap"
)

const (
	defaultFetchConcurrency = 4
	defaultMaxItems         = 500
	listPageSize            = 100
)

// AggregatorConfig bundles configuration for the index aggregator.
type AggregatorConfig struct {
	Store            blob.Store
	FetchConcurrency int
	MaxItems         int
	Logger           *zap.Logger
}

// Aggregator assembles the list view from the per-memory index blobs. Blobs
// that fail to fetch or parse are skipped rather than failing the listing.
type Aggregator struct {
	store            blob.Store
	fetchConcurrency int
	maxItems         int
	logger           *zap.Logger
}

// NewAggregator constructs an Aggregator with the provided configuration.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	fetchConcurrency := cfg.FetchConcurrency
	if fetchConcurrency <= 0 {
		fetchConcurrency = defaultFetchConcurrency
	}
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		store:            cfg.Store,
		fetchConcurrency: fetchConcurrency,
		maxItems:         maxItems,
		logger:           logger,
	}
}

// Aggregate lists every index blob, fetches each with bounded concurrency,
// sorts the surviving items newest-first by their parsed date, and caps the
// result at the configured maximum (oldest dropped).
func (a *Aggregator) Aggregate(ctx context.Context) ([]IndexItem, error) {
	keys, err := a.listAllKeys(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]IndexItem, len(keys))
	valid := make([]bool, len(keys))

	semaphore := make(chan struct{}, a.fetchConcurrency)
	var waitGroup sync.WaitGroup
	for position, key := range keys {
		waitGroup.Add(1)
		go func(position int, key string) {
			defer waitGroup.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			data, err := a.store.Read(ctx, key)
			if err != nil || data == nil {
				if err != nil {
					a.logger.Warn("index blob fetch failed", zap.String("key", key), zap.Error(err))
				}
				return
			}
			var item IndexItem
			if err := json.Unmarshal(data, &item); err != nil {
				a.logger.Warn("index blob unparsable", zap.String("key", key), zap.Error(err))
				return
			}
			if item.ID == "" {
				return
			}
			items[position] = item
			valid[position] = true
		}(position, key)
	}
	waitGroup.Wait()

	surviving := make([]IndexItem, 0, len(items))
	for position, item := range items {
		if valid[position] {
			surviving = append(surviving, item)
		}
	}

	sort.SliceStable(surviving, func(i, j int) bool {
		return parseInstant(surviving[i].Date).After(parseInstant(surviving[j].Date))
	})

	if len(surviving) > a.maxItems {
		surviving = surviving[:a.maxItems]
	}
	return surviving, nil
}

func (a *Aggregator) listAllKeys(ctx context.Context) ([]string, error) {
	var keys []string
	cursor := ""
	for {
		page, err := a.store.List(ctx, indexKeyPrefix, cursor, listPageSize)
		if err != nil {
			return nil, err
		}
		keys = append(keys, page.Keys...)
		if page.Cursor == "" || len(page.Keys) == 0 {
			return keys, nil
		}
		cursor = page.Cursor
	}
}

// parseInstant normalizes a stored RFC3339 date to an instant so items with
// differing offsets compare correctly. Unparsable dates sort last.
func parseInstant(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}
