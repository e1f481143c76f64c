package memories

import (
	"context"
	"testing"
)

func writeIndexBlob(testContext *testing.T, store *memStore, key string, payload string) {
	testContext.Helper()
	if err := store.Write(context.Background(), key, []byte(payload)); err != nil {
		testContext.Fatalf("unexpected write error: %v", err)
	}
}

func TestAggregateSkipsUnparsableBlobs(testContext *testing.T) {
	store := newMemStore()
	writeIndexBlob(testContext, store, "index/good.json",
		`{"id":"good","title":"t","name":"n","date":"2024-06-01T00:00:00Z","photo_count":0,"excerpt":"e"}`)
	writeIndexBlob(testContext, store, "index/bad.json", `{not json`)
	writeIndexBlob(testContext, store, "index/empty-id.json",
		`{"id":"","date":"2024-06-02T00:00:00Z"}`)

	aggregator := NewAggregator(AggregatorConfig{Store: store})
	items, err := aggregator.Aggregate(context.Background())
	if err != nil {
		testContext.Fatalf("unexpected aggregate error: %v", err)
	}
	if len(items) != 1 || items[0].ID != "good" {
		testContext.Fatalf("expected only the parsable item, got %+v", items)
	}
}

func TestAggregateSortsMixedOffsetsByInstant(testContext *testing.T) {
	store := newMemStore()
	// 10:00+02:00 is 08:00Z, earlier than 09:00Z despite sorting later as a string.
	writeIndexBlob(testContext, store, "index/offset.json",
		`{"id":"offset","date":"2024-06-01T10:00:00+02:00","excerpt":"e"}`)
	writeIndexBlob(testContext, store, "index/utc.json",
		`{"id":"utc","date":"2024-06-01T09:00:00Z","excerpt":"e"}`)

	aggregator := NewAggregator(AggregatorConfig{Store: store})
	items, err := aggregator.Aggregate(context.Background())
	if err != nil {
		testContext.Fatalf("unexpected aggregate error: %v", err)
	}
	if len(items) != 2 {
		testContext.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != "utc" || items[1].ID != "offset" {
		testContext.Fatalf("expected instant ordering, got %s then %s", items[0].ID, items[1].ID)
	}
}

func TestAggregatePagesThroughAllKeys(testContext *testing.T) {
	store := newMemStore()
	// More entries than one listing page so the cursor loop is exercised.
	for position := 0; position < listPageSize+25; position++ {
		id := MemoryID(testIndexID(position))
		writeIndexBlob(testContext, store, indexKey(id),
			`{"id":"`+id.String()+`","date":"2024-06-01T00:00:00Z","excerpt":"e"}`)
	}

	aggregator := NewAggregator(AggregatorConfig{Store: store, MaxItems: 1000})
	items, err := aggregator.Aggregate(context.Background())
	if err != nil {
		testContext.Fatalf("unexpected aggregate error: %v", err)
	}
	if len(items) != listPageSize+25 {
		testContext.Fatalf("expected %d items, got %d", listPageSize+25, len(items))
	}
}

func testIndexID(position int) string {
	return "mem-" + string(rune('a'+position/26)) + string(rune('a'+position%26))
}
