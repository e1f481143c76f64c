package memories

import (
	"context"
	"fmt"
)

const maxSeedBatch = 1000

var seedBodies = []string{
	"We spent every summer at the lake house. The mornings were always quiet.",
	"Nobody told a story quite the same way. The whole room would go still.",
	"Taught me to fish, to drive, and to apologize properly. In that order.",
	"The garden still blooms every spring. I think about that a lot.",
	"Always the first to arrive and the last to leave. Every single time.",
}

// SeedBulk creates count generated memories marked as seeded test data.
// It returns the number actually created; the first write failure stops
// the batch.
func (s *Service) SeedBulk(ctx context.Context, count int) (int, error) {
	if count <= 0 || count > maxSeedBatch {
		return 0, newServiceError(opSeedMemories, "invalid_count",
			fmt.Errorf("count must be between 1 and %d", maxSeedBatch))
	}

	created := 0
	for position := 0; position < count; position++ {
		input := MemoryInput{
			Name:   fmt.Sprintf("Test Visitor %d", position+1),
			Email:  fmt.Sprintf("seed-%d@example.com", position+1),
			Title:  fmt.Sprintf("Test memory %d", position+1),
			Body:   seedBodies[position%len(seedBodies)],
			Seeded: true,
		}
		if _, err := s.Create(ctx, input); err != nil {
			return created, newServiceError(opSeedMemories, "create_failed", err)
		}
		created++
	}
	return created, nil
}

// PurgeSeeded walks the full index and deletes every seeded memory. It
// returns the number deleted. Non-seeded memories are untouched.
func (s *Service) PurgeSeeded(ctx context.Context) (int, error) {
	keys, err := s.aggregator.listAllKeys(ctx)
	if err != nil {
		s.logError(opPurgeSeeded, "index_list_failed", err)
		return 0, newServiceError(opPurgeSeeded, "index_list_failed", err)
	}

	deleted := 0
	for _, key := range keys {
		id, ok := memoryIDFromIndexKey(key)
		if !ok {
			continue
		}
		item, found, err := s.index.Get(ctx, id)
		if err != nil {
			s.logError(opPurgeSeeded, "index_read_failed", err)
			continue
		}
		if !found || !item.Seeded {
			continue
		}
		if err := s.Delete(ctx, id); err != nil {
			return deleted, newServiceError(opPurgeSeeded, "delete_failed", err)
		}
		deleted++
	}
	return deleted, nil
}

func memoryIDFromIndexKey(key string) (MemoryID, bool) {
	if len(key) <= len(indexKeyPrefix)+len(".json") {
		return "", false
	}
	if key[:len(indexKeyPrefix)] != indexKeyPrefix || key[len(key)-len(".json"):] != ".json" {
		return "", false
	}
	id, err := NewMemoryID(key[len(indexKeyPrefix) : len(key)-len(".json")])
	if err != nil {
		return "", false
	}
	return id, true
}
