package pebble

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/user/cardshot/internal/entity"
)

const keyPrefix = "render/"

// RenderRecordStore keeps render history in a local pebble database, for runs
// without a PostgreSQL server.
type RenderRecordStore struct {
	db *pebble.DB
}

// Open opens or creates the database in dir.
func Open(dir string) (*RenderRecordStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open render history %s: %w", dir, err)
	}
	return &RenderRecordStore{db: db}, nil
}

func runPrefix(runID string) []byte {
	return []byte(keyPrefix + runID + "/")
}

// recordKey orders records of a run by job index under plain byte comparison.
func recordKey(runID string, index int) []byte {
	return fmt.Appendf(runPrefix(runID), "%010d", index)
}

// upperBound returns the smallest key greater than every key with the prefix.
func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (s *RenderRecordStore) Save(ctx context.Context, rec *entity.RenderRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal render record: %w", err)
	}
	return s.db.Set(recordKey(rec.RunID, rec.Index), data, pebble.Sync)
}

func (s *RenderRecordStore) ListByRun(ctx context.Context, runID string) ([]*entity.RenderRecord, error) {
	prefix := runPrefix(runID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var records []*entity.RenderRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var rec entity.RenderRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal render record %s: %w", iter.Key(), err)
		}
		records = append(records, &rec)
	}
	return records, iter.Error()
}

func (s *RenderRecordStore) Close() error {
	return s.db.Close()
}
