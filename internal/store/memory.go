package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/opportunity-cli/internal/model"
)

// MemoryStore is an in-memory Store for tests and local runs without a
// database.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.Record // by record id
	bySrc   map[string]string       // source id -> record id
	cache   map[string]cacheEntry
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]model.Record),
		bySrc:   make(map[string]string),
		cache:   make(map[string]cacheEntry),
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Close() error                  { return nil }

func (s *MemoryStore) InsertRecord(_ context.Context, rec *model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if prev, ok := s.bySrc[rec.SourceID]; ok && prev != rec.ID {
		delete(s.records, prev)
	}
	s.records[rec.ID] = *rec
	s.bySrc[rec.SourceID] = rec.ID
	return nil
}

func (s *MemoryStore) InsertRecords(ctx context.Context, recs []model.Record) (int64, error) {
	var n int64
	for i := range recs {
		if err := s.InsertRecord(ctx, &recs[i]); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *MemoryStore) GetRecord(_ context.Context, id string) (*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, eris.Wrapf(ErrRecordNotFound, "%s", id)
	}
	return &rec, nil
}

func (s *MemoryStore) ListRecords(_ context.Context, filter RecordFilter) ([]model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recs []model.Record
	for _, rec := range s.records {
		if filter.SourceID != "" && rec.SourceID != filter.SourceID {
			continue
		}
		if filter.MinScore > 0 && topScore(&rec) < filter.MinScore {
			continue
		}
		recs = append(recs, rec)
	}

	limit := filter.Limit
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (s *MemoryStore) ListProcessedSourceIDs(context.Context) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool, len(s.bySrc))
	for src := range s.bySrc {
		seen[src] = true
	}
	return seen, nil
}

func (s *MemoryStore) GetCachedFetch(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, nil
	}
	return entry.data, nil
}

func (s *MemoryStore) SetCachedFetch(_ context.Context, key string, data []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = cacheEntry{data: data, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryStore) DeleteExpiredFetches(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	pruned := 0
	for key, entry := range s.cache {
		if now.After(entry.expiresAt) {
			delete(s.cache, key)
			pruned++
		}
	}
	return pruned, nil
}
