package contextstore

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/stateflow/pkg/models"
)

type memoryEntry struct {
	snap      *models.Snapshot
	expiresAt time.Time
}

// MemoryStore is the process-local Store used for single-node deployments
// and tests. Expired entries are dropped lazily on read and swept
// periodically by a cron job.
type MemoryStore struct {
	ttl     time.Duration
	nowFunc func() time.Time // for testing

	mu      sync.RWMutex
	entries map[string]memoryEntry

	cron *cron.Cron
}

// NewMemoryStore creates an in-memory store. A non-positive ttl falls back
// to DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &MemoryStore{
		ttl:     ttl,
		nowFunc: time.Now,
		entries: map[string]memoryEntry{},
	}
	s.cron = cron.New()
	// Sweep cadence does not affect correctness, only memory pressure.
	_, _ = s.cron.AddFunc("@every 1m", s.sweep)
	s.cron.Start()
	return s
}

func (s *MemoryStore) sweep() {
	now := s.nowFunc()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*models.Snapshot, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if s.nowFunc().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	return models.CloneSnapshot(entry.snap), nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, snap *models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{
		snap:      models.CloneSnapshot(snap),
		expiresAt: s.nowFunc().Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	now := s.nowFunc()
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *MemoryStore) Close() error {
	if s.cron != nil {
		s.cron.Stop()
	}
	return nil
}
