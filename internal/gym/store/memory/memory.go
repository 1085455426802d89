package memory

import (
	"context"
	"sync"
	"time"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store"
)

// HeartbeatStore keeps every kiosk heartbeat in memory.
type HeartbeatStore struct {
	mu   sync.RWMutex
	data map[string][]store.HeartbeatRecord
}

func NewHeartbeatStore() *HeartbeatStore {
	return &HeartbeatStore{
		data: make(map[string][]store.HeartbeatRecord),
	}
}

func (s *HeartbeatStore) RecordHeartbeat(_ context.Context, kioskID string, rec store.HeartbeatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	s.data[kioskID] = append(s.data[kioskID], rec)
	return nil
}

func (s *HeartbeatStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, recs := range s.data {
		kept := recs[:0]
		for _, r := range recs {
			if r.ReceivedAt.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(s.data, id)
			continue
		}
		s.data[id] = kept
	}
	return deleted, nil
}

// Latest returns the most recent heartbeat for kioskID. Test-only helper.
func (s *HeartbeatStore) Latest(kioskID string) (store.HeartbeatRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.data[kioskID]
	if len(recs) == 0 {
		return store.HeartbeatRecord{}, false
	}
	return recs[len(recs)-1], true
}
