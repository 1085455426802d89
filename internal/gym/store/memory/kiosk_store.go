package memory

import (
	"context"
	"strings"
	"sync"
	"time"
)

type KioskStore struct {
	mu    sync.RWMutex
	known map[string]struct{}
	seen  map[string]time.Time
}

func NewKioskStore(knownKiosks []string) *KioskStore {
	k := make(map[string]struct{}, len(knownKiosks))
	for _, id := range knownKiosks {
		id = strings.TrimSpace(id)
		if id != "" {
			k[id] = struct{}{}
		}
	}
	return &KioskStore{
		known: k,
		seen:  make(map[string]time.Time),
	}
}

func (s *KioskStore) IsKnown(_ context.Context, kioskID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.known[kioskID]
	return ok, nil
}

func (s *KioskStore) MarkSeen(_ context.Context, kioskID string, _ bool, t time.Time) error {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[kioskID] = t
	return nil
}

// LastSeen reports when kioskID was last heard from. Test-only helper.
func (s *KioskStore) LastSeen(kioskID string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.seen[kioskID]
	return t, ok
}
