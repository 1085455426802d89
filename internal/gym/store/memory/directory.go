package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/types"
)

// MembershipStore is an in-memory snapshot of the membership store keyed by
// external key.
type MembershipStore struct {
	mu    sync.RWMutex
	byKey map[string]types.Member
}

func NewMembershipStore(members ...types.Member) *MembershipStore {
	s := &MembershipStore{byKey: make(map[string]types.Member, len(members))}
	for _, m := range members {
		s.Put(m)
	}
	return s
}

// Put inserts or replaces a member.
func (s *MembershipStore) Put(m types.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[strings.TrimSpace(m.ExternalKey)] = m
}

func (s *MembershipStore) ResolveMember(_ context.Context, externalKey string) (types.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byKey[externalKey]
	if !ok {
		return types.Member{}, store.ErrNotFound
	}
	return m, nil
}

type PlanCatalog struct {
	mu    sync.RWMutex
	plans map[string]types.Plan
}

func NewPlanCatalog(plans ...types.Plan) *PlanCatalog {
	c := &PlanCatalog{plans: make(map[string]types.Plan, len(plans))}
	for _, p := range plans {
		c.Put(p)
	}
	return c
}

func (c *PlanCatalog) Put(p types.Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plans[p.ID] = p
}

func (c *PlanCatalog) GetPlan(_ context.Context, planRef string) (types.Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.plans[planRef]
	if !ok {
		return types.Plan{}, store.ErrNotFound
	}
	return p, nil
}

// BillingLedger is an in-memory append-only list of payment events.
type BillingLedger struct {
	mu     sync.RWMutex
	nextID int64
	events []types.PaymentEvent
}

func NewBillingLedger(events ...types.PaymentEvent) *BillingLedger {
	b := &BillingLedger{}
	for _, ev := range events {
		b.Record(ev)
	}
	return b
}

// Record appends ev, assigning the next ID when ev.ID is zero.
func (b *BillingLedger) Record(ev types.PaymentEvent) types.PaymentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ev.ID == 0 {
		b.nextID++
		ev.ID = b.nextID
	} else if ev.ID > b.nextID {
		b.nextID = ev.ID
	}
	b.events = append(b.events, ev)
	return ev
}

func (b *BillingLedger) GetPaymentHistory(_ context.Context, memberID string) ([]types.PaymentEvent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []types.PaymentEvent
	for _, ev := range b.events {
		if ev.MemberID == memberID {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}
