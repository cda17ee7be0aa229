package store

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/pmccbot/position-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	leaps   []model.LeapsPosition
	shorts  []model.ShortCall
	alerts  []model.Alert
	history []model.CostBasisEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) CreateLeaps(_ context.Context, p *model.LeapsPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaps = append(s.leaps, *p)
	return nil
}

func (s *MemoryStore) GetLeaps(_ context.Context, id string) (*model.LeapsPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.leaps {
		if s.leaps[i].ID == id {
			p := s.leaps[i]
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListActiveLeaps(_ context.Context) ([]model.LeapsPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.LeapsPosition
	for _, p := range s.leaps {
		if p.Status == model.StatusActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) CloseLeaps(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.leaps {
		if s.leaps[i].ID == id {
			s.leaps[i].Status = model.StatusClosed
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) CreateShortCall(_ context.Context, sc *model.ShortCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shorts = append(s.shorts, *sc)
	return nil
}

func (s *MemoryStore) GetShortCall(_ context.Context, id string) (*model.ShortCall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.shorts {
		if s.shorts[i].ID == id {
			sc := s.shorts[i]
			return &sc, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListActiveShortCalls(_ context.Context) ([]model.ShortCall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ShortCall
	for _, sc := range s.shorts {
		if sc.Status == model.StatusActive {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListActiveShortCallsByLeaps(_ context.Context, leapsID string) ([]model.ShortCall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ShortCall
	for _, sc := range s.shorts {
		if sc.Status == model.StatusActive && sc.LeapsID == leapsID {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (s *MemoryStore) ApplyShortCallClose(_ context.Context, sc *model.ShortCall, entry *model.CostBasisEntry, newBasis decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scIdx := -1
	for i := range s.shorts {
		if s.shorts[i].ID == sc.ID {
			scIdx = i
			break
		}
	}
	if scIdx < 0 {
		return ErrNotFound
	}

	leapsIdx := -1
	for i := range s.leaps {
		if s.leaps[i].ID == sc.LeapsID {
			leapsIdx = i
			break
		}
	}
	if leapsIdx < 0 {
		return ErrNotFound
	}

	// All lookups succeeded; apply the triple write under one lock hold.
	s.shorts[scIdx] = *sc
	s.history = append(s.history, *entry)
	s.leaps[leapsIdx].AdjustedCostBasis = newBasis
	return nil
}

func (s *MemoryStore) CreateAlert(_ context.Context, a *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, *a)
	return nil
}

func (s *MemoryStore) LatestAlert(_ context.Context, shortCallID string, t model.AlertType) (*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *model.Alert
	for i := range s.alerts {
		a := s.alerts[i]
		if a.ShortCallID != shortCallID || a.Type != t {
			continue
		}
		if latest == nil || a.TriggeredAt.After(latest.TriggeredAt) {
			cp := a
			latest = &cp
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (s *MemoryStore) ListUnacknowledgedAlerts(_ context.Context) ([]model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Alert
	for i := len(s.alerts) - 1; i >= 0; i-- {
		if !s.alerts[i].Acknowledged {
			out = append(out, s.alerts[i])
		}
	}
	return out, nil
}

func (s *MemoryStore) AcknowledgeAlert(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts[i].Acknowledged = true
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) ListCostBasisHistory(_ context.Context, leapsID string) ([]model.CostBasisEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.CostBasisEntry
	for _, e := range s.history {
		if e.LeapsID == leapsID {
			out = append(out, e)
		}
	}
	return out, nil
}
