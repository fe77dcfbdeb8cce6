package calendar

import (
	"context"
	"sort"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// MemoryProvider keeps one MemoryStore per linked principal.
type MemoryProvider struct {
	mu     sync.Mutex
	stores map[string]*MemoryStore
}

// NewMemoryProvider creates a provider with no linked principals.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{stores: make(map[string]*MemoryStore)}
}

// Link gives principalID a calendar and returns it.
func (p *MemoryProvider) Link(principalID string) *MemoryStore {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.stores[principalID]
	if !ok {
		s = NewMemoryStore()
		p.stores[principalID] = s
	}
	return s
}

func (p *MemoryProvider) ForPrincipal(ctx context.Context, principalID string) (Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.stores[principalID]
	if !ok {
		return nil, ErrNotLinked
	}
	return s, nil
}

// MemoryStore is an in-process calendar.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]*Event
}

// NewMemoryStore creates an empty calendar.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]*Event)}
}

func (s *MemoryStore) CreateEvent(ctx context.Context, in EventInput) (*Event, error) {
	if in.End.Before(in.Start) {
		return nil, ErrInvalidRange
	}
	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	ev := &Event{
		ID:          id,
		Summary:     in.Summary,
		Description: in.Description,
		Start:       in.Start,
		End:         in.End,
		TimeZone:    in.TimeZone,
	}

	s.mu.Lock()
	s.events[id] = ev
	s.mu.Unlock()

	cp := *ev
	return &cp, nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, timeMin, timeMax time.Time, max int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*Event{}
	for _, ev := range s.events {
		if ev.Start.Before(timeMin) || !ev.Start.Before(timeMax) {
			continue
		}
		cp := *ev
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func (s *MemoryStore) UpdateEvent(ctx context.Context, id string, patch EventPatch) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}

	next := *ev
	if patch.Summary != nil {
		next.Summary = *patch.Summary
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}
	if patch.Start != nil {
		next.Start = *patch.Start
	}
	if patch.End != nil {
		next.End = *patch.End
	}
	if patch.TimeZone != nil {
		next.TimeZone = *patch.TimeZone
	}
	if next.End.Before(next.Start) {
		return nil, ErrInvalidRange
	}

	*ev = next
	cp := next
	return &cp, nil
}
