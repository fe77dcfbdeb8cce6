package notes

import (
	"context"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// MemoryStore is an in-process Store, used for tests and the "memory" backend.
type MemoryStore struct {
	mu    sync.RWMutex
	notes map[string]*Note
	order []string
	now   func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		notes: make(map[string]*Note),
		now:   time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, ownerID, content string, status Status) (*Note, error) {
	content, err := NormalizeContent(content)
	if err != nil {
		return nil, err
	}
	if status == "" {
		status = StatusActive
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	note := &Note{
		ID:        id,
		OwnerID:   ownerID,
		Content:   content,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[id] = note
	s.order = append(s.order, id)

	cp := *note
	return &cp, nil
}

func (s *MemoryStore) ListByOwner(ctx context.Context, ownerID string) ([]*Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*Note{}
	for _, id := range s.order {
		if n, ok := s.notes[id]; ok && n.OwnerID == ownerID {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notes[id]
	if !ok || n.OwnerID != ownerID {
		return false, nil
	}
	delete(s.notes, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id, ownerID string, status Status) (*Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notes[id]
	if !ok || n.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	n.Status = status
	n.UpdatedAt = s.now().UTC()

	cp := *n
	return &cp, nil
}
