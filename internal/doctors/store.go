package doctors

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// UpdateFunc mutates an account inside an atomic read-modify-write. Returning
// an error discards every change.
type UpdateFunc func(acct *Account) error

// Store persists doctor accounts.
type Store interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByUser(ctx context.Context, userID string) (*Account, error)
	List(ctx context.Context) ([]*Account, error)
	Save(ctx context.Context, acct *Account) error
	Update(ctx context.Context, id string, fn UpdateFunc) (*Account, error)
}

// MemoryStore keeps accounts in process. Update runs fn on a copy and swaps
// it in only on success, so readers never see half-applied changes.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*Account), now: time.Now}
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return acct.Clone(), nil
}

func (s *MemoryStore) FindByUser(ctx context.Context, userID string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, acct := range s.accounts {
		if acct.UserID == userID {
			return acct.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) List(ctx context.Context) ([]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		out = append(out, acct.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Save(ctx context.Context, acct *Account) error {
	if acct == nil {
		return nil
	}
	if err := acct.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}
	now := s.now().UTC()
	if existing, ok := s.accounts[acct.ID]; ok {
		acct.CreatedAt = existing.CreatedAt
	} else if acct.CreatedAt.IsZero() {
		acct.CreatedAt = now
	}
	acct.UpdatedAt = now
	s.accounts[acct.ID] = acct.Clone()
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn UpdateFunc) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.UpdatedAt = s.now().UTC()
	s.accounts[id] = next
	return next.Clone(), nil
}
