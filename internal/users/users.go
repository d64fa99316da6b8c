// Package users looks up registered patients for booking identity resolution.
package users

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no user matches.
var ErrNotFound = errors.New("users: not found")

// User is a registered account holder.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// Store is the subset of user persistence the booking engine needs.
type Store interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByPhone(ctx context.Context, phone string) (*User, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]User, error)
	UpdatePhone(ctx context.Context, id, phone string) error
}

// NormalizePhone trims whitespace so lookups compare what the user typed.
func NormalizePhone(phone string) string {
	return strings.TrimSpace(phone)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*User)}
}

// Add stores u, assigning an id when empty.
func (s *MemoryStore) Add(u User) User {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	u.Phone = NormalizePhone(u.Phone)
	s.mu.Lock()
	s.users[u.ID] = &u
	s.mu.Unlock()
	return u
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (s *MemoryStore) FindByPhone(ctx context.Context, phone string) (*User, error) {
	phone = NormalizePhone(phone)
	if phone == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Phone == phone {
			out := *u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindByIDs(ctx context.Context, ids []string) (map[string]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = *u
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdatePhone(ctx context.Context, id, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Phone = NormalizePhone(phone)
	return nil
}
