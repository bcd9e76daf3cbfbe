package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

type User struct {
	UID       string
	Email     string
	PassHash  string // argon2id encoded string
	CreatedAt time.Time
}

type UserStore interface {
	FindByUID(ctx context.Context, uid string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Add(ctx context.Context, u *User) error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type MemoryUserStore struct {
	mu      sync.RWMutex
	byUID   map[string]*User
	byEmail map[string]*User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byUID:   map[string]*User{},
		byEmail: map[string]*User{},
	}
}

func (s *MemoryUserStore) Add(_ context.Context, u *User) error {
	if u == nil {
		return errors.New("user is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byUID[u.UID]; exists {
		return ErrUserExists
	}
	email := normalizeEmail(u.Email)
	if _, exists := s.byEmail[email]; exists {
		return ErrUserExists
	}
	clone := *u
	clone.Email = email
	s.byUID[u.UID] = &clone
	s.byEmail[email] = &clone
	return nil
}

func (s *MemoryUserStore) FindByUID(_ context.Context, uid string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.byUID[uid]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, ErrUserNotFound
}

func (s *MemoryUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.byEmail[normalizeEmail(email)]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, ErrUserNotFound
}
