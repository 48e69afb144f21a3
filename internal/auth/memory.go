package auth

import (
	"context"
	"sync"

	"selco.dev/staffauth/internal/ids"
)

var (
	_ AccountStore = (*MemoryStore)(nil)
	_ AuditStore   = (*MemoryStore)(nil)
)

// MemoryStore keeps accounts and audit entries in process. The email index
// plays the role of the unique constraint of the durable stores.
type MemoryStore struct {
	mu       sync.RWMutex
	byEmail  map[string]*Account
	byID     map[string]string
	accesses []AccessLogEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byEmail: make(map[string]*Account),
		byID:    make(map[string]string),
	}
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

func (s *MemoryStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byEmail[email]
	return ok, nil
}

func (s *MemoryStore) Save(ctx context.Context, acc *Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc.ID == "" {
		if _, taken := s.byEmail[acc.Email]; taken {
			return ErrAlreadyExists
		}
		acc.ID = ids.New()
	} else if prev, ok := s.byID[acc.ID]; ok && prev != acc.Email {
		if _, taken := s.byEmail[acc.Email]; taken {
			return ErrAlreadyExists
		}
		delete(s.byEmail, prev)
	}
	cp := *acc
	s.byEmail[acc.Email] = &cp
	s.byID[acc.ID] = acc.Email
	return nil
}

// Count returns the number of stored accounts.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byEmail)
}

func (s *MemoryStore) Append(ctx context.Context, entry *AccessLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	s.accesses = append(s.accesses, *entry)
	return nil
}

// Entries returns a copy of the audit trail in append order.
func (s *MemoryStore) Entries() []AccessLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AccessLogEntry, len(s.accesses))
	copy(out, s.accesses)
	return out
}
