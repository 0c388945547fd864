package store

import (
	"context"
	"strings"
	"sync"

	"mailroom/internal/tenant/models"
	id "mailroom/pkg/domain"
	"mailroom/pkg/platform/sentinel"
)

// InMemoryStore keeps organizations in process memory, for dev and tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	byID   map[id.OrgID]*models.Organization
	byAddr map[string]id.OrgID
	bySub  map[string]id.OrgID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:   make(map[id.OrgID]*models.Organization),
		byAddr: make(map[string]id.OrgID),
		bySub:  make(map[string]id.OrgID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := strings.ToLower(org.InboundAddress)
	if _, exists := s.byAddr[addr]; exists {
		return sentinel.ErrDuplicate
	}
	clone := *org
	s.byID[org.ID] = &clone
	s.byAddr[addr] = org.ID
	if org.Subdomain != "" {
		s.bySub[strings.ToLower(org.Subdomain)] = org.ID
	}
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, orgID id.OrgID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(orgID)
}

func (s *InMemoryStore) FindByAddress(_ context.Context, address string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orgID, ok := s.byAddr[strings.ToLower(address)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.get(orgID)
}

func (s *InMemoryStore) FindBySubdomain(_ context.Context, subdomain string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orgID, ok := s.bySub[strings.ToLower(subdomain)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.get(orgID)
}

func (s *InMemoryStore) Update(_ context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[org.ID]; !ok {
		return sentinel.ErrNotFound
	}
	clone := *org
	s.byID[org.ID] = &clone
	return nil
}

func (s *InMemoryStore) get(orgID id.OrgID) (*models.Organization, error) {
	org, ok := s.byID[orgID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *org
	return &clone, nil
}
