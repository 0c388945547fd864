package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"mailroom/internal/project/models"
	id "mailroom/pkg/domain"
	"mailroom/pkg/platform/sentinel"
)

// InMemoryStore keeps projects in process memory, for dev and tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	projects map[id.ProjectID]*models.Project
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{projects: make(map[id.ProjectID]*models.Project)}
}

func (s *InMemoryStore) Create(_ context.Context, project *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.projects[project.ID]; exists {
		return sentinel.ErrDuplicate
	}
	s.projects[project.ID] = clone(project)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, orgID id.OrgID, projectID id.ProjectID) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[projectID]
	if !ok || p.OrgID != orgID {
		return nil, sentinel.ErrNotFound
	}
	return clone(p), nil
}

func (s *InMemoryStore) FindByNameAndSender(_ context.Context, orgID id.OrgID, name, sender string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *models.Project
	for _, p := range s.projects {
		if p.OrgID != orgID || p.Name != name || !hasParticipant(p, sender) {
			continue
		}
		if best == nil || p.UpdatedAt.After(best.UpdatedAt) {
			best = p
		}
	}
	if best == nil {
		return nil, sentinel.ErrNotFound
	}
	return clone(best), nil
}

func (s *InMemoryStore) Update(_ context.Context, project *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.projects[project.ID]
	if !ok || current.OrgID != project.OrgID {
		return sentinel.ErrNotFound
	}
	if current.Version != project.Version-1 {
		return sentinel.ErrVersionConflict
	}
	s.projects[project.ID] = clone(project)
	return nil
}

func (s *InMemoryStore) ListByOrg(_ context.Context, orgID id.OrgID) ([]*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Project
	for _, p := range s.projects {
		if p.OrgID == orgID {
			out = append(out, clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func hasParticipant(p *models.Project, sender string) bool {
	for _, participant := range p.Participants {
		if strings.EqualFold(participant, sender) {
			return true
		}
	}
	return false
}

func clone(p *models.Project) *models.Project {
	c := *p
	c.Participants = append([]string(nil), p.Participants...)
	c.People = append([]string(nil), p.People...)
	return &c
}
