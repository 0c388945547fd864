package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "mailroom/pkg/domain"
)

// ProjectSuite tests aggregate merge semantics and version bumping.
type ProjectSuite struct {
	suite.Suite
	now time.Time
}

func TestProjectSuite(t *testing.T) {
	suite.Run(t, new(ProjectSuite))
}

func (s *ProjectSuite) SetupTest() {
	s.now = time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC)
}

func (s *ProjectSuite) newProject(name string) *Project {
	p, err := New(id.NewOrgID(), name, "dana@client.example", s.now)
	s.Require().NoError(err)
	return p
}

func (s *ProjectSuite) TestNewDefaults() {
	p := s.newProject("")
	s.Equal(UnnamedProject, p.Name)
	s.Equal(int64(0), p.Version)
	s.Equal([]string{"dana@client.example"}, p.Participants)
}

func (s *ProjectSuite) TestNewRequiresOrganization() {
	_, err := New("", "Riverside", "dana@client.example", s.now)
	s.Error(err)
}

func (s *ProjectSuite) TestApplyBumpsVersionEveryTime() {
	p := s.newProject("Riverside")
	p.Apply(MessageFacts{Sender: "dana@client.example"}, s.now)
	s.Equal(int64(1), p.Version)
	p.Apply(MessageFacts{Sender: "pat@client.example"}, s.now.Add(time.Minute))
	s.Equal(int64(2), p.Version)
}

func (s *ProjectSuite) TestApplyFillsPlaceholderName() {
	p := s.newProject("")
	p.Apply(MessageFacts{ProjectName: "Riverside Office Complex"}, s.now)
	s.Equal("Riverside Office Complex", p.Name)
}

func (s *ProjectSuite) TestApplyNeverOverwritesRealName() {
	p := s.newProject("Riverside")
	p.Apply(MessageFacts{ProjectName: "Completely Different"}, s.now)
	s.Equal("Riverside", p.Name)
}

func (s *ProjectSuite) TestApplyUnionsPeopleAndParticipants() {
	p := s.newProject("Riverside")
	p.Apply(MessageFacts{
		Sender: "pat@client.example",
		People: []string{"Dana Ortiz", "Lee Wong"},
	}, s.now)
	p.Apply(MessageFacts{
		Sender: "dana@client.example",
		People: []string{"Lee Wong", "Sam Reyes"},
	}, s.now.Add(time.Minute))

	s.Equal([]string{"dana@client.example", "pat@client.example"}, p.Participants)
	s.Equal([]string{"Dana Ortiz", "Lee Wong", "Sam Reyes"}, p.People)
}

func (s *ProjectSuite) TestApplySnapshotsLastEvent() {
	p := s.newProject("Riverside")
	later := s.now.Add(2 * time.Hour)
	p.Apply(MessageFacts{Summary: "change order approved"}, later)

	s.Equal(later, p.LastEventAt)
	s.Equal("change order approved", p.LastEventSummary)
	s.Equal(later, p.UpdatedAt)
}
