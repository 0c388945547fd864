// Package models defines the project aggregate.
package models

import (
	"strings"
	"time"

	id "mailroom/pkg/domain"
	dErrors "mailroom/pkg/domain-errors"
	pstrings "mailroom/pkg/platform/strings"
)

// UnnamedProject is the placeholder name given to projects created from a
// message whose extraction produced no project name. A later message that
// does name the project replaces it.
const UnnamedProject = "Unnamed Project"

// Project is the organization-scoped aggregate that messages attach to.
//
// Invariants:
//   - OrgID never changes after creation
//   - A project that has absorbed no messages is at version 0; Version
//     increases by exactly one per applied message, and the event recorded
//     for that message carries the post-bump version as its sequence number
//   - Participants contains every sender whose mail has attached here,
//     deduplicated, original casing of the first occurrence kept
type Project struct {
	ID    id.ProjectID `json:"id"`
	OrgID id.OrgID     `json:"org_id"`

	Name    string `json:"name"`
	Address string `json:"address,omitempty"`

	// Participants are normalized sender addresses seen on this project.
	Participants []string `json:"participants,omitempty"`

	// People are names the extraction surfaced, unioned across messages.
	People []string `json:"people_mentioned,omitempty"`

	// Version is the optimistic-concurrency token and the event sequence
	// source. Writes are conditioned on the version they read.
	Version int64 `json:"version"`

	// LastEventAt/LastEventSummary snapshot the most recent applied message
	// for list views, so reads need not join the ledger.
	LastEventAt      time.Time `json:"last_event_at"`
	LastEventSummary string    `json:"last_event_summary,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageFacts is what one applied message contributes to the aggregate.
type MessageFacts struct {
	ProjectName    string
	ProjectAddress string
	People         []string
	Sender         string
	Summary        string
}

// New creates a project at version 0, so the first applied message produces
// version 1. An empty name gets the placeholder.
func New(orgID id.OrgID, name, sender string, now time.Time) (*Project, error) {
	if orgID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "project requires an organization")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = UnnamedProject
	}
	p := &Project{
		ID:        id.NewProjectID(),
		OrgID:     orgID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if sender != "" {
		p.Participants = []string{sender}
	}
	return p, nil
}

// Apply merges one message's facts into the aggregate and bumps the version.
// The placeholder name yields to a real one; a real name is never overwritten.
func (p *Project) Apply(facts MessageFacts, now time.Time) {
	if name := strings.TrimSpace(facts.ProjectName); name != "" {
		if p.Name == "" || p.Name == UnnamedProject {
			p.Name = name
		}
	}
	if addr := strings.TrimSpace(facts.ProjectAddress); addr != "" {
		p.Address = addr
	}
	if facts.Sender != "" {
		p.Participants = pstrings.MergeDedupe(p.Participants, []string{facts.Sender})
	}
	p.People = pstrings.MergeDedupe(p.People, facts.People)

	p.Version++
	p.LastEventAt = now
	p.LastEventSummary = facts.Summary
	p.UpdatedAt = now
}
