// Package domain holds the typed identifiers shared across pipeline stages.
//
// Identifiers are domain primitives: construction validates shape so downstream
// code never has to re-check. OrgID and ProjectID use short prefixed forms
// ("ORG-...", "PROJ-...") so they stay readable in logs and email addresses.
package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// OrgID identifies an organization, the isolation boundary for all data.
type OrgID string

// ProjectID identifies a project. Only the (OrgID, ProjectID) pair is
// globally unique; a ProjectID alone is meaningless without its organization.
type ProjectID string

// EventID identifies a single ledger event.
type EventID string

// MessageID is the source email message identifier. It doubles as the
// idempotency key for ledger appends within an organization.
type MessageID string

const (
	orgPrefix     = "ORG-"
	projectPrefix = "PROJ-"
)

// NewOrgID generates a new organization identifier.
func NewOrgID() OrgID {
	return OrgID(orgPrefix + shortHex(12))
}

// NewProjectID generates a new project identifier.
func NewProjectID() ProjectID {
	return ProjectID(projectPrefix + shortHex(8))
}

// NewEventID generates a new event identifier.
func NewEventID() EventID {
	return EventID(uuid.NewString())
}

// shortHex returns an uppercase hex fragment. Uppercase keeps the ids stable
// through email plus-address tags, which are case-folded in transit.
func shortHex(n int) string {
	hex := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return hex[:n]
}

// ParseOrgID validates the prefixed form of an organization ID.
func ParseOrgID(s string) (OrgID, error) {
	if !strings.HasPrefix(s, orgPrefix) || len(s) <= len(orgPrefix) {
		return "", fmt.Errorf("invalid organization id: %q", s)
	}
	return OrgID(s), nil
}

// ParseProjectID validates the prefixed form of a project ID.
func ParseProjectID(s string) (ProjectID, error) {
	if !strings.HasPrefix(s, projectPrefix) || len(s) <= len(projectPrefix) {
		return "", fmt.Errorf("invalid project id: %q", s)
	}
	return ProjectID(s), nil
}

func (o OrgID) String() string     { return string(o) }
func (o OrgID) IsNil() bool        { return o == "" }
func (p ProjectID) String() string { return string(p) }
func (p ProjectID) IsNil() bool    { return p == "" }
func (e EventID) String() string   { return string(e) }
func (m MessageID) String() string { return string(m) }
func (m MessageID) IsNil() bool    { return m == "" }
