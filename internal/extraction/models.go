// Package extraction turns decoded email text into a structured,
// schema-validated payload through an AI capability boundary.
package extraction

// Payload is the structured intelligence pulled from one message. All fields
// are optional; absence means the model found nothing, not an error.
type Payload struct {
	ProjectName      string       `json:"project_name,omitempty"`
	ProjectAddress   string       `json:"project_address,omitempty"`
	Decisions        []Decision   `json:"decisions,omitempty"`
	ActionItems      []ActionItem `json:"action_items,omitempty"`
	ScopeChanges     []string     `json:"scope_changes,omitempty"`
	BudgetMentions   []string     `json:"budget_mentions,omitempty"`
	TimelineChanges  []string     `json:"timeline_changes,omitempty"`
	Risks            []string     `json:"risks,omitempty"`
	KeyPoints        []string     `json:"key_points,omitempty"`
	PeopleMentioned  []string     `json:"people_mentioned,omitempty"`
	RequiresResponse bool         `json:"requires_response,omitempty"`
}

// Decision is one decision surfaced from a message: what was decided, by
// whom, when, and what it touches.
type Decision struct {
	Decision  string   `json:"decision"`
	MadeBy    string   `json:"made_by,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Affects   []string `json:"affects,omitempty"`
}

// ActionItem is one task surfaced from a message. Deadline is kept as the
// model's free text; no date parsing happens here.
type ActionItem struct {
	Task     string `json:"task"`
	Owner    string `json:"owner,omitempty"`
	Deadline string `json:"deadline,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// Status is the terminal state of one extraction.
type Status string

const (
	// StatusExtracted means a schema-valid payload was produced.
	StatusExtracted Status = "extracted"
	// StatusDegraded means extraction was skipped or exhausted its retries;
	// the message is still recorded, without structured content.
	StatusDegraded Status = "degraded"
)

// Result is a tagged union: Payload is non-nil exactly when Status is
// StatusExtracted, and DegradedReason is set exactly when it is not.
type Result struct {
	Status         Status
	Payload        *Payload
	DegradedReason string

	// Usage totals token consumption across every attempt that reached the
	// model, including failed ones. Nil when no attempt was made.
	Usage *Usage
}

// Usage is the token consumption of extraction attempts for one message.
type Usage struct {
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Extracted builds a successful result.
func Extracted(p *Payload, usage *Usage) *Result {
	return &Result{Status: StatusExtracted, Payload: p, Usage: usage}
}

// Degraded builds a result recording why no payload exists.
func Degraded(reason string, usage *Usage) *Result {
	return &Result{Status: StatusDegraded, DegradedReason: reason, Usage: usage}
}
