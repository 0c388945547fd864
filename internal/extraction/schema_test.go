package extraction_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"mailroom/internal/extraction"
	dErrors "mailroom/pkg/domain-errors"
)

// SchemaSuite tests validation of raw model output.
type SchemaSuite struct {
	suite.Suite
}

func TestSchemaSuite(t *testing.T) {
	suite.Run(t, new(SchemaSuite))
}

func (s *SchemaSuite) TestFullPayload() {
	raw := []byte(`{
		"project_name": "Riverside Office Complex",
		"project_address": "400 River Rd",
		"decisions": [
			{"decision": "change order approved", "made_by": "Dana Ortiz", "timestamp": "Tuesday", "affects": ["budget"]}
		],
		"action_items": [
			{"task": "order rebar", "owner": "Pat Lee", "deadline": "2026-08-28", "priority": "high"}
		],
		"scope_changes": ["added third floor"],
		"budget_mentions": ["$45,000"],
		"timeline_changes": ["pour moved to Friday"],
		"risks": ["weather delay"],
		"key_points": ["client approved"],
		"people_mentioned": ["Dana Ortiz"],
		"requires_response": true
	}`)

	p, err := extraction.ParsePayload(raw)
	s.Require().NoError(err)
	s.Equal("Riverside Office Complex", p.ProjectName)
	s.Equal([]string{"Dana Ortiz"}, p.PeopleMentioned)
	s.True(p.RequiresResponse)

	s.Require().Len(p.Decisions, 1)
	s.Equal("change order approved", p.Decisions[0].Decision)
	s.Equal("Dana Ortiz", p.Decisions[0].MadeBy)
	s.Equal([]string{"budget"}, p.Decisions[0].Affects)

	s.Require().Len(p.ActionItems, 1)
	s.Equal("order rebar", p.ActionItems[0].Task)
	s.Equal("2026-08-28", p.ActionItems[0].Deadline)
	s.Equal("high", p.ActionItems[0].Priority)
}

func (s *SchemaSuite) TestNullItemFieldsDecodeAsEmpty() {
	p, err := extraction.ParsePayload([]byte(`{
		"action_items": [{"task": "order rebar", "owner": null, "deadline": null}]
	}`))
	s.Require().NoError(err)
	s.Require().Len(p.ActionItems, 1)
	s.Equal("order rebar", p.ActionItems[0].Task)
	s.Empty(p.ActionItems[0].Deadline)
}

func (s *SchemaSuite) TestEmptyObjectIsValid() {
	p, err := extraction.ParsePayload([]byte(`{}`))
	s.Require().NoError(err)
	s.Empty(p.ProjectName)
	s.Empty(p.KeyPoints)
}

func (s *SchemaSuite) TestRejections() {
	cases := map[string]string{
		"not JSON at all":          `the model apologizes and cannot help`,
		"wrong field type":         `{"project_name": 42}`,
		"decision without text":    `{"decisions": [{"made_by": "Dana"}]}`,
		"flat decision string":     `{"decisions": ["change order approved"]}`,
		"flat action item string":  `{"action_items": ["order rebar"]}`,
		"action item without task": `{"action_items": [{"owner": "Pat"}]}`,
		"unknown top-level":        `{"hallucinated_field": "yes"}`,
		"array container":          `["project_name"]`,
	}
	for name, raw := range cases {
		s.Run(name, func() {
			_, err := extraction.ParsePayload([]byte(raw))
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeExtractionSchema))
		})
	}
}
