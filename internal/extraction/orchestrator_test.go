package extraction_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"mailroom/internal/extraction"
	"mailroom/internal/extraction/mocks"
	dErrors "mailroom/pkg/domain-errors"
	"mailroom/pkg/platform/circuit"
)

// OrchestratorSuite tests retry, degradation, and breaker behavior around the
// AI client boundary.
type OrchestratorSuite struct {
	suite.Suite
	ctx    context.Context
	ctrl   *gomock.Controller
	client *mocks.MockClient
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.client = mocks.NewMockClient(s.ctrl)
}

func (s *OrchestratorSuite) newOrchestrator(opts ...extraction.OrchestratorOption) *extraction.Orchestrator {
	base := []extraction.OrchestratorOption{
		extraction.WithMaxAttempts(3),
		extraction.WithInitialBackoff(time.Millisecond),
	}
	return extraction.NewOrchestrator(s.client, append(base, opts...)...)
}

func (s *OrchestratorSuite) request() extraction.Request {
	return extraction.Request{
		Subject: "Re: Riverside foundation pour",
		Sender:  "dana@client.example",
		Body:    "We approved the change order. Budget is now $45,000.",
	}
}

func validResponse() *extraction.Response {
	return &extraction.Response{
		RawJSON:          []byte(`{"project_name":"Riverside","decisions":[{"decision":"change order approved"}],"budget_mentions":["$45,000"]}`),
		Model:            "gpt-4o-mini",
		PromptTokens:     120,
		CompletionTokens: 40,
	}
}

// ===========================================================================
// Happy path
// ===========================================================================

func (s *OrchestratorSuite) TestFirstAttemptSucceeds() {
	s.client.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(validResponse(), nil)

	res, err := s.newOrchestrator().Extract(s.ctx, s.request())
	s.Require().NoError(err)
	s.Equal(extraction.StatusExtracted, res.Status)
	s.Require().NotNil(res.Payload)
	s.Equal("Riverside", res.Payload.ProjectName)
	s.Require().NotNil(res.Usage)
	s.Equal(120, res.Usage.PromptTokens)
}

// ===========================================================================
// Retry and degradation
// ===========================================================================

func (s *OrchestratorSuite) TestTransientErrorRetriesThenSucceeds() {
	transient := dErrors.New(dErrors.CodeTransient, "model endpoint returned 503")
	gomock.InOrder(
		s.client.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(nil, transient),
		s.client.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(validResponse(), nil),
	)

	res, err := s.newOrchestrator().Extract(s.ctx, s.request())
	s.Require().NoError(err)
	s.Equal(extraction.StatusExtracted, res.Status)
}

func (s *OrchestratorSuite) TestSchemaViolationConsumesAttempts() {
	bad := &extraction.Response{RawJSON: []byte(`{"project_name": 42}`), Model: "gpt-4o-mini", PromptTokens: 10}
	s.client.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(bad, nil).Times(3)

	res, err := s.newOrchestrator().Extract(s.ctx, s.request())
	s.Require().NoError(err)
	s.Equal(extraction.StatusDegraded, res.Status)
	s.Equal("model output failed schema validation", res.DegradedReason)
	s.Nil(res.Payload)
}

func (s *OrchestratorSuite) TestExhaustionDegradesWithAccumulatedUsage() {
	bad := &extraction.Response{RawJSON: []byte(`not json`), Model: "gpt-4o-mini", PromptTokens: 10, CompletionTokens: 5}
	s.client.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(bad, nil).Times(3)

	res, err := s.newOrchestrator().Extract(s.ctx, s.request())
	s.Require().NoError(err)
	s.Equal(extraction.StatusDegraded, res.Status)
	s.Require().NotNil(res.Usage)
	s.Equal(30, res.Usage.PromptTokens)
	s.Equal(15, res.Usage.CompletionTokens)
}

func (s *OrchestratorSuite) TestContextCancellationIsTransientError() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	s.client.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(nil, ctx.Err()).MaxTimes(1)

	_, err := s.newOrchestrator().Extract(ctx, s.request())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTransient))
}

// ===========================================================================
// Breaker
// ===========================================================================

func (s *OrchestratorSuite) TestOpenBreakerSkipsModelEntirely() {
	breaker := circuit.New("extraction", circuit.WithFailureThreshold(1))
	breaker.RecordFailure()

	res, err := s.newOrchestrator(extraction.WithBreaker(breaker)).Extract(s.ctx, s.request())
	s.Require().NoError(err)
	s.Equal(extraction.StatusDegraded, res.Status)
	s.Equal("ai endpoint unavailable", res.DegradedReason)
	s.Nil(res.Usage)
}

func (s *OrchestratorSuite) TestRepeatedExhaustionOpensBreaker() {
	breaker := circuit.New("extraction", circuit.WithFailureThreshold(2))
	transient := dErrors.New(dErrors.CodeTransient, "model endpoint unreachable")
	s.client.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(nil, transient).Times(6)

	orch := s.newOrchestrator(extraction.WithBreaker(breaker))
	for i := 0; i < 2; i++ {
		res, err := orch.Extract(s.ctx, s.request())
		s.Require().NoError(err)
		s.Equal(extraction.StatusDegraded, res.Status)
	}
	s.True(breaker.IsOpen())

	// No further model calls once open.
	res, err := orch.Extract(s.ctx, s.request())
	s.Require().NoError(err)
	s.Equal(extraction.StatusDegraded, res.Status)
}

func (s *OrchestratorSuite) TestSuccessClosesBreakerAfterThreshold() {
	breaker := circuit.New("extraction", circuit.WithFailureThreshold(1), circuit.WithSuccessThreshold(1))
	breaker.RecordFailure()
	breaker.RecordSuccess()
	s.False(breaker.IsOpen())

	s.client.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(validResponse(), nil)
	res, err := s.newOrchestrator(extraction.WithBreaker(breaker)).Extract(s.ctx, s.request())
	s.Require().NoError(err)
	s.Equal(extraction.StatusExtracted, res.Status)
}
