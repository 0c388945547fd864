package httptransport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"mailroom/internal/extraction"
	ledgermodels "mailroom/internal/ledger/models"
	ledgerservice "mailroom/internal/ledger/service"
	ledgerstore "mailroom/internal/ledger/store"
	projectmodels "mailroom/internal/project/models"
	projectservice "mailroom/internal/project/service"
	projectstore "mailroom/internal/project/store"
	tenantmodels "mailroom/internal/tenant/models"
	tenantservice "mailroom/internal/tenant/service"
	tenantstore "mailroom/internal/tenant/store"
	httptransport "mailroom/internal/transport/http"
	usagemodels "mailroom/internal/usage/models"
	usageservice "mailroom/internal/usage/service"
	usagestore "mailroom/internal/usage/store"
	id "mailroom/pkg/domain"
	"mailroom/pkg/platform/tx"
)

const operatorToken = "test-operator-token"

type AdminAPISuite struct {
	suite.Suite

	router   http.Handler
	tenants  *tenantservice.Service
	projects *projectservice.Resolver
	ledger   *ledgerservice.Writer
	usage    usagestore.UsageStore
	healthy  bool
}

func TestAdminAPISuite(t *testing.T) {
	suite.Run(t, new(AdminAPISuite))
}

func (s *AdminAPISuite) SetupTest() {
	s.healthy = true
	s.tenants = tenantservice.New(tenantstore.NewInMemoryStore())

	projects := projectstore.NewInMemoryStore()
	s.projects = projectservice.NewResolver(projects)
	s.ledger = ledgerservice.NewWriter(projects, ledgerstore.NewInMemoryStore(), tx.NewNopRunner())
	s.usage = usagestore.NewInMemoryStore()

	h := httptransport.NewHandler(
		s.tenants, s.projects, s.ledger, usageservice.New(s.usage),
		httptransport.WithHealthCheck("ledger", func() error {
			if !s.healthy {
				return errors.New("connection refused")
			}
			return nil
		}),
	)
	s.router = httptransport.NewRouter(h, operatorToken)
}

// do issues a request against the router and decodes the JSON body.
func (s *AdminAPISuite) do(method, path string, body any, headers map[string]string) (int, map[string]json.RawMessage) {
	s.T().Helper()

	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	decoded := map[string]json.RawMessage{}
	if rec.Body.Len() > 0 {
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec.Code, decoded
}

func operatorHeaders() map[string]string {
	return map[string]string{"X-Operator-Token": operatorToken}
}

// onboard creates an organization through the API and returns it with its
// one-time admin key.
func (s *AdminAPISuite) onboard(name, address string) (*tenantmodels.Organization, string) {
	s.T().Helper()

	code, body := s.do(http.MethodPost, "/admin/organizations", map[string]string{
		"name":            name,
		"inbound_address": address,
	}, operatorHeaders())
	s.Require().Equal(http.StatusCreated, code)

	var org tenantmodels.Organization
	s.Require().NoError(json.Unmarshal(body["organization"], &org))
	var key string
	s.Require().NoError(json.Unmarshal(body["admin_key"], &key))
	s.Require().NotEmpty(key)
	return &org, key
}

// =============================================================================
// Ops endpoints
// =============================================================================

func (s *AdminAPISuite) TestHealthzReflectsChecks() {
	code, body := s.do(http.MethodGet, "/healthz", nil, nil)
	s.Equal(http.StatusOK, code)
	s.JSONEq(`{"ledger":"ok"}`, string(body["checks"]))

	s.healthy = false
	code, _ = s.do(http.MethodGet, "/healthz", nil, nil)
	s.Equal(http.StatusServiceUnavailable, code)
}

func (s *AdminAPISuite) TestMetricsEndpointServes() {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusOK, rec.Code)
}

// =============================================================================
// Onboarding and billing
// =============================================================================

func (s *AdminAPISuite) TestOnboardRequiresOperatorToken() {
	body := map[string]string{"name": "Acme Builders", "inbound_address": "intake@acme.example.com"}

	s.Run("missing token", func() {
		code, _ := s.do(http.MethodPost, "/admin/organizations", body, nil)
		s.Equal(http.StatusUnauthorized, code)
	})

	s.Run("wrong token", func() {
		code, _ := s.do(http.MethodPost, "/admin/organizations", body, map[string]string{"X-Operator-Token": "nope"})
		s.Equal(http.StatusUnauthorized, code)
	})
}

func (s *AdminAPISuite) TestOnboardIssuesAdminKey() {
	org, key := s.onboard("Acme Builders", "intake@acme.example.com")

	s.NotEmpty(org.ID)
	s.Equal(tenantmodels.TierStarter, org.Tier)
	s.NoError(s.tenants.VerifyAdminKey(context.Background(), org.ID, key))
}

func (s *AdminAPISuite) TestOnboardRejectsBadInput() {
	s.Run("invalid json", func() {
		req := httptest.NewRequest(http.MethodPost, "/admin/organizations", bytes.NewBufferString("{"))
		req.Header.Set("X-Operator-Token", operatorToken)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("empty name", func() {
		code, _ := s.do(http.MethodPost, "/admin/organizations", map[string]string{
			"inbound_address": "intake@acme.example.com",
		}, operatorHeaders())
		s.Equal(http.StatusBadRequest, code)
	})

	s.Run("unknown tier", func() {
		code, _ := s.do(http.MethodPost, "/admin/organizations", map[string]string{
			"name":            "Acme Builders",
			"inbound_address": "intake@acme.example.com",
			"tier":            "platinum",
		}, operatorHeaders())
		s.Equal(http.StatusBadRequest, code)
	})
}

func (s *AdminAPISuite) TestOnboardDuplicateAddressConflicts() {
	s.onboard("Acme Builders", "intake@acme.example.com")

	code, _ := s.do(http.MethodPost, "/admin/organizations", map[string]string{
		"name":            "Acme Copycats",
		"inbound_address": "intake@acme.example.com",
	}, operatorHeaders())
	s.Equal(http.StatusConflict, code)
}

func (s *AdminAPISuite) TestSuspendAndReactivate() {
	org, _ := s.onboard("Acme Builders", "intake@acme.example.com")

	code, body := s.do(http.MethodPost, "/admin/organizations/"+org.ID.String()+"/suspend", nil, operatorHeaders())
	s.Require().Equal(http.StatusOK, code)

	var suspended tenantmodels.Organization
	s.Require().NoError(json.Unmarshal(body["organization"], &suspended))
	s.Equal(tenantmodels.BillingSuspended, suspended.BillingStatus)

	code, body = s.do(http.MethodPost, "/admin/organizations/"+org.ID.String()+"/reactivate", nil, operatorHeaders())
	s.Require().Equal(http.StatusOK, code)

	var reactivated tenantmodels.Organization
	s.Require().NoError(json.Unmarshal(body["organization"], &reactivated))
	s.Equal(tenantmodels.BillingActive, reactivated.BillingStatus)
}

func (s *AdminAPISuite) TestSuspendUnknownOrganization() {
	code, _ := s.do(http.MethodPost, "/admin/organizations/ORG-DEADBEEF0000/suspend", nil, operatorHeaders())
	s.Equal(http.StatusNotFound, code)
}

// =============================================================================
// Admin-key scoped reads
// =============================================================================

func (s *AdminAPISuite) TestScopedReadsRequireAdminKey() {
	org, key := s.onboard("Acme Builders", "intake@acme.example.com")
	path := "/admin/organizations/" + org.ID.String()

	s.Run("missing key", func() {
		code, _ := s.do(http.MethodGet, path, nil, nil)
		s.Equal(http.StatusUnauthorized, code)
	})

	s.Run("wrong key", func() {
		code, _ := s.do(http.MethodGet, path, nil, map[string]string{"X-Admin-Key": "nope"})
		s.Equal(http.StatusUnauthorized, code)
	})

	s.Run("malformed org id", func() {
		code, _ := s.do(http.MethodGet, "/admin/organizations/not-an-org", nil, map[string]string{"X-Admin-Key": key})
		s.Equal(http.StatusBadRequest, code)
	})

	s.Run("valid key", func() {
		code, body := s.do(http.MethodGet, path, nil, map[string]string{"X-Admin-Key": key})
		s.Equal(http.StatusOK, code)

		var got tenantmodels.Organization
		s.Require().NoError(json.Unmarshal(body["organization"], &got))
		s.Equal(org.ID, got.ID)
		s.Empty(got.AdminKeyHash)
	})
}

func (s *AdminAPISuite) TestAnotherOrgsKeyIsRejected() {
	org, _ := s.onboard("Acme Builders", "intake@acme.example.com")
	_, otherKey := s.onboard("Rival Construction", "mail@rival.example.com")

	code, _ := s.do(http.MethodGet, "/admin/organizations/"+org.ID.String(), nil,
		map[string]string{"X-Admin-Key": otherKey})
	s.Equal(http.StatusUnauthorized, code)
}

func (s *AdminAPISuite) TestListProjectsAndEvents() {
	org, key := s.onboard("Acme Builders", "intake@acme.example.com")
	project := s.seedProject(org.ID, "Harborview Remodel", "alice@client.example.com")
	headers := map[string]string{"X-Admin-Key": key}

	code, body := s.do(http.MethodGet, "/admin/organizations/"+org.ID.String()+"/projects", nil, headers)
	s.Require().Equal(http.StatusOK, code)

	var projects []projectmodels.Project
	s.Require().NoError(json.Unmarshal(body["projects"], &projects))
	s.Require().Len(projects, 1)
	s.Equal(project.ID, projects[0].ID)

	code, body = s.do(http.MethodGet,
		"/admin/organizations/"+org.ID.String()+"/projects/"+project.ID.String()+"/events", nil, headers)
	s.Require().Equal(http.StatusOK, code)

	var events []ledgermodels.Event
	s.Require().NoError(json.Unmarshal(body["events"], &events))
	s.Require().Len(events, 1)
	s.Equal(ledgermodels.KindEmailReceived, events[0].Kind)
	s.Equal(int64(1), events[0].Seq)
}

func (s *AdminAPISuite) TestListEventsValidatesProject() {
	org, key := s.onboard("Acme Builders", "intake@acme.example.com")
	headers := map[string]string{"X-Admin-Key": key}
	base := "/admin/organizations/" + org.ID.String() + "/projects/"

	s.Run("malformed project id", func() {
		code, _ := s.do(http.MethodGet, base+"bogus/events", nil, headers)
		s.Equal(http.StatusBadRequest, code)
	})

	s.Run("unknown project", func() {
		code, _ := s.do(http.MethodGet, base+"PROJ-FFFFFFFF/events", nil, headers)
		s.Equal(http.StatusNotFound, code)
	})

	s.Run("negative limit", func() {
		project := s.seedProject(org.ID, "Harborview Remodel", "alice@client.example.com")
		code, _ := s.do(http.MethodGet, base+project.ID.String()+"/events?limit=-1", nil, headers)
		s.Equal(http.StatusBadRequest, code)
	})
}

func (s *AdminAPISuite) TestEventsDoNotLeakAcrossOrgs() {
	org, _ := s.onboard("Acme Builders", "intake@acme.example.com")
	other, otherKey := s.onboard("Rival Construction", "mail@rival.example.com")
	project := s.seedProject(org.ID, "Harborview Remodel", "alice@client.example.com")

	code, _ := s.do(http.MethodGet,
		"/admin/organizations/"+other.ID.String()+"/projects/"+project.ID.String()+"/events", nil,
		map[string]string{"X-Admin-Key": otherKey})
	s.Equal(http.StatusNotFound, code)
}

func (s *AdminAPISuite) TestUsageSummary() {
	org, key := s.onboard("Acme Builders", "intake@acme.example.com")
	now := time.Now().UTC()
	s.Require().NoError(s.usage.Add(context.Background(), &usagemodels.Record{
		OrgID:            org.ID,
		Day:              usagemodels.DayBucket(now),
		Model:            "gpt-4o-mini",
		PromptTokens:     1200,
		CompletionTokens: 300,
		CostUSD:          usagemodels.Cost("gpt-4o-mini", 1200, 300),
		RecordedAt:       now,
	}))

	code, body := s.do(http.MethodGet, "/admin/organizations/"+org.ID.String()+"/usage?days=7", nil,
		map[string]string{"X-Admin-Key": key})
	s.Require().Equal(http.StatusOK, code)

	var summary usagemodels.Summary
	s.Require().NoError(json.Unmarshal(body["usage"], &summary))
	s.Equal(7, summary.Days)
	s.Equal(1200, summary.PromptTokens)
	s.Equal(300, summary.CompletionTokens)
}

func (s *AdminAPISuite) TestUsageSummaryRejectsBadDays() {
	org, key := s.onboard("Acme Builders", "intake@acme.example.com")

	code, _ := s.do(http.MethodGet, "/admin/organizations/"+org.ID.String()+"/usage?days=soon", nil,
		map[string]string{"X-Admin-Key": key})
	s.Equal(http.StatusBadRequest, code)
}

// seedProject writes a project and one applied event through the ledger
// writer, the same path the pipeline uses.
func (s *AdminAPISuite) seedProject(orgID id.OrgID, name, sender string) *projectmodels.Project {
	s.T().Helper()
	ctx := context.Background()

	created, _, err := s.projects.Resolve(ctx, orgID, "", name, sender)
	s.Require().NoError(err)

	facts := projectmodels.MessageFacts{
		ProjectName: name,
		Sender:      sender,
		Summary:     "kickoff scheduled",
	}
	draft := ledgermodels.Draft{
		MessageID: id.MessageID("<msg-1@client.example.com>"),
		Kind:      ledgermodels.KindEmailReceived,
		Sender:    sender,
		Subject:   "Kickoff",
		Summary:   "kickoff scheduled",
		Payload:   &extraction.Payload{ProjectName: name, KeyPoints: []string{"kickoff scheduled"}},
	}
	_, applied, err := s.ledger.Record(ctx, orgID, created.ID, facts, draft)
	s.Require().NoError(err)
	s.Require().True(applied)
	return created
}
