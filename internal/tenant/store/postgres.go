package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"mailroom/internal/tenant/models"
	id "mailroom/pkg/domain"
	"mailroom/pkg/platform/sentinel"
)

// PostgresStore persists organizations in the organizations table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const orgColumns = `id, name, inbound_address, subdomain, tier, billing_status, monthly_budget_usd, admin_key_hash, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (` + orgColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		org.ID.String(),
		org.Name,
		strings.ToLower(org.InboundAddress),
		nullable(strings.ToLower(org.Subdomain)),
		string(org.Tier),
		string(org.BillingStatus),
		org.MonthlyBudgetUSD,
		org.AdminKeyHash,
		org.CreatedAt,
		org.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrDuplicate
		}
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, orgID id.OrgID) (*models.Organization, error) {
	return s.findOne(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1`, orgID.String())
}

func (s *PostgresStore) FindByAddress(ctx context.Context, address string) (*models.Organization, error) {
	return s.findOne(ctx, `SELECT `+orgColumns+` FROM organizations WHERE inbound_address = $1`, strings.ToLower(address))
}

func (s *PostgresStore) FindBySubdomain(ctx context.Context, subdomain string) (*models.Organization, error) {
	return s.findOne(ctx, `SELECT `+orgColumns+` FROM organizations WHERE subdomain = $1`, strings.ToLower(subdomain))
}

func (s *PostgresStore) Update(ctx context.Context, org *models.Organization) error {
	query := `
		UPDATE organizations
		SET name = $2, tier = $3, billing_status = $4, monthly_budget_usd = $5, updated_at = $6
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		org.ID.String(),
		org.Name,
		string(org.Tier),
		string(org.BillingStatus),
		org.MonthlyBudgetUSD,
		org.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.Organization, error) {
	var (
		org       models.Organization
		orgID     string
		tier      string
		billing   string
		subdomain sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&orgID,
		&org.Name,
		&org.InboundAddress,
		&subdomain,
		&tier,
		&billing,
		&org.MonthlyBudgetUSD,
		&org.AdminKeyHash,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query organization: %w", err)
	}
	org.ID = id.OrgID(orgID)
	org.Subdomain = subdomain.String
	org.Tier = models.Tier(tier)
	org.BillingStatus = models.BillingStatus(billing)
	return &org, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
