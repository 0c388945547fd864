package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"mailroom/internal/project/models"
	id "mailroom/pkg/domain"
	"mailroom/pkg/platform/sentinel"
	"mailroom/pkg/platform/tx"
)

// PostgresStore persists projects in the projects table. Writes honor a
// transaction carried in ctx so the ledger writer can bind the project bump
// and the event insert together.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) conn(ctx context.Context) execer {
	if dbtx, ok := tx.From(ctx); ok {
		return dbtx
	}
	return s.db
}

const projectColumns = `id, org_id, name, address, participants, people, version, last_event_at, last_event_summary, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, project *models.Project) error {
	query := `
		INSERT INTO projects (` + projectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		project.ID.String(),
		project.OrgID.String(),
		project.Name,
		project.Address,
		pq.Array(project.Participants),
		pq.Array(project.People),
		project.Version,
		project.LastEventAt,
		project.LastEventSummary,
		project.CreatedAt,
		project.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrDuplicate
		}
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, orgID id.OrgID, projectID id.ProjectID) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE org_id = $1 AND id = $2`
	return scanOne(s.conn(ctx).QueryRowContext(ctx, query, orgID.String(), projectID.String()))
}

func (s *PostgresStore) FindByNameAndSender(ctx context.Context, orgID id.OrgID, name, sender string) (*models.Project, error) {
	query := `
		SELECT ` + projectColumns + `
		FROM projects
		WHERE org_id = $1 AND name = $2 AND $3 = ANY(participants)
		ORDER BY updated_at DESC
		LIMIT 1
	`
	return scanOne(s.conn(ctx).QueryRowContext(ctx, query, orgID.String(), name, sender))
}

func (s *PostgresStore) Update(ctx context.Context, project *models.Project) error {
	query := `
		UPDATE projects
		SET name = $4, address = $5, participants = $6, people = $7, version = $8,
		    last_event_at = $9, last_event_summary = $10, updated_at = $11
		WHERE org_id = $1 AND id = $2 AND version = $3
	`
	res, err := s.conn(ctx).ExecContext(ctx, query,
		project.OrgID.String(),
		project.ID.String(),
		project.Version-1,
		project.Name,
		project.Address,
		pq.Array(project.Participants),
		pq.Array(project.People),
		project.Version,
		project.LastEventAt,
		project.LastEventSummary,
		project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrVersionConflict
	}
	return nil
}

func (s *PostgresStore) ListByOrg(ctx context.Context, orgID id.OrgID) ([]*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE org_id = $1 ORDER BY updated_at DESC`
	rows, err := s.conn(ctx).QueryContext(ctx, query, orgID.String())
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOne(row *sql.Row) (*models.Project, error) {
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return p, err
}

func scanProject(row rowScanner) (*models.Project, error) {
	var (
		p            models.Project
		projectID    string
		orgID        string
		participants pq.StringArray
		people       pq.StringArray
		lastEventAt  sql.NullTime
		summary      sql.NullString
	)
	err := row.Scan(
		&projectID,
		&orgID,
		&p.Name,
		&p.Address,
		&participants,
		&people,
		&p.Version,
		&lastEventAt,
		&summary,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}
	p.ID = id.ProjectID(projectID)
	p.OrgID = id.OrgID(orgID)
	p.Participants = participants
	p.People = people
	p.LastEventAt = lastEventAt.Time
	p.LastEventSummary = summary.String
	return &p, nil
}
