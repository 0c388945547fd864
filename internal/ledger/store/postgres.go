package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"mailroom/internal/extraction"
	"mailroom/internal/ledger/models"
	id "mailroom/pkg/domain"
	"mailroom/pkg/platform/sentinel"
	"mailroom/pkg/platform/tx"
)

// PostgresStore persists events in the events table. Appends honor a
// transaction carried in ctx so they commit atomically with the project
// version bump.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

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

const eventColumns = `id, org_id, project_id, message_id, kind, seq, sender, subject, summary, payload, degraded_reason, occurred_at`

func (s *PostgresStore) Insert(ctx context.Context, event *models.Event) error {
	var payload []byte
	if event.Payload != nil {
		var err error
		payload, err = json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("encode event payload: %w", err)
		}
	}

	// ON CONFLICT DO NOTHING keeps redelivered appends conflict-free; zero
	// rows affected means the message was already recorded.
	query := `
		INSERT INTO events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (org_id, message_id) DO NOTHING
	`
	res, err := s.conn(ctx).ExecContext(ctx, query,
		event.ID.String(),
		event.OrgID.String(),
		event.ProjectID.String(),
		event.MessageID.String(),
		string(event.Kind),
		event.Seq,
		event.Sender,
		event.Subject,
		event.Summary,
		nullBytes(payload),
		event.DegradedReason,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrDuplicate
	}
	return nil
}

func (s *PostgresStore) FindByMessageID(ctx context.Context, orgID id.OrgID, messageID id.MessageID) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE org_id = $1 AND message_id = $2`
	event, err := scanEvent(s.conn(ctx).QueryRowContext(ctx, query, orgID.String(), messageID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return event, err
}

func (s *PostgresStore) ListByProject(ctx context.Context, orgID id.OrgID, projectID id.ProjectID, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + eventColumns + `
		FROM events
		WHERE org_id = $1 AND project_id = $2
		ORDER BY seq DESC
		LIMIT $3
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, orgID.String(), projectID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var (
		event     models.Event
		eventID   string
		orgID     string
		projectID string
		messageID string
		kind      string
		payload   []byte
		reason    sql.NullString
	)
	err := row.Scan(
		&eventID,
		&orgID,
		&projectID,
		&messageID,
		&kind,
		&event.Seq,
		&event.Sender,
		&event.Subject,
		&event.Summary,
		&payload,
		&reason,
		&event.OccurredAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	event.ID = id.EventID(eventID)
	event.OrgID = id.OrgID(orgID)
	event.ProjectID = id.ProjectID(projectID)
	event.MessageID = id.MessageID(messageID)
	event.Kind = models.Kind(kind)
	event.DegradedReason = reason.String
	if len(payload) > 0 {
		event.Payload = &extraction.Payload{}
		if err := json.Unmarshal(payload, event.Payload); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
	}
	return &event, nil
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
