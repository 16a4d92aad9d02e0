package repository

import (
	"context"
	"fmt"
	"strings"

	"chat-gateway/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerRepository is append-only: there is no update or delete.
type LedgerRepository interface {
	AppendEvent(ctx context.Context, event *models.SystemEvent) error
	ListEvents(ctx context.Context, filter models.EventFilter) ([]*models.SystemEvent, error)
	AppendSnapshot(ctx context.Context, snapshot *models.SystemSnapshot) error
	GetSnapshot(ctx context.Context, id uuid.UUID) (*models.SystemSnapshot, error)
	ListSnapshots(ctx context.Context, filter models.SnapshotFilter) ([]*models.SystemSnapshot, error)
}

type PostgresLedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *PostgresLedgerRepo {
	return &PostgresLedgerRepo{
		pool: pool,
	}
}

func (r *PostgresLedgerRepo) AppendEvent(ctx context.Context, e *models.SystemEvent) error {
	const query = `
		INSERT INTO system_events (id, type, source, title, description, metadata, related_snapshot_id, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		e.ID,
		e.Type,
		e.Source,
		e.Title,
		e.Description,
		e.Metadata,
		e.RelatedSnapshotID,
		e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append system event: %w", translate(err))
	}
	return nil
}

// whereBuilder accumulates optional filter clauses with positional args.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) add(clause string, v any) {
	w.args = append(w.args, v)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *whereBuilder) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (w *whereBuilder) page(limit, offset int) string {
	w.args = append(w.args, limit, offset)
	return fmt.Sprintf(" ORDER BY ts DESC LIMIT $%d OFFSET $%d", len(w.args)-1, len(w.args))
}

func (r *PostgresLedgerRepo) ListEvents(ctx context.Context, f models.EventFilter) ([]*models.SystemEvent, error) {
	var w whereBuilder
	if f.Type != "" {
		w.add("type = $%d", f.Type)
	}
	if f.Source != "" {
		w.add("source = $%d", f.Source)
	}
	if !f.From.IsZero() {
		w.add("ts >= $%d", f.From)
	}
	if !f.To.IsZero() {
		w.add("ts <= $%d", f.To)
	}
	query := `SELECT id, type, source, title, description, metadata, related_snapshot_id, ts FROM system_events` +
		w.sql() + w.page(f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var events []*models.SystemEvent
	for rows.Next() {
		e := &models.SystemEvent{}
		if err := rows.Scan(&e.ID, &e.Type, &e.Source, &e.Title, &e.Description, &e.Metadata, &e.RelatedSnapshotID, &e.Timestamp); err != nil {
			return nil, translate(err)
		}
		events = append(events, e)
	}
	return events, translate(rows.Err())
}

func (r *PostgresLedgerRepo) AppendSnapshot(ctx context.Context, s *models.SystemSnapshot) error {
	const query = `
		INSERT INTO system_snapshots (id, label, fabric_state, rooms_state, queue_state, derived_state, metadata, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		s.ID,
		s.Label,
		s.FabricState,
		s.RoomsState,
		s.QueueState,
		s.DerivedState,
		s.Metadata,
		s.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append system snapshot: %w", translate(err))
	}
	return nil
}

const snapshotColumns = `id, label, fabric_state, rooms_state, queue_state, derived_state, metadata, ts`

func scanSnapshot(row scanner) (*models.SystemSnapshot, error) {
	s := &models.SystemSnapshot{}
	err := row.Scan(&s.ID, &s.Label, &s.FabricState, &s.RoomsState, &s.QueueState, &s.DerivedState, &s.Metadata, &s.Timestamp)
	if err != nil {
		return nil, translate(err)
	}
	return s, nil
}

func (r *PostgresLedgerRepo) GetSnapshot(ctx context.Context, id uuid.UUID) (*models.SystemSnapshot, error) {
	return scanSnapshot(r.pool.QueryRow(ctx, `SELECT `+snapshotColumns+` FROM system_snapshots WHERE id = $1`, id))
}

func (r *PostgresLedgerRepo) ListSnapshots(ctx context.Context, f models.SnapshotFilter) ([]*models.SystemSnapshot, error) {
	var w whereBuilder
	if !f.From.IsZero() {
		w.add("ts >= $%d", f.From)
	}
	if !f.To.IsZero() {
		w.add("ts <= $%d", f.To)
	}
	query := `SELECT ` + snapshotColumns + ` FROM system_snapshots` + w.sql() + w.page(f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var snapshots []*models.SystemSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, translate(rows.Err())
}

