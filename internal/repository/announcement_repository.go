package repository

import (
	"context"
	"fmt"
	"time"

	"chat-gateway/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

type AnnouncementRepository interface {
	CreateAnnouncement(ctx context.Context, a *models.Announcement) error
	ListAnnouncements(ctx context.Context, roomID int64) ([]*models.Announcement, error)
	// ListActiveAnnouncements spans every room; the announcer filters for due ones.
	ListActiveAnnouncements(ctx context.Context) ([]*models.Announcement, error)
	MarkAnnouncementSent(ctx context.Context, id int64, at time.Time) error
}

type PostgresAnnouncementRepo struct {
	pool *pgxpool.Pool
}

func NewAnnouncementRepo(pool *pgxpool.Pool) *PostgresAnnouncementRepo {
	return &PostgresAnnouncementRepo{
		pool: pool,
	}
}

const announcementColumns = `id, room_id, content, interval_seconds, last_sent_at, is_active, created_at`

func (r *PostgresAnnouncementRepo) CreateAnnouncement(ctx context.Context, a *models.Announcement) error {
	const query = `
		INSERT INTO room_announcements (room_id, content, interval_seconds)
		VALUES ($1, $2, $3)
		RETURNING ` + announcementColumns

	err := r.pool.QueryRow(ctx, query, a.RoomID, a.Content, a.IntervalSeconds).Scan(
		&a.ID, &a.RoomID, &a.Content, &a.IntervalSeconds, &a.LastSentAt, &a.IsActive, &a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create announcement: %w", translate(err))
	}
	return nil
}

func (r *PostgresAnnouncementRepo) list(ctx context.Context, query string, args ...any) ([]*models.Announcement, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []*models.Announcement
	for rows.Next() {
		a := &models.Announcement{}
		if err := rows.Scan(&a.ID, &a.RoomID, &a.Content, &a.IntervalSeconds, &a.LastSentAt, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, translate(err)
		}
		out = append(out, a)
	}
	return out, translate(rows.Err())
}

func (r *PostgresAnnouncementRepo) ListAnnouncements(ctx context.Context, roomID int64) ([]*models.Announcement, error) {
	return r.list(ctx, `SELECT `+announcementColumns+` FROM room_announcements WHERE room_id = $1 AND is_active ORDER BY created_at DESC`, roomID)
}

func (r *PostgresAnnouncementRepo) ListActiveAnnouncements(ctx context.Context) ([]*models.Announcement, error) {
	return r.list(ctx, `SELECT `+announcementColumns+` FROM room_announcements WHERE is_active ORDER BY id`)
}

func (r *PostgresAnnouncementRepo) MarkAnnouncementSent(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE room_announcements SET last_sent_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
