package repository

import (
	"context"
	"fmt"

	"chat-gateway/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MusicRepository interface {
	// AddToQueue assigns the next room-scoped position and inserts item.
	AddToQueue(ctx context.Context, item *models.MusicQueueItem) error
	GetQueueItem(ctx context.Context, id int64) (*models.MusicQueueItem, error)
	ListQueue(ctx context.Context, roomID int64) ([]*models.MusicQueueItem, error)
	ListPlaying(ctx context.Context) ([]*models.MusicQueueItem, error)
	// SetPlaying clears every playing flag in the room and then marks
	// itemID, if given. An itemID outside the room rolls the whole change back.
	SetPlaying(ctx context.Context, roomID int64, itemID *int64) error
	RemoveFromQueue(ctx context.Context, id int64) error
}

type PostgresMusicRepo struct {
	pool *pgxpool.Pool
}

func NewMusicRepo(pool *pgxpool.Pool) *PostgresMusicRepo {
	return &PostgresMusicRepo{
		pool: pool,
	}
}

const queueColumns = `id, room_id, source_type, source_url, title, artist, position, is_playing, created_at`

func scanQueueItem(row scanner) (*models.MusicQueueItem, error) {
	q := &models.MusicQueueItem{}
	err := row.Scan(
		&q.ID,
		&q.RoomID,
		&q.SourceType,
		&q.SourceURL,
		&q.Title,
		&q.Artist,
		&q.Position,
		&q.IsPlaying,
		&q.CreatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	return q, nil
}

func collectQueue(rows pgx.Rows) ([]*models.MusicQueueItem, error) {
	defer rows.Close()
	var items []*models.MusicQueueItem
	for rows.Next() {
		q, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, q)
	}
	return items, translate(rows.Err())
}

func (r *PostgresMusicRepo) AddToQueue(ctx context.Context, item *models.MusicQueueItem) error {
	// Locking the room row serialises concurrent appends so MAX(position)+1
	// stays unique per room.
	const lock = `SELECT id FROM rooms WHERE id = $1 FOR UPDATE`
	const insert = `
		INSERT INTO music_queue (room_id, source_type, source_url, title, artist, position)
		SELECT $1, $2, $3, $4, $5, COALESCE(MAX(position), 0) + 1
		FROM music_queue WHERE room_id = $1
		RETURNING ` + queueColumns

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var id int64
		if err := tx.QueryRow(ctx, lock, item.RoomID).Scan(&id); err != nil {
			return translate(err)
		}
		created, err := scanQueueItem(tx.QueryRow(ctx, insert,
			item.RoomID,
			item.SourceType,
			item.SourceURL,
			item.Title,
			item.Artist,
		))
		if err != nil {
			return fmt.Errorf("failed to enqueue music in room %d: %w", item.RoomID, err)
		}
		*item = *created
		return nil
	})
}

func (r *PostgresMusicRepo) GetQueueItem(ctx context.Context, id int64) (*models.MusicQueueItem, error) {
	return scanQueueItem(r.pool.QueryRow(ctx, `SELECT `+queueColumns+` FROM music_queue WHERE id = $1`, id))
}

func (r *PostgresMusicRepo) ListQueue(ctx context.Context, roomID int64) ([]*models.MusicQueueItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+queueColumns+` FROM music_queue WHERE room_id = $1 ORDER BY position`, roomID)
	if err != nil {
		return nil, translate(err)
	}
	return collectQueue(rows)
}

func (r *PostgresMusicRepo) ListPlaying(ctx context.Context) ([]*models.MusicQueueItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+queueColumns+` FROM music_queue WHERE is_playing ORDER BY room_id`)
	if err != nil {
		return nil, translate(err)
	}
	return collectQueue(rows)
}

func (r *PostgresMusicRepo) SetPlaying(ctx context.Context, roomID int64, itemID *int64) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE music_queue SET is_playing = FALSE WHERE room_id = $1 AND is_playing`, roomID); err != nil {
			return translate(err)
		}
		if itemID == nil {
			return nil
		}
		tag, err := tx.Exec(ctx, `UPDATE music_queue SET is_playing = TRUE WHERE id = $1 AND room_id = $2`, *itemID, roomID)
		if err != nil {
			return translate(err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *PostgresMusicRepo) RemoveFromQueue(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM music_queue WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to remove queue item %d: %w", id, translate(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
