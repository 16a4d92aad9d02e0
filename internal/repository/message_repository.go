package repository

import (
	"context"
	"fmt"
	"time"

	"chat-gateway/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

type MessageRepo interface {
	// Save inserts the message and touches the room's activity timestamp
	// in the same transaction.
	Save(ctx context.Context, message *models.Message) error
	Get(ctx context.Context, id int64) (*models.Message, error)
	// Fetch returns up to limit messages of roomID older than beforeID
	// (0 means newest), newest first.
	Fetch(ctx context.Context, roomID int64, limit int, beforeID int64) ([]*models.Message, error)
	Last(ctx context.Context, roomID int64) (*models.Message, error)
	// Blur sets is_blurred; it never clears it.
	Blur(ctx context.Context, id int64) (*models.Message, error)
	ActiveSenders(ctx context.Context, roomID int64, since time.Time) ([]int64, error)
	CountMessages(ctx context.Context) (int64, error)
}

type PostgresMessagesRepo struct {
	pool *pgxpool.Pool
}

func NewMessagesRepo(pool *pgxpool.Pool) *PostgresMessagesRepo {
	return &PostgresMessagesRepo{
		pool: pool,
	}
}

const messageColumns = `id, room_id, sender_id, content, nft_ref, media_url, media_type, is_blurred, created_at`

func scanMessage(row scanner) (*models.Message, error) {
	m := &models.Message{}
	err := row.Scan(
		&m.ID,
		&m.RoomID,
		&m.SenderID,
		&m.Content,
		&m.NFTRef,
		&m.MediaURL,
		&m.MediaType,
		&m.IsBlurred,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	return m, nil
}

func (r *PostgresMessagesRepo) Save(ctx context.Context, m *models.Message) error {
	const insert = `
		INSERT INTO messages (room_id, sender_id, content, nft_ref, media_url, media_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, is_blurred, created_at`

	const touch = `UPDATE rooms SET last_activity_at = $2 WHERE id = $1`

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insert,
			m.RoomID,
			m.SenderID,
			m.Content,
			m.NFTRef,
			m.MediaURL,
			m.MediaType,
		).Scan(&m.ID, &m.IsBlurred, &m.CreatedAt)
		if err != nil {
			return translate(err)
		}
		tag, err := tx.Exec(ctx, touch, m.RoomID, m.CreatedAt)
		if err != nil {
			return translate(err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{"room_id": m.RoomID, "sender_id": m.SenderID}).
			WithError(err).Error("Failed to save message")
		return err
	}
	return nil
}

func (r *PostgresMessagesRepo) Get(ctx context.Context, id int64) (*models.Message, error) {
	return scanMessage(r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
}

func (r *PostgresMessagesRepo) Fetch(ctx context.Context, roomID int64, limit int, beforeID int64) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE room_id = $1
		  AND ($2 = 0 OR id < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, roomID, beforeID, limit)
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("Message fetch failed")
		return nil, translate(err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, translate(rows.Err())
}

func (r *PostgresMessagesRepo) Last(ctx context.Context, roomID int64) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE room_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`
	return scanMessage(r.pool.QueryRow(ctx, query, roomID))
}

func (r *PostgresMessagesRepo) Blur(ctx context.Context, id int64) (*models.Message, error) {
	query := `
		UPDATE messages
		SET is_blurred = TRUE
		WHERE id = $1
		RETURNING ` + messageColumns

	m, err := scanMessage(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to blur message %d: %w", id, err)
	}
	return m, nil
}

func (r *PostgresMessagesRepo) ActiveSenders(ctx context.Context, roomID int64, since time.Time) ([]int64, error) {
	query := `
		SELECT sender_id
		FROM messages
		WHERE room_id = $1 AND created_at > $2
		GROUP BY sender_id
		ORDER BY MAX(created_at) DESC`

	rows, err := r.pool.Query(ctx, query, roomID, since)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, translate(err)
		}
		ids = append(ids, id)
	}
	return ids, translate(rows.Err())
}

func (r *PostgresMessagesRepo) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, translate(err)
	}
	return n, nil
}
