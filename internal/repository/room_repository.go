package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chat-gateway/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RoomRepository interface {
	GetRoomByID(ctx context.Context, id int64) (*models.Room, error)
	GetRoomBySlug(ctx context.Context, slug string) (*models.Room, error)
	GetRoomByName(ctx context.Context, name string) (*models.Room, error)
	// GetOrCreateRoom returns the room with slug, inserting it with kind
	// when absent. Used for the world room and direct rooms.
	GetOrCreateRoom(ctx context.Context, kind models.RoomKind, slug string) (*models.Room, error)
	// CreateCustomRoom inserts the room and its creator as member and
	// moderator in one transaction.
	CreateCustomRoom(ctx context.Context, room *models.Room) error
	ListRoomsByKind(ctx context.Context, kind models.RoomKind) ([]*models.Room, error)
	ListRoomsForUser(ctx context.Context, userID int64, kind models.RoomKind) ([]*models.Room, error)
	UpdateRoomSettings(ctx context.Context, id int64, settings models.RoomSettings) (*models.Room, error)

	AddMember(ctx context.Context, roomID, userID int64, moderator bool) (bool, error)
	RemoveMember(ctx context.Context, roomID, userID int64) error
	GetMembership(ctx context.Context, roomID, userID int64) (*models.Membership, error)
	ListMemberships(ctx context.Context, roomID int64) ([]models.Membership, error)
	// SetModerator upserts the membership row with the given moderator flag.
	SetModerator(ctx context.Context, roomID, userID int64, moderator bool) error

	ListIdleCustomRooms(ctx context.Context, cutoff time.Time) ([]int64, error)
	// DeleteIdleCustomRoom re-checks the idle condition before deleting so
	// a room that became active after the candidate read survives.
	DeleteIdleCustomRoom(ctx context.Context, id int64, cutoff time.Time) (bool, error)
}

type PostgresRoomRepo struct {
	pool *pgxpool.Pool
}

func NewRoomRepo(pool *pgxpool.Pool) *PostgresRoomRepo {
	return &PostgresRoomRepo{
		pool: pool,
	}
}

const roomColumns = `id, kind, slug, name, description, creator_id, font_family, font_size, rules, last_activity_at, created_at`

func scanRoom(row scanner) (*models.Room, error) {
	r := &models.Room{}
	err := row.Scan(
		&r.ID,
		&r.Kind,
		&r.Slug,
		&r.Name,
		&r.Description,
		&r.CreatorID,
		&r.FontFamily,
		&r.FontSize,
		&r.Rules,
		&r.LastActivityAt,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	return r, nil
}

func collectRooms(rows pgx.Rows) ([]*models.Room, error) {
	defer rows.Close()
	var rooms []*models.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, translate(rows.Err())
}

func (r *PostgresRoomRepo) GetRoomByID(ctx context.Context, id int64) (*models.Room, error) {
	return scanRoom(r.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
}

func (r *PostgresRoomRepo) GetRoomBySlug(ctx context.Context, slug string) (*models.Room, error) {
	return scanRoom(r.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE slug = $1`, slug))
}

func (r *PostgresRoomRepo) GetRoomByName(ctx context.Context, name string) (*models.Room, error) {
	return scanRoom(r.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE name = $1`, name))
}

func (r *PostgresRoomRepo) GetOrCreateRoom(ctx context.Context, kind models.RoomKind, slug string) (*models.Room, error) {
	const insert = `
		INSERT INTO rooms (kind, slug)
		VALUES ($1, $2)
		ON CONFLICT (slug) DO NOTHING`

	if _, err := r.pool.Exec(ctx, insert, kind, slug); err != nil {
		return nil, fmt.Errorf("failed to create %s room: %w", kind, translate(err))
	}
	return r.GetRoomBySlug(ctx, slug)
}

func (r *PostgresRoomRepo) CreateCustomRoom(ctx context.Context, room *models.Room) error {
	const insertRoom = `
		INSERT INTO rooms (kind, slug, name, description, creator_id)
		VALUES ('custom', $1, $2, $3, $4)
		RETURNING ` + roomColumns

	const insertCreator = `
		INSERT INTO room_members (room_id, user_id, is_moderator)
		VALUES ($1, $2, TRUE)`

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		created, err := scanRoom(tx.QueryRow(ctx, insertRoom, room.Slug, room.Name, room.Description, room.CreatorID))
		if err != nil {
			return fmt.Errorf("failed to insert custom room: %w", err)
		}
		if _, err := tx.Exec(ctx, insertCreator, created.ID, *room.CreatorID); err != nil {
			return fmt.Errorf("failed to add creator to room %d: %w", created.ID, translate(err))
		}
		*room = *created
		return nil
	})
}

func (r *PostgresRoomRepo) ListRoomsByKind(ctx context.Context, kind models.RoomKind) ([]*models.Room, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roomColumns+` FROM rooms WHERE kind = $1 ORDER BY created_at DESC, id DESC`, kind)
	if err != nil {
		return nil, translate(err)
	}
	return collectRooms(rows)
}

func (r *PostgresRoomRepo) ListRoomsForUser(ctx context.Context, userID int64, kind models.RoomKind) ([]*models.Room, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM rooms
		WHERE kind = $1
		  AND id IN (SELECT room_id FROM room_members WHERE user_id = $2)
		ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, kind, userID)
	if err != nil {
		return nil, translate(err)
	}
	return collectRooms(rows)
}

func (r *PostgresRoomRepo) UpdateRoomSettings(ctx context.Context, id int64, s models.RoomSettings) (*models.Room, error) {
	var (
		sets []string
		args = []any{id}
	)
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if s.Name != nil {
		add("name", *s.Name)
	}
	if s.Description != nil {
		add("description", *s.Description)
	}
	if s.FontFamily != nil {
		add("font_family", *s.FontFamily)
	}
	if s.FontSize != nil {
		add("font_size", *s.FontSize)
	}
	if s.Rules != nil {
		add("rules", *s.Rules)
	}
	if len(sets) == 0 {
		return r.GetRoomByID(ctx, id)
	}

	query := `UPDATE rooms SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + roomColumns
	return scanRoom(r.pool.QueryRow(ctx, query, args...))
}

func (r *PostgresRoomRepo) AddMember(ctx context.Context, roomID, userID int64, moderator bool) (bool, error) {
	const query = `
		INSERT INTO room_members (room_id, user_id, is_moderator)
		VALUES ($1, $2, $3)
		ON CONFLICT (room_id, user_id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query, roomID, userID, moderator)
	if err != nil {
		return false, fmt.Errorf("failed to add member %d to room %d: %w", userID, roomID, translate(err))
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRoomRepo) RemoveMember(ctx context.Context, roomID, userID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM room_members WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member %d from room %d: %w", userID, roomID, translate(err))
	}
	return nil
}

func (r *PostgresRoomRepo) GetMembership(ctx context.Context, roomID, userID int64) (*models.Membership, error) {
	m := &models.Membership{}
	err := r.pool.QueryRow(ctx,
		`SELECT room_id, user_id, is_moderator FROM room_members WHERE room_id = $1 AND user_id = $2`,
		roomID, userID,
	).Scan(&m.RoomID, &m.UserID, &m.IsModerator)
	if err != nil {
		return nil, translate(err)
	}
	return m, nil
}

func (r *PostgresRoomRepo) ListMemberships(ctx context.Context, roomID int64) ([]models.Membership, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT room_id, user_id, is_moderator FROM room_members WHERE room_id = $1 ORDER BY joined_at, user_id`,
		roomID,
	)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var members []models.Membership
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.RoomID, &m.UserID, &m.IsModerator); err != nil {
			return nil, translate(err)
		}
		members = append(members, m)
	}
	return members, translate(rows.Err())
}

func (r *PostgresRoomRepo) SetModerator(ctx context.Context, roomID, userID int64, moderator bool) error {
	const query = `
		INSERT INTO room_members (room_id, user_id, is_moderator)
		VALUES ($1, $2, $3)
		ON CONFLICT (room_id, user_id) DO UPDATE SET is_moderator = EXCLUDED.is_moderator`

	if _, err := r.pool.Exec(ctx, query, roomID, userID, moderator); err != nil {
		return fmt.Errorf("failed to set moderator flag for %d in room %d: %w", userID, roomID, translate(err))
	}
	return nil
}

const idleCondition = `
	kind = 'custom'
	AND (
		last_activity_at < $1
		OR NOT EXISTS (SELECT 1 FROM room_members m WHERE m.room_id = rooms.id)
	)`

func (r *PostgresRoomRepo) ListIdleCustomRooms(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM rooms WHERE`+idleCondition+` ORDER BY id`, cutoff)
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

// Messages, members and queue items go with the room through ON DELETE
// CASCADE.
func (r *PostgresRoomRepo) DeleteIdleCustomRoom(ctx context.Context, id int64, cutoff time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $2 AND`+idleCondition, cutoff, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete idle room %d: %w", id, translate(err))
	}
	return tag.RowsAffected() > 0, nil
}
