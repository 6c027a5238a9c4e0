package cache

import (
	"database/sql"
	"time"

	"github.com/fastsm/fastsm/internal/models"
)

// UpsertUser inserts or updates a user row (idempotent on id).
func (db *DB) UpsertUser(u *models.User) error {
	if u == nil || u.ID == "" {
		return nil
	}
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO users (id, acct, username, display_name, note, avatar, header,
			followers_count, following_count, statuses_count, created_at, locked, bot, platform, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			acct = excluded.acct,
			username = excluded.username,
			display_name = excluded.display_name,
			note = excluded.note,
			avatar = excluded.avatar,
			header = excluded.header,
			followers_count = excluded.followers_count,
			following_count = excluded.following_count,
			statuses_count = excluded.statuses_count,
			locked = excluded.locked,
			bot = excluded.bot,
			updated_at = excluded.updated_at`,
		u.ID, u.Acct, u.Username, u.DisplayName, u.Note, u.Avatar, u.Header,
		u.FollowersCount, u.FollowingCount, u.StatusesCount, u.CreatedAt.UnixMilli(),
		u.Locked, u.Bot, u.Platform, now)
	return err
}

// GetUser returns a user by id, or nil if absent.
func (db *DB) GetUser(id string) (*models.User, error) {
	row := db.QueryRow(`
		SELECT id, acct, username, display_name, note, avatar, header,
			followers_count, following_count, statuses_count, created_at, locked, bot, platform
		FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// AllUsers returns every cached user, used to hydrate the in-memory user
// cache on startup.
func (db *DB) AllUsers() ([]*models.User, error) {
	rows, err := db.Query(`
		SELECT id, acct, username, display_name, note, avatar, header,
			followers_count, following_count, statuses_count, created_at, locked, bot, platform
		FROM users`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var createdAt int64
	err := row.Scan(&u.ID, &u.Acct, &u.Username, &u.DisplayName, &u.Note, &u.Avatar, &u.Header,
		&u.FollowersCount, &u.FollowingCount, &u.StatusesCount, &createdAt, &u.Locked, &u.Bot, &u.Platform)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = time.UnixMilli(createdAt)
	return &u, nil
}
