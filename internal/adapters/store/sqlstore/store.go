// Package sqlstore keeps messages and the user directory in SQLite or Postgres.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/Duet/internal/domain"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects with driver "sqlite" or "postgres" and creates the schema.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var d Dialect
	switch driver {
	case "sqlite":
		d = SQLite
	case "postgres":
		d = Postgres
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if d == SQLite {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	}
	s := &Store{db: db, dialect: d}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Str("module", "store.sql").Str("driver", driver).Msg("store ready")
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id          TEXT PRIMARY KEY,
			full_name   TEXT NOT NULL DEFAULT '',
			email       TEXT NOT NULL DEFAULT '',
			profile_pic TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id                   TEXT PRIMARY KEY,
			sender_id            TEXT NOT NULL,
			receiver_id          TEXT NOT NULL,
			text                 TEXT,
			image                TEXT,
			created_at           BIGINT NOT NULL,
			deleted_for_everyone BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS messages_pair_idx ON messages (sender_id, receiver_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS message_deletions (
			message_id TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			PRIMARY KEY (message_id, user_id)
		)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("sqlstore: migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *Store) rebind(q string) string {
	if s.dialect != Postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) Close() error { return s.db.Close() }

// UpsertUser writes a directory entry.
func (s *Store) UpsertUser(ctx context.Context, u domain.User) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO users (id, full_name, email, profile_pic)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			full_name=excluded.full_name,
			email=excluded.email,
			profile_pic=excluded.profile_pic`),
		string(u.ID), u.FullName, u.Email, u.ProfilePic)
	if err != nil {
		return fmt.Errorf("sqlstore: upsert user: %w", err)
	}
	return nil
}

func (s *Store) ListUsersExcept(ctx context.Context, self domain.UserID) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, full_name, email, profile_pic
		FROM users WHERE id <> ? ORDER BY full_name, id`), string(self))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list users: %w", err)
	}
	defer rows.Close()
	out := []domain.User{}
	for rows.Next() {
		var u domain.User
		var id string
		if err := rows.Scan(&id, &u.FullName, &u.Email, &u.ProfilePic); err != nil {
			return nil, err
		}
		u.ID = domain.UserID(id)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) Save(ctx context.Context, m *domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO messages
		(id, sender_id, receiver_id, text, image, created_at, deleted_for_everyone)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		string(m.ID), string(m.SenderID), string(m.ReceiverID),
		nullable(m.Text), nullable(m.Image), m.CreatedAt.UnixMilli(), m.DeletedForEveryone)
	if err != nil {
		return fmt.Errorf("sqlstore: save message: %w", err)
	}
	for _, uid := range m.DeletedFor {
		if err := s.hide(ctx, tx, m.ID, uid); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) FindByID(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+messageCols+` FROM messages WHERE id = ?`), string(id))
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: find message: %w", err)
	}
	hidden, err := s.deletions(ctx, `message_id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	m.DeletedFor = hidden[m.ID]
	if m.DeletedFor == nil {
		m.DeletedFor = []domain.UserID{}
	}
	return m, nil
}

func (s *Store) UpdateDeletionMarkers(ctx context.Context, id domain.MessageID, d domain.DeletionMarkers) (*domain.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM messages WHERE id = ?`), string(id)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: update markers: %w", err)
	}
	if d.HideFor != "" {
		if err := s.hide(ctx, tx, id, d.HideFor); err != nil {
			return nil, err
		}
	}
	if d.ForEveryone {
		if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE messages SET deleted_for_everyone = ? WHERE id = ?`), true, string(id)); err != nil {
			return nil, fmt.Errorf("sqlstore: tombstone: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.FindByID(ctx, id)
}

func (s *Store) ListConversation(ctx context.Context, a, b domain.UserID) ([]domain.Message, error) {
	const pair = `(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)`
	args := []any{string(a), string(b), string(b), string(a)}

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+messageCols+` FROM messages WHERE `+pair+` ORDER BY created_at, id`), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list conversation: %w", err)
	}
	defer rows.Close()
	out := []domain.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hidden, err := s.deletions(ctx, `message_id IN (SELECT id FROM messages WHERE `+pair+`)`, args...)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if h, ok := hidden[out[i].ID]; ok {
			out[i].DeletedFor = h
		}
	}
	return out, nil
}

func (s *Store) hide(ctx context.Context, tx *sql.Tx, id domain.MessageID, uid domain.UserID) error {
	_, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO message_deletions (message_id, user_id)
		VALUES (?, ?) ON CONFLICT (message_id, user_id) DO NOTHING`), string(id), string(uid))
	if err != nil {
		return fmt.Errorf("sqlstore: hide message: %w", err)
	}
	return nil
}

func (s *Store) deletions(ctx context.Context, where string, args ...any) (map[domain.MessageID][]domain.UserID, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT message_id, user_id FROM message_deletions WHERE `+where+` ORDER BY message_id, user_id`), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: load deletions: %w", err)
	}
	defer rows.Close()
	out := make(map[domain.MessageID][]domain.UserID)
	for rows.Next() {
		var mid, uid string
		if err := rows.Scan(&mid, &uid); err != nil {
			return nil, err
		}
		out[domain.MessageID(mid)] = append(out[domain.MessageID(mid)], domain.UserID(uid))
	}
	return out, rows.Err()
}

const messageCols = `id, sender_id, receiver_id, text, image, created_at, deleted_for_everyone`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(r scanner) (*domain.Message, error) {
	var (
		id, sender, receiver string
		text, image          sql.NullString
		created              int64
		everyone             bool
	)
	if err := r.Scan(&id, &sender, &receiver, &text, &image, &created, &everyone); err != nil {
		return nil, err
	}
	m := &domain.Message{
		ID:                 domain.MessageID(id),
		SenderID:           domain.UserID(sender),
		ReceiverID:         domain.UserID(receiver),
		CreatedAt:          time.UnixMilli(created).UTC(),
		DeletedFor:         []domain.UserID{},
		DeletedForEveryone: everyone,
	}
	if text.Valid {
		m.Text = &text.String
	}
	if image.Valid {
		m.Image = &image.String
	}
	return m, nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
