package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/telemod/telebot/app/storage/engine"
)

// Strike is a single persisted spam strike.
type Strike struct {
	ChatID   int64     `db:"chat_id"`
	UserID   int64     `db:"user_id"`
	UserJSON string    `db:"user_json"`
	TS       time.Time `db:"ts"`
}

// Strikes keeps the spam ledger write-through copy so ban escalation survives
// restarts.
type Strikes struct {
	*engine.SQL
	engine.RWLocker
}

// strikes queries
const (
	cmdCreateStrikesTable engine.DBCmd = iota + 200
	cmdCreateStrikesIndexes
	cmdInsertStrike
	cmdDeleteUserStrikes
	cmdDeleteChatStrikes
	cmdDeleteOldStrikes
	cmdSelectStrikes
)

var strikesQueries = engine.NewQueryMap().
	Add(cmdCreateStrikesTable, engine.Query{
		Sqlite: `CREATE TABLE IF NOT EXISTS strikes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			gid TEXT NOT NULL,
			chat_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			user_json TEXT NOT NULL DEFAULT '',
			ts TIMESTAMP NOT NULL
		)`,
		Postgres: `CREATE TABLE IF NOT EXISTS strikes (
			id SERIAL PRIMARY KEY,
			gid TEXT NOT NULL,
			chat_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			user_json TEXT NOT NULL DEFAULT '',
			ts TIMESTAMP NOT NULL
		)`,
	}).
	AddSame(cmdCreateStrikesIndexes,
		`CREATE INDEX IF NOT EXISTS idx_strikes_gid_chat_user ON strikes(gid, chat_id, user_id)`).
	AddSame(cmdInsertStrike, `INSERT INTO strikes (gid, chat_id, user_id, user_json, ts) VALUES (?, ?, ?, ?, ?)`).
	AddSame(cmdDeleteUserStrikes, `DELETE FROM strikes WHERE gid = ? AND chat_id = ? AND user_id = ?`).
	AddSame(cmdDeleteChatStrikes, `DELETE FROM strikes WHERE gid = ? AND chat_id = ?`).
	AddSame(cmdDeleteOldStrikes, `DELETE FROM strikes WHERE gid = ? AND ts < ?`).
	AddSame(cmdSelectStrikes, `SELECT chat_id, user_id, user_json, ts FROM strikes WHERE gid = ? ORDER BY chat_id, user_id, ts`)

// NewStrikes creates the strikes store and its table.
func NewStrikes(ctx context.Context, db *engine.SQL) (*Strikes, error) {
	if db == nil {
		return nil, fmt.Errorf("no db provided")
	}
	res := &Strikes{SQL: db, RWLocker: db.MakeLock()}
	cfg := engine.TableConfig{
		Name:          "strikes",
		CreateTable:   cmdCreateStrikesTable,
		CreateIndexes: cmdCreateStrikesIndexes,
		QueriesMap:    strikesQueries,
	}
	if err := engine.InitTable(ctx, db, cfg); err != nil {
		return nil, fmt.Errorf("failed to init strikes table: %w", err)
	}
	return res, nil
}

// Add appends a strike.
func (s *Strikes) Add(ctx context.Context, strike Strike) error {
	s.Lock()
	defer s.Unlock()
	query, err := strikesQueries.Pick(s.Type(), cmdInsertStrike)
	if err != nil {
		return fmt.Errorf("failed to get insert query: %w", err)
	}
	if _, err := s.ExecContext(ctx, s.Adopt(query), s.GID(), strike.ChatID, strike.UserID, strike.UserJSON, strike.TS); err != nil {
		return fmt.Errorf("failed to insert strike: %w", err)
	}
	return nil
}

// DeleteUser drops all strikes of a user in a chat, called on ban or when the
// ledger record is dropped.
func (s *Strikes) DeleteUser(ctx context.Context, chatID, userID int64) error {
	s.Lock()
	defer s.Unlock()
	query, err := strikesQueries.Pick(s.Type(), cmdDeleteUserStrikes)
	if err != nil {
		return fmt.Errorf("failed to get delete query: %w", err)
	}
	if _, err := s.ExecContext(ctx, s.Adopt(query), s.GID(), chatID, userID); err != nil {
		return fmt.Errorf("failed to delete user strikes: %w", err)
	}
	return nil
}

// DeleteChat drops all strikes of a chat, called when the chat leaves the
// registry.
func (s *Strikes) DeleteChat(ctx context.Context, chatID int64) error {
	s.Lock()
	defer s.Unlock()
	query, err := strikesQueries.Pick(s.Type(), cmdDeleteChatStrikes)
	if err != nil {
		return fmt.Errorf("failed to get delete query: %w", err)
	}
	if _, err := s.ExecContext(ctx, s.Adopt(query), s.GID(), chatID); err != nil {
		return fmt.Errorf("failed to delete chat strikes: %w", err)
	}
	return nil
}

// Cleanup drops strikes older than the cutoff.
func (s *Strikes) Cleanup(ctx context.Context, olderThan time.Time) error {
	s.Lock()
	defer s.Unlock()
	query, err := strikesQueries.Pick(s.Type(), cmdDeleteOldStrikes)
	if err != nil {
		return fmt.Errorf("failed to get cleanup query: %w", err)
	}
	if _, err := s.ExecContext(ctx, s.Adopt(query), s.GID(), olderThan); err != nil {
		return fmt.Errorf("failed to cleanup strikes: %w", err)
	}
	return nil
}

// Load returns all strikes ordered by chat, user and time.
func (s *Strikes) Load(ctx context.Context) ([]Strike, error) {
	s.RLock()
	defer s.RUnlock()
	query, err := strikesQueries.Pick(s.Type(), cmdSelectStrikes)
	if err != nil {
		return nil, fmt.Errorf("failed to get select query: %w", err)
	}
	var res []Strike
	if err := s.SelectContext(ctx, &res, s.Adopt(query), s.GID()); err != nil {
		return nil, fmt.Errorf("failed to load strikes: %w", err)
	}
	return res, nil
}
