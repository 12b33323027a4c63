// Package storage implements persistence for the bot's operational state and
// the spam strike ledger on top of the engine layer.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/telemod/telebot/app/storage/engine"
)

// Settings is the operational state record, the runtime toggles not coming
// from the rules document.
type Settings struct {
	SpamMessage struct {
		Active bool   `json:"active"`
		Text   string `json:"text"`
	} `json:"spam_message"`
}

// State provides access to the operational state stored in the database as a
// single JSON record per gid.
type State struct {
	*engine.SQL
	engine.RWLocker
}

// state queries
const (
	cmdCreateStateTable engine.DBCmd = iota + 100
	cmdCreateStateIndexes
	cmdUpsertState
	cmdSelectState
)

var stateQueries = engine.NewQueryMap().
	Add(cmdCreateStateTable, engine.Query{
		Sqlite: `CREATE TABLE IF NOT EXISTS state (
			id INTEGER PRIMARY KEY,
			gid TEXT NOT NULL,
			data TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(gid)
		)`,
		Postgres: `CREATE TABLE IF NOT EXISTS state (
			id SERIAL PRIMARY KEY,
			gid TEXT NOT NULL,
			data TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(gid)
		)`,
	}).
	AddSame(cmdCreateStateIndexes, `CREATE INDEX IF NOT EXISTS idx_state_gid ON state(gid)`).
	Add(cmdUpsertState, engine.Query{
		Sqlite: `INSERT INTO state (gid, data, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (gid) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		Postgres: `INSERT INTO state (gid, data, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (gid) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
	}).
	AddSame(cmdSelectState, `SELECT data FROM state WHERE gid = ?`)

// NewState creates the state store and its table.
func NewState(ctx context.Context, db *engine.SQL) (*State, error) {
	if db == nil {
		return nil, fmt.Errorf("no db provided")
	}
	res := &State{SQL: db, RWLocker: db.MakeLock()}
	cfg := engine.TableConfig{
		Name:          "state",
		CreateTable:   cmdCreateStateTable,
		CreateIndexes: cmdCreateStateIndexes,
		QueriesMap:    stateQueries,
	}
	if err := engine.InitTable(ctx, db, cfg); err != nil {
		return nil, fmt.Errorf("failed to init state table: %w", err)
	}
	return res, nil
}

// Load retrieves the settings; a missing record returns defaults, not an
// error.
func (s *State) Load(ctx context.Context) (*Settings, error) {
	s.RLock()
	defer s.RUnlock()

	var record struct {
		Data string `db:"data"`
	}
	query, err := stateQueries.Pick(s.Type(), cmdSelectState)
	if err != nil {
		return nil, fmt.Errorf("failed to get select query: %w", err)
	}
	if err := s.GetContext(ctx, &record, s.Adopt(query), s.GID()); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return &Settings{}, nil
		}
		return nil, fmt.Errorf("failed to get state: %w", err)
	}

	res := &Settings{}
	if err := json.Unmarshal([]byte(record.Data), res); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return res, nil
}

// Save stores the settings.
func (s *State) Save(ctx context.Context, settings *Settings) error {
	if settings == nil {
		return fmt.Errorf("nil settings")
	}
	s.Lock()
	defer s.Unlock()

	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	query, err := stateQueries.Pick(s.Type(), cmdUpsertState)
	if err != nil {
		return fmt.Errorf("failed to get upsert query: %w", err)
	}
	if _, err := s.ExecContext(ctx, s.Adopt(query), s.GID(), string(data), time.Now()); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}
