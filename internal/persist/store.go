// Package persist stores match history in SQLite so results survive process
// restarts.
package persist

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"cliffhop/server/internal/sim"
)

const schema = `
CREATE TABLE IF NOT EXISTS tick_events (
	tick        INTEGER NOT NULL,
	stage       TEXT NOT NULL,
	type        TEXT NOT NULL,
	actor_id    TEXT NOT NULL DEFAULT '',
	player_id   TEXT NOT NULL DEFAULT '',
	recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tick_events_tick ON tick_events(tick);

CREATE TABLE IF NOT EXISTS stage_results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	stage       TEXT NOT NULL,
	player_id   TEXT NOT NULL,
	score       INTEGER NOT NULL,
	deaths      INTEGER NOT NULL,
	stage_ticks INTEGER NOT NULL,
	won         INTEGER NOT NULL,
	recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stage_results_player ON stage_results(player_id);
CREATE INDEX IF NOT EXISTS idx_stage_results_stage ON stage_results(stage);
`

// Store wraps the SQLite handle. One writer goroutine uses it; reads come
// from the introspection surface.
type Store struct {
	db *sql.DB
}

// Open opens the database at path, creating the schema when missing.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("persist: storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("persist: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: ping %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InsertTickEvents stores the events of one completed tick in a single
// transaction.
func (s *Store) InsertTickEvents(ctx context.Context, tick uint64, stage string, events []sim.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persist: begin tick events: %w", err)
	}
	now := time.Now().UnixMilli()
	for _, ev := range events {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tick_events (tick, stage, type, actor_id, player_id, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
			int64(tick), stage, string(ev.Type), ev.ActorID, ev.PlayerID, now,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("persist: insert event %s: %w", ev.Type, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persist: commit tick events: %w", err)
	}
	return nil
}

// StageResult is one player's outcome for one stage attempt.
type StageResult struct {
	Stage      string `json:"stage"`
	PlayerID   string `json:"playerId"`
	Score      int    `json:"score"`
	Deaths     int    `json:"deaths"`
	StageTicks uint64 `json:"stageTicks"`
	Won        bool   `json:"won"`
	RecordedAt int64  `json:"recordedAt"`
}

// InsertStageResult stores one stage outcome row.
func (s *Store) InsertStageResult(ctx context.Context, result StageResult) error {
	if strings.TrimSpace(result.PlayerID) == "" {
		return fmt.Errorf("persist: player id is required")
	}
	recordedAt := result.RecordedAt
	if recordedAt == 0 {
		recordedAt = time.Now().UnixMilli()
	}
	won := 0
	if result.Won {
		won = 1
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_results (stage, player_id, score, deaths, stage_ticks, won, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.Stage, result.PlayerID, result.Score, result.Deaths, int64(result.StageTicks), won, recordedAt,
	); err != nil {
		return fmt.Errorf("persist: insert stage result: %w", err)
	}
	return nil
}

// PlayerResults returns a player's most recent stage outcomes, newest first.
func (s *Store) PlayerResults(ctx context.Context, playerID string, limit int) ([]StageResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, player_id, score, deaths, stage_ticks, won, recorded_at
		 FROM stage_results WHERE player_id = ? ORDER BY recorded_at DESC, id DESC LIMIT ?`,
		playerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("persist: query player results: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

// TopScores returns the best scores recorded for a stage, highest first.
func (s *Store) TopScores(ctx context.Context, stage string, limit int) ([]StageResult, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, player_id, score, deaths, stage_ticks, won, recorded_at
		 FROM stage_results WHERE stage = ? ORDER BY score DESC, stage_ticks ASC LIMIT ?`,
		stage, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("persist: query top scores: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

// EventCount reports stored tick events, for diagnostics and tests.
func (s *Store) EventCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tick_events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("persist: count events: %w", err)
	}
	return count, nil
}

func scanResults(rows *sql.Rows) ([]StageResult, error) {
	var results []StageResult
	for rows.Next() {
		var r StageResult
		var won int
		var ticks int64
		if err := rows.Scan(&r.Stage, &r.PlayerID, &r.Score, &r.Deaths, &ticks, &won, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("persist: scan result: %w", err)
		}
		r.StageTicks = uint64(ticks)
		r.Won = won != 0
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("persist: iterate results: %w", err)
	}
	return results, nil
}
