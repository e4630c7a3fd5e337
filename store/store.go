// Package store keeps finished runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/maastricht-university/meetsync/meeting"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    created_at TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS participants (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    face_embedding TEXT,
    avg_lip_sync_score REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, name)
);
CREATE TABLE IF NOT EXISTS speech_segments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    participant TEXT NOT NULL,
    start_time REAL NOT NULL,
    end_time REAL NOT NULL,
    transcription TEXT NOT NULL DEFAULT '',
    lip_sync_score REAL NOT NULL DEFAULT 0,
    lip_sync_confidence REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_speech_segments_run ON speech_segments(run_id, start_time);
`

// ErrNotFound is returned for unknown run ids.
var ErrNotFound = errors.New("run not found")

type Store struct {
	db *sql.DB
}

type Participant struct {
	Name string
	// FaceEmbedding is the mean registered embedding, nil when none was registered.
	FaceEmbedding   []float64
	AvgLipSyncScore float64
}

type Run struct {
	ID           string
	CreatedAt    time.Time
	Summary      string
	Participants []Participant
	Timeline     meeting.Timeline
}

type RunInfo struct {
	ID        string
	CreatedAt time.Time
	Segments  int
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun writes a run with its participants and segments in one transaction.
func (s *Store) SaveRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("save run: id required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, summary) VALUES (?, ?, ?)`,
		run.ID, run.CreatedAt.UTC().Format(time.RFC3339Nano), run.Summary,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, p := range run.Participants {
		var emb any
		if len(p.FaceEmbedding) > 0 {
			b, err := json.Marshal(p.FaceEmbedding)
			if err != nil {
				return fmt.Errorf("marshal embedding: %w", err)
			}
			emb = string(b)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO participants (run_id, name, face_embedding, avg_lip_sync_score) VALUES (?, ?, ?, ?)`,
			run.ID, p.Name, emb, p.AvgLipSyncScore,
		); err != nil {
			return fmt.Errorf("insert participant %s: %w", p.Name, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO speech_segments (
            run_id, participant, start_time, end_time, transcription, lip_sync_score, lip_sync_confidence
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare segment insert: %w", err)
	}
	defer stmt.Close()
	for _, seg := range run.Timeline {
		if _, err := stmt.ExecContext(ctx,
			run.ID, seg.Speaker, seg.Start, seg.End, seg.Text, seg.LipSyncScore, seg.LipSyncConfidence,
		); err != nil {
			return fmt.Errorf("insert segment: %w", err)
		}
	}
	return tx.Commit()
}

// Segments returns the stored timeline of a run in its original order.
func (s *Store) Segments(ctx context.Context, runID string) (meeting.Timeline, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM runs WHERE id = ?`, runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("lookup run: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%s: %w", runID, ErrNotFound)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT participant, start_time, end_time, transcription, lip_sync_score, lip_sync_confidence
         FROM speech_segments WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	tl := meeting.Timeline{}
	for rows.Next() {
		var seg meeting.Segment
		if err := rows.Scan(&seg.Speaker, &seg.Start, &seg.End, &seg.Text, &seg.LipSyncScore, &seg.LipSyncConfidence); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		tl = append(tl, seg)
	}
	return tl, rows.Err()
}

// Summary returns the stored summary of a run.
func (s *Store) Summary(ctx context.Context, runID string) (string, error) {
	var summary string
	err := s.db.QueryRowContext(ctx, `SELECT summary FROM runs WHERE id = ?`, runID).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("lookup summary: %w", err)
	}
	return summary, nil
}

// Participants returns the participant rows of a run ordered by name.
func (s *Store) Participants(ctx context.Context, runID string) ([]Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, face_embedding, avg_lip_sync_score FROM participants WHERE run_id = ? ORDER BY name`, runID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var out []Participant
	for rows.Next() {
		var (
			p   Participant
			emb sql.NullString
		)
		if err := rows.Scan(&p.Name, &emb, &p.AvgLipSyncScore); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		if emb.Valid && emb.String != "" {
			if err := json.Unmarshal([]byte(emb.String), &p.FaceEmbedding); err != nil {
				return nil, fmt.Errorf("decode embedding of %s: %w", p.Name, err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Runs lists the most recent runs first.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.created_at, COUNT(s.id)
         FROM runs r LEFT JOIN speech_segments s ON s.run_id = r.id
         GROUP BY r.id, r.created_at
         ORDER BY r.created_at DESC
         LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var (
			info    RunInfo
			created string
		)
		if err := rows.Scan(&info.ID, &created, &info.Segments); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			info.CreatedAt = ts
		}
		out = append(out, info)
	}
	return out, rows.Err()
}
