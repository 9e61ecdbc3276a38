package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Spool table for points that failed to publish",
		SQL: `
CREATE TABLE IF NOT EXISTS spool (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    station_id TEXT NOT NULL,
    line TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_spool_created_at ON spool(created_at);
`,
	},
}

// Store spools encoded line-protocol points that could not be written to
// InfluxDB, so a store outage loses nothing; the bridge flushes the spool at
// the start of each cycle. Raw API responses are never persisted here.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	if _, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    description TEXT,
    applied_at DATETIME
)`); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied := map[int]bool{}
	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// SpooledPoint is one deferred write.
type SpooledPoint struct {
	ID        int64
	StationID string
	Line      string
	CreatedAt time.Time
}

func (s *Store) Enqueue(stationID, line string) error {
	_, err := s.db.Exec(
		`INSERT INTO spool (station_id, line) VALUES (?, ?)`,
		stationID, line,
	)
	return err
}

// Pending returns up to limit spooled points, oldest first.
func (s *Store) Pending(limit int) ([]SpooledPoint, error) {
	rows, err := s.db.Query(
		`SELECT id, station_id, line, created_at FROM spool ORDER BY id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []SpooledPoint
	for rows.Next() {
		var p SpooledPoint
		if err := rows.Scan(&p.ID, &p.StationID, &p.Line, &p.CreatedAt); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Delete removes published points from the spool.
func (s *Store) Delete(ids []int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := tx.Exec(`DELETE FROM spool WHERE id = ?`, id); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Depth returns the number of points waiting in the spool.
func (s *Store) Depth() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM spool`).Scan(&n)
	return n, err
}
