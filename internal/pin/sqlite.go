package pin

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps pins in a SQLite database so they survive restarts.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}
	var version int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS pins (
			project    TEXT PRIMARY KEY,
			main_path  TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for i := version; i < len(migrations); i++ {
		slog.Info("Applying pin store migration", "version", i+1)
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration v%d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("record migration v%d: %w", i+1, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Get(project string) (string, error) {
	var path string
	err := s.db.QueryRow("SELECT main_path FROM pins WHERE project = ?", project).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get pin: %w", err)
	}
	return path, nil
}

func (s *SQLiteStore) Set(project, path string) error {
	_, err := s.db.Exec(`
		INSERT INTO pins (project, main_path, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(project) DO UPDATE SET main_path = excluded.main_path, updated_at = excluded.updated_at`,
		project, path, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(project string) error {
	if _, err := s.db.Exec("DELETE FROM pins WHERE project = ?", project); err != nil {
		return fmt.Errorf("clear pin: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List() (map[string]string, error) {
	rows, err := s.db.Query("SELECT project, main_path FROM pins")
	if err != nil {
		return nil, fmt.Errorf("list pins: %w", err)
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var project, path string
		if err := rows.Scan(&project, &path); err != nil {
			return nil, fmt.Errorf("scan pin: %w", err)
		}
		out[project] = path
	}
	return out, rows.Err()
}
