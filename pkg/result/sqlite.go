package result

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	"github.com/palantir/stacktrace"
	_ "modernc.org/sqlite"

	"github.com/tless/tless-bench/pkg/cerrors"
	"github.com/tless/tless-bench/pkg/types"
)

// SQLiteMirror stores every recorded row with its run metadata. It is
// write-only from the orchestrator's point of view.
type SQLiteMirror struct {
	conn *sql.DB
	path string
	mu   sync.Mutex
}

func mirrorError(path string, err error, msg string, args ...interface{}) error {
	return stacktrace.Propagate(cerrors.Error{ErrorCode: cerrors.ErrorTypeResultWrite, Target: path, Reason: err.Error()}, msg, args...)
}

// OpenSQLite opens (creating if needed) the database at path
func OpenSQLite(path string) (*SQLiteMirror, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, mirrorError(path, err, "could not create database directory")
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, mirrorError(path, err, "could not open database")
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, mirrorError(path, err, "could not enable WAL mode")
	}
	m := &SQLiteMirror{conn: conn, path: path}
	if err := m.Migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return m, nil
}

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{1, `
		CREATE TABLE IF NOT EXISTS results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			experiment TEXT NOT NULL,
			baseline TEXT NOT NULL,
			workflow TEXT NOT NULL,
			iteration INTEGER NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			time_ms INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id, baseline, workflow);
	`},
}

// Migrate applies all pending schema migrations, each with its version row
// in a single transaction
func (m *SQLiteMirror) Migrate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.migrate(migrations)
}

func (m *SQLiteMirror) migrate(steps []migration) error {
	if _, err := m.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return mirrorError(m.path, err, "could not create schema_version table")
	}

	currentVersion, err := m.schemaVersion()
	if err != nil {
		return err
	}

	for _, mig := range steps {
		if mig.version <= currentVersion {
			continue
		}
		tx, err := m.conn.Begin()
		if err != nil {
			return mirrorError(m.path, err, "could not start migration %d", mig.version)
		}
		if _, err := tx.Exec(mig.sql); err != nil {
			tx.Rollback()
			return mirrorError(m.path, err, "could not apply migration %d", mig.version)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", mig.version); err != nil {
			tx.Rollback()
			return mirrorError(m.path, err, "could not record migration %d", mig.version)
		}
		if err := tx.Commit(); err != nil {
			return mirrorError(m.path, err, "could not commit migration %d", mig.version)
		}
	}
	return nil
}

func (m *SQLiteMirror) schemaVersion() (int, error) {
	var version int
	if err := m.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, mirrorError(m.path, err, "could not read schema version")
	}
	return version, nil
}

// InitDataFile is a no-op: rows of earlier runs are kept and told apart by run ID
func (m *SQLiteMirror) InitDataFile(Key) error {
	return nil
}

// AppendResult inserts one row
func (m *SQLiteMirror) AppendResult(key Key, result types.ExecutionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.conn.Exec(`INSERT INTO results
		(run_id, experiment, baseline, workflow, iteration, start_time, end_time, time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key.RunID, key.Experiment.String(), key.Baseline.String(), key.Workflow,
		result.Iteration, result.StartTime.UTC(), result.EndTime.UTC(), result.DurationMs())
	if err != nil {
		return stacktrace.Propagate(cerrors.Error{ErrorCode: cerrors.ErrorTypeResultWrite, Target: m.path, Reason: err.Error()}, "could not mirror result")
	}
	return nil
}

// Count returns the rows stored for a run
func (m *SQLiteMirror) Count(runID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	err := m.conn.QueryRow("SELECT COUNT(*) FROM results WHERE run_id = ?", runID).Scan(&n)
	return n, err
}

// Close closes the database connection
func (m *SQLiteMirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn.Close()
}

var _ Sink = (*SQLiteMirror)(nil)
