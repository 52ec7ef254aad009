package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/xhad/dossier/pkg/logging"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one dossier build.
type Run struct {
	ID         string
	INN        string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Error      string
}

// ArtifactEntry is a file produced by a run step.
type ArtifactEntry struct {
	RunID     string
	Stage     string
	Path      string
	CreatedAt time.Time
}

// Ledger keeps the history of runs and the artifacts they left behind.
type Ledger struct {
	db     *sql.DB
	now    func() time.Time
	logger *zap.Logger
}

// OpenLedger opens (and migrates) the SQLite ledger at path. Use ":memory:"
// in tests.
func OpenLedger(path string, logger *zap.Logger) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open ledger %s", path)
	}
	// one writer; also keeps :memory: databases on a single connection
	db.SetMaxOpenConns(1)

	l := &Ledger{db: db, now: time.Now, logger: logging.OrNop(logger)}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "failed to migrate ledger")
	}
	l.logger.Debug("ledger: opened", zap.String("path", path))
	return l, nil
}

func (l *Ledger) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		inn TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_inn ON runs(inn);

	CREATE TABLE IF NOT EXISTS artifacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		path TEXT NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_artifacts_run ON artifacts(run_id);
	`
	_, err := l.db.Exec(schema)
	return err
}

func (l *Ledger) timestamp() string {
	return l.now().UTC().Format(time.RFC3339Nano)
}

// BeginRun records a new running build for inn and returns its id.
func (l *Ledger) BeginRun(ctx context.Context, inn string) (string, error) {
	id := uuid.NewString()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, inn, started_at, status) VALUES (?, ?, ?, ?)`,
		id, inn, l.timestamp(), StatusRunning)
	if err != nil {
		return "", eris.Wrap(err, "failed to begin run")
	}
	return id, nil
}

// RecordArtifact appends a produced file to the run.
func (l *Ledger) RecordArtifact(ctx context.Context, runID, stage, path string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO artifacts (run_id, stage, path, created_at) VALUES (?, ?, ?, ?)`,
		runID, stage, path, l.timestamp())
	if err != nil {
		return eris.Wrapf(err, "failed to record artifact %s", stage)
	}
	return nil
}

// FinishRun closes the run; a nil runErr marks it succeeded.
func (l *Ledger) FinishRun(ctx context.Context, runID string, runErr error) error {
	status, msg := StatusSucceeded, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	res, err := l.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?`,
		l.timestamp(), status, msg, runID)
	if err != nil {
		return eris.Wrap(err, "failed to finish run")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("run %s not found", runID)
	}
	return nil
}

// GetRun loads a run by id.
func (l *Ledger) GetRun(ctx context.Context, runID string) (*Run, error) {
	var (
		r        Run
		started  string
		finished sql.NullString
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT id, inn, started_at, finished_at, status, error FROM runs WHERE id = ?`, runID).
		Scan(&r.ID, &r.INN, &started, &finished, &r.Status, &r.Error)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to load run %s", runID)
	}
	r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if finished.Valid {
		t, _ := time.Parse(time.RFC3339Nano, finished.String)
		r.FinishedAt = &t
	}
	return &r, nil
}

// Artifacts lists a run's artifacts in the order they were recorded.
func (l *Ledger) Artifacts(ctx context.Context, runID string) ([]ArtifactEntry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, stage, path, created_at FROM artifacts WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "failed to query artifacts")
	}
	defer rows.Close()

	var out []ArtifactEntry
	for rows.Next() {
		var (
			a       ArtifactEntry
			created string
		)
		if err := rows.Scan(&a.RunID, &a.Stage, &a.Path, &created); err != nil {
			return nil, eris.Wrap(err, "failed to scan artifact")
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "failed to read artifacts")
}

func (l *Ledger) Close() error {
	return l.db.Close()
}
