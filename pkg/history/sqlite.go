package history

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentstation/utc"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/agentstation/syncflow/pkg/constants"
	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/records"
	"github.com/agentstation/syncflow/pkg/report"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	trigger_name TEXT NOT NULL,
	started_at   INTEGER NOT NULL,
	status       TEXT NOT NULL,
	report       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

CREATE TABLE IF NOT EXISTS addenda (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	recorded_at INTEGER NOT NULL,
	addendum    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_addenda_run ON addenda(run_id);

CREATE TABLE IF NOT EXISTS overrides (
	entity_key TEXT NOT NULL,
	field      TEXT NOT NULL,
	value      TEXT NOT NULL,
	set_at     INTEGER NOT NULL,
	set_by     TEXT NOT NULL DEFAULT '',
	note       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (entity_key, field)
);
`

// SQLiteStore is a durable Store backed by SQLite.
type SQLiteStore struct {
	db    *sql.DB
	limit int
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithRetention keeps only the newest n runs. Zero keeps everything.
func WithRetention(n int) SQLiteOption {
	return func(s *SQLiteStore) { s.limit = n }
}

// OpenSQLite opens or creates the history database at path.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
			return nil, errors.WrapIO("mkdir", filepath.Dir(path), err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}
	if path == ":memory:" {
		// each connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: exec schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}

	s := &SQLiteStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// pragmas are applied by the driver to every pooled connection.
var pragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"busy_timeout(10000)",
	"synchronous(NORMAL)",
}

// dsn builds the driver data source name for path.
func dsn(path string) string {
	q := url.Values{"_pragma": pragmas}
	return path + "?" + q.Encode()
}

// Record implements Recorder.
func (s *SQLiteStore) Record(ctx context.Context, r *report.RunReport) error {
	if r == nil || r.RunID == "" {
		return &errors.ValidationError{Field: "run_id", Message: "report has no run id"}
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("history: encode report: %w", err)
	}
	entry := report.Entry{Report: *r}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, trigger_name, started_at, status, report) VALUES (?, ?, ?, ?, ?)`,
		r.RunID, r.Trigger, r.StartedAt.Time.UnixNano(), entry.Summary().Status, string(data))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return &errors.ValidationError{Field: "run_id", Value: r.RunID, Message: "run already recorded"}
		}
		return errors.WrapResource("record", "run", r.RunID, err)
	}

	if s.limit > 0 {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM runs WHERE run_id NOT IN (SELECT run_id FROM runs ORDER BY started_at DESC LIMIT ?)`,
			s.limit)
		if err != nil {
			return errors.WrapResource("prune", "runs", r.RunID, err)
		}
	}
	return nil
}

// Append implements Recorder. The run's stored status is recomputed so
// status filters see the addendum's effect.
func (s *SQLiteStore) Append(ctx context.Context, a report.Addendum) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("history: encode addendum: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapResource("append", "run", a.RunID, err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE run_id = ?`, a.RunID).Scan(&exists); err != nil {
		return errors.WrapResource("append", "run", a.RunID, err)
	}
	if exists == 0 {
		return &errors.NotFoundError{Resource: "run", ID: a.RunID}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO addenda (run_id, recorded_at, addendum) VALUES (?, ?, ?)`,
		a.RunID, a.RecordedAt.Time.UnixNano(), string(data)); err != nil {
		return errors.WrapResource("append", "run", a.RunID, err)
	}

	entry, err := s.load(ctx, tx, a.RunID)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET status = ? WHERE run_id = ?`, entry.Summary().Status, a.RunID); err != nil {
		return errors.WrapResource("append", "run", a.RunID, err)
	}

	return tx.Commit()
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, runID string) (*report.Entry, error) {
	return s.load(ctx, s.db, runID)
}

// Latest implements Store.
func (s *SQLiteStore) Latest(ctx context.Context) (*report.Entry, error) {
	var runID string
	err := s.db.QueryRowContext(ctx, `SELECT run_id FROM runs ORDER BY started_at DESC LIMIT 1`).Scan(&runID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, &errors.NotFoundError{Resource: "run", ID: "latest"}
	}
	if err != nil {
		return nil, errors.WrapResource("get", "run", "latest", err)
	}
	return s.load(ctx, s.db, runID)
}

// Query implements Store.
func (s *SQLiteStore) Query(ctx context.Context, f Filter) (Page, error) {
	f = f.Normalize()

	where := []string{"1 = 1"}
	var args []any
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Trigger != "" {
		where = append(where, "trigger_name = ?")
		args = append(args, f.Trigger)
	}
	clause := strings.Join(where, " AND ")

	page := Page{Offset: f.Offset, Limit: f.Limit, Runs: []report.Summary{}}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE `+clause, args...).Scan(&page.Total); err != nil {
		return Page{}, errors.WrapResource("query", "runs", "", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id FROM runs WHERE `+clause+` ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return Page{}, errors.WrapResource("query", "runs", "", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return Page{}, errors.WrapResource("query", "runs", "", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Page{}, errors.WrapResource("query", "runs", "", err)
	}

	for _, id := range ids {
		e, err := s.load(ctx, s.db, id)
		if err != nil {
			return Page{}, err
		}
		page.Runs = append(page.Runs, e.Summary())
	}
	return page, nil
}

// SetOverride implements Overrides.
func (s *SQLiteStore) SetOverride(ctx context.Context, o Override) error {
	if err := validateOverride(o); err != nil {
		return err
	}
	value, err := json.Marshal(o.Value)
	if err != nil {
		return fmt.Errorf("history: encode override: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO overrides (entity_key, field, value, set_at, set_by, note) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_key, field) DO UPDATE SET
			value = excluded.value, set_at = excluded.set_at, set_by = excluded.set_by, note = excluded.note`,
		o.EntityKey, o.Field, string(value), o.SetAt.Time.UnixNano(), o.SetBy, o.Note)
	if err != nil {
		return errors.WrapResource("set", "override", o.EntityKey+"."+o.Field, err)
	}
	return nil
}

// DeleteOverride implements Overrides.
func (s *SQLiteStore) DeleteOverride(ctx context.Context, entityKey, field string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM overrides WHERE entity_key = ? AND field = ?`, entityKey, field)
	if err != nil {
		return errors.WrapResource("delete", "override", entityKey+"."+field, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &errors.NotFoundError{Resource: "override", ID: entityKey + "." + field}
	}
	return nil
}

// ListOverrides implements Overrides.
func (s *SQLiteStore) ListOverrides(ctx context.Context) ([]Override, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entity_key, field, value, set_at, set_by, note FROM overrides ORDER BY entity_key, field`)
	if err != nil {
		return nil, errors.WrapResource("list", "overrides", "", err)
	}
	defer rows.Close()

	out := []Override{}
	for rows.Next() {
		var (
			o     Override
			value string
			setAt int64
		)
		if err := rows.Scan(&o.EntityKey, &o.Field, &value, &setAt, &o.SetBy, &o.Note); err != nil {
			return nil, errors.WrapResource("list", "overrides", "", err)
		}
		var v records.Value
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			return nil, errors.WrapParse("json", "overrides", err)
		}
		o.Value = v
		o.SetAt = utc.New(time.Unix(0, setAt))
		out = append(out, o)
	}
	return out, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) load(ctx context.Context, q querier, runID string) (*report.Entry, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT report FROM runs WHERE run_id = ?`, runID).Scan(&data)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, &errors.NotFoundError{Resource: "run", ID: runID}
	}
	if err != nil {
		return nil, errors.WrapResource("get", "run", runID, err)
	}

	entry := &report.Entry{}
	if err := json.Unmarshal([]byte(data), &entry.Report); err != nil {
		return nil, errors.WrapParse("json", runID, err)
	}

	rows, err := q.QueryContext(ctx, `SELECT addendum FROM addenda WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, errors.WrapResource("get", "addenda", runID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.WrapResource("get", "addenda", runID, err)
		}
		var a report.Addendum
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, errors.WrapParse("json", runID, err)
		}
		entry.Addenda = append(entry.Addenda, a)
	}
	return entry, rows.Err()
}
