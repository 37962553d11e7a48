package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/epyc-go/epyc/internal/config"
	"github.com/epyc-go/epyc/internal/experiment"
	"github.com/epyc-go/epyc/internal/notebook"
	"github.com/epyc-go/epyc/internal/resultset"
)

// Backend is the concrete notebook.PersistentBackend storing one notebook's
// state under a fixed notebooks.id. Grounded on internal/storage's
// PersistentKeyStore: a thin struct around *Connection, parameterized
// queries, RowsAffected checks, and a synchronous audit-style logger.
type Backend struct {
	conn       *Connection
	notebookID uuid.UUID
	logger     *slog.Logger
}

// New creates a Backend bound to notebookID. Every notebook instance a
// caller wants persisted independently needs its own uuid.
func New(conn *Connection, notebookID uuid.UUID) *Backend {
	return &Backend{
		conn:       conn,
		notebookID: notebookID,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}
}

var _ notebook.PersistentBackend = (*Backend)(nil)

// Open reconstructs a Snapshot for notebookID. A notebook row that doesn't
// exist yet (first run against a fresh database) is not an error: it
// returns a fresh, set-free Snapshot so notebook.Open can build the usual
// single-default-set Notebook.
func (b *Backend) Open(ctx context.Context) (*notebook.Snapshot, error) {
	snap := &notebook.Snapshot{CurrentTag: notebook.DefaultTag}

	row := b.conn.QueryRowContext(ctx,
		`SELECT description, locked, current_tag FROM notebooks WHERE id = $1`,
		b.notebookID,
	)

	if err := row.Scan(&snap.Description, &snap.Locked, &snap.CurrentTag); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return snap, nil
		}

		return nil, fmt.Errorf("notebook/postgres: open: query notebook: %w", err)
	}

	sets, err := b.openSets(ctx)
	if err != nil {
		return nil, err
	}

	snap.Sets = sets

	return snap, nil
}

func (b *Backend) openSets(ctx context.Context) ([]*notebook.SetSnapshot, error) {
	rows, err := b.conn.QueryContext(ctx,
		`SELECT id, tag, description, locked, attributes FROM result_sets WHERE notebook_id = $1 ORDER BY tag`,
		b.notebookID,
	)
	if err != nil {
		return nil, fmt.Errorf("notebook/postgres: open: query result sets: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var sets []*notebook.SetSnapshot

	for rows.Next() {
		var (
			setID          uuid.UUID
			attributesJSON []byte
			ss             notebook.SetSnapshot
		)

		if err := rows.Scan(&setID, &ss.Tag, &ss.Description, &ss.Locked, &attributesJSON); err != nil {
			return nil, fmt.Errorf("notebook/postgres: open: scan result set: %w", err)
		}

		if err := json.Unmarshal(attributesJSON, &ss.Attributes); err != nil {
			return nil, fmt.Errorf("notebook/postgres: open: unmarshal attributes for %q: %w", ss.Tag, err)
		}

		recordRows, err := b.recordsFor(ctx, setID)
		if err != nil {
			return nil, fmt.Errorf("notebook/postgres: open: records for %q: %w", ss.Tag, err)
		}

		ss.Rows = recordRows

		pendingRows, err := b.pendingFor(ctx, setID)
		if err != nil {
			return nil, fmt.Errorf("notebook/postgres: open: pending for %q: %w", ss.Tag, err)
		}

		ss.PendingRows = pendingRows

		sets = append(sets, &ss)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notebook/postgres: open: iterate result sets: %w", err)
	}

	return sets, nil
}

func (b *Backend) recordsFor(ctx context.Context, setID uuid.UUID) ([]resultset.Row, error) {
	rows, err := b.conn.QueryContext(ctx,
		`SELECT parameters, metadata, results FROM records WHERE result_set_id = $1 ORDER BY seq`,
		setID,
	)
	if err != nil {
		return nil, err
	}

	defer func() { _ = rows.Close() }()

	var out []resultset.Row

	for rows.Next() {
		var paramsJSON, metaJSON, resultsJSON []byte

		if err := rows.Scan(&paramsJSON, &metaJSON, &resultsJSON); err != nil {
			return nil, err
		}

		var r resultset.Row

		if err := json.Unmarshal(paramsJSON, &r.Parameters); err != nil {
			return nil, fmt.Errorf("unmarshal parameters: %w", err)
		}

		if err := json.Unmarshal(metaJSON, &r.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}

		if err := json.Unmarshal(resultsJSON, &r.Results); err != nil {
			return nil, fmt.Errorf("unmarshal results: %w", err)
		}

		out = append(out, r)
	}

	return out, rows.Err()
}

func (b *Backend) pendingFor(ctx context.Context, setID uuid.UUID) ([]notebook.PendingRowSnapshot, error) {
	rows, err := b.conn.QueryContext(ctx,
		`SELECT job_id, parameters FROM pending_jobs WHERE result_set_id = $1 ORDER BY created_at`,
		setID,
	)
	if err != nil {
		return nil, err
	}

	defer func() { _ = rows.Close() }()

	var out []notebook.PendingRowSnapshot

	for rows.Next() {
		var (
			jobID      string
			paramsJSON []byte
		)

		if err := rows.Scan(&jobID, &paramsJSON); err != nil {
			return nil, err
		}

		var params experiment.Parameters
		if err := json.Unmarshal(paramsJSON, &params); err != nil {
			return nil, fmt.Errorf("unmarshal pending parameters: %w", err)
		}

		out = append(out, notebook.PendingRowSnapshot{JobID: jobID, Parameters: params})
	}

	return out, rows.Err()
}

// Commit writes the housekeeping notebooks row and every dirty result set
// in full inside a single transaction (spec §4.4 "on commit": never
// partially write a changed schema). Sets that aren't dirty are left
// untouched.
func (b *Backend) Commit(ctx context.Context, snap *notebook.Snapshot) error {
	tx, err := b.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("notebook/postgres: commit: begin: %w", err)
	}

	committed := false

	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO notebooks (id, description, locked, current_tag, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description,
			locked      = EXCLUDED.locked,
			current_tag = EXCLUDED.current_tag,
			updated_at  = now()
	`, b.notebookID, snap.Description, snap.Locked, snap.CurrentTag); err != nil {
		return fmt.Errorf("notebook/postgres: commit: upsert notebook: %w", err)
	}

	for _, ss := range snap.Sets {
		if !ss.Dirty {
			continue
		}

		if err := b.commitSet(ctx, tx, ss); err != nil {
			return fmt.Errorf("notebook/postgres: commit: set %q: %w", ss.Tag, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("notebook/postgres: commit: %w", err)
	}

	committed = true

	b.logger.Info("committed notebook", slog.String("notebook_id", b.notebookID.String()), slog.Int("sets", len(snap.Sets)))

	return nil
}

func (b *Backend) commitSet(ctx context.Context, tx *sql.Tx, ss *notebook.SetSnapshot) error {
	attributesJSON, err := json.Marshal(ss.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}

	schemaJSON, err := json.Marshal(schemaOf(ss))
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	var setID uuid.UUID

	err = tx.QueryRowContext(ctx, `
		INSERT INTO result_sets (id, notebook_id, tag, description, locked, attributes, schema)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (notebook_id, tag) DO UPDATE SET
			description = EXCLUDED.description,
			locked      = EXCLUDED.locked,
			attributes  = EXCLUDED.attributes,
			schema      = EXCLUDED.schema
		RETURNING id
	`, uuid.New(), b.notebookID, ss.Tag, ss.Description, ss.Locked, attributesJSON, schemaJSON).Scan(&setID)
	if err != nil {
		return fmt.Errorf("upsert result set: %w", err)
	}

	if ss.TypeChanged {
		b.logger.Info("result set schema grew", slog.String("tag", ss.Tag))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE result_set_id = $1`, setID); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}

	for seq, row := range ss.Rows {
		paramsJSON, err := json.Marshal(row.Parameters)
		if err != nil {
			return fmt.Errorf("marshal row parameters: %w", err)
		}

		metaJSON, err := json.Marshal(row.Metadata)
		if err != nil {
			return fmt.Errorf("marshal row metadata: %w", err)
		}

		resultsJSON, err := json.Marshal(row.Results)
		if err != nil {
			return fmt.Errorf("marshal row results: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO records (result_set_id, seq, parameters, metadata, results)
			VALUES ($1, $2, $3, $4, $5)
		`, setID, seq, paramsJSON, metaJSON, resultsJSON); err != nil {
			return fmt.Errorf("insert record %d: %w", seq, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_jobs WHERE result_set_id = $1`, setID); err != nil {
		return fmt.Errorf("clear pending jobs: %w", err)
	}

	for _, p := range ss.PendingRows {
		paramsJSON, err := json.Marshal(p.Parameters)
		if err != nil {
			return fmt.Errorf("marshal pending parameters: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pending_jobs (job_id, result_set_id, parameters)
			VALUES ($1, $2, $3)
		`, p.JobID, setID, paramsJSON); err != nil {
			return fmt.Errorf("insert pending job %q: %w", p.JobID, err)
		}
	}

	return nil
}

// schemaOf summarises a set's current field names for the schema column,
// purely for external introspection: reconstruction on Open always replays
// from the records table itself, never from this column.
func schemaOf(ss *notebook.SetSnapshot) map[string][]string {
	fields := map[string]map[string]bool{"metadata": {}, "parameters": {}, "results": {}}

	for _, row := range ss.Rows {
		for k := range row.Metadata {
			fields["metadata"][k] = true
		}

		for k := range row.Parameters {
			fields["parameters"][k] = true
		}

		for k := range row.Results {
			fields["results"][k] = true
		}
	}

	out := make(map[string][]string, len(fields))

	for section, names := range fields {
		list := make([]string, 0, len(names))
		for name := range names {
			list = append(list, name)
		}

		out[section] = list
	}

	return out
}
