package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/flowstack-dev/flowstack/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded
// SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path.
// The path should be a file URI, e.g. "file:/path/to/flowstack.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Drafts ---

// SaveDraft inserts or replaces a draft by local ID.
func (s *LibSQLStore) SaveDraft(ctx context.Context, d *Draft) error {
	nodes, err := json.Marshal(d.Nodes)
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}
	edges, err := json.Marshal(d.Edges)
	if err != nil {
		return fmt.Errorf("marshal edges: %w", err)
	}

	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drafts (id, remote_id, name, description, nodes, edges, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   remote_id=excluded.remote_id, name=excluded.name, description=excluded.description,
		   nodes=excluded.nodes, edges=excluded.edges, status=excluded.status, updated_at=excluded.updated_at`,
		d.ID, nullStr(d.RemoteID), d.Name, nullStr(d.Description),
		string(nodes), string(edges), string(d.Status), d.CreatedAt, d.UpdatedAt,
	)
	return err
}

// GetDraft fetches a draft by local ID.
func (s *LibSQLStore) GetDraft(ctx context.Context, id string) (*Draft, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, remote_id, name, description, nodes, edges, status, created_at, updated_at
		 FROM drafts WHERE id = ?`, id)
	d, err := scanDraft(row)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "draft %q not found", id)
	}
	return d, err
}

// ListDrafts returns all drafts, most recently updated first.
func (s *LibSQLStore) ListDrafts(ctx context.Context) ([]*Draft, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, remote_id, name, description, nodes, edges, status, created_at, updated_at
		 FROM drafts ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drafts []*Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

// DeleteDraft removes a draft and its journal entries.
func (s *LibSQLStore) DeleteDraft(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE draft_id = ?`, id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return schema.NewErrorf(schema.ErrCodeNotFound, "draft %q not found", id)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDraft(row scanner) (*Draft, error) {
	d := &Draft{}
	var remoteID, description sql.NullString
	var nodesJSON, edgesJSON, status string
	if err := row.Scan(&d.ID, &remoteID, &d.Name, &description,
		&nodesJSON, &edgesJSON, &status, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.RemoteID = remoteID.String
	d.Description = description.String
	d.Status = schema.WorkflowStatus(status)
	if err := json.Unmarshal([]byte(nodesJSON), &d.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal([]byte(edgesJSON), &d.Edges); err != nil {
		return nil, fmt.Errorf("unmarshal edges: %w", err)
	}
	return d, nil
}

// --- Event journal ---

// AppendEvent appends an event with a monotonically increasing
// per-draft sequence.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE draft_id = ?`, event.DraftID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (draft_id, node_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.DraftID, nullStr(event.NodeID), event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// GetEvents returns events for a draft with sequence > since, ordered by
// sequence ASC.
func (s *LibSQLStore) GetEvents(ctx context.Context, draftID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, draft_id, node_id, event_type, payload, timestamp, sequence
		 FROM events WHERE draft_id = ? AND sequence > ? ORDER BY sequence ASC`,
		draftID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evs []*Event
	for rows.Next() {
		e := &Event{}
		var nodeID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.DraftID, &nodeID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.NodeID = nodeID.String
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		evs = append(evs, e)
	}
	return evs, rows.Err()
}

// --- SQL helpers ---

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullRaw(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
