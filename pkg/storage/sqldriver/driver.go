// Package sqldriver implements storage.Driver over database/sql. It is
// backend agnostic and embedded by the sqlite, postgres and libsql drivers,
// which supply a Dialect.
package sqldriver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/papercomputeco/frames/pkg/frame"
	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/merkle"
	"github.com/papercomputeco/frames/pkg/storage"
)

// Driver provides storage operations on a *sql.DB.
type Driver struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New applies the dialect schema to db and returns a driver over it.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Driver, error) {
	for _, stmt := range dialect.statements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to apply %s schema: %w", dialect.Name, err)
		}
	}
	return &Driver{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// DB returns the underlying database handle.
func (d *Driver) DB() *sql.DB {
	return d.db
}

// Close closes the database.
func (d *Driver) Close() error {
	return d.db.Close()
}

func (d *Driver) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if d.dialect.Transient != nil && d.dialect.Transient(err) {
		return storage.TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (d *Driver) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, d.dialect.rebind(query), args...)
}

func (d *Driver) queryRow(ctx context.Context, q querier, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, d.dialect.rebind(query), args...)
}

func (d *Driver) query(ctx context.Context, q querier, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, d.dialect.rebind(query), args...)
}

// inTx runs fn in a transaction, committing on success.
func (d *Driver) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return d.wrap(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return d.wrap(op, tx.Commit())
}

// PutNode stores a record. Returns false if the NodeID already existed.
func (d *Driver) PutNode(ctx context.Context, rec *merkle.NodeRecord) (bool, error) {
	if rec == nil {
		return false, errors.New("cannot store nil node")
	}

	var parent, digest []byte
	if rec.Parent != nil {
		parent = rec.Parent[:]
	}
	if rec.ContentDigest != nil {
		digest = rec.ContentDigest[:]
	}

	res, err := d.exec(ctx, d.db,
		`INSERT INTO nodes (id, path, kind, parent_id, content_digest, children, size)
		 VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		rec.ID[:], rec.Path, int(rec.Kind), parent, digest, joinIDs(rec.Children), rec.Size)
	if err != nil {
		return false, d.wrap("put node", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, d.wrap("put node", err)
	}
	return n > 0, nil
}

// GetNode retrieves a record by NodeID.
func (d *Driver) GetNode(ctx context.Context, id identity.NodeID) (*merkle.NodeRecord, error) {
	var (
		kind                     int
		parent, digest, children []byte
	)
	rec := &merkle.NodeRecord{ID: id}
	err := d.queryRow(ctx, d.db,
		`SELECT path, kind, parent_id, content_digest, children, size FROM nodes WHERE id = ?`, id[:]).
		Scan(&rec.Path, &kind, &parent, &digest, &children, &rec.Size)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Kind: storage.KindNode, ID: id.String()}
	}
	if err != nil {
		return nil, d.wrap("get node", err)
	}

	rec.Kind = merkle.NodeKind(kind)
	if len(parent) == identity.Size {
		var p identity.NodeID
		copy(p[:], parent)
		rec.Parent = &p
	}
	if len(digest) == identity.Size {
		var dg identity.Digest
		copy(dg[:], digest)
		rec.ContentDigest = &dg
	}
	rec.Children, err = splitIDs(children)
	if err != nil {
		return nil, fmt.Errorf("decoding children of %s: %w", id, err)
	}
	return rec, nil
}

// HasNode checks if a record exists.
func (d *Driver) HasNode(ctx context.Context, id identity.NodeID) (bool, error) {
	ok, err := d.nodeKnown(ctx, d.db, id)
	return ok, d.wrap("has node", err)
}

func (d *Driver) nodeKnown(ctx context.Context, q querier, id identity.NodeID) (bool, error) {
	var one int
	err := d.queryRow(ctx, q, `SELECT 1 FROM nodes WHERE id = ?`, id[:]).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// PutFrame stores a frame by its verified ID.
func (d *Driver) PutFrame(ctx context.Context, f *frame.Frame) (identity.FrameID, error) {
	if f == nil {
		return identity.FrameID{}, errors.New("cannot store nil frame")
	}
	if err := storage.VerifyFrame(f); err != nil {
		return identity.FrameID{}, err
	}
	if _, err := d.insertFrame(ctx, d.db, f); err != nil {
		return identity.FrameID{}, d.wrap("put frame", err)
	}
	return f.ID, nil
}

func (d *Driver) insertFrame(ctx context.Context, q querier, f *frame.Frame) (bool, error) {
	fields, err := json.Marshal(f.Fields)
	if err != nil {
		return false, fmt.Errorf("marshal fields: %w", err)
	}
	meta, err := json.Marshal(f.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshal metadata: %w", err)
	}

	content := f.Content
	if content == nil {
		content = []byte{}
	}
	res, err := d.exec(ctx, q,
		`INSERT INTO frames (id, node_id, agent_id, content, fields, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		f.ID[:], f.NodeID[:], f.AgentID, content, string(fields), string(meta), f.CreatedAt.UnixNano())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetFrame retrieves a frame and re-verifies its identifier.
func (d *Driver) GetFrame(ctx context.Context, id identity.FrameID) (*frame.Frame, error) {
	var (
		node          []byte
		fields, meta  string
		createdAtNano int64
	)
	f := &frame.Frame{ID: id}
	err := d.queryRow(ctx, d.db,
		`SELECT node_id, agent_id, content, fields, metadata, created_at FROM frames WHERE id = ?`, id[:]).
		Scan(&node, &f.AgentID, &f.Content, &fields, &meta, &createdAtNano)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Kind: storage.KindFrame, ID: id.String()}
	}
	if err != nil {
		return nil, d.wrap("get frame", err)
	}

	if len(node) != len(f.NodeID) {
		return nil, storage.IntegrityError{FrameID: id, Cause: fmt.Errorf("node id is %d bytes", len(node))}
	}
	copy(f.NodeID[:], node)
	f.CreatedAt = time.Unix(0, createdAtNano).UTC()
	if err := json.Unmarshal([]byte(fields), &f.Fields); err != nil {
		return nil, storage.IntegrityError{FrameID: id, Cause: fmt.Errorf("decoding fields: %w", err)}
	}
	if err := json.Unmarshal([]byte(meta), &f.Metadata); err != nil {
		return nil, storage.IntegrityError{FrameID: id, Cause: fmt.Errorf("decoding metadata: %w", err)}
	}

	if err := storage.VerifyFrame(f); err != nil {
		return nil, err
	}
	return f, nil
}

// HasFrame checks if a frame exists.
func (d *Driver) HasFrame(ctx context.Context, id identity.FrameID) (bool, error) {
	var one int
	err := d.queryRow(ctx, d.db, `SELECT 1 FROM frames WHERE id = ?`, id[:]).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, d.wrap("has frame", err)
	}
	return true, nil
}

// Stats returns record counts.
func (d *Driver) Stats(ctx context.Context) (storage.Stats, error) {
	var s storage.Stats
	for table, dst := range map[string]*int64{
		"nodes":             &s.Nodes,
		"frames":            &s.Frames,
		"frame_set_members": &s.Members,
		"heads":             &s.Heads,
	} {
		if err := d.queryRow(ctx, d.db, "SELECT COUNT(*) FROM "+table).Scan(dst); err != nil {
			return storage.Stats{}, d.wrap("stats", err)
		}
	}
	return s, nil
}

func joinIDs(ids []identity.NodeID) []byte {
	out := make([]byte, 0, len(ids)*identity.Size)
	for _, id := range ids {
		out = append(out, id[:]...)
	}
	return out
}

func splitIDs(b []byte) ([]identity.NodeID, error) {
	if len(b)%identity.Size != 0 {
		return nil, fmt.Errorf("length %d is not a multiple of %d", len(b), identity.Size)
	}
	if len(b) == 0 {
		return nil, nil
	}
	out := make([]identity.NodeID, len(b)/identity.Size)
	for i := range out {
		copy(out[i][:], b[i*identity.Size:])
	}
	return out, nil
}
