package badger

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/papercomputeco/frames/pkg/frame"
	"github.com/papercomputeco/frames/pkg/identity"
	"github.com/papercomputeco/frames/pkg/merkle"
	"github.com/papercomputeco/frames/pkg/storage"
)

// Driver implements storage.Driver on BadgerDB.
type Driver struct {
	db *badger.DB

	// wmu serializes write transactions so the sequence counter and frame
	// set roots never race within the process.
	wmu sync.Mutex

	gcStop chan struct{}
	gcDone chan struct{}

	now func() time.Time
}

type memberRecord struct {
	AgentID string    `json:"agent_id"`
	Seq     uint64    `json:"seq"`
	AddedAt time.Time `json:"added_at"`
}

type headRecord struct {
	FrameID   identity.FrameID `json:"frame_id"`
	Seq       uint64           `json:"seq"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NewDriver opens a BadgerDB store.
func NewDriver(cfg Config) (*Driver, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		d.gcStop = make(chan struct{})
		d.gcDone = make(chan struct{})
		go gcLoop(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger, d.gcStop, d.gcDone)
	}
	return d, nil
}

// DB returns the underlying badger handle.
func (d *Driver) DB() *badger.DB {
	return d.db
}

// Close stops GC and closes the database.
func (d *Driver) Close() error {
	if d.gcStop != nil {
		close(d.gcStop)
		<-d.gcDone
	}
	return d.db.Close()
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, badger.ErrConflict) {
		return storage.TransientError{Op: op, Err: err}
	}
	var (
		nf storage.NotFoundError
		nu storage.NodeUnknownError
		ce storage.ConflictError
		ie storage.IntegrityError
	)
	if errors.As(err, &nf) || errors.As(err, &nu) || errors.As(err, &ce) || errors.As(err, &ie) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// update runs fn in a serialized read-write transaction.
func (d *Driver) update(op string, fn func(txn *badger.Txn) error) error {
	d.wmu.Lock()
	defer d.wmu.Unlock()
	return wrap(op, d.db.Update(fn))
}

func getJSON(txn *badger.Txn, k []byte, v any) (bool, error) {
	item, err := txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error { return json.Unmarshal(val, v) })
}

// readFrame decodes the frame stored under id. A record that no longer
// decodes is reported as an IntegrityError.
func readFrame(txn *badger.Txn, id identity.FrameID) (*frame.Frame, error) {
	item, err := txn.Get(frameKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.NotFoundError{Kind: storage.KindFrame, ID: id.String()}
	}
	if err != nil {
		return nil, err
	}
	f := &frame.Frame{}
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, f) }); err != nil {
		return nil, storage.IntegrityError{FrameID: id, Cause: err}
	}
	return f, nil
}

func setJSON(txn *badger.Txn, k []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(k, b)
}

func exists(txn *badger.Txn, k []byte) (bool, error) {
	_, err := txn.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func requireNode(txn *badger.Txn, node identity.NodeID) error {
	ok, err := exists(txn, nodeKey(node))
	if err != nil {
		return err
	}
	if !ok {
		return storage.NodeUnknownError{NodeID: node}
	}
	return nil
}

// PutNode stores a record. Returns false if the NodeID already existed.
func (d *Driver) PutNode(_ context.Context, rec *merkle.NodeRecord) (bool, error) {
	if rec == nil {
		return false, errors.New("cannot store nil node")
	}
	var created bool
	err := d.update("put node", func(txn *badger.Txn) error {
		ok, err := exists(txn, nodeKey(rec.ID))
		if err != nil || ok {
			return err
		}
		created = true
		return setJSON(txn, nodeKey(rec.ID), rec)
	})
	return created, err
}

// GetNode retrieves a record by NodeID.
func (d *Driver) GetNode(_ context.Context, id identity.NodeID) (*merkle.NodeRecord, error) {
	rec := &merkle.NodeRecord{}
	var found bool
	err := d.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, nodeKey(id), rec)
		return err
	})
	if err != nil {
		return nil, wrap("get node", err)
	}
	if !found {
		return nil, storage.NotFoundError{Kind: storage.KindNode, ID: id.String()}
	}
	rec.ID = id
	return rec, nil
}

// HasNode checks if a record exists.
func (d *Driver) HasNode(_ context.Context, id identity.NodeID) (bool, error) {
	var ok bool
	err := d.db.View(func(txn *badger.Txn) error {
		var err error
		ok, err = exists(txn, nodeKey(id))
		return err
	})
	return ok, wrap("has node", err)
}

// PutFrame stores a frame by its verified ID.
func (d *Driver) PutFrame(_ context.Context, f *frame.Frame) (identity.FrameID, error) {
	if f == nil {
		return identity.FrameID{}, errors.New("cannot store nil frame")
	}
	if err := storage.VerifyFrame(f); err != nil {
		return identity.FrameID{}, err
	}
	err := d.update("put frame", func(txn *badger.Txn) error {
		_, err := putFrame(txn, f)
		return err
	})
	if err != nil {
		return identity.FrameID{}, err
	}
	return f.ID, nil
}

func putFrame(txn *badger.Txn, f *frame.Frame) (bool, error) {
	ok, err := exists(txn, frameKey(f.ID))
	if err != nil || ok {
		return false, err
	}
	return true, setJSON(txn, frameKey(f.ID), f)
}

// GetFrame retrieves a frame and re-verifies its identifier.
func (d *Driver) GetFrame(_ context.Context, id identity.FrameID) (*frame.Frame, error) {
	var f *frame.Frame
	err := d.db.View(func(txn *badger.Txn) error {
		var err error
		f, err = readFrame(txn, id)
		return err
	})
	if err != nil {
		return nil, wrap("get frame", err)
	}
	f.ID = id
	if err := storage.VerifyFrame(f); err != nil {
		return nil, err
	}
	return f, nil
}

// HasFrame checks if a frame exists.
func (d *Driver) HasFrame(_ context.Context, id identity.FrameID) (bool, error) {
	var ok bool
	err := d.db.View(func(txn *badger.Txn) error {
		var err error
		ok, err = exists(txn, frameKey(id))
		return err
	})
	return ok, wrap("has frame", err)
}

// nextSeq increments the stored commit sequence inside txn.
func nextSeq(txn *badger.Txn) (uint64, error) {
	seq, err := currentSeq(txn)
	if err != nil {
		return 0, err
	}
	seq++
	return seq, txn.Set(keySeq, encodeSeq(seq))
}

func currentSeq(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get(keySeq)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var seq uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt sequence value of length %d", len(val))
		}
		seq = binary.BigEndian.Uint64(val)
		return nil
	})
	return seq, err
}

// Stats returns record counts.
func (d *Driver) Stats(_ context.Context) (storage.Stats, error) {
	var s storage.Stats
	err := d.db.View(func(txn *badger.Txn) error {
		for prefix, dst := range map[string]*int64{
			string(prefixNode):   &s.Nodes,
			string(prefixFrame):  &s.Frames,
			string(prefixMember): &s.Members,
			string(prefixHead):   &s.Heads,
		} {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = []byte(prefix)
			it := txn.NewIterator(opts)
			for it.Rewind(); it.Valid(); it.Next() {
				*dst++
			}
			it.Close()
		}
		return nil
	})
	return s, wrap("stats", err)
}

func keySuffix(k, prefix []byte) []byte {
	return bytes.Clone(k[len(prefix):])
}
