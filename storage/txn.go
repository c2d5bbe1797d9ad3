package storage

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrTxnClosed is returned when a committed or discarded transaction is used.
var ErrTxnClosed = errors.New("storage: transaction closed")

// Txn buffers writes on top of a Database. Reads observe the buffered writes.
// Nothing reaches the database until Commit, which applies the whole write set
// as one batch; Discard drops it.
type Txn struct {
	mu     sync.Mutex
	db     Database
	writes map[string][]byte
	dels   map[string]struct{}
	closed bool
}

// NewTxn opens a transaction against db.
func NewTxn(db Database) *Txn {
	return &Txn{
		db:     db,
		writes: make(map[string][]byte),
		dels:   make(map[string]struct{}),
	}
}

func (t *Txn) Get(key []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTxnClosed
	}
	k := string(key)
	if value, ok := t.writes[k]; ok {
		return append([]byte(nil), value...), nil
	}
	if _, ok := t.dels[k]; ok {
		return nil, ErrNotFound
	}
	return t.db.Get(key)
}

func (t *Txn) Has(key []byte) (bool, error) {
	_, err := t.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *Txn) Put(key []byte, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTxnClosed
	}
	k := string(key)
	delete(t.dels, k)
	t.writes[k] = append([]byte(nil), value...)
	return nil
}

func (t *Txn) Delete(key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTxnClosed
	}
	k := string(key)
	delete(t.writes, k)
	t.dels[k] = struct{}{}
	return nil
}

// NewIterator merges the committed range with the pending write set.
func (t *Txn) NewIterator(prefix, start []byte) Iterator {
	t.mu.Lock()
	defer t.mu.Unlock()
	merged := make(map[string][]byte)
	base := t.db.NewIterator(prefix, start)
	for base.Next() {
		merged[string(base.Key())] = append([]byte(nil), base.Value()...)
	}
	err := base.Error()
	base.Release()
	if err != nil {
		return &sliceIterator{pos: -1, err: err}
	}
	p := string(prefix)
	s := string(start)
	for key, value := range t.writes {
		if strings.HasPrefix(key, p) && (start == nil || key >= s) {
			merged[key] = value
		}
	}
	for key := range t.dels {
		delete(merged, key)
	}
	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	entries := make([]kv, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, kv{key: []byte(key), value: append([]byte(nil), merged[key]...)})
	}
	return &sliceIterator{entries: entries, pos: -1}
}

// Pending reports the number of buffered operations.
func (t *Txn) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.writes) + len(t.dels)
}

// Commit writes the buffered operations to the database in one batch and
// closes the transaction.
func (t *Txn) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTxnClosed
	}
	keys := make([]string, 0, len(t.writes)+len(t.dels))
	for key := range t.writes {
		keys = append(keys, key)
	}
	for key := range t.dels {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	batch := new(Batch)
	for _, key := range keys {
		if value, ok := t.writes[key]; ok {
			batch.Put([]byte(key), value)
			continue
		}
		batch.Delete([]byte(key))
	}
	if err := t.db.Write(batch); err != nil {
		return err
	}
	t.closed = true
	t.writes = nil
	t.dels = nil
	return nil
}

// Discard drops the buffered operations. Calling it after Commit is a no-op.
func (t *Txn) Discard() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.writes = nil
	t.dels = nil
}
