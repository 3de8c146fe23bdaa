// Package bench drives the disk B-tree engine and a cockroachdb/pebble
// instance behind an identical interface, following the teacher's
// dbms/index/index.go shape, so the same workload generator and recorder
// can exercise either backend.
package bench

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"

	"btreedisk/btree"
	"btreedisk/codec"
)

// ErrNotFound is returned by Get when the key is absent, mirroring the
// teacher's index.Index contract.
var ErrNotFound = errors.New("bench: key not found")

// Index is the common interface for every backend under comparison.
type Index interface {
	Insert(key int64, value []byte) error
	Get(key int64) ([]byte, error)
	Delete(key int64) error
	Range(start, end int64) (Iterator, error)
	Close() error
}

// Iterator scans a half-open [start, end) key range in ascending order.
type Iterator interface {
	Next() bool
	Key() int64
	Value() []byte
	Error() error
	Close() error
}

func lessInt64(a, b int64) bool { return a < b }

// ─── Disk B-tree backend ────────────────────────────────────────────────────

type btreeIndex struct {
	tree *btree.Tree[int64, []byte]
}

// NewBtreeIndex opens (or creates) a disk-resident tree of minimum degree t
// rooted under dir.
func NewBtreeIndex(dir string, t int) (Index, error) {
	treePath := filepath.Join(dir, "bench.tree")
	dataPath := filepath.Join(dir, "bench.data")
	tr, err := btree.Open[int64, []byte](treePath, dataPath, t, codec.Int64{}, codec.Bytes{}, lessInt64, btree.Options{})
	if err != nil {
		return nil, fmt.Errorf("bench: open btree: %w", err)
	}
	return &btreeIndex{tree: tr}, nil
}

func (b *btreeIndex) Insert(key int64, value []byte) error {
	_, err := b.tree.Insert(key, value)
	return err
}

func (b *btreeIndex) Get(key int64) ([]byte, error) {
	v, ok, err := b.tree.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (b *btreeIndex) Delete(key int64) error {
	_, err := b.tree.Erase(key)
	return err
}

func (b *btreeIndex) Range(start, end int64) (Iterator, error) {
	it, err := b.tree.Range(start, end, true, false)
	if err != nil {
		return nil, err
	}
	return it, nil
}

func (b *btreeIndex) Close() error { return b.tree.Close() }

// ─── pebble backend ─────────────────────────────────────────────────────────

// signBit flips an int64's sign bit before big-endian encoding so pebble's
// byte-wise comparator orders keys the same way int64 comparison does,
// including negative keys.
const signBit = uint64(1) << 63

func encodeKey(k int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(k)^signBit)
	return buf[:]
}

func decodeKey(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b) ^ signBit)
}

type pebbleIndex struct {
	db *pebble.DB
}

// NewPebbleIndex opens (or creates) a pebble instance rooted under dir, as
// the alternative storage engine the disk B-tree is benchmarked against.
func NewPebbleIndex(dir string) (Index, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("bench: open pebble: %w", err)
	}
	return &pebbleIndex{db: db}, nil
}

func (p *pebbleIndex) Insert(key int64, value []byte) error {
	return p.db.Set(encodeKey(key), value, pebble.NoSync)
}

func (p *pebbleIndex) Get(key int64) ([]byte, error) {
	v, closer, err := p.db.Get(encodeKey(key))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), v...)
	if err := closer.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *pebbleIndex) Delete(key int64) error {
	return p.db.Delete(encodeKey(key), pebble.NoSync)
}

func (p *pebbleIndex) Range(start, end int64) (Iterator, error) {
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: encodeKey(start),
		UpperBound: encodeKey(end),
	})
	if err != nil {
		return nil, fmt.Errorf("bench: pebble range: %w", err)
	}
	return &pebbleIterator{it: it}, nil
}

func (p *pebbleIndex) Close() error { return p.db.Close() }

type pebbleIterator struct {
	it      *pebble.Iterator
	started bool
	valid   bool
}

func (it *pebbleIterator) Next() bool {
	if !it.started {
		it.started = true
		it.valid = it.it.First()
	} else {
		it.valid = it.it.Next()
	}
	return it.valid
}

func (it *pebbleIterator) Key() int64      { return decodeKey(it.it.Key()) }
func (it *pebbleIterator) Value() []byte   { return append([]byte(nil), it.it.Value()...) }
func (it *pebbleIterator) Error() error    { return it.it.Error() }
func (it *pebbleIterator) Close() error    { return it.it.Close() }
