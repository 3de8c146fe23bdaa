// Package node implements the paged node store: the on-disk layout of tree
// slots, the append-only data file for key/value payloads, and the
// construction-time constants (t, MIN_KEYS, MAX_KEYS, MAX_CHILDREN) that
// size a slot.
package node

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"btreedisk/codec"
	"btreedisk/pager"
)

// ErrCorrupt is returned (wrapped with slot/positional detail) when a node
// read from disk fails a structural self-check.
var ErrCorrupt = errors.New("btreedisk: corrupt node store")

// W is the fixed word size used throughout the on-disk format. The file
// format fixes this at 8 bytes; it does not vary with the host architecture.
const W = 8

// none is the sentinel root position meaning "tree is empty".
const none = ^uint64(0)

// Limits holds the derived fanout constants for a tree of minimum degree t.
type Limits struct {
	T            int
	MinKeys      int
	MaxKeys      int
	MaxChildren  int
}

// NewLimits derives MinKeys/MaxKeys/MaxChildren from a minimum degree t >= 2.
func NewLimits(t int) Limits {
	if t < 2 {
		panic(fmt.Sprintf("btreedisk: minimum degree t must be >= 2, got %d", t))
	}
	return Limits{
		T:           t,
		MinKeys:     t - 1,
		MaxKeys:     2*t - 1,
		MaxChildren: 2 * t,
	}
}

// SlotSize is the fixed byte size of one node slot for these limits.
func (l Limits) SlotSize() int {
	return W + 1 + W + (l.MaxKeys+2)*W + (l.MaxKeys+1)*W
}

// Node is the sole persistent entity: a slot's decoded contents.
type Node[K, V any] struct {
	Size     int
	IsLeaf   bool
	SelfPos  uint64
	Keys     []K
	Values   []V
	Children []uint64 // length Size+1 when internal; empty for leaves
}

// Store owns the tree file and the append-only data file, and knows how to
// serialize/deserialize Node[K,V] values between them.
type Store[K, V any] struct {
	limits   Limits
	pg       *pager.Pager
	dataFile *os.File
	dataSize int64

	keyCodec codec.Codec[K]
	valCodec codec.Codec[V]

	nodeCount uint64
	rootPos   uint64
}

const headerSize = 2 * W

// Open opens or creates the (treePath, dataPath) pair. Mixed existence
// (exactly one of the two files present) is a construction error.
func Open[K, V any](treePath, dataPath string, t int, keyCodec codec.Codec[K], valCodec codec.Codec[V], cacheSlots int) (*Store[K, V], error) {
	limits := NewLimits(t)

	treeExists := fileExists(treePath)
	dataExists := fileExists(dataPath)
	if treeExists != dataExists {
		return nil, fmt.Errorf("btreedisk: mixed existence of %s and %s", treePath, dataPath)
	}
	fresh := !treeExists

	pg, err := pager.Open(treePath, headerSize, limits.SlotSize(), cacheSlots)
	if err != nil {
		return nil, err
	}

	df, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		pg.Close()
		return nil, fmt.Errorf("btreedisk: open data file %s: %w", dataPath, err)
	}
	info, err := df.Stat()
	if err != nil {
		pg.Close()
		df.Close()
		return nil, fmt.Errorf("btreedisk: stat data file %s: %w", dataPath, err)
	}

	s := &Store[K, V]{
		limits:   limits,
		pg:       pg,
		dataFile: df,
		dataSize: info.Size(),
		keyCodec: keyCodec,
		valCodec: valCodec,
	}

	if fresh {
		s.nodeCount = 0
		rootPos := s.AllocateSlot()
		if err := s.WriteNode(&Node[K, V]{Size: 0, IsLeaf: true, SelfPos: rootPos}); err != nil {
			return nil, err
		}
		s.rootPos = rootPos
		if err := s.writeHeader(); err != nil {
			return nil, err
		}
	} else {
		if err := s.readHeader(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Limits returns the tree's fanout constants.
func (s *Store[K, V]) Limits() Limits { return s.limits }

// NodeCount returns the number of ever-allocated slots.
func (s *Store[K, V]) NodeCount() uint64 { return s.nodeCount }

// RootPos returns the current root slot, or false if the tree is empty.
func (s *Store[K, V]) RootPos() (uint64, bool) {
	if s.rootPos == none {
		return 0, false
	}
	return s.rootPos, true
}

// SetRootPos updates the root slot and persists the header immediately.
func (s *Store[K, V]) SetRootPos(pos uint64) error {
	s.rootPos = pos
	return s.writeHeader()
}

// ClearRoot marks the tree empty and persists the header.
func (s *Store[K, V]) ClearRoot() error {
	s.rootPos = none
	return s.writeHeader()
}

// AllocateSlot reserves a new slot index. Persists node_count immediately
// (see SPEC_FULL.md §9 item 1: this resolves the reference's asymmetry,
// where node_count was only ever flushed at creation).
func (s *Store[K, V]) AllocateSlot() uint64 {
	idx := s.pg.Allocate()
	s.nodeCount = s.pg.SlotCount()
	if err := s.writeHeader(); err != nil {
		// AllocateSlot has no error return in the reference shape (node_count++
		// is a pure in-memory bump there), so a header write failure here is
		// discarded and the on-disk node_count stays at its previous value.
		_ = err
	}
	return idx
}

func (s *Store[K, V]) writeHeader() error {
	var buf [headerSize]byte
	binary.LittleEndian.PutUint64(buf[0:W], s.nodeCount)
	binary.LittleEndian.PutUint64(buf[W:2*W], s.rootPos)
	return s.pg.WriteHeader(buf[:])
}

func (s *Store[K, V]) readHeader() error {
	var buf [headerSize]byte
	if err := s.pg.ReadHeader(buf[:]); err != nil {
		return err
	}
	s.nodeCount = binary.LittleEndian.Uint64(buf[0:W])
	s.rootPos = binary.LittleEndian.Uint64(buf[W : 2*W])
	return nil
}

// Close flushes and closes both files.
func (s *Store[K, V]) Close() error {
	if err := s.dataFile.Close(); err != nil {
		return fmt.Errorf("btreedisk: close data file: %w", err)
	}
	return s.pg.Close()
}

// ─── Node (de)serialization ─────────────────────────────────────────────────

// WriteNode serializes n to its slot, appending each live (key, value) pair
// to the data file and recording the resulting offsets.
func (s *Store[K, V]) WriteNode(n *Node[K, V]) error {
	l := s.limits
	if n.Size > l.MaxKeys+1 {
		return fmt.Errorf("btreedisk: write node %d: size %d exceeds MAX_KEYS+1: %w", n.SelfPos, n.Size, ErrCorrupt)
	}

	buf := make([]byte, l.SlotSize())
	binary.LittleEndian.PutUint64(buf[0:W], uint64(n.Size))
	if n.IsLeaf {
		buf[W] = 1
	}
	binary.LittleEndian.PutUint64(buf[W+1:2*W+1], n.SelfPos)

	childOff := 2*W + 1
	for i := 0; i < l.MaxKeys+2; i++ {
		var c uint64
		if !n.IsLeaf && i < len(n.Children) {
			c = n.Children[i]
		}
		binary.LittleEndian.PutUint64(buf[childOff+i*W:childOff+(i+1)*W], c)
	}

	payOff := childOff + (l.MaxKeys+2)*W
	for i := 0; i < l.MaxKeys+1; i++ {
		var off uint64
		if i < n.Size {
			o, err := s.appendPayload(n.Keys[i], n.Values[i])
			if err != nil {
				return err
			}
			off = uint64(o)
		}
		binary.LittleEndian.PutUint64(buf[payOff+i*W:payOff+(i+1)*W], off)
	}

	return s.pg.WriteSlot(n.SelfPos, buf)
}

// ReadNode deserializes the node at pos.
func (s *Store[K, V]) ReadNode(pos uint64) (*Node[K, V], error) {
	l := s.limits
	buf, err := s.pg.ReadSlot(pos)
	if err != nil {
		return nil, err
	}

	size := int(binary.LittleEndian.Uint64(buf[0:W]))
	isLeaf := buf[W] != 0
	selfPos := binary.LittleEndian.Uint64(buf[W+1 : 2*W+1])

	if size > l.MaxKeys {
		return nil, fmt.Errorf("btreedisk: read node %d: size %d exceeds MAX_KEYS: %w", pos, size, ErrCorrupt)
	}
	if selfPos != pos {
		return nil, fmt.Errorf("btreedisk: read node %d: self_pos mismatch (got %d): %w", pos, selfPos, ErrCorrupt)
	}

	childOff := 2*W + 1
	var children []uint64
	if !isLeaf {
		children = make([]uint64, size+1)
		for i := 0; i <= size; i++ {
			children[i] = binary.LittleEndian.Uint64(buf[childOff+i*W : childOff+(i+1)*W])
		}
	}

	payOff := childOff + (l.MaxKeys+2)*W
	keys := make([]K, size)
	values := make([]V, size)
	for i := 0; i < size; i++ {
		off := binary.LittleEndian.Uint64(buf[payOff+i*W : payOff+(i+1)*W])
		k, v, err := s.readPayload(int64(off))
		if err != nil {
			return nil, err
		}
		keys[i] = k
		values[i] = v
	}

	return &Node[K, V]{
		Size:     size,
		IsLeaf:   isLeaf,
		SelfPos:  selfPos,
		Keys:     keys,
		Values:   values,
		Children: children,
	}, nil
}

// ─── Data file ──────────────────────────────────────────────────────────────

// appendPayload serializes (k, v) at the current end of the data file and
// returns the offset it was written at. Old offsets referencing stale
// payloads are never reused or reclaimed.
func (s *Store[K, V]) appendPayload(k K, v V) (int64, error) {
	offset := s.dataSize
	if _, err := s.dataFile.Seek(offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("btreedisk: seek data file: %w", err)
	}
	if err := s.keyCodec.Write(s.dataFile, k); err != nil {
		return 0, fmt.Errorf("btreedisk: write key payload: %w", err)
	}
	if err := s.valCodec.Write(s.dataFile, v); err != nil {
		return 0, fmt.Errorf("btreedisk: write value payload: %w", err)
	}
	if err := s.dataFile.Sync(); err != nil {
		return 0, fmt.Errorf("btreedisk: sync data file: %w", err)
	}
	s.dataSize += int64(s.keyCodec.Size(k) + s.valCodec.Size(v))
	return offset, nil
}

func (s *Store[K, V]) readPayload(offset int64) (K, V, error) {
	var zeroK K
	var zeroV V
	if _, err := s.dataFile.Seek(offset, io.SeekStart); err != nil {
		return zeroK, zeroV, fmt.Errorf("btreedisk: seek data file: %w", err)
	}
	k, err := s.keyCodec.Read(s.dataFile)
	if err != nil {
		return zeroK, zeroV, fmt.Errorf("btreedisk: read key payload at %d: %w", offset, err)
	}
	v, err := s.valCodec.Read(s.dataFile)
	if err != nil {
		return zeroK, zeroV, fmt.Errorf("btreedisk: read value payload at %d: %w", offset, err)
	}
	return k, v, nil
}
