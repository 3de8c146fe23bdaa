// Package btree implements the classical on-disk B-tree: search, insert with
// top-down split cascade, erase with predecessor/successor replacement and
// rebalancing, and a forward in-order iterator, all operating through the
// node.Store paged node engine.
package btree

import (
	"fmt"
	"log"

	"btreedisk/codec"
	"btreedisk/node"
)

// Frame is one step of a root-to-node path: the node visited and the index
// within it that was either the match (if the key was found there) or the
// child chosen for further descent.
type Frame struct {
	Pos uint64
	Idx int
}

// Options configures a Tree at construction time.
type Options struct {
	// CacheSlots bounds the tree file's in-memory slot cache. Zero uses a
	// small default.
	CacheSlots int
	// Logger is kept on the Tree; nothing in this package writes to it. Nil
	// installs a logger that discards its output.
	// The engine itself stays silent on the hot path (§5): no per-operation
	// logging, matching the reference's synchronous, ambient-free design.
	Logger *log.Logger
}

// Tree is a disk-resident B-tree of minimum degree T, parameterized over key
// and value types via Codec and Less.
type Tree[K, V any] struct {
	store  *node.Store[K, V]
	less   codec.Less[K]
	limits node.Limits
	logger *log.Logger
}

// Open opens (or creates) a tree rooted at treePath/dataPath with minimum
// degree t. Mixed existence of the two files is a construction error.
func Open[K, V any](treePath, dataPath string, t int, keyCodec codec.Codec[K], valCodec codec.Codec[V], less codec.Less[K], opts Options) (*Tree[K, V], error) {
	cacheSlots := opts.CacheSlots
	if cacheSlots <= 0 {
		cacheSlots = 256
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(devNull{}, "btree: ", 0)
	}

	store, err := node.Open(treePath, dataPath, t, keyCodec, valCodec, cacheSlots)
	if err != nil {
		return nil, fmt.Errorf("btree: open: %w", err)
	}

	return &Tree[K, V]{
		store:  store,
		less:   less,
		limits: store.Limits(),
		logger: logger,
	}, nil
}

type devNull struct{}

func (devNull) Write(p []byte) (int, error) { return len(p), nil }

// Close flushes and closes the underlying files.
func (t *Tree[K, V]) Close() error {
	return t.store.Close()
}

// Limits returns the tree's fanout constants (t, MinKeys, MaxKeys, MaxChildren).
func (t *Tree[K, V]) Limits() node.Limits {
	return t.limits
}

func (t *Tree[K, V]) equal(a, b K) bool {
	return !t.less(a, b) && !t.less(b, a)
}

// ─── Search ─────────────────────────────────────────────────────────────────

// findIndex scans node n for the first key not strictly less than key.
// Found iff that key equals key under the ordering predicate.
func (t *Tree[K, V]) findIndex(n *node.Node[K, V], key K) int {
	for i := 0; i < n.Size; i++ {
		if !t.less(n.Keys[i], key) {
			return i
		}
	}
	return n.Size
}

// findPath walks from the root to either the node where key is found or the
// leaf where it belongs, returning the full visited path (last frame is the
// terminal node), the index within the terminal node, and a found flag. A
// nil path with found=false means the tree is empty.
func (t *Tree[K, V]) findPath(key K) (path []Frame, idx int, found bool, err error) {
	pos, ok := t.store.RootPos()
	if !ok {
		return nil, 0, false, nil
	}
	for {
		n, err := t.store.ReadNode(pos)
		if err != nil {
			return nil, 0, false, err
		}
		i := t.findIndex(n, key)
		if i < n.Size && t.equal(n.Keys[i], key) {
			path = append(path, Frame{pos, i})
			return path, i, true, nil
		}
		if n.IsLeaf {
			path = append(path, Frame{pos, i})
			return path, i, false, nil
		}
		path = append(path, Frame{pos, i})
		pos = n.Children[i]
	}
}

// Get returns the value stored for key, if present.
func (t *Tree[K, V]) Get(key K) (V, bool, error) {
	var zero V
	path, idx, found, err := t.findPath(key)
	if err != nil || !found {
		return zero, false, err
	}
	frame := path[len(path)-1]
	n, err := t.store.ReadNode(frame.Pos)
	if err != nil {
		return zero, false, err
	}
	return n.Values[idx], true, nil
}

// ─── Insert ─────────────────────────────────────────────────────────────────

// Insert adds (key, val). Returns false without modification if key is
// already present.
func (t *Tree[K, V]) Insert(key K, val V) (bool, error) {
	if _, ok := t.store.RootPos(); !ok {
		pos := t.store.AllocateSlot()
		n := &node.Node[K, V]{Size: 1, IsLeaf: true, SelfPos: pos, Keys: []K{key}, Values: []V{val}}
		if err := t.store.WriteNode(n); err != nil {
			return false, err
		}
		if err := t.store.SetRootPos(pos); err != nil {
			return false, err
		}
		return true, nil
	}

	path, idx, found, err := t.findPath(key)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}

	leafFrame := path[len(path)-1]
	leaf, err := t.store.ReadNode(leafFrame.Pos)
	if err != nil {
		return false, err
	}
	leaf.Keys = insertAt(leaf.Keys, idx, key)
	leaf.Values = insertAt(leaf.Values, idx, val)
	leaf.Size++
	if err := t.store.WriteNode(leaf); err != nil {
		return false, err
	}

	if leaf.Size > t.limits.MaxKeys {
		if err := t.splitCascade(path[:len(path)-1], leaf); err != nil {
			return false, err
		}
	}
	return true, nil
}

// splitCascade splits an overflowing node and, if needed, recurses up
// ancestorPath (the path from the root down to but not including the
// overflowing node's own frame).
func (t *Tree[K, V]) splitCascade(ancestorPath []Frame, overflowing *node.Node[K, V]) error {
	for {
		mid := overflowing.Size / 2

		rightPos := t.store.AllocateSlot()
		right := &node.Node[K, V]{
			IsLeaf:  overflowing.IsLeaf,
			SelfPos: rightPos,
			Keys:    append([]K(nil), overflowing.Keys[mid+1:]...),
			Values:  append([]V(nil), overflowing.Values[mid+1:]...),
		}
		right.Size = len(right.Keys)

		medianKey := overflowing.Keys[mid]
		medianVal := overflowing.Values[mid]

		if !overflowing.IsLeaf {
			right.Children = append([]uint64(nil), overflowing.Children[mid+1:]...)
			overflowing.Children = overflowing.Children[:mid+1]
		}
		overflowing.Keys = overflowing.Keys[:mid]
		overflowing.Values = overflowing.Values[:mid]
		overflowing.Size = mid

		if err := t.store.WriteNode(overflowing); err != nil {
			return err
		}
		if err := t.store.WriteNode(right); err != nil {
			return err
		}

		if len(ancestorPath) == 0 {
			newRootPos := t.store.AllocateSlot()
			newRoot := &node.Node[K, V]{
				Size:     1,
				IsLeaf:   false,
				SelfPos:  newRootPos,
				Keys:     []K{medianKey},
				Values:   []V{medianVal},
				Children: []uint64{overflowing.SelfPos, right.SelfPos},
			}
			if err := t.store.WriteNode(newRoot); err != nil {
				return err
			}
			return t.store.SetRootPos(newRootPos)
		}

		parentFrame := ancestorPath[len(ancestorPath)-1]
		ancestorPath = ancestorPath[:len(ancestorPath)-1]
		parent, err := t.store.ReadNode(parentFrame.Pos)
		if err != nil {
			return err
		}
		parent.Keys = insertAt(parent.Keys, parentFrame.Idx, medianKey)
		parent.Values = insertAt(parent.Values, parentFrame.Idx, medianVal)
		parent.Children = insertAt(parent.Children, parentFrame.Idx+1, right.SelfPos)
		parent.Size++
		if err := t.store.WriteNode(parent); err != nil {
			return err
		}

		if parent.Size <= t.limits.MaxKeys {
			return nil
		}
		overflowing = parent
	}
}

// ─── Update ─────────────────────────────────────────────────────────────────

// Update replaces the value stored for key. Returns false if key is absent.
func (t *Tree[K, V]) Update(key K, val V) (bool, error) {
	path, idx, found, err := t.findPath(key)
	if err != nil || !found {
		return false, err
	}
	frame := path[len(path)-1]
	n, err := t.store.ReadNode(frame.Pos)
	if err != nil {
		return false, err
	}
	n.Values[idx] = val
	return true, t.store.WriteNode(n)
}

// ─── Slice helpers ──────────────────────────────────────────────────────────

func insertAt[T any](s []T, i int, v T) []T {
	s = append(s, v)
	copy(s[i+1:], s[i:len(s)-1])
	s[i] = v
	return s
}

func removeAt[T any](s []T, i int) []T {
	copy(s[i:], s[i+1:])
	return s[:len(s)-1]
}
