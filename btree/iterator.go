package btree

import "btreedisk/node"

// Iterator is a forward-only, in-order cursor over an on-disk tree. Its
// state is a stack of (node position, index) frames; the top frame's index
// identifies the current key within the current node. Iterators read
// through to the owning Tree on every Key/Value/Next call and are
// invalidated by any mutation made to the tree after they were obtained —
// reusing one afterward has undefined semantics, matching the reference.
type Iterator[K, V any] struct {
	tree  *Tree[K, V]
	stack []Frame
	end   []Frame // nil means "run to natural exhaustion"
	first bool
	err   error
}

// Begin returns an iterator positioned at the smallest key in the tree.
func (t *Tree[K, V]) Begin() (*Iterator[K, V], error) {
	pos, ok := t.store.RootPos()
	if !ok {
		return t.End(), nil
	}

	var stack []Frame
	for {
		n, err := t.store.ReadNode(pos)
		if err != nil {
			return nil, err
		}
		stack = append(stack, Frame{pos, 0})
		if n.IsLeaf {
			break
		}
		pos = n.Children[0]
	}

	stack, err := t.normalizePath(stack)
	if err != nil {
		return nil, err
	}
	return &Iterator[K, V]{tree: t, stack: stack, first: true}, nil
}

// End returns the past-the-end iterator.
func (t *Tree[K, V]) End() *Iterator[K, V] {
	return &Iterator[K, V]{tree: t, first: true}
}

// Range returns an iterator visiting exactly the keys in the requested
// interval, in ascending order, honoring the inclusivity flags at each
// bound (§4.8).
func (t *Tree[K, V]) Range(lower, upper K, includeLower, includeUpper bool) (*Iterator[K, V], error) {
	loStack, err := t.boundary(lower, includeLower, false)
	if err != nil {
		return nil, err
	}
	hiStack, err := t.boundary(upper, includeUpper, true)
	if err != nil {
		return nil, err
	}
	return &Iterator[K, V]{tree: t, stack: loStack, end: hiStack, first: true}, nil
}

// boundary runs find_path for key and returns the normalized stack for the
// lower or upper cursor, advancing past an exact match when the flag
// demands it: a lower bound excludes key when !include, an upper bound
// (which denotes a past-the-end position) excludes key when include.
func (t *Tree[K, V]) boundary(key K, include bool, isUpper bool) ([]Frame, error) {
	path, _, found, err := t.findPath(key)
	if err != nil {
		return nil, err
	}
	stack, err := t.normalizePath(path)
	if err != nil {
		return nil, err
	}
	advance := found && (isUpper == include)
	if advance {
		stack, err = t.advance(stack)
		if err != nil {
			return nil, err
		}
	}
	return stack, nil
}

// normalizePath fixes up a raw find_path result so its top frame is always
// a valid dereferenceable position (or nil, meaning past-the-end). The only
// invalid shape find_path can produce is a terminal leaf whose index equals
// its size (key belongs past the leaf's last entry).
func (t *Tree[K, V]) normalizePath(path []Frame) ([]Frame, error) {
	if len(path) == 0 {
		return nil, nil
	}
	last := path[len(path)-1]
	n, err := t.store.ReadNode(last.Pos)
	if err != nil {
		return nil, err
	}
	if last.Idx < n.Size {
		return path, nil
	}
	return t.popAndClimb(path)
}

// popAndClimb drops the exhausted terminal frame and walks back up the
// stack until it finds a frame with a still-unvisited key, descending into
// the next child's leftmost leaf if one is found along the way. Returns nil
// if the stack is exhausted entirely (past-the-end).
func (t *Tree[K, V]) popAndClimb(stack []Frame) ([]Frame, error) {
	stack = stack[:len(stack)-1]
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		p, err := t.store.ReadNode(top.Pos)
		if err != nil {
			return nil, err
		}
		if top.Idx < p.Size {
			return stack, nil
		}
		if top.Idx+1 < len(p.Children) {
			top.Idx++
			pos := p.Children[top.Idx]
			for {
				n, err := t.store.ReadNode(pos)
				if err != nil {
					return nil, err
				}
				stack = append(stack, Frame{pos, 0})
				if n.IsLeaf {
					break
				}
				pos = n.Children[0]
			}
			return stack, nil
		}
		stack = stack[:len(stack)-1]
	}
	return nil, nil
}

// advance implements §4.9 increment.
func (t *Tree[K, V]) advance(stack []Frame) ([]Frame, error) {
	top := stack[len(stack)-1]
	n, err := t.store.ReadNode(top.Pos)
	if err != nil {
		return nil, err
	}

	if !n.IsLeaf {
		newIdx := top.Idx + 1
		stack[len(stack)-1].Idx = newIdx
		pos := n.Children[newIdx]
		for {
			cn, err := t.store.ReadNode(pos)
			if err != nil {
				return nil, err
			}
			stack = append(stack, Frame{pos, 0})
			if cn.IsLeaf {
				break
			}
			pos = cn.Children[0]
		}
		return stack, nil
	}

	if top.Idx+1 < n.Size {
		stack[len(stack)-1].Idx++
		return stack, nil
	}
	return t.popAndClimb(stack)
}

func framesEqual(a, b []Frame) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Next advances the iterator and reports whether a valid element is now
// positioned. The first call after Begin/Range positions on the first
// element without advancing past it.
func (it *Iterator[K, V]) Next() bool {
	if it.err != nil {
		return false
	}
	if it.first {
		it.first = false
	} else {
		if len(it.stack) == 0 {
			return false
		}
		stack, err := it.tree.advance(it.stack)
		if err != nil {
			it.err = err
			return false
		}
		it.stack = stack
	}
	if len(it.stack) == 0 {
		return false
	}
	if it.end != nil && framesEqual(it.stack, it.end) {
		it.stack = nil
		return false
	}
	return true
}

// Key returns the key at the iterator's current position. Its result is
// undefined once Next has returned false.
func (it *Iterator[K, V]) Key() K {
	var zero K
	n, idx := it.currentNode()
	if n == nil {
		return zero
	}
	return n.Keys[idx]
}

// Value returns the value at the iterator's current position.
func (it *Iterator[K, V]) Value() V {
	var zero V
	n, idx := it.currentNode()
	if n == nil {
		return zero
	}
	return n.Values[idx]
}

func (it *Iterator[K, V]) currentNode() (*node.Node[K, V], int) {
	if len(it.stack) == 0 {
		return nil, 0
	}
	top := it.stack[len(it.stack)-1]
	n, err := it.tree.store.ReadNode(top.Pos)
	if err != nil {
		it.err = err
		return nil, 0
	}
	return n, top.Idx
}

// Error reports the first error encountered while walking the tree, if any.
func (it *Iterator[K, V]) Error() error { return it.err }

// Close releases the iterator. The on-disk store has no per-cursor
// resources to release; Close exists to match the corpus's Iterator shape.
func (it *Iterator[K, V]) Close() error { return nil }

// Equal reports whether it and other refer to the same tree position,
// comparing frame stacks exactly as §4.9's equality rule specifies.
func (it *Iterator[K, V]) Equal(other *Iterator[K, V]) bool {
	return framesEqual(it.stack, other.stack)
}
