package btree

import (
	"fmt"

	"btreedisk/node"
)

// Erase removes key. Returns false without modification if key is absent.
func (t *Tree[K, V]) Erase(key K) (bool, error) {
	path, idx, found, err := t.findPath(key)
	if err != nil || !found {
		return false, err
	}

	frame := path[len(path)-1]
	n, err := t.store.ReadNode(frame.Pos)
	if err != nil {
		return false, err
	}

	if n.IsLeaf {
		return true, t.eraseFromLeaf(path, n, idx)
	}
	return true, t.eraseFromInternal(path, n, idx)
}

// eraseFromLeaf implements §4.6 case A.
func (t *Tree[K, V]) eraseFromLeaf(path []Frame, n *node.Node[K, V], idx int) error {
	n.Keys = removeAt(n.Keys, idx)
	n.Values = removeAt(n.Values, idx)
	n.Size--
	if err := t.store.WriteNode(n); err != nil {
		return err
	}

	ancestors := path[:len(path)-1]
	if len(ancestors) == 0 {
		if n.Size == 0 {
			return t.store.ClearRoot()
		}
		return nil
	}
	if n.Size < t.limits.MinKeys {
		return t.rebalance(ancestors, n)
	}
	return nil
}

// eraseFromInternal implements §4.6 case B: predecessor replacement (B.1),
// successor replacement (B.2), or a three-way merge through N (B.3).
func (t *Tree[K, V]) eraseFromInternal(path []Frame, n *node.Node[K, V], idx int) error {
	leftPos := n.Children[idx]
	rightPos := n.Children[idx+1]
	left, err := t.store.ReadNode(leftPos)
	if err != nil {
		return err
	}
	right, err := t.store.ReadNode(rightPos)
	if err != nil {
		return err
	}

	if left.Size > t.limits.MinKeys {
		pred, spine, err := t.walkSpine(leftPos, true)
		if err != nil {
			return err
		}
		n.Keys[idx] = pred.Keys[pred.Size-1]
		n.Values[idx] = pred.Values[pred.Size-1]
		if err := t.store.WriteNode(n); err != nil {
			return err
		}
		pred.Keys = removeAt(pred.Keys, pred.Size-1)
		pred.Values = removeAt(pred.Values, pred.Size-1)
		pred.Size--
		if err := t.store.WriteNode(pred); err != nil {
			return err
		}
		if pred.Size < t.limits.MinKeys {
			ancestors := append(append([]Frame(nil), path...), spine...)
			return t.rebalance(ancestors, pred)
		}
		return nil
	}

	if right.Size > t.limits.MinKeys {
		succ, spine, err := t.walkSpine(rightPos, false)
		if err != nil {
			return err
		}
		n.Keys[idx] = succ.Keys[0]
		n.Values[idx] = succ.Values[0]
		if err := t.store.WriteNode(n); err != nil {
			return err
		}
		succ.Keys = removeAt(succ.Keys, 0)
		succ.Values = removeAt(succ.Values, 0)
		succ.Size--
		if err := t.store.WriteNode(succ); err != nil {
			return err
		}
		if succ.Size < t.limits.MinKeys {
			ancestors := append(append([]Frame(nil), path...), spine...)
			return t.rebalance(ancestors, succ)
		}
		return nil
	}

	// B.3: merge left and right through N. The separator key at n.Keys[idx]
	// is dropped rather than pulled down into left — preserved exactly as
	// documented in DESIGN.md (this is a pinned, not fixed, reference quirk).
	left.Keys = append(left.Keys, right.Keys...)
	left.Values = append(left.Values, right.Values...)
	if !left.IsLeaf {
		left.Children = append(left.Children, right.Children...)
	}
	left.Size = len(left.Keys)
	if err := t.store.WriteNode(left); err != nil {
		return err
	}

	n.Keys = removeAt(n.Keys, idx)
	n.Values = removeAt(n.Values, idx)
	n.Children = removeAt(n.Children, idx+1)
	n.Size--
	if err := t.store.WriteNode(n); err != nil {
		return err
	}

	ancestors := path[:len(path)-1]
	if len(ancestors) == 0 {
		if n.Size == 0 {
			return t.store.SetRootPos(left.SelfPos)
		}
		return nil
	}
	if n.Size < t.limits.MinKeys {
		return t.rebalance(ancestors, n)
	}
	return nil
}

// walkSpine descends from startPos along the rightmost (or leftmost) spine
// to a leaf, returning that leaf and the frames for every internal node
// traversed along the way (not including the leaf itself).
func (t *Tree[K, V]) walkSpine(startPos uint64, rightmost bool) (*node.Node[K, V], []Frame, error) {
	pos := startPos
	var spine []Frame
	for {
		n, err := t.store.ReadNode(pos)
		if err != nil {
			return nil, nil, err
		}
		if n.IsLeaf {
			return n, spine, nil
		}
		childIdx := 0
		if rightmost {
			childIdx = n.Size
		}
		spine = append(spine, Frame{pos, childIdx})
		pos = n.Children[childIdx]
	}
}

// rebalance implements §4.7. U is the node that has just underflowed;
// ancestors is the root-to-parent path (the last frame is U's parent).
func (t *Tree[K, V]) rebalance(ancestors []Frame, u *node.Node[K, V]) error {
	if len(ancestors) == 0 || u.Size >= t.limits.MinKeys {
		return nil
	}

	parentFrame := ancestors[len(ancestors)-1]
	ancestors = ancestors[:len(ancestors)-1]
	p, err := t.store.ReadNode(parentFrame.Pos)
	if err != nil {
		return err
	}

	k := -1
	for i, c := range p.Children {
		if c == u.SelfPos {
			k = i
			break
		}
	}
	if k == -1 {
		return fmt.Errorf("btree: rebalance: node %d not found among parent %d children: %w", u.SelfPos, p.SelfPos, node.ErrCorrupt)
	}

	// Borrow left.
	if k > 0 {
		left, err := t.store.ReadNode(p.Children[k-1])
		if err != nil {
			return err
		}
		if left.Size > t.limits.MinKeys {
			return t.borrowLeft(p, k, left, u)
		}
	}

	// Borrow right.
	if k < p.Size {
		right, err := t.store.ReadNode(p.Children[k+1])
		if err != nil {
			return err
		}
		if right.Size > t.limits.MinKeys {
			return t.borrowRight(p, k, u, right)
		}
	}

	// Merge left.
	if k > 0 {
		left, err := t.store.ReadNode(p.Children[k-1])
		if err != nil {
			return err
		}
		return t.mergeSiblings(ancestors, p, k-1, left, u)
	}

	// Merge right. Guarded historically by k <= p.Size, where k == p.Size
	// would make p.Children[k+1] out of range; see DESIGN.md §9 item 3 — the
	// branch above always leaves k == 0 here, so the stale guard is never
	// actually exercised, but ErrCorrupt is returned instead of panicking
	// if that ever stops being true.
	if k+1 >= len(p.Children) {
		return fmt.Errorf("btree: rebalance: node %d has no right sibling at k=%d: %w", p.SelfPos, k, node.ErrCorrupt)
	}
	right, err := t.store.ReadNode(p.Children[k+1])
	if err != nil {
		return err
	}
	return t.mergeSiblings(ancestors, p, k, u, right)
}

func (t *Tree[K, V]) borrowLeft(p *node.Node[K, V], k int, left, u *node.Node[K, V]) error {
	u.Keys = insertAt(u.Keys, 0, p.Keys[k-1])
	u.Values = insertAt(u.Values, 0, p.Values[k-1])
	p.Keys[k-1] = left.Keys[left.Size-1]
	p.Values[k-1] = left.Values[left.Size-1]
	if !u.IsLeaf {
		u.Children = insertAt(u.Children, 0, left.Children[len(left.Children)-1])
		left.Children = left.Children[:len(left.Children)-1]
	}
	left.Keys = left.Keys[:left.Size-1]
	left.Values = left.Values[:left.Size-1]
	left.Size--
	u.Size++

	if err := t.store.WriteNode(left); err != nil {
		return err
	}
	if err := t.store.WriteNode(u); err != nil {
		return err
	}
	return t.store.WriteNode(p)
}

func (t *Tree[K, V]) borrowRight(p *node.Node[K, V], k int, u, right *node.Node[K, V]) error {
	u.Keys = append(u.Keys, p.Keys[k])
	u.Values = append(u.Values, p.Values[k])
	p.Keys[k] = right.Keys[0]
	p.Values[k] = right.Values[0]
	if !u.IsLeaf {
		u.Children = append(u.Children, right.Children[0])
		right.Children = removeAt(right.Children, 0)
	}
	right.Keys = removeAt(right.Keys, 0)
	right.Values = removeAt(right.Values, 0)
	right.Size--
	u.Size++

	if err := t.store.WriteNode(right); err != nil {
		return err
	}
	if err := t.store.WriteNode(u); err != nil {
		return err
	}
	return t.store.WriteNode(p)
}

// mergeSiblings fuses left and right (children sepIdx and sepIdx+1 of p,
// with p.Keys[sepIdx] as the separator) into left, then removes the
// separator from p and recurses if p itself now underflows.
func (t *Tree[K, V]) mergeSiblings(ancestors []Frame, p *node.Node[K, V], sepIdx int, left, right *node.Node[K, V]) error {
	left.Keys = append(left.Keys, p.Keys[sepIdx])
	left.Values = append(left.Values, p.Values[sepIdx])
	left.Keys = append(left.Keys, right.Keys...)
	left.Values = append(left.Values, right.Values...)
	if !left.IsLeaf {
		left.Children = append(left.Children, right.Children...)
	}
	left.Size = len(left.Keys)
	if err := t.store.WriteNode(left); err != nil {
		return err
	}

	p.Keys = removeAt(p.Keys, sepIdx)
	p.Values = removeAt(p.Values, sepIdx)
	p.Children = removeAt(p.Children, sepIdx+1)
	p.Size--
	if err := t.store.WriteNode(p); err != nil {
		return err
	}

	if len(ancestors) == 0 {
		if p.Size == 0 {
			return t.store.SetRootPos(left.SelfPos)
		}
		return nil
	}
	if p.Size < t.limits.MinKeys {
		return t.rebalance(ancestors, p)
	}
	return nil
}
