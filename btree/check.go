package btree

import (
	"fmt"

	"btreedisk/node"
)

// CheckTree walks the tree validating every invariant in §3/§8: node size
// bounds, strictly increasing keys, separator boundaries, uniform leaf
// depth, and a correct children/size relationship on internal nodes. A
// precondition of this checker (§9 item 4) is that keys are unique: child
// boundaries are compared with strict-less only, no equality allowance.
func (t *Tree[K, V]) CheckTree() error {
	pos, ok := t.store.RootPos()
	if !ok {
		return nil
	}
	root, err := t.store.ReadNode(pos)
	if err != nil {
		return err
	}
	if root.Size > t.limits.MaxKeys {
		return fmt.Errorf("btree: root %d size %d exceeds MAX_KEYS %d: %w", root.SelfPos, root.Size, t.limits.MaxKeys, node.ErrCorrupt)
	}
	_, err = t.checkNode(root, true, nil, nil, 0)
	return err
}

// checkNode validates n and its subtree, returning the depth at which its
// leaves lie so the caller can compare that depth against sibling subtrees.
func (t *Tree[K, V]) checkNode(n *node.Node[K, V], isRoot bool, lowerBound, upperBound *K, depth int) (int, error) {
	if !isRoot && (n.Size < t.limits.MinKeys || n.Size > t.limits.MaxKeys) {
		return 0, fmt.Errorf("btree: node %d size %d outside [%d,%d]: %w", n.SelfPos, n.Size, t.limits.MinKeys, t.limits.MaxKeys, node.ErrCorrupt)
	}
	for i := 1; i < n.Size; i++ {
		if !t.less(n.Keys[i-1], n.Keys[i]) {
			return 0, fmt.Errorf("btree: node %d keys not strictly increasing at index %d: %w", n.SelfPos, i, node.ErrCorrupt)
		}
	}
	if lowerBound != nil && n.Size > 0 && !t.less(*lowerBound, n.Keys[0]) {
		return 0, fmt.Errorf("btree: node %d violates lower separator bound: %w", n.SelfPos, node.ErrCorrupt)
	}
	if upperBound != nil && n.Size > 0 && !t.less(n.Keys[n.Size-1], *upperBound) {
		return 0, fmt.Errorf("btree: node %d violates upper separator bound: %w", n.SelfPos, node.ErrCorrupt)
	}

	if n.IsLeaf {
		return depth, nil
	}
	if len(n.Children) != n.Size+1 {
		return 0, fmt.Errorf("btree: node %d has %d children for size %d: %w", n.SelfPos, len(n.Children), n.Size, node.ErrCorrupt)
	}

	seen := make(map[uint64]bool, len(n.Children))
	leafDepth := -1
	for i, childPos := range n.Children {
		if seen[childPos] {
			return 0, fmt.Errorf("btree: node %d has duplicate child %d: %w", n.SelfPos, childPos, node.ErrCorrupt)
		}
		seen[childPos] = true

		child, err := t.store.ReadNode(childPos)
		if err != nil {
			return 0, err
		}

		var lb, ub *K
		if i > 0 {
			lb = &n.Keys[i-1]
		}
		if i < n.Size {
			ub = &n.Keys[i]
		}

		d, err := t.checkNode(child, false, lb, ub, depth+1)
		if err != nil {
			return 0, err
		}
		if leafDepth == -1 {
			leafDepth = d
		} else if leafDepth != d {
			return 0, fmt.Errorf("btree: leaves at inconsistent depth (%d vs %d) under node %d: %w", leafDepth, d, n.SelfPos, node.ErrCorrupt)
		}
	}
	return leafDepth, nil
}
