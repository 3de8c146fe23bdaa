package btree

import (
	"math/rand"
	"path/filepath"
	"testing"

	"btreedisk/codec"
)

func lessInt64(a, b int64) bool { return a < b }

func openTree(t *testing.T, degree int) *Tree[int64, string] {
	t.Helper()
	dir := t.TempDir()
	tr, err := Open[int64, string](
		filepath.Join(dir, "t.tree"),
		filepath.Join(dir, "t.data"),
		degree,
		codec.Int64{}, codec.String{}, lessInt64,
		Options{},
	)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return tr
}

func collect(t *testing.T, tr *Tree[int64, string]) []int64 {
	t.Helper()
	it, err := tr.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	var out []int64
	for it.Next() {
		out = append(out, it.Key())
	}
	if err := it.Error(); err != nil {
		t.Fatalf("iteration error: %v", err)
	}
	return out
}

func assertAscending(t *testing.T, keys []int64) {
	t.Helper()
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("keys not strictly ascending at %d: %v", i, keys)
		}
	}
}

// Scenario 1: small insert sequence, iteration order, root grows internal.
func TestScenarioSmallInsertSequence(t *testing.T) {
	tr := openTree(t, 2)
	defer tr.Close()

	inserts := []struct {
		k int64
		v string
	}{
		{3, "c"}, {1, "a"}, {2, "b"}, {5, "e"}, {4, "d"},
	}
	for _, kv := range inserts {
		ok, err := tr.Insert(kv.k, kv.v)
		if err != nil {
			t.Fatalf("insert %d: %v", kv.k, err)
		}
		if !ok {
			t.Fatalf("insert %d: expected true", kv.k)
		}
	}

	got := collect(t, tr)
	want := []int64{1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("iteration = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("iteration = %v, want %v", got, want)
		}
	}

	if err := tr.CheckTree(); err != nil {
		t.Fatalf("check tree: %v", err)
	}
}

// Scenario 2: fill with keys 1..10 at t=2, forcing at least two splits.
func TestScenarioFillForcesSplits(t *testing.T) {
	tr := openTree(t, 2)
	defer tr.Close()

	for k := int64(1); k <= 10; k++ {
		ok, err := tr.Insert(k, "v")
		if err != nil {
			t.Fatalf("insert %d: %v", k, err)
		}
		if !ok {
			t.Fatalf("insert %d: expected true", k)
		}
	}

	for k := int64(1); k <= 10; k++ {
		v, ok, err := tr.Get(k)
		if err != nil {
			t.Fatalf("get %d: %v", k, err)
		}
		if !ok || v != "v" {
			t.Fatalf("get %d = (%q,%v), want (v,true)", k, v, ok)
		}
	}

	if err := tr.CheckTree(); err != nil {
		t.Fatalf("check tree: %v", err)
	}
	assertAscending(t, collect(t, tr))
}

// Scenario 3: delete cascade after scenario 2.
func TestScenarioDeleteCascade(t *testing.T) {
	tr := openTree(t, 2)
	defer tr.Close()

	for k := int64(1); k <= 10; k++ {
		if _, err := tr.Insert(k, "v"); err != nil {
			t.Fatalf("insert %d: %v", k, err)
		}
	}

	for _, k := range []int64{1, 2, 3} {
		ok, err := tr.Erase(k)
		if err != nil {
			t.Fatalf("erase %d: %v", k, err)
		}
		if !ok {
			t.Fatalf("erase %d: expected true", k)
		}
	}

	got := collect(t, tr)
	want := []int64{4, 5, 6, 7, 8, 9, 10}
	if len(got) != len(want) {
		t.Fatalf("iteration after cascade = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("iteration after cascade = %v, want %v", got, want)
		}
	}
	if err := tr.CheckTree(); err != nil {
		t.Fatalf("check tree after cascade: %v", err)
	}
}

// Scenario 6 (adapted): insert, close, reopen, verify persistence.
func TestReopenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	treePath := filepath.Join(dir, "t.tree")
	dataPath := filepath.Join(dir, "t.data")

	tr, err := Open[int64, string](treePath, dataPath, 3, codec.Int64{}, codec.String{}, lessInt64, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	rng := rand.New(rand.NewSource(42))
	inserted := make(map[int64]bool)
	for len(inserted) < 100 {
		k := rng.Int63n(10000)
		if inserted[k] {
			continue
		}
		inserted[k] = true
		if _, err := tr.Insert(k, "v"); err != nil {
			t.Fatalf("insert %d: %v", k, err)
		}
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	tr2, err := Open[int64, string](treePath, dataPath, 3, codec.Int64{}, codec.String{}, lessInt64, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer tr2.Close()

	got := collect(t, tr2)
	if len(got) != 100 {
		t.Fatalf("reopened iteration length = %d, want 100", len(got))
	}
	assertAscending(t, got)
	for _, k := range got {
		if !inserted[k] {
			t.Fatalf("reopened tree contains unexpected key %d", k)
		}
	}
	if err := tr2.CheckTree(); err != nil {
		t.Fatalf("check tree after reopen: %v", err)
	}
}

func TestInsertGetLaw(t *testing.T) {
	tr := openTree(t, 2)
	defer tr.Close()

	ok, err := tr.Insert(10, "ten")
	if err != nil || !ok {
		t.Fatalf("insert: ok=%v err=%v", ok, err)
	}
	v, found, err := tr.Get(10)
	if err != nil || !found || v != "ten" {
		t.Fatalf("get after insert = (%q,%v,%v)", v, found, err)
	}
}

func TestInsertIdempotence(t *testing.T) {
	tr := openTree(t, 2)
	defer tr.Close()

	if _, err := tr.Insert(10, "ten"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	ok, err := tr.Insert(10, "other")
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if ok {
		t.Fatalf("second insert of existing key returned true")
	}
	v, _, _ := tr.Get(10)
	if v != "ten" {
		t.Fatalf("value mutated by idempotent insert: got %q", v)
	}
}

func TestUpdateLaw(t *testing.T) {
	tr := openTree(t, 2)
	defer tr.Close()

	if _, err := tr.Insert(10, "ten"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	ok, err := tr.Update(10, "TEN")
	if err != nil || !ok {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}
	v, _, _ := tr.Get(10)
	if v != "TEN" {
		t.Fatalf("get after update = %q, want TEN", v)
	}

	ok, err = tr.Update(999, "x")
	if err != nil {
		t.Fatalf("update missing: %v", err)
	}
	if ok {
		t.Fatalf("update of missing key returned true")
	}
}

func TestEraseLaw(t *testing.T) {
	tr := openTree(t, 2)
	defer tr.Close()

	if _, err := tr.Insert(10, "ten"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	ok, err := tr.Erase(10)
	if err != nil || !ok {
		t.Fatalf("erase: ok=%v err=%v", ok, err)
	}
	_, found, _ := tr.Get(10)
	if found {
		t.Fatalf("key still present after erase")
	}
	ok, err = tr.Erase(10)
	if err != nil || ok {
		t.Fatalf("second erase: ok=%v err=%v, want false/nil", ok, err)
	}
}

func TestRangeClosure(t *testing.T) {
	tr := openTree(t, 2)
	defer tr.Close()

	for k := int64(0); k < 20; k += 2 { // even keys 0..18
		if _, err := tr.Insert(k, "v"); err != nil {
			t.Fatalf("insert %d: %v", k, err)
		}
	}

	cases := []struct {
		lo, hi         int64
		inclLo, inclHi bool
		want           []int64
	}{
		{4, 12, true, true, []int64{4, 6, 8, 10, 12}},
		{4, 12, false, true, []int64{6, 8, 10, 12}},
		{4, 12, true, false, []int64{4, 6, 8, 10}},
		{4, 12, false, false, []int64{6, 8, 10}},
		{5, 11, true, true, []int64{6, 8, 10}}, // bounds not present
		{100, 200, true, true, nil},
		{-10, 0, true, true, []int64{0}},
	}

	for _, c := range cases {
		it, err := tr.Range(c.lo, c.hi, c.inclLo, c.inclHi)
		if err != nil {
			t.Fatalf("range(%d,%d,%v,%v): %v", c.lo, c.hi, c.inclLo, c.inclHi, err)
		}
		var got []int64
		for it.Next() {
			got = append(got, it.Key())
		}
		if len(got) != len(c.want) {
			t.Fatalf("range(%d,%d,%v,%v) = %v, want %v", c.lo, c.hi, c.inclLo, c.inclHi, got, c.want)
		}
		for i := range c.want {
			if got[i] != c.want[i] {
				t.Fatalf("range(%d,%d,%v,%v) = %v, want %v", c.lo, c.hi, c.inclLo, c.inclHi, got, c.want)
			}
		}
	}
}

// TestEraseCaseB3MergeDropsSeparator pins the reference's three-way merge
// quirk (§9 item 2): the separator key at the parent is not pulled down
// into the merged node, so an internal erase that triggers B.3 produces a
// node whose key count is exactly left.Size + right.Size, not +1.
func TestEraseCaseB3MergeDropsSeparator(t *testing.T) {
	tr := openTree(t, 2) // t=2: MinKeys=1, MaxKeys=3
	defer tr.Close()

	// A 4th insert into a single leaf always overflows as 2/1 (mid = 4/2):
	// root key=3, children {1,2} and {4}. Erasing 1 first shrinks the left
	// child to exactly MinKeys=1, so both children sit at MinKeys when the
	// separator is erased next — forcing case B.3 rather than a borrow.
	for _, k := range []int64{1, 2, 3, 4} {
		if _, err := tr.Insert(k, "v"); err != nil {
			t.Fatalf("insert %d: %v", k, err)
		}
	}
	if ok, err := tr.Erase(1); err != nil || !ok {
		t.Fatalf("erase 1: ok=%v err=%v", ok, err)
	}

	rootPos, ok := tr.store.RootPos()
	if !ok {
		t.Fatalf("expected non-empty tree")
	}
	root, err := tr.store.ReadNode(rootPos)
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	if root.IsLeaf || root.Size != 1 {
		t.Fatalf("expected an internal root with exactly one key, got size=%d leaf=%v", root.Size, root.IsLeaf)
	}
	left, err := tr.store.ReadNode(root.Children[0])
	if err != nil {
		t.Fatalf("read left child: %v", err)
	}
	right, err := tr.store.ReadNode(root.Children[1])
	if err != nil {
		t.Fatalf("read right child: %v", err)
	}
	if left.Size != 1 || right.Size != 1 {
		t.Fatalf("expected both children at MinKeys=1, got left=%d right=%d", left.Size, right.Size)
	}

	sepKey := root.Keys[0]
	ok, err = tr.Erase(sepKey)
	if err != nil || !ok {
		t.Fatalf("erase separator: ok=%v err=%v", ok, err)
	}

	newRootPos, ok := tr.store.RootPos()
	if !ok {
		t.Fatalf("tree unexpectedly empty after merge")
	}
	merged, err := tr.store.ReadNode(newRootPos)
	if err != nil {
		t.Fatalf("read merged root: %v", err)
	}
	if !merged.IsLeaf {
		t.Fatalf("expected merged node to be a leaf")
	}
	// left.Size(1) + right.Size(1) = 2 if the separator is dropped, as the
	// reference does; it would be 3 if the separator were pulled down.
	if merged.Size != 2 {
		t.Fatalf("merged node size = %d, want 2 (separator dropped, not pulled down)", merged.Size)
	}
	for _, k := range merged.Keys {
		if k == sepKey {
			t.Fatalf("merged node unexpectedly retains dropped separator key %d", sepKey)
		}
	}
}

// TestRebalanceMergeRightBoundary pins §9 item 3: the "merge right" branch
// of rebalance is reached only when the underflowing node is its parent's
// leftmost child (k == 0), so the historical k <= P.size bounds guard on
// P.children[k+1] is always satisfied in practice — dead-wide, not a live
// crash site. This exercises exactly that path and checks the resulting
// merge pulls the separator down (unlike the internal-erase B.3 merge in
// TestEraseCaseB3MergeDropsSeparator, which deliberately does not).
func TestRebalanceMergeRightBoundary(t *testing.T) {
	tr := openTree(t, 2) // t=2: MinKeys=1, MaxKeys=3
	defer tr.Close()

	for _, k := range []int64{1, 2, 3, 4} {
		if _, err := tr.Insert(k, "v"); err != nil {
			t.Fatalf("insert %d: %v", k, err)
		}
	}
	// root key=3, children {1,2} and {4}.
	if _, err := tr.Erase(2); err != nil {
		t.Fatalf("erase 2: %v", err)
	}
	// Left child now {1} (size 1, at MinKeys, no underflow yet).
	ok, err := tr.Erase(1)
	if err != nil || !ok {
		t.Fatalf("erase 1: ok=%v err=%v", ok, err)
	}
	// Left child now underflows at size 0, and it is its parent's leftmost
	// (k == 0) child, with no left sibling to borrow from or merge with, and
	// a right sibling at MinKeys (no borrow available either) — forcing the
	// merge-right branch.

	rootPos, ok := tr.store.RootPos()
	if !ok {
		t.Fatalf("tree unexpectedly empty")
	}
	root, err := tr.store.ReadNode(rootPos)
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	if !root.IsLeaf {
		t.Fatalf("expected root to collapse to a leaf after the merge")
	}
	// Unlike case B.3, rebalance's own merge pulls the separator (3) down.
	want := []int64{3, 4}
	if root.Size != len(want) {
		t.Fatalf("merged root size = %d, want %d (%v)", root.Size, len(want), root.Keys)
	}
	for i := range want {
		if root.Keys[i] != want[i] {
			t.Fatalf("merged root keys = %v, want %v", root.Keys, want)
		}
	}
	if err := tr.CheckTree(); err != nil {
		t.Fatalf("check tree: %v", err)
	}
}

// TestScenarioBorrowVsMerge exercises both the borrow and merge rebalance
// branches by building a fuller tree, deleting keys, and checking
// invariants hold throughout.
func TestScenarioBorrowVsMerge(t *testing.T) {
	tr := openTree(t, 2)
	defer tr.Close()

	for k := int64(1); k <= 20; k++ {
		if _, err := tr.Insert(k, "v"); err != nil {
			t.Fatalf("insert %d: %v", k, err)
		}
	}
	if err := tr.CheckTree(); err != nil {
		t.Fatalf("check tree before deletes: %v", err)
	}

	// Deleting every third key (1, 4, ..., 19) takes one key from each of
	// the seven two-key leaves, leaving every leaf at MinKeys without any
	// underflow yet.
	for k := int64(1); k <= 20; k += 3 {
		ok, err := tr.Erase(k)
		if err != nil {
			t.Fatalf("erase %d: %v", k, err)
		}
		if !ok {
			t.Fatalf("erase %d: expected true", k)
		}
		if err := tr.CheckTree(); err != nil {
			t.Fatalf("check tree after erasing %d: %v", k, err)
		}
	}

	// With every leaf at MinKeys: erasing 2 empties the leftmost leaf, which
	// merges with its right sibling; erasing 8 then borrows from the left
	// sibling that merge produced; erasing 3 merges again, emptying their
	// internal parent, which borrows from its own right sibling.
	for _, k := range []int64{2, 8, 3} {
		ok, err := tr.Erase(k)
		if err != nil {
			t.Fatalf("erase %d: %v", k, err)
		}
		if !ok {
			t.Fatalf("erase %d: expected true", k)
		}
		if err := tr.CheckTree(); err != nil {
			t.Fatalf("check tree after erasing %d: %v", k, err)
		}
	}

	got := collect(t, tr)
	assertAscending(t, got)
	want := []int64{5, 6, 9, 11, 12, 14, 15, 17, 18, 20}
	if len(got) != len(want) {
		t.Fatalf("iteration after deletes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("iteration after deletes = %v, want %v", got, want)
		}
	}
}

func TestPredecessorReplacement(t *testing.T) {
	tr := openTree(t, 2)
	defer tr.Close()

	for k := int64(1); k <= 7; k++ {
		if _, err := tr.Insert(k, "v"); err != nil {
			t.Fatalf("insert %d: %v", k, err)
		}
	}
	if err := tr.CheckTree(); err != nil {
		t.Fatalf("check tree: %v", err)
	}

	rootPos, _ := tr.store.RootPos()
	root, err := tr.store.ReadNode(rootPos)
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	if root.IsLeaf {
		t.Fatalf("expected internal root for 7 keys at t=2")
	}
	victim := root.Keys[0]

	ok, err := tr.Erase(victim)
	if err != nil || !ok {
		t.Fatalf("erase internal key %d: ok=%v err=%v", victim, ok, err)
	}
	if err := tr.CheckTree(); err != nil {
		t.Fatalf("check tree after internal erase: %v", err)
	}
	_, found, _ := tr.Get(victim)
	if found {
		t.Fatalf("erased key %d still present", victim)
	}

	got := collect(t, tr)
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Fatalf("keys not ascending after internal erase: %v", got)
		}
	}
}

func TestEmptyTreeOperations(t *testing.T) {
	tr := openTree(t, 2)
	defer tr.Close()

	if _, found, err := tr.Get(1); err != nil || found {
		t.Fatalf("Get on empty tree = found=%v err=%v", found, err)
	}
	if ok, err := tr.Erase(1); err != nil || ok {
		t.Fatalf("Erase on empty tree = ok=%v err=%v", ok, err)
	}
	it, err := tr.Begin()
	if err != nil {
		t.Fatalf("Begin on empty tree: %v", err)
	}
	if it.Next() {
		t.Fatalf("Begin on empty tree should yield no elements")
	}
	if err := tr.CheckTree(); err != nil {
		t.Fatalf("CheckTree on empty tree: %v", err)
	}
}
