// Package index implements secondary indexes: a concurrent B+Tree keyed
// on dbtypes.Value and valued on tuple.RID, using latch crabbing with
// preventive splitting on insert and borrow/merge on delete so readers
// and writers never block on a global tree lock. One tree backs one
// CREATE INDEX; the engine decides whether it enforces uniqueness.
package index

import (
	"sort"
	"sync"

	"github.com/latticedb/latticedb/internal/dberrors"
	"github.com/latticedb/latticedb/internal/dbtypes"
	"github.com/latticedb/latticedb/internal/tuple"
)

const defaultDegree = 64

// Tree is a B+Tree secondary index: all row pointers live in the
// leaves, which are threaded into a linked list, and interior nodes
// hold copies of the smallest key of their right subtree as
// separators.
type Tree struct {
	degree    int
	unique    bool
	table     string // for the UniqueViolation error context only
	indexName string
	mu        sync.RWMutex // guards Root during structural changes (splits at the top)
	root      *node
}

// NewTree creates a non-unique secondary index: inserting an existing
// key is not an error, but each key holds one RID, so the later insert
// replaces the earlier one.
func NewTree(table, indexName string) *Tree {
	return &Tree{degree: defaultDegree, table: table, indexName: indexName, root: newNode(defaultDegree, true)}
}

// NewUniqueTree creates a unique index: Insert fails with a
// dberrors.UniqueViolation if the key already holds a different RID.
func NewUniqueTree(table, indexName string) *Tree {
	return &Tree{degree: defaultDegree, unique: true, table: table, indexName: indexName, root: newNode(defaultDegree, true)}
}

type node struct {
	degree   int
	keys     []dbtypes.Value
	rids     []tuple.RID // leaves only
	children []*node     // interior only
	leaf     bool
	n        int
	next     *node // leaf chain, left to right
	mu       sync.RWMutex
}

func newNode(degree int, leaf bool) *node {
	return &node{
		degree:   degree,
		leaf:     leaf,
		keys:     make([]dbtypes.Value, 0, 2*degree-1),
		rids:     make([]tuple.RID, 0, 2*degree-1),
		children: make([]*node, 0, 2*degree),
	}
}

func (n *node) lock()    { n.mu.Lock() }
func (n *node) unlock()  { n.mu.Unlock() }
func (n *node) rlock()   { n.mu.RLock() }
func (n *node) runlock() { n.mu.RUnlock() }

func (n *node) isFull() bool { return n.n == 2*n.degree-1 }

// Insert adds key -> rid. A non-unique tree accepts an insert under an
// existing key by overwriting that key's RID (last write wins; keys are
// not stored side by side); a unique tree rejects a second insert under a key
// already bound to a different rid, and is idempotent if the rid
// matches (re-inserting the row it already points at is a no-op, not
// a violation).
func (t *Tree) Insert(key dbtypes.Value, rid tuple.RID) error {
	return t.upsert(key, func(old tuple.RID, exists bool) (tuple.RID, error) {
		if exists && t.unique && old != rid {
			return tuple.RID{}, dberrors.UniqueViolation(t.table, t.indexName)
		}
		return rid, nil
	})
}

// Replace forces key to point at rid regardless of what it held
// before, for maintaining an index after an UPDATE changes the
// indexed column in place.
func (t *Tree) Replace(key dbtypes.Value, rid tuple.RID) error {
	return t.upsert(key, func(tuple.RID, bool) (tuple.RID, error) { return rid, nil })
}

func (t *Tree) upsert(key dbtypes.Value, fn func(old tuple.RID, exists bool) (tuple.RID, error)) error {
	t.mu.Lock()
	root := t.root
	root.lock()

	if root.isFull() {
		newRoot := newNode(t.degree, false)
		newRoot.children = append(newRoot.children, root)
		newRoot.splitChild(0)
		t.root = newRoot
		t.mu.Unlock()

		newRoot.lock()
		root.unlock()
		return t.upsertTopDown(newRoot, key, fn)
	}

	t.mu.Unlock()
	return t.upsertTopDown(root, key, fn)
}

// upsertTopDown descends the tree splitting full children on the way
// down (preventive splitting), so the leaf it finally locks is never
// full and the insert never needs to propagate a split back up.
// curr arrives locked; callers never need to unlock it themselves.
func (t *Tree) upsertTopDown(curr *node, key dbtypes.Value, fn func(old tuple.RID, exists bool) (tuple.RID, error)) error {
	defer curr.unlock()

	for !curr.leaf {
		i := 0
		for i < curr.n && key.Compare(curr.keys[i]) >= 0 {
			i++
		}

		child := curr.children[i]
		child.lock()

		if child.isFull() {
			curr.splitChild(i)
			if key.Compare(curr.keys[i]) >= 0 {
				child.unlock()
				child = curr.children[i+1]
				child.lock()
			}
		}

		curr.unlock()
		curr = child
	}

	return curr.upsertNonFull(key, fn)
}

func (n *node) upsertNonFull(key dbtypes.Value, fn func(old tuple.RID, exists bool) (tuple.RID, error)) error {
	idx := sort.Search(n.n, func(i int) bool { return n.keys[i].Compare(key) >= 0 })

	if idx < n.n && n.keys[idx].Equals(key) {
		newRID, err := fn(n.rids[idx], true)
		if err != nil {
			return err
		}
		n.rids[idx] = newRID
		return nil
	}

	newRID, err := fn(tuple.RID{}, false)
	if err != nil {
		return err
	}

	n.keys = append(n.keys, dbtypes.Value{})
	n.rids = append(n.rids, tuple.RID{})
	copy(n.keys[idx+1:], n.keys[idx:])
	copy(n.rids[idx+1:], n.rids[idx:])
	n.keys[idx] = key
	n.rids[idx] = newRID
	n.n++
	return nil
}

func (n *node) splitChild(i int) {
	degree := n.degree
	y := n.children[i]
	z := newNode(degree, y.leaf)

	if y.leaf {
		mid := degree - 1
		z.n = y.n - mid
		z.keys = append(z.keys, y.keys[mid:]...)
		z.rids = append(z.rids, y.rids[mid:]...)

		y.keys = y.keys[:mid]
		y.rids = y.rids[:mid]
		y.n = mid

		z.next = y.next
		y.next = z
	} else {
		mid := degree - 1
		z.n = degree - 1
		z.keys = append(z.keys, y.keys[mid+1:]...)
		z.children = append(z.children, y.children[mid+1:]...)

		upKey := y.keys[mid]
		y.keys = y.keys[:mid]
		y.children = y.children[:mid+1]
		y.n = mid

		n.keys = append(n.keys, dbtypes.Value{})
		copy(n.keys[i+1:], n.keys[i:])
		n.keys[i] = upKey

		n.children = append(n.children, nil)
		copy(n.children[i+2:], n.children[i+1:])
		n.children[i+1] = z
		n.n++
		return
	}

	n.keys = append(n.keys, dbtypes.Value{})
	copy(n.keys[i+1:], n.keys[i:])
	n.keys[i] = z.keys[0]

	n.children = append(n.children, nil)
	copy(n.children[i+2:], n.children[i+1:])
	n.children[i+1] = z
	n.n++
}

// Get returns the rid bound to key, using RLock coupling down the
// tree so concurrent readers never block each other.
func (t *Tree) Get(key dbtypes.Value) (tuple.RID, bool) {
	if t == nil {
		return tuple.RID{}, false
	}
	t.mu.RLock()
	curr := t.root
	curr.rlock()
	t.mu.RUnlock()

	for !curr.leaf {
		i := 0
		for i < curr.n && key.Compare(curr.keys[i]) >= 0 {
			i++
		}
		child := curr.children[i]
		child.rlock()
		curr.runlock()
		curr = child
	}
	defer curr.runlock()

	for j := 0; j < curr.n; j++ {
		if curr.keys[j].Equals(key) {
			return curr.rids[j], true
		}
	}
	return tuple.RID{}, false
}

// Remove deletes key (and its rid) from the tree. Returns false if the
// key was not present. Matches the source B+Tree's delete: fill
// undersized children on the way down (borrow from a sibling, or merge
// with one) before descending, so removal never backtracks.
func (t *Tree) Remove(key dbtypes.Value) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.root.remove(key)
}

func (n *node) remove(key dbtypes.Value) bool {
	idx := sort.Search(n.n, func(i int) bool { return n.keys[i].Compare(key) >= 0 })

	if n.leaf {
		if idx < n.n && n.keys[idx].Equals(key) {
			n.keys = append(n.keys[:idx], n.keys[idx+1:]...)
			n.rids = append(n.rids[:idx], n.rids[idx+1:]...)
			n.n--
			return true
		}
		return false
	}

	childIdx := idx
	if idx < n.n && n.keys[idx].Equals(key) {
		childIdx = idx + 1
	}

	child := n.children[childIdx]
	if child.n < n.degree {
		n.fill(childIdx)
	}

	return n.removeRecursive(key)
}

func (n *node) removeRecursive(key dbtypes.Value) bool {
	idx := sort.Search(n.n, func(i int) bool { return n.keys[i].Compare(key) >= 0 })

	childIdx := idx
	if idx < n.n && n.keys[idx].Equals(key) {
		childIdx = idx + 1
	}
	if childIdx > n.n {
		childIdx = n.n
	}

	ok := n.children[childIdx].remove(key)
	if ok {
		n.fixSeparators()
	}
	return ok
}

func (n *node) fixSeparators() {
	if n.leaf {
		return
	}
	for i := 0; i < n.n; i++ {
		curr := n.children[i+1]
		for !curr.leaf {
			curr = curr.children[0]
		}
		if curr.n > 0 {
			n.keys[i] = curr.keys[0]
		}
	}
}

func (n *node) fill(i int) {
	if i != 0 && n.children[i-1].n >= n.degree {
		n.borrowFromPrev(i)
	} else if i != n.n && n.children[i+1].n >= n.degree {
		n.borrowFromNext(i)
	} else if i != n.n {
		n.merge(i)
	} else {
		n.merge(i - 1)
	}
}

func (n *node) borrowFromPrev(i int) {
	child := n.children[i]
	sibling := n.children[i-1]

	if child.leaf {
		child.keys = append([]dbtypes.Value{{}}, child.keys...)
		child.rids = append([]tuple.RID{{}}, child.rids...)
		child.keys[0] = sibling.keys[sibling.n-1]
		child.rids[0] = sibling.rids[sibling.n-1]
		child.n++

		sibling.keys = sibling.keys[:sibling.n-1]
		sibling.rids = sibling.rids[:sibling.n-1]
		sibling.n--

		n.keys[i-1] = child.keys[0]
	} else {
		child.keys = append([]dbtypes.Value{{}}, child.keys...)
		child.children = append([]*node{nil}, child.children...)
		child.keys[0] = n.keys[i-1]
		child.children[0] = sibling.children[sibling.n]
		child.n++

		n.keys[i-1] = sibling.keys[sibling.n-1]
		sibling.keys = sibling.keys[:sibling.n-1]
		sibling.children = sibling.children[:sibling.n]
		sibling.n--
	}
}

func (n *node) borrowFromNext(i int) {
	child := n.children[i]
	sibling := n.children[i+1]

	if child.leaf {
		child.keys = append(child.keys, sibling.keys[0])
		child.rids = append(child.rids, sibling.rids[0])
		child.n++

		sibling.keys = append([]dbtypes.Value{}, sibling.keys[1:]...)
		sibling.rids = append([]tuple.RID{}, sibling.rids[1:]...)
		sibling.n--

		n.keys[i] = sibling.keys[0]
	} else {
		child.keys = append(child.keys, n.keys[i])
		child.children = append(child.children, sibling.children[0])
		child.n++

		n.keys[i] = sibling.keys[0]
		sibling.keys = append([]dbtypes.Value{}, sibling.keys[1:]...)
		sibling.children = append([]*node{}, sibling.children[1:]...)
		sibling.n--
	}
}

func (n *node) merge(i int) {
	child := n.children[i]
	sibling := n.children[i+1]

	if child.leaf {
		child.keys = append(child.keys, sibling.keys...)
		child.rids = append(child.rids, sibling.rids...)
		child.next = sibling.next
		child.n = len(child.keys)
	} else {
		child.keys = append(child.keys, n.keys[i])
		child.keys = append(child.keys, sibling.keys...)
		child.children = append(child.children, sibling.children...)
		child.n = len(child.keys)
	}

	n.keys = append(n.keys[:i], n.keys[i+1:]...)
	n.children = append(n.children[:i+1], n.children[i+2:]...)
	n.n--
}
