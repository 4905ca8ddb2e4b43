// Package mvcc implements the version-chain machinery of section 4.H:
// every update appends a new version rather than overwriting in place
// and a delete tombstones the newest version, each version stamped
// with the LSN of the transaction that
// created (and, if applicable, deleted) it, and readers walk the chain
// to find the newest version visible under their snapshot — including
// "AS OF TX n" temporal reads against an arbitrary past snapshot.
//
// Grounded on the teacher's pkg/heap RecordHeader{Valid, CreateLSN,
// DeleteLSN, PrevOffset}: the same three-field version-chain node
// shape, generalized from a single on-disk byte offset per version
// (PrevOffset into a segment file) to an in-memory forward list of
// Tuples per row, since the Table Heap/Catalog component owns on-disk
// placement in this design and mvcc owns only visibility.
package mvcc

import (
	"sync"

	"github.com/latticedb/latticedb/internal/tuple"
)

// Version is one entry in a row's version chain. Ground: heap.go's
// RecordHeader, field for field, minus PrevOffset (the chain here is an
// in-memory linked list via Prev rather than a file offset), plus
// CommitLSN/DeleteCommitLSN so visibility is gated on the owning
// transaction's outcome rather than on the bare WAL append order: a
// version is invisible to every snapshot until its creating
// transaction actually commits, and stays invisible forever if that
// transaction aborts instead (see Store.FinalizeCreate/FinalizeDelete,
// called from the Storage Engine's Commit).
type Version struct {
	CreateLSN       uint64 // the WAL append LSN of the op that created this version; 0 means "not applied yet" only during crash replay
	CommitLSN       uint64 // 0 until the creating transaction commits; the MVCC visibility gate
	DeleteLSN       uint64 // the WAL append LSN of the op that tombstoned this version; 0 means "not deleted"
	DeleteCommitLSN uint64 // 0 until the deleting transaction commits
	Tuple           tuple.Tuple
	Prev            *Version
}

// IsDeletedAt reports whether this version is already a committed
// tombstone by the time snapshotLSN is taken. A pending (uncommitted,
// or since-aborted) delete never tombstones the row for anyone.
func (v *Version) IsDeletedAt(snapshotLSN uint64) bool {
	return v.DeleteCommitLSN != 0 && v.DeleteCommitLSN <= snapshotLSN
}

// VisibleAt returns the newest version in this chain visible to a
// reader whose snapshot is snapshotLSN, or nil if none is (the row did
// not exist yet, every version visible by then was later deleted, or
// every version so far is still an uncommitted write no snapshot may
// observe). A version whose creating transaction never committed
// (CommitLSN permanently 0, because it aborted or crashed without
// reaching COMMIT) is skipped exactly like one created in the future —
// this is what makes an aborted write vanish without needing to undo
// the chain itself for a still-running process.
func (v *Version) VisibleAt(snapshotLSN uint64) *Version {
	for cur := v; cur != nil; cur = cur.Prev {
		if cur.CommitLSN == 0 || cur.CommitLSN > snapshotLSN {
			continue // not committed yet, or committed after this snapshot was taken
		}
		if cur.IsDeletedAt(snapshotLSN) {
			return nil // newest visible version is a tombstone: row is gone
		}
		return cur
	}
	return nil
}

// Chain is the version list for one logical row, keyed externally by
// RID (Store owns the RID->Chain mapping).
type Chain struct {
	mu      sync.RWMutex
	Head    *Version // most recently created version
}

// Append adds a freshly created version to the head of the chain.
func (c *Chain) Append(v *Version) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v.Prev = c.Head
	c.Head = v
}

// MarkDeleted stamps the current head version as deleted at deleteLSN
// (a tombstone), matching the teacher's Valid=false + DeleteLSN write
// rather than removing the row outright — vacuum reclaims it later.
// Returns the tombstoned version (nil if the chain was empty) so the
// caller can finalize or undo it later against the deleting
// transaction's eventual commit or abort.
func (c *Chain) MarkDeleted(deleteLSN uint64) *Version {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Head != nil {
		c.Head.DeleteLSN = deleteLSN
	}
	return c.Head
}

// FinalizeCreate stamps v's CommitLSN once its creating transaction has
// committed, making it visible to snapshots at or after commitLSN.
func (c *Chain) FinalizeCreate(v *Version, commitLSN uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v.CommitLSN = commitLSN
}

// FinalizeDelete stamps v's DeleteCommitLSN once its deleting
// transaction has committed, tombstoning it for snapshots at or after
// commitLSN.
func (c *Chain) FinalizeDelete(v *Version, commitLSN uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v.DeleteCommitLSN = commitLSN
}

// Undo removes v from the head of the chain, exposing whatever it was
// chained in front of. Neither the engine nor crash recovery (which is
// redo-only) calls it: an aborted or lost write simply never gets
// FinalizeCreate called and stays permanently invisible instead (see
// Version.VisibleAt).
func (c *Chain) Undo(v *Version) *Version {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Head == v {
		c.Head = v.Prev
	}
	return c.Head
}

// UndoDelete clears a tombstone on the current head version. Neither
// the engine nor crash recovery calls it: an aborted or lost delete
// never gets FinalizeDelete called and never tombstones the row.
func (c *Chain) UndoDelete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Head != nil {
		c.Head.DeleteLSN = 0
		c.Head.DeleteCommitLSN = 0
	}
}

// VisibleAt returns the version of this row visible at snapshotLSN.
func (c *Chain) VisibleAt(snapshotLSN uint64) *Version {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Head == nil {
		return nil
	}
	return c.Head.VisibleAt(snapshotLSN)
}

// Prune drops every version in the chain no longer reachable from any
// snapshot at or after minActiveLSN: a committed tombstoned version
// whose DeleteCommitLSN is itself below minActiveLSN, AND every
// version chained behind it (since nothing can ever need to look
// further back than that tombstone once no snapshot predates it). A
// still-pending (uncommitted) delete never qualifies, since an abort
// would otherwise resurrect a row vacuum had already reclaimed.
// Returns the number of versions dropped, for the vacuum-reclaimed-
// bytes metric.
func (c *Chain) Prune(minActiveLSN uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	cur := c.Head
	var lastKept *Version
	for cur != nil {
		if cur.DeleteCommitLSN != 0 && cur.DeleteCommitLSN < minActiveLSN {
			// Safe to cut the chain here: no active snapshot can see
			// past this tombstone.
			if lastKept != nil {
				lastKept.Prev = nil
			} else {
				c.Head = nil
			}
			for p := cur; p != nil; {
				next := p.Prev
				p.Prev = nil
				dropped++
				p = next
			}
			break
		}
		lastKept = cur
		cur = cur.Prev
	}
	return dropped
}
