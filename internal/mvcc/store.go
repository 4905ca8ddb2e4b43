package mvcc

import (
	"sync"

	"github.com/latticedb/latticedb/internal/dberrors"
	"github.com/latticedb/latticedb/internal/tuple"
)

// Store owns every row's version chain, keyed by RID. The storage
// engine calls into Store on insert/update/delete; readers call Read
// (for ordinary snapshot reads) or the same path with an explicit
// historical snapshotLSN for "AS OF TX n" (section 4.H).
type Store struct {
	mu     sync.RWMutex
	chains map[tuple.RID]*Chain
}

// NewStore builds an empty version store.
func NewStore() *Store {
	return &Store{chains: make(map[tuple.RID]*Chain)}
}

func (s *Store) chainFor(rid tuple.RID) *Chain {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chains[rid]
	if !ok {
		c = &Chain{}
		s.chains[rid] = c
	}
	return c
}

// Insert records the first version of rid, created at createLSN, and
// returns it still pending: it is invisible to every reader until
// FinalizeCreate stamps its CommitLSN.
func (s *Store) Insert(rid tuple.RID, t tuple.Tuple, createLSN uint64) *Version {
	v := &Version{CreateLSN: createLSN, Tuple: t}
	s.chainFor(rid).Append(v)
	return v
}

// Update appends a new version of rid (section 4.H never overwrites in
// place — the old version remains reachable for snapshots that predate
// this update), pending until FinalizeCreate commits it.
func (s *Store) Update(rid tuple.RID, t tuple.Tuple, createLSN uint64) *Version {
	v := &Version{CreateLSN: createLSN, Tuple: t}
	s.chainFor(rid).Append(v)
	return v
}

// Delete tombstones the current head version of rid at deleteLSN,
// pending until FinalizeDelete commits it, and returns that version.
func (s *Store) Delete(rid tuple.RID, deleteLSN uint64) (*Version, error) {
	s.mu.RLock()
	c, ok := s.chains[rid]
	s.mu.RUnlock()
	if !ok {
		return nil, dberrors.Internal("delete of a row with no version chain")
	}
	return c.MarkDeleted(deleteLSN), nil
}

// FinalizeCreate commits v (created by Insert or Update) as of
// commitLSN, making it visible to snapshots taken at or after it.
func (s *Store) FinalizeCreate(rid tuple.RID, v *Version, commitLSN uint64) {
	s.chainFor(rid).FinalizeCreate(v, commitLSN)
}

// FinalizeDelete commits v's tombstone (set by Delete) as of commitLSN.
func (s *Store) FinalizeDelete(rid tuple.RID, v *Version, commitLSN uint64) {
	s.chainFor(rid).FinalizeDelete(v, commitLSN)
}

// Undo removes v from the head of rid's chain, returning the version
// now exposed (nil if the chain is now empty). Neither the engine nor
// crash recovery calls it: an aborted or lost write simply stays
// pending and invisible.
func (s *Store) Undo(rid tuple.RID, v *Version) *Version {
	return s.chainFor(rid).Undo(v)
}

// UndoDelete clears rid's tombstone. Neither the engine nor crash
// recovery calls it.
func (s *Store) UndoDelete(rid tuple.RID) {
	s.chainFor(rid).UndoDelete()
}

// Read returns the tuple visible to a reader at snapshotLSN, or
// ok=false if the row does not exist (or is not yet visible / already
// deleted) at that snapshot.
func (s *Store) Read(rid tuple.RID, snapshotLSN uint64) (tuple.Tuple, bool) {
	s.mu.RLock()
	c, ok := s.chains[rid]
	s.mu.RUnlock()
	if !ok {
		return tuple.Tuple{}, false
	}
	v := c.VisibleAt(snapshotLSN)
	if v == nil {
		return tuple.Tuple{}, false
	}
	return v.Tuple, true
}

// Vacuum prunes every chain of versions no longer reachable from any
// snapshot at or after minActiveLSN (the transaction registry's
// watermark), returning the number of versions reclaimed.
func (s *Store) Vacuum(minActiveLSN uint64) int {
	s.mu.RLock()
	chains := make([]*Chain, 0, len(s.chains))
	for _, c := range s.chains {
		chains = append(chains, c)
	}
	s.mu.RUnlock()

	total := 0
	for _, c := range chains {
		total += c.Prune(minActiveLSN)
	}
	return total
}
