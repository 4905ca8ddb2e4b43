package buffer

import "sync"

// LRUKReplacer implements the LRU-K eviction policy of section 4.D: the
// victim is the unpinned frame whose K-th most recent access is oldest,
// ties broken by the earliest 1st-access timestamp. Frames with
// pin>0 are never candidates (callers mark a frame evictable/
// non-evictable rather than the replacer inspecting pin counts itself,
// mirroring the teacher's habit of keeping the replacer an oblivious
// set of frame indices — the Buffer Pool owns the meaning of "pinned").
type LRUKReplacer struct {
	mu        sync.Mutex
	k         int
	history   map[int][]uint64 // frame index -> access timestamps, oldest first
	evictable map[int]bool
	clock     uint64
}

// NewLRUKReplacer builds a replacer tracking the last k accesses per
// frame.
func NewLRUKReplacer(k int) *LRUKReplacer {
	if k < 1 {
		k = 2
	}
	return &LRUKReplacer{
		k:         k,
		history:   make(map[int][]uint64),
		evictable: make(map[int]bool),
	}
}

// RecordAccess logs a touch of frameIdx at the replacer's next logical
// timestamp.
func (r *LRUKReplacer) RecordAccess(frameIdx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock++
	h := r.history[frameIdx]
	h = append(h, r.clock)
	if len(h) > r.k {
		h = h[len(h)-r.k:]
	}
	r.history[frameIdx] = h
}

// SetEvictable marks frameIdx as a candidate (pin count reached zero) or
// not (it was just pinned).
func (r *LRUKReplacer) SetEvictable(frameIdx int, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if evictable {
		r.evictable[frameIdx] = true
	} else {
		delete(r.evictable, frameIdx)
	}
}

// Remove drops all history for frameIdx, e.g. after it is evicted.
func (r *LRUKReplacer) Remove(frameIdx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.history, frameIdx)
	delete(r.evictable, frameIdx)
}

// victimKey returns the timestamp of the k-th most recent
// access, using +Inf (represented as 0, the oldest possible clock
// value) for frames with fewer than k recorded accesses — the "infinite
// backward k-distance" classic LRU-K rule, which makes frames with
// fewer than K accesses preferred victims over ones with a full K-window,
// tie-broken by the earliest access timestamp (element [0]).
func (r *LRUKReplacer) victimKey(frameIdx int) (kthAccess uint64, firstAccess uint64, hasFullHistory bool) {
	h := r.history[frameIdx]
	if len(h) == 0 {
		return 0, 0, false
	}
	firstAccess = h[0]
	if len(h) < r.k {
		return 0, firstAccess, false
	}
	return h[0], firstAccess, true // with exactly k entries, h[0] IS the k-th most recent
}

// Evict selects and removes the victim frame per the LRU-K rule above.
// Returns ok=false if no frame is currently evictable.
func (r *LRUKReplacer) Evict() (frameIdx int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	best := -1
	var bestKth, bestFirst uint64
	var bestHasFull bool
	bestKth = ^uint64(0)

	for idx := range r.evictable {
		kth, first, hasFull := r.victimKey(idx)
		if best == -1 {
			best, bestKth, bestFirst, bestHasFull = idx, kth, first, hasFull
			continue
		}
		// Frames without a full K-window (infinite backward distance) beat
		// frames that have one; among those, earliest first-access wins.
		if !hasFull && bestHasFull {
			best, bestKth, bestFirst, bestHasFull = idx, kth, first, hasFull
			continue
		}
		if hasFull == bestHasFull {
			if !hasFull {
				if first < bestFirst {
					best, bestKth, bestFirst, bestHasFull = idx, kth, first, hasFull
				}
			} else if kth < bestKth || (kth == bestKth && first < bestFirst) {
				best, bestKth, bestFirst, bestHasFull = idx, kth, first, hasFull
			}
		}
	}

	if best == -1 {
		return 0, false
	}
	delete(r.evictable, best)
	delete(r.history, best)
	return best, true
}

// Size reports the number of currently evictable frames.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.evictable)
}
