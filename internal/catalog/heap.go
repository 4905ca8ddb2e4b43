package catalog

import (
	"github.com/latticedb/latticedb/internal/buffer"
	"github.com/latticedb/latticedb/internal/tuple"
)

// TableHeap is the page chain holding one table's tuples: a singly
// linked list of slotted pages (Page.NextPage), with insert_tuple
// placing a tuple in the first page of the chain that has room
// (allocating a fresh tail page when none does) and delete/update
// operating through the page's slot directory. Ground:
// the teacher's heap.HeapManager segment chain, narrowed from
// independently-sized append-only segments to fixed 4 KiB slotted
// pages per section 4.C.
type TableHeap struct {
	pool        *buffer.BufferPool
	firstPageID uint32
}

// OpenTableHeap wraps an existing page chain starting at firstPageID.
func OpenTableHeap(pool *buffer.BufferPool, firstPageID uint32) *TableHeap {
	return &TableHeap{pool: pool, firstPageID: firstPageID}
}

// NewTableHeap allocates the first page of a brand new table.
func NewTableHeap(pool *buffer.BufferPool) (*TableHeap, error) {
	pageID, frame, err := pool.NewPage()
	if err != nil {
		return nil, err
	}
	InitPage(&frame.Data, pageID)
	if err := pool.UnpinPage(pageID, true); err != nil {
		return nil, err
	}
	return &TableHeap{pool: pool, firstPageID: pageID}, nil
}

// FirstPageID returns the head of the table's page chain, for
// persisting into the catalog's TableEntry.
func (h *TableHeap) FirstPageID() uint32 { return h.firstPageID }

// InsertTuple walks the chain from its first page and stores encoded in
// the first page with room (allocating and linking a new tail page if
// no page has room), returning the RID at which it was placed.
func (h *TableHeap) InsertTuple(encoded []byte) (tuple.RID, error) {
	pageID := h.firstPageID
	for {
		frame, err := h.pool.FetchPage(pageID)
		if err != nil {
			return tuple.Invalid, err
		}
		frame.WLatchPage()
		page := &Page{Data: &frame.Data}
		slot, err := page.InsertTuple(encoded)
		if err == nil {
			frame.WUnlatchPage()
			h.pool.UnpinPage(pageID, true)
			return tuple.RID{PageID: pageID, Slot: slot}, nil
		}
		next := page.NextPage()
		frame.WUnlatchPage()

		if next == 0 {
			newPageID, newFrame, err := h.pool.NewPage()
			if err != nil {
				h.pool.UnpinPage(pageID, false)
				return tuple.Invalid, err
			}
			InitPage(&newFrame.Data, newPageID)
			h.pool.UnpinPage(newPageID, true)

			frame.WLatchPage()
			page.SetNextPage(newPageID)
			frame.WUnlatchPage()
			h.pool.UnpinPage(pageID, true)

			pageID = newPageID
			continue
		}
		h.pool.UnpinPage(pageID, false)
		pageID = next
	}
}

// InsertTupleAt redoes an insert originally recorded at rid, during WAL
// replay. Page.InsertTuple always assigns the next free slot on a
// page, so replaying every insert for a page in its original WAL order
// reproduces the exact same RIDs; a RID whose slot already exists on
// disk (its page was flushed before the crash) is a no-op.
func (h *TableHeap) InsertTupleAt(rid tuple.RID, encoded []byte) error {
	frame, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	frame.WLatchPage()
	page := &Page{Data: &frame.Data}
	alreadyApplied := rid.Slot < page.SlotCount()
	var insErr error
	if !alreadyApplied {
		_, insErr = page.InsertTuple(encoded)
	}
	frame.WUnlatchPage()
	h.pool.UnpinPage(rid.PageID, !alreadyApplied)
	return insErr
}

// GetTuple reads the raw encoded bytes at rid.
func (h *TableHeap) GetTuple(rid tuple.RID) ([]byte, error) {
	frame, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return nil, err
	}
	defer h.pool.UnpinPage(rid.PageID, false)

	frame.RLatchPage()
	defer frame.RUnlatchPage()
	page := &Page{Data: &frame.Data}
	data, err := page.GetTuple(rid.Slot)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// DeleteTuple tombstones rid's slot.
func (h *TableHeap) DeleteTuple(rid tuple.RID) error {
	frame, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return err
	}
	defer h.pool.UnpinPage(rid.PageID, true)

	frame.WLatchPage()
	defer frame.WUnlatchPage()
	page := &Page{Data: &frame.Data}
	return page.DeleteTuple(rid.Slot)
}

// UpdateTuple writes encoded over rid, in place if it fits, or by
// tombstoning the old slot and inserting a fresh one (forwarding) if
// not. Returns the RID the tuple now lives at.
func (h *TableHeap) UpdateTuple(rid tuple.RID, encoded []byte) (tuple.RID, error) {
	frame, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return tuple.Invalid, err
	}
	frame.WLatchPage()
	page := &Page{Data: &frame.Data}
	forwarded, err := page.UpdateTuple(rid.Slot, encoded)
	frame.WUnlatchPage()
	h.pool.UnpinPage(rid.PageID, true)
	if err != nil {
		return tuple.Invalid, err
	}
	if !forwarded {
		return rid, nil
	}
	return h.InsertTuple(encoded)
}

// Iterator walks every live (non-tombstoned) tuple across the page
// chain in RID order.
type Iterator struct {
	heap     *TableHeap
	pageID   uint32
	slot     uint16
	frame    *buffer.Frame
	page     *Page
	finished bool
}

// Scan begins an iteration over every live tuple in the heap.
func (h *TableHeap) Scan() *Iterator {
	return &Iterator{heap: h, pageID: h.firstPageID}
}

// Next advances the iterator, returning false once the chain is
// exhausted. On true, it also returns the live tuple's RID and a copy
// of its bytes.
func (it *Iterator) Next() (tuple.RID, []byte, bool) {
	for {
		if it.finished {
			return tuple.Invalid, nil, false
		}
		if it.frame == nil {
			if it.pageID == 0 {
				it.finished = true
				return tuple.Invalid, nil, false
			}
			frame, err := it.heap.pool.FetchPage(it.pageID)
			if err != nil {
				it.finished = true
				return tuple.Invalid, nil, false
			}
			it.frame = frame
			it.page = &Page{Data: &frame.Data}
			it.slot = 0
		}

		it.frame.RLatchPage()
		if it.slot >= it.page.SlotCount() {
			it.frame.RUnlatchPage()
			next := it.page.NextPage()
			it.heap.pool.UnpinPage(it.pageID, false)
			it.frame = nil
			it.pageID = next
			continue
		}

		if !it.page.IsLive(it.slot) {
			it.frame.RUnlatchPage()
			it.slot++
			continue
		}

		data, err := it.page.GetTuple(it.slot)
		rid := tuple.RID{PageID: it.pageID, Slot: it.slot}
		out := make([]byte, len(data))
		copy(out, data)
		it.frame.RUnlatchPage()
		it.slot++
		if err != nil {
			continue
		}
		return rid, out, true
	}
}

// Close releases the iterator's pinned page, if any. Callers that
// fully drain Next (until it returns false) never need to call Close.
func (it *Iterator) Close() {
	if it.frame != nil && !it.finished {
		it.heap.pool.UnpinPage(it.pageID, false)
		it.frame = nil
		it.finished = true
	}
}
