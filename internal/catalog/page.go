// Package catalog implements the Catalog & Table Heap of section 4.J:
// the slotted page layout every table's data lives in, the catalog
// persisted on page 0, and table-heap insert/delete/update/scan
// operations over RIDs.
//
// Grounded on the teacher's pkg/storage (table.go's TableMetaData
// registry shape) and pkg/heap (the RecordHeader/segment append
// discipline, generalized here from an append-only document heap to
// slotted fixed-size pages so that deletes and in-place updates can
// reclaim space within a page, per section 4.C).
package catalog

import (
	"encoding/binary"

	"github.com/latticedb/latticedb/internal/dberrors"
	"github.com/latticedb/latticedb/internal/diskmgr"
)

// PageHeaderSize is the fixed 32-byte header every page starts with:
// page_id(4) + page_lsn(8) + prev_page(4) + next_page(4) +
// free_space_offset(2) + slot_count(2) + reserved(8) = 32.
const PageHeaderSize = 32

// slotEntrySize: offset(2) + length(2) + flags(1) + padding(3) = 8,
// stored in the forward-growing slot directory immediately after the
// header.
const slotEntrySize = 8

const tombstoneFlag = 0x01

// Page is a 4 KiB slotted page: a fixed header, a slot directory that
// grows forward from PageHeaderSize, and tuple payloads packed
// backward from the end of the page. FreeSpaceOffset marks the
// boundary between the two, matching the classic "slotted page" layout
// (e.g. Postgres heap pages, SQLite's cell pointer array).
type Page struct {
	Data *[diskmgr.PageSize]byte
}

func (p *Page) PageID() uint32           { return binary.LittleEndian.Uint32(p.Data[0:4]) }
func (p *Page) SetPageID(id uint32)      { binary.LittleEndian.PutUint32(p.Data[0:4], id) }
func (p *Page) PageLSN() uint64          { return binary.LittleEndian.Uint64(p.Data[4:12]) }
func (p *Page) SetPageLSN(lsn uint64)    { binary.LittleEndian.PutUint64(p.Data[4:12], lsn) }
func (p *Page) PrevPage() uint32         { return binary.LittleEndian.Uint32(p.Data[12:16]) }
func (p *Page) SetPrevPage(id uint32)    { binary.LittleEndian.PutUint32(p.Data[12:16], id) }
func (p *Page) NextPage() uint32         { return binary.LittleEndian.Uint32(p.Data[16:20]) }
func (p *Page) SetNextPage(id uint32)    { binary.LittleEndian.PutUint32(p.Data[16:20], id) }
func (p *Page) freeSpaceOffset() uint16  { return binary.LittleEndian.Uint16(p.Data[20:22]) }
func (p *Page) setFreeSpaceOffset(v uint16) {
	binary.LittleEndian.PutUint16(p.Data[20:22], v)
}
func (p *Page) SlotCount() uint16 { return binary.LittleEndian.Uint16(p.Data[22:24]) }
func (p *Page) setSlotCount(v uint16) {
	binary.LittleEndian.PutUint16(p.Data[22:24], v)
}

// InitPage zeroes the page and sets up an empty slotted layout.
func InitPage(data *[diskmgr.PageSize]byte, pageID uint32) *Page {
	for i := range data {
		data[i] = 0
	}
	p := &Page{Data: data}
	p.SetPageID(pageID)
	p.SetPrevPage(0)
	p.SetNextPage(0)
	p.setFreeSpaceOffset(diskmgr.PageSize)
	p.setSlotCount(0)
	return p
}

func (p *Page) slotOffset(slot uint16) int {
	return PageHeaderSize + int(slot)*slotEntrySize
}

func (p *Page) readSlot(slot uint16) (tupleOffset, tupleLen uint16, tombstone bool) {
	o := p.slotOffset(slot)
	tupleOffset = binary.LittleEndian.Uint16(p.Data[o : o+2])
	tupleLen = binary.LittleEndian.Uint16(p.Data[o+2 : o+4])
	tombstone = p.Data[o+4]&tombstoneFlag != 0
	return
}

func (p *Page) writeSlot(slot uint16, tupleOffset, tupleLen uint16, tombstone bool) {
	o := p.slotOffset(slot)
	binary.LittleEndian.PutUint16(p.Data[o:o+2], tupleOffset)
	binary.LittleEndian.PutUint16(p.Data[o+2:o+4], tupleLen)
	flags := byte(0)
	if tombstone {
		flags |= tombstoneFlag
	}
	p.Data[o+4] = flags
}

// freeSpace returns the number of unused bytes between the end of the
// slot directory and the start of the tuple heap.
func (p *Page) freeSpace() int {
	dirEnd := PageHeaderSize + int(p.SlotCount())*slotEntrySize
	return int(p.freeSpaceOffset()) - dirEnd
}

// InsertTuple appends a new slot and packs data at the low end of the
// free tuple-heap region. Returns the assigned slot number, or an
// InsufficientResources-shaped error if the page has no room.
func (p *Page) InsertTuple(data []byte) (uint16, error) {
	needed := len(data) + slotEntrySize
	if p.freeSpace() < needed {
		return 0, dberrors.Resource("page has insufficient free space for this tuple")
	}
	newOffset := p.freeSpaceOffset() - uint16(len(data))
	copy(p.Data[newOffset:], data)
	p.setFreeSpaceOffset(newOffset)

	slot := p.SlotCount()
	p.writeSlot(slot, newOffset, uint16(len(data)), false)
	p.setSlotCount(slot + 1)
	return slot, nil
}

// GetTuple returns the raw bytes stored at slot, or an error if the
// slot is out of range or tombstoned.
func (p *Page) GetTuple(slot uint16) ([]byte, error) {
	if slot >= p.SlotCount() {
		return nil, dberrors.Internal("slot out of range")
	}
	off, length, tombstone := p.readSlot(slot)
	if tombstone {
		return nil, dberrors.Internal("tuple is deleted")
	}
	return p.Data[off : off+length], nil
}

// IsLive reports whether slot holds a non-tombstoned tuple.
func (p *Page) IsLive(slot uint16) bool {
	if slot >= p.SlotCount() {
		return false
	}
	_, _, tombstone := p.readSlot(slot)
	return !tombstone
}

// DeleteTuple marks slot as a tombstone without reclaiming its space
// (compaction is vacuum's job, not delete's).
func (p *Page) DeleteTuple(slot uint16) error {
	if slot >= p.SlotCount() {
		return dberrors.Internal("slot out of range")
	}
	off, length, _ := p.readSlot(slot)
	p.writeSlot(slot, off, length, true)
	return nil
}

// UpdateTuple overwrites slot's payload in place when the new encoding
// is no larger than the old one; otherwise it tombstones the old slot
// and the caller (Table Heap) must insert the new version as a fresh
// slot (the "in-place-or-forward" rule of section 4.J — forwarding
// here means forwarding to a new slot, since cross-page chains are out
// of scope for a single-file engine of this size).
func (p *Page) UpdateTuple(slot uint16, data []byte) (forwarded bool, err error) {
	if slot >= p.SlotCount() {
		return false, dberrors.Internal("slot out of range")
	}
	_, oldLen, tombstone := p.readSlot(slot)
	if tombstone {
		return false, dberrors.Internal("update of a deleted tuple")
	}
	if len(data) <= int(oldLen) {
		off, _, _ := p.readSlot(slot)
		copy(p.Data[off:off+uint16(len(data))], data)
		p.writeSlot(slot, off, uint16(len(data)), false)
		return false, nil
	}
	if err := p.DeleteTuple(slot); err != nil {
		return false, err
	}
	return true, nil
}
