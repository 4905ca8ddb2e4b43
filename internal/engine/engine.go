// Package engine wires Components A-J into a single StorageEngine
// facade: open/close, table DDL, transactional insert/update/delete/get,
// and crash recovery. Grounded directly on the teacher's
// pkg/storage/engine.go StorageEngine (TableMetaData/WAL/Checkpoint/
// TxRegistry fields, BeginTransaction/Get/Put/Del/Scan/Recover/Vacuum
// shape), generalized from a document/B+Tree engine keyed by arbitrary
// Comparable keys to LatticeDB's typed relational tables keyed by RID,
// with the CRDT merge engine folded into Put's "ON CONFLICT MERGE" path.
package engine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/latticedb/latticedb/internal/buffer"
	"github.com/latticedb/latticedb/internal/catalog"
	"github.com/latticedb/latticedb/internal/config"
	"github.com/latticedb/latticedb/internal/crdt"
	"github.com/latticedb/latticedb/internal/dberrors"
	"github.com/latticedb/latticedb/internal/dbtypes"
	"github.com/latticedb/latticedb/internal/diskmgr"
	"github.com/latticedb/latticedb/internal/index"
	"github.com/latticedb/latticedb/internal/lockmgr"
	"github.com/latticedb/latticedb/internal/metrics"
	"github.com/latticedb/latticedb/internal/mvcc"
	"github.com/latticedb/latticedb/internal/tuple"
	"github.com/latticedb/latticedb/internal/txn"
	"github.com/latticedb/latticedb/internal/wal"
)

// tableState is everything the engine keeps in memory about one table:
// its physical page chain, its logical MVCC version chains, and the
// mapping from a row's stable logical RID (assigned at first insert) to
// wherever TableHeap.UpdateTuple last physically forwarded it. The page
// chain is the system of record replayed at recovery; the MVCC store is
// rebuilt in memory from that replay and from subsequent live traffic.
type tableState struct {
	entry    *catalog.TableEntry
	heap     *catalog.TableHeap
	versions *mvcc.Store

	mu       sync.Mutex
	physical map[tuple.RID]tuple.RID // logical RID -> current physical RID
	indexes  []*indexEntry           // secondary indexes declared on this table
}

// indexEntry is one CREATE INDEX: a single-column B+Tree keyed on that
// column's value, valued on the row's logical RID.
type indexEntry struct {
	name   string
	table  string
	column string
	colIdx int
	unique bool
	tree   *index.Tree
}

// StorageEngine is the single entry point driving every component.
type StorageEngine struct {
	cfg     config.Config
	logger  Logger
	alert   *AlertHub
	metrics *metrics.Registry
	siteID  string

	disk   *diskmgr.DiskManager
	pool   *buffer.BufferPool
	wal    *wal.Writer
	walDir string

	txReg *txn.Registry
	locks *lockmgr.Manager

	mu       sync.RWMutex
	cat      *catalog.Catalog
	tables   map[string]*tableState
	panicked atomic.Bool

	txMu      sync.Mutex
	commitLSN map[uint32]uint64 // txn id -> the LSN its COMMIT record was assigned, for FOR SYSTEM_TIME AS OF TX n

	indexesMu sync.RWMutex
	indexes   map[string]*indexEntry // index name -> entry, for DROP INDEX by name
}

// Open boots a StorageEngine over cfg: flocks and opens the data file,
// reads (or initializes) the page-0 catalog, opens the buffer pool and
// WAL, rebuilds every table's in-memory state, and replays the WAL
// (section 4.E/8's crash-recovery seed scenario).
func Open(cfg config.Config, logger Logger, metricsReg *metrics.Registry, alert *AlertHub) (*StorageEngine, error) {
	if logger == nil {
		logger = NewWriterLogger(os.Stdout)
	}
	if metricsReg == nil {
		metricsReg = metrics.NewRegistry()
	}

	fresh := true
	if info, err := os.Stat(cfg.DataFile); err == nil && info.Size() > 0 {
		fresh = false
	}

	disk, err := diskmgr.Open(cfg.DataFile)
	if err != nil {
		return nil, dberrors.RecoveryFatal(err, "open data file")
	}

	walDir := cfg.LogFile
	w, err := wal.NewWriter(cfg.WALOptions(walDir), metricsReg)
	if err != nil {
		disk.Close()
		return nil, dberrors.RecoveryFatal(err, "open write-ahead log")
	}

	pool := buffer.New(disk, w, cfg.BufferPoolFrames, cfg.ReplacerK, metricsReg)

	siteID, err := uuid.NewV7()
	if err != nil {
		disk.Close()
		w.Close()
		return nil, dberrors.Internal("failed to mint engine site id")
	}

	se := &StorageEngine{
		cfg:       cfg,
		logger:    logger,
		alert:     alert,
		metrics:   metricsReg,
		siteID:    siteID.String(),
		disk:      disk,
		pool:      pool,
		wal:       w,
		walDir:    walDir,
		txReg:     txn.NewRegistry(),
		locks:     lockmgr.New(metricsReg, nil),
		tables:    make(map[string]*tableState),
		commitLSN: make(map[uint32]uint64),
		indexes:   make(map[string]*indexEntry),
	}
	se.locks = lockmgr.New(metricsReg, se.deadlockVictim)
	se.locks.StartDeadlockDetector(cfg.DeadlockInterval)

	if fresh {
		se.cat = catalog.NewCatalog()
		if err := se.persistCatalogLocked(); err != nil {
			se.Close()
			return nil, err
		}
	} else {
		page := make([]byte, diskmgr.PageSize)
		if err := disk.ReadPage(0, page); err != nil {
			se.Close()
			return nil, dberrors.RecoveryFatal(err, "read page 0 catalog")
		}
		cat, err := catalog.DecodeCatalog(page)
		if err != nil {
			se.enterPanicMode(err, "corrupt catalog on page 0")
			se.Close()
			return nil, err
		}
		se.cat = cat
	}

	for name, t := range se.cat.Tables {
		se.tables[name] = &tableState{
			entry:    t,
			heap:     catalog.OpenTableHeap(pool, t.FirstPageID),
			versions: mvcc.NewStore(),
			physical: make(map[tuple.RID]tuple.RID),
		}
	}

	if err := se.recover(); err != nil {
		se.enterPanicMode(err, "WAL recovery failed")
		se.Close()
		return nil, err
	}

	return se, nil
}

// enterPanicMode halts further writes and fires the alert hook, per
// section 7: "I/O during recovery: Fatal, engine refuses to open" /
// "Internal invariant: Fatal, panic mode engaged".
func (se *StorageEngine) enterPanicMode(err error, reason string) {
	se.panicked.Store(true)
	se.logger.Printf("PANIC MODE: %s: %v", reason, err)
	se.alert.PanicMode(err, reason)
}

func (se *StorageEngine) checkPanicMode() error {
	if se.panicked.Load() {
		return dberrors.Internal("engine is in panic mode and refuses further writes")
	}
	return nil
}

// Close flushes and releases every owned resource.
func (se *StorageEngine) Close() error {
	se.locks.StopDeadlockDetector()

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if se.pool != nil {
		record(se.pool.FlushAll())
	}
	if se.wal != nil {
		record(se.wal.Close())
	}
	if se.disk != nil {
		record(se.disk.Close())
	}
	return firstErr
}

// persistCatalogLocked writes the in-memory catalog back to page 0.
// Callers must hold se.mu for writing.
func (se *StorageEngine) persistCatalogLocked() error {
	encoded, err := se.cat.Encode()
	if err != nil {
		return dberrors.Wrap(err, dberrors.KindInternal, dberrors.CodeInternalError, "encode catalog")
	}
	if len(encoded) > diskmgr.PageSize {
		return dberrors.Internal("catalog payload no longer fits in page 0")
	}
	page := make([]byte, diskmgr.PageSize)
	copy(page, encoded)
	return se.disk.WritePage(0, page)
}

// CreateTable registers a new table with its own page chain, persisting
// the updated catalog to page 0 immediately (DDL is not protected by the
// row-level lock manager; schema changes take the catalog mutex instead,
// matching the teacher's metaMu "lock apenas para operações de
// metadados").
func (se *StorageEngine) CreateTable(name string, schema *dbtypes.Schema) error {
	if err := se.checkPanicMode(); err != nil {
		return err
	}
	se.mu.Lock()
	defer se.mu.Unlock()

	if _, exists := se.cat.Tables[name]; exists {
		return dberrors.New(dberrors.KindConstraint, dberrors.CodeUniqueViolation, "table "+name+" already exists").WithTable(name)
	}

	heap, err := catalog.NewTableHeap(se.pool)
	if err != nil {
		return err
	}
	entry, err := se.cat.AddTable(name, schema, heap.FirstPageID())
	if err != nil {
		return err
	}
	se.tables[name] = &tableState{
		entry:    entry,
		heap:     heap,
		versions: mvcc.NewStore(),
		physical: make(map[tuple.RID]tuple.RID),
	}
	if err := se.persistCatalogLocked(); err != nil {
		delete(se.tables, name)
		_ = se.cat.DropTable(name)
		return err
	}
	return nil
}

// DropTable removes a table's catalog entry. Page reclamation onto the
// free list is left to a future vacuum pass (section 4.J: "FreeListHead"
// is tracked but this expansion does not implement page-level reuse
// beyond table-heap append, matching the teacher's own Vacuum, which
// rewrites a whole new heap rather than reusing freed pages in place).
func (se *StorageEngine) DropTable(name string) error {
	if err := se.checkPanicMode(); err != nil {
		return err
	}
	se.mu.Lock()
	defer se.mu.Unlock()
	if err := se.cat.DropTable(name); err != nil {
		return err
	}
	delete(se.tables, name)
	return se.persistCatalogLocked()
}

// CreateIndex builds a secondary index named name on table.column,
// populating it from every row currently visible (an uncommitted
// concurrent writer's rows are picked up by the incremental maintenance
// in Insert/Update/Delete instead, the same way CreateTable never tries
// to retroactively index rows written after it returns). A unique index
// rejects the build outright if the existing data already holds two
// rows with equal keys.
func (se *StorageEngine) CreateIndex(name, table, column string, unique bool) error {
	if err := se.checkPanicMode(); err != nil {
		return err
	}
	ts, err := se.tableState(table)
	if err != nil {
		return err
	}
	colIdx := ts.entry.Schema.IndexOf(column)
	if colIdx < 0 {
		return dberrors.ColumnNotFound(table, column)
	}

	se.indexesMu.Lock()
	if _, exists := se.indexes[name]; exists {
		se.indexesMu.Unlock()
		return dberrors.New(dberrors.KindConstraint, dberrors.CodeUniqueViolation, "index "+name+" already exists").WithTable(table)
	}
	se.indexesMu.Unlock()

	var tree *index.Tree
	if unique {
		tree = index.NewUniqueTree(table, name)
	} else {
		tree = index.NewTree(table, name)
	}

	entry := &indexEntry{name: name, table: table, column: column, colIdx: colIdx, unique: unique, tree: tree}

	ts.mu.Lock()
	for logical := range ts.physical {
		row, ok := ts.versions.Read(logical, ^uint64(0))
		if !ok {
			continue
		}
		if err := tree.Insert(row.Values[colIdx], logical); err != nil {
			ts.mu.Unlock()
			return err
		}
	}
	ts.indexes = append(ts.indexes, entry)
	ts.mu.Unlock()

	se.indexesMu.Lock()
	se.indexes[name] = entry
	se.indexesMu.Unlock()
	return nil
}

// DropIndex removes a secondary index by name.
func (se *StorageEngine) DropIndex(name string) error {
	se.indexesMu.Lock()
	entry, ok := se.indexes[name]
	if !ok {
		se.indexesMu.Unlock()
		return dberrors.New(dberrors.KindNotFound, dberrors.CodeUndefinedTable, "index "+name+" does not exist")
	}
	delete(se.indexes, name)
	se.indexesMu.Unlock()

	ts, err := se.tableState(entry.table)
	if err != nil {
		return nil
	}
	ts.mu.Lock()
	for i, e := range ts.indexes {
		if e == entry {
			ts.indexes = append(ts.indexes[:i], ts.indexes[i+1:]...)
			break
		}
	}
	ts.mu.Unlock()
	return nil
}

// IndexLookup resolves an equality predicate on table.column through a
// matching secondary index, if one exists. The SQL front end uses this
// to skip a full table scan for WHERE col = literal.
func (se *StorageEngine) IndexLookup(table, column string, key dbtypes.Value) (tuple.RID, bool) {
	ts, err := se.tableState(table)
	if err != nil {
		return tuple.RID{}, false
	}
	ts.mu.Lock()
	var tree *index.Tree
	for _, e := range ts.indexes {
		if e.column == column {
			tree = e.tree
			break
		}
	}
	ts.mu.Unlock()
	if tree == nil {
		return tuple.RID{}, false
	}
	return tree.Get(key)
}

// checkUniqueIndexesLocked rejects row up front if it would collide
// with an existing key under one of ts's unique indexes, so Insert
// fails before ever touching the heap or the WAL rather than leaving a
// row behind that the later index-maintenance step then refuses to
// index.
func checkUniqueIndexesLocked(ts *tableState, row tuple.Tuple) error {
	for _, e := range ts.indexes {
		if !e.unique {
			continue
		}
		if _, exists := e.tree.Get(row.Values[e.colIdx]); exists {
			return dberrors.UniqueViolation(e.table, e.name)
		}
	}
	return nil
}

// checkUniqueIndexesForUpdateLocked is checkUniqueIndexesLocked's
// UPDATE counterpart: a row colliding with itself (the same rid already
// holding that key) is not a violation, only a collision with some
// other row is.
func checkUniqueIndexesForUpdateLocked(ts *tableState, rid tuple.RID, row tuple.Tuple) error {
	for _, e := range ts.indexes {
		if !e.unique {
			continue
		}
		if existing, exists := e.tree.Get(row.Values[e.colIdx]); exists && existing != rid {
			return dberrors.UniqueViolation(e.table, e.name)
		}
	}
	return nil
}

// maintainIndexesLocked updates every secondary index on ts after a row
// write: remove oldRow's old key (if any row existed before) and insert
// newRow's new key (if the row still exists after). Called with ts.mu
// held by the caller's write path.
func maintainIndexesLocked(ts *tableState, rid tuple.RID, oldRow *tuple.Tuple, newRow *tuple.Tuple) error {
	for _, e := range ts.indexes {
		if oldRow != nil {
			old := oldRow.Values[e.colIdx]
			if newRow == nil || !old.Equals(newRow.Values[e.colIdx]) {
				e.tree.Remove(old)
			}
		}
		if newRow != nil {
			if err := e.tree.Insert(newRow.Values[e.colIdx], rid); err != nil {
				return err
			}
		}
	}
	return nil
}

func (se *StorageEngine) tableState(name string) (*tableState, error) {
	se.mu.RLock()
	defer se.mu.RUnlock()
	t, ok := se.tables[name]
	if !ok {
		return nil, dberrors.TableNotFound(name)
	}
	return t, nil
}

// Schema returns the declared schema of a live table, for callers (the
// SQL front end's SELECT *, INSERT column resolution) that need column
// names and types without reaching into the catalog directly.
func (se *StorageEngine) Schema(name string) (*dbtypes.Schema, error) {
	t, err := se.tableState(name)
	if err != nil {
		return nil, err
	}
	return t.entry.Schema, nil
}

// BeginTxn starts a new transaction at the given isolation level,
// snapshotting the WAL's current LSN.
func (se *StorageEngine) BeginTxn(level txn.IsolationLevel) *txn.Transaction {
	return se.txReg.Begin(level, se.wal.CurrentLSN())
}

// BeginTxnAt starts a transaction pinned to an explicit
// snapshot LSN rather than the current one, for FOR SYSTEM_TIME AS OF
// TX n (see SnapshotForTx). Writes made under it are visible only to
// later readers of the same or newer snapshot, exactly as with any
// other transaction's writes; callers implementing a historical query
// should not commit further writes through it.
func (se *StorageEngine) BeginTxnAt(level txn.IsolationLevel, snapshotLSN uint64) *txn.Transaction {
	return se.txReg.Begin(level, snapshotLSN)
}

func lockKey(table string, rid tuple.RID) string {
	return fmt.Sprintf("%s:%d:%d", table, rid.PageID, rid.Slot)
}

// Commit appends the transaction's COMMIT record, flushes the WAL up to
// it (the durability invariant of section 8: "WAL contains and has
// durably flushed every record of T up to and including COMMIT" before
// Commit returns), finalizes every version the transaction wrote so it
// becomes visible to snapshots at or after the commit LSN, releases its
// locks, and retires it from the registry.
func (se *StorageEngine) Commit(tx *txn.Transaction) error {
	rec := wal.AcquireRecord()
	defer wal.ReleaseRecord(rec)
	rec.Type = wal.RecordCommit
	rec.TxnID = tx.ID
	rec.PrevLSN = tx.PrevLSN
	rec.Payload = rec.Payload[:0]

	lsn, err := se.wal.Append(rec)
	if err != nil {
		se.enterPanicMode(err, "WAL append failed on commit")
		return err
	}
	if err := se.wal.Flush(lsn); err != nil {
		se.enterPanicMode(err, "WAL flush failed on commit")
		return err
	}

	se.txMu.Lock()
	se.commitLSN[tx.ID] = lsn
	se.txMu.Unlock()

	for _, pv := range tx.PendingVersions() {
		if pv.IsDelete {
			pv.Store.FinalizeDelete(pv.RID, pv.Version, lsn)
		} else {
			pv.Store.FinalizeCreate(pv.RID, pv.Version, lsn)
		}
	}

	se.locks.ReleaseAll(tx.ID, tx.HeldResources())
	se.txReg.Commit(tx)
	se.metrics.TxnCommits.Inc()
	return nil
}

// SnapshotForTx resolves the FOR SYSTEM_TIME AS OF TX n clause (section
// 6) to the MVCC snapshot LSN that observes exactly the rows visible
// immediately after transaction n committed (section 9's open
// question 2: resolved here as "N itself", matching the sample test in
// section 8's seed scenario 1, not "immediately before N"). The mapping
// is kept only in memory for the life of this process: it does not
// survive a restart, since nothing in the WAL record format names a
// transaction's position relative to others beyond LSN order.
func (se *StorageEngine) SnapshotForTx(txnID uint32) (uint64, bool) {
	se.txMu.Lock()
	defer se.txMu.Unlock()
	lsn, ok := se.commitLSN[txnID]
	return lsn, ok
}

// Abort appends an ABORT record, releases locks, and retires the
// transaction without undoing its already-written page images (this
// expansion's recovery is redo-only across restarts, matching the
// teacher's Recover). The transaction's versions and tombstones stay
// pending: Abort never calls FinalizeCreate/FinalizeDelete for them, so
// their CommitLSN/DeleteCommitLSN stay 0 and Version.VisibleAt hides
// them from every snapshot.
func (se *StorageEngine) Abort(tx *txn.Transaction, reason string) error {
	rec := wal.AcquireRecord()
	defer wal.ReleaseRecord(rec)
	rec.Type = wal.RecordAbort
	rec.TxnID = tx.ID
	rec.PrevLSN = tx.PrevLSN
	rec.Payload = []byte(reason)

	if _, err := se.wal.Append(rec); err != nil {
		se.enterPanicMode(err, "WAL append failed on abort")
		return err
	}

	se.locks.ReleaseAll(tx.ID, tx.HeldResources())
	se.txReg.Abort(tx, reason)
	se.metrics.TxnAborts.Inc()
	return nil
}

// Insert appends a new row, taking an exclusive lock on its freshly
// minted RID (no one else can hold it yet, but recording the lock keeps
// ReleaseAll/HeldResources consistent for every write path).
func (se *StorageEngine) Insert(tx *txn.Transaction, table string, row tuple.Tuple) (tuple.RID, error) {
	if err := se.checkPanicMode(); err != nil {
		return tuple.Invalid, err
	}
	ts, err := se.tableState(table)
	if err != nil {
		return tuple.Invalid, err
	}

	encoded, err := tuple.Encode(row, ts.entry.Schema)
	if err != nil {
		return tuple.Invalid, dberrors.DataType(err.Error())
	}

	ts.mu.Lock()
	uniqueErr := checkUniqueIndexesLocked(ts, row)
	ts.mu.Unlock()
	if uniqueErr != nil {
		return tuple.Invalid, uniqueErr
	}

	rid, err := ts.heap.InsertTuple(encoded)
	if err != nil {
		return tuple.Invalid, err
	}

	if err := se.locks.Acquire(context.Background(), tx.ID, lockKey(table, rid), lockmgr.X, se.cfg.LockTimeout); err != nil {
		return tuple.Invalid, err
	}
	tx.RecordExclusiveLock(lockKey(table, rid))
	tx.TouchPage(rid.PageID)

	lsn, err := se.appendRowRecord(wal.RecordInsert, tx, table, rid, encoded)
	if err != nil {
		return tuple.Invalid, err
	}

	ts.mu.Lock()
	ts.physical[rid] = rid
	v := ts.versions.Insert(rid, row, lsn)
	idxErr := maintainIndexesLocked(ts, rid, nil, &row)
	ts.mu.Unlock()
	tx.RecordPendingCreate(ts.versions, rid, v)
	if idxErr != nil {
		return tuple.Invalid, idxErr
	}

	return rid, nil
}

// Update writes newRow over rid's current version, resolving via the
// column CRDT merge policy when merge is true (the "ON CONFLICT MERGE"
// path), or overwriting outright otherwise.
func (se *StorageEngine) Update(tx *txn.Transaction, table string, rid tuple.RID, newRow tuple.Tuple, merge bool) error {
	if err := se.checkPanicMode(); err != nil {
		return err
	}
	ts, err := se.tableState(table)
	if err != nil {
		return err
	}

	if err := se.locks.Acquire(context.Background(), tx.ID, lockKey(table, rid), lockmgr.X, se.cfg.LockTimeout); err != nil {
		return err
	}
	tx.RecordExclusiveLock(lockKey(table, rid))

	ts.mu.Lock()
	oldRow, hadOld := ts.versions.Read(rid, tx.SnapshotLSN)
	ts.mu.Unlock()

	resolved := newRow
	if merge && hadOld {
		resolved, err = se.mergeRows(ts.entry.Schema, oldRow, newRow, tx)
		if err != nil {
			return err
		}
	}

	encoded, err := tuple.Encode(resolved, ts.entry.Schema)
	if err != nil {
		return dberrors.DataType(err.Error())
	}

	ts.mu.Lock()
	physical := ts.physical[rid]
	uniqueErr := checkUniqueIndexesForUpdateLocked(ts, rid, resolved)
	ts.mu.Unlock()
	if uniqueErr != nil {
		return uniqueErr
	}

	newPhysical, err := ts.heap.UpdateTuple(physical, encoded)
	if err != nil {
		return err
	}

	lsn, err := se.appendRowRecord(wal.RecordUpdate, tx, table, rid, encoded)
	if err != nil {
		return err
	}

	ts.mu.Lock()
	ts.physical[rid] = newPhysical
	v := ts.versions.Update(rid, resolved, lsn)
	var idxErr error
	if hadOld {
		idxErr = maintainIndexesLocked(ts, rid, &oldRow, &resolved)
	} else {
		idxErr = maintainIndexesLocked(ts, rid, nil, &resolved)
	}
	ts.mu.Unlock()
	tx.RecordPendingCreate(ts.versions, rid, v)
	tx.TouchPage(newPhysical.PageID)
	return idxErr
}

// Delete tombstones rid. The tombstone stays pending until Commit
// finalizes it, and then hides the row from snapshots at or after the
// commit LSN.
func (se *StorageEngine) Delete(tx *txn.Transaction, table string, rid tuple.RID) error {
	if err := se.checkPanicMode(); err != nil {
		return err
	}
	ts, err := se.tableState(table)
	if err != nil {
		return err
	}

	if err := se.locks.Acquire(context.Background(), tx.ID, lockKey(table, rid), lockmgr.X, se.cfg.LockTimeout); err != nil {
		return err
	}
	tx.RecordExclusiveLock(lockKey(table, rid))

	ts.mu.Lock()
	physical := ts.physical[rid]
	oldRow, hadOld := ts.versions.Read(rid, tx.SnapshotLSN)
	ts.mu.Unlock()
	if err := ts.heap.DeleteTuple(physical); err != nil {
		return err
	}

	lsn, err := se.appendRowRecord(wal.RecordDelete, tx, table, rid, nil)
	if err != nil {
		return err
	}

	ts.mu.Lock()
	delVer, err := ts.versions.Delete(rid, lsn)
	if err == nil && hadOld {
		maintainIndexesLocked(ts, rid, &oldRow, nil)
	}
	ts.mu.Unlock()
	if err != nil {
		return err
	}
	tx.RecordPendingDelete(ts.versions, rid, delVer)
	return nil
}

// Get reads rid as of tx's snapshot, taking a shared row lock under
// SERIALIZABLE (weaker isolation levels read lock-free, consistent with
// section 5's per-level lock footprint).
func (se *StorageEngine) Get(tx *txn.Transaction, table string, rid tuple.RID) (tuple.Tuple, bool, error) {
	ts, err := se.tableState(table)
	if err != nil {
		return tuple.Tuple{}, false, err
	}
	if tx.Level == txn.Serializable {
		if err := se.locks.Acquire(context.Background(), tx.ID, lockKey(table, rid), lockmgr.S, se.cfg.LockTimeout); err != nil {
			return tuple.Tuple{}, false, err
		}
		tx.RecordSharedLock(lockKey(table, rid))
	}
	snapshot := tx.SnapshotLSN
	if tx.Level == txn.ReadUncommitted {
		snapshot = ^uint64(0)
	}
	ts.mu.Lock()
	row, ok := ts.versions.Read(rid, snapshot)
	ts.mu.Unlock()
	return row, ok, nil
}

// Row pairs a tuple with the stable logical RID it was read at, for
// callers (the SQL front end's UPDATE/DELETE ... WHERE) that need to
// write back to the exact row a scan found.
type Row struct {
	RID    tuple.RID
	Values tuple.Tuple
}

// Scan walks every RID the table's mvcc store knows about, returning the
// rows visible as of tx's snapshot, in no particular order (the table
// heap's page chain order is not guaranteed stable across vacuum).
func (se *StorageEngine) Scan(tx *txn.Transaction, table string) ([]Row, error) {
	ts, err := se.tableState(table)
	if err != nil {
		return nil, err
	}

	snapshot := tx.SnapshotLSN
	if tx.Level == txn.ReadUncommitted {
		snapshot = ^uint64(0)
	}

	var out []Row
	ts.mu.Lock()
	for logical := range ts.physical {
		if row, ok := ts.versions.Read(logical, snapshot); ok {
			out = append(out, Row{RID: logical, Values: row})
		}
	}
	ts.mu.Unlock()
	return out, nil
}

// mergeRows applies the CRDT resolver for every column with a merge
// policy, leaving unmarked columns as the incoming value (Open Question
// 1 of section 9: unspecified columns are treated as an outright
// overwrite, not identity, since nothing short of an explicit NULL
// sentinel distinguishes "not provided" from "provided as the same
// value" once the statement has already been parsed into a full row by
// this expansion's minimal SQL front end).
func (se *StorageEngine) mergeRows(schema *dbtypes.Schema, old, incoming tuple.Tuple, tx *txn.Transaction) (tuple.Tuple, error) {
	out := tuple.Tuple{Values: make([]dbtypes.Value, len(schema.Columns))}
	stampNew := crdt.Stamp{CommitLSN: se.wal.CurrentLSN() + 1, TxnID: tx.ID, SiteID: se.siteID}
	stampOld := crdt.Stamp{CommitLSN: tx.SnapshotLSN, TxnID: 0, SiteID: se.siteID}
	for i, col := range schema.Columns {
		if col.Merge.Kind == dbtypes.MergeNone {
			out.Values[i] = incoming.Values[i]
			continue
		}
		merged, err := crdt.Resolve(col.Merge, old.Values[i], incoming.Values[i], stampOld, stampNew)
		if err != nil {
			return tuple.Tuple{}, err
		}
		out.Values[i] = merged
	}
	return out, nil
}

// appendRowRecord encodes {table name, RID, payload} into a WAL record
// and appends it, recording the assigned LSN as the transaction's new
// undo-chain head.
func (se *StorageEngine) appendRowRecord(kind wal.RecordType, tx *txn.Transaction, table string, rid tuple.RID, payload []byte) (uint64, error) {
	body := encodeRowPayload(table, rid, payload)
	rec := wal.AcquireRecord()
	defer wal.ReleaseRecord(rec)
	rec.Type = kind
	rec.TxnID = tx.ID
	rec.PrevLSN = tx.PrevLSN
	rec.PageID = rid.PageID
	rec.Payload = body

	lsn, err := se.wal.Append(rec)
	if err != nil {
		se.enterPanicMode(err, "WAL append failed")
		return 0, err
	}
	tx.PrevLSN = lsn
	return lsn, nil
}

// encodeRowPayload lays out {table_name_len u8 | table_name | page_id u32
// | slot u16 | tuple_bytes}, replayed by recover().
func encodeRowPayload(table string, rid tuple.RID, tuple []byte) []byte {
	buf := make([]byte, 0, 1+len(table)+6+len(tuple))
	buf = append(buf, byte(len(table)))
	buf = append(buf, table...)
	buf = append(buf, byte(rid.PageID), byte(rid.PageID>>8), byte(rid.PageID>>16), byte(rid.PageID>>24))
	buf = append(buf, byte(rid.Slot), byte(rid.Slot>>8))
	buf = append(buf, tuple...)
	return buf
}

func decodeRowPayload(buf []byte) (table string, rid tuple.RID, payload []byte, ok bool) {
	if len(buf) < 1 {
		return "", tuple.RID{}, nil, false
	}
	n := int(buf[0])
	if len(buf) < 1+n+6 {
		return "", tuple.RID{}, nil, false
	}
	table = string(buf[1 : 1+n])
	off := 1 + n
	pageID := uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24
	slot := uint16(buf[off+4]) | uint16(buf[off+5])<<8
	payload = buf[off+6:]
	return table, tuple.RID{PageID: pageID, Slot: slot}, payload, true
}

// deadlockVictim is the lock manager's onVictim callback: it looks the
// transaction up and aborts it, matching the teacher's pattern of a
// single injected callback rather than a channel the caller must drain.
func (se *StorageEngine) deadlockVictim(txnID uint32) {
	tx, ok := se.txReg.Lookup(txnID)
	if !ok {
		return
	}
	se.logger.Printf("deadlock detected: aborting txn %d", txnID)
	se.Abort(tx, "selected as deadlock victim")
}
