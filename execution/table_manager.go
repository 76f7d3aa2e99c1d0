package execution

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/tidwall/btree"
	"mit.edu/dsg/gracejoin/catalog"
	"mit.edu/dsg/gracejoin/common"
	"mit.edu/dsg/gracejoin/storage"
)

// TableManager manages the lifecycle of TableHeap objects.
//
// Source tables are registered in the catalog and live as long as the database. Temporary tables are only known
// to the TableManager: they are addressed by name, get an ObjectID from the catalog's counter, and have their file
// deleted when dropped. Temp names are kept ordered so that every table sharing a prefix can be dropped at once.
type TableManager struct {
	catalog    *catalog.Catalog
	bufferPool *storage.BufferPool
	tables     *xsync.MapOf[common.ObjectID, *TableHeap]

	tempMu     sync.Mutex
	tempTables btree.Map[string, *TableHeap]
	tempSeq    atomic.Uint64
}

// NewTableManager initializes the TableManager and eagerly creates TableHeap instances
// for all tables defined in the Catalog.
func NewTableManager(catalog *catalog.Catalog, bufferPool *storage.BufferPool) (*TableManager, error) {
	tm := &TableManager{
		catalog:    catalog,
		bufferPool: bufferPool,
		tables:     xsync.NewMapOf[common.ObjectID, *TableHeap](),
	}

	// Eagerly load all tables to avoid synchronization overhead at runtime
	for _, tableDef := range catalog.ListTables() {
		heap, err := NewTableHeap(tableDef.Oid, tableDef.Types(), bufferPool)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize table '%s': %w", tableDef.Name, err)
		}
		tm.tables.Store(tableDef.Oid, heap)
	}
	return tm, nil
}

// Catalog returns the catalog the source tables are registered in.
func (tm *TableManager) Catalog() *catalog.Catalog {
	return tm.catalog
}

// BufferPool returns the buffer pool every table heap reads through.
func (tm *TableManager) BufferPool() *storage.BufferPool {
	return tm.bufferPool
}

// CreateTable registers a new source table in the catalog and creates its heap file.
func (tm *TableManager) CreateTable(name string, columns []catalog.Column) (*catalog.Table, *TableHeap, error) {
	table, err := tm.catalog.AddTable(name, columns)
	if err != nil {
		return nil, nil, err
	}
	heap, err := NewTableHeap(table.Oid, table.Types(), tm.bufferPool)
	if err != nil {
		return nil, nil, err
	}
	tm.tables.Store(table.Oid, heap)
	return table, heap, nil
}

// GetTable retrieves the TableHeap for a given table oid.
func (tm *TableManager) GetTable(oid common.ObjectID) (*TableHeap, error) {
	if heap, exists := tm.tables.Load(oid); exists {
		return heap, nil
	}
	return nil, common.NewGoDBError(common.NoSuchObjectError, "object '%d' not found", oid)
}

// GetTableByName resolves a source table through the catalog.
func (tm *TableManager) GetTableByName(name string) (*catalog.Table, *TableHeap, error) {
	table, err := tm.catalog.GetTableMetadata(name)
	if err != nil {
		return nil, nil, err
	}
	heap, err := tm.GetTable(table.Oid)
	if err != nil {
		return nil, nil, err
	}
	return table, heap, nil
}

// NewTempPrefix returns a name prefix no other caller of this TableManager has been given. It ends in '/' so
// that dropping by prefix never reaches another owner's tables.
func (tm *TableManager) NewTempPrefix() string {
	return fmt.Sprintf("tmp-%d/", tm.tempSeq.Add(1))
}

// CreateTempTable creates an empty temporary table. Creation fails with DuplicateObjectError if the name is in
// use, or with StorageError if the storage layer cannot allocate the first page.
func (tm *TableManager) CreateTempTable(name string, columnTypes []common.Type) (*TableHeap, error) {
	tm.tempMu.Lock()
	defer tm.tempMu.Unlock()
	if _, exists := tm.tempTables.Get(name); exists {
		return nil, common.NewGoDBError(common.DuplicateObjectError, "temp table '%s' already exists", name)
	}

	oid := tm.catalog.AllocateObjectID()
	// Object ids are not persisted for temp tables, so a file left behind by an earlier process may exist
	if err := tm.bufferPool.StorageManager().DeleteDBFile(oid); err != nil {
		return nil, err
	}
	heap, err := NewTableHeap(oid, columnTypes, tm.bufferPool)
	if err != nil {
		tm.dropFile(oid)
		if common.IsErrorCode(err, common.StorageError) {
			return nil, err
		}
		return nil, common.NewGoDBError(common.StorageError, "cannot create temp table '%s': %v", name, err)
	}
	tm.tempTables.Set(name, heap)
	return heap, nil
}

// GetTempTable returns a temporary table by name.
func (tm *TableManager) GetTempTable(name string) (*TableHeap, error) {
	tm.tempMu.Lock()
	defer tm.tempMu.Unlock()
	heap, exists := tm.tempTables.Get(name)
	if !exists {
		return nil, common.NewGoDBError(common.NoSuchObjectError, "temp table '%s' does not exist", name)
	}
	return heap, nil
}

// DropTempTable discards the cached pages of a temporary table and deletes its file. Dropping a name that does not
// exist is a no-op.
func (tm *TableManager) DropTempTable(name string) error {
	tm.tempMu.Lock()
	heap, exists := tm.tempTables.Delete(name)
	tm.tempMu.Unlock()
	if !exists {
		return nil
	}
	return tm.dropFile(heap.Oid())
}

// DropTempTables drops every temporary table whose name starts with prefix and returns how many were dropped.
func (tm *TableManager) DropTempTables(prefix string) (int, error) {
	tm.tempMu.Lock()
	var victims []*TableHeap
	var names []string
	tm.tempTables.Ascend(prefix, func(name string, heap *TableHeap) bool {
		if !strings.HasPrefix(name, prefix) {
			return false
		}
		names = append(names, name)
		victims = append(victims, heap)
		return true
	})
	for _, name := range names {
		tm.tempTables.Delete(name)
	}
	tm.tempMu.Unlock()

	var firstErr error
	for _, heap := range victims {
		if err := tm.dropFile(heap.Oid()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return len(victims), firstErr
}

// NumTempTables returns the number of live temporary tables.
func (tm *TableManager) NumTempTables() int {
	tm.tempMu.Lock()
	defer tm.tempMu.Unlock()
	return tm.tempTables.Len()
}

func (tm *TableManager) dropFile(oid common.ObjectID) error {
	tm.bufferPool.DiscardObject(oid)
	return tm.bufferPool.StorageManager().DeleteDBFile(oid)
}
