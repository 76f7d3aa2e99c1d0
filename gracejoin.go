// Package gracejoin wires the storage, catalog and execution layers into a small database handle whose main
// operation is an equi-join executed with the Grace hash join algorithm.
package gracejoin

import (
	"errors"
	"log/slog"
	"os"

	"mit.edu/dsg/gracejoin/catalog"
	"mit.edu/dsg/gracejoin/common"
	"mit.edu/dsg/gracejoin/execution"
	"mit.edu/dsg/gracejoin/logging"
	"mit.edu/dsg/gracejoin/planner"
	"mit.edu/dsg/gracejoin/storage"
)

// Config describes where data lives and how much memory the engine may use.
type Config struct {
	// StorageDir holds the catalog and one file per table. Empty keeps everything in memory.
	StorageDir string
	// BufferPoolSize is the number of page frames shared by all tables.
	BufferPoolSize int
	// NumBuffers is the page budget B granted to each join.
	NumBuffers int
	// MaxStoragePages caps in-memory storage; 0 means unbounded. Ignored for disk storage.
	MaxStoragePages int
	JoinOptions     execution.GraceHashJoinOptions
	Log             logging.Config
}

// DefaultConfig returns an in-memory configuration.
func DefaultConfig() Config {
	return Config{
		BufferPoolSize: 64,
		NumBuffers:     16,
		Log:            logging.DefaultConfig(),
	}
}

// GraceDB is the top-level container for the database system.
type GraceDB struct {
	Catalog      *catalog.Catalog
	BufferPool   *storage.BufferPool
	TableManager *execution.TableManager
	Logger       *slog.Logger

	files  storage.DBFileManager
	config Config
}

// Open builds a database from config, loading any tables already present in StorageDir.
func Open(config Config) (*GraceDB, error) {
	if config.BufferPoolSize < 1 {
		return nil, common.NewGoDBError(common.ConfigurationError, "buffer pool needs at least one frame, got %d",
			config.BufferPoolSize)
	}
	logger, err := logging.New(config.Log)
	if err != nil {
		return nil, common.NewGoDBError(common.ConfigurationError, "%v", err)
	}

	var files storage.DBFileManager
	var provider catalog.PersistenceProvider
	if config.StorageDir == "" {
		files = storage.NewMemStorageManager(config.MaxStoragePages)
		provider = catalog.NewMemoryCatalogManager()
	} else {
		if err := os.MkdirAll(config.StorageDir, 0755); err != nil {
			return nil, err
		}
		files = storage.NewDiskStorageManager(config.StorageDir)
		provider = catalog.NewDiskCatalogManager(config.StorageDir)
	}

	cat, err := catalog.NewCatalog(provider)
	if err != nil {
		return nil, errors.Join(err, files.Close())
	}
	bufferPool := storage.NewBufferPool(config.BufferPoolSize, files)
	tableManager, err := execution.NewTableManager(cat, bufferPool)
	if err != nil {
		return nil, errors.Join(err, files.Close())
	}

	logger.Info("opened database", "dir", config.StorageDir, "frames", config.BufferPoolSize,
		"join_buffers", config.NumBuffers, "tables", len(cat.ListTables()))
	return &GraceDB{
		Catalog:      cat,
		BufferPool:   bufferPool,
		TableManager: tableManager,
		Logger:       logger,
		files:        files,
		config:       config,
	}, nil
}

// CreateTable registers a table and allocates its heap file.
func (db *GraceDB) CreateTable(name string, columns []catalog.Column) (*catalog.Table, error) {
	table, _, err := db.TableManager.CreateTable(name, columns)
	if err != nil {
		return nil, err
	}
	logging.WithTable(db.Logger, name).Debug("created table", "oid", table.Oid, "columns", len(columns))
	return table, nil
}

// Insert appends rows to a table. Every row must match the table's column types; NULLs are typed values too. Values
// that would read back differently (see common.Value.Storable) are rejected and nothing of that row is written.
func (db *GraceDB) Insert(tableName string, rows ...[]common.Value) error {
	table, heap, err := db.TableManager.GetTableByName(tableName)
	if err != nil {
		return err
	}
	types := table.Types()
	desc := heap.StorageSchema()
	buffer := make([]byte, desc.BytesPerTuple())
	for i, row := range rows {
		if len(row) != len(types) {
			return common.NewGoDBError(common.TypeMismatchError, "row %d has %d values, table '%s' has %d columns",
				i, len(row), tableName, len(types))
		}
		for j, v := range row {
			if v.Type() != types[j] {
				return common.NewGoDBError(common.TypeMismatchError, "row %d column %d: expected %s, got %s",
					i, j, types[j], v.Type())
			}
			if !v.Storable() {
				return common.NewGoDBError(common.TypeMismatchError, "row %d column %d: %s is reserved by the storage format",
					i, j, v)
			}
		}
		tuple := storage.FromValues(row...)
		tuple.WriteToBuffer(buffer, desc)
		if _, err := heap.InsertTuple(buffer); err != nil {
			return err
		}
	}
	return nil
}

func (db *GraceDB) scanNode(tableName string) (*planner.SeqScanNode, *catalog.Table, error) {
	table, heap, err := db.TableManager.GetTableByName(tableName)
	if err != nil {
		return nil, nil, err
	}
	return planner.NewSeqScanNode(table.Oid, table.Name, table.Types(), heap.Stats()), table, nil
}

func (db *GraceDB) joinInputs(leftTable, rightTable, leftColumn, rightColumn string) (left, right *planner.SeqScanNode, leftKey, rightKey int, err error) {
	left, leftMeta, err := db.scanNode(leftTable)
	if err != nil {
		return
	}
	right, rightMeta, err := db.scanNode(rightTable)
	if err != nil {
		return
	}
	if leftKey, err = leftMeta.ColumnIndex(leftColumn); err != nil {
		return
	}
	rightKey, err = rightMeta.ColumnIndex(rightColumn)
	return
}

func (db *GraceDB) executorContext() *execution.ExecutorContext {
	ctx := execution.NewExecutorContext(db.TableManager, db.config.NumBuffers)
	ctx.SetLogger(db.Logger)
	return ctx
}

// Join runs leftTable JOIN rightTable ON leftColumn = rightColumn with the Grace hash join and returns a cursor
// over the joined rows. Each row holds the left columns followed by the right columns.
func (db *GraceDB) Join(leftTable, rightTable, leftColumn, rightColumn string) (*execution.Cursor, error) {
	left, right, leftKey, rightKey, err := db.joinInputs(leftTable, rightTable, leftColumn, rightColumn)
	if err != nil {
		return nil, err
	}
	node, err := planner.PlanGraceHashJoin(left, right, leftKey, rightKey)
	if err != nil {
		return nil, err
	}
	return db.Execute(node)
}

// PlanJoin picks the cheapest join strategy for the configured page budget.
func (db *GraceDB) PlanJoin(leftTable, rightTable, leftColumn, rightColumn string) (planner.JoinNode, error) {
	left, right, leftKey, rightKey, err := db.joinInputs(leftTable, rightTable, leftColumn, rightColumn)
	if err != nil {
		return nil, err
	}
	return planner.PlanEquiJoin(left, right, leftKey, rightKey, db.config.NumBuffers)
}

// EstimateJoinCost returns the estimated page I/O of joining the two tables with the Grace hash join.
func (db *GraceDB) EstimateJoinCost(leftTable, rightTable, leftColumn, rightColumn string) (int, error) {
	left, right, leftKey, rightKey, err := db.joinInputs(leftTable, rightTable, leftColumn, rightColumn)
	if err != nil {
		return 0, err
	}
	node, err := planner.PlanGraceHashJoin(left, right, leftKey, rightKey)
	if err != nil {
		return 0, err
	}
	return node.EstimateIOCost(db.config.NumBuffers), nil
}

// Execute builds and initializes the executor tree for node.
func (db *GraceDB) Execute(node planner.PlanNode) (*execution.Cursor, error) {
	exec, err := execution.BuildExecutor(node, db.TableManager, db.config.JoinOptions)
	if err != nil {
		return nil, err
	}
	return execution.OpenCursor(exec, db.executorContext())
}

// NumBuffers returns the page budget granted to each join.
func (db *GraceDB) NumBuffers() int {
	return db.config.NumBuffers
}

// Close flushes dirty pages and releases file handles. Cursors must be closed first.
func (db *GraceDB) Close() error {
	if n := db.TableManager.NumTempTables(); n > 0 {
		db.Logger.Warn("closing with temporary tables still present", "count", n)
	}
	return errors.Join(db.BufferPool.FlushAllPages(), db.files.Close())
}
