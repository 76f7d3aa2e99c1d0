package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mit.edu/dsg/gracejoin/common"
)

// Catalog holds the schema of the source tables and hands out ObjectIDs.
//
// Source tables are registered once and persisted as a single JSON blob through a PersistenceProvider.
// Temporary objects such as join partitions also draw their ObjectIDs from the catalog so that they can never
// collide with a table, but they are not recorded in it.
type Catalog struct {
	catalogState

	mu       sync.Mutex
	provider PersistenceProvider
	tableMap map[string]*Table
}

// Column represents the basic unit of a table schema.
type Column struct {
	Name string      `json:"name"`
	Type common.Type `json:"type"`
}

// Table groups the columns of a relation under a unique ObjectID.
type Table struct {
	Oid     common.ObjectID `json:"oid"`
	Name    string          `json:"name"`
	Columns []Column        `json:"columns"`
}

// PersistenceProvider abstracts how the catalog is saved and loaded. LoadCatalogState returns an error wrapping
// os.ErrNotExist when nothing has been saved yet.
type PersistenceProvider interface {
	LoadCatalogState() (json string, err error)
	SaveCatalogState(json string) error
}

func (t *Table) String() string {
	b, _ := json.MarshalIndent(t, "", "  ")
	return string(b)
}

// Types returns the column types in schema order.
func (t *Table) Types() []common.Type {
	types := make([]common.Type, len(t.Columns))
	for i, col := range t.Columns {
		types[i] = col.Type
	}
	return types
}

// ColumnIndex resolves a column name to its position in the schema.
func (t *Table) ColumnIndex(name string) (int, error) {
	for i, col := range t.Columns {
		if col.Name == name {
			return i, nil
		}
	}
	return -1, common.NewGoDBError(common.NoSuchObjectError, "column '%s' does not exist in table '%s'", name, t.Name)
}

type catalogState struct {
	NextId uint32   `json:"next_id"`
	Tables []*Table `json:"tables"`
}

func (c *Catalog) String() string {
	b, _ := json.MarshalIndent(&c.catalogState, "", "  ")
	return string(b)
}

func (c *Catalog) save() error {
	b, err := json.MarshalIndent(&c.catalogState, "", "  ")
	if err != nil {
		return err
	}
	return c.provider.SaveCatalogState(string(b))
}

// NewCatalog initializes a catalog, loading existing state from the provider if there is any.
func NewCatalog(provider PersistenceProvider) (*Catalog, error) {
	result := &Catalog{
		catalogState: catalogState{
			Tables: make([]*Table, 0),
		},
		provider: provider,
		tableMap: make(map[string]*Table),
	}

	jsonData, err := provider.LoadCatalogState()
	if errors.Is(err, os.ErrNotExist) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	if err = json.Unmarshal([]byte(jsonData), &result.catalogState); err != nil {
		// Parsing errors usually indicate corruption
		return nil, fmt.Errorf("failed to parse catalog state: %v", err)
	}
	for _, t := range result.Tables {
		result.tableMap[t.Name] = t
	}
	return result, nil
}

// AddTable registers a new table, assigns it a fresh ObjectID and persists the catalog. It returns
// DuplicateObjectError if the name is taken.
func (c *Catalog) AddTable(tableName string, columns []Column) (*Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tableMap[tableName]; exists {
		return nil, common.NewGoDBError(common.DuplicateObjectError, "table '%s' already exists", tableName)
	}
	seen := make(map[string]bool, len(columns))
	for _, col := range columns {
		if seen[col.Name] {
			return nil, common.NewGoDBError(common.DuplicateObjectError, "column '%s' appears twice in table '%s'",
				col.Name, tableName)
		}
		seen[col.Name] = true
	}

	t := &Table{
		Oid:     c.nextObjectID(),
		Name:    tableName,
		Columns: columns,
	}
	c.Tables = append(c.Tables, t)
	c.tableMap[tableName] = t
	return t, c.save()
}

// oid 0 is reserved for INVALID
func (c *Catalog) nextObjectID() common.ObjectID {
	c.NextId++
	return common.ObjectID(c.NextId)
}

// AllocateObjectID reserves an ObjectID for a temporary object. The reservation is not persisted; after a restart
// the same id may be handed out again, so callers must not expect a fresh id to map to an empty file.
func (c *Catalog) AllocateObjectID() common.ObjectID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextObjectID()
}

// GetTableMetadata fetches the schema for a specific table name.
func (c *Catalog) GetTableMetadata(tableName string) (*Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	table, exists := c.tableMap[tableName]
	if !exists {
		return nil, common.NewGoDBError(common.NoSuchObjectError, "table '%s' does not exist", tableName)
	}
	return table, nil
}

// ListTables returns every registered table in creation order.
func (c *Catalog) ListTables() []*Table {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Table(nil), c.Tables...)
}

const CatalogFileName = "catalog.json"

// DiskCatalogManager stores the catalog as a JSON file in a directory.
type DiskCatalogManager struct {
	rootPath string
}

func NewDiskCatalogManager(rootPath string) *DiskCatalogManager {
	return &DiskCatalogManager{
		rootPath: rootPath,
	}
}

// LoadCatalogState implements the catalog.PersistenceProvider interface.
func (dcm *DiskCatalogManager) LoadCatalogState() (string, error) {
	content, err := os.ReadFile(filepath.Join(dcm.rootPath, CatalogFileName))
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// SaveCatalogState implements the catalog.PersistenceProvider interface. The file is replaced atomically.
func (dcm *DiskCatalogManager) SaveCatalogState(jsonData string) error {
	tmpPath := filepath.Join(dcm.rootPath, CatalogFileName+".tmp")
	if err := os.WriteFile(tmpPath, []byte(jsonData), 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, filepath.Join(dcm.rootPath, CatalogFileName))
}

// MemoryCatalogManager keeps the serialized catalog in memory, for databases that live only as long as the
// process.
type MemoryCatalogManager struct {
	mu    sync.Mutex
	state *string
}

func NewMemoryCatalogManager() *MemoryCatalogManager {
	return &MemoryCatalogManager{}
}

// LoadCatalogState implements the catalog.PersistenceProvider interface.
func (m *MemoryCatalogManager) LoadCatalogState() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return "", fmt.Errorf("no catalog saved: %w", os.ErrNotExist)
	}
	return *m.state, nil
}

// SaveCatalogState implements the catalog.PersistenceProvider interface.
func (m *MemoryCatalogManager) SaveCatalogState(jsonData string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = &jsonData
	return nil
}
