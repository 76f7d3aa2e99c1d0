package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/gracejoin/common"
)

var testColumns = []Column{{Name: "id", Type: common.IntType}, {Name: "name", Type: common.StringType}}

func TestCatalogAddAndLookup(t *testing.T) {
	c, err := NewCatalog(NewMemoryCatalogManager())
	require.NoError(t, err)

	left, err := c.AddTable("left", testColumns)
	require.NoError(t, err)
	right, err := c.AddTable("right", testColumns)
	require.NoError(t, err)
	assert.NotEqual(t, common.InvalidObjectID, left.Oid)
	assert.NotEqual(t, left.Oid, right.Oid)

	got, err := c.GetTableMetadata("right")
	require.NoError(t, err)
	assert.Same(t, right, got)
	assert.Equal(t, []common.Type{common.IntType, common.StringType}, got.Types())

	idx, err := got.ColumnIndex("name")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = got.ColumnIndex("missing")
	assert.True(t, common.IsErrorCode(err, common.NoSuchObjectError))
	_, err = c.GetTableMetadata("missing")
	assert.True(t, common.IsErrorCode(err, common.NoSuchObjectError))

	assert.Len(t, c.ListTables(), 2)
}

func TestCatalogDuplicates(t *testing.T) {
	c, err := NewCatalog(NewMemoryCatalogManager())
	require.NoError(t, err)

	_, err = c.AddTable("t", testColumns)
	require.NoError(t, err)
	_, err = c.AddTable("t", testColumns)
	assert.True(t, common.IsErrorCode(err, common.DuplicateObjectError))

	_, err = c.AddTable("u", []Column{{Name: "a", Type: common.IntType}, {Name: "a", Type: common.IntType}})
	assert.True(t, common.IsErrorCode(err, common.DuplicateObjectError))
}

func TestCatalogAllocateObjectID(t *testing.T) {
	c, err := NewCatalog(NewMemoryCatalogManager())
	require.NoError(t, err)

	table, err := c.AddTable("t", testColumns)
	require.NoError(t, err)
	seen := map[common.ObjectID]bool{table.Oid: true}
	for i := 0; i < 100; i++ {
		oid := c.AllocateObjectID()
		assert.False(t, seen[oid], "oid %d handed out twice", oid)
		seen[oid] = true
	}
}

func TestCatalogPersistence(t *testing.T) {
	providers := map[string]PersistenceProvider{
		"disk":   NewDiskCatalogManager(t.TempDir()),
		"memory": NewMemoryCatalogManager(),
	}
	for name, provider := range providers {
		t.Run(name, func(t *testing.T) {
			c, err := NewCatalog(provider)
			require.NoError(t, err)
			created, err := c.AddTable("orders", testColumns)
			require.NoError(t, err)

			reloaded, err := NewCatalog(provider)
			require.NoError(t, err)
			table, err := reloaded.GetTableMetadata("orders")
			require.NoError(t, err)
			assert.Equal(t, created.Oid, table.Oid)
			assert.Equal(t, testColumns, table.Columns)

			// Ids keep increasing after a reload
			next, err := reloaded.AddTable("customers", testColumns)
			require.NoError(t, err)
			assert.Greater(t, next.Oid, created.Oid)
		})
	}
}
