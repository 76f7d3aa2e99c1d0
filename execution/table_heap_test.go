package execution

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mit.edu/dsg/gracejoin/common"
	"mit.edu/dsg/gracejoin/storage"
)

var idNameTypes = []common.Type{common.IntType, common.StringType}

func makeTestDeps(t *testing.T) (*storage.BufferPool, *TableHeap) {
	sm := storage.NewDiskStorageManager(t.TempDir())
	bp := storage.NewBufferPool(10, sm)
	th, err := NewTableHeap(100, idNameTypes, bp)
	require.NoError(t, err)
	return bp, th
}

func insertIDName(t *testing.T, th *TableHeap, i int) common.RecordID {
	desc := th.StorageSchema()
	tup := storage.FromValues(common.NewIntValue(int64(i)), common.NewStringValue(fmt.Sprintf("val-%d", i)))
	raw := make([]byte, desc.BytesPerTuple())
	tup.WriteToBuffer(raw, desc)
	rid, err := th.InsertTuple(raw)
	require.NoError(t, err)
	return rid
}

// TestTableHeap_AppendAndScan inserts enough rows to span several pages and checks that the iterator returns them
// in insertion order.
func TestTableHeap_AppendAndScan(t *testing.T) {
	_, th := makeTestDeps(t)
	desc := th.StorageSchema()
	assert.Equal(t, 1, th.NumPages(), "a new heap starts with one page")

	numTuples := 500
	rids := make([]common.RecordID, numTuples)
	for i := 0; i < numTuples; i++ {
		rids[i] = insertIDName(t, th, i)
	}
	perPage := storage.HeapPageCapacity(desc)
	assert.Equal(t, (numTuples+perPage-1)/perPage, th.NumPages())
	assert.Equal(t, numTuples, th.NumTuples())
	assert.Equal(t, th.NumPages(), th.Stats().NumPages)
	assert.Equal(t, numTuples, th.Stats().NumTuples)

	iter := th.Iterator(make([]byte, desc.BytesPerTuple()))
	count := 0
	for iter.Next() {
		curr := storage.FromRawTuple(iter.CurrentTuple(), desc, iter.CurrentRID())
		assert.Equal(t, rids[count], iter.CurrentRID())
		assert.Equal(t, int64(count), curr.GetValue(0).IntValue())
		assert.Equal(t, fmt.Sprintf("val-%d", count), curr.GetValue(1).StringValue())
		count++
	}
	require.NoError(t, iter.Error())
	require.NoError(t, iter.Close())
	assert.Equal(t, numTuples, count)
}

func TestTableHeap_EmptyScan(t *testing.T) {
	_, th := makeTestDeps(t)
	iter := th.Iterator(make([]byte, th.StorageSchema().BytesPerTuple()))
	assert.False(t, iter.Next())
	require.NoError(t, iter.Error())
	require.NoError(t, iter.Close())

	var zero TableHeapIterator
	assert.True(t, zero.IsNil())
}

// TestTableHeap_Reopen checks that a heap file written through one buffer pool is fully readable after reopening.
func TestTableHeap_Reopen(t *testing.T) {
	dir := t.TempDir()
	sm := storage.NewDiskStorageManager(dir)
	bp := storage.NewBufferPool(10, sm)
	th, err := NewTableHeap(7, idNameTypes, bp)
	require.NoError(t, err)
	for i := 0; i < 300; i++ {
		insertIDName(t, th, i)
	}
	require.NoError(t, bp.FlushAllPages())
	require.NoError(t, sm.Close())

	sm2 := storage.NewDiskStorageManager(dir)
	defer sm2.Close()
	bp2 := storage.NewBufferPool(10, sm2)
	reopened, err := NewTableHeap(7, idNameTypes, bp2)
	require.NoError(t, err)
	assert.Equal(t, th.NumPages(), reopened.NumPages())
	assert.Equal(t, 300, reopened.NumTuples())

	// Appending continues after the last row
	insertIDName(t, reopened, 300)
	iter := reopened.Iterator(make([]byte, reopened.StorageSchema().BytesPerTuple()))
	count := 0
	for iter.Next() {
		tup := storage.FromRawTuple(iter.CurrentTuple(), reopened.StorageSchema(), iter.CurrentRID())
		assert.Equal(t, int64(count), tup.GetValue(0).IntValue())
		count++
	}
	require.NoError(t, iter.Close())
	assert.Equal(t, 301, count)
}

// TestTableHeap_ConcurrentInserts verifies that racing appenders never lose a row or extend the file twice.
func TestTableHeap_ConcurrentInserts(t *testing.T) {
	bp := storage.NewBufferPool(16, storage.NewMemStorageManager(0))
	th, err := NewTableHeap(1, idNameTypes, bp)
	require.NoError(t, err)

	const workers, perWorker = 8, 250
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			desc := th.StorageSchema()
			raw := make([]byte, desc.BytesPerTuple())
			for i := 0; i < perWorker; i++ {
				tup := storage.FromValues(common.NewIntValue(int64(w*perWorker+i)), common.NewStringValue("x"))
				tup.WriteToBuffer(raw, desc)
				if _, err := th.InsertTuple(raw); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	iter := th.Iterator(make([]byte, th.StorageSchema().BytesPerTuple()))
	for iter.Next() {
		tup := storage.FromRawTuple(iter.CurrentTuple(), th.StorageSchema(), iter.CurrentRID())
		id := tup.GetValue(0).IntValue()
		assert.False(t, seen[id], "row %d returned twice", id)
		seen[id] = true
	}
	require.NoError(t, iter.Close())
	assert.Len(t, seen, workers*perWorker)
	assert.Equal(t, workers*perWorker, th.NumTuples())
	perPage := storage.HeapPageCapacity(th.StorageSchema())
	assert.Equal(t, (workers*perWorker+perPage-1)/perPage, th.NumPages())
}

func TestTableHeap_StorageExhaustion(t *testing.T) {
	bp := storage.NewBufferPool(8, storage.NewMemStorageManager(2))
	th, err := NewTableHeap(1, idNameTypes, bp)
	require.NoError(t, err)

	desc := th.StorageSchema()
	raw := make([]byte, desc.BytesPerTuple())
	perPage := storage.HeapPageCapacity(desc)
	for i := 0; i < 2*perPage; i++ {
		_, err := th.InsertTuple(raw)
		require.NoError(t, err)
	}
	_, err = th.InsertTuple(raw)
	assert.True(t, common.IsErrorCode(err, common.StorageError), "got %v", err)
	assert.Equal(t, 2*perPage, th.NumTuples())
}
