package execution

import (
	"mit.edu/dsg/gracejoin/common"
	"mit.edu/dsg/gracejoin/storage"
)

// BucketTable maps every non-NULL left key of one partition to the left rows carrying it, in partition scan order.
type BucketTable struct {
	table   *ExecutionHashTable[[]storage.Tuple]
	numRows int
}

// Probe returns the left rows whose key equals key. NULL never matches.
func (bt *BucketTable) Probe(key common.Value) []storage.Tuple {
	if key.IsNull() {
		return nil
	}
	matches, _ := bt.table.Get(storage.FromValues(key))
	return matches
}

// NumKeys returns the number of distinct keys in the table.
func (bt *BucketTable) NumKeys() int {
	return bt.table.Len()
}

// NumRows returns the number of left rows held in memory.
func (bt *BucketTable) NumRows() int {
	return bt.numRows
}

// BucketBuilder loads the left side of a partition into a BucketTable.
type BucketBuilder struct {
	leftDesc  *storage.RawTupleDesc
	keySchema *storage.RawTupleDesc
	leftKey   int
}

func NewBucketBuilder(leftDesc *storage.RawTupleDesc, leftKey int) *BucketBuilder {
	return &BucketBuilder{
		leftDesc:  leftDesc,
		keySchema: storage.NewRawTupleDesc([]common.Type{leftDesc.GetFieldType(leftKey)}),
		leftKey:   leftKey,
	}
}

// Build scans the whole left partition of p and returns a fresh table over it. Rows with a NULL key are skipped.
func (b *BucketBuilder) Build(p *Partition) (*BucketTable, error) {
	bt := &BucketTable{table: NewExecutionHashTable[[]storage.Tuple](b.keySchema)}
	it := p.Left.Iterator(make([]byte, b.leftDesc.BytesPerTuple()))
	defer it.Close()

	for it.Next() {
		tuple := storage.FromRawTuple(it.CurrentTuple(), b.leftDesc, it.CurrentRID())
		key := tuple.GetValue(b.leftKey)
		if key.IsNull() {
			continue
		}
		keyTuple := storage.FromValues(key)
		existing, _ := bt.table.Get(keyTuple)
		bt.table.Insert(keyTuple, append(existing, tuple.DeepCopy(b.leftDesc)))
		bt.numRows++
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return bt, nil
}
