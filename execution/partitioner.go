package execution

import (
	"bytes"
	"strconv"

	"mit.edu/dsg/gracejoin/common"
	"mit.edu/dsg/gracejoin/storage"
)

// PartitionIndex returns the partition of key among fanout partitions at the partitioning level that uses seed.
// keyBuffer is scratch space of at least key.SizeInBytes() bytes.
func PartitionIndex(key common.Value, keyBuffer []byte, seed uint32, fanout int) int {
	return common.Bucket(common.SeededHash(key.KeyBytes(keyBuffer), seed), fanout)
}

// Partitioner routes the rows of both join inputs into disk-resident partitions by the hash of their join key.
// Equal keys always land in the partition with the same index on both sides.
type Partitioner struct {
	store               *PartitionStore
	leftDesc, rightDesc *storage.RawTupleDesc
	leftKey, rightKey   int

	keyBuffer []byte
	rowBuffer []byte
}

func NewPartitioner(store *PartitionStore, leftDesc, rightDesc *storage.RawTupleDesc, leftKey, rightKey int) *Partitioner {
	return &Partitioner{
		store:     store,
		leftDesc:  leftDesc,
		rightDesc: rightDesc,
		leftKey:   leftKey,
		rightKey:  rightKey,
		keyBuffer: make([]byte, leftDesc.GetFieldType(leftKey).Size()),
		rowBuffer: make([]byte, max(leftDesc.BytesPerTuple(), rightDesc.BytesPerTuple())),
	}
}

// singleKeyTracker remembers the first key seen and whether any other key followed it.
type singleKeyTracker struct {
	first []byte
	mixed bool
}

func (t *singleKeyTracker) observe(key []byte) {
	switch {
	case t.mixed:
	case t.first == nil:
		t.first = append([]byte{}, key...)
	case !bytes.Equal(t.first, key):
		t.mixed = true
	}
}

// Partition creates fanout partitions under parent and drains left, then right, into them. Both inputs are
// initialized here; closing them is left to the caller. The parent's left size is recorded on every child so that
// the caller can tell whether splitting made progress.
//
// Any storage failure aborts the pass. Partitions created so far stay registered with the store, which is
// responsible for dropping them.
func (p *Partitioner) Partition(ctx *ExecutorContext, left, right Executor, parent *Partition, fanout int, seed uint32) ([]*Partition, error) {
	common.Assert(fanout >= 1, "fanout must be at least 1, got %d", fanout)
	depth, parentLeftRows := 0, 0
	if parent != nil {
		depth, parentLeftRows = parent.Depth+1, parent.LeftRows
	}

	partitions := make([]*Partition, fanout)
	for i := range partitions {
		path := strconv.Itoa(i)
		if parent != nil {
			path = parent.Path + "." + path
		}
		part, err := p.store.Create(path, depth)
		if err != nil {
			return nil, err
		}
		part.ParentLeftRows = parentLeftRows
		partitions[i] = part
	}

	trackers := make([]singleKeyTracker, fanout)
	err := p.drain(ctx, left, p.leftDesc, p.leftKey, seed, fanout, func(idx int, row storage.RawTuple) error {
		part := partitions[idx]
		if _, err := part.Left.InsertTuple(row); err != nil {
			return err
		}
		part.LeftRows++
		trackers[idx].observe(p.keyBuffer)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = p.drain(ctx, right, p.rightDesc, p.rightKey, seed, fanout, func(idx int, row storage.RawTuple) error {
		part := partitions[idx]
		if _, err := part.Right.InsertTuple(row); err != nil {
			return err
		}
		part.RightRows++
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, part := range partitions {
		part.SingleKey = part.LeftRows > 0 && !trackers[i].mixed
	}
	return partitions, nil
}

// drain reads every row of input and hands it, serialized in desc's layout, to sink together with its partition
// index. The key of the row is left in keyBuffer for the duration of the call.
func (p *Partitioner) drain(ctx *ExecutorContext, input Executor, desc *storage.RawTupleDesc, keyCol int, seed uint32,
	fanout int, sink func(idx int, row storage.RawTuple) error) error {
	if err := input.Init(ctx); err != nil {
		return err
	}
	row := p.rowBuffer[:desc.BytesPerTuple()]
	for input.Next() {
		t := input.Current()
		idx := PartitionIndex(t.GetValue(keyCol), p.keyBuffer, seed, fanout)
		t.WriteToBuffer(row, desc)
		if err := sink(idx, row); err != nil {
			return err
		}
	}
	return input.Error()
}
