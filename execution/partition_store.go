package execution

import (
	"errors"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/notEpsilon/go-pair"
	"mit.edu/dsg/gracejoin/common"
)

// Partition is one pair of matching left and right partitions. Path names the partition by its index at every
// partitioning level, e.g. "2" at the first level and "2.0" for the first child of partition 2.
type Partition struct {
	Path  string
	Depth int
	Left  *TableHeap
	Right *TableHeap

	LeftRows  int
	RightRows int
	// ParentLeftRows is the left size of the partition this one was split from, 0 at the first level.
	ParentLeftRows int
	// SingleKey is true when every left row carries the same key.
	SingleKey bool

	leftName, rightName string
}

// PartitionStore owns the temporary tables holding the partitions of one join. Every partition it creates is
// tracked until released; ReleaseAll drops whatever is left, including tables whose creation half-failed.
type PartitionStore struct {
	tables     *TableManager
	prefix     string
	leftTypes  []common.Type
	rightTypes []common.Type

	live mapset.Set[string]
	// first-level partitions in index order, kept after release for reporting
	top []*Partition
}

// NewPartitionStore creates an empty store whose temp tables are all named under a fresh prefix.
func NewPartitionStore(tables *TableManager, leftTypes, rightTypes []common.Type) *PartitionStore {
	return &PartitionStore{
		tables:     tables,
		prefix:     tables.NewTempPrefix(),
		leftTypes:  leftTypes,
		rightTypes: rightTypes,
		live:       mapset.NewThreadUnsafeSet[string](),
	}
}

// Prefix returns the name prefix shared by every temp table of this store.
func (ps *PartitionStore) Prefix() string {
	return ps.prefix
}

// Create makes the empty left and right temp tables of a partition.
func (ps *PartitionStore) Create(path string, depth int) (*Partition, error) {
	p := &Partition{
		Path:      path,
		Depth:     depth,
		leftName:  ps.prefix + "left/" + path,
		rightName: ps.prefix + "right/" + path,
	}
	var err error
	if p.Left, err = ps.tables.CreateTempTable(p.leftName, ps.leftTypes); err != nil {
		return nil, err
	}
	ps.live.Add(p.leftName)
	if p.Right, err = ps.tables.CreateTempTable(p.rightName, ps.rightTypes); err != nil {
		return nil, err
	}
	ps.live.Add(p.rightName)
	if depth == 0 {
		ps.top = append(ps.top, p)
	}
	return p, nil
}

// Release drops both temp tables of a partition. Releasing twice is a no-op.
func (ps *PartitionStore) Release(p *Partition) error {
	var errs []error
	for _, name := range []string{p.leftName, p.rightName} {
		if !ps.live.Contains(name) {
			continue
		}
		ps.live.Remove(name)
		errs = append(errs, ps.tables.DropTempTable(name))
	}
	return errors.Join(errs...)
}

// ReleaseAll drops every temp table the store still holds.
func (ps *PartitionStore) ReleaseAll() error {
	var errs []error
	for _, name := range ps.live.ToSlice() {
		errs = append(errs, ps.tables.DropTempTable(name))
	}
	ps.live.Clear()
	// Anything created under the prefix but never tracked
	_, err := ps.tables.DropTempTables(ps.prefix)
	errs = append(errs, err)
	return errors.Join(errs...)
}

// NumLive returns the number of temp tables currently held.
func (ps *PartitionStore) NumLive() int {
	return ps.live.Cardinality()
}

// Sizes returns the (left rows, right rows) of every first-level partition in index order.
func (ps *PartitionStore) Sizes() []pair.Pair[int, int] {
	sizes := make([]pair.Pair[int, int], len(ps.top))
	for i, p := range ps.top {
		sizes[i] = pair.Pair[int, int]{First: p.LeftRows, Second: p.RightRows}
	}
	return sizes
}
