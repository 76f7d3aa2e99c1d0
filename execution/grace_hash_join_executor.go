package execution

import (
	"errors"
	"log/slog"
	"math"

	"github.com/golang-collections/collections/stack"
	"github.com/notEpsilon/go-pair"
	"mit.edu/dsg/gracejoin/common"
	"mit.edu/dsg/gracejoin/logging"
	"mit.edu/dsg/gracejoin/planner"
	"mit.edu/dsg/gracejoin/storage"
)

// maxRecursionDepthLimit caps the derived recursion depth. planner.MaxPartitionPasses is this plus the first pass.
const maxRecursionDepthLimit = planner.MaxPartitionPasses - 1

const defaultMinSizeDecrease = 0.05

// GraceHashJoinOptions tunes how the join handles partitions that do not fit in memory. Zero values select the
// defaults.
type GraceHashJoinOptions struct {
	// MaxRecursionDepth is the number of times a partition may be split again. Zero derives it from the input size
	// and the page budget; a negative value disables repartitioning so that oversized partitions go straight to the
	// nested-loop fallback.
	MaxRecursionDepth int
	// MinSizeDecrease is the fraction by which a split must shrink a partition for it to be split again.
	MinSizeDecrease float64
}

// GraceHashJoinStats counts what happened during one execution.
type GraceHashJoinStats struct {
	InMemoryPartitions int
	Repartitioned      int
	Fallbacks          int
	MaxDepth           int
}

type joinState int

const (
	stateInitializing joinState = iota
	stateScanningRight
	stateEmittingMatches
	stateAdvancingPartition
	stateEmittingFallback
	stateExhausted
)

func (s joinState) String() string {
	switch s {
	case stateInitializing:
		return "Initializing"
	case stateScanningRight:
		return "ScanningRight"
	case stateEmittingMatches:
		return "EmittingMatches"
	case stateAdvancingPartition:
		return "AdvancingPartition"
	case stateEmittingFallback:
		return "EmittingFallback"
	case stateExhausted:
		return "Exhausted"
	}
	return "unknown"
}

// GraceHashJoinExecutor implements the Grace hash join.
//
// Init partitions both children into B-1 temporary partitions each by the hash of the join key. Next then visits
// the partition pairs one at a time: the left partition is loaded into a BucketTable and the right partition is
// streamed against it. A left partition too large for the B-2 pages left for the build side is split again with a
// different hash seed, or joined with a block nested loop join when splitting cannot help. Only one partition's
// build side is in memory at any time, and every partition is dropped as soon as it has been joined.
type GraceHashJoinExecutor struct {
	plan                            *planner.GraceHashJoinNode
	left, right                     Executor
	options                         GraceHashJoinOptions
	leftDesc, rightDesc, joinedDesc *storage.RawTupleDesc

	ctx         *ExecutorContext
	logger      *slog.Logger
	store       *PartitionStore
	partitioner *Partitioner
	builder     *BucketBuilder
	// partitions still to be joined; the top is joined next
	pending         *stack.Stack
	capacity        int
	splitFanout     int
	maxDepth        int
	minSizeDecrease float64
	stats           GraceHashJoinStats

	state       joinState
	current     *Partition
	buckets     *BucketTable
	rightScan   TableHeapIterator
	rightBuffer []byte
	rightTuple  storage.Tuple
	matches     []storage.Tuple
	matchIndex  int
	fallback    Executor

	joinedTupleBuffer storage.RawTuple
	err               error
}

// NewGraceHashJoinExecutor creates a GraceHashJoinExecutor with default options.
func NewGraceHashJoinExecutor(plan *planner.GraceHashJoinNode, left Executor, right Executor) *GraceHashJoinExecutor {
	return NewGraceHashJoinExecutorWithOptions(plan, left, right, GraceHashJoinOptions{})
}

func NewGraceHashJoinExecutorWithOptions(plan *planner.GraceHashJoinNode, left Executor, right Executor, options GraceHashJoinOptions) *GraceHashJoinExecutor {
	leftDesc := storage.NewRawTupleDesc(plan.Left.OutputSchema())
	rightDesc := storage.NewRawTupleDesc(plan.Right.OutputSchema())
	common.Assert(leftDesc.GetFieldType(plan.LeftKey) == rightDesc.GetFieldType(plan.RightKey), "join key types differ")
	return &GraceHashJoinExecutor{
		plan:       plan,
		left:       left,
		right:      right,
		options:    options,
		leftDesc:   leftDesc,
		rightDesc:  rightDesc,
		joinedDesc: storage.NewRawTupleDesc(plan.OutputSchema()),
	}
}

func (e *GraceHashJoinExecutor) PlanNode() planner.PlanNode {
	return e.plan
}

// Init drops the partitions of any earlier run, partitions both children and opens the first partition. A page
// budget below two fails with a ConfigurationError before any child is touched. On a storage error every partition created so far is dropped.
func (e *GraceHashJoinExecutor) Init(ctx *ExecutorContext) error {
	// Init restarts from scratch, even when the new budget is rejected
	if err := e.release(); err != nil {
		return err
	}
	numBuffers := ctx.NumBuffers()
	if numBuffers-1 < 1 {
		e.err = common.NewGoDBError(common.ConfigurationError,
			"grace hash join needs at least 2 buffers to form a partition, got %d", numBuffers)
		e.state = stateExhausted
		return e.err
	}

	e.ctx = ctx
	e.err = nil
	e.stats = GraceHashJoinStats{}
	e.state = stateInitializing
	e.store = NewPartitionStore(ctx.TableManager(), e.leftDesc.GetFieldTypes(), e.rightDesc.GetFieldTypes())
	e.logger = logging.WithJoin(ctx.Logger(), e.store.Prefix())
	e.partitioner = NewPartitioner(e.store, e.leftDesc, e.rightDesc, e.plan.LeftKey, e.plan.RightKey)
	e.builder = NewBucketBuilder(e.leftDesc, e.plan.LeftKey)
	e.pending = stack.New()
	e.capacity = max(numBuffers-2, 1) * storage.HeapPageCapacity(e.leftDesc)
	e.splitFanout = max(numBuffers-1, 2)
	e.minSizeDecrease = e.options.MinSizeDecrease
	if e.minSizeDecrease <= 0 {
		e.minSizeDecrease = defaultMinSizeDecrease
	}
	e.rightBuffer = make([]byte, e.rightDesc.BytesPerTuple())
	e.joinedTupleBuffer = make([]byte, e.joinedDesc.BytesPerTuple())

	partitions, err := e.partitioner.Partition(ctx, e.left, e.right, nil, numBuffers-1, 0)
	if err != nil {
		return e.abort(err)
	}

	totalLeft := 0
	for _, p := range partitions {
		totalLeft += p.LeftRows
	}
	switch {
	case e.options.MaxRecursionDepth < 0:
		e.maxDepth = 0
	case e.options.MaxRecursionDepth > 0:
		e.maxDepth = e.options.MaxRecursionDepth
	default:
		e.maxDepth = defaultMaxRecursionDepth(totalLeft, e.capacity, e.splitFanout)
	}
	e.logger.Debug("partitioned join inputs",
		"partitions", len(partitions), "left_rows", totalLeft, "capacity", e.capacity, "max_depth", e.maxDepth)

	e.pushAll(partitions)
	if err := e.advance(); err != nil {
		return e.abort(err)
	}
	return nil
}

// defaultMaxRecursionDepth allows enough levels for uniformly hashed input to fit, plus one for unlucky splits.
func defaultMaxRecursionDepth(totalLeftRows, capacity, fanout int) int {
	if totalLeftRows <= capacity {
		return 1
	}
	levels := math.Ceil(math.Log(float64(totalLeftRows)/float64(capacity)) / math.Log(float64(fanout)))
	return min(max(int(levels)+1, 1), maxRecursionDepthLimit)
}

// pushAll pushes partitions so that the lowest index is joined first.
func (e *GraceHashJoinExecutor) pushAll(partitions []*Partition) {
	for i := len(partitions) - 1; i >= 0; i-- {
		e.pending.Push(partitions[i])
	}
}

// advance drops the current partition and opens the next one that can produce output, moving to Exhausted when
// none is left.
func (e *GraceHashJoinExecutor) advance() error {
	for {
		if err := e.closeCurrent(); err != nil {
			return err
		}
		if e.pending.Len() == 0 {
			e.state = stateExhausted
			e.logger.Debug("join exhausted", "repartitioned", e.stats.Repartitioned, "fallbacks", e.stats.Fallbacks)
			return e.store.ReleaseAll()
		}

		p := e.pending.Pop().(*Partition)
		e.current = p
		e.stats.MaxDepth = max(e.stats.MaxDepth, p.Depth)
		if p.LeftRows == 0 || p.RightRows == 0 {
			continue
		}

		switch {
		case p.LeftRows <= e.capacity:
			return e.openInMemory(p)
		case e.shouldRepartition(p):
			if err := e.repartition(p); err != nil {
				return err
			}
		default:
			return e.openFallback(p)
		}
	}
}

func (e *GraceHashJoinExecutor) shouldRepartition(p *Partition) bool {
	if p.Depth >= e.maxDepth || p.SingleKey {
		return false
	}
	if p.ParentLeftRows == 0 {
		return true
	}
	decrease := float64(p.ParentLeftRows-p.LeftRows) / float64(p.ParentLeftRows)
	return decrease >= e.minSizeDecrease
}

func (e *GraceHashJoinExecutor) openInMemory(p *Partition) error {
	buckets, err := e.builder.Build(p)
	if err != nil {
		return err
	}
	e.logger.Debug("joining partition in memory",
		"partition", p.Path, "left_rows", p.LeftRows, "right_rows", p.RightRows, "keys", buckets.NumKeys())
	e.stats.InMemoryPartitions++
	e.buckets = buckets
	e.rightScan = p.Right.Iterator(e.rightBuffer)
	e.matches, e.matchIndex = nil, 0
	e.state = stateScanningRight
	return nil
}

func scanOf(heap *TableHeap, name string) *SeqScanExecutor {
	node := planner.NewSeqScanNode(heap.Oid(), name, heap.StorageSchema().GetFieldTypes(), heap.Stats())
	return NewSeqScanExecutor(node, heap)
}

// repartition splits p with the seed of the next level and queues the children in its place.
func (e *GraceHashJoinExecutor) repartition(p *Partition) error {
	e.logger.Info("partition exceeds memory, splitting again",
		"partition", p.Path, "depth", p.Depth, "left_rows", p.LeftRows, "capacity", e.capacity)
	leftScan, rightScan := scanOf(p.Left, p.leftName), scanOf(p.Right, p.rightName)
	children, err := e.partitioner.Partition(e.ctx, leftScan, rightScan, p, e.splitFanout, uint32(p.Depth+1))
	err = errors.Join(err, leftScan.Close(), rightScan.Close())
	if err != nil {
		return err
	}
	e.stats.Repartitioned++
	e.pushAll(children)
	return nil
}

func (e *GraceHashJoinExecutor) openFallback(p *Partition) error {
	e.logger.Info("partition cannot be split further, using nested loop join",
		"partition", p.Path, "depth", p.Depth, "left_rows", p.LeftRows, "right_rows", p.RightRows,
		"single_key", p.SingleKey)
	leftScan, rightScan := scanOf(p.Left, p.leftName), scanOf(p.Right, p.rightName)
	node := planner.NewBlockNestedLoopJoinNode(leftScan.PlanNode(), rightScan.PlanNode(),
		planner.NewEquiJoinPredicate(e.leftDesc.GetFieldTypes(), e.rightDesc.GetFieldTypes(), e.plan.LeftKey, e.plan.RightKey))
	fallback := NewBlockNestedLoopJoinExecutor(node, leftScan, rightScan)
	e.fallback = fallback
	if err := fallback.Init(e.ctx); err != nil {
		return err
	}
	e.stats.Fallbacks++
	e.state = stateEmittingFallback
	return nil
}

// closeCurrent discards the in-memory state of the current partition and drops its temp tables.
func (e *GraceHashJoinExecutor) closeCurrent() error {
	var errs []error
	if !e.rightScan.IsNil() {
		errs = append(errs, e.rightScan.Close())
		e.rightScan = TableHeapIterator{}
	}
	if e.fallback != nil {
		errs = append(errs, e.fallback.Close())
		e.fallback = nil
	}
	e.buckets = nil
	e.matches = nil
	if e.current != nil {
		errs = append(errs, e.store.Release(e.current))
		e.current = nil
	}
	return errors.Join(errs...)
}

// release drops every partition the executor still holds.
func (e *GraceHashJoinExecutor) release() error {
	if e.store == nil {
		return nil
	}
	err := errors.Join(e.closeCurrent(), e.store.ReleaseAll())
	e.pending = stack.New()
	return err
}

// abort records err, drops all partitions and moves to Exhausted.
func (e *GraceHashJoinExecutor) abort(err error) error {
	e.err = err
	e.state = stateExhausted
	if releaseErr := e.release(); releaseErr != nil {
		e.logger.Warn("failed to drop partitions after error", "error", releaseErr)
	}
	return err
}

func (e *GraceHashJoinExecutor) Next() bool {
	if e.err != nil {
		return false
	}
	for {
		switch e.state {
		case stateScanningRight:
			if !e.rightScan.Next() {
				if err := e.rightScan.Error(); err != nil {
					e.abort(err)
					return false
				}
				e.state = stateAdvancingPartition
				continue
			}
			e.rightTuple = storage.FromRawTuple(e.rightScan.CurrentTuple(), e.rightDesc, e.rightScan.CurrentRID())
			matches := e.buckets.Probe(e.rightTuple.GetValue(e.plan.RightKey))
			if len(matches) == 0 {
				continue
			}
			e.matches, e.matchIndex = matches, 0
			e.state = stateEmittingMatches

		case stateEmittingMatches:
			if e.matchIndex == len(e.matches) {
				e.state = stateScanningRight
				continue
			}
			storage.MergeTuples(e.joinedTupleBuffer, e.joinedDesc, e.matches[e.matchIndex], e.rightTuple)
			e.matchIndex++
			return true

		case stateEmittingFallback:
			if e.fallback.Next() {
				t := e.fallback.Current()
				t.WriteToBuffer(e.joinedTupleBuffer, e.joinedDesc)
				return true
			}
			if err := e.fallback.Error(); err != nil {
				e.abort(err)
				return false
			}
			e.state = stateAdvancingPartition

		case stateAdvancingPartition:
			if err := e.advance(); err != nil {
				e.abort(err)
				return false
			}

		case stateExhausted:
			return false

		default:
			common.Assert(false, "GraceHashJoinExecutor.Init() must be called before calling Next()")
		}
	}
}

func (e *GraceHashJoinExecutor) Current() storage.Tuple {
	return storage.FromRawTuple(e.joinedTupleBuffer, e.joinedDesc, common.RecordID{})
}

func (e *GraceHashJoinExecutor) Error() error {
	return e.err
}

// Close drops every partition still held and closes both children. It is safe to call at any point, including
// before Init and after exhaustion.
func (e *GraceHashJoinExecutor) Close() error {
	err := e.release()
	e.state = stateExhausted
	return errors.Join(err, e.right.Close(), e.left.Close())
}

// PartitionSizes returns the (left rows, right rows) of each first-level partition.
func (e *GraceHashJoinExecutor) PartitionSizes() []pair.Pair[int, int] {
	if e.store == nil {
		return nil
	}
	return e.store.Sizes()
}

// Stats reports how partitions were joined so far.
func (e *GraceHashJoinExecutor) Stats() GraceHashJoinStats {
	return e.stats
}

// NumLivePartitions returns the number of temp tables the executor currently holds.
func (e *GraceHashJoinExecutor) NumLivePartitions() int {
	if e.store == nil {
		return 0
	}
	return e.store.NumLive()
}
