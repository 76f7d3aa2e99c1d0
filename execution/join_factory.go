package execution

import (
	"mit.edu/dsg/gracejoin/common"
	"mit.edu/dsg/gracejoin/planner"
)

// NewJoinExecutor instantiates the executor for a join plan over already built child executors.
func NewJoinExecutor(node planner.JoinNode, left, right Executor, options GraceHashJoinOptions) (Executor, error) {
	switch n := node.(type) {
	case *planner.GraceHashJoinNode:
		return NewGraceHashJoinExecutorWithOptions(n, left, right, options), nil
	case *planner.NestedLoopJoinNode:
		return NewBlockNestedLoopJoinExecutor(n, left, right), nil
	}
	return nil, common.NewGoDBError(common.UnsupportedOperationError, "no executor for join strategy %s", node.Strategy())
}

// BuildExecutor turns a plan tree of scans and joins into an executor tree. Scans are resolved against tables.
func BuildExecutor(node planner.PlanNode, tables *TableManager, options GraceHashJoinOptions) (Executor, error) {
	switch n := node.(type) {
	case *planner.SeqScanNode:
		heap, err := tables.GetTable(n.TableOid)
		if err != nil {
			return nil, err
		}
		return NewSeqScanExecutor(n, heap), nil
	case planner.JoinNode:
		children := n.Children()
		left, err := BuildExecutor(children[0], tables, options)
		if err != nil {
			return nil, err
		}
		right, err := BuildExecutor(children[1], tables, options)
		if err != nil {
			return nil, err
		}
		return NewJoinExecutor(n, left, right, options)
	}
	return nil, common.NewGoDBError(common.UnsupportedOperationError, "cannot execute plan node %s", node.String())
}
