package planner

import (
	"strings"

	"mit.edu/dsg/gracejoin/common"
)

// PlanNode represents the static structure of a query plan.
// It is immutable and contains schema information and the plan tree structure.
type PlanNode interface {
	// OutputSchema returns the schema of the tuples produced by this node.
	OutputSchema() []common.Type

	// Children returns the child plan nodes.
	Children() []PlanNode

	// String returns a string representation of the plan node.
	String() string
}

// TableStats are the size statistics the cost formulas consume.
type TableStats struct {
	NumPages  int
	NumTuples int
}

// StatsProvider is implemented by plan nodes whose output size is known up front.
type StatsProvider interface {
	Stats() TableStats
}

// StatsOf returns the statistics of node, or zero stats if the node does not know its size.
func StatsOf(node PlanNode) TableStats {
	if p, ok := node.(StatsProvider); ok {
		return p.Stats()
	}
	return TableStats{}
}

// Explain renders a plan tree, one node per line, children indented under their parent.
func Explain(node PlanNode) string {
	var sb strings.Builder
	var walk func(n PlanNode, depth int)
	walk = func(n PlanNode, depth int) {
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(n.String())
		sb.WriteByte('\n')
		for _, child := range n.Children() {
			walk(child, depth+1)
		}
	}
	walk(node, 0)
	return sb.String()
}
