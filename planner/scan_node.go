package planner

import (
	"fmt"

	"mit.edu/dsg/gracejoin/common"
)

// SeqScanNode represents a sequential scan over a table.
// It uses the TableOid to identify the target table.
type SeqScanNode struct {
	TableOid     common.ObjectID
	TableName    string
	stats        TableStats
	outputSchema []common.Type
}

func NewSeqScanNode(tableOid common.ObjectID, tableName string, outputSchema []common.Type, stats TableStats) *SeqScanNode {
	return &SeqScanNode{
		TableOid:     tableOid,
		TableName:    tableName,
		stats:        stats,
		outputSchema: outputSchema,
	}
}

func (n *SeqScanNode) OutputSchema() []common.Type {
	return n.outputSchema
}

func (n *SeqScanNode) Children() []PlanNode {
	return nil
}

// Stats returns the table statistics captured when the plan was built.
func (n *SeqScanNode) Stats() TableStats {
	return n.stats
}

func (n *SeqScanNode) String() string {
	if n.TableName != "" {
		return fmt.Sprintf("SeqScan: %s (oid %d, %d pages)", n.TableName, n.TableOid, n.stats.NumPages)
	}
	return fmt.Sprintf("SeqScan: TableOID(%d)", n.TableOid)
}
