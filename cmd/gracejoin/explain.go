package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"mit.edu/dsg/gracejoin/planner"
)

var explainCmd = &cobra.Command{
	Use:   "explain",
	Short: "Show the chosen join plan and its cost",
	Long: `Generate both tables and print the join plan the planner picks for the page
budget, together with the estimated I/O cost of every strategy.`,
	Args: cobra.NoArgs,
	RunE: runExplain,
}

func runExplain(cmd *cobra.Command, args []string) (err error) {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); err == nil {
			err = closeErr
		}
	}()

	node, err := db.PlanJoin(leftTableName, rightTableName, keyColumn, keyColumn)
	if err != nil {
		return err
	}
	left, right := planner.StatsOf(node.Children()[0]), planner.StatsOf(node.Children()[1])

	out := cmd.OutOrStdout()
	fmt.Fprint(out, planner.Explain(node))
	fmt.Fprintf(out, "\nleft: %d rows in %d pages, right: %d rows in %d pages, buffers: %d\n",
		left.NumTuples, left.NumPages, right.NumTuples, right.NumPages, NumBuffers)
	fmt.Fprintf(out, "%-24s %d\n", "GraceHashJoin", planner.GraceHashJoinIOCostWithRecursion(left.NumPages, right.NumPages, NumBuffers))
	fmt.Fprintf(out, "%-24s %d\n", "GraceHashJoin (1 pass)", planner.GraceHashJoinIOCost(left.NumPages, right.NumPages))
	fmt.Fprintf(out, "%-24s %d\n", "BlockNestedLoopJoin", planner.BlockNestedLoopJoinIOCost(left.NumPages, right.NumPages, NumBuffers))
	fmt.Fprintf(out, "chosen: %s\n", node.Strategy())
	return nil
}
