package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"mit.edu/dsg/gracejoin/execution"
)

var PrintRows int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate both tables and join them",
	Long: `Generate both tables, join them on key with the Grace hash join and report the
number of joined rows, the size of every first-level partition and the estimated I/O cost.`,
	Args: cobra.NoArgs,
	RunE: runJoin,
}

func init() {
	runCmd.Flags().IntVarP(&PrintRows, "print", "n", 0, "Print the first n joined rows")
}

func runJoin(cmd *cobra.Command, args []string) (err error) {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); err == nil {
			err = closeErr
		}
	}()

	cost, err := db.EstimateJoinCost(leftTableName, rightTableName, keyColumn, keyColumn)
	if err != nil {
		return err
	}

	start := time.Now()
	cursor, err := db.Join(leftTableName, rightTableName, keyColumn, keyColumn)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := cursor.Close(); err == nil {
			err = closeErr
		}
	}()

	out := cmd.OutOrStdout()
	count := 0
	for cursor.HasNext() {
		row, err := cursor.Next()
		if err != nil {
			return err
		}
		if count < PrintRows {
			fmt.Fprintln(out, row.String())
		}
		count++
	}
	if err := cursor.Err(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	fmt.Fprintf(out, "Joined rows: %d\n", count)
	fmt.Fprintf(out, "Buffers: %d\n", NumBuffers)
	fmt.Fprintf(out, "Estimated I/O cost: %d pages\n", cost)
	fmt.Fprintf(out, "Elapsed: %s\n", elapsed)

	join, ok := cursor.Executor().(*execution.GraceHashJoinExecutor)
	if !ok {
		return nil
	}
	stats := join.Stats()
	fmt.Fprintf(out, "Partitions joined in memory: %d, split again: %d, nested loop fallbacks: %d, max depth: %d\n",
		stats.InMemoryPartitions, stats.Repartitioned, stats.Fallbacks, stats.MaxDepth)
	fmt.Fprintf(out, "\nPartitions:\n")
	for i, size := range join.PartitionSizes() {
		fmt.Fprintf(out, "  %3d: left %d, right %d\n", i, size.First, size.Second)
	}
	return nil
}
