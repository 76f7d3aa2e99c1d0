package main

import (
	"fmt"
	"math/rand"

	"github.com/spf13/cobra"
	"mit.edu/dsg/gracejoin"
	"mit.edu/dsg/gracejoin/catalog"
	"mit.edu/dsg/gracejoin/common"
	"mit.edu/dsg/gracejoin/execution"
	"mit.edu/dsg/gracejoin/logging"
)

const (
	leftTableName  = "left"
	rightTableName = "right"
	keyColumn      = "key"
)

var (
	NumBuffers        int
	PoolFrames        int
	LeftRows          int
	RightRows         int
	KeyCardinality    int
	Skew              float64
	Seed              int64
	StorageDir        string
	MaxRecursionDepth int
	LogLevel          string
	LogFormat         string
)

var rootCmd = &cobra.Command{
	Use:   "gracejoin",
	Short: "Run Grace hash joins over synthetic tables",
	Long: `gracejoin generates two tables of (key, payload) rows and joins them on key with
the Grace hash join, under a fixed budget of buffer pages.

Examples:
  gracejoin run --buffers 4 --left-rows 10000 --right-rows 5000
  gracejoin run --buffers 3 --keys 50 --skew 0.9 --log-level debug
  gracejoin explain --buffers 8 --dir /tmp/gj`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.IntVarP(&NumBuffers, "buffers", "b", 8, "Page budget B for the join")
	flags.IntVar(&PoolFrames, "pool-frames", 64, "Frames in the shared buffer pool")
	flags.IntVarP(&LeftRows, "left-rows", "l", 10000, "Rows generated for the left (build) table")
	flags.IntVarP(&RightRows, "right-rows", "r", 10000, "Rows generated for the right (probe) table")
	flags.IntVarP(&KeyCardinality, "keys", "k", 1000, "Number of distinct join keys")
	flags.Float64Var(&Skew, "skew", 0, "Fraction of left rows that share key 0")
	flags.Int64Var(&Seed, "seed", 1, "Random seed for data generation")
	flags.StringVarP(&StorageDir, "dir", "d", "", "Storage directory; empty keeps everything in memory")
	flags.IntVar(&MaxRecursionDepth, "max-depth", 0, "Recursion limit for oversized partitions (0 derives it, -1 disables)")
	flags.StringVar(&LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&LogFormat, "log-format", logging.FormatText, "Log format (text, json)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(explainCmd)
}

func validateFlags() error {
	switch {
	case LeftRows < 0 || RightRows < 0:
		return fmt.Errorf("row counts must not be negative")
	case KeyCardinality < 1:
		return fmt.Errorf("--keys must be at least 1, got %d", KeyCardinality)
	case Skew < 0 || Skew > 1:
		return fmt.Errorf("--skew must be within [0, 1], got %v", Skew)
	}
	return nil
}

// openDatabase opens the database described by the flags and fills both tables unless they already exist.
func openDatabase() (*gracejoin.GraceDB, error) {
	if err := validateFlags(); err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(LogLevel)
	if err != nil {
		return nil, err
	}
	db, err := gracejoin.Open(gracejoin.Config{
		StorageDir:     StorageDir,
		BufferPoolSize: PoolFrames,
		NumBuffers:     NumBuffers,
		JoinOptions:    execution.GraceHashJoinOptions{MaxRecursionDepth: MaxRecursionDepth},
		Log:            logging.Config{Level: level, Format: LogFormat},
	})
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(Seed))
	for _, spec := range []struct {
		name string
		rows int
		skew float64
	}{
		{leftTableName, LeftRows, Skew},
		{rightTableName, RightRows, 0},
	} {
		if err := generateTable(db, rng, spec.name, spec.rows, spec.skew); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func generateTable(db *gracejoin.GraceDB, rng *rand.Rand, name string, rows int, skew float64) error {
	if _, err := db.Catalog.GetTableMetadata(name); err == nil {
		logging.WithTable(db.Logger, name).Info("reusing existing table")
		return nil
	}
	_, err := db.CreateTable(name, []catalog.Column{
		{Name: keyColumn, Type: common.IntType},
		{Name: "payload", Type: common.StringType},
	})
	if err != nil {
		return err
	}

	const batch = 1024
	values := make([][]common.Value, 0, batch)
	for i := 0; i < rows; i++ {
		key := int64(0)
		if rng.Float64() >= skew {
			key = int64(rng.Intn(KeyCardinality))
		}
		values = append(values, []common.Value{
			common.NewIntValue(key),
			common.NewStringValue(fmt.Sprintf("%s-%d", name, i)),
		})
		if len(values) == batch {
			if err := db.Insert(name, values...); err != nil {
				return err
			}
			values = values[:0]
		}
	}
	if err := db.Insert(name, values...); err != nil {
		return err
	}
	logging.WithTable(db.Logger, name).Debug("generated table", "rows", rows, "skew", skew)
	return nil
}
