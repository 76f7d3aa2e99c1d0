package main

import (
	"bytes"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// resetFlags restores flag defaults, which cobra keeps between Execute calls.
func resetFlags(t *testing.T) {
	reset := func(f *pflag.Flag) {
		require.NoError(t, f.Value.Set(f.DefValue))
		f.Changed = false
	}
	rootCmd.PersistentFlags().VisitAll(reset)
	runCmd.Flags().VisitAll(reset)
}

func execute(t *testing.T, args ...string) (string, error) {
	resetFlags(t)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRun(t *testing.T) {
	// A single key puts every row in one partition that is too large to build and cannot be split
	out, err := execute(t, "run", "--buffers", "3", "--left-rows", "300", "--right-rows", "200", "--keys", "1", "--print", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Joined rows: 60000")
	assert.Contains(t, out, "Partitions:")
	assert.Regexp(t, `nested loop fallbacks: 1`, out)
}

func TestRun_Disk(t *testing.T) {
	dir := t.TempDir()
	args := []string{"run", "--dir", dir, "--buffers", "4", "--left-rows", "500", "--right-rows", "400", "--keys", "50"}
	first, err := execute(t, args...)
	require.NoError(t, err)
	// The second run reuses the stored tables even though the row flags changed
	second, err := execute(t, append(args, "--left-rows", "7")...)
	require.NoError(t, err)

	count := regexp.MustCompile(`Joined rows: (\d+)`)
	require.Regexp(t, count, first)
	assert.Equal(t, count.FindStringSubmatch(first)[1], count.FindStringSubmatch(second)[1])
	n, err := strconv.Atoi(count.FindStringSubmatch(first)[1])
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}

func TestExplain(t *testing.T) {
	out, err := execute(t, "explain", "--buffers", "8", "--left-rows", "1000", "--right-rows", "1000", "--keys", "100")
	require.NoError(t, err)
	assert.Contains(t, out, "SeqScan")
	assert.Contains(t, out, "BlockNestedLoopJoin")
	assert.Regexp(t, `chosen: (GraceHashJoin|BlockNestedLoopJoin)`, out)
}

func TestInvalidFlags(t *testing.T) {
	_, err := execute(t, "run", "--keys", "0")
	assert.Error(t, err)
	_, err = execute(t, "run", "--skew", "1.5", "--keys", "10")
	assert.Error(t, err)
	_, err = execute(t, "run", "--buffers", "1", "--skew", "0", "--left-rows", "10", "--right-rows", "10")
	assert.Error(t, err)
}
