package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/undolog"
	"github.com/hupe1980/undolog/codec"
	"github.com/hupe1980/undolog/promcollector"
)

func smallConfig() benchConfig {
	return benchConfig{
		Partitions:    2,
		Transactions:  200,
		MaxActions:    4,
		MinPayload:    8,
		MaxPayload:    128,
		RollbackRatio: 0.25,
		ChunkSize:     4096,
		MaxPooled:     2,
		Checking:      true,
		Seed:          7,
	}
}

func TestRunBench(t *testing.T) {
	pc, err := promcollector.New(prometheus.NewRegistry())
	require.NoError(t, err)

	rep, err := runBench(context.Background(), smallConfig(), undolog.NoopLogger(), pc)
	require.NoError(t, err)
	require.Len(t, rep.Partitions, 2)

	for i, pr := range rep.Partitions {
		assert.Equal(t, int32(i), pr.Partition)
		assert.Equal(t, int64(200), pr.Commits+pr.Rollbacks)
		assert.Positive(t, pr.Rollbacks)
		assert.Positive(t, pr.Actions)
		assert.Zero(t, pr.OutOfMemory)
		assert.LessOrEqual(t, pr.PooledArenas, 2)
		assert.NotEmpty(t, pr.Pools)
	}
	assert.Positive(t, rep.TxPerSec)
}

func TestRunBench_OutOfMemory(t *testing.T) {
	cfg := smallConfig()
	cfg.Partitions = 1
	cfg.MemoryLimit = 1024

	_, err := runBench(context.Background(), cfg, undolog.NoopLogger(), nil)
	require.Error(t, err)
	assert.True(t, undolog.IsOutOfMemory(err))
}

func TestRunBench_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runBench(ctx, smallConfig(), undolog.NoopLogger(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunBench_Rate(t *testing.T) {
	cfg := smallConfig()
	cfg.Partitions = 1
	cfg.Transactions = 5
	cfg.Rate = 1000

	rep, err := runBench(context.Background(), cfg, undolog.NoopLogger(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), rep.Partitions[0].Commits+rep.Partitions[0].Rollbacks)
}

func TestSizeClassCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"sizeclass", "100", "5000", "2000000"})
	require.NoError(t, rootCmd.Execute())

	var rows []sizeClassRow
	require.NoError(t, codec.Default.Unmarshal(out.Bytes(), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, 128, rows[0].Class)
	assert.Equal(t, 6144, rows[1].Class)
	assert.Equal(t, 1144, rows[1].Waste)
	assert.NotEmpty(t, rows[2].Error)
}
