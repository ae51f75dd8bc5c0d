package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRNG_Deterministic(t *testing.T) {
	a := NewRNG(4711)
	b := NewRNG(4711)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Intn(1000), b.Intn(1000))
	}

	first := NewRNG(1).Intn(1 << 30)
	r := NewRNG(1)
	_ = r.Intn(1 << 30)
	r.Reset()
	assert.Equal(t, first, r.Intn(1<<30))
	assert.Equal(t, int64(1), r.Seed())
}

func TestRNG_Fill(t *testing.T) {
	b := make([]byte, 64)
	NewRNG(7).Fill(b)
	assert.NotEqual(t, make([]byte, 64), b)
}

func TestWorkload(t *testing.T) {
	cfg := WorkloadConfig{Transactions: 500, MaxActions: 4, MinPayload: 16, MaxPayload: 32, RollbackRatio: 0.5}
	w := NewRNG(42).Workload(cfg)
	require.Len(t, w, 500)

	rollbacks := 0
	for i, tx := range w {
		assert.Equal(t, int64(i+1), tx.Token)
		assert.GreaterOrEqual(t, len(tx.Payloads), 1)
		assert.LessOrEqual(t, len(tx.Payloads), 4)
		for _, p := range tx.Payloads {
			assert.GreaterOrEqual(t, p, 16)
			assert.LessOrEqual(t, p, 32)
		}
		if tx.Rollback {
			rollbacks++
		}
	}
	assert.InDelta(t, 250, rollbacks, 75)

	assert.Equal(t, w, NewRNG(42).Workload(cfg), "same seed, same workload")
}

func TestWorkload_Defaults(t *testing.T) {
	w := NewRNG(1).Workload(WorkloadConfig{})
	require.Len(t, w, 100)
	assert.Positive(t, w[0].Bytes())
}
