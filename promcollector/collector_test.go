package promcollector

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/undolog"
	"github.com/hupe1980/undolog/undo"
)

// gather flattens a registry into name{label=value} -> value.
func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "{" + lp.GetName() + "=" + lp.GetValue() + "}"
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.RecordCommit(3, time.Microsecond)
	c.RecordRollback(2, time.Millisecond)
	c.RecordPurge(4096)
	c.RecordOutOfMemory()
	c.ObservePartition(undolog.Stats{Partition: 7, OpenQuanta: 2, UndoBytes: 100, BytesReserved: 200})

	m := gather(t, reg)
	assert.Equal(t, 3.0, m["undolog_actions_total{outcome=commit}"])
	assert.Equal(t, 2.0, m["undolog_actions_total{outcome=rollback}"])
	assert.Equal(t, 1.0, m["undolog_quantum_finalize_seconds{outcome=commit}"])
	assert.Equal(t, 4096.0, m["undolog_arena_purged_bytes_total"])
	assert.Equal(t, 1.0, m["undolog_arena_purges_total"])
	assert.Equal(t, 1.0, m["undolog_out_of_memory_total"])
	assert.Equal(t, 2.0, m["undolog_open_quanta{partition=7}"])
	assert.Equal(t, 200.0, m["undolog_pool_reserved_bytes{partition=7}"])
}

func TestCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestCollector_WithPartition(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	p, err := undolog.NewPartition(1, undolog.WithMetricsCollector(c), undolog.WithChunkSize(1024))
	require.NoError(t, err)

	for token := int64(1); token <= 4; token++ {
		q, err := p.Begin(token)
		require.NoError(t, err)
		_, err = q.Allocate(64)
		require.NoError(t, err)
		q.Register(&undo.FuncAction{}, nil)
	}
	c.ObservePartition(p.Stats())
	p.Undo(4)
	p.Release(3)
	require.NoError(t, p.Close())

	m := gather(t, reg)
	assert.Equal(t, 3.0, m["undolog_actions_total{outcome=commit}"])
	assert.Equal(t, 1.0, m["undolog_actions_total{outcome=rollback}"])
	assert.Equal(t, 4.0, m["undolog_arena_purges_total"])
	assert.Equal(t, 4096.0, m["undolog_arena_purged_bytes_total"])
	assert.Equal(t, 4.0, m["undolog_open_quanta{partition=1}"])
}
