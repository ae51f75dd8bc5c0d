package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hupe1980/undolog"
	"github.com/hupe1980/undolog/arena"
	"github.com/hupe1980/undolog/pool"
	"github.com/hupe1980/undolog/promcollector"
	"github.com/hupe1980/undolog/testutil"
	"github.com/hupe1980/undolog/undo"
)

type benchConfig struct {
	Partitions    int
	Transactions  int
	MaxActions    int
	MinPayload    int
	MaxPayload    int
	RollbackRatio float64
	ChunkSize     int
	MemoryLimit   int64
	MaxPooled     int
	OffHeap       bool
	Checking      bool
	Rate          float64 // transactions per second per partition, 0 is unlimited
	Seed          int64
	MetricsAddr   string
}

type partitionReport struct {
	Partition     int32        `json:"partition"`
	Commits       int64        `json:"commits"`
	Rollbacks     int64        `json:"rollbacks"`
	Actions       int64        `json:"actions"`
	PayloadBytes  int64        `json:"payload_bytes"`
	PurgedBytes   int64        `json:"purged_bytes"`
	OutOfMemory   int64        `json:"out_of_memory"`
	PeakReserved  int64        `json:"peak_reserved_bytes"`
	PooledArenas  int          `json:"pooled_arenas"`
	Pools         []pool.Stats `json:"pools"`
	ElapsedMillis int64        `json:"elapsed_ms"`
}

type report struct {
	Config     benchConfig       `json:"config"`
	Partitions []partitionReport `json:"partitions"`
	TxPerSec   float64           `json:"tx_per_sec"`
}

var runCfg = benchConfig{
	Partitions:    1,
	Transactions:  10000,
	MaxActions:    16,
	MinPayload:    8,
	MaxPayload:    512,
	RollbackRatio: 0.1,
	ChunkSize:     arena.UndoChunkSize,
	MaxPooled:     undo.DefaultMaxPooledArenas,
	Seed:          42,
}

func init() {
	cmd := newRunCmd()
	f := cmd.Flags()
	f.IntVarP(&runCfg.Partitions, "partitions", "p", runCfg.Partitions, "Partitions to run in parallel")
	f.IntVarP(&runCfg.Transactions, "transactions", "n", runCfg.Transactions, "Transactions per partition")
	f.IntVar(&runCfg.MaxActions, "max-actions", runCfg.MaxActions, "Maximum actions per transaction")
	f.IntVar(&runCfg.MinPayload, "min-payload", runCfg.MinPayload, "Minimum undo payload in bytes")
	f.IntVar(&runCfg.MaxPayload, "max-payload", runCfg.MaxPayload, "Maximum undo payload in bytes")
	f.Float64Var(&runCfg.RollbackRatio, "rollback-ratio", runCfg.RollbackRatio, "Share of transactions rolled back")
	f.IntVar(&runCfg.ChunkSize, "chunk-size", runCfg.ChunkSize, "Undo arena chunk size in bytes")
	f.Int64Var(&runCfg.MemoryLimit, "memory-limit", 0, "Pool memory limit per partition in bytes (0 = unlimited)")
	f.IntVar(&runCfg.MaxPooled, "max-pooled-arenas", runCfg.MaxPooled, "Purged arenas kept for reuse")
	f.BoolVar(&runCfg.OffHeap, "off-heap", false, "Place pool slabs in anonymous mappings")
	f.BoolVar(&runCfg.Checking, "checking", false, "Track live pool blocks")
	f.Float64Var(&runCfg.Rate, "rate", 0, "Transactions per second per partition (0 = unlimited)")
	f.Int64Var(&runCfg.Seed, "seed", runCfg.Seed, "Workload seed")
	f.StringVar(&runCfg.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	rootCmd.AddCommand(cmd)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a transaction workload",
		Long: `The run command generates a workload per partition and drives it through
the partition's undo log. Each transaction logs before-images for its
actions and is then released or undone.

Example:
  undobench run -n 100000 --rollback-ratio 0.25
  undobench run -p 4 --rate 5000 --metrics-addr :9090
  undobench run --off-heap --checking --codec json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := prometheus.NewRegistry()
			pc, err := promcollector.New(reg)
			if err != nil {
				return err
			}
			if runCfg.MetricsAddr != "" {
				srv := &http.Server{
					Addr:              runCfg.MetricsAddr,
					Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() { _ = srv.ListenAndServe() }()
				defer srv.Close()
			}

			rep, err := runBench(cmd.Context(), runCfg, newLogger(cmd.ErrOrStderr()), pc)
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), rep)
		},
	}
}

func runBench(ctx context.Context, cfg benchConfig, logger *undolog.Logger, pc *promcollector.Collector) (*report, error) {
	if cfg.Partitions <= 0 {
		return nil, errors.New("partitions must be positive")
	}

	rep := &report{Config: cfg, Partitions: make([]partitionReport, cfg.Partitions)}
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Partitions; i++ {
		i := i
		g.Go(func() error {
			pr, err := runPartition(ctx, int32(i), cfg, logger, pc) //nolint:gosec // bounded by flag
			if err != nil {
				return fmt.Errorf("partition %d: %w", i, err)
			}
			rep.Partitions[i] = *pr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var txs int64
	for _, pr := range rep.Partitions {
		txs += pr.Commits + pr.Rollbacks
	}
	if elapsed := time.Since(start).Seconds(); elapsed > 0 {
		rep.TxPerSec = float64(txs) / elapsed
	}
	return rep, nil
}

func runPartition(ctx context.Context, id int32, cfg benchConfig, logger *undolog.Logger, pc *promcollector.Collector) (*partitionReport, error) {
	mc := &undolog.BasicMetricsCollector{}
	collectors := multiCollector{mc}
	if pc != nil {
		collectors = append(collectors, pc)
	}

	p, err := undolog.NewPartition(id,
		undolog.WithLogger(logger),
		undolog.WithMetricsCollector(collectors),
		undolog.WithChunkSize(cfg.ChunkSize),
		undolog.WithMemoryLimit(cfg.MemoryLimit),
		undolog.WithMaxPooledArenas(cfg.MaxPooled),
		undolog.WithOffHeap(cfg.OffHeap),
		undolog.WithChecking(cfg.Checking),
	)
	if err != nil {
		return nil, err
	}

	rng := testutil.NewRNG(cfg.Seed + int64(id))
	workload := rng.Workload(testutil.WorkloadConfig{
		Transactions:  cfg.Transactions,
		MaxActions:    cfg.MaxActions,
		MinPayload:    cfg.MinPayload,
		MaxPayload:    cfg.MaxPayload,
		RollbackRatio: cfg.RollbackRatio,
	})

	var limiter *rate.Limiter
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}

	// The "table" the workload mutates; actions restore slices of it.
	table := make([]byte, max(cfg.MaxPayload*4, 4096))
	pr := &partitionReport{Partition: id}
	start := time.Now()

	runErr := func() error {
		for _, tx := range workload {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return err
				}
			} else if err := ctx.Err(); err != nil {
				return err
			}

			if err := runTransaction(p, tx, table); err != nil {
				return err
			}
			pr.Actions += int64(len(tx.Payloads))
			pr.PayloadBytes += int64(tx.Bytes())
			if pc != nil && tx.Token%1024 == 0 {
				pc.ObservePartition(p.Stats())
			}
		}
		return nil
	}()

	st := p.Stats()
	if pc != nil {
		pc.ObservePartition(st)
	}
	stats := mc.GetStats()
	pr.Commits = stats.CommitCount
	pr.Rollbacks = stats.RollbackCount
	pr.PurgedBytes = stats.PurgedBytes
	pr.OutOfMemory = stats.OutOfMemoryCount
	pr.PeakReserved = st.PeakReserved
	pr.PooledArenas = st.PooledArenas
	pr.Pools = st.Pools
	pr.ElapsedMillis = time.Since(start).Milliseconds()

	if err := p.Close(); err != nil {
		return nil, errors.Join(runErr, err)
	}
	if runErr != nil {
		return nil, runErr
	}
	return pr, nil
}

func runTransaction(p *undolog.Partition, tx testutil.Transaction, table []byte) error {
	q, err := p.Begin(tx.Token)
	if err != nil {
		return err
	}

	for i, size := range tx.Payloads {
		size := size
		size = min(size, len(table))
		off := (int(tx.Token)*31 + i*17) % (len(table) - size + 1)
		before, err := q.Allocate(size)
		if err != nil {
			p.Undo(tx.Token)
			return err
		}
		copy(before, table[off:off+size])
		q.Register(&undo.FuncAction{OnUndo: func() { copy(table[off:off+size], before) }}, nil)
		table[off] ^= byte(tx.Token)
	}

	if tx.Rollback {
		p.Undo(tx.Token)
	} else {
		p.Release(tx.Token)
	}
	return nil
}

// multiCollector fans metrics out to several collectors.
type multiCollector []undolog.MetricsCollector

func (m multiCollector) RecordCommit(actions int, d time.Duration) {
	for _, c := range m {
		c.RecordCommit(actions, d)
	}
}

func (m multiCollector) RecordRollback(actions int, d time.Duration) {
	for _, c := range m {
		c.RecordRollback(actions, d)
	}
}

func (m multiCollector) RecordPurge(bytes int64) {
	for _, c := range m {
		c.RecordPurge(bytes)
	}
}

func (m multiCollector) RecordOutOfMemory() {
	for _, c := range m {
		c.RecordOutOfMemory()
	}
}
