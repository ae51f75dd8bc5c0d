// Package testutil provides testing utilities for undolog.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded RNG and transaction workloads that exercise undo
// quanta with realistic mixes of payload sizes and rollbacks.
//
// # Workloads
//
//	rng := testutil.NewRNG(seed)
//	w := rng.Workload(testutil.WorkloadConfig{Transactions: 1000})
//	for _, tx := range w {
//	    // tx.Payloads, tx.Rollback
//	}
package testutil
