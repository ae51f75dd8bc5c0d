package testutil

import (
	"math/rand"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)), //nolint:gosec // deterministic test data
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// Fill fills b with pseudo-random bytes.
func (r *RNG) Fill(b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = r.rand.Read(b)
}

// WorkloadConfig shapes a generated workload.
type WorkloadConfig struct {
	// Transactions is the number of transactions. Default 100.
	Transactions int
	// MaxActions bounds the actions per transaction. Default 16.
	MaxActions int
	// MinPayload and MaxPayload bound payload sizes in bytes.
	// Defaults 8 and 512.
	MinPayload int
	MaxPayload int
	// RollbackRatio is the share of transactions that roll back. Default 0.1.
	RollbackRatio float64
}

func (c *WorkloadConfig) applyDefaults() {
	if c.Transactions <= 0 {
		c.Transactions = 100
	}
	if c.MaxActions <= 0 {
		c.MaxActions = 16
	}
	if c.MinPayload <= 0 {
		c.MinPayload = 8
	}
	if c.MaxPayload < c.MinPayload {
		c.MaxPayload = max(512, c.MinPayload)
	}
	if c.RollbackRatio < 0 {
		c.RollbackRatio = 0
	}
	if c.RollbackRatio == 0 {
		c.RollbackRatio = 0.1
	}
}

// Transaction is one generated transaction.
type Transaction struct {
	Token    int64
	Payloads []int // undo payload size per action
	Rollback bool
}

// Bytes returns the payload bytes the transaction logs.
func (t Transaction) Bytes() int {
	n := 0
	for _, p := range t.Payloads {
		n += p
	}
	return n
}

// Workload generates transactions with increasing tokens starting at 1.
func (r *RNG) Workload(cfg WorkloadConfig) []Transaction {
	cfg.applyDefaults()

	txs := make([]Transaction, cfg.Transactions)
	for i := range txs {
		n := 1 + r.Intn(cfg.MaxActions)
		payloads := make([]int, n)
		for j := range payloads {
			payloads[j] = cfg.MinPayload + r.Intn(cfg.MaxPayload-cfg.MinPayload+1)
		}
		txs[i] = Transaction{
			Token:    int64(i + 1),
			Payloads: payloads,
			Rollback: r.Float64() < cfg.RollbackRatio,
		}
	}
	return txs
}
