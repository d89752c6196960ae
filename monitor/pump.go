// Package monitor drives the request-detection-and-fulfillment pipeline: it
// pumps blocks sequentially from the durable cursor, extracts tracked custom
// operations, and processes each one to completion before fetching the next
// block. One block at a time, strictly in order; there is no concurrent
// request processing.
package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	blockchain "acctforge/blockchain/client"
	"acctforge/config"
	"acctforge/delivery"
	"acctforge/internal/messaging/producer"
	"acctforge/provision"
	"acctforge/storage/cursor"
	"acctforge/storage/pending"
	"acctforge/storage/quota"
)

// Monitor owns the block pump and the pipeline state. It is the single
// writer of the cursor, quota and pending-credentials ledgers.
type Monitor struct {
	customJSONID  string
	pollInterval  time.Duration // wait before re-fetching a not-yet-produced block
	retryInterval time.Duration // wait after a transient fetch error
	saveInterval  uint32        // cursor persist stride

	chain       blockchain.ChainClient
	cursor      *cursor.Store
	quota       quota.Store
	pendingLedg *pending.Ledger
	provisioner *provision.Provisioner
	router      *delivery.Router
	events      producer.Producer
	logger      *log.Logger

	mu        sync.Mutex
	running   bool
	startedAt time.Time
}

// New creates a Monitor instance
func New(cfg config.PumpConfig, chain blockchain.ChainClient, cur *cursor.Store, q quota.Store,
	pend *pending.Ledger, prov *provision.Provisioner, router *delivery.Router,
	events producer.Producer, logger *log.Logger) *Monitor {

	// Parse time duration strings
	pollInterval, err := time.ParseDuration(cfg.PollInterval)
	if err != nil {
		logger.Printf("Warning: Invalid poll_interval '%s', using default 3s", cfg.PollInterval)
		pollInterval = 3 * time.Second
	}
	retryInterval, err := time.ParseDuration(cfg.RetryInterval)
	if err != nil {
		logger.Printf("Warning: Invalid retry_interval '%s', using default 5s", cfg.RetryInterval)
		retryInterval = 5 * time.Second
	}
	saveInterval := cfg.SaveInterval
	if saveInterval <= 0 {
		saveInterval = 20
	}

	return &Monitor{
		customJSONID:  cfg.CustomJSONID,
		pollInterval:  pollInterval,
		retryInterval: retryInterval,
		saveInterval:  uint32(saveInterval),
		chain:         chain,
		cursor:        cur,
		quota:         q,
		pendingLedg:   pend,
		provisioner:   prov,
		router:        router,
		events:        events,
		logger:        logger,
		running:       true,
		startedAt:     time.Now(),
	}
}

// Start enables the pump loop.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		m.running = true
		m.logger.Println("Monitor started")
	}
}

// Stop disables the pump loop and force-flushes the cursor.
func (m *Monitor) Stop() {
	m.mu.Lock()
	wasRunning := m.running
	m.running = false
	m.mu.Unlock()
	if wasRunning {
		m.logger.Println("Monitor stopped")
	}
	m.flushCursor()
}

// Running reports whether the pump loop is enabled.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// LastHeight returns the last fully-processed block height.
func (m *Monitor) LastHeight() uint32 { return m.cursor.Height() }

// StartedAt returns the service start time.
func (m *Monitor) StartedAt() time.Time { return m.startedAt }

// Run loops until ctx is cancelled, fetching blocks sequentially from the
// cursor. A missing block or a transient fetch error never advances the
// cursor and never stops the loop.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Printf("Block pump starting at height %d (op id %q, save stride %d)",
		m.cursor.Height()+1, m.customJSONID, m.saveInterval)
	defer m.flushCursor()

	for {
		select {
		case <-ctx.Done():
			m.logger.Println("Block pump: context cancelled, stopping.")
			return
		default:
		}

		if !m.Running() {
			if !m.sleep(ctx, m.pollInterval) {
				return
			}
			continue
		}

		next := m.cursor.Height() + 1
		block, err := m.chain.GetBlock(ctx, next)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Printf("Transient error fetching block %d: %v", next, err)
			if !m.sleep(ctx, m.retryInterval) {
				return
			}
			continue
		}
		if block == nil {
			// Not produced yet; retry the same height.
			if !m.sleep(ctx, m.pollInterval) {
				return
			}
			continue
		}

		m.processBlock(ctx, next, block)

		m.cursor.Advance(next)
		if next%m.saveInterval == 0 {
			if err := m.cursor.Save(); err != nil {
				m.logger.Printf("Failed to persist cursor at height %d: %v", next, err)
			}
		}
	}
}

// sleep waits for d or until ctx is cancelled; false means cancelled.
func (m *Monitor) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (m *Monitor) flushCursor() {
	if err := m.cursor.Save(); err != nil {
		m.logger.Printf("Failed to flush cursor: %v", err)
	}
}
