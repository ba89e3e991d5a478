/**
 * @description
 * This file implements the per-account sequence allocator. The Manager owns a
 * process-wide map from account address to next-unused nonce, guarded by a
 * single mutex. Entries are created lazily: the first allocation for an
 * account queries the remote ledger's pending nonce inside the same critical
 * section that returns and increments the counter, so no two callers can ever
 * observe the same value.
 *
 * Allocation is optimistic. A nonce handed out for a submission that later
 * fails is never reused; reuse would risk a duplicate submission. When the
 * remote rejects a submission as a sequencing conflict, Resync drops the
 * cached entry so the next allocation re-queries the ledger, which is the
 * only way to observe nonces consumed by other senders.
 *
 * @dependencies
 * - context, sync: Standard Go libraries.
 * - github.com/ethereum/go-ethereum/common: Account address type.
 * - pkg/ledgerclient: The remote ledger surface.
 */

package nonce

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layerist/multi-send-eth/pkg/ledgerclient"
)

// Manager allocates collision-free nonces per account.
type Manager struct {
	mu     sync.Mutex
	ledger ledgerclient.Ledger
	next   map[common.Address]uint64
}

// NewManager creates an allocator backed by the given ledger.
func NewManager(ledger ledgerclient.Ledger) *Manager {
	return &Manager{
		ledger: ledger,
		next:   make(map[common.Address]uint64),
	}
}

// Next returns the next unused nonce for the account and advances the
// counter. The first call per account (and the first call after a Resync)
// blocks on the remote pending-nonce query; subsequent calls are a short
// critical section.
func (m *Manager) Next(ctx context.Context, account common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.next[account]
	if !ok {
		pending, err := m.ledger.PendingSequence(ctx, account)
		if err != nil {
			return 0, fmt.Errorf("failed to initialize nonce for %s: %w", account.Hex(), err)
		}
		current = pending
	}
	m.next[account] = current + 1
	return current, nil
}

// Resync drops the cached counter for the account. The next allocation will
// re-query the ledger instead of trusting local state, which is required
// after a nonce-too-low or replacement-underpriced rejection.
func (m *Manager) Resync(account common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.next[account]; ok {
		delete(m.next, account)
		log.Printf("level=warn component=nonce_manager msg=\"cache dropped after sequencing conflict\" account=%s", account.Hex())
	}
}
