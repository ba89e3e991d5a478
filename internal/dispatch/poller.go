/**
 * @description
 * This file implements the confirmation poller. After a submission is
 * accepted, the poller asks the remote ledger for the transaction's receipt
 * at exponentially growing intervals until it is found, the poll budget is
 * exhausted, or the run is cancelled.
 *
 * A not-yet-found answer is expected during early polls and is distinct from
 * a genuine query failure: the latter is logged but still only consumes one
 * poll from the same budget. Exhausting the budget yields
 * ErrConfirmationTimeout, a terminal outcome deliberately separate from
 * submission failure, because the transaction may still confirm after this
 * run ends.
 *
 * @dependencies
 * - context, errors, log, time: Standard Go libraries.
 * - github.com/ethereum/go-ethereum: NotFound sentinel, receipt type.
 * - pkg/ledgerclient: The remote ledger surface.
 */

package dispatch

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/layerist/multi-send-eth/pkg/ledgerclient"
)

// ErrConfirmationTimeout marks a submission that was never observed in a
// block within the poll budget. The transfer is unresolved, not known-failed.
var ErrConfirmationTimeout = errors.New("confirmation timed out")

// PollerConfig bounds the confirmation loop.
type PollerConfig struct {
	MaxPolls      int
	PollBaseDelay time.Duration
}

// Poller awaits finalization of submitted transactions.
type Poller struct {
	ledger ledgerclient.Ledger
	cfg    PollerConfig
}

// NewPoller creates a poller with the given bounds.
func NewPoller(ledger ledgerclient.Ledger, cfg PollerConfig) *Poller {
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 6
	}
	if cfg.PollBaseDelay <= 0 {
		cfg.PollBaseDelay = 2 * time.Second
	}
	return &Poller{ledger: ledger, cfg: cfg}
}

// Await polls for the transaction's receipt. It returns the receipt on
// confirmation, ErrConfirmationTimeout when the budget is exhausted, or the
// context error when the run is cancelled between polls.
func (p *Poller) Await(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	for poll := 1; poll <= p.cfg.MaxPolls; poll++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		receipt, err := p.ledger.PollStatus(ctx, txHash)
		switch {
		case err == nil && receipt != nil:
			log.Printf("level=info component=confirmation_poller msg=\"confirmed\" tx=%s block=%d", txHash.Hex(), receipt.BlockNumber.Uint64())
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
			// Expected while the transaction is pending.
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("level=warn component=confirmation_poller msg=\"receipt query failed\" tx=%s poll=%d err=%v", txHash.Hex(), poll, err)
		}

		if poll < p.cfg.MaxPolls {
			if err := sleep(ctx, backoffDelay(p.cfg.PollBaseDelay, poll)); err != nil {
				return nil, err
			}
		}
	}

	log.Printf("level=error component=confirmation_poller msg=\"poll budget exhausted\" tx=%s polls=%d", txHash.Hex(), p.cfg.MaxPolls)
	return nil, ErrConfirmationTimeout
}
