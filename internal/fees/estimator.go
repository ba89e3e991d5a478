/**
 * @description
 * This file computes the fee envelope for a submission. The estimator prefers
 * the dynamic (EIP-1559) scheme: when the latest block carries a base fee,
 * the envelope gets a configured priority tip and a fee cap of
 * base x multiplier + tip. When the base-fee query fails or the chain does
 * not run dynamic fees, the envelope falls back to a legacy gas price: the
 * node's current suggested price, or the configured fixed price if that
 * query fails too.
 *
 * Gas-limit estimation runs against the unsigned call. Estimation failure is
 * never fatal; the configured default limit is substituted.
 *
 * @dependencies
 * - context, math/big: Standard Go libraries.
 * - github.com/ethereum/go-ethereum: CallMsg for gas estimation.
 * - pkg/ledgerclient: The remote ledger surface.
 */

package fees

import (
	"context"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/layerist/multi-send-eth/internal/domain"
	"github.com/layerist/multi-send-eth/pkg/ledgerclient"
)

// Options carries the configured fee parameters.
type Options struct {
	// PriorityFeeWei is the tip attached to dynamic-fee envelopes.
	PriorityFeeWei *big.Int
	// FeeCapMultiplier scales the base fee when deriving the fee cap.
	FeeCapMultiplier int64
	// DefaultGasPriceWei is the terminal legacy fallback price.
	DefaultGasPriceWei *big.Int
	// DefaultGasLimit is substituted when gas estimation fails.
	DefaultGasLimit uint64
}

// Estimator computes fee envelopes against a remote ledger.
type Estimator struct {
	ledger ledgerclient.Ledger
	opts   Options
}

// NewEstimator creates an estimator with the given options.
func NewEstimator(ledger ledgerclient.Ledger, opts Options) *Estimator {
	if opts.FeeCapMultiplier <= 0 {
		opts.FeeCapMultiplier = 2
	}
	return &Estimator{ledger: ledger, opts: opts}
}

// Estimate builds the fee envelope for a single transfer. It never fails:
// every query error demotes the envelope to the next fallback tier.
func (e *Estimator) Estimate(ctx context.Context, req domain.TransferRequest) domain.FeeEnvelope {
	env := e.priceEnvelope(ctx)

	call := ethereum.CallMsg{
		From:  req.From(),
		Value: req.AmountWei(),
	}
	to := req.To()
	call.To = &to
	if env.Dynamic {
		call.GasTipCap = env.GasTipCap
		call.GasFeeCap = env.GasFeeCap
	} else {
		call.GasPrice = env.GasPrice
	}

	gas, err := e.ledger.EstimateResourceCost(ctx, call)
	if err != nil {
		log.Printf("level=warn component=fee_estimator msg=\"gas estimation failed; using default limit\" from=%s default=%d err=%v",
			req.FromAddress, e.opts.DefaultGasLimit, err)
		gas = e.opts.DefaultGasLimit
	}
	env.GasLimit = gas
	return env
}

// priceEnvelope resolves the unit-price portion of the envelope.
func (e *Estimator) priceEnvelope(ctx context.Context) domain.FeeEnvelope {
	base, err := e.ledger.BaseFee(ctx)
	if err == nil && base != nil {
		tip := new(big.Int).Set(e.opts.PriorityFeeWei)
		cap := new(big.Int).Mul(base, big.NewInt(e.opts.FeeCapMultiplier))
		cap.Add(cap, tip)
		return domain.FeeEnvelope{Dynamic: true, GasTipCap: tip, GasFeeCap: cap}
	}
	if err != nil {
		log.Printf("level=warn component=fee_estimator msg=\"base fee unavailable; falling back to legacy pricing\" err=%v", err)
	}

	price, err := e.ledger.SuggestUnitPrice(ctx)
	if err != nil || price == nil || price.Sign() <= 0 {
		if err != nil {
			log.Printf("level=warn component=fee_estimator msg=\"suggested price unavailable; using configured price\" err=%v", err)
		}
		price = new(big.Int).Set(e.opts.DefaultGasPriceWei)
	}
	return domain.FeeEnvelope{GasPrice: price}
}
