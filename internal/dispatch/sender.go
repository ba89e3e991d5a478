/**
 * @description
 * This file implements the submission engine: the retry state machine that
 * takes one transfer request from built to submitted. Each attempt allocates
 * a fresh nonce, computes a fee envelope, builds and signs the transaction,
 * and submits it to the remote ledger. The classifier decides what happens
 * to a rejection: fatal rejections terminate immediately, sequencing
 * conflicts resynchronize the nonce allocator before the retry, and
 * transient errors retry unchanged. Attempts are bounded by configuration
 * with exponential-plus-jitter delays in between.
 *
 * An accepted submission emits a transfer.submitted event carrying the
 * transaction hash before the caller moves on to confirmation polling.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/ethereum/go-ethereum/core/types: Transaction building/signing.
 * - internal/domain, internal/fees, internal/nonce: Pipeline collaborators.
 * - pkg/ledgerclient, pkg/rabbitmq: Remote ledger and event publication.
 */

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/layerist/multi-send-eth/internal/domain"
	"github.com/layerist/multi-send-eth/internal/fees"
	"github.com/layerist/multi-send-eth/internal/nonce"
	"github.com/layerist/multi-send-eth/pkg/ledgerclient"
	"github.com/layerist/multi-send-eth/pkg/rabbitmq"
)

var (
	// ErrRejected marks a fatal remote rejection; the request must not be retried.
	ErrRejected = errors.New("submission rejected")
	// ErrRetriesExhausted marks a request that failed every allowed attempt.
	ErrRetriesExhausted = errors.New("submission retries exhausted")
)

// SenderConfig bounds the retry loop and paces submissions.
type SenderConfig struct {
	MaxAttempts    int
	RetryBaseDelay time.Duration
	// RateLimitPerMinute caps submissions across workers; 0 disables pacing.
	RateLimitPerMinute int
	RateLimitScope     string
}

// Sender drives one request through allocation, signing, and submission.
type Sender struct {
	ledger   ledgerclient.Ledger
	nonces   *nonce.Manager
	fees     *fees.Estimator
	classify Classifier
	events   rabbitmq.Publisher
	limiter  RateLimiter
	cfg      SenderConfig
}

// NewSender assembles a submission engine. A nil classifier selects the
// default Ethereum txpool mapping; a nil limiter disables pacing.
func NewSender(ledger ledgerclient.Ledger, nonces *nonce.Manager, estimator *fees.Estimator, events rabbitmq.Publisher, limiter RateLimiter, classify Classifier, cfg SenderConfig) *Sender {
	if classify == nil {
		classify = DefaultClassifier
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.RateLimitScope == "" {
		cfg.RateLimitScope = "submit"
	}
	return &Sender{
		ledger:   ledger,
		nonces:   nonces,
		fees:     estimator,
		classify: classify,
		events:   events,
		limiter:  limiter,
		cfg:      cfg,
	}
}

// attempt is the transient record for one pass through the retry loop.
type attempt struct {
	number   int
	sequence uint64
	envelope domain.FeeEnvelope
	class    Class
}

// Send submits the request and returns the accepted transaction hash. The
// error is nil on acceptance, ErrRejected on a fatal rejection,
// ErrRetriesExhausted when the attempt budget runs out, or the context error
// when the run is cancelled mid-loop.
func (s *Sender) Send(ctx context.Context, req domain.TransferRequest) (common.Hash, int, error) {
	key, err := req.SigningKey()
	if err != nil {
		// Requests are validated at load time; an unparsable key here is a
		// programming error but still terminal for the request.
		return common.Hash{}, 0, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	signer := types.LatestSignerForChainID(s.ledger.ChainID())
	from := req.From()

	var last attempt
	for n := 1; n <= s.cfg.MaxAttempts; n++ {
		if err := s.waitForSlot(ctx); err != nil {
			return common.Hash{}, n - 1, err
		}

		seq, err := s.nonces.Next(ctx, from)
		if err != nil {
			// The allocator's remote query failed; treat like any transient
			// remote error and retry after backoff.
			last = attempt{number: n, class: ClassTransient}
			log.Printf("level=warn component=submission_engine msg=\"nonce allocation failed\" account=%s attempt=%d err=%v", req.FromAddress, n, err)
			if err := s.delayBeforeRetry(ctx, n); err != nil {
				return common.Hash{}, n, err
			}
			continue
		}

		env := s.fees.Estimate(ctx, req)
		last = attempt{number: n, sequence: seq, envelope: env}

		tx := buildTransaction(seq, env, req, s.ledger.ChainID())
		signed, err := types.SignTx(tx, signer, key)
		if err != nil {
			return common.Hash{}, n, fmt.Errorf("%w: signing failed: %v", ErrRejected, err)
		}

		hash, err := s.ledger.Submit(ctx, signed)
		if err == nil {
			log.Printf("level=info component=submission_engine msg=\"submitted\" tx=%s nonce=%d value_eth=%f from=%.10s to=%.10s",
				hash.Hex(), seq, req.Value, req.FromAddress, req.ToAddress)
			s.publishSubmitted(ctx, req, hash, n)
			return hash, n, nil
		}

		last.class = s.classify(err)
		switch last.class {
		case ClassFatal:
			log.Printf("level=error component=submission_engine msg=\"fatal rejection\" account=%s attempt=%d err=%v", req.FromAddress, n, err)
			return common.Hash{}, n, fmt.Errorf("%w: %v", ErrRejected, err)
		case ClassSequencing:
			log.Printf("level=warn component=submission_engine msg=\"sequencing conflict; resyncing\" account=%s nonce=%d attempt=%d err=%v", req.FromAddress, seq, n, err)
			s.nonces.Resync(from)
		default:
			log.Printf("level=warn component=submission_engine msg=\"transient submission error\" account=%s attempt=%d err=%v", req.FromAddress, n, err)
		}

		if err := ctx.Err(); err != nil {
			return common.Hash{}, n, err
		}
		if err := s.delayBeforeRetry(ctx, n); err != nil {
			return common.Hash{}, n, err
		}
	}

	return common.Hash{}, last.number, fmt.Errorf("%w: %d attempts, last class %s", ErrRetriesExhausted, s.cfg.MaxAttempts, last.class)
}

// delayBeforeRetry sleeps the backoff interval unless this was the final attempt.
func (s *Sender) delayBeforeRetry(ctx context.Context, attemptNumber int) error {
	if attemptNumber >= s.cfg.MaxAttempts {
		return nil
	}
	return sleep(ctx, backoffDelay(s.cfg.RetryBaseDelay, attemptNumber))
}

// waitForSlot blocks until the rate limiter admits one submission.
func (s *Sender) waitForSlot(ctx context.Context) error {
	if s.limiter == nil || s.cfg.RateLimitPerMinute <= 0 {
		return ctx.Err()
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		count, retryAfter, err := s.limiter.Consume(ctx, s.cfg.RateLimitScope, "global", s.cfg.RateLimitPerMinute, time.Minute)
		if err != nil {
			// A broken limiter must not stall the run.
			log.Printf("level=warn component=submission_engine msg=\"rate limiter unavailable; admitting\" err=%v", err)
			return nil
		}
		if count <= s.cfg.RateLimitPerMinute {
			return nil
		}
		log.Printf("level=info component=submission_engine msg=\"rate limited; waiting\" retry_after_s=%d", retryAfter)
		if err := sleep(ctx, time.Duration(retryAfter)*time.Second); err != nil {
			return err
		}
	}
}

// buildTransaction assembles the unsigned transfer for the envelope's scheme.
func buildTransaction(sequence uint64, env domain.FeeEnvelope, req domain.TransferRequest, chainID *big.Int) *types.Transaction {
	to := req.To()
	if env.Dynamic {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     sequence,
			To:        &to,
			Value:     req.AmountWei(),
			Gas:       env.GasLimit,
			GasTipCap: env.GasTipCap,
			GasFeeCap: env.GasFeeCap,
		})
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    sequence,
		To:       &to,
		Value:    req.AmountWei(),
		Gas:      env.GasLimit,
		GasPrice: env.GasPrice,
	})
}

// publishSubmitted emits the lifecycle event for an accepted submission.
func (s *Sender) publishSubmitted(ctx context.Context, req domain.TransferRequest, hash common.Hash, attempts int) {
	if s.events == nil {
		return
	}
	event := rabbitmq.TransferEvent{
		TxHash:      hash.Hex(),
		FromAddress: req.FromAddress,
		ToAddress:   req.ToAddress,
		Value:       req.Value,
		Attempts:    attempts,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.events.PublishTransferEvent(ctx, rabbitmq.RouteSubmitted, event); err != nil {
		log.Printf("level=warn component=submission_engine msg=\"submitted event publish failed\" tx=%s err=%v", hash.Hex(), err)
	}
}
