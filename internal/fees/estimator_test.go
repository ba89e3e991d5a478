package fees

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/layerist/multi-send-eth/internal/domain"
)

type stubLedger struct {
	baseFee     *big.Int
	baseFeeErr  error
	price       *big.Int
	priceErr    error
	gas         uint64
	gasErr      error
	gasCalls    int
	lastGasCall ethereum.CallMsg
}

func (s *stubLedger) ChainID() *big.Int { return big.NewInt(1337) }

func (s *stubLedger) PendingSequence(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}

func (s *stubLedger) BaseFee(ctx context.Context) (*big.Int, error) {
	return s.baseFee, s.baseFeeErr
}

func (s *stubLedger) SuggestUnitPrice(ctx context.Context) (*big.Int, error) {
	return s.price, s.priceErr
}

func (s *stubLedger) EstimateResourceCost(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	s.gasCalls++
	s.lastGasCall = call
	return s.gas, s.gasErr
}

func (s *stubLedger) Submit(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	return common.Hash{}, nil
}

func (s *stubLedger) PollStatus(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return nil, nil
}

var testRequest = domain.TransferRequest{
	FromAddress: "0x1111111111111111111111111111111111111111",
	ToAddress:   "0x2222222222222222222222222222222222222222",
	PrivateKey:  "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
	Value:       0.5,
}

func testOptions() Options {
	return Options{
		PriorityFeeWei:     big.NewInt(2_000_000_000),
		FeeCapMultiplier:   2,
		DefaultGasPriceWei: big.NewInt(20_000_000_000),
		DefaultGasLimit:    21000,
	}
}

func TestEstimate_PrefersDynamicScheme(t *testing.T) {
	ledger := &stubLedger{baseFee: big.NewInt(10_000_000_000), gas: 21000}
	estimator := NewEstimator(ledger, testOptions())

	env := estimator.Estimate(context.Background(), testRequest)

	if !env.Dynamic {
		t.Fatal("expected a dynamic fee envelope when the base fee is available")
	}
	if env.GasTipCap.Cmp(big.NewInt(2_000_000_000)) != 0 {
		t.Fatalf("unexpected tip: %s", env.GasTipCap)
	}
	// cap = base*2 + tip
	wantCap := big.NewInt(22_000_000_000)
	if env.GasFeeCap.Cmp(wantCap) != 0 {
		t.Fatalf("expected fee cap %s, got %s", wantCap, env.GasFeeCap)
	}
	if env.GasPrice != nil {
		t.Fatal("dynamic envelope must not carry a legacy gas price")
	}
}

func TestEstimate_FallsBackToSuggestedPrice(t *testing.T) {
	ledger := &stubLedger{
		baseFeeErr: errors.New("header fetch failed"),
		price:      big.NewInt(30_000_000_000),
		gas:        21000,
	}
	estimator := NewEstimator(ledger, testOptions())

	env := estimator.Estimate(context.Background(), testRequest)

	if env.Dynamic {
		t.Fatal("expected a legacy envelope when the base-fee query fails")
	}
	if env.GasPrice.Cmp(big.NewInt(30_000_000_000)) != 0 {
		t.Fatalf("expected the suggested network price, got %s", env.GasPrice)
	}
}

func TestEstimate_FallsBackToConfiguredPrice(t *testing.T) {
	ledger := &stubLedger{
		// No base fee (pre-dynamic-fee chain) and no suggested price.
		priceErr: errors.New("query failed"),
		gas:      21000,
	}
	estimator := NewEstimator(ledger, testOptions())

	env := estimator.Estimate(context.Background(), testRequest)

	if env.Dynamic {
		t.Fatal("expected a legacy envelope")
	}
	if env.GasPrice.Cmp(big.NewInt(20_000_000_000)) != 0 {
		t.Fatalf("expected the configured fallback price, got %s", env.GasPrice)
	}
}

func TestEstimate_SubstitutesDefaultGasLimitOnEstimationFailure(t *testing.T) {
	ledger := &stubLedger{
		baseFee: big.NewInt(10_000_000_000),
		gasErr:  errors.New("execution reverted"),
	}
	estimator := NewEstimator(ledger, testOptions())

	env := estimator.Estimate(context.Background(), testRequest)

	if env.GasLimit != 21000 {
		t.Fatalf("expected default gas limit 21000, got %d", env.GasLimit)
	}
	if ledger.gasCalls != 1 {
		t.Fatalf("expected one estimation attempt, got %d", ledger.gasCalls)
	}
}

func TestEstimate_BuildsCallAgainstUnsignedTransfer(t *testing.T) {
	ledger := &stubLedger{baseFee: big.NewInt(10_000_000_000), gas: 30000}
	estimator := NewEstimator(ledger, testOptions())

	env := estimator.Estimate(context.Background(), testRequest)

	if env.GasLimit != 30000 {
		t.Fatalf("expected estimated gas 30000, got %d", env.GasLimit)
	}
	call := ledger.lastGasCall
	if call.From != testRequest.From() || call.To == nil || *call.To != testRequest.To() {
		t.Fatal("estimation call does not carry the transfer's addresses")
	}
	if call.Value.Cmp(testRequest.AmountWei()) != 0 {
		t.Fatalf("estimation call carries wrong value: %s", call.Value)
	}
}
