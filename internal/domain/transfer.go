/**
 * @description
 * This file defines the core domain models for the dispatcher: the transfer
 * request loaded from the wallet batch file, the fee envelope attached to a
 * submission, the terminal outcome classes, and the failure record written
 * back out for re-feeding into a future run.
 *
 * @dependencies
 * - errors, fmt, math/big, strings: Standard Go libraries.
 * - github.com/ethereum/go-ethereum: Address/key validation and wei math.
 */

package domain

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
)

var (
	ErrMissingField   = errors.New("missing required field")
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidKey     = errors.New("invalid signing key")
	ErrInvalidAmount  = errors.New("invalid transfer amount")
)

// TransferRequest is a single entry from the wallet batch file. All four
// fields must be present and well-formed before the request enters the
// dispatch pipeline; Validate is called at load time and malformed entries
// never reach the concurrency layer.
type TransferRequest struct {
	FromAddress string  `json:"from_address"`
	ToAddress   string  `json:"to_address"`
	PrivateKey  string  `json:"private_key"`
	Value       float64 `json:"value"`
}

// Validate checks that all fields are present and parseable. The signing key
// is parsed here once so a bad key is a load-time diagnostic, not a runtime
// submission failure.
func (r TransferRequest) Validate() error {
	if strings.TrimSpace(r.FromAddress) == "" || strings.TrimSpace(r.ToAddress) == "" || strings.TrimSpace(r.PrivateKey) == "" {
		return ErrMissingField
	}
	if !common.IsHexAddress(r.FromAddress) {
		return fmt.Errorf("%w: from=%q", ErrInvalidAddress, r.FromAddress)
	}
	if !common.IsHexAddress(r.ToAddress) {
		return fmt.Errorf("%w: to=%q", ErrInvalidAddress, r.ToAddress)
	}
	if _, err := r.SigningKey(); err != nil {
		return err
	}
	if r.Value <= 0 {
		return fmt.Errorf("%w: %f", ErrInvalidAmount, r.Value)
	}
	return nil
}

// From returns the checksummed source address.
func (r TransferRequest) From() common.Address {
	return common.HexToAddress(r.FromAddress)
}

// To returns the checksummed destination address.
func (r TransferRequest) To() common.Address {
	return common.HexToAddress(r.ToAddress)
}

// SigningKey parses the request's private key, accepting an optional 0x prefix.
func (r TransferRequest) SigningKey() (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(r.PrivateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}

// AmountWei converts the ETH-denominated value into wei.
func (r TransferRequest) AmountWei() *big.Int {
	eth := new(big.Float).SetFloat64(r.Value)
	wei := new(big.Float).Mul(eth, big.NewFloat(params.Ether))
	out, _ := wei.Int(nil)
	return out
}

// FeeEnvelope is the willingness-to-pay bundle attached to one submission
// attempt. Dynamic selects between an EIP-1559 transaction (tip + fee cap)
// and a legacy gas-price transaction.
type FeeEnvelope struct {
	Dynamic   bool
	GasLimit  uint64
	GasTipCap *big.Int // dynamic only
	GasFeeCap *big.Int // dynamic only
	GasPrice  *big.Int // legacy only
}

// Terminal failure classes recorded in the failure batch. A confirmation
// timeout is deliberately distinct from a rejection: the transaction may
// still confirm outside this run.
const (
	FailureClassRejected            = "rejected"
	FailureClassRetriesExhausted    = "retries_exhausted"
	FailureClassConfirmationTimeout = "confirmation_timeout"
	FailureClassInterrupted         = "interrupted"
)

// FailureRecord is the serialized form of a request that ended in terminal
// failure. The embedded request keeps the output schema a superset of the
// input schema so the failure file can be re-fed as a future run's batch.
type FailureRecord struct {
	TransferRequest
	FailureClass string `json:"failure_class"`
	Reason       string `json:"reason,omitempty"`
	TxHash       string `json:"tx_hash,omitempty"`
	Attempts     int    `json:"attempts,omitempty"`
}

// Summary is the terminal tally of one dispatch run.
type Summary struct {
	Succeeded int
	Failed    int
}
