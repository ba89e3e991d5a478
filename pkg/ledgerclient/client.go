/**
 * @description
 * This package provides the client for the remote Ethereum ledger, reached
 * through an Infura JSON-RPC endpoint. It exposes the narrow `Ledger`
 * interface the dispatch pipeline consumes (pending nonce, fee queries, gas
 * estimation, submission, receipt polling) so the core can be exercised
 * against stubs in tests.
 *
 * @dependencies
 * - context, fmt, math/big, time: Standard Go libraries.
 * - github.com/ethereum/go-ethereum/ethclient: The Ethereum RPC client.
 */
package ledgerclient

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

const dialTimeout = 20 * time.Second

// Ledger is the remote ledger surface consumed by the dispatch pipeline.
// PollStatus returns ethereum.NotFound while a transaction is still pending;
// callers must treat that as an expected answer, not a query failure.
type Ledger interface {
	ChainID() *big.Int
	PendingSequence(ctx context.Context, account common.Address) (uint64, error)
	BaseFee(ctx context.Context) (*big.Int, error)
	SuggestUnitPrice(ctx context.Context) (*big.Int, error)
	EstimateResourceCost(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	Submit(ctx context.Context, tx *types.Transaction) (common.Hash, error)
	PollStatus(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Client implements Ledger over an ethclient connection.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
}

// InfuraURL assembles the HTTPS endpoint for a named network and project id.
func InfuraURL(network, projectID string) string {
	return fmt.Sprintf("https://%s.infura.io/v3/%s", network, projectID)
}

// Dial connects to the endpoint and verifies the reported chain id against
// the configured one. An unreachable endpoint or a chain mismatch is fatal
// to the whole run, so this must be called before any dispatch begins.
func Dial(ctx context.Context, rawURL string, wantChainID int64) (*Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	eth, err := ethclient.DialContext(dialCtx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger endpoint: %w", err)
	}

	chainID, err := eth.ChainID(dialCtx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("failed to query chain id: %w", err)
	}
	if wantChainID != 0 && chainID.Int64() != wantChainID {
		eth.Close()
		return nil, fmt.Errorf("chain id mismatch: endpoint reports %d, configured %d", chainID.Int64(), wantChainID)
	}

	log.Printf("level=info component=ledger_client msg=\"connected\" chain_id=%d", chainID.Int64())
	return &Client{eth: eth, chainID: chainID}, nil
}

// ChainID returns the chain id reported by the endpoint at dial time.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// PendingSequence returns the next unused nonce for the account, including
// transactions still in the mempool.
func (c *Client) PendingSequence(ctx context.Context, account common.Address) (uint64, error) {
	n, err := c.eth.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pending nonce for %s: %w", account.Hex(), err)
	}
	return n, nil
}

// BaseFee returns the latest block's base fee, or nil when the chain does
// not run the dynamic fee scheme.
func (c *Client) BaseFee(ctx context.Context) (*big.Int, error) {
	header, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest header: %w", err)
	}
	return header.BaseFee, nil
}

// SuggestUnitPrice returns the node's suggested legacy gas price.
func (c *Client) SuggestUnitPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch suggested gas price: %w", err)
	}
	return price, nil
}

// EstimateResourceCost estimates the gas required by the unsigned call.
func (c *Client) EstimateResourceCost(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	gas, err := c.eth.EstimateGas(ctx, call)
	if err != nil {
		return 0, fmt.Errorf("gas estimation failed: %w", err)
	}
	return gas, nil
}

// Submit broadcasts the signed transaction and returns its hash.
func (c *Client) Submit(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

// PollStatus fetches the receipt for a submitted transaction. A pending
// transaction yields ethereum.NotFound.
func (c *Client) PollStatus(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.eth.TransactionReceipt(ctx, txHash)
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}
