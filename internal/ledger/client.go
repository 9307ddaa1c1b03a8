// Package ledger submits signed transactions to a Solana RPC endpoint.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/milamanifest69-lgtm/SolanaProject/internal/retry"
)

// DefaultEndpoint is the public mainnet RPC.
const DefaultEndpoint = rpc.MainNetBeta_RPC

// JSON-RPC error codes that resubmitting the same bytes cannot fix.
var permanentRPCCodes = map[int]bool{
	-32002: true, // transaction simulation failed
	-32003: true, // signature verification failure
	-32600: true, // invalid request
	-32602: true, // invalid params
}

// Client submits signed transactions. Each Submit is one attempt.
type Client struct {
	rpc  *rpc.Client
	opts rpc.TransactionOpts
}

// Option configures Client.
type Option func(*Client)

// WithSkipPreflight disables the node's simulation before broadcast.
func WithSkipPreflight(skip bool) Option {
	return func(c *Client) {
		c.opts.SkipPreflight = skip
	}
}

// WithPreflightCommitment sets the commitment used for simulation.
func WithPreflightCommitment(commitment rpc.CommitmentType) Option {
	return func(c *Client) {
		c.opts.PreflightCommitment = commitment
	}
}

// NewClient creates a Client for endpoint. An empty endpoint uses DefaultEndpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		rpc: rpc.New(endpoint),
		opts: rpc.TransactionOpts{
			PreflightCommitment: rpc.CommitmentConfirmed,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit sends signed transaction bytes and returns the transaction signature.
// Node rejections that retrying cannot change are marked retry.Permanent.
func (c *Client) Submit(ctx context.Context, signed []byte) (string, error) {
	sig, err := c.rpc.SendRawTransactionWithOpts(ctx, signed, c.opts)
	if err != nil {
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) && permanentRPCCodes[rpcErr.Code] {
			return "", retry.Permanent(fmt.Errorf("send transaction: %w", err))
		}
		return "", fmt.Errorf("send transaction: %w", err)
	}
	return sig.String(), nil
}

// Close releases the underlying HTTP transport.
func (c *Client) Close() error {
	return c.rpc.Close()
}
