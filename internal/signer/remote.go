package signer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// RemoteConfig configures a RemoteSigner.
type RemoteConfig struct {
	// Endpoint is the JSON-RPC URL exposing eth_signTransaction.
	Endpoint string
	// APIKey is sent as a bearer token when set.
	APIKey string
	// Address is the account the remote service signs for.
	Address common.Address
	ChainID *big.Int

	MaxRetries     int           // default: 3
	InitialBackoff time.Duration // default: 1s
	MaxBackoff     time.Duration // default: 10s
	Timeout        time.Duration // default: 30s
}

// RemoteSigner signs transactions through a remote eth_signTransaction endpoint.
// The private key never leaves the remote service.
type RemoteSigner struct {
	config     RemoteConfig
	client     *rpc.Client
	httpClient *http.Client
	closed     atomic.Bool
}

// NewRemoteSigner creates a RemoteSigner. The connection is lazy; nothing is sent until SignTransaction.
func NewRemoteSigner(cfg RemoteConfig) (*RemoteSigner, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("remote signer endpoint is required")
	}
	if cfg.ChainID == nil {
		return nil, fmt.Errorf("remote signer chain id is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	opts := []rpc.ClientOption{
		rpc.WithHTTPClient(httpClient),
	}
	if cfg.APIKey != "" {
		opts = append(opts, rpc.WithHeader("Authorization", "Bearer "+cfg.APIKey))
	}

	client, err := rpc.DialOptions(context.Background(), cfg.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial remote signer: %w", err)
	}

	return &RemoteSigner{config: cfg, client: client, httpClient: httpClient}, nil
}

// Address returns the remote account address.
func (s *RemoteSigner) Address() common.Address {
	return s.config.Address
}

// ChainID returns the chain ID for signing.
func (s *RemoteSigner) ChainID() *big.Int {
	return s.config.ChainID
}

// Close releases the RPC client and its idle connections. Later signing fails with ErrClosed.
func (s *RemoteSigner) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.client.Close()
	s.httpClient.CloseIdleConnections()
}

// SignTransaction asks the remote service to sign tx and checks the returned sender.
func (s *RemoteSigner) SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	args := s.buildTransactionArgs(tx)

	var lastErr error
	backoff := s.config.InitialBackoff

	for attempt := 0; attempt < s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, s.config.MaxBackoff)
		}

		var raw hexutil.Bytes
		err := s.client.CallContext(ctx, &raw, "eth_signTransaction", args)
		if err != nil {
			lastErr = err
			if !isRetryable(err) {
				return nil, fmt.Errorf("signing failed: %w", err)
			}
			continue
		}

		var signed types.Transaction
		if err := signed.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("decode signed transaction: %w", err)
		}
		if err := verifySender(&signed, s.config.ChainID, s.config.Address); err != nil {
			return nil, err
		}
		return &signed, nil
	}

	return nil, fmt.Errorf("signing failed after %d attempts: %w", s.config.MaxRetries, lastErr)
}

// buildTransactionArgs converts a transaction into eth_signTransaction arguments.
func (s *RemoteSigner) buildTransactionArgs(tx *types.Transaction) txArgs {
	args := txArgs{
		From:    s.config.Address,
		To:      tx.To(),
		Gas:     hexutil.Uint64(tx.Gas()),
		Value:   (*hexutil.Big)(tx.Value()),
		Nonce:   hexutil.Uint64(tx.Nonce()),
		ChainID: (*hexutil.Big)(s.config.ChainID),
	}
	if len(tx.Data()) > 0 {
		data := hexutil.Bytes(tx.Data())
		args.Data = &data
	}

	switch tx.Type() {
	case types.DynamicFeeTxType:
		args.MaxFeePerGas = (*hexutil.Big)(tx.GasFeeCap())
		args.MaxPriorityFeePerGas = (*hexutil.Big)(tx.GasTipCap())
	default:
		args.GasPrice = (*hexutil.Big)(tx.GasPrice())
	}
	return args
}

// isRetryable reports transport failures, HTTP 5xx and JSON-RPC server errors (-32000 to -32099).
func isRetryable(err error) bool {
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		code := rpcErr.ErrorCode()
		return code <= -32000 && code >= -32099
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, rpc.ErrClientQuit) {
		return false
	}
	// Anything else came from the transport.
	return true
}

type txArgs struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Gas                  hexutil.Uint64  `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	Data                 *hexutil.Bytes  `json:"data,omitempty"`
	ChainID              *hexutil.Big    `json:"chainId"`
}

var _ TransactionSigner = (*RemoteSigner)(nil)
