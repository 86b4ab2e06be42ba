package deployer

import (
	"context"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/farhad-zada/holders-collaborators-claims/internal/config"
)

// Client is the subset of the Ethereum JSON-RPC API needed to deploy a contract.
// Both *ethclient.Client and simulated.Client satisfy it.
type Client interface {
	ethereum.GasEstimator
	ethereum.GasPricer
	ethereum.TransactionSender

	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Dial connects to a network's RPC endpoint. Every HTTP request is bounded by the network timeout.
func Dial(ctx context.Context, net *config.Network) (*ethclient.Client, error) {
	opts := []rpc.ClientOption{}
	if net.Timeout > 0 {
		opts = append(opts, rpc.WithHTTPClient(&http.Client{Timeout: net.Timeout}))
	}

	rpcClient, err := rpc.DialOptions(ctx, net.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", net.Name, err)
	}
	return ethclient.NewClient(rpcClient), nil
}

var _ Client = (*ethclient.Client)(nil)
