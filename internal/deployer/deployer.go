// Package deployer submits a single contract-creation transaction and waits for it to be mined.
package deployer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/farhad-zada/holders-collaborators-claims/internal/abiutil"
	"github.com/farhad-zada/holders-collaborators-claims/internal/signer"
)

// Sentinel errors
var (
	ErrChainMismatch     = errors.New("deployer: RPC chain id does not match configuration")
	ErrInsufficientFunds = errors.New("deployer: deployer account has no balance")
	ErrReverted          = errors.New("deployer: contract creation reverted")
	ErrNoCode            = errors.New("deployer: no code at deployed address")
	ErrEmptyBytecode     = errors.New("deployer: empty creation bytecode")
)

const (
	// DefaultFallbackGasLimit is used when gas estimation fails.
	DefaultFallbackGasLimit uint64 = 10_000_000
	// DefaultPollingInterval is the receipt polling interval when none is configured.
	DefaultPollingInterval = 4 * time.Second
)

// Options configure a Deployer for one network.
type Options struct {
	// ChainID is the configured chain id. Zero skips the check.
	ChainID int64
	// GasPrice forces a legacy transaction at this price.
	GasPrice         *big.Int
	PollingInterval  time.Duration
	FallbackGasLimit uint64
}

// Request describes one contract creation.
type Request struct {
	Contract string
	Bytecode []byte
	ABI      abi.ABI
	Args     []any
	Signer   signer.TransactionSigner
	// DryRun builds and signs the transaction without sending it.
	DryRun bool
}

// Result describes a deployed (or, for a dry run, predicted) contract.
type Result struct {
	Contract    string
	Address     common.Address
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	GasLimit    uint64
	Nonce       uint64
	Deployer    common.Address
	ChainID     *big.Int
	EncodedArgs []byte
	DryRun      bool
}

// Deployer deploys contracts through a Client.
type Deployer struct {
	client Client
	opts   Options
	logger *slog.Logger
}

// New creates a Deployer.
func New(client Client, opts Options, logger *slog.Logger) *Deployer {
	if opts.PollingInterval <= 0 {
		opts.PollingInterval = DefaultPollingInterval
	}
	if opts.FallbackGasLimit == 0 {
		opts.FallbackGasLimit = DefaultFallbackGasLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deployer{client: client, opts: opts, logger: logger}
}

// Deploy submits the contract-creation transaction and waits for its receipt.
func (d *Deployer) Deploy(ctx context.Context, req Request) (*Result, error) {
	if len(req.Bytecode) == 0 {
		return nil, ErrEmptyBytecode
	}

	chainID, err := d.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	if d.opts.ChainID != 0 && chainID.Int64() != d.opts.ChainID {
		return nil, fmt.Errorf("%w: rpc=%s configured=%d", ErrChainMismatch, chainID, d.opts.ChainID)
	}
	if req.Signer.ChainID().Cmp(chainID) != 0 {
		return nil, fmt.Errorf("%w: signer=%s rpc=%s", ErrChainMismatch, req.Signer.ChainID(), chainID)
	}

	encodedArgs, err := abiutil.PackConstructor(req.ABI, req.Args)
	if err != nil {
		return nil, err
	}
	data := make([]byte, 0, len(req.Bytecode)+len(encodedArgs))
	data = append(data, req.Bytecode...)
	data = append(data, encodedArgs...)

	from := req.Signer.Address()

	balance, err := d.client.BalanceAt(ctx, from, nil)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	if balance.Sign() == 0 {
		if !req.DryRun {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientFunds, from.Hex())
		}
		d.logger.Warn("deployer account has no funds", slog.String("deployer", from.Hex()))
	}

	nonce, err := d.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}
	predicted := crypto.CreateAddress(from, nonce)

	gas := d.estimateGas(ctx, from, data)

	tx, err := d.buildTx(ctx, chainID, nonce, gas, data)
	if err != nil {
		return nil, err
	}

	d.logger.Info("deploying contract",
		slog.String("contract", req.Contract),
		slog.String("deployer", from.Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas", gas),
		slog.String("predicted_address", predicted.Hex()),
	)

	signedTx, err := req.Signer.SignTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	result := &Result{
		Contract:    req.Contract,
		Address:     predicted,
		TxHash:      signedTx.Hash(),
		GasLimit:    gas,
		Nonce:       nonce,
		Deployer:    from,
		ChainID:     chainID,
		EncodedArgs: encodedArgs,
		DryRun:      req.DryRun,
	}
	if req.DryRun {
		d.logger.Info("dry run, transaction not sent", slog.String("tx_hash", result.TxHash.Hex()))
		return result, nil
	}

	if err := d.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	d.logger.Info("transaction sent", slog.String("tx_hash", result.TxHash.Hex()))

	receipt, err := d.waitForReceipt(ctx, result.TxHash)
	if err != nil {
		return nil, fmt.Errorf("wait for receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: tx %s in block %d", ErrReverted, result.TxHash.Hex(), receipt.BlockNumber.Uint64())
	}

	result.BlockNumber = receipt.BlockNumber.Uint64()
	result.GasUsed = receipt.GasUsed
	if receipt.ContractAddress != (common.Address{}) {
		if receipt.ContractAddress != predicted {
			d.logger.Warn("deployed address differs from prediction",
				slog.String("predicted", predicted.Hex()),
				slog.String("actual", receipt.ContractAddress.Hex()),
			)
		}
		result.Address = receipt.ContractAddress
	}

	code, err := d.client.CodeAt(ctx, result.Address, nil)
	if err != nil {
		return nil, fmt.Errorf("get code: %w", err)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCode, result.Address.Hex())
	}

	d.logger.Info("contract deployed",
		slog.String("contract", req.Contract),
		slog.String("address", result.Address.Hex()),
		slog.Uint64("block", result.BlockNumber),
		slog.Uint64("gas_used", result.GasUsed),
	)
	return result, nil
}

// estimateGas returns the estimate plus a 20% buffer, or the fallback limit when estimation fails.
func (d *Deployer) estimateGas(ctx context.Context, from common.Address, data []byte) uint64 {
	estimated, err := d.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		Data:  data,
		Value: big.NewInt(0),
	})
	if err != nil {
		d.logger.Warn("gas estimation failed, using fallback limit",
			slog.String("error", err.Error()),
			slog.Uint64("gas", d.opts.FallbackGasLimit),
		)
		return d.opts.FallbackGasLimit
	}
	return estimated + estimated/5
}

// buildTx picks the fee model: a configured gas price forces legacy pricing, a chain with a
// base fee gets an EIP-1559 transaction, anything else falls back to the suggested legacy price.
func (d *Deployer) buildTx(ctx context.Context, chainID *big.Int, nonce, gas uint64, data []byte) (*types.Transaction, error) {
	if d.opts.GasPrice != nil {
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: new(big.Int).Set(d.opts.GasPrice),
			Gas:      gas,
			Value:    big.NewInt(0),
			Data:     data,
		}), nil
	}

	header, err := d.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("get block header: %w", err)
	}

	if header.BaseFee == nil {
		gasPrice, err := d.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("get gas price: %w", err)
		}
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			Value:    big.NewInt(0),
			Data:     data,
		}), nil
	}

	gasTipCap, err := d.client.SuggestGasTipCap(ctx)
	if err != nil {
		gasPrice, priceErr := d.client.SuggestGasPrice(ctx)
		if priceErr != nil {
			return nil, fmt.Errorf("get gas price: %w", priceErr)
		}
		gasTipCap = gasPrice
	}

	// max fee = 2 * base fee + tip
	gasFeeCap := new(big.Int).Mul(header.BaseFee, big.NewInt(2))
	gasFeeCap.Add(gasFeeCap, gasTipCap)

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gas,
		Value:     big.NewInt(0),
		Data:      data,
	}), nil
}

// waitForReceipt polls at the configured interval until the receipt appears or ctx ends.
func (d *Deployer) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(d.opts.PollingInterval)
	defer ticker.Stop()

	for {
		receipt, err := d.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			d.logger.Debug("receipt lookup failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timeout waiting for transaction %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
