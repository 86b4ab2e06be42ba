// Package signer acquires the account that authorizes the deployment transaction.
package signer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/farhad-zada/holders-collaborators-claims/internal/config"
)

// Sentinel errors
var (
	ErrNoSigner        = errors.New("signer: no signing account configured")
	ErrProductionChain = errors.New("signer: dev accounts cannot be used on a production chain")
	ErrSenderMismatch  = errors.New("signer: signed transaction sender does not match signer address")
	ErrClosed          = errors.New("signer: closed")
)

// TransactionSigner signs transactions for a single address on a single chain.
type TransactionSigner interface {
	Address() common.Address
	ChainID() *big.Int
	SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)
}

// Acquire returns the default signer for a network, the first available of:
// a remote signer, an encrypted keystore, the network's first configured account,
// and (on local networks only) the first dev account.
func Acquire(ctx context.Context, net *config.Network, cfg config.SignerConfig, logger *slog.Logger) (TransactionSigner, error) {
	chainID := big.NewInt(net.ChainID)

	switch {
	case cfg.RemoteURL != "":
		if !common.IsHexAddress(cfg.RemoteAddress) {
			return nil, fmt.Errorf("remote signer needs a valid signer address, got %q", cfg.RemoteAddress)
		}
		logger.Debug("using remote signer", slog.String("endpoint", cfg.RemoteURL))
		return NewRemoteSigner(RemoteConfig{
			Endpoint: cfg.RemoteURL,
			APIKey:   cfg.RemoteAPIKey,
			Address:  common.HexToAddress(cfg.RemoteAddress),
			ChainID:  chainID,
		})

	case cfg.Keystore != "":
		logger.Debug("using keystore signer", slog.String("path", cfg.Keystore))
		data, err := os.ReadFile(cfg.Keystore)
		if err != nil {
			return nil, fmt.Errorf("read keystore: %w", err)
		}
		return NewKeystoreSigner(data, cfg.KeystorePassword, chainID)

	case len(net.Accounts) > 0:
		return NewLocalSigner(net.Accounts[0], chainID)

	case net.Local:
		logger.Debug("using dev account", slog.Int("index", 0))
		dev, err := NewDevSigner(chainID)
		if err != nil {
			return nil, err
		}
		return dev.Account(0)
	}

	return nil, fmt.Errorf("%w for network %s", ErrNoSigner, net.Name)
}

// Close releases resources held by s. Signers without a connection are left alone.
func Close(s TransactionSigner) {
	if c, ok := s.(interface{ Close() }); ok {
		c.Close()
	}
}

// verifySender checks that a signed transaction recovers to the expected address.
func verifySender(tx *types.Transaction, chainID *big.Int, want common.Address) error {
	from, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return fmt.Errorf("recover sender: %w", err)
	}
	if from != want {
		return fmt.Errorf("%w: got %s, want %s", ErrSenderMismatch, from.Hex(), want.Hex())
	}
	return nil
}
