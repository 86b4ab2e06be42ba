package signer

import (
	"context"
	"crypto/ecdsa"
	"io"
	"log/slog"
	"math/big"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farhad-zada/holders-collaborators-claims/internal/config"
)

const devAccount0 = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func unsignedTx() *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    3,
		GasPrice: big.NewInt(1_000_000_000),
		Gas:      100_000,
		Value:    big.NewInt(0),
		Data:     []byte{0x60, 0x0a},
	})
}

func TestNewLocalSigner(t *testing.T) {
	chainID := big.NewInt(31337)

	for _, key := range []string{DevPrivateKeys[0], "0x" + DevPrivateKeys[0], "  0x" + DevPrivateKeys[0] + "\n"} {
		s, err := NewLocalSigner(key, chainID)
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress(devAccount0), s.Address())
		assert.Equal(t, int64(31337), s.ChainID().Int64())
	}
}

func TestNewLocalSigner_InvalidKeyNotLeaked(t *testing.T) {
	_, err := NewLocalSigner("0xnot-a-key-deadbeef", big.NewInt(1))
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "deadbeef")
}

func TestLocalSigner_SignTransaction(t *testing.T) {
	chainID := big.NewInt(31337)
	s, err := NewLocalSigner(DevPrivateKeys[1], chainID)
	require.NoError(t, err)

	signed, err := s.SignTransaction(context.Background(), unsignedTx())
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), from)
	assert.Equal(t, uint64(3), signed.Nonce())
}

func TestNewKeystoreSigner(t *testing.T) {
	privateKey, err := crypto.HexToECDSA(DevPrivateKeys[2])
	require.NoError(t, err)

	key := &keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		PrivateKey: privateKey,
	}
	keyJSON, err := keystore.EncryptKey(key, "hunter2", keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)

	s, err := NewKeystoreSigner(keyJSON, "hunter2", big.NewInt(11155111))
	require.NoError(t, err)
	assert.Equal(t, key.Address, s.Address())

	_, err = NewKeystoreSigner(keyJSON, "wrong", big.NewInt(11155111))
	assert.Error(t, err)
}

func TestNewDevSigner(t *testing.T) {
	dev, err := NewDevSigner(big.NewInt(31337))
	require.NoError(t, err)

	addrs := dev.Addresses()
	require.Len(t, addrs, 10)
	assert.Equal(t, common.HexToAddress(devAccount0), addrs[0])
	assert.Equal(t, common.HexToAddress("0xa0Ee7A142d267C1f36714E4a8F75612F20a79720"), addrs[9])

	acct, err := dev.Account(0)
	require.NoError(t, err)
	assert.Equal(t, addrs[0], acct.Address())

	_, err = dev.Account(10)
	assert.Error(t, err)
}

func TestNewDevSigner_RefusesProductionChains(t *testing.T) {
	for _, id := range []int64{1, 10, 56, 137, 8453, 42161} {
		_, err := NewDevSigner(big.NewInt(id))
		assert.ErrorIs(t, err, ErrProductionChain, "chain %d", id)
	}
}

func TestAcquire(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()

	t.Run("first configured account", func(t *testing.T) {
		net := &config.Network{Name: "tbsc", ChainID: 97, Accounts: []string{DevPrivateKeys[3]}}
		s, err := Acquire(ctx, net, config.SignerConfig{}, logger)
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906"), s.Address())
		assert.Equal(t, int64(97), s.ChainID().Int64())
	})

	t.Run("dev account on local network", func(t *testing.T) {
		net := &config.Network{Name: "hardhat", ChainID: 31337, Local: true}
		s, err := Acquire(ctx, net, config.SignerConfig{}, logger)
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress(devAccount0), s.Address())
	})

	t.Run("no account on remote network", func(t *testing.T) {
		net := &config.Network{Name: "bsc", ChainID: 56}
		_, err := Acquire(ctx, net, config.SignerConfig{}, logger)
		assert.ErrorIs(t, err, ErrNoSigner)
	})

	t.Run("remote signer needs an address", func(t *testing.T) {
		net := &config.Network{Name: "sep", ChainID: 11155111}
		_, err := Acquire(ctx, net, config.SignerConfig{RemoteURL: "http://127.0.0.1:1"}, logger)
		assert.Error(t, err)
	})

	t.Run("missing keystore file", func(t *testing.T) {
		net := &config.Network{Name: "sep", ChainID: 11155111}
		_, err := Acquire(ctx, net, config.SignerConfig{Keystore: t.TempDir() + "/missing.json"}, logger)
		assert.Error(t, err)
	})
}

// signService is a fake remote signer exposing eth_signTransaction.
type signService struct {
	key      *ecdsa.PrivateKey
	chainID  *big.Int
	failures int32
	calls    atomic.Int32
}

type busyError struct{}

func (busyError) Error() string  { return "signer busy" }
func (busyError) ErrorCode() int { return -32000 }

type rejectError struct{}

func (rejectError) Error() string  { return "policy denied" }
func (rejectError) ErrorCode() int { return -32602 }

func (s *signService) SignTransaction(args txArgs) (hexutil.Bytes, error) {
	n := s.calls.Add(1)
	if n <= s.failures {
		return nil, busyError{}
	}
	if s.failures < 0 {
		return nil, rejectError{}
	}

	var data []byte
	if args.Data != nil {
		data = *args.Data
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    uint64(args.Nonce),
		GasPrice: args.GasPrice.ToInt(),
		Gas:      uint64(args.Gas),
		To:       args.To,
		Value:    args.Value.ToInt(),
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return nil, err
	}
	return signed.MarshalBinary()
}

func startSignService(t *testing.T, svc *signService) string {
	t.Helper()
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", svc))
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
	})
	return ts.URL
}

func TestRemoteSigner_SignTransaction(t *testing.T) {
	chainID := big.NewInt(11155111)
	key, err := crypto.HexToECDSA(DevPrivateKeys[4])
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	svc := &signService{key: key, chainID: chainID, failures: 2}
	url := startSignService(t, svc)

	s, err := NewRemoteSigner(RemoteConfig{
		Endpoint:       url,
		APIKey:         "test-key",
		Address:        addr,
		ChainID:        chainID,
		InitialBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	defer s.Close()

	signed, err := s.SignTransaction(context.Background(), unsignedTx())
	require.NoError(t, err)
	assert.Equal(t, int32(3), svc.calls.Load())
	assert.Equal(t, uint64(3), signed.Nonce())
	assert.Equal(t, []byte{0x60, 0x0a}, signed.Data())
}

func TestRemoteSigner_SenderMismatch(t *testing.T) {
	chainID := big.NewInt(11155111)
	key, err := crypto.HexToECDSA(DevPrivateKeys[5])
	require.NoError(t, err)

	url := startSignService(t, &signService{key: key, chainID: chainID})

	s, err := NewRemoteSigner(RemoteConfig{
		Endpoint: url,
		Address:  common.HexToAddress(devAccount0),
		ChainID:  chainID,
	})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.SignTransaction(context.Background(), unsignedTx())
	assert.ErrorIs(t, err, ErrSenderMismatch)
}

func TestRemoteSigner_NonRetryableError(t *testing.T) {
	chainID := big.NewInt(11155111)
	key, err := crypto.HexToECDSA(DevPrivateKeys[6])
	require.NoError(t, err)

	svc := &signService{key: key, chainID: chainID, failures: -1}
	url := startSignService(t, svc)

	s, err := NewRemoteSigner(RemoteConfig{
		Endpoint:       url,
		Address:        crypto.PubkeyToAddress(key.PublicKey),
		ChainID:        chainID,
		InitialBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.SignTransaction(context.Background(), unsignedTx())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "policy denied"))
	assert.Equal(t, int32(1), svc.calls.Load())
}

func TestRemoteSigner_BuildTransactionArgs(t *testing.T) {
	s := &RemoteSigner{config: RemoteConfig{
		Address: common.HexToAddress(devAccount0),
		ChainID: big.NewInt(97),
	}}

	legacy := s.buildTransactionArgs(unsignedTx())
	assert.Nil(t, legacy.To)
	assert.NotNil(t, legacy.GasPrice)
	assert.Nil(t, legacy.MaxFeePerGas)
	assert.Equal(t, int64(97), legacy.ChainID.ToInt().Int64())

	dynamic := s.buildTransactionArgs(types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(97),
		GasTipCap: big.NewInt(2),
		GasFeeCap: big.NewInt(30),
		Gas:       21000,
		Value:     big.NewInt(0),
	}))
	assert.Nil(t, dynamic.GasPrice)
	assert.Equal(t, int64(30), dynamic.MaxFeePerGas.ToInt().Int64())
	assert.Equal(t, int64(2), dynamic.MaxPriorityFeePerGas.ToInt().Int64())
	assert.Nil(t, dynamic.Data)
}

func TestClose(t *testing.T) {
	chainID := big.NewInt(11155111)
	key, err := crypto.HexToECDSA(DevPrivateKeys[4])
	require.NoError(t, err)
	svc := &signService{key: key, chainID: chainID}
	url := startSignService(t, svc)

	s, err := Acquire(context.Background(), &config.Network{Name: "sep", ChainID: 11155111}, config.SignerConfig{
		RemoteURL:     url,
		RemoteAddress: crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}, discardLogger())
	require.NoError(t, err)

	Close(s)
	Close(s)

	_, err = s.SignTransaction(context.Background(), unsignedTx())
	require.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, svc.calls.Load())

	local, err := NewLocalSigner(DevPrivateKeys[0], chainID)
	require.NoError(t, err)
	assert.NotPanics(t, func() { Close(local) })
}
