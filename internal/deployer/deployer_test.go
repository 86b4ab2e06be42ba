package deployer

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farhad-zada/holders-collaborators-claims/internal/claims"
	"github.com/farhad-zada/holders-collaborators-claims/internal/signer"
)

// creationCode copies a 10-byte runtime that returns 42. Appended constructor args are ignored.
const (
	creationCode = "0x600a600c600039600a6000f3602a60005260206000f3"
	runtimeCode  = "0x602a60005260206000f3"
	revertCode   = "0x60006000fd"

	claimsABI = `[{"type":"constructor","stateMutability":"nonpayable","inputs":[
		{"name":"token","type":"address"},
		{"name":"label","type":"string"},
		{"name":"start","type":"uint256"},
		{"name":"min","type":"uint256"},
		{"name":"max","type":"uint256"},
		{"name":"recipient","type":"address"}]}]`

	simulatedChainID = 1337
)

// committingClient mines a block after every sent transaction.
type committingClient struct {
	simulated.Client
	backend *simulated.Backend
}

func (c committingClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.Client.SendTransaction(ctx, tx); err != nil {
		return err
	}
	c.backend.Commit()
	return nil
}

type fixture struct {
	backend *simulated.Backend
	client  committingClient
	signer  *signer.LocalSigner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, err := signer.NewLocalSigner(signer.DevPrivateKeys[0], big.NewInt(simulatedChainID))
	require.NoError(t, err)

	funds := new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
	backend := simulated.NewBackend(types.GenesisAlloc{
		s.Address(): {Balance: funds},
	})
	t.Cleanup(func() { _ = backend.Close() })

	return &fixture{
		backend: backend,
		client:  committingClient{Client: backend.Client(), backend: backend},
		signer:  s,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseABI(t *testing.T, def string) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(def))
	require.NoError(t, err)
	return parsed
}

func claimsRequest(t *testing.T, s signer.TransactionSigner) Request {
	t.Helper()
	return Request{
		Contract: claims.ContractName,
		Bytecode: hexutil.MustDecode(creationCode),
		ABI:      parseABI(t, claimsABI),
		Args:     claims.DefaultArgs(s.Address(), time.Now()),
		Signer:   s,
	}
}

func TestDeploy(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d := New(f.client, Options{ChainID: simulatedChainID, PollingInterval: 10 * time.Millisecond}, testLogger())

	res, err := d.Deploy(ctx, claimsRequest(t, f.signer))
	require.NoError(t, err)

	assert.Equal(t, crypto.CreateAddress(f.signer.Address(), 0), res.Address)
	assert.Equal(t, uint64(0), res.Nonce)
	assert.Equal(t, f.signer.Address(), res.Deployer)
	assert.Equal(t, int64(simulatedChainID), res.ChainID.Int64())
	assert.NotZero(t, res.BlockNumber)
	assert.NotZero(t, res.GasUsed)
	assert.GreaterOrEqual(t, res.GasLimit, res.GasUsed)
	assert.Len(t, res.EncodedArgs, 8*32, "six static words plus string offset data")

	code, err := f.client.CodeAt(ctx, res.Address, nil)
	require.NoError(t, err)
	assert.Equal(t, hexutil.MustDecode(runtimeCode), code)

	tx, _, err := f.client.TransactionByHash(ctx, res.TxHash)
	require.NoError(t, err)
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())

	second, err := d.Deploy(ctx, claimsRequest(t, f.signer))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), second.Nonce)
	assert.Equal(t, crypto.CreateAddress(f.signer.Address(), 1), second.Address)
}

func TestDeploy_ConfiguredGasPriceUsesLegacyTx(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := New(f.client, Options{
		GasPrice:        big.NewInt(5_000_000_000),
		PollingInterval: 10 * time.Millisecond,
	}, testLogger())

	res, err := d.Deploy(ctx, claimsRequest(t, f.signer))
	require.NoError(t, err)

	tx, _, err := f.client.TransactionByHash(ctx, res.TxHash)
	require.NoError(t, err)
	assert.Equal(t, uint8(types.LegacyTxType), tx.Type())
	assert.Equal(t, int64(5_000_000_000), tx.GasPrice().Int64())
}

func TestDeploy_DryRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := New(f.client, Options{ChainID: simulatedChainID}, testLogger())

	req := claimsRequest(t, f.signer)
	req.DryRun = true
	res, err := d.Deploy(ctx, req)
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.Equal(t, crypto.CreateAddress(f.signer.Address(), 0), res.Address)
	assert.Zero(t, res.BlockNumber)

	nonce, err := f.client.PendingNonceAt(ctx, f.signer.Address())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), nonce)
}

func TestDeploy_ChainMismatch(t *testing.T) {
	f := newFixture(t)

	d := New(f.client, Options{ChainID: 31337}, testLogger())
	_, err := d.Deploy(context.Background(), claimsRequest(t, f.signer))
	assert.ErrorIs(t, err, ErrChainMismatch)
}

func TestDeploy_SignerChainMismatch(t *testing.T) {
	f := newFixture(t)

	other, err := signer.NewLocalSigner(signer.DevPrivateKeys[0], big.NewInt(31337))
	require.NoError(t, err)

	d := New(f.client, Options{}, testLogger())
	_, err = d.Deploy(context.Background(), claimsRequest(t, other))
	assert.ErrorIs(t, err, ErrChainMismatch)
}

func TestDeploy_InsufficientFunds(t *testing.T) {
	f := newFixture(t)

	poor, err := signer.NewLocalSigner(signer.DevPrivateKeys[1], big.NewInt(simulatedChainID))
	require.NoError(t, err)

	d := New(f.client, Options{ChainID: simulatedChainID}, testLogger())
	_, err = d.Deploy(context.Background(), claimsRequest(t, poor))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestDeploy_DryRunUnfundedAccount(t *testing.T) {
	f := newFixture(t)

	poor, err := signer.NewLocalSigner(signer.DevPrivateKeys[1], big.NewInt(simulatedChainID))
	require.NoError(t, err)

	d := New(f.client, Options{ChainID: simulatedChainID}, testLogger())
	req := claimsRequest(t, poor)
	req.DryRun = true

	res, err := d.Deploy(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, crypto.CreateAddress(poor.Address(), 0), res.Address)
}

func TestDeploy_Reverted(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d := New(f.client, Options{
		PollingInterval:  10 * time.Millisecond,
		FallbackGasLimit: 1_000_000,
	}, testLogger())

	_, err := d.Deploy(ctx, Request{
		Contract: "Reverter",
		Bytecode: hexutil.MustDecode(revertCode),
		Signer:   f.signer,
	})
	assert.ErrorIs(t, err, ErrReverted)
}

func TestDeploy_ArgumentErrors(t *testing.T) {
	f := newFixture(t)
	d := New(f.client, Options{}, testLogger())

	req := claimsRequest(t, f.signer)
	req.Args = req.Args[:5]
	_, err := d.Deploy(context.Background(), req)
	assert.Error(t, err)

	req = claimsRequest(t, f.signer)
	req.Bytecode = nil
	_, err = d.Deploy(context.Background(), req)
	assert.ErrorIs(t, err, ErrEmptyBytecode)
}

func TestDeploy_ContextCancelledWhileWaiting(t *testing.T) {
	f := newFixture(t)

	// Without the committing wrapper the transaction is never mined.
	d := New(f.backend.Client(), Options{PollingInterval: 5 * time.Millisecond}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := d.Deploy(ctx, claimsRequest(t, f.signer))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_Defaults(t *testing.T) {
	d := New(nil, Options{}, nil)
	assert.Equal(t, DefaultPollingInterval, d.opts.PollingInterval)
	assert.Equal(t, DefaultFallbackGasLimit, d.opts.FallbackGasLimit)
	assert.NotNil(t, d.logger)
}

func TestEncodedArgsPrefix(t *testing.T) {
	// The token argument is the zero address, so the first encoded word is zero.
	f := newFixture(t)
	d := New(f.client, Options{}, testLogger())

	req := claimsRequest(t, f.signer)
	req.DryRun = true
	res, err := d.Deploy(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, common.Hash{}.Bytes(), res.EncodedArgs[:32])
}
