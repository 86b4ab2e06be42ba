package cmd

import (
	"bytes"
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/farhad-zada/holders-collaborators-claims/internal/config"
	"github.com/farhad-zada/holders-collaborators-claims/internal/deployer"
)

// devAccount is development account #0.
var devAccount = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

const claimsArtifact = `{
  "_format": "hh-sol-artifact-1",
  "contractName": "Claims",
  "sourceName": "contracts/Claims.sol",
  "abi": [{"type":"constructor","stateMutability":"nonpayable","inputs":[
    {"name":"token","type":"address"},{"name":"label","type":"string"},
    {"name":"start","type":"uint256"},{"name":"min","type":"uint256"},
    {"name":"max","type":"uint256"},{"name":"recipient","type":"address"}]}],
  "bytecode": "0x600a600c600039600a6000f3602a60005260206000f3",
  "deployedBytecode": "0x602a60005260206000f3",
  "linkReferences": {},
  "deployedLinkReferences": {}
}`

const baseConfig = `
default_network: anvil
networks:
  anvil:
    url: http://127.0.0.1:8545
    chain_id: 1337
    local: true
    polling_interval: 10ms
    explorer: local
`

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

// setupWorkspace creates a project directory with a config file and the Claims artifact,
// and makes it the working directory.
func setupWorkspace(t *testing.T, extraConfig string) string {
	t.Helper()
	clearNetworkEnv(t)

	dir := t.TempDir()
	chdir(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "claimsctl.yaml"), []byte(baseConfig+extraConfig), 0o600))

	artDir := filepath.Join(dir, "artifacts", "contracts", "Claims.sol")
	require.NoError(t, os.MkdirAll(artDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(artDir, "Claims.json"), []byte(claimsArtifact), 0o644))
	return dir
}

// useSimulatedChain routes deploys to a simulated chain where development account #0 is funded.
func useSimulatedChain(t *testing.T) *simulated.Backend {
	t.Helper()

	funds := new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
	backend := simulated.NewBackend(types.GenesisAlloc{devAccount: {Balance: funds}})
	t.Cleanup(func() { _ = backend.Close() })

	orig := dialClient
	dialClient = func(context.Context, *config.Network) (deployer.Client, func(), error) {
		return committingClient{Client: backend.Client(), backend: backend}, func() {}, nil
	}
	t.Cleanup(func() { dialClient = orig })
	return backend
}

func clearNetworkEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"BSC_RPC", "BSC_CID", "TBSC_RPC", "TBSC_CID",
		"POL_RPC", "POL_CID", "TPOL_RPC", "TPOL_CID",
		"ETH_RPC", "ETH_CID", "SEP_RPC", "SEP_CID",
		"PKEY", "ETH_APIKEY", "BSC_APIKEY", "POL_APIKEY",
	} {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
}

// resetFlags restores every flag to its default so that runs do not leak into each other.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCLI executes claimsctl with args and returns its stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		t.Logf("stderr:\n%s", stderr.String())
	}
	return stdout.String(), err
}

// chdir changes the working directory for the duration of the test,
// restoring the previous one on cleanup (equivalent to Go 1.24's t.Chdir).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
