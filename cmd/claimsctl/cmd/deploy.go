package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/farhad-zada/holders-collaborators-claims/internal/abiutil"
	"github.com/farhad-zada/holders-collaborators-claims/internal/artifact"
	"github.com/farhad-zada/holders-collaborators-claims/internal/claims"
	"github.com/farhad-zada/holders-collaborators-claims/internal/config"
	"github.com/farhad-zada/holders-collaborators-claims/internal/deployer"
	"github.com/farhad-zada/holders-collaborators-claims/internal/lock"
	"github.com/farhad-zada/holders-collaborators-claims/internal/metrics"
	"github.com/farhad-zada/holders-collaborators-claims/internal/registry"
	"github.com/farhad-zada/holders-collaborators-claims/internal/signer"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the Claims contract",
	Long: `Deploy a contract from its Hardhat artifact using the network's default signer.

The Claims constructor receives, in order:
  token      zero address            (--token)
  label      "Holders"               (--label)
  start      now in ms + 100         (--start)
  min        10                      (--min)
  max        1000                    (--max)
  recipient  the deploying account   (--recipient)

The signer is the first available of: the remote signer (signer.remote_url),
the keystore (signer.keystore), the network's first account (PKEY), and on the
local network the first development account.

Examples:
  # Local development chain
  claimsctl deploy

  # Sepolia with a custom label, then verify on Etherscan
  claimsctl deploy --network sep --label Collaborators --verify

  # Explicit constructor arguments; "deployer" is replaced by the signer address
  claimsctl deploy --network tpol --args 0x0000000000000000000000000000000000000000,Holders,1735689600000,10,1000,deployer

  # Build and sign only, print the predicted address
  claimsctl deploy --network bsc --dry-run`,
	RunE: runDeploy,
}

var (
	deployNetwork  string
	deployContract string
	deployArtifact string
	deployArgs     []string
	deployDryRun   bool
	deployVerify   bool
	deployTimeout  time.Duration
)

// dialClient is replaced in tests.
var dialClient = func(ctx context.Context, net *config.Network) (deployer.Client, func(), error) {
	client, err := deployer.Dial(ctx, net)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

// openLocker is replaced in tests.
var openLocker = lock.Open

func init() {
	deployCmd.Flags().StringVarP(&deployNetwork, "network", "n", "", "network name (default: default_network)")
	deployCmd.Flags().StringVar(&deployContract, "contract", claims.ContractName, "contract name in the artifacts directory")
	deployCmd.Flags().StringVar(&deployArtifact, "artifact", "", "artifact JSON path (default: <artifacts.root>/contracts/<C>.sol/<C>.json)")
	deployCmd.Flags().StringSliceVar(&deployArgs, "args", nil, "explicit constructor arguments, comma separated")
	deployCmd.Flags().BoolVar(&deployDryRun, "dry-run", false, "build and sign without sending")
	deployCmd.Flags().BoolVar(&deployVerify, "verify", false, "verify the source on the network's explorer after deploying")
	deployCmd.Flags().DurationVar(&deployTimeout, "timeout", 10*time.Minute, "overall deployment timeout")

	deployCmd.Flags().String("token", "", "Claims token address")
	deployCmd.Flags().String("label", "", "Claims label")
	deployCmd.Flags().String("start", "", "Claims start time in Unix milliseconds")
	deployCmd.Flags().String("min", "", "Claims minimum")
	deployCmd.Flags().String("max", "", "Claims maximum")
	deployCmd.Flags().String("recipient", "", "Claims recipient address (default: the deployer)")

	rootCmd.AddCommand(deployCmd)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	net, err := cfg.Network(deployNetwork)
	if err != nil {
		return err
	}

	artPath := deployArtifact
	if artPath == "" {
		artPath = artifact.Path(cfg.Artifacts.Root, deployContract)
	}
	art, err := artifact.Load(artPath)
	if err != nil {
		return err
	}
	bytecode, err := art.BytecodeBytes()
	if err != nil {
		return err
	}
	parsedABI, err := art.ParsedABI()
	if err != nil {
		return err
	}
	checkCompiler(artPath)

	ctx, cancel := context.WithTimeout(cmd.Context(), deployTimeout)
	defer cancel()

	client, closeClient, err := dialClient(ctx, net)
	if err != nil {
		return err
	}
	defer closeClient()

	s, err := signer.Acquire(ctx, net, cfg.Signer, logger)
	if err != nil {
		return err
	}
	defer signer.Close(s)
	if !jsonOut {
		printLine(cmd, "Deploying contracts with the account: %s", s.Address().Hex())
	}

	locker, err := openLocker(ctx, cfg.Lock)
	if err != nil {
		return err
	}
	defer locker.Close()

	lease, err := locker.Acquire(ctx, net.ChainID, s.Address(), leaseTTL(cfg.Lock.TTL, deployTimeout))
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to release deploy lock", slog.String("error", err.Error()))
		}
	}()

	ctorArgs, err := constructorArgs(cmd, s.Address())
	if err != nil {
		return err
	}

	recorder := metrics.New(cfg.Metrics)
	started := time.Now()

	d := deployer.New(client, deployer.Options{
		ChainID:         net.ChainID,
		GasPrice:        net.GasPrice,
		PollingInterval: net.PollingInterval,
	}, logger)

	result, deployErr := d.Deploy(ctx, deployer.Request{
		Contract: deployContract,
		Bytecode: bytecode,
		ABI:      parsedABI,
		Args:     ctorArgs,
		Signer:   s,
		DryRun:   deployDryRun,
	})

	observeDeployment(ctx, recorder, net.Name, started, result, deployErr)
	if deployErr != nil {
		return deployErr
	}

	if result.DryRun {
		if jsonOut {
			return printJSON(cmd, deployJSON(result, nil))
		}
		printDeployResult(cmd, result)
		return nil
	}

	rec := &registry.Deployment{
		Network:         net.Name,
		ChainID:         net.ChainID,
		Contract:        deployContract,
		Address:         result.Address.Hex(),
		TxHash:          result.TxHash.Hex(),
		BlockNumber:     result.BlockNumber,
		Deployer:        result.Deployer.Hex(),
		ConstructorArgs: abiutil.FormatArgs(ctorArgs),
		EncodedArgs:     hexutil.Encode(result.EncodedArgs),
	}

	store, closeStore, err := registry.Open(ctx, cfg.Registry)
	if err != nil {
		logger.Warn("deployment record not saved", slog.String("error", err.Error()))
		store, closeStore = registry.NopStore{}, nil
	} else if err := store.Save(ctx, rec); err != nil {
		logger.Warn("deployment record not saved", slog.String("error", err.Error()))
	}
	if closeStore != nil {
		defer closeStore.Close()
	}

	if jsonOut {
		out := deployJSON(result, rec)
		var verifyErr error
		if deployVerify {
			var v *verification
			v, verifyErr = verifyDeployment(ctx, cmd, net, artPath, art, rec, store)
			out["verified"] = verifyErr == nil
			if v != nil && v.URL != "" {
				out["url"] = v.URL
			}
			if verifyErr != nil {
				out["verify_error"] = verifyErr.Error()
			}
		}
		if err := printJSON(cmd, out); err != nil {
			return err
		}
		return verifyErr
	}

	printDeployResult(cmd, result)
	if deployVerify {
		_, err := verifyDeployment(ctx, cmd, net, artPath, art, rec, store)
		return err
	}
	return nil
}

// constructorArgs returns the explicit --args list, or the Claims defaults with any flag overrides.
func constructorArgs(cmd *cobra.Command, deployerAddr common.Address) ([]any, error) {
	if len(deployArgs) > 0 {
		return claims.Explicit(deployArgs, deployerAddr), nil
	}
	if deployContract != claims.ContractName {
		return nil, nil
	}

	var o claims.Overrides
	flags := cmd.Flags()

	for name, dst := range map[string]**common.Address{"token": &o.Token, "recipient": &o.Recipient} {
		if !flags.Changed(name) {
			continue
		}
		raw, _ := flags.GetString(name)
		addr, err := claims.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", name, err)
		}
		*dst = &addr
	}

	if flags.Changed("label") {
		label, _ := flags.GetString("label")
		o.Label = &label
	}

	for name, dst := range map[string]**big.Int{"start": &o.Start, "min": &o.Min, "max": &o.Max} {
		if !flags.Changed(name) {
			continue
		}
		raw, _ := flags.GetString(name)
		v, ok := new(big.Int).SetString(raw, 0)
		if !ok || v.Sign() < 0 {
			return nil, fmt.Errorf("--%s: invalid unsigned integer %q", name, raw)
		}
		*dst = v
	}

	return claims.Args(deployerAddr, time.Now(), o), nil
}

// leaseTTL keeps the deploy lock alive for at least the whole command timeout.
func leaseTTL(configured, timeout time.Duration) time.Duration {
	if timeout > configured {
		return timeout
	}
	return configured
}

func checkCompiler(artPath string) {
	info, err := artifact.LoadBuildInfo(artPath)
	if err != nil {
		logger.Debug("no build info for artifact", slog.String("error", err.Error()))
		return
	}
	if !cfg.HasCompiler(info.SolcVersion) {
		logger.Warn("artifact was compiled with a solc version that is not configured",
			slog.String("solc", info.SolcLongVersion),
		)
	}
}

func observeDeployment(ctx context.Context, recorder *metrics.Recorder, network string, started time.Time, result *deployer.Result, err error) {
	status := metrics.StatusSuccess
	var gasUsed uint64
	switch {
	case err != nil:
		status = metrics.StatusFailure
	case result.DryRun:
		status = metrics.StatusDryRun
	default:
		gasUsed = result.GasUsed
	}
	recorder.ObserveDeployment(network, status, time.Since(started), gasUsed)

	if err := recorder.Push(ctx); err != nil {
		logger.Warn("metrics not pushed", slog.String("error", err.Error()))
	}
}

// deployJSON is the --json form of a deployment. rec is nil for dry runs.
func deployJSON(result *deployer.Result, rec *registry.Deployment) map[string]any {
	out := map[string]any{
		"contract":  result.Contract,
		"address":   result.Address.Hex(),
		"deployer":  result.Deployer.Hex(),
		"chain_id":  result.ChainID.Int64(),
		"tx_hash":   result.TxHash.Hex(),
		"nonce":     result.Nonce,
		"gas_limit": result.GasLimit,
		"dry_run":   result.DryRun,
	}
	if !result.DryRun {
		out["block_number"] = result.BlockNumber
		out["gas_used"] = result.GasUsed
	}
	if rec != nil {
		out["id"] = rec.ID
	}
	return out
}

func printDeployResult(cmd *cobra.Command, result *deployer.Result) {
	if result.DryRun {
		printLine(cmd, "%s address (predicted): %s", result.Contract, result.Address.Hex())
		printLine(cmd, "%s transaction not sent (dry run)", colorYellow("!"))
		return
	}
	printLine(cmd, "%s address: %s", result.Contract, result.Address.Hex())
}
