package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/farhad-zada/holders-collaborators-claims/internal/artifact"
	"github.com/farhad-zada/holders-collaborators-claims/internal/claims"
	"github.com/farhad-zada/holders-collaborators-claims/internal/config"
	"github.com/farhad-zada/holders-collaborators-claims/internal/explorer"
	"github.com/farhad-zada/holders-collaborators-claims/internal/registry"
)

// errVerifyTarget is returned when verify cannot find a recorded deployment.
var errVerifyTarget = errors.New("no recorded deployment to verify")

var (
	indexRetries    = 5
	indexRetryDelay = 10 * time.Second
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a deployed contract's source on the network's explorer",
	Long: `Submit the Hardhat build-info standard JSON input of a recorded deployment to the
network's Etherscan-compatible explorer and wait for the result.

The API key comes from ETH_APIKEY (eth, sep), BSC_APIKEY (bsc, tbsc) or
POL_APIKEY (pol, tpol).

Examples:
  # Verify the latest Claims deployment on Sepolia
  claimsctl verify --network sep

  # Verify a specific recorded deployment
  claimsctl verify --network tbsc --address 0x5FbDB2315678afecb367f032d93F642f64180aa3`,
	RunE: runVerify,
}

var (
	verifyNetwork  string
	verifyContract string
	verifyAddress  string
	verifyArtifact string
)

func init() {
	verifyCmd.Flags().StringVarP(&verifyNetwork, "network", "n", "", "network name (default: default_network)")
	verifyCmd.Flags().StringVar(&verifyContract, "contract", claims.ContractName, "contract name")
	verifyCmd.Flags().StringVar(&verifyAddress, "address", "", "deployment address (default: latest recorded deployment)")
	verifyCmd.Flags().StringVar(&verifyArtifact, "artifact", "", "artifact JSON path (default: <artifacts.root>/contracts/<C>.sol/<C>.json)")

	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	net, err := cfg.Network(verifyNetwork)
	if err != nil {
		return err
	}

	artPath := verifyArtifact
	if artPath == "" {
		artPath = artifact.Path(cfg.Artifacts.Root, verifyContract)
	}
	art, err := artifact.Load(artPath)
	if err != nil {
		return err
	}

	store, closer, err := registry.Open(ctx, cfg.Registry)
	if err != nil {
		return err
	}
	defer closer.Close()

	rec, err := findDeployment(ctx, store, net.Name, verifyContract, verifyAddress)
	if err != nil {
		return err
	}

	v, err := verifyDeployment(ctx, cmd, net, artPath, art, rec, store)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(cmd, map[string]any{
			"address":  v.Address.Hex(),
			"verified": true,
			"url":      v.URL,
		})
	}
	return nil
}

// findDeployment returns the recorded deployment at address, or the latest one when address is empty.
func findDeployment(ctx context.Context, store registry.Store, network, contract, address string) (*registry.Deployment, error) {
	if address == "" {
		rec, err := store.Latest(ctx, network, contract)
		if errors.Is(err, registry.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s on %s", errVerifyTarget, contract, network)
		}
		return rec, err
	}

	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}
	list, err := store.List(ctx, network)
	if err != nil {
		return nil, err
	}
	for i := len(list) - 1; i >= 0; i-- {
		if strings.EqualFold(list[i].Address, address) {
			return &list[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s on %s", errVerifyTarget, address, network)
}

// verification is the outcome of a successful source verification.
type verification struct {
	Address common.Address
	URL     string
}

// verifyDeployment verifies rec and prints the outcome unless --json is set.
func verifyDeployment(ctx context.Context, cmd *cobra.Command, net *config.Network, artPath string, art *artifact.ContractArtifact, rec *registry.Deployment, store registry.Store) (*verification, error) {
	ecfg, err := cfg.Explorer(net)
	if err != nil {
		return nil, err
	}
	client, err := explorer.New(ecfg.APIURL, ecfg.APIKey,
		explorer.WithChainID(net.ChainID),
		explorer.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", net.Explorer, err)
	}

	info, err := artifact.LoadBuildInfo(artPath)
	if err != nil {
		return nil, err
	}

	var encodedArgs []byte
	if rec.EncodedArgs != "" {
		if encodedArgs, err = hexutil.Decode(rec.EncodedArgs); err != nil {
			return nil, fmt.Errorf("decode recorded constructor args: %w", err)
		}
	}

	req := explorer.VerifyRequest{
		Address:         common.HexToAddress(rec.Address),
		ContractName:    art.FullyQualifiedName(),
		CompilerVersion: info.CompilerVersion(),
		SourceCode:      info.Input,
		ConstructorArgs: encodedArgs,
	}

	guid, err := submitVerification(ctx, client, req)
	if err != nil {
		return nil, err
	}
	if err := client.WaitVerified(ctx, guid); err != nil {
		if !jsonOut {
			printLine(cmd, "%s verification failed", colorRed("✗"))
		}
		return nil, err
	}

	if err := store.MarkVerified(ctx, rec.ID); err != nil && !errors.Is(err, registry.ErrNotFound) {
		logger.Warn("verified flag not recorded", slog.String("error", err.Error()))
	}

	link := explorer.BrowserAddressURL(ecfg.BrowserURL, req.Address)
	if !jsonOut {
		printLine(cmd, "%s Verified %s at %s", colorGreen("✓"), rec.Contract, req.Address.Hex())
		if link != "" {
			printLine(cmd, "  %s", colorDim(link))
		}
	}
	return &verification{Address: req.Address, URL: link}, nil
}

// submitVerification retries while the explorer has not indexed the new contract yet.
func submitVerification(ctx context.Context, client *explorer.Client, req explorer.VerifyRequest) (string, error) {
	var err error
	for attempt := 0; attempt < indexRetries; attempt++ {
		var guid string
		guid, err = client.Verify(ctx, req)
		if !errors.Is(err, explorer.ErrNotIndexed) {
			return guid, err
		}
		if attempt == indexRetries-1 {
			break
		}
		logger.Info("waiting for explorer to index contract", slog.Int("attempt", attempt+1))
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(indexRetryDelay):
		}
	}
	return "", err
}
