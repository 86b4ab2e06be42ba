package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/farhad-zada/holders-collaborators-claims/internal/registry"
)

var deploymentsCmd = &cobra.Command{
	Use:   "deployments",
	Short: "List recorded deployments",
	Long: `List deployments recorded by claimsctl deploy, oldest first.

Examples:
  claimsctl deployments
  claimsctl deployments --network sep --json`,
	RunE: runDeployments,
}

var deploymentsNetwork string

func init() {
	deploymentsCmd.Flags().StringVarP(&deploymentsNetwork, "network", "n", "", "only list this network")
	rootCmd.AddCommand(deploymentsCmd)
}

func runDeployments(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, closer, err := registry.Open(ctx, cfg.Registry)
	if err != nil {
		return err
	}
	defer closer.Close()

	list, err := store.List(ctx, deploymentsNetwork)
	if err != nil {
		return err
	}
	if list == nil {
		list = []registry.Deployment{}
	}

	if jsonOut {
		return printJSON(cmd, map[string]any{
			"deployments": list,
			"count":       len(list),
		})
	}

	if len(list) == 0 {
		printLine(cmd, "No deployments found")
		return nil
	}

	w := newTable(cmd.OutOrStdout())
	printTableHeader(w, "ID", "NETWORK", "CONTRACT", "ADDRESS", "BLOCK", "VERIFIED", "DEPLOYED")
	for _, d := range list {
		verified := colorDim("no")
		if d.Verified {
			verified = colorGreen("yes")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			truncate(d.ID, 12),
			d.Network,
			d.Contract,
			d.Address,
			d.BlockNumber,
			verified,
			d.DeployedAt.Local().Format(time.DateTime),
		)
	}
	return w.Flush()
}
