package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/farhad-zada/holders-collaborators-claims/internal/config"
)

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List configured networks",
	Long: `List every configured network with its chain id, RPC host and explorer.
Networks with missing environment variables are listed with the variables to set.
RPC paths and credentials are never printed.`,
	RunE: runNetworks,
}

func init() {
	rootCmd.AddCommand(networksCmd)
}

type networkRow struct {
	Name     string   `json:"name"`
	Default  bool     `json:"default"`
	ChainID  int64    `json:"chain_id,omitempty"`
	Host     string   `json:"host,omitempty"`
	Explorer string   `json:"explorer,omitempty"`
	Ready    bool     `json:"ready"`
	Missing  []string `json:"missing,omitempty"`
	Error    string   `json:"error,omitempty"`
}

func runNetworks(cmd *cobra.Command, args []string) error {
	rows := make([]networkRow, 0, len(cfg.Networks))
	for _, name := range cfg.NetworkNames() {
		row := networkRow{Name: name, Default: name == cfg.DefaultNetwork}

		net, err := cfg.Network(name)
		if err != nil {
			var verr *config.ValidationError
			if errors.As(err, &verr) {
				row.Missing = verr.Missing()
			}
			row.Error = err.Error()
		} else {
			row.Ready = true
			row.ChainID = net.ChainID
			row.Host = net.Host()
			row.Explorer = net.Explorer
		}
		rows = append(rows, row)
	}

	if jsonOut {
		return printJSON(cmd, map[string]any{
			"networks": rows,
			"count":    len(rows),
		})
	}

	w := newTable(cmd.OutOrStdout())
	printTableHeader(w, "NAME", "CHAIN ID", "RPC", "EXPLORER", "STATUS")
	for _, r := range rows {
		name := r.Name
		if r.Default {
			name += " *"
		}
		status := colorGreen("ready")
		switch {
		case len(r.Missing) > 0:
			status = colorYellow("set " + strings.Join(r.Missing, ", "))
		case !r.Ready:
			status = colorRed(truncate(r.Error, 60))
		}

		chainID := "-"
		if r.ChainID != 0 {
			chainID = fmt.Sprint(r.ChainID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name, chainID, orDash(r.Host), orDash(r.Explorer), status)
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
