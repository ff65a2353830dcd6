package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/zinrai/wan-ip-provider/internal/infrastructure/router"
	"github.com/zinrai/wan-ip-provider/internal/usecase"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the router's WAN link statistics",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().Bool("format", false, "print human readable values")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	human, _ := cmd.Flags().GetBool("format")

	host, err := router.ResolveHost(cfg.RouterHost)
	if err != nil {
		return err
	}
	stats, err := router.NewClient(host, cfg.RouterPort, cfg.Timeout(), logger).WANStatistics(cmd.Context())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if human {
		return enc.Encode(usecase.NewHumanWANStats(stats))
	}
	return enc.Encode(usecase.NewRawWANStats(stats))
}
