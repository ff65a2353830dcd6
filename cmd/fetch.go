package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zinrai/wan-ip-provider/internal/domain"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Run a single resolution cycle and print the result",
	RunE:  runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	result := a.useCase.FetchAndStore(cmd.Context())
	if result.Err != nil {
		return fmt.Errorf("resolution cycle failed: %w", result.Err)
	}

	out := struct {
		IPv4         string `json:"ipv4"`
		IPv6         string `json:"ipv6"`
		Source       string `json:"source"`
		UsedFallback bool   `json:"used_fallback"`
		Outcome      string `json:"outcome"`
	}{
		IPv4:         domain.Deref(result.IPv4, "N/A"),
		IPv6:         domain.Deref(result.IPv6, "N/A"),
		Source:       result.Source,
		UsedFallback: result.UsedFallback,
		Outcome:      result.Outcome.String(),
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
