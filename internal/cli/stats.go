package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/cardvault/internal/inventory"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		userID string
		format string
	)

	cmd := &cobra.Command{
		Use:   "stats <container-id>",
		Short: "Print statistics for a deck or binder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "json" {
				return fmt.Errorf("invalid format %q: must be text or json", format)
			}

			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			if userID == "" {
				userID = cfg.User.DefaultID
			}

			svc, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			ic, err := svc.Load(cmd.Context(), userID)
			if err != nil {
				return err
			}

			c := ic.Container(args[0])
			if c == nil {
				return fmt.Errorf("container %s: %w", args[0], inventory.ErrNotFound)
			}
			stats := inventory.CalculateStats(c.Allocations, ic)

			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			return printStats(cmd, c, stats)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owner of the container (default from config)")
	cmd.Flags().StringVar(&format, "format", "text", "output format (json|text)")

	return cmd
}

func printStats(cmd *cobra.Command, c *inventory.Container, stats inventory.Stats) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "%s\t%s (%s)\n", c.Kind, c.Name, c.ID)
	fmt.Fprintf(w, "Cards:\t%d\n", stats.TotalCards)
	if c.IsDeck() {
		fmt.Fprintf(w, "Sideboard:\t%d\n", stats.SideboardCards)
	}
	fmt.Fprintf(w, "Owned:\t%d\n", stats.OwnedCards)
	fmt.Fprintf(w, "Wishlist:\t%d\n", stats.WishlistCards)
	fmt.Fprintf(w, "Total price:\t%s\n", stats.TotalPrice.StringFixed(2))
	fmt.Fprintf(w, "Average price:\t%s\n", stats.AvgPrice.StringFixed(2))
	fmt.Fprintf(w, "Complete:\t%.1f%%\n", stats.CompletionPercentage)

	return w.Flush()
}
