package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/depop-feed/internal/acquire"
)

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the seller's listings and update the feed",
		Long: `Runs the acquisition cascade once. A fresh batch replaces the feed; when
every live source fails the previous feed is kept. The command fails without
touching anything when there is neither a fresh batch nor a previous feed.`,
		Args: cobra.NoArgs,
		RunE: runFetchCommand,
	}
}

func runFetchCommand(cmd *cobra.Command, _ []string) error {
	runner, err := resolveRunner(cmd.Context())
	if err != nil {
		return err
	}
	outcome, location, err := runner.Fetch(cmd.Context())
	if err != nil {
		return err
	}
	switch outcome.Action {
	case acquire.ActionPublish:
		cmd.Printf("Wrote %d products to %s\n", len(outcome.Listings), location)
	case acquire.ActionKeep:
		cmd.Println("No fresh products fetched; kept existing feed")
	default:
		return fmt.Errorf("unexpected outcome %q", outcome.Action)
	}
	return nil
}
