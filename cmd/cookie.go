package cmd

import (
	"github.com/spf13/cobra"
)

func newRefreshCookieCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-cookie",
		Short: "Open the storefront in a browser and cache its session cookie",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner, err := resolveRunner(cmd.Context())
			if err != nil {
				return err
			}
			if err := runner.RefreshCookie(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("Depop cookie refreshed")
			return nil
		},
	}
}
