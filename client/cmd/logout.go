package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/netbirdio/peerctl/shared/management/client"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "revoke the session on the service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c client.Client) error {
			if err := c.Logout(ctx); err != nil {
				return err
			}
			cmd.Println("Logged out")
			return nil
		})
	},
}
