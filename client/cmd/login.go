package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/netbirdio/peerctl/shared/management/client"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "check that the service accepts the configured credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c client.Client) error {
			if err := c.Login(ctx); err != nil {
				return err
			}
			cmd.Println("Logged in successfully")
			return nil
		})
	},
}
