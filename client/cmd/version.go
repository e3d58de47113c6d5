package cmd

import (
	"github.com/spf13/cobra"

	"github.com/netbirdio/peerctl/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "prints peerctl version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.SetOut(cmd.OutOrStdout())
		if version.IsDevelopment() {
			cmd.Printf("%s (development build)\n", version.PeerctlVersion())
			return
		}
		cmd.Println(version.Semantic().String())
	},
}
