package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/netbirdio/peerctl/shared/management/client"
	"github.com/netbirdio/peerctl/shared/qrcode"
	"github.com/netbirdio/peerctl/shared/wgconfig"
	"github.com/netbirdio/peerctl/util"
)

var (
	exportOut   string
	checkConfig bool
	qrSize      int
)

var configCmd = &cobra.Command{
	Use:   "config <peer>",
	Short: "export the client configuration of a peer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c client.Client) error {
			text, err := peerConfiguration(ctx, c, args[0])
			if err != nil {
				return err
			}

			if checkConfig {
				parsed, err := wgconfig.Parse(text)
				if err != nil {
					return fmt.Errorf("exported configuration is invalid: %w", err)
				}
				printConfigSummary(cmd, parsed)
			}

			if exportOut != "" {
				// holds the private key of the peer
				if err := util.WriteBytes(ctx, exportOut, []byte(text), 0600); err != nil {
					return err
				}
				cmd.Printf("configuration written to %s\n", exportOut)
				return nil
			}
			if !checkConfig {
				cmd.Print(text)
			}
			return nil
		})
	},
}

var qrCmd = &cobra.Command{
	Use:   "qr <peer>",
	Short: "show the client configuration of a peer as QR code",
	Long: "Prints the QR code to the terminal. With --out the code is written to a file, " +
		"the format is taken from the extension (.svg or .png).",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ext := strings.ToLower(filepath.Ext(exportOut))
		if exportOut != "" && ext != ".svg" && ext != ".png" {
			return fmt.Errorf("unsupported QR code file %q, use .svg or .png", exportOut)
		}

		return withClient(cmd, func(ctx context.Context, c client.Client) error {
			p, err := c.Peer(ctx, args[0])
			if err != nil {
				return err
			}

			if ext == ".svg" {
				svg, err := c.PeerQRCode(ctx, p.ID)
				if err != nil {
					return err
				}
				return writeQRCode(ctx, cmd, svg)
			}

			text, err := c.PeerConfiguration(ctx, p.ID)
			if err != nil {
				return err
			}
			encoder := qrcode.NewEncoder()

			if ext == ".png" {
				png, err := encoder.PNG(text, qrSize)
				if err != nil {
					return err
				}
				return writeQRCode(ctx, cmd, png)
			}

			art, err := encoder.Terminal(text)
			if err != nil {
				return err
			}
			cmd.Print(art)
			return nil
		})
	},
}

func init() {
	configCmd.Flags().StringVar(&exportOut, "out", "", "write the configuration to a file instead of stdout")
	configCmd.Flags().BoolVar(&checkConfig, "check", false, "parse the exported configuration and print a summary")
	qrCmd.Flags().StringVar(&exportOut, "out", "", "write the QR code to a .svg or .png file")
	qrCmd.Flags().IntVar(&qrSize, "size", 512, "PNG width and height in pixels")
}

func peerConfiguration(ctx context.Context, c client.Client, ref string) (string, error) {
	p, err := c.Peer(ctx, ref)
	if err != nil {
		return "", err
	}
	return c.PeerConfiguration(ctx, p.ID)
}

func writeQRCode(ctx context.Context, cmd *cobra.Command, data []byte) error {
	if err := util.WriteBytes(ctx, exportOut, data, 0600); err != nil {
		return err
	}
	cmd.Printf("QR code written to %s\n", exportOut)
	return nil
}

func printConfigSummary(cmd *cobra.Command, cfg *wgconfig.Config) {
	if pub, ok := cfg.PublicKey(); ok {
		cmd.Printf("Public key: %s\n", pub.String())
	}
	addresses := make([]string, 0, len(cfg.Addresses))
	for _, a := range cfg.Addresses {
		addresses = append(addresses, a.String())
	}
	cmd.Printf("Addresses:  %s\n", strings.Join(addresses, ", "))
	if len(cfg.DNS) > 0 {
		cmd.Printf("DNS:        %s\n", strings.Join(cfg.DNS, ", "))
	}
	cmd.Printf("Peers:      %d\n", len(cfg.Device.Peers))
	for _, e := range cfg.Endpoints {
		cmd.Printf("Endpoint:   %s\n", e)
	}
}
