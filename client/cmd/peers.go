package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/netbirdio/peerctl/shared/management/client"
	"github.com/netbirdio/peerctl/shared/management/peers"
)

var (
	enabledFilter string
	stateFilter   string
	nameFilter    string
	searchQuery   string
	createdAfter  string
	createdBefore string
	minRx         string
	minTx         string
	sortBy        string
	sortOrder     string
	page          int
	pageLimit     int
	refresh       bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "list peers",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(outputFormat); err != nil {
			return err
		}
		query, err := parseListFlags()
		if err != nil {
			return err
		}

		return withClient(cmd, func(ctx context.Context, c client.Client) error {
			if refresh {
				if _, err := c.Peers(ctx, true); err != nil {
					return err
				}
			}
			col, err := c.Query(ctx)
			if err != nil {
				return err
			}
			result := query.apply(col)
			return printPage(cmd.OutOrStdout(), outputFormat, result.Paginate(peers.PageRequest{Page: page, Limit: pageLimit}), col.Now())
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <peer>",
	Short: "show a peer by id or name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(outputFormat); err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c client.Client) error {
			p, err := c.Peer(ctx, args[0])
			if err != nil {
				return err
			}
			return printPeer(cmd.OutOrStdout(), outputFormat, p, time.Now())
		})
	},
}

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "create a peer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(outputFormat); err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c client.Client) error {
			p, err := c.CreatePeer(ctx, args[0])
			if err != nil {
				return err
			}
			return printPeer(cmd.OutOrStdout(), outputFormat, p, time.Now())
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <peer>",
	Aliases: []string{"rm"},
	Short:   "delete a peer",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c client.Client) error {
			p, err := c.Peer(ctx, args[0])
			if err != nil {
				return err
			}
			if err := c.DeletePeer(ctx, p.ID); err != nil {
				return err
			}
			cmd.Printf("deleted peer %s (%s)\n", p.Name, p.ID)
			return nil
		})
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <peer> <name>",
	Short: "rename a peer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updatePeer(cmd, args[0], func(ctx context.Context, c client.Client, id string) (peers.Record, error) {
			return c.RenamePeer(ctx, id, args[1])
		})
	},
}

var setAddressCmd = &cobra.Command{
	Use:   "set-address <peer> <address>",
	Short: "assign a new tunnel address to a peer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updatePeer(cmd, args[0], func(ctx context.Context, c client.Client, id string) (peers.Record, error) {
			return c.UpdatePeerAddress(ctx, id, args[1])
		})
	},
}

var enableCmd = &cobra.Command{
	Use:   "enable <peer>",
	Short: "allow a peer to connect",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updatePeer(cmd, args[0], func(ctx context.Context, c client.Client, id string) (peers.Record, error) {
			return c.EnablePeer(ctx, id)
		})
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable <peer>",
	Short: "prevent a peer from connecting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updatePeer(cmd, args[0], func(ctx context.Context, c client.Client, id string) (peers.Record, error) {
			return c.DisablePeer(ctx, id)
		})
	},
}

func init() {
	listCmd.Flags().StringVar(&enabledFilter, "enabled", "", "only enabled (true) or disabled (false) peers")
	listCmd.Flags().StringVar(&stateFilter, "state", "", "only online or offline peers")
	listCmd.Flags().StringVar(&nameFilter, "name", "", "only peers whose name contains the value, ignoring case")
	listCmd.Flags().StringVarP(&searchQuery, "search", "s", "", "match name, address or public key")
	listCmd.Flags().StringVar(&createdAfter, "created-after", "", "only peers created after the date (RFC3339 or YYYY-MM-DD)")
	listCmd.Flags().StringVar(&createdBefore, "created-before", "", "only peers created before the date (RFC3339 or YYYY-MM-DD)")
	listCmd.Flags().StringVar(&minRx, "min-rx", "", "only peers that received at least this much, e.g. 10MB")
	listCmd.Flags().StringVar(&minTx, "min-tx", "", "only peers that sent at least this much, e.g. 1GiB")
	listCmd.Flags().StringVar(&sortBy, "sort", "", "sort by name, created or transfer")
	listCmd.Flags().StringVar(&sortOrder, "order", "", "asc or desc, the default depends on the sort key")
	listCmd.Flags().IntVar(&page, "page", 1, "page to show, starting at 1")
	listCmd.Flags().IntVar(&pageLimit, "limit", peers.DefaultPageLimit, "peers per page")
	listCmd.Flags().BoolVar(&refresh, "refresh", false, "ignore the cached peer list")
}

// listQuery is the parsed form of the list flags
type listQuery struct {
	filter peers.Filter
	search string
	sortBy string
	order  peers.Order
}

func (q listQuery) apply(col *peers.Collection) *peers.Collection {
	col = col.FilterBy(q.filter)
	if q.search != "" {
		col = col.Search(q.search)
	}
	switch q.sortBy {
	case "name":
		col = col.SortByName(q.order)
	case "created":
		col = col.SortByCreatedAt(q.order)
	case "transfer":
		col = col.SortByTransfer(q.order)
	}
	return col
}

func parseListFlags() (listQuery, error) {
	q := listQuery{search: searchQuery, sortBy: sortBy}
	q.filter.NameContains = nameFilter

	switch strings.ToLower(enabledFilter) {
	case "":
	case "true", "yes":
		q.filter.Enabled = ptr(true)
	case "false", "no":
		q.filter.Enabled = ptr(false)
	default:
		return q, fmt.Errorf("invalid --enabled value %q, use true or false", enabledFilter)
	}

	switch strings.ToLower(stateFilter) {
	case "":
	case "online":
		q.filter.Online = ptr(true)
	case "offline":
		q.filter.Online = ptr(false)
	default:
		return q, fmt.Errorf("invalid --state value %q, use online or offline", stateFilter)
	}

	var err error
	if q.filter.CreatedAfter, err = parseDate("created-after", createdAfter); err != nil {
		return q, err
	}
	if q.filter.CreatedBefore, err = parseDate("created-before", createdBefore); err != nil {
		return q, err
	}
	if q.filter.MinTransferRx, err = parseBytes("min-rx", minRx); err != nil {
		return q, err
	}
	if q.filter.MinTransferTx, err = parseBytes("min-tx", minTx); err != nil {
		return q, err
	}

	switch sortBy {
	case "", "name", "created", "transfer":
	default:
		return q, fmt.Errorf("invalid --sort value %q, use name, created or transfer", sortBy)
	}

	switch strings.ToLower(sortOrder) {
	case "":
		q.order = peers.OrderDefault
	case "asc":
		q.order = peers.OrderAsc
	case "desc":
		q.order = peers.OrderDesc
	default:
		return q, fmt.Errorf("invalid --order value %q, use asc or desc", sortOrder)
	}
	return q, nil
}

func parseDate(flag, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid --%s value %q, use RFC3339 or YYYY-MM-DD", flag, value)
}

func parseBytes(flag, value string) (*uint64, error) {
	if value == "" {
		return nil, nil
	}
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s value %q: %v", flag, value, err)
	}
	return &n, nil
}

// updatePeer resolves ref, applies fn and prints the updated peer
func updatePeer(cmd *cobra.Command, ref string, fn func(ctx context.Context, c client.Client, id string) (peers.Record, error)) error {
	if err := validateFormat(outputFormat); err != nil {
		return err
	}
	return withClient(cmd, func(ctx context.Context, c client.Client) error {
		p, err := c.Peer(ctx, ref)
		if err != nil {
			return err
		}
		updated, err := fn(ctx, c, p.ID)
		if err != nil {
			return err
		}
		return printPeer(cmd.OutOrStdout(), outputFormat, updated, time.Now())
	})
}

func ptr[T any](v T) *T {
	return &v
}
