package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/netbirdio/peerctl/shared/management/client"
	"github.com/netbirdio/peerctl/shared/management/http/api"
	"github.com/netbirdio/peerctl/shared/management/peers"
	"github.com/netbirdio/peerctl/shared/metrics"
	"github.com/netbirdio/peerctl/util"
)

var (
	watchInterval time.Duration
	watchState    string
	metricsPort   int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "show peer counts and transfer totals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(outputFormat); err != nil {
			return err
		}
		return withClient(cmd, func(ctx context.Context, c client.Client) error {
			col, err := c.Query(ctx)
			if err != nil {
				return err
			}
			return printStats(cmd.OutOrStdout(), outputFormat, col.Statistics())
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "poll the service and print peer changes",
	Long: "Polls the peer list every --interval and prints peers that appeared, disappeared or changed " +
		"their online state. With --state the last seen peers are kept in a file, so a new run first reports " +
		"what changed since the previous one. With --metrics-port the client metrics are served on /metrics.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchInterval <= 0 {
			return fmt.Errorf("--interval must be positive")
		}

		if metricsPort > 0 {
			reg := prometheus.NewRegistry()
			metricsRegisterer = reg
			defer func() { metricsRegisterer = nil }()

			srv := metrics.NewServer(metricsPort, "", reg)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("metrics server stopped: %v", err)
				}
			}()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			}()
			cmd.Printf("serving metrics on :%d%s\n", metricsPort, srv.Endpoint)
		}

		return withClient(cmd, func(ctx context.Context, c client.Client) error {
			return watch(ctx, cmd, c, watchInterval, watchState)
		})
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 10*time.Second, "polling interval")
	watchCmd.Flags().StringVar(&watchState, "state", "", "file keeping the peers seen by the last poll")
	watchCmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "serve prometheus metrics on this port, 0 disables it")
}

// watch prints the changes between consecutive polls until ctx is done.
// A non-empty state file seeds the first comparison and is rewritten after every poll.
func watch(ctx context.Context, cmd *cobra.Command, c client.Client, interval time.Duration, state string) error {
	previous, err := loadState(state)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		current, err := c.Peers(ctx, true)
		switch {
		case err == nil:
			now := time.Now()
			for _, line := range diffSnapshots(previous, current, now) {
				cmd.Println(line)
			}
			stats := peers.NewCollection(current, peers.WithNow(now)).Statistics()
			cmd.Printf("%s  %d peer(s), %d online\n", now.Format(time.TimeOnly), stats.Total, stats.Online)
			previous = current
			if state != "" {
				// the poll already finished, so a cancellation arriving now must not drop it
				if err := saveState(context.WithoutCancel(ctx), state, current); err != nil {
					log.Warnf("failed saving watch state: %v", err)
				}
			}
		case ctx.Err() != nil:
			return nil
		default:
			log.Warnf("poll failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// loadState returns the peers saved by a previous watch run, nil when there are none
func loadState(path string) (*peers.Snapshot, error) {
	if path == "" || !util.FileExists(path) {
		return nil, nil
	}

	var saved []api.Peer
	if _, err := util.ReadJson(path, &saved); err != nil {
		return nil, fmt.Errorf("read watch state %s: %w", path, err)
	}
	records := make([]peers.Record, 0, len(saved))
	for _, p := range saved {
		records = append(records, peers.FromAPI(p))
	}
	return peers.NewSnapshot(records)
}

func saveState(ctx context.Context, path string, s *peers.Snapshot) error {
	saved := make([]api.Peer, 0, s.Len())
	for _, r := range s.Records() {
		saved = append(saved, r.ToAPI())
	}
	return util.WriteJson(ctx, path, saved)
}

// diffSnapshots describes how current differs from previous. A nil previous reports nothing.
func diffSnapshots(previous, current *peers.Snapshot, now time.Time) []string {
	if previous == nil {
		return nil
	}

	var lines []string
	for _, p := range current.Records() {
		old, ok := previous.Get(p.ID)
		switch {
		case !ok:
			lines = append(lines, fmt.Sprintf("+ %s (%s) added", p.Name, p.Address))
		case old.IsOnline(now) != p.IsOnline(now):
			state := "offline"
			if p.IsOnline(now) {
				state = "online"
			}
			lines = append(lines, fmt.Sprintf("~ %s is %s", p.Name, state))
		case old.Enabled != p.Enabled:
			lines = append(lines, fmt.Sprintf("~ %s enabled=%t", p.Name, p.Enabled))
		case old.Name != p.Name:
			lines = append(lines, fmt.Sprintf("~ %s renamed to %s", old.Name, p.Name))
		}
	}
	for _, p := range previous.Records() {
		if _, ok := current.Get(p.ID); !ok {
			lines = append(lines, fmt.Sprintf("- %s (%s) removed", p.Name, p.Address))
		}
	}
	return lines
}
