package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/netbirdio/peerctl/shared/management/peers"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// peerOutput is the printable form of a peer
type peerOutput struct {
	ID                  string     `json:"id" yaml:"id"`
	Name                string     `json:"name" yaml:"name"`
	Enabled             bool       `json:"enabled" yaml:"enabled"`
	Address             string     `json:"address" yaml:"address"`
	PublicKey           string     `json:"publicKey" yaml:"publicKey"`
	Online              bool       `json:"online" yaml:"online"`
	CreatedAt           time.Time  `json:"createdAt" yaml:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt" yaml:"updatedAt"`
	LatestHandshakeAt   *time.Time `json:"latestHandshakeAt,omitempty" yaml:"latestHandshakeAt,omitempty"`
	PersistentKeepalive int        `json:"persistentKeepalive" yaml:"persistentKeepalive"`
	TransferRx          uint64     `json:"transferRx" yaml:"transferRx"`
	TransferTx          uint64     `json:"transferTx" yaml:"transferTx"`
}

type pageOutput struct {
	Peers      []peerOutput `json:"peers" yaml:"peers"`
	Total      int          `json:"total" yaml:"total"`
	Page       int          `json:"page" yaml:"page"`
	Limit      int          `json:"limit" yaml:"limit"`
	TotalPages int          `json:"totalPages" yaml:"totalPages"`
	HasNext    bool         `json:"hasNext" yaml:"hasNext"`
	HasPrev    bool         `json:"hasPrev" yaml:"hasPrev"`
}

type statsOutput struct {
	Total    int    `json:"total" yaml:"total"`
	Enabled  int    `json:"enabled" yaml:"enabled"`
	Disabled int    `json:"disabled" yaml:"disabled"`
	Online   int    `json:"online" yaml:"online"`
	Offline  int    `json:"offline" yaml:"offline"`
	TotalRx  uint64 `json:"totalRx" yaml:"totalRx"`
	TotalTx  uint64 `json:"totalTx" yaml:"totalTx"`
}

func toPeerOutput(r peers.Record, now time.Time) peerOutput {
	return peerOutput{
		ID:                  r.ID,
		Name:                r.Name,
		Enabled:             r.Enabled,
		Address:             r.Address,
		PublicKey:           r.PublicKey,
		Online:              r.IsOnline(now),
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
		LatestHandshakeAt:   r.LatestHandshakeAt,
		PersistentKeepalive: r.PersistentKeepalive,
		TransferRx:          r.TransferRx,
		TransferTx:          r.TransferTx,
	}
}

func toStatsOutput(s peers.Statistics) statsOutput {
	return statsOutput{
		Total:    s.Total,
		Enabled:  s.Enabled,
		Disabled: s.Disabled,
		Online:   s.Online,
		Offline:  s.Offline,
		TotalRx:  s.TotalRx,
		TotalTx:  s.TotalTx,
	}
}

func validateFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format %q, use table, json or yaml", format)
	}
}

// encode writes v as JSON or YAML. It reports false for the table format.
func encode(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	default:
		return false, nil
	}
}

func printPeers(w io.Writer, format string, records []peers.Record, now time.Time) error {
	out := make([]peerOutput, 0, len(records))
	for _, r := range records {
		out = append(out, toPeerOutput(r, now))
	}
	if done, err := encode(w, format, out); done {
		return err
	}
	return writePeerTable(w, out, now)
}

func printPage(w io.Writer, format string, page peers.Page, now time.Time) error {
	out := pageOutput{
		Peers:      make([]peerOutput, 0, len(page.Items)),
		Total:      page.Total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: page.TotalPages,
		HasNext:    page.HasNext,
		HasPrev:    page.HasPrev,
	}
	for _, r := range page.Items {
		out.Peers = append(out.Peers, toPeerOutput(r, now))
	}
	if done, err := encode(w, format, out); done {
		return err
	}

	if err := writePeerTable(w, out.Peers, now); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\npage %d of %d, %d peer(s)\n", out.Page, max(out.TotalPages, 1), out.Total)
	return err
}

func printPeer(w io.Writer, format string, r peers.Record, now time.Time) error {
	out := toPeerOutput(r, now)
	if done, err := encode(w, format, out); done {
		return err
	}

	handshake := "never"
	if out.LatestHandshakeAt != nil {
		handshake = humanize.RelTime(*out.LatestHandshakeAt, now, "ago", "from now")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ID:         %s\n", out.ID)
	fmt.Fprintf(&b, "Name:       %s\n", out.Name)
	fmt.Fprintf(&b, "Enabled:    %t\n", out.Enabled)
	fmt.Fprintf(&b, "Address:    %s\n", out.Address)
	fmt.Fprintf(&b, "Public key: %s\n", out.PublicKey)
	fmt.Fprintf(&b, "Online:     %t\n", out.Online)
	fmt.Fprintf(&b, "Handshake:  %s\n", handshake)
	fmt.Fprintf(&b, "Transfer:   %s received, %s sent\n", humanize.IBytes(out.TransferRx), humanize.IBytes(out.TransferTx))
	fmt.Fprintf(&b, "Created:    %s\n", out.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Updated:    %s\n", out.UpdatedAt.Format(time.RFC3339))
	_, err := io.WriteString(w, b.String())
	return err
}

func printStats(w io.Writer, format string, s peers.Statistics) error {
	out := toStatsOutput(s)
	if done, err := encode(w, format, out); done {
		return err
	}
	_, err := fmt.Fprintf(w, "Peers:    %d (%d enabled, %d disabled)\nOnline:   %d of %d\nTransfer: %s received, %s sent\n",
		out.Total, out.Enabled, out.Disabled, out.Online, out.Total, humanize.IBytes(out.TotalRx), humanize.IBytes(out.TotalTx))
	return err
}

func writePeerTable(w io.Writer, rows []peerOutput, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tENABLED\tADDRESS\tONLINE\tHANDSHAKE\tRX\tTX")
	for _, p := range rows {
		handshake := "never"
		if p.LatestHandshakeAt != nil {
			handshake = humanize.RelTime(*p.LatestHandshakeAt, now, "ago", "from now")
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%t\t%s\t%s\t%s\n",
			p.ID, p.Name, p.Enabled, p.Address, p.Online, handshake, humanize.IBytes(p.TransferRx), humanize.IBytes(p.TransferTx))
	}
	return tw.Flush()
}
