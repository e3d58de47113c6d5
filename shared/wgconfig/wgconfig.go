// Package wgconfig parses WireGuard configuration exports in the wg-quick format.
package wgconfig

import (
	"bufio"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// Config is a parsed configuration export
type Config struct {
	// Device holds the keys and peers in the form wgctrl applies them
	Device wgtypes.Config

	// Addresses of the local interface
	Addresses []netip.Prefix
	// DNS servers or search domains
	DNS []string
	// MTU of the interface, 0 when unset
	MTU int
	// Endpoints as written, one per entry of Device.Peers. Host names are not resolved.
	Endpoints []string
}

// PublicKey returns the public key derived from the interface private key
func (c *Config) PublicKey() (wgtypes.Key, bool) {
	if c.Device.PrivateKey == nil {
		return wgtypes.Key{}, false
	}
	return c.Device.PrivateKey.PublicKey(), true
}

// Parse reads a configuration export. Every malformed line is reported, not only the first.
func Parse(text string) (*Config, error) {
	cfg := &Config{}
	var errs *multierror.Error

	section := ""
	var peer *wgtypes.PeerConfig
	endpoint := ""

	flushPeer := func() {
		if peer != nil {
			cfg.Device.Peers = append(cfg.Device.Peers, *peer)
			cfg.Endpoints = append(cfg.Endpoints, endpoint)
		}
		peer = nil
		endpoint = ""
	}

	scanner := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			flushPeer()
			section = strings.ToLower(strings.TrimSpace(line[1 : len(line)-1]))
			switch section {
			case "interface":
			case "peer":
				peer = &wgtypes.PeerConfig{}
			default:
				errs = multierror.Append(errs, fmt.Errorf("line %d: unknown section %q", lineNo, line))
			}
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			errs = multierror.Append(errs, fmt.Errorf("line %d: expected key = value", lineNo))
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		var err error
		switch section {
		case "interface":
			err = cfg.setInterface(key, value)
		case "peer":
			err = setPeer(peer, &endpoint, key, value)
		default:
			err = fmt.Errorf("%s outside of a section", key)
		}
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("line %d: %w", lineNo, err))
		}
	}
	flushPeer()

	if err := scanner.Err(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if cfg.Device.PrivateKey == nil {
		errs = multierror.Append(errs, fmt.Errorf("missing interface private key"))
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) setInterface(key, value string) error {
	switch key {
	case "privatekey":
		k, err := wgtypes.ParseKey(value)
		if err != nil {
			return fmt.Errorf("private key: %w", err)
		}
		c.Device.PrivateKey = &k
	case "listenport":
		port, err := strconv.Atoi(value)
		if err != nil || port < 0 || port > 65535 {
			return fmt.Errorf("invalid listen port %q", value)
		}
		c.Device.ListenPort = &port
	case "address":
		for _, v := range splitList(value) {
			prefix, err := parsePrefix(v)
			if err != nil {
				return err
			}
			c.Addresses = append(c.Addresses, prefix)
		}
	case "dns":
		c.DNS = append(c.DNS, splitList(value)...)
	case "mtu":
		mtu, err := strconv.Atoi(value)
		if err != nil || mtu <= 0 {
			return fmt.Errorf("invalid mtu %q", value)
		}
		c.MTU = mtu
	case "fwmark":
		mark, err := strconv.ParseUint(value, 0, 32)
		if err != nil {
			return fmt.Errorf("invalid fwmark %q", value)
		}
		m := int(mark)
		c.Device.FirewallMark = &m
	default:
		// wg-quick hooks and table settings do not affect the device
	}
	return nil
}

func setPeer(peer *wgtypes.PeerConfig, endpoint *string, key, value string) error {
	switch key {
	case "publickey":
		k, err := wgtypes.ParseKey(value)
		if err != nil {
			return fmt.Errorf("public key: %w", err)
		}
		peer.PublicKey = k
	case "presharedkey":
		k, err := wgtypes.ParseKey(value)
		if err != nil {
			return fmt.Errorf("preshared key: %w", err)
		}
		peer.PresharedKey = &k
	case "allowedips":
		peer.ReplaceAllowedIPs = true
		for _, v := range splitList(value) {
			prefix, err := parsePrefix(v)
			if err != nil {
				return err
			}
			peer.AllowedIPs = append(peer.AllowedIPs, net.IPNet{
				IP:   prefix.Masked().Addr().AsSlice(),
				Mask: net.CIDRMask(prefix.Bits(), prefix.Addr().BitLen()),
			})
		}
	case "persistentkeepalive":
		if strings.EqualFold(value, "off") {
			d := time.Duration(0)
			peer.PersistentKeepaliveInterval = &d
			return nil
		}
		secs, err := strconv.Atoi(value)
		if err != nil || secs < 0 || secs > 65535 {
			return fmt.Errorf("invalid persistent keepalive %q", value)
		}
		d := time.Duration(secs) * time.Second
		peer.PersistentKeepaliveInterval = &d
	case "endpoint":
		host, port, err := net.SplitHostPort(value)
		if err != nil {
			return fmt.Errorf("invalid endpoint %q: %w", value, err)
		}
		*endpoint = value
		if addr, err := netip.ParseAddr(host); err == nil {
			p, _ := strconv.Atoi(port)
			peer.Endpoint = net.UDPAddrFromAddrPort(netip.AddrPortFrom(addr, uint16(p)))
		}
	default:
		return fmt.Errorf("unknown peer key %q", key)
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// parsePrefix accepts a prefix or a bare address, which gets a host length prefix
func parsePrefix(value string) (netip.Prefix, error) {
	if strings.Contains(value, "/") {
		p, err := netip.ParsePrefix(value)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid prefix %q", value)
		}
		return p, nil
	}
	addr, err := netip.ParseAddr(value)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid address %q", value)
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
