package mockserver

import (
	"fmt"
	"net/netip"
	"strings"
)

// renderConfig writes the client side configuration of a peer
func (s *Server) renderConfig(e *peerEntry) string {
	var b strings.Builder
	b.WriteString("[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", e.privateKey.String())
	bits := 32
	if addr, err := netip.ParseAddr(e.peer.Address); err == nil && addr.Is6() {
		bits = 128
	}
	fmt.Fprintf(&b, "Address = %s/%d\n", e.peer.Address, bits)
	fmt.Fprintf(&b, "DNS = %s\n", defaultDNS)
	b.WriteString("\n[Peer]\n")
	fmt.Fprintf(&b, "PublicKey = %s\n", s.serverKey.PublicKey().String())
	fmt.Fprintf(&b, "PresharedKey = %s\n", e.presharedKey.String())
	b.WriteString("AllowedIPs = 0.0.0.0/0, ::/0\n")
	fmt.Fprintf(&b, "PersistentKeepalive = %d\n", e.peer.PersistentKeepalive)
	fmt.Fprintf(&b, "Endpoint = %s\n", s.opts.Endpoint)
	return b.String()
}
