// Package validate checks caller input for peer operations before anything is sent to the service.
package validate

import (
	"net/netip"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/netbirdio/peerctl/shared/management/status"
)

// MaxNameLength is the longest accepted peer name in runes
const MaxNameLength = 64

var nameRegex = regexp.MustCompile(`^[^\x00-\x1f\x7f]+$`)

// PeerID checks that id is usable as a path segment
func PeerID(id string) error {
	if strings.TrimSpace(id) == "" {
		return status.NewValidationError("id", id, "must not be empty")
	}
	if strings.ContainsAny(id, "/?#") {
		return status.NewValidationError("id", id, "must not contain '/', '?' or '#'")
	}
	return nil
}

// PeerName checks a display name and returns it trimmed
func PeerName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", status.NewValidationError("name", name, "must not be empty")
	}
	if utf8.RuneCountInString(trimmed) > MaxNameLength {
		return "", status.NewValidationError("name", name, "must be at most 64 characters")
	}
	if !nameRegex.MatchString(trimmed) {
		return "", status.NewValidationError("name", name, "must not contain control characters")
	}
	return trimmed, nil
}

// Address checks a tunnel address. Both a plain IP and an IP with prefix length are accepted.
func Address(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "", status.NewValidationError("address", address, "must not be empty")
	}
	if strings.Contains(trimmed, "/") {
		prefix, err := netip.ParsePrefix(trimmed)
		if err != nil {
			return "", status.NewValidationError("address", address, "not a valid IPv4 or IPv6 prefix")
		}
		return prefix.String(), nil
	}
	addr, err := netip.ParseAddr(trimmed)
	if err != nil {
		return "", status.NewValidationError("address", address, "not a valid IPv4 or IPv6 address")
	}
	return addr.String(), nil
}
