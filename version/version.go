package version

import (
	goversion "github.com/hashicorp/go-version"
)

// will be replaced with the release version when using goreleaser
var version = "development"

// PeerctlVersion returns the peerctl version
func PeerctlVersion() string {
	return version
}

// UserAgent is sent with every request to the management service
func UserAgent() string {
	return "peerctl/" + version
}

// Semantic parses the build version. Development builds are reported as 0.0.0.
func Semantic() *goversion.Version {
	v, err := goversion.NewVersion(version)
	if err != nil {
		v, _ = goversion.NewVersion("0.0.0")
	}
	return v
}

// IsDevelopment reports whether the binary was built without a release version
func IsDevelopment() bool {
	_, err := goversion.NewVersion(version)
	return err != nil
}

// IsOlderThan reports whether the build version is lower than other.
// An unparsable other is never considered newer.
func IsOlderThan(other string) bool {
	o, err := goversion.NewVersion(other)
	if err != nil {
		return false
	}
	return Semantic().LessThan(o)
}
