package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersion(t *testing.T) {
	orig := version
	defer func() { version = orig }()

	version = "development"
	assert.True(t, IsDevelopment())
	assert.Equal(t, "0.0.0", Semantic().String())
	assert.Equal(t, "peerctl/development", UserAgent())

	version = "0.4.2"
	assert.False(t, IsDevelopment())
	assert.True(t, IsOlderThan("0.5.0"))
	assert.False(t, IsOlderThan("0.4.2"))
	assert.False(t, IsOlderThan("not-a-version"))
	assert.Equal(t, "0.4.2", PeerctlVersion())
}
