package util

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLog(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)

	require.NoError(t, InitLog("debug", "console"))
	assert.Equal(t, log.DebugLevel, log.GetLevel())

	assert.Error(t, InitLog("verbose", "console"))

	require.NoError(t, InitLog("warn", filepath.Join(t.TempDir(), "peerctl.log")))
	assert.Equal(t, log.WarnLevel, log.GetLevel())
	require.NoError(t, InitLog("info", "console"))
}

func TestCustomFormatter_RequestID(t *testing.T) {
	f := &CustomFormatter{log.TextFormatter{DisableTimestamp: true, DisableColors: true}}

	entry := log.NewEntry(log.StandardLogger()).WithContext(WithRequestID(context.Background(), "req-1"))
	entry.Message = "hello"
	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(out), "request_id=req-1"))

	plain := log.NewEntry(log.StandardLogger())
	plain.Message = "hello"
	out, err = f.Format(plain)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(out), "request_id"))
}
