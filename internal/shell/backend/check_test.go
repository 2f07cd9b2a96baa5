package backend

import (
	"context"
	"net"
	"testing"

	"github.com/artpar/storedeploy/internal/core/deployment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckServer(t *testing.T) {
	keyPath, pub := writeKey(t)
	srv := startSSHServer(t, pub)

	report, err := CheckServer(context.Background(), remoteConfigFor(t, srv.addr, keyPath), setupTestLogger())
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", report.Host)
	assert.Equal(t, DefaultSSHUser, report.User)
	assert.Contains(t, report.SSHVersion, "SSH-2.0")
	require.Len(t, report.Runtime, len(deployment.RuntimeChecks()))
	for i, cmd := range deployment.RuntimeChecks() {
		assert.Equal(t, cmd, report.Runtime[i].Command)
		assert.Equal(t, cmd, report.Runtime[i].Output)
		assert.True(t, report.Runtime[i].OK)
	}
	assert.True(t, report.Ready())
}

func TestCheckServer_Unreachable(t *testing.T) {
	keyPath, _ := writeKey(t)
	cfg := remoteConfigFor(t, closedAddr(t), keyPath)

	_, err := CheckServer(context.Background(), cfg, setupTestLogger())
	assert.ErrorIs(t, err, ErrConnectionRefused)
}

func TestServerReport_Ready(t *testing.T) {
	assert.False(t, ServerReport{}.Ready())
	assert.False(t, ServerReport{Runtime: []RuntimeCheck{{OK: true}, {OK: false}}}.Ready())
	assert.True(t, ServerReport{Runtime: []RuntimeCheck{{OK: true}}}.Ready())
}

// closedAddr returns a loopback address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}
