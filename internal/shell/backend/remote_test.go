package backend

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// =============================================================================
// Test SSH Server
// =============================================================================

type execCall struct {
	Command string
	Stdin   []byte
}

type testServer struct {
	addr    string
	hostKey ssh.Signer

	mu    sync.Mutex
	calls []execCall
}

func (s *testServer) Calls() []execCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]execCall(nil), s.calls...)
}

// startSSHServer serves exec requests: "fail N" exits with status N after
// writing to stderr, anything else echoes the command on stdout.
func startSSHServer(t *testing.T, authorized ssh.PublicKey) *testServer {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostKey, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)

	config := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, nil
			}
			return nil, errors.New("unknown key")
		},
	}
	config.AddHostKey(hostKey)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	srv := &testServer{addr: ln.Addr().String(), hostKey: hostKey}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.serve(conn, config)
		}
	}()
	return srv
}

func (s *testServer) serve(conn net.Conn, config *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "only sessions")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			continue
		}
		go s.session(ch, requests)
	}
}

func (s *testServer) session(ch ssh.Channel, requests <-chan *ssh.Request) {
	for req := range requests {
		if req.Type != "exec" {
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
			continue
		}
		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			_ = req.Reply(false, nil)
			continue
		}
		_ = req.Reply(true, nil)

		go func(cmd string) {
			stdin, _ := io.ReadAll(ch)
			s.mu.Lock()
			s.calls = append(s.calls, execCall{Command: cmd, Stdin: stdin})
			s.mu.Unlock()

			var status uint32
			if n, ok := failStatus(cmd); ok {
				status = n
				_, _ = ch.Stderr().Write([]byte("failed on purpose\n"))
			} else {
				_, _ = ch.Write([]byte(cmd + "\n"))
			}
			_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
			ch.Close()
		}(payload.Command)
	}
}

func failStatus(cmd string) (uint32, bool) {
	if len(cmd) < 6 || cmd[:5] != "fail " {
		return 0, false
	}
	n, err := strconv.Atoi(cmd[5:])
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// writeKey writes a fresh private key to disk and returns its path and public key.
func writeKey(t *testing.T) (string, ssh.PublicKey) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))

	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return path, signer.PublicKey()
}

func remoteConfigFor(t *testing.T, addr, keyPath string) RemoteConfig {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := DefaultRemoteConfig(host)
	cfg.Port = port
	cfg.KeyPath = keyPath
	cfg.ConnectTimeout = 5 * time.Second
	cfg.CommandTimeout = 5 * time.Second
	return cfg
}

func connected(t *testing.T) (*RemoteBackend, *testServer) {
	t.Helper()
	keyPath, pub := writeKey(t)
	srv := startSSHServer(t, pub)

	b := NewRemoteBackend(remoteConfigFor(t, srv.addr, keyPath), setupTestLogger())
	require.NoError(t, b.Connect(context.Background()))
	t.Cleanup(func() { b.Close() })
	return b, srv
}

// =============================================================================
// Connect Tests
// =============================================================================

func TestRemoteBackend_Connect(t *testing.T) {
	b, srv := connected(t)

	assert.Equal(t, StateReady, b.State())
	assert.NotEmpty(t, b.ServerVersion())

	calls := srv.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "true", calls[0].Command, "authentication is verified with a probe")

	require.NoError(t, b.Connect(context.Background()), "connect on a ready backend is a no-op")
	assert.Len(t, srv.Calls(), 1)
}

func TestRemoteBackend_AuthenticationRefused(t *testing.T) {
	keyPath, _ := writeKey(t)
	_, otherPub := writeKey(t)
	srv := startSSHServer(t, otherPub)

	b := NewRemoteBackend(remoteConfigFor(t, srv.addr, keyPath), setupTestLogger())
	err := b.Connect(context.Background())

	assert.True(t, errors.Is(err, ErrAuthentication), "got %v", err)
	assert.Equal(t, StateDisconnected, b.State())
}

func TestRemoteBackend_MissingKey(t *testing.T) {
	b := NewRemoteBackend(remoteConfigFor(t, "127.0.0.1:22", filepath.Join(t.TempDir(), "none")), setupTestLogger())
	err := b.Connect(context.Background())
	assert.True(t, errors.Is(err, ErrAuthentication))
}

func TestRemoteBackend_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	keyPath, _ := writeKey(t)
	b := NewRemoteBackend(remoteConfigFor(t, addr, keyPath), setupTestLogger())
	err = b.Connect(context.Background())

	assert.True(t, errors.Is(err, ErrConnectionRefused), "got %v", err)
	assert.Equal(t, StateDisconnected, b.State())
}

func TestRemoteBackend_Handshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_, _ = conn.Write([]byte("not an ssh server\r\n"))
			conn.Close()
		}
	}()

	keyPath, _ := writeKey(t)
	b := NewRemoteBackend(remoteConfigFor(t, ln.Addr().String(), keyPath), setupTestLogger())
	err = b.Connect(context.Background())

	assert.True(t, errors.Is(err, ErrHandshake), "got %v", err)
	assert.False(t, errors.Is(err, ErrAuthentication))
}

func TestRemoteBackend_KnownHosts(t *testing.T) {
	keyPath, pub := writeKey(t)
	srv := startSSHServer(t, pub)

	t.Run("matching key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "known_hosts")
		line := knownhosts.Line([]string{srv.addr}, srv.hostKey.PublicKey())
		require.NoError(t, os.WriteFile(path, []byte(line+"\n"), 0o600))

		cfg := remoteConfigFor(t, srv.addr, keyPath)
		cfg.KnownHostsPath = path
		b := NewRemoteBackend(cfg, setupTestLogger())
		require.NoError(t, b.Connect(context.Background()))
		b.Close()
	})

	t.Run("changed key", func(t *testing.T) {
		_, stranger := writeKey(t)
		path := filepath.Join(t.TempDir(), "known_hosts")
		line := knownhosts.Line([]string{srv.addr}, stranger)
		require.NoError(t, os.WriteFile(path, []byte(line+"\n"), 0o600))

		cfg := remoteConfigFor(t, srv.addr, keyPath)
		cfg.KnownHostsPath = path
		b := NewRemoteBackend(cfg, setupTestLogger())
		err := b.Connect(context.Background())
		assert.True(t, errors.Is(err, ErrHandshake), "got %v", err)
	})
}

// =============================================================================
// Command Tests
// =============================================================================

func TestRemoteBackend_RunCommand(t *testing.T) {
	b, _ := connected(t)

	result, err := b.RunCommand(context.Background(), "docker compose version", Required)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitStatus)
	assert.Equal(t, "docker compose version\n", result.Stdout)
}

func TestRemoteBackend_ExitStatus(t *testing.T) {
	b, _ := connected(t)

	result, err := b.RunCommand(context.Background(), "fail 4", Required)
	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, 4, result.ExitStatus)
	assert.Equal(t, "failed on purpose\n", cmdErr.Result.Stderr)

	result, err = b.RunCommand(context.Background(), "fail 1", BestEffort)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExitStatus)
}

func TestRemoteBackend_PutFile(t *testing.T) {
	b, srv := connected(t)

	require.NoError(t, b.PutFile(context.Background(), []byte("name: shop\n"), "/opt/shop/docker-compose.yml"))

	calls := srv.Calls()
	last := calls[len(calls)-1]
	assert.Equal(t, "mkdir -p /opt/shop && cat > /opt/shop/docker-compose.yml", last.Command)
	assert.Equal(t, "name: shop\n", string(last.Stdin))
}

func TestRemoteBackend_NotReady(t *testing.T) {
	b := NewRemoteBackend(DefaultRemoteConfig("203.0.113.7"), setupTestLogger())

	_, err := b.RunCommand(context.Background(), "true", Required)
	assert.True(t, errors.Is(err, ErrNotReady))

	_, err = b.DialContext(context.Background(), "tcp", "127.0.0.1:9002")
	assert.True(t, errors.Is(err, ErrNotReady))
}

func TestRemoteBackend_Close(t *testing.T) {
	b, _ := connected(t)
	require.NoError(t, b.Close())
	assert.Equal(t, StateDisconnected, b.State())

	_, err := b.RunCommand(context.Background(), "true", Required)
	assert.True(t, errors.Is(err, ErrNotReady))
}

// =============================================================================
// Config Tests
// =============================================================================

func TestDefaultRemoteConfig(t *testing.T) {
	cfg := DefaultRemoteConfig("203.0.113.7")
	assert.Equal(t, 22, cfg.Port)
	assert.Equal(t, "root", cfg.User)
	assert.Equal(t, "~/.ssh/id_rsa", cfg.KeyPath)
	assert.Equal(t, "203.0.113.7:22", cfg.Address())
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := expandHome("~/.ssh/id_rsa")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".ssh", "id_rsa"), got)

	got, err = expandHome("/etc/key")
	require.NoError(t, err)
	assert.Equal(t, "/etc/key", got)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "ready", StateReady.String())
}
