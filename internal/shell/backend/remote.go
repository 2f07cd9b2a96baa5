package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/artpar/storedeploy/internal/core/deployment"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// =============================================================================
// Remote Backend Configuration
// =============================================================================

const (
	DefaultSSHPort = 22
	DefaultSSHUser = "root"
	DefaultKeyPath = "~/.ssh/id_rsa"
)

// RemoteConfig configures a RemoteBackend.
type RemoteConfig struct {
	Host           string
	Port           int
	User           string
	KeyPath        string        // private key file; "~/" expands to the home directory
	KnownHostsPath string        // when empty, host keys are not verified
	ConnectTimeout time.Duration // TCP dial plus handshake
	CommandTimeout time.Duration // per command; zero means no bound
}

// DefaultRemoteConfig returns a default configuration for host.
func DefaultRemoteConfig(host string) RemoteConfig {
	return RemoteConfig{
		Host:           host,
		Port:           DefaultSSHPort,
		User:           DefaultSSHUser,
		KeyPath:        DefaultKeyPath,
		ConnectTimeout: 10 * time.Second,
		CommandTimeout: 10 * time.Minute,
	}
}

// Address returns host:port.
func (c RemoteConfig) Address() string {
	port := c.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// =============================================================================
// Connection State
// =============================================================================

// State is the connection state of a RemoteBackend.
// It only moves forward, Disconnected to Ready, until Close resets it.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateAuthenticated
	StateReady
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateReady:
		return "ready"
	default:
		return "disconnected"
	}
}

// =============================================================================
// Remote Backend
// =============================================================================

// RemoteBackend runs commands on a host over one SSH connection.
// Every command gets its own session.
type RemoteBackend struct {
	config RemoteConfig
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	client *ssh.Client
}

// NewRemoteBackend creates a disconnected backend. Call Connect before use.
func NewRemoteBackend(config RemoteConfig, logger *slog.Logger) *RemoteBackend {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Port == 0 {
		config.Port = DefaultSSHPort
	}
	if config.User == "" {
		config.User = DefaultSSHUser
	}
	if config.KeyPath == "" {
		config.KeyPath = DefaultKeyPath
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	return &RemoteBackend{
		config: config,
		logger: logger.With("component", "remote_backend", "host", config.Host),
	}
}

// State returns the current connection state.
func (b *RemoteBackend) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ServerVersion returns the SSH version banner of the connected server.
func (b *RemoteBackend) ServerVersion() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return ""
	}
	return string(b.client.ServerVersion())
}

// Connect dials the host, authenticates with the private key and verifies
// the session with a probe command.
//
// Failures map to:
//   - ErrConnectionRefused when the TCP dial fails
//   - ErrHandshake when the key exchange fails before the host key is seen,
//     or when the host key is rejected
//   - ErrAuthentication when the key is unusable or the server refuses it
func (b *RemoteBackend) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateReady {
		return nil
	}

	signer, err := loadSigner(b.config.KeyPath)
	if err != nil {
		return err
	}

	hostKeys, err := b.hostKeyCallback()
	if err != nil {
		return err
	}
	// The callback runs only once key exchange succeeded, which separates
	// handshake failures from credential failures.
	var hostKeyReached bool
	var hostKeyErr error
	callback := func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		hostKeyReached = true
		hostKeyErr = hostKeys(hostname, remote, key)
		return hostKeyErr
	}

	addr := b.config.Address()
	dialer := net.Dialer{Timeout: b.config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConnectionRefused, addr, err)
	}
	b.state = StateConnected
	b.logger.Debug("tcp connection established", "address", addr)

	_ = conn.SetDeadline(time.Now().Add(b.config.ConnectTimeout))
	sshConfig := &ssh.ClientConfig{
		User:            b.config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: callback,
		Timeout:         b.config.ConnectTimeout,
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
	if err != nil {
		conn.Close()
		b.state = StateDisconnected
		switch {
		case !hostKeyReached:
			return fmt.Errorf("%w: %s: %v", ErrHandshake, addr, err)
		case hostKeyErr != nil:
			return fmt.Errorf("%w: %s: host key rejected: %v", ErrHandshake, addr, hostKeyErr)
		default:
			return fmt.Errorf("%w: %s@%s: %v", ErrAuthentication, b.config.User, addr, err)
		}
	}
	_ = conn.SetDeadline(time.Time{})

	client := ssh.NewClient(c, chans, reqs)
	b.client = client
	b.state = StateAuthenticated

	if err := b.verify(); err != nil {
		client.Close()
		b.client = nil
		b.state = StateDisconnected
		return err
	}

	b.state = StateReady
	b.logger.Info("ssh connection ready", "user", b.config.User, "server_version", string(client.ServerVersion()))
	return nil
}

// verify re-checks authentication after the handshake.
func (b *RemoteBackend) verify() error {
	if len(b.client.SessionID()) == 0 {
		return fmt.Errorf("%w: no session id", ErrAuthentication)
	}
	if b.client.User() != b.config.User {
		return fmt.Errorf("%w: logged in as %q, expected %q", ErrAuthentication, b.client.User(), b.config.User)
	}
	session, err := b.client.NewSession()
	if err != nil {
		return fmt.Errorf("%w: probe session: %v", ErrAuthentication, err)
	}
	defer session.Close()
	if err := session.Run("true"); err != nil {
		return fmt.Errorf("%w: probe command: %v", ErrAuthentication, err)
	}
	return nil
}

func (b *RemoteBackend) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if b.config.KnownHostsPath == "" {
		// TODO: record the host key on first connect instead of skipping verification
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path, err := expandHome(b.config.KnownHostsPath)
	if err != nil {
		return nil, err
	}
	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: load known hosts %s: %v", ErrHandshake, path, err)
	}
	return callback, nil
}

func loadSigner(keyPath string) (ssh.Signer, error) {
	path, err := expandHome(keyPath)
	if err != nil {
		return nil, err
	}
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read private key %s: %v", ErrAuthentication, path, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key %s: %v", ErrAuthentication, path, err)
	}
	return signer, nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// Close closes the SSH connection.
func (b *RemoteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateDisconnected
	if b.client != nil {
		err := b.client.Close()
		b.client = nil
		return err
	}
	return nil
}

// =============================================================================
// Commands
// =============================================================================

// RunCommand runs cmd in a new session.
func (b *RemoteBackend) RunCommand(ctx context.Context, cmd string, mode ExecMode) (CommandResult, error) {
	b.logger.Debug("running command", "command", cmd, "mode", mode.String())

	result, err := b.run(ctx, cmd, nil)
	if err != nil {
		return result, err
	}
	if result.ExitStatus != 0 && mode == BestEffort {
		b.logger.Debug("best-effort command failed",
			"command", cmd,
			"exit_status", result.ExitStatus,
			"output", result.Output(),
		)
	}
	return finish(cmd, result, mode)
}

// PutFile streams data over stdin into a file on the host.
func (b *RemoteBackend) PutFile(ctx context.Context, data []byte, path string) error {
	cmd := deployment.WriteFromStdin(path)
	result, err := b.run(ctx, cmd, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	if _, err := finish(cmd, result, Required); err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	b.logger.Debug("file uploaded", "path", path, "size", len(data))
	return nil
}

// DialContext opens a connection from the host to addr, tunnelled through SSH.
func (b *RemoteBackend) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	client, err := b.readyClient()
	if err != nil {
		return nil, err
	}
	return client.DialContext(ctx, network, addr)
}

func (b *RemoteBackend) readyClient() (*ssh.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateReady || b.client == nil {
		return nil, fmt.Errorf("%w: state is %s", ErrNotReady, b.state)
	}
	return b.client, nil
}

func (b *RemoteBackend) run(ctx context.Context, cmd string, stdin io.Reader) (CommandResult, error) {
	client, err := b.readyClient()
	if err != nil {
		return CommandResult{}, err
	}

	session, err := client.NewSession()
	if err != nil {
		return CommandResult{}, fmt.Errorf("%w: open session: %v", ErrProcessStart, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != nil {
		session.Stdin = stdin
	}

	var timeout <-chan time.Time
	if b.config.CommandTimeout > 0 {
		timer := time.NewTimer(b.config.CommandTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return CommandResult{}, ctx.Err()
	case <-timeout:
		_ = session.Signal(ssh.SIGKILL)
		return CommandResult{}, fmt.Errorf("%w after %v: %s", ErrCommandTimeout, b.config.CommandTimeout, cmd)
	case err := <-done:
		// Run returns after the session has drained stdout and stderr.
		result := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
		if err == nil {
			return result, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitStatus = exitErr.ExitStatus()
			return result, nil
		}
		return result, fmt.Errorf("%w: %v", ErrProcessStart, err)
	}
}
