// Package ssh opens password-authenticated sessions to iLO management
// processors and runs commands on them, one channel per command.
package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/ilo-fanctl/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	defaultPort    = 22
	defaultTimeout = 30 * time.Second
)

// Algorithm preferences offered during negotiation. Modern choices come
// first; the legacy entries are what iLO firmware commonly supports.
// Names the library cannot implement are dropped during negotiation.
var (
	KeyExchanges = []string{
		"curve25519-sha256",
		"curve25519-sha256@libssh.org",
		"ecdh-sha2-nistp256",
		"ecdh-sha2-nistp384",
		"ecdh-sha2-nistp521",
		"diffie-hellman-group14-sha256",
		"diffie-hellman-group-exchange-sha256",
		"diffie-hellman-group-exchange-sha1",
		"diffie-hellman-group14-sha1",
		"diffie-hellman-group1-sha1",
	}

	HostKeyAlgorithms = []string{
		"ssh-ed25519",
		"ecdsa-sha2-nistp256",
		"ecdsa-sha2-nistp384",
		"ecdsa-sha2-nistp521",
		"rsa-sha2-512",
		"rsa-sha2-256",
		"ssh-rsa",
	}

	Ciphers = []string{
		"aes128-gcm@openssh.com",
		"aes256-gcm@openssh.com",
		"chacha20-poly1305@openssh.com",
		"aes128-ctr",
		"aes192-ctr",
		"aes256-ctr",
		"3des-cbc",
		"aes128-cbc",
		"aes192-cbc",
		"aes256-cbc",
	}

	MACs = []string{
		"hmac-sha2-256-etm@openssh.com",
		"hmac-sha2-256",
		"hmac-sha1",
		"hmac-sha1-96",
	}
)

// ErrSessionClosed is returned when a closed session is used.
var ErrSessionClosed = errors.New("ssh session is closed")

// Stage is the connection step that failed.
type Stage string

// Connection stages.
const (
	StageDial      Stage = "dial"
	StageHandshake Stage = "handshake"
	StageAuth      Stage = "auth"
)

// ConnectError reports a failure to establish an authenticated session.
type ConnectError struct {
	Addr  string
	Stage Stage
	Err   error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("ssh %s to %s failed: %v", e.Stage, e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ExecError reports a command that failed. Commands before it ran and are not undone.
type ExecError struct {
	Command   string
	Completed int
	Outputs   []string
	Err       error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("command %q failed after %d completed: %v", e.Command, e.Completed, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Service defines the interface for SSH operations.
type Service interface {
	Connect(ctx context.Context, target models.SSHTarget) (Session, error)
}

// Session is an authenticated connection. Each Exec command gets its own
// channel, so no shell state carries over between commands.
type Session interface {
	Exec(ctx context.Context, commands []string) ([]string, error)
	Close() error
}

// SSHClient wraps ssh.Client for mocking.
type SSHClient interface {
	NewSession() (SSHSession, error)
	Close() error
}

// SSHSession wraps ssh.Session for mocking.
type SSHSession interface {
	CombinedOutput(cmd string) ([]byte, error)
	Close() error
}

// ClientFactory creates authenticated SSH clients.
type ClientFactory interface {
	NewClient(ctx context.Context, network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

// DefaultClientFactory is the default SSH client factory. Its errors are
// *ConnectError values.
type DefaultClientFactory struct{}

// NewClient dials addr, runs the handshake and authenticates.
func (f *DefaultClientFactory) NewClient(ctx context.Context, network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	dialer := net.Dialer{Timeout: config.Timeout}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Stage: StageDial, Err: err}
	}

	// Bound the handshake; the deadline is lifted once authenticated.
	if config.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(config.Timeout))
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		stage := StageHandshake
		if isAuthFailure(err) {
			stage = StageAuth
		}
		return nil, &ConnectError{Addr: addr, Stage: stage, Err: err}
	}
	_ = conn.SetDeadline(time.Time{})

	return &defaultSSHClient{client: ssh.NewClient(c, chans, reqs)}, nil
}

// isAuthFailure reports whether a handshake error is a rejected login.
// The library does not export a typed client-side error for this.
func isAuthFailure(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

type defaultSSHClient struct {
	client *ssh.Client
}

func (c *defaultSSHClient) NewSession() (SSHSession, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return &defaultSSHSession{session: session}, nil
}

func (c *defaultSSHClient) Close() error {
	return c.client.Close()
}

type defaultSSHSession struct {
	session *ssh.Session
}

func (s *defaultSSHSession) CombinedOutput(cmd string) ([]byte, error) {
	return s.session.CombinedOutput(cmd)
}

func (s *defaultSSHSession) Close() error {
	return s.session.Close()
}

// Impl implements the SSH Service interface.
type Impl struct {
	clientFactory ClientFactory
	logger        zerolog.Logger
}

// New creates a new SSH service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		clientFactory: &DefaultClientFactory{},
		logger:        logger,
	}
}

// NewWithClientFactory creates a new SSH service with a custom client factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, factory ClientFactory) *Impl {
	return &Impl{
		clientFactory: factory,
		logger:        logger,
	}
}

func (s *Impl) buildConfig(target models.SSHTarget) (*ssh.ClientConfig, error) {
	hostKeyCallback := ssh.InsecureIgnoreHostKey() //nolint:gosec // iLO host keys are rarely distributed
	if target.KnownHostsFile != "" {
		cb, err := knownhosts.New(target.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts from %s: %w", target.KnownHostsFile, err)
		}
		hostKeyCallback = cb
	}

	timeout := target.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	password := target.Password.Reveal()

	return &ssh.ClientConfig{
		Config: ssh.Config{
			KeyExchanges: slices.Clone(KeyExchanges),
			Ciphers:      slices.Clone(Ciphers),
			MACs:         slices.Clone(MACs),
		},
		User: target.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback:   hostKeyCallback,
		HostKeyAlgorithms: slices.Clone(HostKeyAlgorithms),
		Timeout:           timeout,
	}, nil
}

// Connect opens an authenticated session to target.
func (s *Impl) Connect(ctx context.Context, target models.SSHTarget) (Session, error) {
	port := target.Port
	if port == 0 {
		port = defaultPort
	}
	addr := net.JoinHostPort(target.Host, strconv.Itoa(port))

	s.logger.Debug().
		Str("host", target.Host).
		Int("port", port).
		Str("user", target.Username).
		Msg("opening SSH session")

	sshConfig, err := s.buildConfig(target)
	if err != nil {
		return nil, err
	}

	type dialResult struct {
		client SSHClient
		err    error
	}
	clientChan := make(chan dialResult, 1)

	go func() {
		client, err := s.clientFactory.NewClient(ctx, "tcp", addr, sshConfig)
		clientChan <- dialResult{client, err}
	}()

	select {
	case <-ctx.Done():
		// Release a client that completes after we gave up on it.
		go func() {
			if res := <-clientChan; res.client != nil {
				_ = res.client.Close()
			}
		}()
		return nil, &ConnectError{Addr: addr, Stage: StageDial, Err: ctx.Err()}
	case res := <-clientChan:
		if res.err != nil {
			var connectErr *ConnectError
			if errors.As(res.err, &connectErr) {
				return nil, connectErr
			}
			return nil, &ConnectError{Addr: addr, Stage: StageHandshake, Err: res.err}
		}

		s.logger.Debug().Str("addr", addr).Msg("SSH session authenticated")
		return &session{client: res.client, addr: addr, logger: s.logger}, nil
	}
}

type session struct {
	client SSHClient
	addr   string
	logger zerolog.Logger
	closed bool
}

// Exec runs commands in order and returns each command's output. It stops
// at the first failure with an *ExecError.
func (s *session) Exec(ctx context.Context, commands []string) ([]string, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}

	outputs := make([]string, 0, len(commands))
	for i, cmd := range commands {
		s.logger.Debug().Str("addr", s.addr).Str("command", cmd).Msg("executing command")

		output, err := s.run(ctx, cmd)
		if err != nil {
			return outputs, &ExecError{Command: cmd, Completed: i, Outputs: outputs, Err: err}
		}
		outputs = append(outputs, output)
	}

	return outputs, nil
}

func (s *session) run(ctx context.Context, cmd string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	channel, err := s.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to open channel: %w", err)
	}
	defer func() { _ = channel.Close() }()

	type runResult struct {
		output []byte
		err    error
	}
	done := make(chan runResult, 1)

	go func() {
		output, err := channel.CombinedOutput(cmd)
		done <- runResult{output, err}
	}()

	select {
	case <-ctx.Done():
		_ = channel.Close()
		return "", ctx.Err()
	case res := <-done:
		output := string(res.output)
		if res.err == nil {
			return output, nil
		}
		// Some firmware closes the channel without an exit status.
		var missing *ssh.ExitMissingError
		if errors.As(res.err, &missing) {
			return output, nil
		}
		return output, fmt.Errorf("failed to run command: %w", res.err)
	}
}

// Close closes the underlying connection. Further Exec calls fail with ErrSessionClosed.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
