package ssh

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fgeck/ilo-fanctl/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// Mock implementations
type mockSSHSession struct {
	combinedOutputFunc func(cmd string) ([]byte, error)
	closeFunc          func() error
}

func (m *mockSSHSession) CombinedOutput(cmd string) ([]byte, error) {
	if m.combinedOutputFunc != nil {
		return m.combinedOutputFunc(cmd)
	}
	return []byte(""), nil
}

func (m *mockSSHSession) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

type mockSSHClient struct {
	newSessionFunc func() (SSHSession, error)
	closeFunc      func() error
}

func (m *mockSSHClient) NewSession() (SSHSession, error) {
	if m.newSessionFunc != nil {
		return m.newSessionFunc()
	}
	return &mockSSHSession{}, nil
}

func (m *mockSSHClient) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

type mockClientFactory struct {
	newClientFunc func(ctx context.Context, network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

func (m *mockClientFactory) NewClient(ctx context.Context, network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	if m.newClientFunc != nil {
		return m.newClientFunc(ctx, network, addr, config)
	}
	return &mockSSHClient{}, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testTarget() models.SSHTarget {
	return models.SSHTarget{
		Host:     "192.168.1.100",
		Port:     22,
		Username: "admin",
		Password: models.Secret("secret"),
		Timeout:  5 * time.Second,
	}
}

func recordingClient(commands *[]string, fail map[string]error) *mockSSHClient {
	return &mockSSHClient{
		newSessionFunc: func() (SSHSession, error) {
			return &mockSSHSession{
				combinedOutputFunc: func(cmd string) ([]byte, error) {
					*commands = append(*commands, cmd)
					if err, ok := fail[cmd]; ok {
						return []byte("error"), err
					}
					return []byte("ok " + cmd), nil
				},
			}, nil
		},
	}
}

func TestConnect_Success(t *testing.T) {
	var capturedAddr string
	var capturedConfig *ssh.ClientConfig

	factory := &mockClientFactory{
		newClientFunc: func(_ context.Context, network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
			capturedAddr = addr
			capturedConfig = config
			return &mockSSHClient{}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	session, err := svc.Connect(context.Background(), testTarget())

	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "192.168.1.100:22", capturedAddr)
	assert.Equal(t, "admin", capturedConfig.User)
	assert.Len(t, capturedConfig.Auth, 2)
}

func TestConnect_DefaultPort(t *testing.T) {
	var capturedAddr string
	factory := &mockClientFactory{
		newClientFunc: func(_ context.Context, _, addr string, _ *ssh.ClientConfig) (SSHClient, error) {
			capturedAddr = addr
			return &mockSSHClient{}, nil
		},
	}

	target := testTarget()
	target.Port = 0

	svc := NewWithClientFactory(testLogger(), factory)
	_, err := svc.Connect(context.Background(), target)

	require.NoError(t, err)
	assert.Equal(t, "192.168.1.100:22", capturedAddr)
}

func TestConnect_ConnectionFailed(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(_ context.Context, _, addr string, _ *ssh.ClientConfig) (SSHClient, error) {
			return nil, &ConnectError{Addr: addr, Stage: StageDial, Err: errors.New("connection refused")}
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	session, err := svc.Connect(context.Background(), testTarget())

	assert.Nil(t, session)
	var connectErr *ConnectError
	require.ErrorAs(t, err, &connectErr)
	assert.Equal(t, StageDial, connectErr.Stage)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestConnect_UntypedErrorIsHandshake(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(_ context.Context, _, _ string, _ *ssh.ClientConfig) (SSHClient, error) {
			return nil, errors.New("kex failed")
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	_, err := svc.Connect(context.Background(), testTarget())

	var connectErr *ConnectError
	require.ErrorAs(t, err, &connectErr)
	assert.Equal(t, StageHandshake, connectErr.Stage)
}

func TestConnect_ContextCancelled(t *testing.T) {
	closed := make(chan struct{})
	factory := &mockClientFactory{
		newClientFunc: func(_ context.Context, _, _ string, _ *ssh.ClientConfig) (SSHClient, error) {
			// Simulate slow connection
			time.Sleep(100 * time.Millisecond)
			return &mockSSHClient{
				closeFunc: func() error {
					close(closed)
					return nil
				},
			}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	session, err := svc.Connect(ctx, testTarget())

	assert.Nil(t, session)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("late client was not closed")
	}
}

func TestExec_RunsCommandsInOrder(t *testing.T) {
	var commands []string
	factory := &mockClientFactory{
		newClientFunc: func(_ context.Context, _, _ string, _ *ssh.ClientConfig) (SSHClient, error) {
			return recordingClient(&commands, nil), nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	session, err := svc.Connect(context.Background(), testTarget())
	require.NoError(t, err)
	defer session.Close()

	outputs, err := session.Exec(context.Background(), []string{"fan p 0 max 51", "fan p 1 max 51"})

	require.NoError(t, err)
	assert.Equal(t, []string{"fan p 0 max 51", "fan p 1 max 51"}, commands)
	assert.Equal(t, []string{"ok fan p 0 max 51", "ok fan p 1 max 51"}, outputs)
}

func TestExec_StopsAtFirstFailure(t *testing.T) {
	var commands []string
	factory := &mockClientFactory{
		newClientFunc: func(_ context.Context, _, _ string, _ *ssh.ClientConfig) (SSHClient, error) {
			return recordingClient(&commands, map[string]error{"b": errors.New("boom")}), nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	session, err := svc.Connect(context.Background(), testTarget())
	require.NoError(t, err)
	defer session.Close()

	outputs, err := session.Exec(context.Background(), []string{"a", "b", "c"})

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 1, execErr.Completed)
	assert.Equal(t, "b", execErr.Command)
	assert.Equal(t, []string{"ok a"}, execErr.Outputs)
	assert.Equal(t, []string{"ok a"}, outputs)
	assert.Equal(t, []string{"a", "b"}, commands)
}

func TestExec_ExitMissingIsSuccess(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(_ context.Context, _, _ string, _ *ssh.ClientConfig) (SSHClient, error) {
			return &mockSSHClient{
				newSessionFunc: func() (SSHSession, error) {
					return &mockSSHSession{
						combinedOutputFunc: func(string) ([]byte, error) {
							return []byte("done"), &ssh.ExitMissingError{}
						},
					}, nil
				},
			}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	session, err := svc.Connect(context.Background(), testTarget())
	require.NoError(t, err)

	outputs, err := session.Exec(context.Background(), []string{"fan info"})

	require.NoError(t, err)
	assert.Equal(t, []string{"done"}, outputs)
}

func TestExec_ChannelOpenFailed(t *testing.T) {
	factory := &mockClientFactory{
		newClientFunc: func(_ context.Context, _, _ string, _ *ssh.ClientConfig) (SSHClient, error) {
			return &mockSSHClient{
				newSessionFunc: func() (SSHSession, error) {
					return nil, errors.New("session creation failed")
				},
			}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	session, err := svc.Connect(context.Background(), testTarget())
	require.NoError(t, err)

	_, err = session.Exec(context.Background(), []string{"a"})

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 0, execErr.Completed)
	assert.Contains(t, err.Error(), "failed to open channel")
}

func TestExec_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	factory := &mockClientFactory{
		newClientFunc: func(_ context.Context, _, _ string, _ *ssh.ClientConfig) (SSHClient, error) {
			return &mockSSHClient{
				newSessionFunc: func() (SSHSession, error) {
					return &mockSSHSession{
						combinedOutputFunc: func(string) ([]byte, error) {
							<-release
							return nil, nil
						},
					}, nil
				},
			}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	session, err := svc.Connect(context.Background(), testTarget())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = session.Exec(ctx, []string{"a", "b"})

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 0, execErr.Completed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExec_AfterClose(t *testing.T) {
	clientClosed := 0
	factory := &mockClientFactory{
		newClientFunc: func(_ context.Context, _, _ string, _ *ssh.ClientConfig) (SSHClient, error) {
			return &mockSSHClient{
				closeFunc: func() error {
					clientClosed++
					return nil
				},
			}, nil
		},
	}

	svc := NewWithClientFactory(testLogger(), factory)
	session, err := svc.Connect(context.Background(), testTarget())
	require.NoError(t, err)

	require.NoError(t, session.Close())
	require.NoError(t, session.Close())
	assert.Equal(t, 1, clientClosed)

	_, err = session.Exec(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestBuildConfig_LegacyAlgorithms(t *testing.T) {
	svc := New(testLogger())

	sshConfig, err := svc.buildConfig(testTarget())

	require.NoError(t, err)
	assert.Contains(t, sshConfig.KeyExchanges, "diffie-hellman-group14-sha1")
	assert.Contains(t, sshConfig.KeyExchanges, "diffie-hellman-group1-sha1")
	assert.Contains(t, sshConfig.KeyExchanges, "diffie-hellman-group-exchange-sha1")
	assert.Contains(t, sshConfig.Ciphers, "3des-cbc")
	assert.Contains(t, sshConfig.Ciphers, "aes128-cbc")
	assert.Contains(t, sshConfig.Ciphers, "aes256-ctr")
	assert.Contains(t, sshConfig.HostKeyAlgorithms, "ssh-rsa")
	assert.Equal(t, 5*time.Second, sshConfig.Timeout)

	// Modern algorithms are preferred.
	assert.Equal(t, "curve25519-sha256", sshConfig.KeyExchanges[0])
}

func TestBuildConfig_DefaultTimeout(t *testing.T) {
	svc := New(testLogger())
	target := testTarget()
	target.Timeout = 0

	sshConfig, err := svc.buildConfig(target)

	require.NoError(t, err)
	assert.Equal(t, defaultTimeout, sshConfig.Timeout)
}

func TestBuildConfig_KnownHostsNotFound(t *testing.T) {
	svc := New(testLogger())
	target := testTarget()
	target.KnownHostsFile = "/nonexistent/known_hosts"

	_, err := svc.buildConfig(target)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load known hosts")
}

func TestBuildConfig_KnownHostsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_hosts")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o600))

	svc := New(testLogger())
	target := testTarget()
	target.KnownHostsFile = path

	sshConfig, err := svc.buildConfig(target)

	require.NoError(t, err)
	assert.NotNil(t, sshConfig.HostKeyCallback)
}
