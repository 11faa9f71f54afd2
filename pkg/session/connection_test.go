package session

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webosbrew/devman/pkg/logger"
)

func newTestConnection(t *testing.T, client Client) *Connection {
	t.Helper()
	conn := &Connection{
		id:     uuid.New(),
		device: testDevice("tv1"),
		client: client,
		log:    logger.NewTestLogger(t),
	}
	go conn.monitor()
	return conn
}

func TestConnectionExecCollectsStdout(t *testing.T) {
	client := newFakeClient()
	var ch *fakeChannel
	client.newChannel = func() (Channel, error) {
		ch = newFakeChannel()
		ch.onStart = func(string) {
			_, _ = ch.stdoutW.Write([]byte("webOS 6.0\n"))
			_ = ch.Close()
		}
		return ch, nil
	}
	conn := newTestConnection(t, client)

	data, err := conn.Exec("cat /etc/release", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("webOS 6.0\n"), data)
	assert.Equal(t, []string{"cat /etc/release"}, ch.startedCommands())
}

func TestConnectionExecForwardsStdin(t *testing.T) {
	client := newFakeClient()
	var ch *fakeChannel
	echoed := make(chan []byte, 1)
	client.newChannel = func() (Channel, error) {
		ch = newFakeChannel()
		ch.onStart = func(string) {
			buf := make([]byte, 64)
			n, _ := ch.stdinR.Read(buf)
			echoed <- buf[:n]
			_, _ = ch.stdoutW.Write(buf[:n])
			_ = ch.Close()
		}
		return ch, nil
	}
	conn := newTestConnection(t, client)

	data, err := conn.Exec("cat", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
	assert.Equal(t, []byte("hello"), <-echoed)
}

func TestConnectionExecNegativeReply(t *testing.T) {
	client := newFakeClient()
	client.newChannel = func() (Channel, error) {
		ch := newFakeChannel()
		ch.startErr = errors.New("request denied")
		return ch, nil
	}
	conn := newTestConnection(t, client)

	_, err := conn.Exec("reboot", nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrNegativeReply))
	assert.False(t, conn.faulted(), "a rejected request does not kill the transport")
}

func TestConnectionChannelOpenFailureNeedsReconnect(t *testing.T) {
	client := newFakeClient()
	client.newChannel = func() (Channel, error) {
		return nil, errors.New("ssh: connection closed")
	}
	evicted := make(chan uuid.UUID, 1)
	conn := newTestConnection(t, client)
	conn.evict = func(id uuid.UUID) { evicted <- id }

	_, err := conn.Exec("echo hi", nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrNeedsReconnect))
	assert.True(t, conn.faulted())
	assert.Equal(t, conn.ID(), <-evicted, "a dead connection removes itself from the pool")

	// Later operations fail fast without touching the transport.
	_, err = conn.Exec("echo hi", nil)
	assert.True(t, IsKind(err, ErrNeedsReconnect))
}

func TestConnectionShellRequestsPty(t *testing.T) {
	client := newFakeClient()
	var ch *fakeChannel
	client.newChannel = func() (Channel, error) {
		ch = newFakeChannel()
		return ch, nil
	}
	conn := newTestConnection(t, client)

	shell, err := conn.Shell(120, 40)
	require.NoError(t, err)
	assert.True(t, ch.ptyReq)
	assert.Equal(t, 120, ch.ptyCols)
	assert.Equal(t, 40, ch.ptyRows)
	assert.True(t, ch.shellReq)
	assert.NotEmpty(t, shell.Token())
	assert.False(t, shell.CreatedAt().IsZero())
}

func TestConnectionShellPtyRejected(t *testing.T) {
	client := newFakeClient()
	client.newChannel = func() (Channel, error) {
		ch := newFakeChannel()
		ch.ptyErr = errors.New("pty-req denied")
		return ch, nil
	}
	conn := newTestConnection(t, client)

	_, err := conn.Shell(80, 24)
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrNegativeReply))
}

func TestConnectionReadFile(t *testing.T) {
	client := newFakeClient()
	client.readFile = func(path string) ([]byte, error) {
		assert.Equal(t, "/var/luna/preferences/devmode_enabled", path)
		return []byte("dGVzdA"), nil
	}
	conn := newTestConnection(t, client)

	data, err := conn.ReadFile("/var/luna/preferences/devmode_enabled")
	require.NoError(t, err)
	assert.Equal(t, []byte("dGVzdA"), data)
}

func TestConnectionReadFileMissingIsIOError(t *testing.T) {
	client := newFakeClient()
	client.readFile = func(string) ([]byte, error) {
		return nil, errors.New("file does not exist")
	}
	conn := newTestConnection(t, client)

	_, err := conn.ReadFile("/nonexistent")
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrIO))
	assert.False(t, conn.faulted())
}
