package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestShell(t *testing.T) (*Shell, *fakeChannel) {
	t.Helper()
	client := newFakeClient()
	var ch *fakeChannel
	client.newChannel = func() (Channel, error) {
		ch = newFakeChannel()
		return ch, nil
	}
	conn := newTestConnection(t, client)
	shell, err := conn.Shell(80, 24)
	require.NoError(t, err)
	return shell, ch
}

func TestShellTokensAreUnique(t *testing.T) {
	seen := map[ShellToken]bool{}
	for i := 0; i < 100; i++ {
		token := newShellToken()
		assert.False(t, seen[token])
		seen[token] = true
	}
}

func TestShellWriteReachesTerminal(t *testing.T) {
	shell, ch := openTestShell(t)

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 16)
		n, _ := ch.stdinR.Read(buf)
		got <- string(buf[:n])
	}()

	require.NoError(t, shell.Write([]byte("ls\n")))
	assert.Equal(t, "ls\n", <-got)
}

func TestShellOutputDeliveredToCallback(t *testing.T) {
	shell, ch := openTestShell(t)
	rec := &rxRecorder{}
	shell.OnData(rec.callback())

	_, err := ch.stdoutW.Write([]byte("$ "))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		chunks := rec.recorded()
		return len(chunks) == 1 && chunks[0].data == "$ " && chunks[0].stream == StreamStdout
	}, time.Second, 10*time.Millisecond)
}

func TestShellResize(t *testing.T) {
	shell, ch := openTestShell(t)

	require.NoError(t, shell.Resize(132, 43))
	cols, rows := shell.Size()
	assert.Equal(t, 132, cols)
	assert.Equal(t, 43, rows)

	assert.Eventually(t, func() bool {
		changes := ch.windowChanges()
		return len(changes) == 1 && changes[0] == [2]int{132, 43}
	}, time.Second, 10*time.Millisecond)
}

func TestShellWriteAfterCloseIsDisconnected(t *testing.T) {
	shell, _ := openTestShell(t)

	require.NoError(t, shell.Close())
	assert.Eventually(t, func() bool {
		locked, unlock := shell.lockChannel()
		defer unlock()
		return locked == nil
	}, time.Second, 10*time.Millisecond)

	err := shell.Write([]byte("late"))
	require.Error(t, err)
	assert.True(t, IsKind(err, ErrDisconnected))
	assert.True(t, IsKind(shell.Resize(80, 24), ErrDisconnected))

	// Double close is a no-op once the channel slot is cleared.
	assert.NoError(t, shell.Close())
}

func TestShellInfoProjection(t *testing.T) {
	shell, _ := openTestShell(t)
	info := shell.Info()
	assert.Equal(t, shell.Token(), info.Token)
	assert.Equal(t, shell.CreatedAt(), info.CreatedAt)
}

func TestShellEOFTerminatesPump(t *testing.T) {
	shell, ch := openTestShell(t)
	rec := &rxRecorder{}
	shell.OnData(rec.callback())

	_, err := ch.stdoutW.Write([]byte("logout\n"))
	require.NoError(t, err)
	require.NoError(t, ch.Close())

	assert.Eventually(t, func() bool {
		return IsKind(shell.Write([]byte("x")), ErrDisconnected)
	}, time.Second, 10*time.Millisecond)

	chunks := rec.recorded()
	require.NotEmpty(t, chunks)
	assert.Equal(t, "logout\n", chunks[0].data)
}

func TestShellDoneSignaledOnChannelExit(t *testing.T) {
	shell, ch := openTestShell(t)

	select {
	case <-shell.Done():
		t.Fatal("done fired before channel exit")
	default:
	}

	require.NoError(t, ch.Close())
	select {
	case <-shell.Done():
	case <-time.After(time.Second):
		t.Fatal("shell never reported channel exit")
	}
}
