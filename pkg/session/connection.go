package session

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"github.com/webosbrew/devman/pkg/devices"
	"github.com/webosbrew/devman/pkg/logger"
)

// shellModes follow the interactive defaults used for webOS targets.
var shellModes = ssh.TerminalModes{
	ssh.ECHO:          1,
	ssh.TTY_OP_ISPEED: 14400,
	ssh.TTY_OP_OSPEED: 14400,
}

const shellTerm = "xterm-256color"

// Connection is one authenticated SSH transport to a device. It lives in the
// pool until its transport dies, at which point it removes itself through the
// evict capability and later lookups create a replacement.
type Connection struct {
	id     uuid.UUID
	device devices.Device
	client Client
	log    *logger.Logger

	mu   sync.Mutex
	dead bool

	// evict attempts removal from the owning registry. It never assumes the
	// registry still holds this connection.
	evict func(id uuid.UUID)
}

func (c *Connection) ID() uuid.UUID {
	return c.id
}

func (c *Connection) Device() devices.Device {
	return c.device
}

// monitor blocks on the transport and routes its death into pool cleanup.
func (c *Connection) monitor() {
	err := c.client.Wait()
	if err != nil {
		c.log.Debugf("Connection to %s lost: %v", c.device.Name, err)
	}
	c.fault()
}

// fault marks the connection dead and evicts it. Safe to call more than once.
func (c *Connection) fault() {
	c.mu.Lock()
	already := c.dead
	c.dead = true
	c.mu.Unlock()
	if already {
		return
	}
	if c.evict != nil {
		c.evict(c.id)
	}
	_ = c.client.Close()
}

func (c *Connection) faulted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dead
}

func (c *Connection) Close() error {
	return c.client.Close()
}

// openChannel opens a logical channel, converting transport death into a
// needs-reconnect error so the session manager can retry on a fresh
// connection.
func (c *Connection) openChannel() (Channel, error) {
	if c.faulted() {
		return nil, NewError(ErrNeedsReconnect, "connection to "+c.device.Name+" is dead", nil)
	}
	ch, err := c.client.NewChannel()
	if err != nil {
		c.fault()
		return nil, NewError(ErrNeedsReconnect, "failed to open channel to "+c.device.Name, err)
	}
	return ch, nil
}

// Exec runs a command to completion, writing stdin if provided, and returns
// the collected stdout.
func (c *Connection) Exec(command string, stdin []byte) ([]byte, error) {
	ch, err := c.openChannel()
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	in, err := ch.StdinPipe()
	if err != nil {
		return nil, NewError(ErrIO, "failed to open stdin", err)
	}
	out, err := ch.StdoutPipe()
	if err != nil {
		return nil, NewError(ErrIO, "failed to open stdout", err)
	}
	errOut, err := ch.StderrPipe()
	if err != nil {
		return nil, NewError(ErrIO, "failed to open stderr", err)
	}

	if err := ch.Start(command); err != nil {
		return nil, NewError(ErrNegativeReply, "device rejected command", err)
	}

	if len(stdin) > 0 {
		if _, err := in.Write(stdin); err != nil {
			return nil, NewError(ErrIO, "failed to write stdin", err)
		}
	}
	_ = in.Close()

	var stderrBuf bytes.Buffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = io.Copy(&stderrBuf, errOut)
	}()

	data, readErr := io.ReadAll(out)
	waitErr := ch.Wait()
	<-done

	if readErr != nil {
		return nil, NewError(ErrIO, "failed to read command output", readErr)
	}
	if waitErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(waitErr, &exitErr) {
			return nil, NewError(ErrIO, "command exited with status "+exitErr.Waitmsg.String()+": "+stderrBuf.String(), waitErr)
		}
		return nil, NewError(ErrIO, "command did not finish cleanly", waitErr)
	}
	return data, nil
}

// Spawn starts a background process handle for the command. The caller calls
// Proc.Start to issue the exec request once its callback is registered.
func (c *Connection) Spawn(command string) (*Proc, error) {
	ch, err := c.openChannel()
	if err != nil {
		return nil, err
	}

	in, out, errOut, err := channelPipes(ch)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}

	proc := &Proc{
		Command: command,
		log:     c.log,
		ch:      ch,
		stdin:   in,
		done:    make(chan struct{}),
	}
	// The teardown watcher starts in Proc.Start: waiting on the channel
	// before the exec request is issued would observe an immediate return
	// and kill the pump.
	startPump(proc, ch, out, errOut, c.log)
	return proc, nil
}

// Shell opens an interactive pseudo-terminal sized cols x rows.
func (c *Connection) Shell(cols, rows int) (*Shell, error) {
	ch, err := c.openChannel()
	if err != nil {
		return nil, err
	}

	if err := ch.RequestPty(shellTerm, rows, cols, shellModes); err != nil {
		_ = ch.Close()
		return nil, NewError(ErrNegativeReply, "device rejected pty request", err)
	}

	in, out, errOut, err := channelPipes(ch)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}

	if err := ch.Shell(); err != nil {
		_ = ch.Close()
		return nil, NewError(ErrNegativeReply, "device rejected shell request", err)
	}

	shell := &Shell{
		token:     newShellToken(),
		createdAt: time.Now(),
		connID:    c.id,
		log:       c.log,
		ch:        ch,
		stdin:     in,
		cols:      cols,
		rows:      rows,
		done:      make(chan struct{}),
	}
	tx := startPump(shell, ch, out, errOut, c.log)
	watchChannel(shell, ch, tx, c.log)
	return shell, nil
}

// ReadFile fetches a remote file over SFTP on this connection.
func (c *Connection) ReadFile(path string) ([]byte, error) {
	if c.faulted() {
		return nil, NewError(ErrNeedsReconnect, "connection to "+c.device.Name+" is dead", nil)
	}
	data, err := c.client.ReadFile(path)
	if err != nil {
		if isClosedTransport(err) {
			c.fault()
			return nil, NewError(ErrNeedsReconnect, "connection to "+c.device.Name+" lost during read", err)
		}
		return nil, NewError(ErrIO, "failed to read "+path, err)
	}
	return data, nil
}

func channelPipes(ch Channel) (io.WriteCloser, io.Reader, io.Reader, error) {
	in, err := ch.StdinPipe()
	if err != nil {
		return nil, nil, nil, NewError(ErrIO, "failed to open stdin", err)
	}
	out, err := ch.StdoutPipe()
	if err != nil {
		return nil, nil, nil, NewError(ErrIO, "failed to open stdout", err)
	}
	errOut, err := ch.StderrPipe()
	if err != nil {
		return nil, nil, nil, NewError(ErrIO, "failed to open stderr", err)
	}
	return in, out, errOut, nil
}

func isClosedTransport(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection lost")
}
