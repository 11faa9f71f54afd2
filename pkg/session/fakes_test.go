package session

import (
	"errors"
	"io"
	"sync"

	"golang.org/x/crypto/ssh"
)

// fakeClient is a scriptable Client whose Wait blocks until kill is called,
// mirroring a live transport.
type fakeClient struct {
	mu         sync.Mutex
	newChannel func() (Channel, error)
	readFile   func(path string) ([]byte, error)
	killed     chan struct{}
	closed     bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{killed: make(chan struct{})}
}

func (c *fakeClient) NewChannel() (Channel, error) {
	c.mu.Lock()
	open := c.newChannel
	c.mu.Unlock()
	if open != nil {
		return open()
	}
	return newFakeChannel(), nil
}

func (c *fakeClient) ReadFile(path string) ([]byte, error) {
	c.mu.Lock()
	read := c.readFile
	c.mu.Unlock()
	if read != nil {
		return read(path)
	}
	return nil, errors.New("no file content configured")
}

func (c *fakeClient) Wait() error {
	<-c.killed
	return errors.New("connection closed")
}

func (c *fakeClient) Close() error {
	c.kill()
	return nil
}

func (c *fakeClient) kill() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.killed)
	}
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeChannel records channel requests and exposes pipe ends so tests can
// feed inbound data and observe outbound writes.
type fakeChannel struct {
	mu       sync.Mutex
	started  []string
	signals  []ssh.Signal
	resizes  [][2]int
	ptyCols  int
	ptyRows  int
	ptyReq   bool
	shellReq bool

	startErr error
	ptyErr   error
	shellErr error

	// waitErrBeforeStart makes Wait return immediately with this error while
	// no exec or shell request has been issued, matching the live transport.
	waitErrBeforeStart error

	onStart func(command string)

	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	done      chan struct{}
	closeOnce sync.Once
}

func newFakeChannel() *fakeChannel {
	ch := &fakeChannel{done: make(chan struct{})}
	ch.stdinR, ch.stdinW = io.Pipe()
	ch.stdoutR, ch.stdoutW = io.Pipe()
	ch.stderrR, ch.stderrW = io.Pipe()
	return ch
}

func (ch *fakeChannel) Start(command string) error {
	ch.mu.Lock()
	ch.started = append(ch.started, command)
	err := ch.startErr
	hook := ch.onStart
	ch.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		go hook(command)
	}
	return nil
}

func (ch *fakeChannel) Shell() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.shellReq = true
	return ch.shellErr
}

func (ch *fakeChannel) RequestPty(term string, rows, cols int, modes ssh.TerminalModes) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.ptyReq = true
	ch.ptyRows = rows
	ch.ptyCols = cols
	return ch.ptyErr
}

func (ch *fakeChannel) WindowChange(rows, cols int) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.resizes = append(ch.resizes, [2]int{cols, rows})
	return nil
}

func (ch *fakeChannel) Signal(sig ssh.Signal) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.signals = append(ch.signals, sig)
	return nil
}

func (ch *fakeChannel) StdinPipe() (io.WriteCloser, error) {
	return ch.stdinW, nil
}

func (ch *fakeChannel) StdoutPipe() (io.Reader, error) {
	return ch.stdoutR, nil
}

func (ch *fakeChannel) StderrPipe() (io.Reader, error) {
	return ch.stderrR, nil
}

func (ch *fakeChannel) Wait() error {
	ch.mu.Lock()
	requested := len(ch.started) > 0 || ch.shellReq
	earlyErr := ch.waitErrBeforeStart
	ch.mu.Unlock()
	if earlyErr != nil && !requested {
		return earlyErr
	}
	<-ch.done
	return nil
}

func (ch *fakeChannel) Close() error {
	ch.closeOnce.Do(func() {
		_ = ch.stdoutW.Close()
		_ = ch.stderrW.Close()
		close(ch.done)
	})
	return nil
}

func (ch *fakeChannel) startedCommands() []string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return append([]string{}, ch.started...)
}

func (ch *fakeChannel) sentSignals() []ssh.Signal {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return append([]ssh.Signal{}, ch.signals...)
}

func (ch *fakeChannel) windowChanges() [][2]int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return append([][2]int{}, ch.resizes...)
}
