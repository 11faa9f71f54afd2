package session

import (
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webosbrew/devman/pkg/logger"
)

// ShellToken is the opaque handle for a registered shell. Tokens are never
// reused.
type ShellToken string

func newShellToken() ShellToken {
	return ShellToken(uuid.NewString())
}

// ShellInfo is a read-only projection of a shell for listing.
type ShellInfo struct {
	Token     ShellToken `json:"token"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Shell is an interactive pseudo-terminal on a device, registered with the
// session manager under its token.
type Shell struct {
	token     ShellToken
	createdAt time.Time
	connID    uuid.UUID

	log *logger.Logger

	chMu  sync.Mutex
	ch    Channel
	stdin io.WriteCloser

	txMu sync.Mutex
	tx   *sendQueue

	cbMu sync.Mutex
	cb   DataCallback

	sizeMu sync.Mutex
	cols   int
	rows   int

	done     chan struct{}
	doneOnce sync.Once
}

func (s *Shell) Token() ShellToken {
	return s.token
}

func (s *Shell) CreatedAt() time.Time {
	return s.createdAt
}

func (s *Shell) Info() ShellInfo {
	return ShellInfo{Token: s.token, CreatedAt: s.createdAt}
}

// Done is closed when the underlying channel is gone and the shell can no
// longer carry traffic.
func (s *Shell) Done() <-chan struct{} {
	return s.done
}

// Size returns the current pty dimensions.
func (s *Shell) Size() (cols, rows int) {
	s.sizeMu.Lock()
	defer s.sizeMu.Unlock()
	return s.cols, s.rows
}

// Write enqueues keyboard input for the remote terminal.
func (s *Shell) Write(data []byte) error {
	tx := s.sender()
	if tx == nil {
		return errDisconnected()
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	if !tx.push(channelMsg{kind: msgData, data: buf}) {
		return errDisconnected()
	}
	return nil
}

// Resize requests a remote pty window change.
func (s *Shell) Resize(cols, rows int) error {
	tx := s.sender()
	if tx == nil {
		return errDisconnected()
	}
	if !tx.push(channelMsg{kind: msgResize, cols: cols, rows: rows}) {
		return errDisconnected()
	}
	s.sizeMu.Lock()
	s.cols, s.rows = cols, rows
	s.sizeMu.Unlock()
	return nil
}

// OnData registers the inbound data callback.
func (s *Shell) OnData(cb DataCallback) {
	s.cbMu.Lock()
	s.cb = cb
	s.cbMu.Unlock()
}

// Close tears down the underlying channel. Registry removal happens at the
// session manager; Close itself is best-effort.
func (s *Shell) Close() error {
	ch, unlock := s.lockChannel()
	defer unlock()
	if ch == nil {
		return nil
	}
	return ch.Close()
}

func (s *Shell) sender() *sendQueue {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.tx
}

func (s *Shell) lockChannel() (Channel, func()) {
	s.chMu.Lock()
	return s.ch, s.chMu.Unlock
}

func (s *Shell) txReady(tx *sendQueue) {
	s.txMu.Lock()
	s.tx = tx
	s.txMu.Unlock()
}

func (s *Shell) onRx(stream uint32, data []byte) {
	s.cbMu.Lock()
	cb := s.cb
	s.cbMu.Unlock()
	if cb != nil {
		cb(stream, data)
	}
}

func (s *Shell) sendMsg(ch Channel, msg channelMsg) error {
	switch msg.kind {
	case msgData:
		_, err := s.stdin.Write(msg.data)
		return err
	case msgEOF:
		return s.stdin.Close()
	case msgResize:
		return ch.WindowChange(msg.rows, msg.cols)
	case msgSignal:
		return ch.Signal(msg.signal)
	default:
		return NewError(ErrIO, "unsupported outbound message for shell", nil)
	}
}

func (s *Shell) detachChannel() {
	s.chMu.Lock()
	s.ch = nil
	s.chMu.Unlock()
	s.doneOnce.Do(func() { close(s.done) })
}
