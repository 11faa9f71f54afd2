package session

import (
	"io"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/webosbrew/devman/pkg/logger"
)

// Proc is a long-lived background process on a device. Inbound output is
// delivered through the registered callback; outbound data, signals and EOF
// go through the channel pump.
type Proc struct {
	Command string

	log *logger.Logger

	chMu  sync.Mutex
	ch    Channel
	stdin io.WriteCloser

	txMu sync.Mutex
	tx   *sendQueue

	cbMu sync.Mutex
	cb   DataCallback

	done      chan struct{}
	doneOnce  sync.Once
	watchOnce sync.Once
}

// Start sends the exec request for the configured command. A rejected request
// is a negative reply; the process is running once Start returns nil. The
// channel teardown watcher begins here, once the request is in flight.
func (p *Proc) Start() error {
	ch, unlock := p.lockChannel()
	defer unlock()
	if ch == nil {
		return errDisconnected()
	}
	if err := ch.Start(p.Command); err != nil {
		return NewError(ErrNegativeReply, "device rejected command", err)
	}
	p.watchOnce.Do(func() {
		watchChannel(p, ch, p.sender(), p.log)
	})
	return nil
}

// Done is closed when the underlying channel is gone and the process can no
// longer carry traffic.
func (p *Proc) Done() <-chan struct{} {
	return p.done
}

// Signal delivers a signal to the remote process followed by end-of-stream.
func (p *Proc) Signal(sig ssh.Signal) error {
	tx := p.sender()
	if tx == nil {
		p.log.Infof("Failed to send signal %s: disconnected", sig)
		return errDisconnected()
	}
	if !tx.push(channelMsg{kind: msgSignal, signal: sig}) {
		return errDisconnected()
	}
	if !tx.push(channelMsg{kind: msgEOF}) {
		return errDisconnected()
	}
	return nil
}

// Data enqueues bytes for the remote process's stdin.
func (p *Proc) Data(data []byte) error {
	tx := p.sender()
	if tx == nil {
		p.log.Infof("Failed to send %d bytes: disconnected", len(data))
		return errDisconnected()
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	if !tx.push(channelMsg{kind: msgData, data: buf}) {
		return errDisconnected()
	}
	return nil
}

// OnData registers the inbound data callback.
func (p *Proc) OnData(cb DataCallback) {
	p.cbMu.Lock()
	p.cb = cb
	p.cbMu.Unlock()
}

func (p *Proc) sender() *sendQueue {
	p.txMu.Lock()
	defer p.txMu.Unlock()
	return p.tx
}

func (p *Proc) lockChannel() (Channel, func()) {
	p.chMu.Lock()
	return p.ch, p.chMu.Unlock
}

func (p *Proc) txReady(tx *sendQueue) {
	p.txMu.Lock()
	p.tx = tx
	p.txMu.Unlock()
}

func (p *Proc) onRx(stream uint32, data []byte) {
	p.cbMu.Lock()
	cb := p.cb
	p.cbMu.Unlock()
	if cb != nil {
		cb(stream, data)
	}
}

func (p *Proc) sendMsg(ch Channel, msg channelMsg) error {
	switch msg.kind {
	case msgData:
		_, err := p.stdin.Write(msg.data)
		return err
	case msgEOF:
		return p.stdin.Close()
	case msgSignal:
		return ch.Signal(msg.signal)
	default:
		return NewError(ErrIO, "unsupported outbound message for proc", nil)
	}
}

func (p *Proc) detachChannel() {
	p.chMu.Lock()
	p.ch = nil
	p.chMu.Unlock()
	p.doneOnce.Do(func() { close(p.done) })
}
