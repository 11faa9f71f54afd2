package session

import (
	"io"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/webosbrew/devman/pkg/logger"
)

// Stream identifiers for inbound data callbacks.
const (
	StreamStdout uint32 = 0
	StreamStderr uint32 = 1
)

// DataCallback receives inbound channel bytes, one call per chunk in arrival
// order, tagged with the stream the chunk arrived on.
type DataCallback func(stream uint32, data []byte)

type msgKind int

const (
	msgData msgKind = iota
	msgSignal
	msgEOF
	msgResize
)

// channelMsg is one queued outbound request for a spawned channel.
type channelMsg struct {
	kind   msgKind
	data   []byte
	signal ssh.Signal
	cols   int
	rows   int
}

// spawned is the capability set shared by Proc and Shell: exclusive access to
// the underlying channel, sender registration once the pump starts, inbound
// delivery, and the channel-kind-specific outbound send.
type spawned interface {
	// lockChannel yields the channel under the owner's lock; the returned
	// channel is nil once the pump has observed teardown.
	lockChannel() (Channel, func())
	txReady(tx *sendQueue)
	onRx(stream uint32, data []byte)
	sendMsg(ch Channel, msg channelMsg) error
	// detachChannel clears the channel slot; called exactly once, by the pump,
	// when the channel is known to be gone.
	detachChannel()
}

// startPump runs the background tasks bridging the spawned channel: one
// consumer draining the outbound queue in enqueue order and one reader per
// inbound stream. The teardown watcher is started separately with
// watchChannel once the channel request has been issued.
func startPump(sp spawned, ch Channel, stdout, stderr io.Reader, log *logger.Logger) *sendQueue {
	tx := newSendQueue()
	sp.txReady(tx)

	go pumpRx(sp, stdout, StreamStdout)
	go pumpRx(sp, stderr, StreamStderr)

	go func() {
		for {
			msg, ok := tx.pop()
			if !ok {
				return
			}
			locked, unlock := sp.lockChannel()
			if locked == nil {
				unlock()
				return
			}
			err := sp.sendMsg(locked, msg)
			unlock()
			if err != nil {
				log.Debugf("Outbound channel message failed: %v", err)
			}
		}
	}()

	return tx
}

// watchChannel blocks on the channel and routes its teardown into the pump:
// the channel slot clears and the queue is poisoned. Waiting on a channel
// whose exec or shell request has not been issued yet returns immediately,
// so the watcher must not start before the request succeeds.
func watchChannel(sp spawned, ch Channel, tx *sendQueue, log *logger.Logger) {
	go func() {
		if err := ch.Wait(); err != nil {
			log.Debugf("Channel finished: %v", err)
		}
		sp.detachChannel()
		tx.close()
	}()
}

func pumpRx(sp spawned, r io.Reader, stream uint32) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			sp.onRx(stream, data)
		}
		if err != nil {
			return
		}
	}
}

// sendQueue is the unbounded outbound message queue owned by a pump. A closed
// queue rejects further sends; the single consumer drains in FIFO order.
type sendQueue struct {
	mu     sync.Mutex
	items  []channelMsg
	closed bool
	wake   chan struct{}
}

func newSendQueue() *sendQueue {
	return &sendQueue{wake: make(chan struct{}, 1)}
}

// push enqueues a message; false means the pump has already stopped.
func (q *sendQueue) push(msg channelMsg) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()
	q.notify()
	return true
}

// pop blocks until a message is available or the queue is closed and drained.
func (q *sendQueue) pop() (channelMsg, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return msg, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return channelMsg{}, false
		}
		<-q.wake
	}
}

func (q *sendQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notify()
}

func (q *sendQueue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
