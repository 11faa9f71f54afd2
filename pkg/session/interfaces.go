package session

import (
	"io"

	"golang.org/x/crypto/ssh"
)

// Dialer establishes authenticated SSH transports. The production
// implementation wraps ssh.Dial; tests substitute their own.
type Dialer interface {
	Dial(network, addr string, config *ssh.ClientConfig) (Client, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(network, addr string, config *ssh.ClientConfig) (Client, error)

func (f DialerFunc) Dial(network, addr string, config *ssh.ClientConfig) (Client, error) {
	return f(network, addr, config)
}

// Client is one authenticated SSH transport. Wait blocks until the transport
// fails or closes; its return is the signal that the connection is gone.
type Client interface {
	NewChannel() (Channel, error)
	ReadFile(path string) ([]byte, error)
	Wait() error
	Close() error
}

// Channel is a single logical duplex stream multiplexed over a Client,
// used for command execution or an interactive shell.
type Channel interface {
	Start(command string) error
	Shell() error
	RequestPty(term string, rows, cols int, modes ssh.TerminalModes) error
	WindowChange(rows, cols int) error
	Signal(sig ssh.Signal) error
	StdinPipe() (io.WriteCloser, error)
	StdoutPipe() (io.Reader, error)
	StderrPipe() (io.Reader, error)
	Wait() error
	Close() error
}
