package session

import (
	"io"

	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/ssh"
)

// MockDialer is a mock implementation of Dialer.
type MockDialer struct {
	mock.Mock
}

func (m *MockDialer) Dial(network, addr string, config *ssh.ClientConfig) (Client, error) {
	args := m.Called(network, addr, config)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Client), args.Error(1)
}

// MockClient is a mock implementation of Client.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) NewChannel() (Channel, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Channel), args.Error(1)
}

func (m *MockClient) ReadFile(path string) ([]byte, error) {
	args := m.Called(path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockClient) Wait() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockChannel is a mock implementation of Channel.
type MockChannel struct {
	mock.Mock
}

func (m *MockChannel) Start(command string) error {
	args := m.Called(command)
	return args.Error(0)
}

func (m *MockChannel) Shell() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockChannel) RequestPty(term string, rows, cols int, modes ssh.TerminalModes) error {
	args := m.Called(term, rows, cols, modes)
	return args.Error(0)
}

func (m *MockChannel) WindowChange(rows, cols int) error {
	args := m.Called(rows, cols)
	return args.Error(0)
}

func (m *MockChannel) Signal(sig ssh.Signal) error {
	args := m.Called(sig)
	return args.Error(0)
}

func (m *MockChannel) StdinPipe() (io.WriteCloser, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.WriteCloser), args.Error(1)
}

func (m *MockChannel) StdoutPipe() (io.Reader, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.Reader), args.Error(1)
}

func (m *MockChannel) StderrPipe() (io.Reader, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.Reader), args.Error(1)
}

func (m *MockChannel) Wait() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockChannel) Close() error {
	args := m.Called()
	return args.Error(0)
}
