package session

import (
	"fmt"
	"io"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

type clientWrapper struct {
	*ssh.Client
}

func (w *clientWrapper) NewChannel() (Channel, error) {
	sess, err := w.Client.NewSession()
	if err != nil {
		return nil, err
	}
	return &channelWrapper{Session: sess}, nil
}

// ReadFile fetches a remote file over a short-lived SFTP subsystem channel.
func (w *clientWrapper) ReadFile(path string) ([]byte, error) {
	client, err := sftp.NewClient(w.Client)
	if err != nil {
		return nil, fmt.Errorf("failed to open sftp channel: %w", err)
	}
	defer client.Close()

	file, err := client.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

type channelWrapper struct {
	*ssh.Session
}

func (w *channelWrapper) RequestPty(term string, rows, cols int, modes ssh.TerminalModes) error {
	return w.Session.RequestPty(term, rows, cols, modes)
}

func (w *channelWrapper) WindowChange(rows, cols int) error {
	return w.Session.WindowChange(rows, cols)
}

func (w *channelWrapper) StdoutPipe() (io.Reader, error) {
	return w.Session.StdoutPipe()
}

func (w *channelWrapper) StderrPipe() (io.Reader, error) {
	return w.Session.StderrPipe()
}
