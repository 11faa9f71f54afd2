package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/webosbrew/devman/pkg/logger"
	"github.com/webosbrew/devman/pkg/session"
)

var shellCmd = &cobra.Command{
	Use:   "shell [device]",
	Short: "Open an interactive shell on a device",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	device, err := targetDevice(name)
	if err != nil {
		return err
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return fmt.Errorf("shell requires an interactive terminal")
	}
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		return fmt.Errorf("failed to query terminal size: %w", err)
	}

	mgr := sessionManager()
	defer mgr.Close()

	sh, err := mgr.ShellOpen(device, cols, rows)
	if err != nil {
		return err
	}
	defer func() { _ = mgr.ShellClose(sh.Token()) }()

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("failed to enter raw mode: %w", err)
	}
	defer func() { _ = term.Restore(fd, oldState) }()

	sh.OnData(func(stream uint32, data []byte) {
		out := os.Stdout
		if stream == session.StreamStderr {
			out = os.Stderr
		}
		_, _ = out.Write(data)
	})

	log := logger.Get()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for range winch {
			newCols, newRows, sizeErr := term.GetSize(fd)
			if sizeErr != nil {
				continue
			}
			if resizeErr := sh.Resize(newCols, newRows); resizeErr != nil {
				log.Debugf("Resize after window change failed: %v", resizeErr)
				return
			}
		}
	}()

	// Keyboard input runs until the local terminal closes or the remote
	// shell goes away.
	inputErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 1024)
		for {
			n, readErr := os.Stdin.Read(buf)
			if n > 0 {
				if writeErr := sh.Write(buf[:n]); writeErr != nil {
					inputErr <- writeErr
					return
				}
			}
			if readErr != nil {
				inputErr <- readErr
				return
			}
		}
	}()

	select {
	case <-sh.Done():
		return nil
	case err := <-inputErr:
		if session.IsKind(err, session.ErrDisconnected) {
			return nil
		}
		return err
	}
}
