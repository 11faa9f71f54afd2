package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var execCmd = &cobra.Command{
	Use:   "exec <device> <command> [args...]",
	Short: "Run a command on a device and print its output",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		device, err := targetDevice(args[0])
		if err != nil {
			return err
		}

		// Piped input is forwarded to the remote command's stdin.
		var stdin []byte
		if stat, statErr := os.Stdin.Stat(); statErr == nil && stat.Mode()&os.ModeCharDevice == 0 {
			data, readErr := io.ReadAll(os.Stdin)
			if readErr != nil {
				return fmt.Errorf("failed to read stdin: %w", readErr)
			}
			stdin = data
		}

		mgr := sessionManager()
		defer mgr.Close()

		out, err := mgr.Exec(device, strings.Join(args[1:], " "), stdin)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(execCmd)
}
