package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/webosbrew/devman/pkg/devmode"
)

var devmodeCmd = &cobra.Command{
	Use:   "devmode [device]",
	Short: "Report the developer-mode session state of a device",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) > 0 {
			name = args[0]
		}
		device, err := targetDevice(name)
		if err != nil {
			return err
		}

		mgr := sessionManager()
		defer mgr.Close()

		status, err := devmode.New(mgr).Status(device)
		if err != nil {
			return err
		}
		if status.Token == "" {
			fmt.Printf("Developer mode is not enabled on %s\n", device.Name)
			return nil
		}
		fmt.Printf("Session token: %s\n", status.Token)
		if status.Remaining != "" {
			fmt.Printf("Remaining time: %s\n", status.Remaining)
		} else {
			fmt.Println("Remaining time: unknown (session check failed)")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devmodeCmd)
}
