package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/webosbrew/devman/pkg/devices"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List registered devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := deviceStore()
		if err != nil {
			return err
		}
		list, err := store.List()
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No devices registered. Use 'devman devices add' to register one.")
			return nil
		}
		def, err := store.Default()
		if err != nil {
			return err
		}
		fmt.Printf("%-16s %-24s %-12s %s\n", "NAME", "ADDRESS", "USERNAME", "DEFAULT")
		for _, d := range list {
			mark := ""
			if d.Name == def.Name {
				mark = "*"
			}
			fmt.Printf("%-16s %-24s %-12s %s\n", d.Name, d.Addr(), d.Username, mark)
		}
		return nil
	},
}

var (
	addHost       string
	addPort       int
	addUsername   string
	addPassword   string
	addPrivateKey string
	addPassphrase string
	addDefault    bool
)

var devicesAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a device or replace an existing one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := deviceStore()
		if err != nil {
			return err
		}
		device := devices.Device{
			Name:       args[0],
			Host:       addHost,
			Port:       addPort,
			Username:   addUsername,
			Password:   addPassword,
			PrivateKey: addPrivateKey,
			Passphrase: addPassphrase,
			Default:    addDefault,
		}
		if err := store.Add(device); err != nil {
			return err
		}
		fmt.Printf("Registered device %s (%s)\n", device.Name, device.Addr())
		return nil
	},
}

var devicesRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a registered device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := deviceStore()
		if err != nil {
			return err
		}
		if err := store.Remove(args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed device %s\n", args[0])
		return nil
	},
}

func init() {
	devicesAddCmd.Flags().StringVar(&addHost, "host", "", "device host or IP address")
	devicesAddCmd.Flags().IntVar(&addPort, "port", 9922, "SSH port")
	devicesAddCmd.Flags().StringVar(&addUsername, "username", "prisoner", "SSH username")
	devicesAddCmd.Flags().StringVar(&addPassword, "password", "", "SSH password")
	devicesAddCmd.Flags().StringVar(&addPrivateKey, "key", "", "private key: inline PEM, absolute path, or file under ~/.ssh")
	devicesAddCmd.Flags().StringVar(&addPassphrase, "passphrase", "", "private key passphrase")
	devicesAddCmd.Flags().BoolVar(&addDefault, "default", false, "mark as the default device")
	_ = devicesAddCmd.MarkFlagRequired("host")

	devicesCmd.AddCommand(devicesAddCmd)
	devicesCmd.AddCommand(devicesRemoveCmd)
	rootCmd.AddCommand(devicesCmd)
}
