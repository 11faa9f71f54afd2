package cmd

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/webosbrew/devman/pkg/devices"
	"github.com/webosbrew/devman/pkg/logger"
	"github.com/webosbrew/devman/pkg/session"
)

var (
	cfgFile     string
	verboseMode bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "devman",
	Short: "devman manages webOS devices in developer mode",
	Long: `devman talks to webOS devices over SSH: it runs commands, opens
interactive shells and reports the developer-mode session state, using the
same device registry as the webOS CLI tools.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.devman.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verboseMode, "verbose", false, "Enable verbose output")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".devman")
	}

	viper.SetEnvPrefix("DEVMAN")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	logger.InitLoggerOutputs()
	if verboseMode {
		logger.GlobalLogLevel = "debug"
	}
}

var (
	managerOnce sync.Once
	manager     *session.SessionManager
)

// sessionManager returns the process-wide connection pool. Commands share it
// so repeated operations against the same device reuse one SSH connection.
func sessionManager() *session.SessionManager {
	managerOnce.Do(func() {
		var opts []session.Option
		if timeout := viper.GetDuration("connect_timeout"); timeout > 0 {
			opts = append(opts, session.WithConnectTimeout(timeout))
		}
		manager = session.NewSessionManager(opts...)
	})
	return manager
}

func deviceStore() (*devices.Store, error) {
	return devices.NewStore(viper.GetString("device_store"))
}

// targetDevice resolves a device name from the store, falling back to the
// default device when the name is empty.
func targetDevice(name string) (devices.Device, error) {
	store, err := deviceStore()
	if err != nil {
		return devices.Device{}, err
	}
	if name == "" {
		return store.Default()
	}
	return store.Find(name)
}
