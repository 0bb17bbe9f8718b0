// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/shtdecode/internal/config"
	"firestige.xyz/shtdecode/internal/log"
)

var (
	// Global flags
	configFile string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "shtdecode",
	Short: "shtdecode - I2C transaction decoder for SHTC3 humidity/temperature sensors",
	Long: `shtdecode turns a captured I2C bus event stream into one annotation per
transaction addressed to an SHT-family sensor (default address 0x70).

Inputs:
  - Saleae Logic 2 I2C analyzer CSV export
  - pcap with link type LINKTYPE_I2C_LINUX (209)
  - a built-in bus simulator driving the SHTC3 driver

Outputs: console (text/json), file (jsonl/cbor, optional zstd), Kafka.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults only when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override log level (trace/debug/info/warn/error)")

	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(crcCmd)
}

// loadConfig reads the config file, applies the global flag overrides and
// initializes logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := log.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return cfg, nil
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
