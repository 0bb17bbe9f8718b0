package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/shtdecode/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without decoding anything.

This is useful for pre-checking configuration before deploying it.

Examples:
  shtdecode validate -f shtdecode.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(validateConfigFile, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
	},
}

var validateConfigFile string

func init() {
	validateCmd.Flags().StringVarP(&validateConfigFile, "file", "f", "",
		"configuration file to validate (required)")
	validateCmd.MarkFlagRequired("file")
}

func runValidate(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "VALID: address %#x, source %s (%s), %d sink(s)\n",
		cfg.Decoder.Address,
		cfg.Source.Path,
		cfg.Source.Format,
		len(cfg.Sinks),
	)
	for i, s := range cfg.Sinks {
		fmt.Fprintf(out, "  sinks[%d]: %s\n", i, describeSink(s))
	}
	return nil
}

func describeSink(s config.SinkConfig) string {
	switch s.Type {
	case "file":
		return fmt.Sprintf("file %s (%s, compression %s)", s.Path, s.Format, s.Compression)
	case "kafka":
		return fmt.Sprintf("kafka topic %s on %v (compression %s)", s.Topic, s.Brokers, s.Compression)
	default:
		return fmt.Sprintf("%s (%s)", s.Type, s.Format)
	}
}
