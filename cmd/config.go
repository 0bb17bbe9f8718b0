package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/shtdecode/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration after defaults, the config file and SHTDECODE_*
environment overrides have been applied. The output is a valid config file.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configFile)
		if err != nil {
			exitWithError("failed to load config", err)
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if err := runConfig(cfg, os.Stdout); err != nil {
			exitWithError("failed to print config", err)
		}
	},
}

func runConfig(cfg *config.Config, out io.Writer) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]*config.Config{"shtdecode": cfg}); err != nil {
		return fmt.Errorf("yaml encode: %w", err)
	}
	return enc.Close()
}
