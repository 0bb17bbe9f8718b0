package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/shtdecode/internal/config"
	"firestige.xyz/shtdecode/internal/core/decoder"
	"firestige.xyz/shtdecode/internal/metrics"
	"firestige.xyz/shtdecode/internal/pipeline"
	"firestige.xyz/shtdecode/internal/sink"
	"firestige.xyz/shtdecode/internal/sink/console"
	"firestige.xyz/shtdecode/internal/source"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "Decode a captured I2C event stream",
	Long: `Decode a Saleae Logic 2 CSV export or an I2C pcap capture into SHT
sensor annotations. Reads stdin when no file (or "-") is given.

Examples:
  shtdecode decode capture.csv
  shtdecode decode --format pcap --output json < bus.pcap
  shtdecode decode -c shtdecode.yml --metrics-textfile /var/lib/node_exporter/sht.prom bus.pcap`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			exitWithError("failed to load config", err)
		}
		if err := applyDecodeFlags(cmd, cfg, args); err != nil {
			exitWithError("invalid arguments", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if _, err := runDecode(ctx, cfg, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			exitWithError("decode failed", err)
		}
	},
}

var (
	decodeFormat   string
	decodeAddress  uint16
	decodeOutput   string
	decodeTextfile string
)

func init() {
	decodeCmd.Flags().StringVar(&decodeFormat, "format", "", "input format: auto, csv or pcap")
	decodeCmd.Flags().Uint16VarP(&decodeAddress, "address", "a", decoder.DefaultAddress, "target device address")
	decodeCmd.Flags().StringVarP(&decodeOutput, "output", "o", "", "console output format: text or json (replaces configured sinks)")
	decodeCmd.Flags().StringVar(&decodeTextfile, "metrics-textfile", "", "write Prometheus metrics to this file when done")
}

// applyDecodeFlags applies explicitly set flags over the loaded config.
func applyDecodeFlags(cmd *cobra.Command, cfg *config.Config, args []string) error {
	if len(args) == 1 {
		cfg.Source.Path = args[0]
	}
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Source.Format = decodeFormat
	}
	if flags.Changed("address") {
		cfg.Decoder.Address = decodeAddress
	}
	if flags.Changed("output") {
		cfg.Sinks = []config.SinkConfig{{Type: console.Name, Format: decodeOutput}}
	}
	if flags.Changed("metrics-textfile") {
		cfg.Metrics.Textfile = decodeTextfile
	}
	return cfg.ValidateAndApplyDefaults()
}

func runDecode(ctx context.Context, cfg *config.Config, out io.Writer) (pipeline.Stats, error) {
	src, err := source.Open(cfg.Source)
	if err != nil {
		return pipeline.Stats{}, err
	}
	return runPipeline(ctx, cfg, src, out)
}

// runPipeline decodes src into the configured sinks. Console sinks write to out.
func runPipeline(ctx context.Context, cfg *config.Config, src source.Source, out io.Writer) (pipeline.Stats, error) {
	sinks, err := sink.NewAll(cfg.Sinks, out)
	if err != nil {
		src.Close()
		return pipeline.Stats{}, err
	}

	b := pipeline.NewBuilder().
		WithSource(src).
		WithDecoder(decoder.New(decoder.Config{Address: cfg.Decoder.Address})).
		WithSinks(sinks...).
		WithBufferSize(cfg.Source.Buffer)
	if cfg.Metrics.Textfile != "" {
		b = b.WithMetrics(metrics.New(true), cfg.Metrics.Textfile)
	}
	return b.Build().Run(ctx)
}
