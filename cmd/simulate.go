package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/shtdecode/internal/config"
	"firestige.xyz/shtdecode/internal/pipeline"
	"firestige.xyz/shtdecode/internal/sim"
	"firestige.xyz/shtdecode/internal/sink/console"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate an SHTC3 on an I2C bus and decode the traffic",
	Long: `Run the SHTC3 driver against a simulated bus and sensor, then feed the
recorded bus events through the decoder.

The run reads the ID register once, then performs the configured number of
wake-up / measure / sleep cycles. The traffic can be saved as a pcap
(LINKTYPE_I2C_LINUX) for later use with "shtdecode decode".

Examples:
  shtdecode simulate
  shtdecode simulate --cycles 10 --humidity 60 --temperature 18.25
  shtdecode simulate --pcap-out sht.pcap --output json`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			exitWithError("failed to load config", err)
		}
		if err := applySimulateFlags(cmd, cfg); err != nil {
			exitWithError("invalid arguments", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if _, err := runSimulate(ctx, cfg, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			exitWithError("simulation failed", err)
		}
	},
}

var (
	simCycles      int
	simHumidity    float64
	simTemperature float64
	simPcapOut     string
	simOutput      string
)

func init() {
	simulateCmd.Flags().IntVarP(&simCycles, "cycles", "n", 3, "number of measurement cycles")
	simulateCmd.Flags().Float64Var(&simHumidity, "humidity", 45.0, "simulated relative humidity (%)")
	simulateCmd.Flags().Float64Var(&simTemperature, "temperature", 23.5, "simulated temperature (°C)")
	simulateCmd.Flags().StringVar(&simPcapOut, "pcap-out", "", "also write the bus traffic to this pcap file")
	simulateCmd.Flags().StringVarP(&simOutput, "output", "o", "", "console output format: text or json (replaces configured sinks)")
}

func applySimulateFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("cycles") {
		cfg.Sim.Cycles = simCycles
	}
	if flags.Changed("humidity") {
		cfg.Sim.HumidityRH = simHumidity
	}
	if flags.Changed("temperature") {
		cfg.Sim.TemperatureC = simTemperature
	}
	if flags.Changed("pcap-out") {
		cfg.Sim.PcapOut = simPcapOut
	}
	if flags.Changed("output") {
		cfg.Sinks = []config.SinkConfig{{Type: console.Name, Format: simOutput}}
	}
	return cfg.ValidateAndApplyDefaults()
}

func runSimulate(ctx context.Context, cfg *config.Config, out io.Writer) (pipeline.Stats, error) {
	simCfg := sim.Config{
		Cycles:       cfg.Sim.Cycles,
		BusHz:        cfg.Sim.BusHz,
		HumidityRH:   cfg.Sim.HumidityRH,
		TemperatureC: cfg.Sim.TemperatureC,
		ChipID:       cfg.Sim.ChipID,
	}

	if cfg.Sim.PcapOut != "" {
		f, err := os.Create(cfg.Sim.PcapOut)
		if err != nil {
			return pipeline.Stats{}, fmt.Errorf("failed to create pcap: %w", err)
		}
		defer f.Close()
		simCfg.Pcap = f
	}

	res, err := sim.Run(ctx, simCfg)
	if err != nil {
		return pipeline.Stats{}, err
	}
	return runPipeline(ctx, cfg, sim.NewSource(res.Events), out)
}
