package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/shtdecode/internal/core/decoder"
)

var crcCmd = &cobra.Command{
	Use:   "crc <hex>...",
	Short: "Compute the SHT CRC-8 of a byte sequence",
	Long: `Compute the Sensirion CRC-8 (polynomial 0x31, init 0xFF) of the given
bytes. Bytes may be split across arguments and may carry a 0x prefix.

With --check the input must be one 3-byte word (two data bytes and a CRC),
and the command reports whether the CRC matches.

Examples:
  shtdecode crc beef        # 0x92
  shtdecode crc 0x08 0x87
  shtdecode crc --check 08875b`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runCRC(args, crcCheck, os.Stdout); err != nil {
			exitWithError("crc", err)
		}
	},
}

var crcCheck bool

func init() {
	crcCmd.Flags().BoolVar(&crcCheck, "check", false, "verify a 3-byte word instead of computing")
}

func parseHexArgs(args []string) ([]byte, error) {
	var sb strings.Builder
	for _, a := range args {
		for _, field := range strings.FieldsFunc(a, func(r rune) bool { return r == ',' || r == ':' || r == ' ' }) {
			field = strings.TrimPrefix(strings.TrimPrefix(field, "0x"), "0X")
			if len(field)%2 == 1 {
				field = "0" + field
			}
			sb.WriteString(field)
		}
	}
	data, err := hex.DecodeString(sb.String())
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no bytes given")
	}
	return data, nil
}

func runCRC(args []string, check bool, out io.Writer) error {
	data, err := parseHexArgs(args)
	if err != nil {
		return err
	}

	if !check {
		fmt.Fprintf(out, "0x%02x\n", decoder.CRC8(data))
		return nil
	}

	if len(data) != 3 {
		return fmt.Errorf("--check needs exactly 3 bytes, got %d", len(data))
	}
	if decoder.CheckCRC(data) {
		fmt.Fprintf(out, "ok: 0x%02x\n", data[2])
		return nil
	}
	return fmt.Errorf("crc mismatch: got 0x%02x, want 0x%02x", data[2], decoder.CRC8(data[:2]))
}
