package cli

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var decodeText bool

var decodeCmd = &cobra.Command{
	Use:   "decode <payload>",
	Short: "Decode a captured characteristic value with the configured codec",
	Long: `Decode a characteristic value captured elsewhere (for example with a
phone BLE explorer) and print the resulting packet. The payload is given as
hex bytes, or as literal text with --text.

Examples:
  weathercat decode 7b2274223a32312e352c...
  weathercat decode --text '{"t":21.5,"h":40.2,"name":"kitchen"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := []byte(args[0])
		if !decodeText {
			var err error
			raw, err = hex.DecodeString(strings.ReplaceAll(args[0], " ", ""))
			if err != nil {
				return fmt.Errorf("payload is not hex (use --text for literal input): %w", err)
			}
		}

		c, err := newCodec(cfg.Codec)
		if err != nil {
			return err
		}
		pkt, err := c.Decode(raw)
		if err != nil {
			return err
		}

		out := map[string]any{
			"t":    pkt.Temperature,
			"h":    pkt.Humidity,
			"name": pkt.Name,
		}
		if pkt.Timestamp != nil {
			out["ts"] = pkt.Timestamp.Unix()
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	decodeCmd.Flags().BoolVar(&decodeText, "text", false, "treat the payload as literal text instead of hex")
	rootCmd.AddCommand(decodeCmd)
}
