package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/weathercat-logger/internal/ble"
)

var scanWindow time.Duration

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List nearby BLE advertisers",
	Long: `Scan for the given window and list every advertiser seen. Devices whose
name matches the configured device_name are marked with "*".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		devices, err := ble.ScanForDevices(ctx, ble.NewTinyGoAdapter(), scanWindow)
		if err != nil {
			return err
		}
		printDevices(cmd.OutOrStdout(), devices, cfg.BLE.DeviceName)
		return nil
	},
}

func init() {
	scanCmd.Flags().DurationVarP(&scanWindow, "window", "w", 5*time.Second, "how long to scan")
	rootCmd.AddCommand(scanCmd)
}

func printDevices(w io.Writer, devices []ble.Device, target string) {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices found")
		return
	}
	match, _ := ble.FindTarget(devices, target)
	for _, d := range devices {
		mark := " "
		if d.Address == match.Address {
			mark = "*"
		}
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(w, "%s %-20s %-36s %4d dBm\n", mark, name, d.Address, d.RSSI)
	}
}
