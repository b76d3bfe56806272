package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chaz8081/weathercat-logger/internal/ble"
	"github.com/chaz8081/weathercat-logger/internal/codec"
	codeccrypto "github.com/chaz8081/weathercat-logger/internal/codec/crypto"
	"github.com/chaz8081/weathercat-logger/internal/config"
	"github.com/chaz8081/weathercat-logger/internal/ledger"
)

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Run one read session and append the reading to the ledger",
	Args:  cobra.NoArgs,
	RunE:  runRead,
}

func init() {
	rootCmd.AddCommand(readCmd)
}

func runRead(cmd *cobra.Command, _ []string) error {
	printBanner(cmd.OutOrStdout(), cfg)

	c, err := newCodec(cfg.Codec)
	if err != nil {
		return err
	}
	store := ledger.Open(cfg.Store.Path)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := ble.NewSession(ble.NewTinyGoAdapter(), c, store, sessionOptions(cfg.BLE))
	rec, err := session.Run(ctx)
	if err != nil {
		slog.Error("[SESSION] failed", "error", err)
		return err
	}

	slog.Info("[SESSION] persisted reading", "path", store.Path(), "name", rec.Name)
	fmt.Fprintln(cmd.OutOrStdout(), rec)
	return nil
}

// newCodec builds the codec for the configured mode, loading the private
// key when the encrypted mode is selected.
func newCodec(cc config.CodecConfig) (*codec.Codec, error) {
	mode, err := codec.ParseMode(cc.Mode)
	if err != nil {
		return nil, err
	}
	if mode != codec.ModeEncrypted {
		return codec.New(mode, nil)
	}

	key, err := codeccrypto.LoadPrivateKey(cc.PrivateKeyPath, cc.Passphrase())
	if err != nil {
		return nil, err
	}
	slog.Debug("[CODEC] loaded private key", "path", cc.PrivateKeyPath, "bits", key.N.BitLen())
	return codec.New(mode, key)
}

func sessionOptions(bc config.BLEConfig) ble.SessionOptions {
	return ble.SessionOptions{
		DeviceName:         bc.DeviceName,
		CharacteristicUUID: bc.CharacteristicUUID,
		ScanSettle:         bc.ScanSettle,
		ReadSettle:         bc.ReadSettle,
		ScanAttempts:       bc.ScanAttempts,
		ScanTimeout:        bc.ScanTimeout,
		BackoffInitial:     bc.BackoffInitial,
		BackoffMax:         bc.BackoffMax,
		ConnectTimeout:     bc.ConnectTimeout,
	}
}

// printBanner displays the startup configuration summary.
func printBanner(w io.Writer, cfg *config.Config) {
	attempts := "unbounded"
	if cfg.BLE.ScanAttempts > 0 {
		attempts = fmt.Sprint(cfg.BLE.ScanAttempts)
	}
	fmt.Fprintln(w, "=== weathercat ===")
	fmt.Fprintf(w, "  Device:  *%s*\n", cfg.BLE.DeviceName)
	fmt.Fprintf(w, "  Char:    %s\n", cfg.BLE.CharacteristicUUID)
	fmt.Fprintf(w, "  Scan:    %s attempts, timeout %s\n", attempts, cfg.BLE.ScanTimeout)
	fmt.Fprintf(w, "  Codec:   %s\n", cfg.Codec.Mode)
	fmt.Fprintf(w, "  Ledger:  %s\n", cfg.Store.Path)
	fmt.Fprintln(w, "==================")
}
