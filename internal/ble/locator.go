package ble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// FindTarget returns the first device whose advertised name contains
// substring (case-sensitive). A miss is reported through ok and is not an
// error: the caller is expected to scan again.
func FindTarget(devices []Device, substring string) (dev Device, ok bool) {
	for _, d := range devices {
		slog.Debug("[BLE] advertiser", "name", d.Name, "address", d.Address, "rssi", d.RSSI)
		if d.Name == "" || substring == "" {
			continue
		}
		if strings.Contains(d.Name, substring) {
			return d, true
		}
	}
	return Device{}, false
}

// ScanForDevices scans for window and returns every advertiser seen.
func ScanForDevices(ctx context.Context, adapter Adapter, window time.Duration) ([]Device, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}
	if err := adapter.StartScan(); err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	defer func() { _ = adapter.StopScan() }()

	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()
	<-ctx.Done()

	return adapter.Peripherals(), nil
}
