package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"tinygo.org/x/bluetooth"
)

// maxAttributeLen is the largest value an ATT read can return.
const maxAttributeLen = 512

// TinyGoAdapter implements Adapter on tinygo-org/bluetooth using the
// first (default) adapter of the host.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects everything below.
	mu       sync.Mutex
	scanning bool
	order    []string
	seen     map[string]*seenDevice // keyed by address string
}

type seenDevice struct {
	dev  Device
	addr bluetooth.Address
}

// NewTinyGoAdapter creates a new BLE adapter on the default host adapter.
func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{
		adapter: bluetooth.DefaultAdapter,
		seen:    make(map[string]*seenDevice),
	}
}

func (a *TinyGoAdapter) Enable() error {
	return a.adapter.Enable()
}

func (a *TinyGoAdapter) StartScan() error {
	a.mu.Lock()
	if a.scanning {
		a.mu.Unlock()
		return nil
	}
	a.scanning = true
	a.mu.Unlock()

	// adapter.Scan blocks until StopScan is called.
	go func() {
		err := a.adapter.Scan(a.onScanResult)
		a.mu.Lock()
		a.scanning = false
		a.mu.Unlock()
		if err != nil {
			slog.Warn("[BLE] scan ended with error", "error", err)
		}
	}()
	return nil
}

func (a *TinyGoAdapter) onScanResult(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
	a.record(result.Address, result.Address.String(), result.LocalName(), int(result.RSSI))
}

// record adds or refreshes a device keyed by its address string.
func (a *TinyGoAdapter) record(addr bluetooth.Address, key, name string, rssi int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if d, ok := a.seen[key]; ok {
		// Names often arrive in the scan response rather than the
		// first advertisement.
		if name != "" {
			d.dev.Name = name
		}
		d.dev.RSSI = rssi
		return
	}
	a.seen[key] = &seenDevice{
		dev:  Device{Name: name, Address: key, RSSI: rssi},
		addr: addr,
	}
	a.order = append(a.order, key)
}

func (a *TinyGoAdapter) StopScan() error {
	a.mu.Lock()
	scanning := a.scanning
	a.mu.Unlock()
	if !scanning {
		return nil
	}
	return a.adapter.StopScan()
}

func (a *TinyGoAdapter) Peripherals() []Device {
	a.mu.Lock()
	defer a.mu.Unlock()
	devices := make([]Device, 0, len(a.order))
	for _, key := range a.order {
		devices = append(devices, a.seen[key].dev)
	}
	return devices
}

func (a *TinyGoAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	a.mu.Lock()
	d, ok := a.seen[address]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("ble: connect to %s: device was not seen while scanning", address)
	}

	// tinygo/bluetooth's Connect blocks internally with its own timeout.
	// We wrap it to also respect our ctx cancellation.
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(d.addr, bluetooth.ConnectionParams{})
		if err != nil {
			ch <- connectResult{err: err}
			return
		}
		ch <- connectResult{conn: &tinyGoConnection{device: &device}}
	}()
	return awaitConnection(ctx, address, ch)
}

type connectResult struct {
	conn Connection
	err  error
}

// awaitConnection waits for a pending connect. If ctx ends first, a late
// successful connection is disconnected once it arrives.
func awaitConnection(ctx context.Context, address string, ch <-chan connectResult) (Connection, error) {
	select {
	case <-ctx.Done():
		go func() {
			result := <-ch
			if result.err != nil {
				return
			}
			slog.Debug("[BLE] dropping late connection", "address", address)
			if err := result.conn.Disconnect(); err != nil {
				slog.Warn("[BLE] disconnect of late connection failed", "address", address, "error", err)
			}
		}()
		return nil, fmt.Errorf("ble: connect to %s: %w", address, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", address, result.err)
		}
		return result.conn, nil
	}
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

type tinyGoConnection struct {
	device *bluetooth.Device
}

func (c *tinyGoConnection) DiscoverCharacteristics() ([]Characteristic, error) {
	svcs, err := c.device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}

	var chars []Characteristic
	for _, svc := range svcs {
		found, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("ble: discover characteristics of %s: %w", svc.UUID().String(), err)
		}
		for i := range found {
			chars = append(chars, &tinyGoCharacteristic{char: found[i]})
		}
	}
	return chars, nil
}

func (c *tinyGoConnection) Disconnect() error {
	return c.device.Disconnect()
}

type tinyGoCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

func (c *tinyGoCharacteristic) UUID() string {
	return NormalizeUUID(c.char.UUID().String())
}

func (c *tinyGoCharacteristic) Read() ([]byte, error) {
	buf := make([]byte, maxAttributeLen)
	n, err := c.char.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
