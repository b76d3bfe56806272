// Package ble provides the BLE central side of the WeatherCat logger: it
// finds the sensor among nearby advertisers, connects, reads the telemetry
// characteristic once, and hands the bytes on for decoding and storage.
package ble

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// WeatherCat defaults.
const (
	// TelemetryCharUUID is the characteristic carrying the encoded reading.
	TelemetryCharUUID = "00002a6e-0000-1000-8000-00805f9b34fb"
	// TargetName is matched as a substring of the advertised local name.
	TargetName = "WeatherCat"
)

// Device is a peripheral seen while scanning. Name is empty when the
// peripheral did not advertise a local name.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Characteristic is a GATT characteristic on a connected peripheral.
type Characteristic interface {
	// UUID returns the characteristic UUID in canonical string form.
	UUID() string
	// Read issues a single read request and returns the value.
	Read() ([]byte, error)
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristics runs GATT discovery and returns every
	// characteristic of every service.
	DiscoverCharacteristics() ([]Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// StartScan starts (or keeps) scanning in the background. Calling it
	// while a scan is running is not an error.
	StartScan() error
	// StopScan stops a running scan.
	StopScan() error
	// Peripherals returns a snapshot of every device seen so far.
	Peripherals() []Device
	// Connect establishes a connection to the device with the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}

// NormalizeUUID returns the lowercase canonical form of a UUID string, or
// the lowercased input if it does not parse.
func NormalizeUUID(s string) string {
	u, err := uuid.Parse(s)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return u.String()
}
