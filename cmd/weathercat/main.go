// Command weathercat reads one telemetry sample from a WeatherCat BLE sensor
// and appends it to a JSON ledger.
package main

import (
	"os"

	"github.com/chaz8081/weathercat-logger/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
