// Package telemetry defines the reading types shared by the codec, the
// session controller and the ledger.
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"
)

// Packet is a decoded reading as sent by the WeatherCat firmware.
// Timestamp is nil when the firmware does not report capture time.
type Packet struct {
	Temperature float64
	Humidity    float64
	Name        string
	Timestamp   *time.Time
}

// Record is the persisted form of a reading. Timestamp is always set,
// UTC, with second precision.
type Record struct {
	Temperature float64
	Humidity    float64
	Name        string
	Timestamp   time.Time
}

// Normalize turns a packet into a record, using now when the packet
// carries no timestamp.
func Normalize(p Packet, now time.Time) Record {
	ts := now
	if p.Timestamp != nil {
		ts = *p.Timestamp
	}
	return Record{
		Temperature: p.Temperature,
		Humidity:    p.Humidity,
		Name:        p.Name,
		Timestamp:   ts.UTC().Truncate(time.Second),
	}
}

// recordJSON is the ledger wire shape: time_stamp is UNIX seconds.
type recordJSON struct {
	Temp      *float64 `json:"temp"`
	Hum       *float64 `json:"hum"`
	Name      *string  `json:"name"`
	TimeStamp *int64   `json:"time_stamp"`
}

// MarshalJSON implements json.Marshaler.
func (r Record) MarshalJSON() ([]byte, error) {
	ts := r.Timestamp.Unix()
	return json.Marshal(recordJSON{
		Temp:      &r.Temperature,
		Hum:       &r.Humidity,
		Name:      &r.Name,
		TimeStamp: &ts,
	})
}

// UnmarshalJSON implements json.Unmarshaler. All four fields are required.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w recordJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.Temp == nil:
		return fmt.Errorf("telemetry: record missing %q", "temp")
	case w.Hum == nil:
		return fmt.Errorf("telemetry: record missing %q", "hum")
	case w.Name == nil:
		return fmt.Errorf("telemetry: record missing %q", "name")
	case w.TimeStamp == nil:
		return fmt.Errorf("telemetry: record missing %q", "time_stamp")
	}
	*r = Record{
		Temperature: *w.Temp,
		Humidity:    *w.Hum,
		Name:        *w.Name,
		Timestamp:   time.Unix(*w.TimeStamp, 0).UTC(),
	}
	return nil
}

func (r Record) String() string {
	return fmt.Sprintf("%s: %.2f°C %.2f%% at %s", r.Name, r.Temperature, r.Humidity, r.Timestamp.Format(time.RFC3339))
}
