package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/chaz8081/weathercat-logger/internal/telemetry"
)

// Session failures. Decode and store failures are passed through from the
// Decoder and RecordStore unchanged.
var (
	ErrAdapter               = errors.New("ble: adapter fault")
	ErrDeviceNotFound        = errors.New("ble: device not found")
	ErrConnection            = errors.New("ble: connection fault")
	ErrDiscovery             = errors.New("ble: discovery fault")
	ErrCharacteristicMissing = errors.New("ble: characteristic missing")
	ErrRead                  = errors.New("ble: read fault")
)

// State is a step of the read session.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateFound
	StateConnected
	StateServicesDiscovered
	StateCharacteristicLocated
	StateRead
	StateDecoded
	StatePersisted
	StateFailed
)

var stateNames = [...]string{
	StateIdle:                  "idle",
	StateScanning:              "scanning",
	StateFound:                 "found",
	StateConnected:             "connected",
	StateServicesDiscovered:    "services-discovered",
	StateCharacteristicLocated: "characteristic-located",
	StateRead:                  "read",
	StateDecoded:               "decoded",
	StatePersisted:             "persisted",
	StateFailed:                "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// SessionError reports the state a session was in when it failed.
type SessionError struct {
	State State
	Err   error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session failed while %s: %v", e.State, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// Decoder turns raw characteristic bytes into a packet.
type Decoder interface {
	Decode(raw []byte) (telemetry.Packet, error)
}

// RecordStore persists a normalized record.
type RecordStore interface {
	Append(rec telemetry.Record) error
}

// SessionOptions configures the read session.
type SessionOptions struct {
	DeviceName         string        // substring of the advertised name
	CharacteristicUUID string        // telemetry characteristic
	ScanSettle         time.Duration // wait after the first scan start
	ReadSettle         time.Duration // wait between discovery and read
	ScanAttempts       int           // locator rounds before giving up, 0 = unbounded
	ScanTimeout        time.Duration // deadline for the scanning phase, 0 = none
	BackoffInitial     time.Duration // delay after the first miss
	BackoffMax         time.Duration // cap on the delay between rounds
	ConnectTimeout     time.Duration // 0 = no deadline beyond the stack's own
}

// DefaultSessionOptions returns sensible defaults.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		DeviceName:         TargetName,
		CharacteristicUUID: TelemetryCharUUID,
		ScanSettle:         2 * time.Second,
		ReadSettle:         1 * time.Second,
		ScanAttempts:       10,
		ScanTimeout:        2 * time.Minute,
		BackoffInitial:     1 * time.Second,
		BackoffMax:         30 * time.Second,
		ConnectTimeout:     15 * time.Second,
	}
}

// Session drives one discover, connect, read, decode, persist cycle.
// A session runs at most once.
type Session struct {
	adapter Adapter
	decoder Decoder
	store   RecordStore
	opts    SessionOptions
	now     func() time.Time

	state State
}

// NewSession creates a session. Empty name and UUID options fall back to
// the WeatherCat defaults; zero durations mean no wait.
func NewSession(adapter Adapter, decoder Decoder, store RecordStore, opts SessionOptions) *Session {
	if opts.DeviceName == "" {
		opts.DeviceName = TargetName
	}
	if opts.CharacteristicUUID == "" {
		opts.CharacteristicUUID = TelemetryCharUUID
	}
	opts.CharacteristicUUID = NormalizeUUID(opts.CharacteristicUUID)
	return &Session{
		adapter: adapter,
		decoder: decoder,
		store:   store,
		opts:    opts,
		now:     time.Now,
	}
}

// State returns the current state.
func (s *Session) State() State { return s.state }

func (s *Session) transition(to State) {
	slog.Debug("[SESSION] transition", "from", s.state, "to", to)
	s.state = to
}

// fail moves the session to StateFailed and wraps err with the state it
// failed in.
func (s *Session) fail(err error) error {
	at := s.state
	s.transition(StateFailed)
	return &SessionError{State: at, Err: err}
}

// Run executes the session and returns the persisted record. Any error
// other than a locator miss aborts the session; nothing is retried and
// nothing is persisted on failure.
func (s *Session) Run(ctx context.Context) (*telemetry.Record, error) {
	if s.state != StateIdle {
		return nil, fmt.Errorf("ble: session already ran (state %s)", s.state)
	}

	s.transition(StateScanning)
	dev, err := s.scan(ctx)
	if err != nil {
		return nil, s.fail(err)
	}
	s.transition(StateFound)
	slog.Info("[SESSION] found device", "name", dev.Name, "address", dev.Address, "rssi", dev.RSSI)

	connCtx := ctx
	if s.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connCtx, cancel = context.WithTimeout(ctx, s.opts.ConnectTimeout)
		defer cancel()
	}
	conn, err := s.adapter.Connect(connCtx, dev.Address)
	if err != nil {
		return nil, s.fail(fmt.Errorf("%w: %v", ErrConnection, err))
	}
	defer func() {
		if err := conn.Disconnect(); err != nil {
			slog.Warn("[SESSION] disconnect failed", "error", err)
		}
	}()
	s.transition(StateConnected)

	chars, err := conn.DiscoverCharacteristics()
	if err != nil {
		return nil, s.fail(fmt.Errorf("%w: %v", ErrDiscovery, err))
	}
	s.transition(StateServicesDiscovered)

	target := s.findCharacteristic(chars)
	if target == nil {
		return nil, s.fail(fmt.Errorf("%w: %s not among %d discovered", ErrCharacteristicMissing, s.opts.CharacteristicUUID, len(chars)))
	}
	s.transition(StateCharacteristicLocated)

	if err := sleepCtx(ctx, s.opts.ReadSettle); err != nil {
		return nil, s.fail(fmt.Errorf("read settle: %w", err))
	}
	raw, err := target.Read()
	if err != nil {
		return nil, s.fail(fmt.Errorf("%w: %v", ErrRead, err))
	}
	s.transition(StateRead)
	slog.Debug("[SESSION] read characteristic", "bytes", len(raw), "payload", string(raw))

	pkt, err := s.decoder.Decode(raw)
	if err != nil {
		return nil, s.fail(err)
	}
	s.transition(StateDecoded)

	rec := telemetry.Normalize(pkt, s.now())
	if err := s.store.Append(rec); err != nil {
		return nil, s.fail(err)
	}
	s.transition(StatePersisted)
	return &rec, nil
}

// scan starts scanning, waits for the settle interval, and polls the
// locator with capped exponential backoff until the target shows up or
// the attempt budget, the scan timeout, or ctx runs out.
func (s *Session) scan(ctx context.Context) (Device, error) {
	if s.opts.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ScanTimeout)
		defer cancel()
	}

	if err := s.adapter.Enable(); err != nil {
		return Device{}, fmt.Errorf("%w: enable: %v", ErrAdapter, err)
	}
	if err := s.adapter.StartScan(); err != nil {
		return Device{}, fmt.Errorf("%w: start scan: %v", ErrAdapter, err)
	}
	defer func() {
		if err := s.adapter.StopScan(); err != nil {
			slog.Warn("[BLE] stop scan failed", "error", err)
		}
	}()

	if err := sleepCtx(ctx, s.opts.ScanSettle); err != nil {
		return Device{}, fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	}

	for attempt := 0; ; attempt++ {
		if dev, ok := FindTarget(s.adapter.Peripherals(), s.opts.DeviceName); ok {
			return dev, nil
		}
		if s.opts.ScanAttempts > 0 && attempt+1 >= s.opts.ScanAttempts {
			return Device{}, fmt.Errorf("%w: no advertiser matching %q after %d attempts", ErrDeviceNotFound, s.opts.DeviceName, attempt+1)
		}

		delay := backoffDelay(attempt, s.opts.BackoffInitial, s.opts.BackoffMax)
		slog.Debug("[BLE] target not found, rescanning", "attempt", attempt+1, "delay", delay)
		if err := sleepCtx(ctx, delay); err != nil {
			return Device{}, fmt.Errorf("%w: after %d attempts: %w", ErrDeviceNotFound, attempt+1, err)
		}
		if err := s.adapter.StartScan(); err != nil {
			return Device{}, fmt.Errorf("%w: restart scan: %v", ErrAdapter, err)
		}
	}
}

func (s *Session) findCharacteristic(chars []Characteristic) Characteristic {
	var target Characteristic
	for _, c := range chars {
		id := NormalizeUUID(c.UUID())
		slog.Debug("[SESSION] characteristic", "uuid", id)
		if target == nil && id == s.opts.CharacteristicUUID {
			target = c
		}
	}
	return target
}

// backoffDelay returns the delay after the given failed attempt:
// initial * 2^attempt, capped at max when max > 0.
func backoffDelay(attempt int, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		return 0
	}
	// Cap the shift to avoid overflow.
	if attempt > 30 {
		attempt = 30
	}
	delay := initial << uint(attempt)
	if delay>>uint(attempt) != initial {
		delay = math.MaxInt64
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
