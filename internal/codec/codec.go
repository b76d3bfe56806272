// Package codec turns raw characteristic bytes into a telemetry packet.
//
// Decoding runs in up to three steps. The raw bytes must have even length
// and are reinterpreted as UTF-8 text. Depending on the mode that text is
// then hex decoded or decrypted. The result is parsed as the firmware's
// JSON object {"t": <float>, "h": <float>, "name": <string>, "ts": <unix>}.
package codec

import (
	"bytes"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	codeccrypto "github.com/chaz8081/weathercat-logger/internal/codec/crypto"
	"github.com/chaz8081/weathercat-logger/internal/telemetry"
)

// Decode failures.
var (
	ErrInvalidFraming    = errors.New("codec: invalid framing")
	ErrInvalidEncoding   = errors.New("codec: invalid encoding")
	ErrMalformedPayload  = errors.New("codec: malformed payload")
	ErrDecryptionFailure = errors.New("codec: decryption failure")
)

// Mode selects how the framed text is turned into JSON.
type Mode string

const (
	// ModePlain parses the framed text as JSON directly.
	ModePlain Mode = "plain"
	// ModeHex hex-decodes the framed text before parsing.
	ModeHex Mode = "hex"
	// ModeEncrypted base64-decodes the framed text and decrypts it with
	// RSA PKCS#1 v1.5 before parsing.
	ModeEncrypted Mode = "encrypted"
)

// ParseMode validates a mode name from configuration.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModePlain, ModeHex, ModeEncrypted:
		return m, nil
	}
	return "", fmt.Errorf("codec: unknown mode %q (want plain, hex, or encrypted)", s)
}

// Codec decodes raw packets in a fixed mode.
type Codec struct {
	mode Mode
	key  *rsa.PrivateKey
}

// New creates a codec. key is required for ModeEncrypted and ignored otherwise.
func New(mode Mode, key *rsa.PrivateKey) (*Codec, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if mode == ModeEncrypted && key == nil {
		return nil, errors.New("codec: encrypted mode requires a private key")
	}
	return &Codec{mode: mode, key: key}, nil
}

// Mode returns the codec's mode.
func (c *Codec) Mode() Mode { return c.mode }

// Decode converts raw characteristic bytes into a packet.
func (c *Codec) Decode(raw []byte) (telemetry.Packet, error) {
	text, err := frameText(raw)
	if err != nil {
		return telemetry.Packet{}, err
	}

	var payload []byte
	switch c.mode {
	case ModeHex:
		payload, err = hex.DecodeString(text)
		if err != nil {
			return telemetry.Packet{}, fmt.Errorf("%w: hex: %v", ErrInvalidEncoding, err)
		}
		if !utf8.Valid(payload) {
			return telemetry.Packet{}, fmt.Errorf("%w: hex payload is not UTF-8", ErrInvalidEncoding)
		}
	case ModeEncrypted:
		payload, err = c.decrypt(text)
		if err != nil {
			return telemetry.Packet{}, err
		}
		if !utf8.Valid(payload) {
			return telemetry.Packet{}, fmt.Errorf("%w: decrypted payload is not UTF-8", ErrInvalidEncoding)
		}
	default:
		payload = []byte(text)
	}

	return parsePacket(payload)
}

// frameText checks the length and reinterprets the bytes as UTF-8 text.
// The bytes are not hex decoded here.
func frameText(raw []byte) (string, error) {
	if len(raw)%2 != 0 {
		return "", fmt.Errorf("%w: odd length %d", ErrInvalidFraming, len(raw))
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: not UTF-8", ErrInvalidEncoding)
	}
	return string(raw), nil
}

func (c *Codec) decrypt(text string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrDecryptionFailure, err)
	}
	plaintext, err := codeccrypto.Decrypt(c.key, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailure, err)
	}
	return plaintext, nil
}

// wirePacket mirrors the firmware JSON. Pointers detect missing fields.
type wirePacket struct {
	T    *float64 `json:"t"`
	H    *float64 `json:"h"`
	Name *string  `json:"name"`
	TS   *int64   `json:"ts"`
}

func parsePacket(payload []byte) (telemetry.Packet, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || payload[0] != '{' {
		return telemetry.Packet{}, fmt.Errorf("%w: not a JSON object", ErrMalformedPayload)
	}

	var w wirePacket
	if err := json.Unmarshal(payload, &w); err != nil {
		return telemetry.Packet{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	switch {
	case w.T == nil:
		return telemetry.Packet{}, fmt.Errorf("%w: missing %q", ErrMalformedPayload, "t")
	case w.H == nil:
		return telemetry.Packet{}, fmt.Errorf("%w: missing %q", ErrMalformedPayload, "h")
	case w.Name == nil:
		return telemetry.Packet{}, fmt.Errorf("%w: missing %q", ErrMalformedPayload, "name")
	}

	p := telemetry.Packet{
		Temperature: *w.T,
		Humidity:    *w.H,
		Name:        *w.Name,
	}
	if w.TS != nil {
		ts := time.Unix(*w.TS, 0).UTC()
		p.Timestamp = &ts
	}
	return p, nil
}
