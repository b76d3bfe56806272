package codec

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"
)

func mustNew(t *testing.T, mode Mode, key *rsa.PrivateKey) *Codec {
	t.Helper()
	c, err := New(mode, key)
	if err != nil {
		t.Fatalf("New(%q) error = %v", mode, err)
	}
	return c
}

// evenPad makes s even-length by appending a space, which JSON ignores.
func evenPad(s string) string {
	if len(s)%2 != 0 {
		return s + " "
	}
	return s
}

func TestDecodeKitchenScenario(t *testing.T) {
	raw := []byte(`{"t":21.5,"h":40.2,"name":"kitchen"}`)
	if len(raw)%2 != 0 {
		t.Fatalf("fixture must be even length, got %d", len(raw))
	}

	p, err := mustNew(t, ModePlain, nil).Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if p.Temperature != 21.5 || p.Humidity != 40.2 || p.Name != "kitchen" {
		t.Errorf("Decode() = %+v", p)
	}
	if p.Timestamp != nil {
		t.Errorf("Timestamp = %v, want nil", p.Timestamp)
	}
}

func TestDecodeOddLengthIsInvalidFraming(t *testing.T) {
	c := mustNew(t, ModePlain, nil)
	inputs := [][]byte{
		{0x7b},
		[]byte(`{"t":1,"h":2,"name":"ab"}`),
		{0xff, 0xfe, 0xfd}, // invalid UTF-8 must still fail on framing first
	}
	for _, raw := range inputs {
		if len(raw)%2 == 0 {
			t.Fatalf("fixture %q must be odd length", raw)
		}
		_, err := c.Decode(raw)
		if !errors.Is(err, ErrInvalidFraming) {
			t.Errorf("Decode(%q) error = %v, want ErrInvalidFraming", raw, err)
		}
	}
}

func TestDecodeInvalidUTF8(t *testing.T) {
	_, err := mustNew(t, ModePlain, nil).Decode([]byte{0xc3, 0x28})
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("Decode() error = %v, want ErrInvalidEncoding", err)
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not json", "hello!"},
		{"array", `[1,2]`},
		{"missing t", `{"h":40.2,"name":"kitchen"}`},
		{"missing h", `{"t":21.5,"name":"kitchen"}`},
		{"missing name", `{"t":21.5,"h":40.2}`},
		{"string temperature", `{"t":"21.5","h":40.2,"name":"kitchen"}`},
		{"truncated", `{"t":21.5,"h":40.2,"name":"kit`},
	}
	c := mustNew(t, ModePlain, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode([]byte(evenPad(tt.input)))
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("Decode() error = %v, want ErrMalformedPayload", err)
			}
		})
	}
}

func TestDecodeFieldsRoundTrip(t *testing.T) {
	tests := []struct {
		input string
		t, h  float64
		name  string
	}{
		{`{"t":0,"h":0,"name":""}`, 0, 0, ""},
		{`{"t":-12.75,"h":100,"name":"garage"}`, -12.75, 100, "garage"},
		{`{"t":1e2,"h":0.001,"name":"WeatherCat-01"}`, 100, 0.001, "WeatherCat-01"},
		{`{"name":"ünïcode","h":55.5,"t":19.25}`, 19.25, 55.5, "ünïcode"},
	}
	c := mustNew(t, ModePlain, nil)
	for _, tt := range tests {
		p, err := c.Decode([]byte(evenPad(tt.input)))
		if err != nil {
			t.Errorf("Decode(%s) error = %v", tt.input, err)
			continue
		}
		if p.Temperature != tt.t || p.Humidity != tt.h || p.Name != tt.name || p.Timestamp != nil {
			t.Errorf("Decode(%s) = %+v", tt.input, p)
		}
	}
}

func TestDecodeOptionalTimestamp(t *testing.T) {
	p, err := mustNew(t, ModePlain, nil).Decode([]byte(evenPad(`{"t":1,"h":2,"name":"n","ts":1700000000}`)))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if p.Timestamp == nil || p.Timestamp.Unix() != 1700000000 {
		t.Errorf("Timestamp = %v, want 1700000000", p.Timestamp)
	}
}

func TestDecodeHexMode(t *testing.T) {
	c := mustNew(t, ModeHex, nil)
	raw := []byte(hex.EncodeToString([]byte(`{"t":21.5,"h":40.2,"name":"kitchen"}`)))

	p, err := c.Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if p.Name != "kitchen" || p.Temperature != 21.5 {
		t.Errorf("Decode() = %+v", p)
	}

	// Plain JSON is not valid hex.
	_, err = c.Decode([]byte(evenPad(`{"t":21.5,"h":40.2,"name":"kitchen"}`)))
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("Decode(plain json) error = %v, want ErrInvalidEncoding", err)
	}
}

func TestDecodeEncryptedMode(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, &key.PublicKey, []byte(`{"t":21.5,"h":40.2,"name":"kitchen"}`))
	if err != nil {
		t.Fatalf("EncryptPKCS1v15() error = %v", err)
	}
	// 256 bytes of ciphertext encode to 344 base64 characters.
	raw := []byte(base64.StdEncoding.EncodeToString(ciphertext))

	c := mustNew(t, ModeEncrypted, key)
	p, err := c.Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if p.Name != "kitchen" || p.Humidity != 40.2 {
		t.Errorf("Decode() = %+v", p)
	}

	_, err = c.Decode([]byte(evenPad(`{"t":21.5,"h":40.2,"name":"kitchen"}`)))
	if !errors.Is(err, ErrDecryptionFailure) {
		t.Errorf("Decode(plaintext) error = %v, want ErrDecryptionFailure", err)
	}

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	_, err = mustNew(t, ModeEncrypted, other).Decode(raw)
	if !errors.Is(err, ErrDecryptionFailure) {
		t.Errorf("Decode(wrong key) error = %v, want ErrDecryptionFailure", err)
	}
}

func TestDecodeEncryptedInvalidUTF8(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, &key.PublicKey, []byte("{\"t\":1,\"h\":2,\"name\":\"\xff\xfe\"}"))
	if err != nil {
		t.Fatalf("EncryptPKCS1v15() error = %v", err)
	}

	p, err := mustNew(t, ModeEncrypted, key).Decode([]byte(base64.StdEncoding.EncodeToString(ciphertext)))
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("Decode() = %+v, %v, want ErrInvalidEncoding", p, err)
	}
}

func TestNewEncryptedRequiresKey(t *testing.T) {
	if _, err := New(ModeEncrypted, nil); err == nil {
		t.Error("New(encrypted, nil) should fail")
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"plain", "hex", "encrypted"} {
		if _, err := ParseMode(s); err != nil {
			t.Errorf("ParseMode(%q) error = %v", s, err)
		}
	}
	for _, s := range []string{"", "PLAIN", "rsa"} {
		if _, err := ParseMode(s); err == nil {
			t.Errorf("ParseMode(%q) should fail", s)
		}
	}
}
