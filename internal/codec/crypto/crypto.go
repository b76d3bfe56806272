// Package crypto loads the RSA private key used by the encrypted codec mode
// and opens PKCS#1 v1.5 envelopes produced by the WeatherCat firmware.
//
// Keys are supplied at startup from a PEM file. Both "RSA PRIVATE KEY"
// (PKCS#1) and "PRIVATE KEY" (PKCS#8) blocks are accepted, optionally
// protected by a legacy PEM passphrase.
package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"
)

// LoadPrivateKey reads a PEM-encoded RSA private key from path.
// passphrase may be nil for unencrypted keys.
func LoadPrivateKey(path string, passphrase []byte) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("codec/crypto: read key: %w", err)
	}
	return ParsePrivateKey(data, passphrase)
}

// ParsePrivateKey parses a PEM-encoded RSA private key.
func ParsePrivateKey(pemBytes, passphrase []byte) (*rsa.PrivateKey, error) {
	raw, err := ssh.ParseRawPrivateKey(pemBytes)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		if len(passphrase) == 0 {
			return nil, fmt.Errorf("codec/crypto: key is passphrase protected but no passphrase was given")
		}
		raw, err = ssh.ParseRawPrivateKeyWithPassphrase(pemBytes, passphrase)
	}
	if err != nil {
		return nil, fmt.Errorf("codec/crypto: parse key: %w", err)
	}

	key, ok := raw.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("codec/crypto: want RSA private key, got %T", raw)
	}
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("codec/crypto: invalid key: %w", err)
	}
	return key, nil
}

// Decrypt opens an RSA PKCS#1 v1.5 ciphertext.
func Decrypt(key *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	if key == nil {
		return nil, errors.New("codec/crypto: no private key")
	}
	plaintext, err := rsa.DecryptPKCS1v15(rand.Reader, key, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("codec/crypto: decrypt: %w", err)
	}
	return plaintext, nil
}
