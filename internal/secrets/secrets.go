// Package secrets encrypts hypervisor engine credentials (host passwords,
// API tokens) at rest in the coordinator's config file, using age the same
// way the teacher's secrets bundle package protects guest-bootstrap
// credentials: decrypted only in memory, never written back to disk
// plaintext.
package secrets

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
)

// KeyStore loads an age identity from a key file and uses it to seal and
// open engine credential blobs.
type KeyStore struct {
	KeyPath string
}

// NewKeyStore returns a KeyStore rooted at keyPath.
func NewKeyStore(keyPath string) KeyStore {
	return KeyStore{KeyPath: keyPath}
}

// GenerateKey creates a new X25519 identity and writes it to ks.KeyPath if
// no key file exists yet. It returns the recipient string for the
// generated (or existing) key, suitable for Seal.
func (ks KeyStore) GenerateKey() (string, error) {
	if _, err := os.Stat(ks.KeyPath); err == nil {
		return ks.recipientFromFile()
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat age key %s: %w", ks.KeyPath, err)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generate age identity: %w", err)
	}
	if err := os.WriteFile(ks.KeyPath, []byte(identity.String()+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write age key %s: %w", ks.KeyPath, err)
	}
	return identity.Recipient().String(), nil
}

func (ks KeyStore) recipientFromFile() (string, error) {
	identities, err := ks.loadIdentities()
	if err != nil {
		return "", err
	}
	x, ok := identities[0].(*age.X25519Identity)
	if !ok {
		return "", errors.New("age key file does not contain an X25519 identity")
	}
	return x.Recipient().String(), nil
}

// Seal encrypts plaintext to recipient, returning the ciphertext bytes.
func Seal(recipient string, plaintext []byte) ([]byte, error) {
	r, err := age.ParseX25519Recipient(recipient)
	if err != nil {
		return nil, fmt.Errorf("parse age recipient: %w", err)
	}
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, r)
	if err != nil {
		return nil, fmt.Errorf("open age writer: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("seal secret: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize sealed secret: %w", err)
	}
	return buf.Bytes(), nil
}

// Open decrypts ciphertext using ks's key file.
func (ks KeyStore) Open(ciphertext []byte) ([]byte, error) {
	identities, err := ks.loadIdentities()
	if err != nil {
		return nil, err
	}
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret: %w", err)
	}
	return io.ReadAll(reader)
}

func (ks KeyStore) loadIdentities() ([]age.Identity, error) {
	if strings.TrimSpace(ks.KeyPath) == "" {
		return nil, errors.New("age key path is required")
	}
	data, err := os.ReadFile(ks.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("read age key %s: %w", ks.KeyPath, err)
	}
	var identities []age.Identity
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "AGE-SECRET-KEY-") {
			continue
		}
		identity, err := age.ParseX25519Identity(line)
		if err != nil {
			return nil, fmt.Errorf("parse age identity: %w", err)
		}
		identities = append(identities, identity)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read age key: %w", err)
	}
	if len(identities) == 0 {
		return nil, errors.New("no age identities found in key file")
	}
	return identities, nil
}
