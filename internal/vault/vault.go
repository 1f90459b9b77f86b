// Package vault seals tenant credentials with AES-GCM before they reach
// the database and reveals them again at ingestion time.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"teamsync/internal/config"
)

// ErrDecrypt reports a value that could not be verified against any
// configured key. Callers treat it as a missing credential, not a crash.
var ErrDecrypt = errors.New("vault: cannot decrypt value")

const envelopeScheme = "aes-gcm-v1"

type envelope struct {
	Enc   string `json:"enc"`
	Nonce string `json:"nonce"`
	Data  string `json:"data"`
}

type Vault struct {
	strict bool
	keys   []cipher.AEAD
}

// New builds a vault from the configured key plus an optional previous
// key kept for rotation. The first usable key seals new values; every
// key participates in decryption.
func New(cfg config.VaultConfig) *Vault {
	v := &Vault{strict: cfg.Strict}
	seen := map[string]struct{}{}
	for _, key := range []string{strings.TrimSpace(cfg.Key), strings.TrimSpace(cfg.PrevKey)} {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keyBytes := parseKey(key)
		if len(keyBytes) == 0 {
			continue
		}
		if gcm := newGCM(keyBytes); gcm != nil {
			v.keys = append(v.keys, gcm)
		}
	}
	return v
}

func (v *Vault) Ready() bool {
	return v != nil && len(v.keys) > 0
}

func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	if !v.Ready() {
		if v != nil && v.strict {
			return "", errors.New("vault: no encryption key configured")
		}
		return plaintext, nil
	}
	gcm := v.keys[0]
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ct := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	payload := envelope{
		Enc:   envelopeScheme,
		Nonce: base64.StdEncoding.EncodeToString(nonce),
		Data:  base64.StdEncoding.EncodeToString(ct),
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Decrypt reveals a sealed value. Values that are not envelopes pass
// through unchanged in weak mode so legacy plaintext tokens keep
// working; strict mode accepts sealed values only.
func (v *Vault) Decrypt(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	var payload envelope
	if err := json.Unmarshal([]byte(value), &payload); err != nil {
		return v.passthrough(value)
	}
	if payload.Enc != envelopeScheme || payload.Nonce == "" || payload.Data == "" {
		return v.passthrough(value)
	}
	nonce, err := base64.StdEncoding.DecodeString(payload.Nonce)
	if err != nil {
		return v.passthrough(value)
	}
	ct, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		return v.passthrough(value)
	}
	for _, gcm := range v.ring() {
		if pt, err := gcm.Open(nil, nonce, ct, nil); err == nil {
			return string(pt), nil
		}
	}
	return v.passthrough(value)
}

func (v *Vault) passthrough(value string) (string, error) {
	if v != nil && v.strict {
		return "", ErrDecrypt
	}
	return value, nil
}

func (v *Vault) ring() []cipher.AEAD {
	if v == nil {
		return nil
	}
	return v.keys
}

func parseKey(k string) []byte {
	if strings.TrimSpace(k) == "" {
		return nil
	}
	// Prefer base64 key. fallback to raw bytes.
	keyBytes, err := base64.StdEncoding.DecodeString(k)
	if err != nil {
		keyBytes = []byte(k)
	}
	// Normalize key sizes accepted by AES.
	switch len(keyBytes) {
	case 16, 24, 32:
		// keep
	default:
		if len(keyBytes) < 16 {
			return nil
		}
		if len(keyBytes) < 24 {
			keyBytes = keyBytes[:16]
		} else if len(keyBytes) < 32 {
			keyBytes = keyBytes[:24]
		} else {
			keyBytes = keyBytes[:32]
		}
	}
	return keyBytes
}

func newGCM(keyBytes []byte) cipher.AEAD {
	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil
	}
	return gcm
}
