// Package integrity provides HMAC signing for audit chain hashes.
//
// Signatures supplement the structural hash chain: linkage detects edits and
// reorders, while the per-check derived HMAC key detects a wholesale rewrite
// of a chain by a party without the root key.
package integrity

import (
	"crypto/hkdf"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Keyring stores root HMAC keys and the active key id.
type Keyring struct {
	keys        map[string][]byte
	activeKeyID string
}

// NewKeyring constructs a keyring for HMAC signing and verification.
func NewKeyring(keys map[string][]byte, activeKeyID string) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("hmac keys are required")
	}
	activeKeyID = strings.TrimSpace(activeKeyID)
	if activeKeyID == "" {
		return nil, fmt.Errorf("active hmac key id is required")
	}
	if _, ok := keys[activeKeyID]; !ok {
		return nil, fmt.Errorf("active hmac key id is not configured")
	}
	return &Keyring{keys: keys, activeKeyID: activeKeyID}, nil
}

// ActiveKeyID returns the configured signing key id.
func (k *Keyring) ActiveKeyID() string {
	if k == nil {
		return ""
	}
	return k.activeKeyID
}

// SignRecordHash signs an audit record hash with the active key.
func (k *Keyring) SignRecordHash(checkID, recordHash string) (string, string, error) {
	if k == nil {
		return "", "", fmt.Errorf("hmac keyring is not configured")
	}
	keyID := k.activeKeyID
	key, err := k.deriveKey(keyID, checkID)
	if err != nil {
		return "", "", err
	}
	sig := hmacSHA256Hex(key, recordHash)
	return sig, keyID, nil
}

// VerifyRecordHash validates an audit record hash signature.
func (k *Keyring) VerifyRecordHash(checkID, recordHash, signature, keyID string) error {
	if k == nil {
		return fmt.Errorf("hmac keyring is not configured")
	}
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		return fmt.Errorf("signature key id is required")
	}
	rootKey, ok := k.keys[keyID]
	if !ok {
		return fmt.Errorf("signature key id is unknown")
	}
	key, err := deriveCheckKey(rootKey, checkID)
	if err != nil {
		return err
	}
	expected := hmacSHA256Hex(key, recordHash)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func (k *Keyring) deriveKey(keyID, checkID string) ([]byte, error) {
	rootKey, ok := k.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("hmac key id is unknown")
	}
	return deriveCheckKey(rootKey, checkID)
}

func deriveCheckKey(rootKey []byte, checkID string) ([]byte, error) {
	checkID = strings.TrimSpace(checkID)
	if checkID == "" {
		return nil, fmt.Errorf("check id is required")
	}
	key, err := hkdf.Key(sha256.New, rootKey, nil, "check:"+checkID, 32)
	if err != nil {
		return nil, fmt.Errorf("derive check key: %w", err)
	}
	return key, nil
}

func hmacSHA256Hex(key []byte, value string) string {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}
