package integrity

import (
	"testing"
)

func testKeys() map[string][]byte {
	return map[string][]byte{
		"v1": []byte("0123456789abcdef0123456789abcdef"),
		"v2": []byte("fedcba9876543210fedcba9876543210"),
	}
}

func TestNewKeyringValidation(t *testing.T) {
	if _, err := NewKeyring(nil, "v1"); err == nil {
		t.Fatal("expected error for missing keys")
	}
	if _, err := NewKeyring(testKeys(), ""); err == nil {
		t.Fatal("expected error for missing active key id")
	}
	if _, err := NewKeyring(testKeys(), "v9"); err == nil {
		t.Fatal("expected error for unknown active key id")
	}
}

func TestSignAndVerify(t *testing.T) {
	keyring, err := NewKeyring(testKeys(), "v1")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}

	sig, keyID, err := keyring.SignRecordHash("check-1", "deadbeef")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if keyID != "v1" {
		t.Fatalf("key id = %q, want v1", keyID)
	}
	if err := keyring.VerifyRecordHash("check-1", "deadbeef", sig, keyID); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	keyring, err := NewKeyring(testKeys(), "v1")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	sig, keyID, err := keyring.SignRecordHash("check-1", "deadbeef")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if err := keyring.VerifyRecordHash("check-1", "d34db33f", sig, keyID); err == nil {
		t.Fatal("expected changed hash to fail verification")
	}
	if err := keyring.VerifyRecordHash("check-2", "deadbeef", sig, keyID); err == nil {
		t.Fatal("expected different check to fail verification")
	}
	if err := keyring.VerifyRecordHash("check-1", "deadbeef", sig, "v9"); err == nil {
		t.Fatal("expected unknown key id to fail verification")
	}
}

func TestSignaturesDifferPerCheck(t *testing.T) {
	keyring, err := NewKeyring(testKeys(), "v1")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	first, _, err := keyring.SignRecordHash("check-1", "deadbeef")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	second, _, err := keyring.SignRecordHash("check-2", "deadbeef")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if first == second {
		t.Fatal("expected per-check derived keys to produce different signatures")
	}
}

func TestVerifyWithRotatedKey(t *testing.T) {
	signer, err := NewKeyring(testKeys(), "v1")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	sig, keyID, err := signer.SignRecordHash("check-1", "deadbeef")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	// A keyring with v2 active still holds v1 and verifies old signatures.
	rotated, err := NewKeyring(testKeys(), "v2")
	if err != nil {
		t.Fatalf("new keyring: %v", err)
	}
	if err := rotated.VerifyRecordHash("check-1", "deadbeef", sig, keyID); err != nil {
		t.Fatalf("verify with rotated keyring: %v", err)
	}
}

func TestKeyringFromEnv(t *testing.T) {
	t.Setenv(envHMACKeys, "")
	t.Setenv(envHMACKeyID, "")
	t.Setenv(envHMACKey, "")
	if _, err := KeyringFromEnv(); err == nil {
		t.Fatal("expected error when no key is configured")
	}

	t.Setenv(envHMACKey, "single-root-key")
	keyring, err := KeyringFromEnv()
	if err != nil {
		t.Fatalf("keyring from env: %v", err)
	}
	if keyring.ActiveKeyID() != "v1" {
		t.Fatalf("active key id = %q, want v1", keyring.ActiveKeyID())
	}

	t.Setenv(envHMACKeys, "v1=old-key,v2=new-key")
	t.Setenv(envHMACKeyID, "v2")
	keyring, err = KeyringFromEnv()
	if err != nil {
		t.Fatalf("keyring from env: %v", err)
	}
	if keyring.ActiveKeyID() != "v2" {
		t.Fatalf("active key id = %q, want v2", keyring.ActiveKeyID())
	}

	t.Setenv(envHMACKeys, "missing-separator")
	if _, err := KeyringFromEnv(); err == nil {
		t.Fatal("expected error for malformed key spec")
	}
}
