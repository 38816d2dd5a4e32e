package secrets

import "testing"

func TestCipherRoundTrip(t *testing.T) {
	c := NewCipher("a-32-byte-encryption-key-padding")

	encrypted, err := c.Encrypt("api-secret-value")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if encrypted == "api-secret-value" {
		t.Fatal("ciphertext must not equal plaintext")
	}

	decrypted, err := c.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if decrypted != "api-secret-value" {
		t.Fatalf("unexpected plaintext: %q", decrypted)
	}
}

func TestCipherShortKeyIsPadded(t *testing.T) {
	c := NewCipher("short")

	encrypted, err := c.Encrypt("value")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	decrypted, err := c.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if decrypted != "value" {
		t.Fatalf("unexpected plaintext: %q", decrypted)
	}
}

func TestCipherRejectsGarbage(t *testing.T) {
	c := NewCipher("key")

	if _, err := c.Decrypt("not-base64!!"); err == nil {
		t.Fatal("expected an error on invalid base64")
	}
	if _, err := c.Decrypt("YWJj"); err == nil { // too short for a nonce
		t.Fatal("expected an error on truncated ciphertext")
	}
}

func TestCipherRejectsWrongKey(t *testing.T) {
	encrypted, err := NewCipher("key-one").Encrypt("value")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	if _, err := NewCipher("key-two").Decrypt(encrypted); err == nil {
		t.Fatal("expected decryption under the wrong key to fail")
	}
}
