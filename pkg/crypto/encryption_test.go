package crypto

import (
	"bytes"
	"testing"
)

func testKey(b byte) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = b + byte(i)
	}
	return key
}

func TestAEAD_EncryptDecrypt_RoundTrip(t *testing.T) {
	aead, err := NewAEADCipher(testKey(0))
	if err != nil {
		t.Fatalf("NewAEADCipher: %v", err)
	}

	plaintext := []byte(`{"password":"hunter2"}`)
	aad := []byte("configs|6f1c")

	ct1, err := aead.Encrypt(plaintext, aad)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	ct2, err := aead.Encrypt(plaintext, aad)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(ct1, ct2) {
		t.Fatal("two encryptions of the same plaintext produced identical ciphertext")
	}

	pt, err := aead.Decrypt(ct1, aad)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Fatalf("roundtrip mismatch: %q != %q", pt, plaintext)
	}
}

func TestAEAD_Decrypt_Tampered(t *testing.T) {
	aead, err := NewAEADCipher(testKey(42))
	if err != nil {
		t.Fatal(err)
	}
	ct, err := aead.Encrypt([]byte("data"), []byte("aad"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := aead.Decrypt(ct, []byte("wrong")); err == nil {
		t.Fatal("expected auth error with wrong AAD")
	}
	ct[len(ct)-1] ^= 0x01
	if _, err := aead.Decrypt(ct, []byte("aad")); err == nil {
		t.Fatal("expected decryption to fail with corrupted ciphertext")
	}
	if _, err := aead.Decrypt([]byte("short"), nil); err == nil {
		t.Fatal("expected error for short input")
	}
}

func TestAEAD_InvalidKeyLength(t *testing.T) {
	for _, key := range [][]byte{nil, {}, make([]byte, 16), make([]byte, 64)} {
		if _, err := NewAEADCipher(key); err == nil {
			t.Fatalf("expected error with key length %d, got nil", len(key))
		}
	}
}

func TestAEAD_Strings(t *testing.T) {
	aead, err := NewAEADCipher(testKey(7))
	if err != nil {
		t.Fatal(err)
	}

	enc, err := aead.EncryptString("private-key", "clients|svc")
	if err != nil {
		t.Fatal(err)
	}
	if !IsEncrypted(enc) {
		t.Fatalf("expected prefix on %q", enc)
	}
	dec, err := aead.DecryptString(enc, "clients|svc")
	if err != nil {
		t.Fatal(err)
	}
	if dec != "private-key" {
		t.Fatalf("got %q", dec)
	}
	if _, err := aead.DecryptString(enc, "clients|other"); err == nil {
		t.Fatal("expected error when record binding differs")
	}

	plain, err := aead.DecryptString("legacy-plaintext", "clients|svc")
	if err != nil || plain != "legacy-plaintext" {
		t.Fatalf("plaintext passthrough failed: %q, %v", plain, err)
	}
}
