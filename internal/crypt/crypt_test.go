package crypt

import "testing"

func TestRoundTrip(t *testing.T) {
	c, err := New("test-key")
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	enc, err := c.Encrypt("super-secret-token")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if enc == "super-secret-token" {
		t.Fatalf("expected ciphertext, got plaintext")
	}
	dec, err := c.Decrypt(enc)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if dec != "super-secret-token" {
		t.Fatalf("round trip mismatch: %q", dec)
	}
}

func TestPassthroughWithoutKey(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	enc, err := c.Encrypt("token")
	if err != nil || enc != "token" {
		t.Fatalf("expected passthrough, got %q err=%v", enc, err)
	}
}

func TestDecryptLegacyPlaintext(t *testing.T) {
	c, err := New("test-key")
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	dec, err := c.Decrypt("plain-old-token")
	if err != nil || dec != "plain-old-token" {
		t.Fatalf("legacy plaintext should pass through, got %q err=%v", dec, err)
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	c1, _ := New("key-one")
	c2, _ := New("key-two")
	enc, err := c1.Encrypt("secret")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := c2.Decrypt(enc); err == nil {
		t.Fatalf("expected decrypt failure under wrong key")
	}
}
