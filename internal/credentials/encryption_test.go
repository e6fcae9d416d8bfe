package credentials

import (
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	codec, err := NewCodec("test-encryption-key")
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	plaintext := "super-secret-api-key"
	envelope, err := codec.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if !strings.HasPrefix(envelope, "ENC[v1]:") {
		t.Errorf("envelope = %q, want ENC[v1]: prefix", envelope)
	}

	got, err := codec.Decrypt(envelope)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if got != plaintext {
		t.Errorf("Decrypt() = %q, want %q", got, plaintext)
	}
}

func TestDecryptEmptyStringIsNoop(t *testing.T) {
	codec, _ := NewCodec("key")
	got, err := codec.Decrypt("")
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if got != "" {
		t.Errorf("Decrypt(\"\") = %q, want \"\"", got)
	}
}

func TestDecryptMalformedEnvelope(t *testing.T) {
	codec, _ := NewCodec("key")
	if _, err := codec.Decrypt("not-valid-base64!!!"); err == nil {
		t.Error("Decrypt() error = nil, want error for malformed envelope")
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	codecA, _ := NewCodec("key-a")
	codecB, _ := NewCodec("key-b")

	envelope, err := codecA.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := codecB.Decrypt(envelope); err == nil {
		t.Error("Decrypt() with wrong key succeeded, want failure")
	}
}

func TestNewCodecRejectsEmptyKey(t *testing.T) {
	if _, err := NewCodec(""); err == nil {
		t.Error("NewCodec(\"\") error = nil, want error")
	}
}
