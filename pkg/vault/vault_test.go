package vault

import (
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	sealed, err := v.EncryptToken("super-secret-session-token")
	if err != nil {
		t.Fatalf("EncryptToken: %v", err)
	}
	if sealed == "" {
		t.Fatal("expected a non-empty sealed token")
	}

	plain, err := v.DecryptToken(sealed)
	if err != nil {
		t.Fatalf("DecryptToken: %v", err)
	}
	if plain != "super-secret-session-token" {
		t.Fatalf("DecryptToken = %q, want original plaintext", plain)
	}
}

func TestEncryptEmptyStringRoundTripsToEmpty(t *testing.T) {
	v, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sealed, err := v.EncryptToken("")
	if err != nil || sealed != "" {
		t.Fatalf("EncryptToken(\"\") = %q, %v; want \"\", nil", sealed, err)
	}
	plain, err := v.DecryptToken("")
	if err != nil || plain != "" {
		t.Fatalf("DecryptToken(\"\") = %q, %v; want \"\", nil", plain, err)
	}
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	v, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sealed, err := v.EncryptToken("session-token")
	if err != nil {
		t.Fatalf("EncryptToken: %v", err)
	}

	tampered := flipLastChar(sealed)
	if _, err := v.DecryptToken(tampered); err == nil {
		t.Fatal("expected DecryptToken to reject a tampered ciphertext")
	}
}

func TestReopenSameDataDirDecryptsWhatThePreviousInstanceSealed(t *testing.T) {
	dir := t.TempDir()
	first, err := Open(dir)
	if err != nil {
		t.Fatalf("Open (first): %v", err)
	}
	sealed, err := first.EncryptToken("persisted-across-restarts")
	if err != nil {
		t.Fatalf("EncryptToken: %v", err)
	}

	second, err := Open(dir)
	if err != nil {
		t.Fatalf("Open (second): %v", err)
	}
	plain, err := second.DecryptToken(sealed)
	if err != nil {
		t.Fatalf("DecryptToken with a reopened vault: %v", err)
	}
	if plain != "persisted-across-restarts" {
		t.Fatalf("DecryptToken = %q, want original plaintext", plain)
	}
}

func flipLastChar(s string) string {
	if s == "" {
		return s
	}
	last := s[len(s)-1]
	flipped := byte('A')
	if last == 'A' {
		flipped = 'B'
	}
	return s[:len(s)-1] + string(flipped)
}

func TestDecryptRejectsGarbageInput(t *testing.T) {
	v, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := v.DecryptToken(strings.Repeat("!", 8)); err == nil {
		t.Fatal("expected DecryptToken to reject non-base64 input")
	}
}
