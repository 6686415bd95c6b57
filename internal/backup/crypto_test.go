package backup

import (
	"bytes"
	"errors"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	plaintext := []byte("SQLite format 3\x00 questlog snapshot")

	sealed, err := Seal(plaintext, "correct horse")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !bytes.HasPrefix(sealed, magic) {
		t.Error("sealed snapshot should start with magic header")
	}
	if bytes.Contains(sealed, plaintext) {
		t.Error("sealed snapshot contains plaintext")
	}

	got, err := Open(sealed, "correct horse")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("open = %q, want %q", got, plaintext)
	}
}

func TestSealUsesFreshSalt(t *testing.T) {
	a, err := Seal([]byte("same"), "pass")
	if err != nil {
		t.Fatalf("seal a: %v", err)
	}
	b, err := Seal([]byte("same"), "pass")
	if err != nil {
		t.Fatalf("seal b: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two seals of the same input should differ")
	}
}

func TestOpenWrongPassphrase(t *testing.T) {
	sealed, err := Seal([]byte("data"), "right")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := Open(sealed, "wrong"); !errors.Is(err, ErrBadPassphrase) {
		t.Errorf("open with wrong passphrase: err = %v, want ErrBadPassphrase", err)
	}
}

func TestOpenTampered(t *testing.T) {
	sealed, err := Seal([]byte("data"), "pass")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xff
	if _, err := Open(sealed, "pass"); !errors.Is(err, ErrBadPassphrase) {
		t.Errorf("open tampered: err = %v, want ErrBadPassphrase", err)
	}
}

func TestOpenRejectsForeignData(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte("QLB1")},
		{"bad magic", bytes.Repeat([]byte{0x01}, 64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Open(tt.data, "pass"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSealEmptyPassphrase(t *testing.T) {
	if _, err := Seal([]byte("data"), ""); err == nil {
		t.Error("expected error for empty passphrase")
	}
}
