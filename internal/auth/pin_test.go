package auth

import "testing"

func TestHashPIN(t *testing.T) {
	hash, err := HashPIN("1234")
	if err != nil {
		t.Fatalf("HashPIN: %v", err)
	}
	if hash == "1234" {
		t.Fatal("hash should not equal the PIN")
	}
	if !CheckPIN(hash, "1234") {
		t.Error("expected matching PIN to check")
	}
	if CheckPIN(hash, "4321") {
		t.Error("expected wrong PIN to fail")
	}
}

func TestHashPINRejectsBadFormat(t *testing.T) {
	for _, pin := range []string{"", "123", "12345", "12a4", "    "} {
		if _, err := HashPIN(pin); err != ErrInvalidPINFormat {
			t.Errorf("HashPIN(%q) = %v, want ErrInvalidPINFormat", pin, err)
		}
	}
}
