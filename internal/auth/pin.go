package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidPINFormat = errors.New("PIN must be exactly 4 digits")

// HashPIN validates a kiosk PIN and returns its bcrypt hash.
func HashPIN(pin string) (string, error) {
	if len(pin) != 4 || !isDigits(pin) {
		return "", ErrInvalidPINFormat
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPIN reports whether pin matches hash.
func CheckPIN(hash, pin string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
