package app

import (
	"fmt"
	"unicode"
)

const minPassphraseLength = 12

// ErrWeakPassphrase is returned by CheckPassphrase.
var ErrWeakPassphrase = fmt.Errorf(
	"passphrase is too weak (must be at least %d characters and include upper, lower, "+
		"number, and symbol)",
	minPassphraseLength,
)

// CheckPassphrase enforces the strength policy for new accounts. Existing
// accounts are unlocked with whatever passphrase created them.
func CheckPassphrase(passphrase string) error {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len([]rune(passphrase)) < minPassphraseLength {
		return ErrWeakPassphrase
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	if hasUpper && hasLower && hasDigit && hasSymbol {
		return nil
	}
	return ErrWeakPassphrase
}
