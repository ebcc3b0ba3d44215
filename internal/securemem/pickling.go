package securemem

import (
	"errors"

	"golang.org/x/crypto/argon2"
)

// PicklingKeySize is the length of keys protecting pickled state.
const PicklingKeySize = 128

// PicklingSaltSize is the salt length expected by PicklingKeyFromPassphrase.
const PicklingSaltSize = 16

var errBadSalt = errors.New("securemem: invalid pickling salt size")

// NewPicklingKey returns a fresh random pickling key.
func NewPicklingKey() (*Buffer, error) { return New(PicklingKeySize, RandomFill) }

// PicklingKeyFromPassphrase stretches passphrase into a pickling key with
// Argon2id. The same passphrase and salt always give the same key.
func PicklingKeyFromPassphrase(passphrase string, salt []byte) (*Buffer, error) {
	if len(salt) != PicklingSaltSize {
		return nil, errBadSalt
	}
	raw := argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, PicklingKeySize)
	b, err := New(PicklingKeySize, Uninitialized)
	if err != nil {
		return nil, err
	}
	if err := b.LoadFrom(raw); err != nil {
		return nil, err
	}
	return b, nil
}
