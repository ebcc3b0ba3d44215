package tripledh

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"qe2ee/internal/crypto"
	"qe2ee/internal/domain"
	"qe2ee/internal/util/memzero"
)

var rootInfo = []byte("OLM_ROOT")

// InitiatorSecret derives the root and first chain key for the initiator.
func InitiatorSecret(
	ourIdentity domain.X25519Private,
	ourBase domain.X25519Private,
	theirIdentity domain.X25519Public,
	theirOneTime domain.X25519Public,
) (rootKey, chainKey [32]byte, err error) {
	dh1, err := crypto.DH(ourIdentity, theirOneTime) // DH(Ia, Eb)
	if err != nil {
		return rootKey, chainKey, err
	}
	dh2, err := crypto.DH(ourBase, theirIdentity) // DH(Ea, Ib)
	if err != nil {
		return rootKey, chainKey, err
	}
	dh3, err := crypto.DH(ourBase, theirOneTime) // DH(Ea, Eb)
	if err != nil {
		return rootKey, chainKey, err
	}
	return expand(dh1, dh2, dh3)
}

// ResponderSecret derives the same keys on the responder side.
func ResponderSecret(
	ourIdentity domain.X25519Private,
	ourOneTime domain.X25519Private,
	theirIdentity domain.X25519Public,
	theirBase domain.X25519Public,
) (rootKey, chainKey [32]byte, err error) {
	dh1, err := crypto.DH(ourOneTime, theirIdentity) // DH(Eb, Ia)
	if err != nil {
		return rootKey, chainKey, err
	}
	dh2, err := crypto.DH(ourIdentity, theirBase) // DH(Ib, Ea)
	if err != nil {
		return rootKey, chainKey, err
	}
	dh3, err := crypto.DH(ourOneTime, theirBase) // DH(Eb, Ea)
	if err != nil {
		return rootKey, chainKey, err
	}
	return expand(dh1, dh2, dh3)
}

// SessionID names a session by the public keys that created it. Both sides
// compute the same value.
func SessionID(initiatorIdentity, base, oneTime domain.X25519Public) string {
	h := sha256.New()
	h.Write(initiatorIdentity[:])
	h.Write(base[:])
	h.Write(oneTime[:])
	return crypto.EncodeBase64(h.Sum(nil))
}

func expand(dh1, dh2, dh3 [32]byte) (rootKey, chainKey [32]byte, err error) {
	secret := make([]byte, 0, 32*3)
	secret = append(secret, dh1[:]...)
	secret = append(secret, dh2[:]...)
	secret = append(secret, dh3[:]...)
	defer func() {
		memzero.ZeroAll(secret, dh1[:], dh2[:], dh3[:])
	}()

	r := hkdf.New(sha256.New, secret, nil, rootInfo)
	if _, err = io.ReadFull(r, rootKey[:]); err != nil {
		return rootKey, chainKey, err
	}
	_, err = io.ReadFull(r, chainKey[:])
	return rootKey, chainKey, err
}
