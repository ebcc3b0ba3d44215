package crypto

import (
	"crypto/ed25519"

	"qe2ee/internal/domain"
)

// Ed25519FromSeed expands a 32-byte seed into a signing key pair.
func Ed25519FromSeed(seed []byte) (priv domain.Ed25519Private, pub domain.Ed25519Public) {
	sk := ed25519.NewKeyFromSeed(seed)
	copy(priv[:], sk)
	copy(pub[:], sk[32:])
	for i := range sk {
		sk[i] = 0
	}
	return priv, pub
}

// SignEd25519 signs msg with priv and returns the signature.
func SignEd25519(priv domain.Ed25519Private, msg []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(priv[:]), msg)
}

// VerifyEd25519 verifies sig over msg with pub.
func VerifyEd25519(pub domain.Ed25519Public, msg, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig)
}

// VerifyEd25519Base64 verifies a base64 signature over msg with a base64
// public key, as they appear in published key bundles.
func VerifyEd25519Base64(key string, msg []byte, sig string) bool {
	k, err := DecodeBase64(key)
	if err != nil || len(k) != ed25519.PublicKeySize {
		return false
	}
	s, err := DecodeBase64(sig)
	if err != nil || len(s) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(k), msg, s)
}
