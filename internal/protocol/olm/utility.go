package olm

import (
	"crypto/ed25519"
	"crypto/subtle"

	"qe2ee/internal/crypto"
)

// VerifyEd25519 checks an unpadded base64 signature over message against an
// unpadded base64 public key.
func VerifyEd25519(key string, message []byte, signature string) error {
	k, err := crypto.DecodeBase64(key)
	if err != nil || len(k) != ed25519.PublicKeySize {
		return &Error{Code: InvalidBase64, Op: "ed25519_verify"}
	}
	sig, err := crypto.DecodeBase64(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return &Error{Code: InvalidBase64, Op: "ed25519_verify"}
	}
	if !crypto.VerifyEd25519Base64(key, message, signature) {
		return &Error{Code: BadSignature, Op: "ed25519_verify"}
	}
	return nil
}

func equal(a, b []byte) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare(a, b) == 1
}
