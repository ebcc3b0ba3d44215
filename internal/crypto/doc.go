// Package crypto exposes the small helpers shared by the protocol and
// service layers.
//
// Contents
//
//   - X25519 key generation from a caller-supplied entropy source and
//     Diffie–Hellman (X25519FromRandom, DH)
//   - Ed25519 keys from a seed, signing and verification over base64 text
//     (Ed25519FromSeed, SignEd25519, VerifyEd25519Base64)
//   - Unpadded base64 in both alphabets, tolerant on decode
//   - Canonical JSON, the exact byte input for signatures
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// Keys use the fixed-size array types defined in internal/domain to avoid
// accidental reallocations.
package crypto
