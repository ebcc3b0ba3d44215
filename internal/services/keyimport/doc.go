// Package keyimport reads and writes passphrase-protected room key exports.
//
// An export is armoured base64 of
//
//	0x01 | salt[16] | iv[16] | rounds (u32, big endian) | ciphertext | hmac-sha256[32]
//
// PBKDF2-HMAC-SHA512 over the passphrase yields 64 bytes: an AES-256-CTR key
// and an HMAC-SHA256 key. The plaintext is a JSON array of room keys.
package keyimport
