// Package filecrypto encrypts attachments with AES-256-CTR under a fresh key
// and IV, describes them with EncryptedFileMetadata, and refuses to decrypt
// a body whose SHA-256 does not match the metadata.
package filecrypto
