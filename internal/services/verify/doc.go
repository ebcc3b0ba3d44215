// Package verify checks ed25519 signatures over JSON objects the way peers
// produce them: "signatures" and "unsigned" are removed, the rest is
// serialised as canonical JSON, and the signature must cover exactly those
// bytes.
package verify
