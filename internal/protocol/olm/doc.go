// Package olm is the pairwise encryption primitive: an Account holding a
// device's identity keys and one-time keys, and Sessions built from it with
// a triple Diffie-Hellman handshake and a double ratchet.
//
// The API is deliberately low level. Callers query how many random bytes an
// operation needs, supply exactly that much entropy, and read the outcome
// from the returned *Error or from LastErrorCode. Pickles are opaque,
// authenticated and encrypted under a caller-supplied key.
//
// Neither Account nor Session is safe for concurrent use.
package olm
