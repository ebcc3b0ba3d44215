// Package session wraps one pairwise ratchet session: encryption,
// decryption and pickling, with secure randomness, logging and metrics.
//
// Sessions are created by the account package (outbound to a peer's
// identity and one-time key, or inbound from a received pre-key message)
// or restored with Unpickle. A Session serialises its own operations.
package session
