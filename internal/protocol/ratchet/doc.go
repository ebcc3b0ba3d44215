// Package ratchet implements the pairwise Double Ratchet used by sessions.
//
// A State holds a root key, at most one sending chain and up to
// MaxReceiverChains receiving chains, newest first. Each message advances a
// symmetric HMAC chain so message keys are forward secure. Whenever the peer
// presents a new ratchet public key, both sides mix a fresh DH output into
// the root key. Message keys for messages that arrive out of order are kept
// (up to MaxSkippedKeys) so they can still be read once.
//
// Decrypt works on a copy of the state and commits only on success, so a
// forged or corrupted message never moves the ratchet.
//
// Concurrency: State is NOT safe for concurrent use. Callers must serialise
// access per session.
package ratchet
