// Package tripledh implements the triple Diffie-Hellman agreement that
// bootstraps a pairwise ratchet session.
//
// # Overview
//
// The initiator holds an identity key Ia and draws a fresh base key Ea. The
// responder has published an identity key Ib and a one-time key Eb. Both
// sides compute
//
//	S = DH(Ia, Eb) || DH(Ea, Ib) || DH(Ea, Eb)
//
// and expand S with HKDF-SHA256 into a 32-byte root key and the first
// 32-byte chain key.
//
// # Flows
//
// Initiator:
//  1. Obtain the responder's identity key and one unused one-time key.
//  2. Draw a base key pair from caller-supplied randomness.
//  3. Derive root and chain keys with InitiatorSecret.
//  4. Send Ia, Ea and Eb in the header of every message until the responder
//     answers.
//
// Responder:
//  1. Look up the private half of Eb from the header.
//  2. Derive the same keys with ResponderSecret.
//  3. Delete Eb so it can never be used again.
//
// # Security notes
//
// Only public material is sent over the wire. Without a one-time key the
// agreement gives no forward secrecy for the first messages, so this package
// always requires one.
package tripledh
