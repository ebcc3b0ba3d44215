// Package account manages a device's cryptographic account: identity keys,
// the one-time key pool, signatures over published key bundles, and the
// creation of pairwise sessions.
//
// Every mutation reports a Change through the OnChange callback so the
// caller can persist the pickle. All operations on one Account are
// serialised by an internal mutex.
package account
