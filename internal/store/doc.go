// Package store persists pickled accounts and sessions.
//
// Three backends implement domain.PickleStore:
//   - FileStore: JSON files under a home directory, written atomically
//   - RedisStore: one hash per account and per peer
//   - PostgresStore: olm_accounts and olm_sessions tables
//
// Pickles are already encrypted under the caller's pickling key, so the
// backends store them as opaque bytes. Persister turns account change
// notifications into account writes.
package store
