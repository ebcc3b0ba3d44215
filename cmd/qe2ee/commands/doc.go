// Package commands defines the qe2ee CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init                      Create the device account
//   - identity                  Print identity keys and fingerprint
//   - keys generate <n>         Add one-time keys to the pool
//   - keys upload-request       Print the signed keys/upload body
//   - keys publish              Mark pending one-time keys as published
//   - verify <device-keys.json> Check a device's self-signature
//   - file encrypt|decrypt      Attachment encryption
//   - import-keys <file>        List the sessions in a room key export (stores nothing)
//   - session open|encrypt|decrypt  Pairwise Olm sessions
//
// # Implementation
//
// The root command reads flags, falls back to QE2EE_* environment variables,
// and builds an app.Wire before any subcommand runs. Commands that touch the
// account open it from the configured store; the post-run hook flushes
// pending account changes and wipes key material.
package commands
