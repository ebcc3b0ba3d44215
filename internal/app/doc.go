// Package app wires the crypto core for the CLI.
//
// Config is filled from flags with QE2EE_* environment fallbacks. NewWire
// builds the pickle store, metrics, the account with its persister and the
// session cache; the methods on Wire are the operations the commands run.
package app
