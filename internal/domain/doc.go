// Package domain defines the key bundles, wire types and persistence
// contracts shared across the module. It contains plain types and
// interfaces only.
package domain
