package types

// Algorithm and key-type identifiers used in key bundles and events.
const (
	OlmV1Curve25519AesSha2 = "m.olm.v1.curve25519-aes-sha2"
	MegolmV1AesSha2        = "m.megolm.v1.aes-sha2"

	Curve25519       = "curve25519"
	Ed25519          = "ed25519"
	SignedCurve25519 = "signed_curve25519"
)

// SupportedAlgorithms are advertised in every device key bundle.
var SupportedAlgorithms = []string{OlmV1Curve25519AesSha2, MegolmV1AesSha2}

// KeyID joins an algorithm and an identifier as "<algorithm>:<id>".
func KeyID(algorithm, id string) string { return algorithm + ":" + id }

// ProtocolVersion gates optional fields in published key material.
type ProtocolVersion int

const (
	// ProtocolLegacy publishes signed one-time keys as {key, signatures}.
	ProtocolLegacy ProtocolVersion = iota
	// ProtocolV1 also carries user_id and device_id inside each signed
	// one-time key, covered by its signature.
	ProtocolV1
)

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }
