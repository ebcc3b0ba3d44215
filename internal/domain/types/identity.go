package types

// IdentityKeys are the public halves of a device's long-term keys, unpadded
// base64 encoded.
type IdentityKeys struct {
	Curve25519 string `json:"curve25519"`
	Ed25519    string `json:"ed25519"`
}
