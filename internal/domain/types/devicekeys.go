package types

// Signatures maps user id → "<algorithm>:<device id>" → signature.
type Signatures map[string]map[string]string

// Get returns the signature for user and key id, or "".
func (s Signatures) Get(userID, keyID string) string {
	if s == nil {
		return ""
	}
	return s[userID][keyID]
}

// Set records a signature, allocating maps as needed.
func (s *Signatures) Set(userID, keyID, signature string) {
	if *s == nil {
		*s = Signatures{}
	}
	if (*s)[userID] == nil {
		(*s)[userID] = map[string]string{}
	}
	(*s)[userID][keyID] = signature
}

// UnsignedDeviceInfo is mutable metadata excluded from signatures.
type UnsignedDeviceInfo struct {
	DeviceDisplayName string `json:"device_display_name,omitempty"`
}

// DeviceKeys is the signed identity bundle a device publishes.
type DeviceKeys struct {
	UserID     string              `json:"user_id"`
	DeviceID   string              `json:"device_id"`
	Algorithms []string            `json:"algorithms"`
	Keys       map[string]string   `json:"keys"`
	Signatures Signatures          `json:"signatures,omitempty"`
	Unsigned   *UnsignedDeviceInfo `json:"unsigned,omitempty"`
}

// UnsignedOneTimeKeys maps algorithm → key id → public key.
type UnsignedOneTimeKeys map[string]map[string]string

// Curve25519 returns the curve25519 keys, possibly nil.
func (k UnsignedOneTimeKeys) Curve25519() map[string]string { return k[Curve25519] }

// SignedOneTimeKey is a published one-time key with its signature.
type SignedOneTimeKey struct {
	Key        string     `json:"key"`
	UserID     string     `json:"user_id,omitempty"`
	DeviceID   string     `json:"device_id,omitempty"`
	Signatures Signatures `json:"signatures"`
}

// OneTimeKeys maps "signed_curve25519:<key id>" → signed key.
type OneTimeKeys map[string]SignedOneTimeKey

// UploadKeysRequest is the body of a key upload, for the networking layer
// to transmit.
type UploadKeysRequest struct {
	DeviceKeys  *DeviceKeys `json:"device_keys,omitempty"`
	OneTimeKeys OneTimeKeys `json:"one_time_keys,omitempty"`
}
