package types

// ExportedRoomKey is one entry of a passphrase-protected key export.
type ExportedRoomKey struct {
	Algorithm                    string            `json:"algorithm"`
	RoomID                       string            `json:"room_id"`
	SenderKey                    string            `json:"sender_key"`
	SessionID                    string            `json:"session_id"`
	SessionKey                   string            `json:"session_key"`
	SenderClaimedKeys            map[string]string `json:"sender_claimed_keys"`
	ForwardingCurve25519KeyChain []string          `json:"forwarding_curve25519_key_chain"`
}
