package domain

import (
	interfaces "qe2ee/internal/domain/interfaces"
	types "qe2ee/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Fingerprint           = types.Fingerprint
	ProtocolVersion       = types.ProtocolVersion
	IdentityKeys          = types.IdentityKeys
	Signatures            = types.Signatures
	UnsignedDeviceInfo    = types.UnsignedDeviceInfo
	DeviceKeys            = types.DeviceKeys
	UnsignedOneTimeKeys   = types.UnsignedOneTimeKeys
	SignedOneTimeKey      = types.SignedOneTimeKey
	OneTimeKeys           = types.OneTimeKeys
	UploadKeysRequest     = types.UploadKeysRequest
	JWK                   = types.JWK
	EncryptedFileMetadata = types.EncryptedFileMetadata
	ExportedRoomKey       = types.ExportedRoomKey
	AccountRecord         = types.AccountRecord
	SessionRecord         = types.SessionRecord
	X25519Public          = types.X25519Public
	X25519Private         = types.X25519Private
	Ed25519Public         = types.Ed25519Public
	Ed25519Private        = types.Ed25519Private
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	AccountStore    = interfaces.AccountStore
	SessionStore    = interfaces.SessionStore
	PickleStore     = interfaces.PickleStore
	RoomKeyImporter = interfaces.RoomKeyImporter
)

// Constants re-exported from the types subpackage.
const (
	OlmV1Curve25519AesSha2 = types.OlmV1Curve25519AesSha2
	MegolmV1AesSha2        = types.MegolmV1AesSha2
	Curve25519             = types.Curve25519
	Ed25519                = types.Ed25519
	SignedCurve25519       = types.SignedCurve25519
	ProtocolLegacy         = types.ProtocolLegacy
	ProtocolV1             = types.ProtocolV1
)

// SupportedAlgorithms are advertised in every device key bundle.
var SupportedAlgorithms = types.SupportedAlgorithms

// KeyID joins an algorithm and an identifier as "<algorithm>:<id>".
func KeyID(algorithm, id string) string { return types.KeyID(algorithm, id) }
