package olm

import (
	"encoding/binary"

	"qe2ee/internal/domain"
	"qe2ee/internal/protocol/ratchet"
)

// MessageType distinguishes the first messages of a session from the rest.
type MessageType int

const (
	PreKey MessageType = 0
	Normal MessageType = 1
)

func (t MessageType) String() string {
	switch t {
	case PreKey:
		return "pre-key"
	case Normal:
		return "normal"
	}
	return "unknown"
}

// Message is an encrypted message as carried in events: a type and an
// unpadded base64 body.
type Message struct {
	Type MessageType
	Body string
}

const (
	messageVersion  = 3
	macLength       = 16
	normalHeaderLen = 1 + 32 + 4
	preKeyHeaderLen = 1 + 32*3
)

// associatedData binds the version byte into every message key.
var associatedData = []byte{messageVersion}

type normalMessage struct {
	header     ratchet.Header
	ciphertext []byte
}

type preKeyMessage struct {
	oneTimeKey  domain.X25519Public
	baseKey     domain.X25519Public
	identityKey domain.X25519Public
	inner       []byte
}

func encodeNormal(h ratchet.Header, ct []byte) []byte {
	out := make([]byte, 0, normalHeaderLen+len(ct))
	out = append(out, messageVersion)
	out = append(out, h.RatchetPub[:]...)
	out = binary.BigEndian.AppendUint32(out, h.Counter)
	return append(out, ct...)
}

func decodeNormal(b []byte) (normalMessage, ErrorCode) {
	var m normalMessage
	if len(b) < 1 {
		return m, BadMessageFormat
	}
	if b[0] != messageVersion {
		return m, BadMessageVersion
	}
	if len(b) < normalHeaderLen+macLength {
		return m, BadMessageFormat
	}
	copy(m.header.RatchetPub[:], b[1:33])
	m.header.Counter = binary.BigEndian.Uint32(b[33:37])
	m.ciphertext = b[normalHeaderLen:]
	return m, Success
}

func encodePreKey(p preKeyMessage) []byte {
	out := make([]byte, 0, preKeyHeaderLen+len(p.inner))
	out = append(out, messageVersion)
	out = append(out, p.oneTimeKey[:]...)
	out = append(out, p.baseKey[:]...)
	out = append(out, p.identityKey[:]...)
	return append(out, p.inner...)
}

func decodePreKey(b []byte) (preKeyMessage, ErrorCode) {
	var p preKeyMessage
	if len(b) < 1 {
		return p, BadMessageFormat
	}
	if b[0] != messageVersion {
		return p, BadMessageVersion
	}
	if len(b) < preKeyHeaderLen+normalHeaderLen+macLength {
		return p, BadMessageFormat
	}
	copy(p.oneTimeKey[:], b[1:33])
	copy(p.baseKey[:], b[33:65])
	copy(p.identityKey[:], b[65:97])
	p.inner = b[preKeyHeaderLen:]
	return p, Success
}
