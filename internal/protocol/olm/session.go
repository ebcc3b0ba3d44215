package olm

import (
	"bytes"
	"errors"

	"github.com/fxamacker/cbor/v2"

	"qe2ee/internal/crypto"
	"qe2ee/internal/domain"
	"qe2ee/internal/protocol/ratchet"
	"qe2ee/internal/protocol/tripledh"
	"qe2ee/internal/util/memzero"
)

// CreateOutboundSessionRandomLength covers the base key and first ratchet key.
const CreateOutboundSessionRandomLength = 64

type sessionState struct {
	_                struct{} `cbor:",toarray"`
	ReceivedMessage  bool
	AliceIdentityKey domain.X25519Public
	AliceBaseKey     domain.X25519Public
	BobOneTimeKey    domain.X25519Public
	Ratchet          ratchet.State
}

// Session is one pairwise ratchet session.
type Session struct {
	lastError
	st sessionState
}

// NewSession returns an empty session for one of the Create calls.
func NewSession() *Session { return &Session{} }

// CreateOutboundRandomLength is the entropy CreateOutbound needs.
func (s *Session) CreateOutboundRandomLength() int { return CreateOutboundSessionRandomLength }

// CreateOutbound starts a session to the holder of theirIdentityKey using
// one of their published one-time keys. Keys are unpadded base64.
func (s *Session) CreateOutbound(acct *Account, theirIdentityKey, theirOneTimeKey string, random []byte) error {
	s.ok()
	if len(random) < CreateOutboundSessionRandomLength {
		return s.fail("create_outbound_session", NotEnoughRandom)
	}
	theirID, ok := decodeKey(theirIdentityKey)
	if !ok {
		return s.fail("create_outbound_session", InvalidBase64)
	}
	theirOTK, ok := decodeKey(theirOneTimeKey)
	if !ok {
		return s.fail("create_outbound_session", InvalidBase64)
	}
	basePriv, basePub, err := crypto.X25519FromRandom(bytes.NewReader(random[:32]))
	if err != nil {
		return s.fail("create_outbound_session", NotEnoughRandom)
	}
	defer memzero.Zero(basePriv[:])
	ratchetPriv, ratchetPub, err := crypto.X25519FromRandom(bytes.NewReader(random[32:64]))
	if err != nil {
		return s.fail("create_outbound_session", NotEnoughRandom)
	}

	rk, ck, err := tripledh.InitiatorSecret(acct.st.CurvePriv, basePriv, theirID, theirOTK)
	if err != nil {
		return s.fail("create_outbound_session", BadMessageKeyID)
	}
	s.Clear()
	s.st = sessionState{
		AliceIdentityKey: acct.st.CurvePub,
		AliceBaseKey:     basePub,
		BobOneTimeKey:    theirOTK,
		Ratchet:          ratchet.InitAsInitiator(rk, ck, ratchetPriv, ratchetPub),
	}
	return nil
}

// CreateInbound starts a session from a received pre-key message body.
func (s *Session) CreateInbound(acct *Account, body string) error {
	return s.createInbound(acct, "", body)
}

// CreateInboundFrom is CreateInbound pinned to the sender's identity key.
func (s *Session) CreateInboundFrom(acct *Account, theirIdentityKey, body string) error {
	if theirIdentityKey == "" {
		s.ok()
		return s.fail("create_inbound_session_from", InvalidBase64)
	}
	return s.createInbound(acct, theirIdentityKey, body)
}

func (s *Session) createInbound(acct *Account, theirIdentityKey, body string) error {
	s.ok()
	const op = "create_inbound_session"
	pm, code := parsePreKey(body)
	if code != Success {
		return s.fail(op, code)
	}
	if theirIdentityKey != "" {
		id, ok := decodeKey(theirIdentityKey)
		if !ok {
			return s.fail(op, InvalidBase64)
		}
		if !equalKey(id, pm.identityKey) {
			return s.fail(op, BadMessageKeyID)
		}
	}
	otk := acct.lookupOneTimeKey(pm.oneTimeKey)
	if otk == nil {
		return s.fail(op, BadMessageKeyID)
	}
	inner, code := decodeNormal(pm.inner)
	if code != Success {
		return s.fail(op, code)
	}
	rk, ck, err := tripledh.ResponderSecret(acct.st.CurvePriv, otk.Priv, pm.identityKey, pm.baseKey)
	if err != nil {
		return s.fail(op, BadMessageKeyID)
	}
	s.Clear()
	// The responder already holds the pre-key message, so it never sends
	// pre-key messages of its own.
	s.st = sessionState{
		AliceIdentityKey: pm.identityKey,
		AliceBaseKey:     pm.baseKey,
		BobOneTimeKey:    pm.oneTimeKey,
		Ratchet:          ratchet.InitAsResponder(rk, ck, inner.header.RatchetPub),
		ReceivedMessage:  true,
	}
	return nil
}

// ID is stable for the lifetime of the session and equal on both ends.
func (s *Session) ID() string {
	return tripledh.SessionID(s.st.AliceIdentityKey, s.st.AliceBaseKey, s.st.BobOneTimeKey)
}

// HasReceivedMessage reports whether the peer has spoken on this session.
// Inbound sessions report true from creation.
func (s *Session) HasReceivedMessage() bool { return s.st.ReceivedMessage }

// MatchesInbound reports whether a pre-key message belongs to this session.
func (s *Session) MatchesInbound(body string) bool {
	return s.matches("", body)
}

// MatchesInboundFrom also requires the sender identity key to match.
func (s *Session) MatchesInboundFrom(theirIdentityKey, body string) bool {
	return s.matches(theirIdentityKey, body)
}

func (s *Session) matches(theirIdentityKey, body string) bool {
	s.ok()
	pm, code := parsePreKey(body)
	if code != Success {
		s.code = code
		return false
	}
	if theirIdentityKey != "" {
		id, ok := decodeKey(theirIdentityKey)
		if !ok || !equalKey(id, s.st.AliceIdentityKey) {
			return false
		}
	}
	return equalKey(pm.identityKey, s.st.AliceIdentityKey) &&
		equalKey(pm.baseKey, s.st.AliceBaseKey) &&
		equalKey(pm.oneTimeKey, s.st.BobOneTimeKey)
}

// EncryptMessageType is PreKey until the first message arrives from the peer.
func (s *Session) EncryptMessageType() MessageType {
	if s.st.ReceivedMessage {
		return Normal
	}
	return PreKey
}

// EncryptRandomLength is the entropy the next Encrypt needs.
func (s *Session) EncryptRandomLength() int { return s.st.Ratchet.EncryptRandomLength() }

// Encrypt seals plaintext and advances the sending chain.
func (s *Session) Encrypt(plaintext, random []byte) (Message, error) {
	s.ok()
	h, ct, err := s.st.Ratchet.Encrypt(random, associatedData, plaintext)
	if err != nil {
		return Message{}, s.fail("encrypt", ratchetCode(err))
	}
	body := encodeNormal(h, ct)
	typ := s.EncryptMessageType()
	if typ == PreKey {
		body = encodePreKey(preKeyMessage{
			oneTimeKey:  s.st.BobOneTimeKey,
			baseKey:     s.st.AliceBaseKey,
			identityKey: s.st.AliceIdentityKey,
			inner:       body,
		})
	}
	return Message{Type: typ, Body: crypto.EncodeBase64(body)}, nil
}

// Decrypt opens msg. A message whose key was already used fails with
// UnknownMessageIndex; tampering fails with BadMessageMac.
func (s *Session) Decrypt(msg Message) ([]byte, error) {
	s.ok()
	raw, err := crypto.DecodeBase64(msg.Body)
	if err != nil {
		return nil, s.fail("decrypt", InvalidBase64)
	}
	switch msg.Type {
	case PreKey:
		pm, code := decodePreKey(raw)
		if code != Success {
			return nil, s.fail("decrypt", code)
		}
		if !equalKey(pm.identityKey, s.st.AliceIdentityKey) ||
			!equalKey(pm.baseKey, s.st.AliceBaseKey) ||
			!equalKey(pm.oneTimeKey, s.st.BobOneTimeKey) {
			return nil, s.fail("decrypt", BadMessageKeyID)
		}
		raw = pm.inner
	case Normal:
	default:
		return nil, s.fail("decrypt", BadMessageFormat)
	}
	nm, code := decodeNormal(raw)
	if code != Success {
		return nil, s.fail("decrypt", code)
	}
	pt, err := s.st.Ratchet.Decrypt(associatedData, nm.header, nm.ciphertext)
	if err != nil {
		return nil, s.fail("decrypt", ratchetCode(err))
	}
	s.st.ReceivedMessage = true
	return pt, nil
}

// PickleLength is the exact length Pickle will return.
func (s *Session) PickleLength() int {
	body, err := encMode.Marshal(&s.st)
	if err != nil {
		return 0
	}
	defer memzero.Zero(body)
	return pickleLength(body)
}

// Pickle encrypts the session under key.
func (s *Session) Pickle(key []byte) ([]byte, error) {
	s.ok()
	body, err := encMode.Marshal(&s.st)
	if err != nil {
		return nil, s.fail("pickle_session", OutputBufferTooSmall)
	}
	defer memzero.Zero(body)
	out, code := sealPickle(sessionPickleVersion, key, body)
	if code != Success {
		return nil, s.fail("pickle_session", code)
	}
	return out, nil
}

// Unpickle replaces the session with the state in pickled.
func (s *Session) Unpickle(key, pickled []byte) error {
	s.ok()
	body, code := openPickle(sessionPickleVersion, key, pickled)
	if code != Success {
		return s.fail("unpickle_session", code)
	}
	defer memzero.Zero(body)
	var st sessionState
	if err := cbor.Unmarshal(body, &st); err != nil {
		return s.fail("unpickle_session", CorruptedPickle)
	}
	s.Clear()
	s.st = st
	return nil
}

// Clear wipes the ratchet state.
func (s *Session) Clear() {
	s.st.Ratchet.Wipe()
	s.st = sessionState{}
}

func parsePreKey(body string) (preKeyMessage, ErrorCode) {
	raw, err := crypto.DecodeBase64(body)
	if err != nil {
		return preKeyMessage{}, InvalidBase64
	}
	return decodePreKey(raw)
}

func decodeKey(s string) (domain.X25519Public, bool) {
	var k domain.X25519Public
	b, err := crypto.DecodeBase64(s)
	if err != nil || len(b) != len(k) {
		return k, false
	}
	copy(k[:], b)
	return k, true
}

func ratchetCode(err error) ErrorCode {
	switch {
	case errors.Is(err, ratchet.ErrNotEnoughRandom):
		return NotEnoughRandom
	case errors.Is(err, ratchet.ErrUnknownMessageIndex):
		return UnknownMessageIndex
	case errors.Is(err, ratchet.ErrBadMessageMac):
		return BadMessageMac
	case errors.Is(err, ratchet.ErrUnknownRatchetKey):
		return BadMessageKeyID
	default:
		return BadMessageFormat
	}
}
