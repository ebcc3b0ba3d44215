package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"qe2ee/internal/domain"
	"qe2ee/internal/logging"
	"qe2ee/internal/protocol/olm"
	"qe2ee/internal/services/account"
	"qe2ee/internal/services/session"
)

// EncryptedEventType is the event type of every encrypted event.
const EncryptedEventType = "m.room.encrypted"

var (
	// ErrNotOlm means the event is not Olm-encrypted.
	ErrNotOlm = errors.New("events: not an olm event")
	// ErrNotForUs means the event has no ciphertext for our identity key.
	ErrNotForUs = errors.New("events: no ciphertext for this device")
	// ErrNoSession means no known session decrypts a normal message.
	ErrNoSession = errors.New("events: no session can decrypt the message")
)

// OlmCiphertext is the per-recipient body of an Olm event.
type OlmCiphertext struct {
	Type olm.MessageType `json:"type"`
	Body string          `json:"body"`
}

// Message converts to the primitive's message form.
func (c OlmCiphertext) Message() olm.Message { return olm.Message{Type: c.Type, Body: c.Body} }

// EncryptedEvent is the content of an m.room.encrypted event. Ciphertext is
// a string for Megolm and a map of recipient curve25519 key to
// OlmCiphertext for Olm.
type EncryptedEvent struct {
	Algorithm  string          `json:"algorithm"`
	Ciphertext json.RawMessage `json:"ciphertext"`
	SenderKey  string          `json:"sender_key"`
	DeviceID   string          `json:"device_id,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
}

// OlmCiphertextFor returns the ciphertext addressed to identityKey.
func (e EncryptedEvent) OlmCiphertextFor(identityKey string) (OlmCiphertext, bool, error) {
	if e.Algorithm != domain.OlmV1Curve25519AesSha2 {
		return OlmCiphertext{}, false, ErrNotOlm
	}
	var m map[string]OlmCiphertext
	if err := json.Unmarshal(e.Ciphertext, &m); err != nil {
		return OlmCiphertext{}, false, fmt.Errorf("events: olm ciphertext: %w", err)
	}
	c, ok := m[identityKey]
	return c, ok, nil
}

// OlmPayload is the plaintext inside an Olm message.
type OlmPayload struct {
	Type          string            `json:"type"`
	Content       json.RawMessage   `json:"content"`
	Sender        string            `json:"sender"`
	SenderDevice  string            `json:"sender_device,omitempty"`
	Recipient     string            `json:"recipient"`
	RecipientKeys map[string]string `json:"recipient_keys"`
	Keys          map[string]string `json:"keys"`
}

// Message parses the room message carried in the payload.
func (p OlmPayload) Message() (Content, error) {
	return ParseContent(p.Content)
}

// SessionCache holds the Olm sessions known per sender identity key.
// OnUpdate runs after a session changed state.
type SessionCache struct {
	mu       sync.Mutex
	sessions map[string][]*session.Session
	OnUpdate func(senderKey string, s *session.Session)
}

func NewSessionCache() *SessionCache {
	return &SessionCache{sessions: make(map[string][]*session.Session)}
}

// Add records s for senderKey, newest first.
func (c *SessionCache) Add(senderKey string, s *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[senderKey] = append([]*session.Session{s}, c.sessions[senderKey]...)
}

// For returns the sessions for senderKey, newest first.
func (c *SessionCache) For(senderKey string) []*session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*session.Session(nil), c.sessions[senderKey]...)
}

// Close wipes every cached session.
func (c *SessionCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ss := range c.sessions {
		for _, s := range ss {
			s.Close()
		}
	}
	c.sessions = make(map[string][]*session.Session)
}

func (c *SessionCache) updated(senderKey string, s *session.Session) {
	if c.OnUpdate != nil {
		c.OnUpdate(senderKey, s)
	}
}

// DecryptOlm decrypts the part of ev addressed to ownIdentityKey. Known
// sessions for the sender are tried first; a pre-key message no session
// matches creates an inbound session through acct, whose consumed one-time
// key is then removed.
func DecryptOlm(ev EncryptedEvent, ownIdentityKey string, acct *account.Account, cache *SessionCache) ([]byte, error) {
	log := logging.For("events").WithField("sender_key", ev.SenderKey)

	ct, ok, err := ev.OlmCiphertextFor(ownIdentityKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotForUs
	}
	msg := ct.Message()

	for _, s := range cache.For(ev.SenderKey) {
		if msg.Type == olm.PreKey && !s.MatchesInboundSessionFrom(ev.SenderKey, msg) {
			continue
		}
		pt, err := s.Decrypt(msg)
		if err == nil {
			cache.updated(ev.SenderKey, s)
			return pt, nil
		}
		if msg.Type == olm.PreKey {
			// A matching session that cannot decrypt the message is final.
			return nil, err
		}
		log.WithField("session_id", s.SessionID()).Debug("session did not decrypt message")
	}
	if msg.Type != olm.PreKey {
		return nil, ErrNoSession
	}

	s, err := acct.CreateInboundSessionFrom(ev.SenderKey, msg)
	if err != nil {
		return nil, err
	}
	pt, err := s.Decrypt(msg)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := acct.RemoveOneTimeKeys(s); err != nil {
		log.WithError(err).Warn("one-time key of new inbound session was not in the pool")
	}
	cache.Add(ev.SenderKey, s)
	cache.updated(ev.SenderKey, s)
	log.WithFields(logrus.Fields{"session_id": s.SessionID()}).Info("created inbound olm session")
	return pt, nil
}

// EncryptOlm seals payload for one recipient device.
func EncryptOlm(s *session.Session, ownIdentityKey, recipientIdentityKey string, payload []byte) (EncryptedEvent, error) {
	msg, err := s.Encrypt(payload)
	if err != nil {
		return EncryptedEvent{}, err
	}
	ct, err := json.Marshal(map[string]OlmCiphertext{
		recipientIdentityKey: {Type: msg.Type, Body: msg.Body},
	})
	if err != nil {
		return EncryptedEvent{}, fmt.Errorf("events: %w", err)
	}
	return EncryptedEvent{
		Algorithm:  domain.OlmV1Curve25519AesSha2,
		Ciphertext: ct,
		SenderKey:  ownIdentityKey,
	}, nil
}
