package ratchet

import (
	"qe2ee/internal/domain"
	"qe2ee/internal/util/memzero"
)

const (
	MaxReceiverChains = 5
	MaxSkippedKeys    = 40
	MaxMessageGap     = 2000
)

// ChainKey is one link of a symmetric chain and its position.
type ChainKey struct {
	_     struct{} `cbor:",toarray"`
	Index uint32
	Key   [32]byte
}

// SenderChain carries our current ratchet key pair.
type SenderChain struct {
	_           struct{} `cbor:",toarray"`
	RatchetPriv domain.X25519Private
	RatchetPub  domain.X25519Public
	Chain       ChainKey
}

// ReceiverChain follows one of the peer's ratchet keys.
type ReceiverChain struct {
	_          struct{} `cbor:",toarray"`
	RatchetPub domain.X25519Public
	Chain      ChainKey
}

// SkippedKey is a message key derived ahead of its message.
type SkippedKey struct {
	_          struct{} `cbor:",toarray"`
	RatchetPub domain.X25519Public
	Index      uint32
	Key        [32]byte
}

// State is the full ratchet state of one session.
type State struct {
	_         struct{} `cbor:",toarray"`
	RootKey   [32]byte
	Sender    []SenderChain
	Receivers []ReceiverChain
	Skipped   []SkippedKey
}

// Header identifies the message key used for one message.
type Header struct {
	RatchetPub domain.X25519Public
	Counter    uint32
}

// InitAsInitiator starts a state that can send immediately using the chain
// key from the handshake and our first ratchet key.
func InitAsInitiator(rootKey, chainKey [32]byte, ratchetPriv domain.X25519Private, ratchetPub domain.X25519Public) State {
	return State{
		RootKey: rootKey,
		Sender: []SenderChain{{
			RatchetPriv: ratchetPriv,
			RatchetPub:  ratchetPub,
			Chain:       ChainKey{Key: chainKey},
		}},
	}
}

// InitAsResponder starts a state that can read the initiator's first chain.
// It sends only after a ratchet step.
func InitAsResponder(rootKey, chainKey [32]byte, theirRatchet domain.X25519Public) State {
	return State{
		RootKey: rootKey,
		Receivers: []ReceiverChain{{
			RatchetPub: theirRatchet,
			Chain:      ChainKey{Key: chainKey},
		}},
	}
}

// EncryptRandomLength is the number of random bytes the next Encrypt needs.
func (s *State) EncryptRandomLength() int {
	if len(s.Sender) == 0 {
		return RatchetKeyRandomLength
	}
	return 0
}

func (s *State) clone() State {
	c := State{RootKey: s.RootKey}
	c.Sender = append([]SenderChain(nil), s.Sender...)
	c.Receivers = append([]ReceiverChain(nil), s.Receivers...)
	c.Skipped = append([]SkippedKey(nil), s.Skipped...)
	return c
}

// Wipe zeroes every key held by the state.
func (s *State) Wipe() {
	memzero.Zero(s.RootKey[:])
	for i := range s.Sender {
		memzero.ZeroAll(s.Sender[i].RatchetPriv[:], s.Sender[i].Chain.Key[:])
	}
	for i := range s.Receivers {
		memzero.Zero(s.Receivers[i].Chain.Key[:])
	}
	for i := range s.Skipped {
		memzero.Zero(s.Skipped[i].Key[:])
	}
	s.Sender, s.Receivers, s.Skipped = nil, nil, nil
}
