package ratchet

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"qe2ee/internal/crypto"
	"qe2ee/internal/domain"
	"qe2ee/internal/util/memzero"
)

// RatchetKeyRandomLength is the entropy needed for one new ratchet key.
const RatchetKeyRandomLength = 32

var (
	ErrNotEnoughRandom     = errors.New("ratchet: not enough random bytes")
	ErrUnknownMessageIndex = errors.New("ratchet: message index already consumed")
	ErrBadMessageMac       = errors.New("ratchet: message authentication failed")
	ErrUnknownRatchetKey   = errors.New("ratchet: no chain for ratchet key")
	ErrMessageGapTooLarge  = errors.New("ratchet: too many skipped messages")
	errChainUninitialised  = errors.New("ratchet: no chain to ratchet from")
)

var (
	ratchetInfo = []byte("OLM_RATCHET")
	keysInfo    = []byte("OLM_KEYS")
)

// Encrypt seals plaintext with the next sending message key. When no
// sending chain exists it first performs a DH ratchet step with a key drawn
// from random. ad is authenticated along with the header.
func (s *State) Encrypt(random, ad, plaintext []byte) (Header, []byte, error) {
	if len(s.Sender) == 0 {
		if len(random) < RatchetKeyRandomLength {
			return Header{}, nil, ErrNotEnoughRandom
		}
		if len(s.Receivers) == 0 {
			return Header{}, nil, errChainUninitialised
		}
		priv, pub, err := crypto.X25519FromRandom(bytes.NewReader(random[:RatchetKeyRandomLength]))
		if err != nil {
			return Header{}, nil, err
		}
		rk, ck, err := rootStep(s.RootKey, priv, s.Receivers[0].RatchetPub)
		if err != nil {
			return Header{}, nil, err
		}
		s.RootKey = rk
		s.Sender = []SenderChain{{RatchetPriv: priv, RatchetPub: pub, Chain: ChainKey{Key: ck}}}
	}

	sc := &s.Sender[0]
	mk := messageKey(sc.Chain.Key)
	h := Header{RatchetPub: sc.RatchetPub, Counter: sc.Chain.Index}
	ct, err := seal(mk, h, ad, plaintext)
	memzero.Zero(mk[:])
	if err != nil {
		return Header{}, nil, err
	}
	advance(&sc.Chain)
	return h, ct, nil
}

// Decrypt opens a message. The state changes only if decryption succeeds.
func (s *State) Decrypt(ad []byte, h Header, ciphertext []byte) ([]byte, error) {
	next := s.clone()
	pt, err := next.decrypt(ad, h, ciphertext)
	if err != nil {
		next.Wipe()
		return nil, err
	}
	s.Wipe()
	*s = next
	return pt, nil
}

func (s *State) decrypt(ad []byte, h Header, ct []byte) ([]byte, error) {
	idx := -1
	for i := range s.Receivers {
		if equal32(s.Receivers[i].RatchetPub[:], h.RatchetPub[:]) {
			idx = i
			break
		}
	}

	if idx < 0 {
		if len(s.Sender) == 0 {
			return nil, ErrUnknownRatchetKey
		}
		rk, ck, err := rootStep(s.RootKey, s.Sender[0].RatchetPriv, h.RatchetPub)
		if err != nil {
			return nil, err
		}
		chain := ReceiverChain{RatchetPub: h.RatchetPub, Chain: ChainKey{Key: ck}}
		pt, err := s.openWithChain(&chain, ad, h, ct)
		if err != nil {
			return nil, err
		}
		s.RootKey = rk
		s.Receivers = append([]ReceiverChain{chain}, s.Receivers...)
		if len(s.Receivers) > MaxReceiverChains {
			s.Receivers = s.Receivers[:MaxReceiverChains]
		}
		// Our next message must ratchet against the new key.
		s.Sender = nil
		return pt, nil
	}

	rc := &s.Receivers[idx]
	if h.Counter < rc.Chain.Index {
		for i, sk := range s.Skipped {
			if sk.Index != h.Counter || !equal32(sk.RatchetPub[:], h.RatchetPub[:]) {
				continue
			}
			pt, err := open(sk.Key, h, ad, ct)
			if err != nil {
				return nil, ErrBadMessageMac
			}
			s.Skipped = append(s.Skipped[:i], s.Skipped[i+1:]...)
			return pt, nil
		}
		return nil, ErrUnknownMessageIndex
	}
	return s.openWithChain(rc, ad, h, ct)
}

// openWithChain advances chain to the header's counter, keeping the keys it
// passes, and opens the message.
func (s *State) openWithChain(chain *ReceiverChain, ad []byte, h Header, ct []byte) ([]byte, error) {
	if h.Counter-chain.Chain.Index > MaxMessageGap {
		return nil, ErrMessageGapTooLarge
	}
	for chain.Chain.Index < h.Counter {
		s.Skipped = append(s.Skipped, SkippedKey{
			RatchetPub: chain.RatchetPub,
			Index:      chain.Chain.Index,
			Key:        messageKey(chain.Chain.Key),
		})
		if len(s.Skipped) > MaxSkippedKeys {
			memzero.Zero(s.Skipped[0].Key[:])
			s.Skipped = s.Skipped[1:]
		}
		advance(&chain.Chain)
	}
	mk := messageKey(chain.Chain.Key)
	pt, err := open(mk, h, ad, ct)
	memzero.Zero(mk[:])
	if err != nil {
		return nil, ErrBadMessageMac
	}
	advance(&chain.Chain)
	return pt, nil
}

// --- helpers ---

func rootStep(rootKey [32]byte, priv domain.X25519Private, pub domain.X25519Public) (newRoot, chainKey [32]byte, err error) {
	dh, err := crypto.DH(priv, pub)
	if err != nil {
		return newRoot, chainKey, err
	}
	defer memzero.Zero(dh[:])
	r := hkdf.New(sha256.New, dh[:], rootKey[:], ratchetInfo)
	if _, err = io.ReadFull(r, newRoot[:]); err != nil {
		return newRoot, chainKey, err
	}
	_, err = io.ReadFull(r, chainKey[:])
	return newRoot, chainKey, err
}

func messageKey(ck [32]byte) (mk [32]byte) {
	m := hmac.New(sha256.New, ck[:])
	m.Write([]byte{0x01})
	copy(mk[:], m.Sum(nil))
	return mk
}

func advance(c *ChainKey) {
	m := hmac.New(sha256.New, c.Key[:])
	m.Write([]byte{0x02})
	copy(c.Key[:], m.Sum(nil))
	c.Index++
}

// aeadFor expands a message key into a cipher key and nonce.
func aeadFor(mk [32]byte) (key, nonce []byte, err error) {
	r := hkdf.New(sha256.New, mk[:], nil, keysInfo)
	out := make([]byte, chacha20poly1305.KeySize+chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, nil, err
	}
	return out[:chacha20poly1305.KeySize], out[chacha20poly1305.KeySize:], nil
}

func seal(mk [32]byte, h Header, ad, plaintext []byte) ([]byte, error) {
	key, nonce, err := aeadFor(mk)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, headerAD(h, ad)), nil
}

func open(mk [32]byte, h Header, ad, ciphertext []byte) ([]byte, error) {
	key, nonce, err := aeadFor(mk)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(key)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ciphertext, headerAD(h, ad))
}

func headerAD(h Header, ad []byte) []byte {
	out := make([]byte, 0, len(ad)+len(h.RatchetPub)+4)
	out = append(out, ad...)
	out = append(out, h.RatchetPub[:]...)
	return binary.BigEndian.AppendUint32(out, h.Counter)
}

func equal32(a, b []byte) bool {
	return len(a) == 32 && len(b) == 32 && subtle.ConstantTimeCompare(a, b) == 1
}
