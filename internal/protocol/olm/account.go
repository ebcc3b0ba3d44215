package olm

import (
	"bytes"
	"encoding/binary"
	"encoding/json"

	"github.com/fxamacker/cbor/v2"

	"qe2ee/internal/crypto"
	"qe2ee/internal/domain"
	"qe2ee/internal/util/memzero"
)

const (
	// CreateAccountRandomLength seeds the ed25519 and curve25519 identities.
	CreateAccountRandomLength = 64
	// OneTimeKeyRandomLength is the entropy per one-time key.
	OneTimeKeyRandomLength = 32
	// MaxOneTimeKeys bounds the pool; the oldest keys go first.
	MaxOneTimeKeys = 100
)

type oneTimeKey struct {
	_         struct{} `cbor:",toarray"`
	ID        uint32
	Published bool
	Priv      domain.X25519Private
	Pub       domain.X25519Public
}

type accountState struct {
	_           struct{} `cbor:",toarray"`
	EdPriv      domain.Ed25519Private
	EdPub       domain.Ed25519Public
	CurvePriv   domain.X25519Private
	CurvePub    domain.X25519Public
	OneTimeKeys []oneTimeKey
	NextKeyID   uint32
}

// Account holds a device's identity keys and one-time key pool.
type Account struct {
	lastError
	st accountState
}

// NewAccount returns an empty account. Call Create or Unpickle before use.
func NewAccount() *Account { return &Account{} }

// Create generates identity keys from random, which must hold at least
// CreateAccountRandomLength bytes.
func (a *Account) Create(random []byte) error {
	a.ok()
	if len(random) < CreateAccountRandomLength {
		return a.fail("create_account", NotEnoughRandom)
	}
	edPriv, edPub := crypto.Ed25519FromSeed(random[:32])
	curvePriv, curvePub, err := crypto.X25519FromRandom(bytes.NewReader(random[32:64]))
	if err != nil {
		return a.fail("create_account", NotEnoughRandom)
	}
	a.Clear()
	a.st = accountState{EdPriv: edPriv, EdPub: edPub, CurvePriv: curvePriv, CurvePub: curvePub}
	return nil
}

// IdentityKeys returns {"curve25519": ..., "ed25519": ...} as JSON.
func (a *Account) IdentityKeys() []byte {
	a.ok()
	b, _ := json.Marshal(domain.IdentityKeys{
		Curve25519: crypto.EncodeBase64(a.st.CurvePub[:]),
		Ed25519:    crypto.EncodeBase64(a.st.EdPub[:]),
	})
	return b
}

// Sign returns the unpadded base64 ed25519 signature of message.
func (a *Account) Sign(message []byte) string {
	a.ok()
	return crypto.EncodeBase64(crypto.SignEd25519(a.st.EdPriv, message))
}

// MaxNumberOfOneTimeKeys is the pool capacity.
func (a *Account) MaxNumberOfOneTimeKeys() int { return MaxOneTimeKeys }

// GenerateOneTimeKeysRandomLength is the entropy needed for n keys.
func (a *Account) GenerateOneTimeKeysRandomLength(n int) int {
	return n * OneTimeKeyRandomLength
}

// GenerateOneTimeKeys adds n keys to the pool and returns n.
func (a *Account) GenerateOneTimeKeys(n int, random []byte) (int, error) {
	a.ok()
	if n < 0 || len(random) < a.GenerateOneTimeKeysRandomLength(n) {
		return 0, a.fail("generate_one_time_keys", NotEnoughRandom)
	}
	for i := 0; i < n; i++ {
		chunk := random[i*OneTimeKeyRandomLength : (i+1)*OneTimeKeyRandomLength]
		priv, pub, err := crypto.X25519FromRandom(bytes.NewReader(chunk))
		if err != nil {
			return i, a.fail("generate_one_time_keys", NotEnoughRandom)
		}
		a.st.NextKeyID++
		a.st.OneTimeKeys = append(a.st.OneTimeKeys, oneTimeKey{ID: a.st.NextKeyID, Priv: priv, Pub: pub})
	}
	if extra := len(a.st.OneTimeKeys) - MaxOneTimeKeys; extra > 0 {
		for i := 0; i < extra; i++ {
			memzero.Zero(a.st.OneTimeKeys[i].Priv[:])
		}
		a.st.OneTimeKeys = append([]oneTimeKey(nil), a.st.OneTimeKeys[extra:]...)
	}
	return n, nil
}

// OneTimeKeys returns {"curve25519": {keyID: key}} for unpublished keys.
func (a *Account) OneTimeKeys() []byte {
	a.ok()
	keys := map[string]string{}
	for _, k := range a.st.OneTimeKeys {
		if !k.Published {
			keys[KeyIDString(k.ID)] = crypto.EncodeBase64(k.Pub[:])
		}
	}
	b, _ := json.Marshal(map[string]map[string]string{domain.Curve25519: keys})
	return b
}

// MarkKeysAsPublished flags every unpublished key and returns how many.
func (a *Account) MarkKeysAsPublished() int {
	a.ok()
	n := 0
	for i := range a.st.OneTimeKeys {
		if !a.st.OneTimeKeys[i].Published {
			a.st.OneTimeKeys[i].Published = true
			n++
		}
	}
	return n
}

// RemoveOneTimeKeys deletes the one-time key consumed by an inbound session.
func (a *Account) RemoveOneTimeKeys(s *Session) error {
	a.ok()
	for i, k := range a.st.OneTimeKeys {
		if equalKey(k.Pub, s.st.BobOneTimeKey) {
			memzero.Zero(a.st.OneTimeKeys[i].Priv[:])
			a.st.OneTimeKeys = append(a.st.OneTimeKeys[:i], a.st.OneTimeKeys[i+1:]...)
			return nil
		}
	}
	return a.fail("remove_one_time_keys", BadMessageKeyID)
}

func (a *Account) lookupOneTimeKey(pub domain.X25519Public) *oneTimeKey {
	for i := range a.st.OneTimeKeys {
		if equalKey(a.st.OneTimeKeys[i].Pub, pub) {
			return &a.st.OneTimeKeys[i]
		}
	}
	return nil
}

// PickleLength is the exact length Pickle will return.
func (a *Account) PickleLength() int {
	body, err := encMode.Marshal(&a.st)
	if err != nil {
		return 0
	}
	defer memzero.Zero(body)
	return pickleLength(body)
}

// Pickle encrypts the account under key.
func (a *Account) Pickle(key []byte) ([]byte, error) {
	a.ok()
	body, err := encMode.Marshal(&a.st)
	if err != nil {
		return nil, a.fail("pickle_account", OutputBufferTooSmall)
	}
	defer memzero.Zero(body)
	out, code := sealPickle(accountPickleVersion, key, body)
	if code != Success {
		return nil, a.fail("pickle_account", code)
	}
	return out, nil
}

// Unpickle replaces the account with the state in pickled.
func (a *Account) Unpickle(key, pickled []byte) error {
	a.ok()
	body, code := openPickle(accountPickleVersion, key, pickled)
	if code != Success {
		return a.fail("unpickle_account", code)
	}
	defer memzero.Zero(body)
	var st accountState
	if err := cbor.Unmarshal(body, &st); err != nil {
		return a.fail("unpickle_account", CorruptedPickle)
	}
	a.Clear()
	a.st = st
	return nil
}

// Clear wipes all private key material.
func (a *Account) Clear() {
	memzero.ZeroAll(a.st.EdPriv[:], a.st.CurvePriv[:])
	for i := range a.st.OneTimeKeys {
		memzero.Zero(a.st.OneTimeKeys[i].Priv[:])
	}
	a.st = accountState{}
}

// KeyIDString renders a one-time key id the way it is published.
func KeyIDString(id uint32) string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], id)
	return crypto.EncodeBase64(b[:])
}

func equalKey(a, b domain.X25519Public) bool {
	return equal(a[:], b[:])
}
