package olm_test

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qe2ee/internal/protocol/olm"
)

func entropy(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func newAccount(t *testing.T) *olm.Account {
	t.Helper()
	a := olm.NewAccount()
	require.NoError(t, a.Create(entropy(t, olm.CreateAccountRandomLength)))
	return a
}

type identity struct {
	Curve25519 string `json:"curve25519"`
	Ed25519    string `json:"ed25519"`
}

func identityOf(t *testing.T, a *olm.Account) identity {
	t.Helper()
	var id identity
	require.NoError(t, json.Unmarshal(a.IdentityKeys(), &id))
	return id
}

func oneTimeKeys(t *testing.T, a *olm.Account) map[string]string {
	t.Helper()
	var m map[string]map[string]string
	require.NoError(t, json.Unmarshal(a.OneTimeKeys(), &m))
	return m["curve25519"]
}

func anyKey(m map[string]string) string {
	for _, v := range m {
		return v
	}
	return ""
}

// pair sets up Alice with an outbound session to Bob and Bob with an
// account holding the consumed one-time key.
func pair(t *testing.T) (alice, bob *olm.Account, out *olm.Session) {
	t.Helper()
	alice, bob = newAccount(t), newAccount(t)
	_, err := bob.GenerateOneTimeKeys(1, entropy(t, olm.OneTimeKeyRandomLength))
	require.NoError(t, err)

	out = olm.NewSession()
	require.NoError(t, out.CreateOutbound(alice, identityOf(t, bob).Curve25519,
		anyKey(oneTimeKeys(t, bob)), entropy(t, out.CreateOutboundRandomLength())))
	return alice, bob, out
}

func encrypt(t *testing.T, s *olm.Session, text string) olm.Message {
	t.Helper()
	m, err := s.Encrypt([]byte(text), entropy(t, s.EncryptRandomLength()))
	require.NoError(t, err)
	return m
}

func TestAccount_CreateNeedsRandom(t *testing.T) {
	a := olm.NewAccount()
	err := a.Create(make([]byte, 10))
	assert.ErrorIs(t, err, olm.ErrNotEnoughRandom)
	assert.Equal(t, olm.NotEnoughRandom, a.LastErrorCode())
	assert.Equal(t, "NOT_ENOUGH_RANDOM", a.LastError())
}

func TestAccount_IdentityKeysAndSign(t *testing.T) {
	a := newAccount(t)
	id := identityOf(t, a)
	assert.Len(t, id.Curve25519, 43)
	assert.Len(t, id.Ed25519, 43)

	sig := a.Sign([]byte("message"))
	assert.NoError(t, olm.VerifyEd25519(id.Ed25519, []byte("message"), sig))
	assert.ErrorIs(t, olm.VerifyEd25519(id.Ed25519, []byte("massage"), sig), olm.ErrBadSignature)
	assert.ErrorIs(t, olm.VerifyEd25519("%%", []byte("message"), sig), olm.ErrInvalidBase64)
}

func TestAccount_OneTimeKeyLifecycle(t *testing.T) {
	a := newAccount(t)
	n, err := a.GenerateOneTimeKeys(3, entropy(t, a.GenerateOneTimeKeysRandomLength(3)))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	keys := oneTimeKeys(t, a)
	assert.Len(t, keys, 3)
	assert.Contains(t, keys, olm.KeyIDString(1))
	assert.Equal(t, "AAAAAQ", olm.KeyIDString(1))

	assert.Equal(t, 3, a.MarkKeysAsPublished())
	assert.Empty(t, oneTimeKeys(t, a))

	_, err = a.GenerateOneTimeKeys(1, entropy(t, olm.OneTimeKeyRandomLength))
	require.NoError(t, err)
	assert.Equal(t, []string{olm.KeyIDString(4)}, keysOf(oneTimeKeys(t, a)))
}

func keysOf(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestAccount_OneTimeKeyCap(t *testing.T) {
	a := newAccount(t)
	total := olm.MaxOneTimeKeys + 5
	_, err := a.GenerateOneTimeKeys(total, entropy(t, a.GenerateOneTimeKeysRandomLength(total)))
	require.NoError(t, err)

	keys := oneTimeKeys(t, a)
	assert.Len(t, keys, olm.MaxOneTimeKeys)
	assert.NotContains(t, keys, olm.KeyIDString(1))
	assert.Contains(t, keys, olm.KeyIDString(uint32(total)))
}

func TestAccount_GenerateNotEnoughRandom(t *testing.T) {
	a := newAccount(t)
	_, err := a.GenerateOneTimeKeys(2, entropy(t, olm.OneTimeKeyRandomLength))
	assert.ErrorIs(t, err, olm.ErrNotEnoughRandom)
}

func TestAccount_PickleRoundTrip(t *testing.T) {
	a := newAccount(t)
	_, err := a.GenerateOneTimeKeys(2, entropy(t, a.GenerateOneTimeKeysRandomLength(2)))
	require.NoError(t, err)
	key := []byte("pickle key")

	p, err := a.Pickle(key)
	require.NoError(t, err)
	assert.Equal(t, a.PickleLength(), len(p))

	b := olm.NewAccount()
	require.NoError(t, b.Unpickle(key, p))
	assert.Equal(t, a.IdentityKeys(), b.IdentityKeys())
	assert.Equal(t, a.OneTimeKeys(), b.OneTimeKeys())
}

func TestAccount_UnpickleFailures(t *testing.T) {
	a := newAccount(t)
	p, err := a.Pickle([]byte("right"))
	require.NoError(t, err)

	b := olm.NewAccount()
	assert.ErrorIs(t, b.Unpickle([]byte("wrong"), p), olm.ErrBadAccountKey)
	assert.ErrorIs(t, b.Unpickle([]byte("right"), []byte("***")), olm.ErrInvalidBase64)
	assert.ErrorIs(t, b.Unpickle([]byte("right"), []byte("AAAA")), olm.ErrCorruptedPickle)

	tampered := append([]byte(nil), p...)
	tampered[len(tampered)-3] ^= 0x01
	err = b.Unpickle([]byte("right"), tampered)
	assert.True(t, errors.Is(err, olm.ErrBadAccountKey) || errors.Is(err, olm.ErrInvalidBase64), err)
}

func TestSession_ExchangeBothWays(t *testing.T) {
	alice, bob, out := pair(t)

	first := encrypt(t, out, "hello bob")
	assert.Equal(t, olm.PreKey, first.Type)

	in := olm.NewSession()
	require.NoError(t, in.CreateInboundFrom(bob, identityOf(t, alice).Curve25519, first.Body))
	assert.Equal(t, out.ID(), in.ID())
	assert.True(t, in.MatchesInbound(first.Body))

	pt, err := in.Decrypt(first)
	require.NoError(t, err)
	assert.Equal(t, "hello bob", string(pt))
	require.NoError(t, bob.RemoveOneTimeKeys(in))

	reply := encrypt(t, in, "hello alice")
	assert.Equal(t, olm.Normal, reply.Type)
	pt, err = out.Decrypt(reply)
	require.NoError(t, err)
	assert.Equal(t, "hello alice", string(pt))

	next := encrypt(t, out, "again")
	assert.Equal(t, olm.Normal, next.Type)
	pt, err = in.Decrypt(next)
	require.NoError(t, err)
	assert.Equal(t, "again", string(pt))
}

func TestSession_InboundEncryptsBeforeDecrypt(t *testing.T) {
	alice, bob, out := pair(t)
	first := encrypt(t, out, "hello bob")

	in := olm.NewSession()
	require.NoError(t, in.CreateInboundFrom(bob, identityOf(t, alice).Curve25519, first.Body))
	assert.True(t, in.HasReceivedMessage())

	reply := encrypt(t, in, "early reply")
	assert.Equal(t, olm.Normal, reply.Type)
	assert.False(t, out.HasReceivedMessage())
	pt, err := out.Decrypt(reply)
	require.NoError(t, err)
	assert.Equal(t, "early reply", string(pt))

	pt, err = in.Decrypt(first)
	require.NoError(t, err)
	assert.Equal(t, "hello bob", string(pt))
}

func TestSession_RemoveOneTimeKeysTwice(t *testing.T) {
	_, bob, out := pair(t)
	in := olm.NewSession()
	require.NoError(t, in.CreateInbound(bob, encrypt(t, out, "x").Body))

	require.NoError(t, bob.RemoveOneTimeKeys(in))
	err := bob.RemoveOneTimeKeys(in)
	assert.ErrorIs(t, err, olm.ErrBadMessageKeyID)
	assert.Equal(t, olm.BadMessageKeyID, bob.LastErrorCode())
}

func TestSession_InboundWrongSender(t *testing.T) {
	_, bob, out := pair(t)
	mallory := newAccount(t)
	in := olm.NewSession()
	err := in.CreateInboundFrom(bob, identityOf(t, mallory).Curve25519, encrypt(t, out, "x").Body)
	assert.ErrorIs(t, err, olm.ErrBadMessageKeyID)
}

func TestSession_InboundUnknownOneTimeKey(t *testing.T) {
	_, _, out := pair(t)
	stranger := newAccount(t)
	in := olm.NewSession()
	err := in.CreateInbound(stranger, encrypt(t, out, "x").Body)
	assert.ErrorIs(t, err, olm.ErrBadMessageKeyID)
}

func TestSession_DuplicateIsUnknownIndex(t *testing.T) {
	_, bob, out := pair(t)
	m1 := encrypt(t, out, "one")
	m2 := encrypt(t, out, "two")

	in := olm.NewSession()
	require.NoError(t, in.CreateInbound(bob, m1.Body))
	_, err := in.Decrypt(m2)
	require.NoError(t, err)
	_, err = in.Decrypt(m1)
	require.NoError(t, err)

	_, err = in.Decrypt(m1)
	assert.ErrorIs(t, err, olm.ErrUnknownMessageIndex)
	assert.Equal(t, olm.UnknownMessageIndex, in.LastErrorCode())
}

func TestSession_CorruptedIsBadMac(t *testing.T) {
	_, bob, out := pair(t)
	m := encrypt(t, out, "payload")
	in := olm.NewSession()
	require.NoError(t, in.CreateInbound(bob, m.Body))

	raw := []byte(m.Body)
	raw[len(raw)-2] = flip(raw[len(raw)-2])
	_, err := in.Decrypt(olm.Message{Type: m.Type, Body: string(raw)})
	assert.ErrorIs(t, err, olm.ErrBadMessageMac)

	pt, err := in.Decrypt(m)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(pt))
}

func flip(c byte) byte {
	if c == 'A' {
		return 'B'
	}
	return 'A'
}

func TestSession_BadInputs(t *testing.T) {
	_, _, out := pair(t)
	_, err := out.Decrypt(olm.Message{Type: olm.Normal, Body: "!!!"})
	assert.ErrorIs(t, err, olm.ErrInvalidBase64)
	_, err = out.Decrypt(olm.Message{Type: olm.Normal, Body: "BAAA"})
	assert.ErrorIs(t, err, olm.ErrBadMessageVersion)
	_, err = out.Decrypt(olm.Message{Type: olm.Normal, Body: "AwAA"})
	assert.ErrorIs(t, err, olm.ErrBadMessageFormat)

	s := olm.NewSession()
	err = s.CreateOutbound(newAccount(t), "short", "short", entropy(t, 64))
	assert.ErrorIs(t, err, olm.ErrInvalidBase64)
	err = s.CreateOutbound(newAccount(t), "", "", make([]byte, 10))
	assert.ErrorIs(t, err, olm.ErrNotEnoughRandom)
}

func TestSession_PickleMidConversation(t *testing.T) {
	_, bob, out := pair(t)
	m1 := encrypt(t, out, "one")
	in := olm.NewSession()
	require.NoError(t, in.CreateInbound(bob, m1.Body))
	_, err := in.Decrypt(m1)
	require.NoError(t, err)

	key := []byte("session key")
	p, err := in.Pickle(key)
	require.NoError(t, err)
	assert.Equal(t, in.PickleLength(), len(p))

	restored := olm.NewSession()
	require.NoError(t, restored.Unpickle(key, p))
	assert.Equal(t, in.ID(), restored.ID())
	assert.True(t, restored.HasReceivedMessage())

	m2 := encrypt(t, out, "two")
	pt, err := restored.Decrypt(m2)
	require.NoError(t, err)
	assert.Equal(t, "two", string(pt))

	assert.ErrorIs(t, restored.Unpickle([]byte("nope"), p), olm.ErrBadAccountKey)
}

func TestSession_EncryptNeedsRandomAfterReceive(t *testing.T) {
	_, bob, out := pair(t)
	m := encrypt(t, out, "x")
	in := olm.NewSession()
	require.NoError(t, in.CreateInbound(bob, m.Body))
	_, err := in.Decrypt(m)
	require.NoError(t, err)

	require.Equal(t, 32, in.EncryptRandomLength())
	_, err = in.Encrypt([]byte("y"), nil)
	assert.ErrorIs(t, err, olm.ErrNotEnoughRandom)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, olm.Success, olm.CodeOf(nil))
	assert.Equal(t, olm.BadSignature, olm.CodeOf(olm.ErrBadSignature))
	assert.Equal(t, olm.ErrorCode(-1), olm.CodeOf(errors.New("x")))
	assert.Equal(t, "UNKNOWN_ERROR(99)", olm.ErrorCode(99).String())
}
