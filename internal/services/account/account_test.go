package account_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qe2ee/internal/crypto"
	"qe2ee/internal/domain"
	"qe2ee/internal/protocol/olm"
	"qe2ee/internal/securemem"
	"qe2ee/internal/services/account"
)

func newAccount(t *testing.T, user, device string, opts ...account.Option) *account.Account {
	t.Helper()
	a := account.New(user, device, opts...)
	require.NoError(t, a.SetupNewAccount())
	t.Cleanup(a.Close)
	return a
}

func picklingKey(t *testing.T) *securemem.Buffer {
	t.Helper()
	k, err := securemem.NewPicklingKey()
	require.NoError(t, err)
	t.Cleanup(k.Clear)
	return k
}

func firstKey(t *testing.T, a *account.Account) (string, string) {
	t.Helper()
	keys, err := a.OneTimeKeys()
	require.NoError(t, err)
	for id, k := range keys.Curve25519() {
		return id, k
	}
	t.Fatal("no one-time keys")
	return "", ""
}

func TestSetupNewAccount(t *testing.T) {
	var changes []account.Change
	a := newAccount(t, "@alice:example.org", "ALICEDEV",
		account.WithOnChange(func(c account.Change) { changes = append(changes, c) }))

	ids, err := a.IdentityKeys()
	require.NoError(t, err)
	assert.NotEmpty(t, ids.Curve25519)
	assert.NotEmpty(t, ids.Ed25519)

	assert.ErrorIs(t, a.SetupNewAccount(), account.ErrAlreadyInitialised)
	require.Len(t, changes, 1)
	assert.Equal(t, account.Change{AccountID: "@alice:example.org/ALICEDEV", Kind: account.ChangeCreated}, changes[0])
}

func TestNotInitialised(t *testing.T) {
	a := account.New("@bob:example.org", "BOBDEV")
	_, err := a.IdentityKeys()
	assert.ErrorIs(t, err, account.ErrNotInitialised)
	_, err = a.GenerateOneTimeKeys(1)
	assert.ErrorIs(t, err, account.ErrNotInitialised)
	_, err = a.CreateOutboundSession("a", "b")
	assert.ErrorIs(t, err, account.ErrNotInitialised)
}

func TestPickleRoundTrip(t *testing.T) {
	a := newAccount(t, "@alice:example.org", "ALICEDEV")
	_, err := a.GenerateOneTimeKeys(3)
	require.NoError(t, err)
	key := picklingKey(t)

	pickled, err := a.Pickle(key)
	require.NoError(t, err)

	restored := account.New("@alice:example.org", "ALICEDEV")
	require.NoError(t, restored.Unpickle(pickled, key))

	want, _ := a.IdentityKeys()
	got, err := restored.IdentityKeys()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	wantKeys, _ := a.OneTimeKeys()
	gotKeys, err := restored.OneTimeKeys()
	require.NoError(t, err)
	assert.Equal(t, wantKeys, gotKeys)
}

func TestUnpickle_WrongKey(t *testing.T) {
	a := newAccount(t, "@alice:example.org", "ALICEDEV")
	pickled, err := a.Pickle(picklingKey(t))
	require.NoError(t, err)

	restored := account.New("@alice:example.org", "ALICEDEV")
	err = restored.Unpickle(pickled, picklingKey(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, olm.ErrBadAccountKey)
	assert.Equal(t, olm.BadAccountKey, restored.LastErrorCode())

	_, err = restored.IdentityKeys()
	assert.ErrorIs(t, err, account.ErrNotInitialised)
}

func TestPickle_EmptyKey(t *testing.T) {
	a := newAccount(t, "@alice:example.org", "ALICEDEV")
	_, err := a.Pickle(nil)
	assert.ErrorIs(t, err, account.ErrNoPicklingKey)
}

func TestGenerateOneTimeKeys_PoolIsBounded(t *testing.T) {
	a := newAccount(t, "@alice:example.org", "ALICEDEV")
	n, err := a.GenerateOneTimeKeys(60)
	require.NoError(t, err)
	assert.Equal(t, 60, n)
	_, err = a.GenerateOneTimeKeys(60)
	require.NoError(t, err)

	keys, err := a.OneTimeKeys()
	require.NoError(t, err)
	assert.Len(t, keys.Curve25519(), a.MaxNumberOfOneTimeKeys())
}

func TestMarkKeysAsPublished(t *testing.T) {
	var kinds []account.ChangeKind
	a := newAccount(t, "@alice:example.org", "ALICEDEV",
		account.WithOnChange(func(c account.Change) { kinds = append(kinds, c.Kind) }))
	_, err := a.GenerateOneTimeKeys(2)
	require.NoError(t, err)
	require.NoError(t, a.MarkKeysAsPublished())

	keys, err := a.OneTimeKeys()
	require.NoError(t, err)
	assert.Empty(t, keys.Curve25519())
	assert.Equal(t, []account.ChangeKind{
		account.ChangeCreated, account.ChangeOneTimeKeysGenerated, account.ChangeKeysPublished,
	}, kinds)
}

func TestSignOneTimeKeys(t *testing.T) {
	for _, tc := range []struct {
		name    string
		version domain.ProtocolVersion
	}{
		{"legacy", domain.ProtocolLegacy},
		{"v1", domain.ProtocolV1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := newAccount(t, "@alice:example.org", "ALICEDEV", account.WithProtocolVersion(tc.version))
			_, err := a.GenerateOneTimeKeys(2)
			require.NoError(t, err)
			unsigned, err := a.OneTimeKeys()
			require.NoError(t, err)

			signed, err := a.SignOneTimeKeys(unsigned)
			require.NoError(t, err)
			require.Len(t, signed, 2)

			ids, _ := a.IdentityKeys()
			for id, key := range unsigned.Curve25519() {
				otk, ok := signed["signed_curve25519:"+id]
				require.True(t, ok)
				assert.Equal(t, key, otk.Key)

				obj := map[string]any{"key": key}
				if tc.version == domain.ProtocolV1 {
					assert.Equal(t, "@alice:example.org", otk.UserID)
					assert.Equal(t, "ALICEDEV", otk.DeviceID)
					obj["user_id"], obj["device_id"] = otk.UserID, otk.DeviceID
				} else {
					assert.Empty(t, otk.UserID)
				}
				msg, err := crypto.CanonicalJSON(obj)
				require.NoError(t, err)
				sig := otk.Signatures.Get("@alice:example.org", "ed25519:ALICEDEV")
				assert.True(t, crypto.VerifyEd25519Base64(ids.Ed25519, msg, sig))
			}
		})
	}
}

func TestDeviceKeys_SignatureCoversUnsignedObject(t *testing.T) {
	a := newAccount(t, "@alice:example.org", "ALICEDEV")
	dk, err := a.DeviceKeys()
	require.NoError(t, err)

	ids, _ := a.IdentityKeys()
	assert.Equal(t, ids.Curve25519, dk.Keys["curve25519:ALICEDEV"])
	assert.Equal(t, ids.Ed25519, dk.Keys["ed25519:ALICEDEV"])
	assert.Equal(t, domain.SupportedAlgorithms, dk.Algorithms)

	sig := dk.Signatures.Get("@alice:example.org", "ed25519:ALICEDEV")
	standalone, err := a.SignIdentityKeys()
	require.NoError(t, err)
	assert.Equal(t, standalone, sig)

	dk.Signatures = nil
	msg, err := crypto.CanonicalJSON(dk)
	require.NoError(t, err)
	assert.True(t, crypto.VerifyEd25519Base64(ids.Ed25519, msg, sig))
}

func TestCreateUploadKeyRequest(t *testing.T) {
	a := newAccount(t, "@alice:example.org", "ALICEDEV")
	_, err := a.GenerateOneTimeKeys(5)
	require.NoError(t, err)
	keys, err := a.OneTimeKeys()
	require.NoError(t, err)

	req, err := a.CreateUploadKeyRequest(keys)
	require.NoError(t, err)
	require.NotNil(t, req.DeviceKeys)
	assert.Equal(t, "ALICEDEV", req.DeviceKeys.DeviceID)
	assert.Len(t, req.OneTimeKeys, 5)

	body, err := json.Marshal(req)
	require.NoError(t, err)
	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Contains(t, decoded, "device_keys")
	assert.Contains(t, decoded, "one_time_keys")
}

func TestSessionExchange(t *testing.T) {
	alice := newAccount(t, "@alice:example.org", "ALICEDEV")
	bob := newAccount(t, "@bob:example.org", "BOBDEV")
	_, err := bob.GenerateOneTimeKeys(1)
	require.NoError(t, err)
	_, otk := firstKey(t, bob)
	bobIDs, _ := bob.IdentityKeys()
	aliceIDs, _ := alice.IdentityKeys()

	out, err := alice.CreateOutboundSession(bobIDs.Curve25519, otk)
	require.NoError(t, err)
	defer out.Close()

	msg, err := out.Encrypt([]byte("Hello, Bob"))
	require.NoError(t, err)
	assert.Equal(t, olm.PreKey, msg.Type)

	in, err := bob.CreateInboundSessionFrom(aliceIDs.Curve25519, msg)
	require.NoError(t, err)
	defer in.Close()
	assert.Equal(t, out.SessionID(), in.SessionID())
	assert.True(t, in.MatchesInboundSessionFrom(aliceIDs.Curve25519, msg))

	pt, err := in.Decrypt(msg)
	require.NoError(t, err)
	assert.Equal(t, "Hello, Bob", string(pt))

	require.NoError(t, bob.RemoveOneTimeKeys(in))
	err = bob.RemoveOneTimeKeys(in)
	assert.ErrorIs(t, err, olm.ErrBadMessageKeyID)
	assert.Equal(t, olm.BadMessageKeyID, bob.LastErrorCode())

	reply, err := in.Encrypt([]byte("Hi, Alice"))
	require.NoError(t, err)
	assert.Equal(t, olm.Normal, reply.Type)
	pt, err = out.Decrypt(reply)
	require.NoError(t, err)
	assert.Equal(t, "Hi, Alice", string(pt))
	assert.True(t, out.HasReceivedMessage())
}

func TestCreateInboundSession_UnknownOneTimeKey(t *testing.T) {
	alice := newAccount(t, "@alice:example.org", "ALICEDEV")
	bob := newAccount(t, "@bob:example.org", "BOBDEV")
	carol := newAccount(t, "@carol:example.org", "CAROLDEV")
	_, err := bob.GenerateOneTimeKeys(1)
	require.NoError(t, err)
	_, otk := firstKey(t, bob)
	bobIDs, _ := bob.IdentityKeys()

	out, err := alice.CreateOutboundSession(bobIDs.Curve25519, otk)
	require.NoError(t, err)
	msg, err := out.Encrypt([]byte("for bob"))
	require.NoError(t, err)

	_, err = carol.CreateInboundSession(msg)
	assert.ErrorIs(t, err, olm.ErrBadMessageKeyID)
}

func TestCreateOutboundSession_NotEnoughRandom(t *testing.T) {
	short := func(n int) (*securemem.Buffer, error) { return securemem.Random(n / 2) }
	alice := newAccount(t, "@alice:example.org", "ALICEDEV")
	bob := newAccount(t, "@bob:example.org", "BOBDEV")
	_, err := bob.GenerateOneTimeKeys(1)
	require.NoError(t, err)
	_, otk := firstKey(t, bob)
	bobIDs, _ := bob.IdentityKeys()

	starved := account.New("@alice:example.org", "ALICEDEV", account.WithEntropy(short))
	err = starved.SetupNewAccount()
	assert.ErrorIs(t, err, olm.ErrNotEnoughRandom)
	assert.ErrorIs(t, err, domain.ErrInternal)

	key := picklingKey(t)
	pickled, err := alice.Pickle(key)
	require.NoError(t, err)
	require.NoError(t, starved.Unpickle(pickled, key))
	_, err = starved.CreateOutboundSession(bobIDs.Curve25519, otk)
	assert.ErrorIs(t, err, olm.ErrNotEnoughRandom)
}
