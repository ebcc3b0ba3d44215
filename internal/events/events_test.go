package events_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qe2ee/internal/domain"
	"qe2ee/internal/events"
	"qe2ee/internal/protocol/olm"
	"qe2ee/internal/services/account"
	"qe2ee/internal/services/filecrypto"
	"qe2ee/internal/services/session"
)

func TestParseContent_Registered(t *testing.T) {
	c, err := events.ParseContent([]byte(`{"msgtype":"m.emote","body":"waves","format":"org.matrix.custom.html","formatted_body":"<i>waves</i>"}`))
	require.NoError(t, err)
	text, ok := c.(*events.TextContent)
	require.True(t, ok)
	assert.Equal(t, "m.emote", text.MsgType())
	assert.Equal(t, "waves", text.Body())
	assert.Equal(t, "<i>waves</i>", text.FormattedBody)

	c, err = events.ParseContent([]byte(`{"msgtype":"m.location","body":"here","geo_uri":"geo:1,2"}`))
	require.NoError(t, err)
	assert.Equal(t, "geo:1,2", c.(*events.LocationContent).GeoURI)
}

func TestParseContent_UnknownFallback(t *testing.T) {
	raw := []byte(`{"msgtype":"org.example.custom","body":"fallback","extra":1}`)
	c, err := events.ParseContent(raw)
	require.NoError(t, err)
	u, ok := c.(*events.UnknownContent)
	require.True(t, ok)
	assert.Equal(t, "org.example.custom", u.MsgType())
	assert.Equal(t, "fallback", u.Body())
	assert.JSONEq(t, string(raw), string(u.Raw))
}

func TestParseContent_NoBody(t *testing.T) {
	_, err := events.ParseContent([]byte(`{"msgtype":"m.text"}`))
	assert.ErrorIs(t, err, events.ErrNoBody)
}

func TestRegistry_Register(t *testing.T) {
	r := events.NewRegistry()
	assert.False(t, r.Known("m.text"))
	r.Register("m.text", func() events.Content { return &events.TextContent{} })
	assert.True(t, r.Known("m.text"))
	assert.True(t, events.DefaultRegistry().Known("m.key.verification.request"))
}

func TestFileContent_SourceVariants(t *testing.T) {
	c, err := events.ParseContent([]byte(`{"msgtype":"m.image","body":"cat.png","url":"mxc://example.org/cat","info":{"w":10,"thumbnail_url":"mxc://example.org/thumb"}}`))
	require.NoError(t, err)
	img := c.(*events.FileContent)
	assert.Equal(t, events.PlainURL("mxc://example.org/cat"), img.Source)
	assert.Equal(t, "mxc://example.org/thumb", img.Thumbnail.URL())

	meta, _, err := filecrypto.New().EncryptFile([]byte("secret cat"))
	require.NoError(t, err)
	img.Source = events.SetURL(events.EncryptedFile{Metadata: meta}, "mxc://example.org/enc")

	raw, err := json.Marshal(img)
	require.NoError(t, err)
	var obj map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &obj))
	assert.Contains(t, obj, "file")
	assert.NotContains(t, obj, "url")

	back, err := events.ParseContent(raw)
	require.NoError(t, err)
	src, ok := back.(*events.FileContent).Source.(events.EncryptedFile)
	require.True(t, ok)
	assert.Equal(t, "mxc://example.org/enc", src.URL())
	assert.Equal(t, meta.Key, src.Metadata.Key)
	assert.Equal(t, "mxc://example.org/thumb", back.(*events.FileContent).Thumbnail.URL())
}

func TestSetURL_PlainURL(t *testing.T) {
	got := events.SetURL(events.PlainURL("mxc://a/b"), "mxc://c/d")
	assert.Equal(t, events.PlainURL("mxc://c/d"), got)
}

type device struct {
	acct  *account.Account
	curve string
	cache *events.SessionCache
}

func newDevice(t *testing.T, user, dev string) device {
	t.Helper()
	a := account.New(user, dev)
	require.NoError(t, a.SetupNewAccount())
	ids, err := a.IdentityKeys()
	require.NoError(t, err)
	cache := events.NewSessionCache()
	t.Cleanup(func() {
		cache.Close()
		a.Close()
	})
	return device{acct: a, curve: ids.Curve25519, cache: cache}
}

func outbound(t *testing.T, from, to device) *session.Session {
	t.Helper()
	_, err := to.acct.GenerateOneTimeKeys(1)
	require.NoError(t, err)
	keys, err := to.acct.OneTimeKeys()
	require.NoError(t, err)
	var otk string
	for _, k := range keys.Curve25519() {
		otk = k
	}
	s, err := from.acct.CreateOutboundSession(to.curve, otk)
	require.NoError(t, err)
	from.cache.Add(to.curve, s)
	return s
}

func TestDecryptOlm_Conversation(t *testing.T) {
	alice := newDevice(t, "@alice:example.org", "ALICE")
	bob := newDevice(t, "@bob:example.org", "BOB")
	out := outbound(t, alice, bob)

	var updates int
	bob.cache.OnUpdate = func(senderKey string, _ *session.Session) {
		assert.Equal(t, alice.curve, senderKey)
		updates++
	}

	for _, text := range []string{"one", "two"} {
		ev, err := events.EncryptOlm(out, alice.curve, bob.curve, []byte(text))
		require.NoError(t, err)
		assert.Equal(t, domain.OlmV1Curve25519AesSha2, ev.Algorithm)

		pt, err := events.DecryptOlm(ev, bob.curve, bob.acct, bob.cache)
		require.NoError(t, err)
		assert.Equal(t, text, string(pt))
	}
	assert.Len(t, bob.cache.For(alice.curve), 1, "second pre-key message reuses the session")
	assert.Equal(t, 2, updates)

	keys, err := bob.acct.OneTimeKeys()
	require.NoError(t, err)
	assert.Empty(t, keys.Curve25519(), "consumed one-time key removed")

	in := bob.cache.For(alice.curve)[0]
	reply, err := events.EncryptOlm(in, bob.curve, alice.curve, []byte("three"))
	require.NoError(t, err)
	pt, err := events.DecryptOlm(reply, alice.curve, alice.acct, alice.cache)
	require.NoError(t, err)
	assert.Equal(t, "three", string(pt))
}

func TestDecryptOlm_ReplyBeforeFirstDecrypt(t *testing.T) {
	alice := newDevice(t, "@alice:example.org", "ALICE")
	bob := newDevice(t, "@bob:example.org", "BOB")
	out := outbound(t, alice, bob)

	ev, err := events.EncryptOlm(out, alice.curve, bob.curve, []byte("hello"))
	require.NoError(t, err)
	ct, ok, err := ev.OlmCiphertextFor(bob.curve)
	require.NoError(t, err)
	require.True(t, ok)
	in, err := bob.acct.CreateInboundSessionFrom(alice.curve, ct.Message())
	require.NoError(t, err)
	bob.cache.Add(alice.curve, in)

	reply, err := events.EncryptOlm(in, bob.curve, alice.curve, []byte("early"))
	require.NoError(t, err)
	rct, _, err := reply.OlmCiphertextFor(alice.curve)
	require.NoError(t, err)
	assert.Equal(t, olm.Normal, rct.Type)

	pt, err := events.DecryptOlm(reply, alice.curve, alice.acct, alice.cache)
	require.NoError(t, err)
	assert.Equal(t, "early", string(pt))

	pt, err = events.DecryptOlm(ev, bob.curve, bob.acct, bob.cache)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(pt))
}

func TestDecryptOlm_Errors(t *testing.T) {
	alice := newDevice(t, "@alice:example.org", "ALICE")
	bob := newDevice(t, "@bob:example.org", "BOB")
	out := outbound(t, alice, bob)

	ev, err := events.EncryptOlm(out, alice.curve, bob.curve, []byte("hi"))
	require.NoError(t, err)

	_, err = events.DecryptOlm(ev, "someone-else", bob.acct, bob.cache)
	assert.ErrorIs(t, err, events.ErrNotForUs)

	megolm := ev
	megolm.Algorithm = domain.MegolmV1AesSha2
	_, err = events.DecryptOlm(megolm, bob.curve, bob.acct, bob.cache)
	assert.ErrorIs(t, err, events.ErrNotOlm)

	normal, err := json.Marshal(map[string]events.OlmCiphertext{bob.curve: {Type: olm.Normal, Body: "AwAA"}})
	require.NoError(t, err)
	_, err = events.DecryptOlm(events.EncryptedEvent{
		Algorithm: domain.OlmV1Curve25519AesSha2, Ciphertext: normal, SenderKey: alice.curve,
	}, bob.curve, bob.acct, bob.cache)
	assert.ErrorIs(t, err, events.ErrNoSession)
}
