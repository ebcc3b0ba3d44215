package crypto_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qe2ee/internal/crypto"
)

func TestX25519FromRandom_DHAgrees(t *testing.T) {
	aPriv, aPub, err := crypto.X25519FromRandom(bytes.NewReader(bytes.Repeat([]byte{1}, 32)))
	require.NoError(t, err)
	bPriv, bPub, err := crypto.X25519FromRandom(bytes.NewReader(bytes.Repeat([]byte{2}, 32)))
	require.NoError(t, err)

	ab, err := crypto.DH(aPriv, bPub)
	require.NoError(t, err)
	ba, err := crypto.DH(bPriv, aPub)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
}

func TestX25519FromRandom_ShortReader(t *testing.T) {
	_, _, err := crypto.X25519FromRandom(bytes.NewReader(make([]byte, 8)))
	assert.Error(t, err)
}

func TestEd25519_Base64Verify(t *testing.T) {
	priv, pub := crypto.Ed25519FromSeed(bytes.Repeat([]byte{7}, 32))
	msg := []byte("payload")
	sig := crypto.SignEd25519(priv, msg)

	key := crypto.EncodeBase64(pub[:])
	s := crypto.EncodeBase64(sig)
	assert.True(t, crypto.VerifyEd25519Base64(key, msg, s))
	assert.False(t, crypto.VerifyEd25519Base64(key, []byte("payloaD"), s))
	assert.False(t, crypto.VerifyEd25519Base64("", msg, s))
	assert.False(t, crypto.VerifyEd25519Base64(key, msg, "!!"))
}

func TestDecodeBase64_BothAlphabets(t *testing.T) {
	in := []byte{0xfb, 0xff, 0xfe, 0x01}
	for _, s := range []string{
		crypto.EncodeBase64(in),
		crypto.EncodeBase64URL(in),
		"+//+AQ==",
	} {
		out, err := crypto.DecodeBase64(s)
		require.NoError(t, err, s)
		assert.Equal(t, in, out)
	}
}

func TestCanonicalJSON(t *testing.T) {
	in := map[string]any{
		"b":     1,
		"a":     map[string]any{"z": "<>&", "y": true},
		"empty": []any{},
	}
	out, err := crypto.CanonicalJSON(in)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"y":true,"z":"<>&"},"b":1,"empty":[]}`, string(out))
}

func TestCanonicalJSON_LineSeparatorsRaw(t *testing.T) {
	out, err := crypto.CanonicalJSON(map[string]any{
		"body":    "a\u2028b\u2029c",
		"literal": `x\u2028y`,
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"body\":\"a\u2028b\u2029c\",\"literal\":\"x\\\\u2028y\"}", string(out))
}

func TestCanonicalJSON_StructFieldOrder(t *testing.T) {
	type s struct {
		Zeta  string `json:"zeta"`
		Alpha int64  `json:"alpha"`
	}
	out, err := crypto.CanonicalJSON(s{Zeta: "z", Alpha: 12345678901})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":12345678901,"zeta":"z"}`, string(out))
}

func TestFingerprint_Grouped(t *testing.T) {
	fp := crypto.Fingerprint([]byte("key"))
	assert.Len(t, fp, 24)
	assert.Equal(t, fp, crypto.Fingerprint([]byte("key")))
	assert.NotEqual(t, fp, crypto.Fingerprint([]byte("kez")))
}
