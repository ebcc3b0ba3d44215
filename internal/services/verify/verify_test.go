package verify_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qe2ee/internal/services/account"
	"qe2ee/internal/services/verify"
)

const (
	userID   = "@alice:example.org"
	deviceID = "DEVICEID"
)

func alice(t *testing.T) *account.Account {
	t.Helper()
	a := account.New(userID, deviceID)
	require.NoError(t, a.SetupNewAccount())
	t.Cleanup(a.Close)
	return a
}

func flip(s string) string {
	b := []byte(s)
	if b[0] == 'A' {
		b[0] = 'B'
	} else {
		b[0] = 'A'
	}
	return string(b)
}

func TestVerifyIdentitySignature(t *testing.T) {
	dk, err := alice(t).DeviceKeys()
	require.NoError(t, err)
	assert.True(t, verify.VerifyIdentitySignature(dk, deviceID, userID))

	t.Run("mutated curve key", func(t *testing.T) {
		tampered := dk
		tampered.Keys = make(map[string]string, len(dk.Keys))
		for k, v := range dk.Keys {
			tampered.Keys[k] = v
		}
		tampered.Keys["curve25519:"+deviceID] = flip(dk.Keys["curve25519:"+deviceID])
		assert.False(t, verify.VerifyIdentitySignature(tampered, deviceID, userID))
	})

	t.Run("unknown user", func(t *testing.T) {
		assert.False(t, verify.VerifyIdentitySignature(dk, deviceID, "@mallory:example.org"))
	})

	t.Run("unknown device", func(t *testing.T) {
		assert.False(t, verify.VerifyIdentitySignature(dk, "OTHER", userID))
	})
}

func TestEd25519VerifySignature(t *testing.T) {
	a := alice(t)
	ids, err := a.IdentityKeys()
	require.NoError(t, err)

	payload := map[string]any{
		"room_id": "!room:example.org",
		"body":    "<b>hello</b>",
		"count":   json.Number("42"),
	}
	sig, err := a.SignJSON(payload)
	require.NoError(t, err)

	assert.True(t, verify.Ed25519VerifySignature(ids.Ed25519, payload, sig))
	assert.False(t, verify.Ed25519VerifySignature(ids.Ed25519, payload, ""))

	// Signatures and unsigned data are outside the signed bytes.
	withMeta := map[string]any{
		"room_id":    "!room:example.org",
		"body":       "<b>hello</b>",
		"count":      json.Number("42"),
		"unsigned":   map[string]any{"age": 1234},
		"signatures": map[string]any{userID: map[string]any{"ed25519:" + deviceID: sig}},
	}
	assert.True(t, verify.Ed25519VerifySignature(ids.Ed25519, withMeta, sig))
	assert.Contains(t, withMeta, "signatures", "input must not be modified")

	tampered := map[string]any{"room_id": "!room:example.org", "body": "<b>hellO</b>", "count": json.Number("42")}
	assert.False(t, verify.Ed25519VerifySignature(ids.Ed25519, tampered, sig))

	assert.False(t, verify.Ed25519VerifySignature("not base64!", payload, sig))
}

func TestVerifyJSON(t *testing.T) {
	a := alice(t)
	ids, err := a.IdentityKeys()
	require.NoError(t, err)

	raw := []byte(`{"b":2,"a":1,"unsigned":{"x":true}}`)
	sig, err := a.Sign([]byte(`{"a":1,"b":2}`))
	require.NoError(t, err)

	assert.True(t, verify.VerifyJSON(ids.Ed25519, raw, sig))
	assert.False(t, verify.VerifyJSON(ids.Ed25519, []byte(`{"a":1,"b":3}`), sig))
	assert.False(t, verify.VerifyJSON(ids.Ed25519, []byte(`[1,2]`), sig))
}
