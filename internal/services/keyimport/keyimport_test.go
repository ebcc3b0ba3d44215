package keyimport_test

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qe2ee/internal/domain"
	"qe2ee/internal/services/keyimport"
)

const rounds = 1000

type collector struct {
	keys []domain.ExportedRoomKey
	fail error
}

func (c *collector) ImportRoomKey(k domain.ExportedRoomKey) error {
	if c.fail != nil {
		return c.fail
	}
	c.keys = append(c.keys, k)
	return nil
}

func sampleKeys() []domain.ExportedRoomKey {
	return []domain.ExportedRoomKey{
		{
			Algorithm:  domain.MegolmV1AesSha2,
			RoomID:     "!room:example.org",
			SenderKey:  "senderkeysenderkeysenderkeysenderkeysender",
			SessionID:  "session-one",
			SessionKey: "AgAAAAAsessionkey",
			SenderClaimedKeys: map[string]string{
				"ed25519": "claimedclaimedclaimed",
			},
			ForwardingCurve25519KeyChain: []string{},
		},
		{
			Algorithm:                    domain.MegolmV1AesSha2,
			RoomID:                       "!other:example.org",
			SessionID:                    "session-two",
			SessionKey:                   "AgAAAAAanother",
			SenderClaimedKeys:            map[string]string{},
			ForwardingCurve25519KeyChain: []string{"hop1"},
		},
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	svc := keyimport.New()
	data, err := svc.Encrypt(sampleKeys(), "correct horse", rounds)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(data, "-----BEGIN MEGOLM SESSION DATA-----\n"))
	assert.True(t, strings.HasSuffix(data, "-----END MEGOLM SESSION DATA-----\n"))

	var c collector
	require.NoError(t, svc.ImportKeys(data, "correct horse", &c))
	assert.Equal(t, sampleKeys(), c.keys)
}

func TestDecrypt_WrongPassphrase(t *testing.T) {
	svc := keyimport.New()
	data, err := svc.Encrypt(sampleKeys(), "correct horse", rounds)
	require.NoError(t, err)

	_, err = svc.Decrypt(data, "battery staple")
	assert.ErrorIs(t, err, keyimport.ErrInvalidPassphrase)
	assert.Equal(t, keyimport.InvalidPassphrase, keyimport.ResultOf(err))
}

func TestDecrypt_InvalidData(t *testing.T) {
	svc := keyimport.New()
	valid, err := svc.Encrypt(sampleKeys(), "pw", rounds)
	require.NoError(t, err)

	for name, data := range map[string]string{
		"no armour":    "hello",
		"bad base64":   "-----BEGIN MEGOLM SESSION DATA-----\n!!!!\n-----END MEGOLM SESSION DATA-----",
		"too short":    "-----BEGIN MEGOLM SESSION DATA-----\nAQID\n-----END MEGOLM SESSION DATA-----",
		"wrong footer": strings.Replace(valid, "END MEGOLM", "END OLM", 1),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Decrypt(data, "pw")
			assert.ErrorIs(t, err, keyimport.ErrInvalidData)
			assert.Equal(t, keyimport.InvalidData, keyimport.ResultOf(err))
		})
	}
}

func TestDecrypt_RoundsAboveLimit(t *testing.T) {
	svc := keyimport.New()
	valid, err := svc.Encrypt(sampleKeys(), "pw", rounds)
	require.NoError(t, err)

	const (
		begin = "-----BEGIN MEGOLM SESSION DATA-----"
		end   = "-----END MEGOLM SESSION DATA-----"
	)
	inner := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(valid), begin), end)
	raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(inner), ""))
	require.NoError(t, err)
	binary.BigEndian.PutUint32(raw[1+16+16:], 0xffffffff)
	huge := begin + "\n" + base64.StdEncoding.EncodeToString(raw) + "\n" + end

	_, err = svc.Decrypt(huge, "pw")
	assert.ErrorIs(t, err, keyimport.ErrInvalidData)
	assert.Equal(t, keyimport.InvalidData, keyimport.ResultOf(err))

	_, err = svc.Encrypt(sampleKeys(), "pw", keyimport.MaxRounds+1)
	assert.ErrorIs(t, err, keyimport.ErrOther)
}

func TestDecrypt_ToleratesWhitespace(t *testing.T) {
	svc := keyimport.New()
	data, err := svc.Encrypt(sampleKeys(), "pw", rounds)
	require.NoError(t, err)

	crlf := "  \r\n" + strings.ReplaceAll(data, "\n", "\r\n") + "\r\n"
	keys, err := svc.Decrypt(crlf, "pw")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestImportKeys_TargetFailure(t *testing.T) {
	svc := keyimport.New()
	data, err := svc.Encrypt(sampleKeys(), "pw", rounds)
	require.NoError(t, err)

	boom := errors.New("store unavailable")
	err = svc.ImportKeys(data, "pw", &collector{fail: boom})
	assert.ErrorIs(t, err, keyimport.ErrOther)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, keyimport.OtherError, keyimport.ResultOf(err))
}

func TestEncrypt_EmptyExport(t *testing.T) {
	svc := keyimport.New()
	data, err := svc.Encrypt(nil, "pw", rounds)
	require.NoError(t, err)
	keys, err := svc.Decrypt(data, "pw")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestResultOf(t *testing.T) {
	assert.Equal(t, keyimport.Success, keyimport.ResultOf(nil))
	assert.Equal(t, keyimport.OtherError, keyimport.ResultOf(errors.New("x")))
	assert.Equal(t, "invalid_data", keyimport.InvalidData.String())
}
