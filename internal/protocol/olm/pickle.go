package olm

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"io"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"qe2ee/internal/util/memzero"
)

const (
	accountPickleVersion uint32 = 1
	sessionPickleVersion uint32 = 1
	pickleOverhead              = 4 + chacha20poly1305.NonceSize + chacha20poly1305.Overhead
)

var pickleInfo = []byte("Pickle")

var encMode = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func pickleLength(body []byte) int {
	return base64.RawStdEncoding.EncodedLen(pickleOverhead + len(body))
}

// sealPickle frames version | nonce | aead(body) and base64 encodes it.
func sealPickle(version uint32, key, body []byte) ([]byte, ErrorCode) {
	aead, code := pickleAEAD(key)
	if code != Success {
		return nil, code
	}
	raw := make([]byte, 4+chacha20poly1305.NonceSize, pickleOverhead+len(body))
	binary.BigEndian.PutUint32(raw, version)
	if _, err := io.ReadFull(rand.Reader, raw[4:]); err != nil {
		return nil, NotEnoughRandom
	}
	raw = aead.Seal(raw, raw[4:], body, raw[:4])
	out := make([]byte, base64.RawStdEncoding.EncodedLen(len(raw)))
	base64.RawStdEncoding.Encode(out, raw)
	return out, Success
}

// openPickle reverses sealPickle.
func openPickle(version uint32, key, pickled []byte) ([]byte, ErrorCode) {
	raw := make([]byte, base64.RawStdEncoding.DecodedLen(len(pickled)))
	n, err := base64.RawStdEncoding.Decode(raw, pickled)
	if err != nil {
		return nil, InvalidBase64
	}
	raw = raw[:n]
	if len(raw) < pickleOverhead {
		return nil, CorruptedPickle
	}
	if v := binary.BigEndian.Uint32(raw); v != version {
		return nil, UnknownPickleVersion
	}
	aead, code := pickleAEAD(key)
	if code != Success {
		return nil, code
	}
	nonce := raw[4 : 4+chacha20poly1305.NonceSize]
	body, err := aead.Open(nil, nonce, raw[4+chacha20poly1305.NonceSize:], raw[:4])
	if err != nil {
		return nil, BadAccountKey
	}
	return body, Success
}

func pickleAEAD(key []byte) (cipher.AEAD, ErrorCode) {
	k := make([]byte, chacha20poly1305.KeySize)
	defer memzero.Zero(k)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, pickleInfo), k); err != nil {
		return nil, OutputBufferTooSmall
	}
	aead, err := chacha20poly1305.New(k)
	if err != nil {
		return nil, BadAccountKey
	}
	return aead, Success
}
