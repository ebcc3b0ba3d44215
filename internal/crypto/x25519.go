package crypto

import (
	"io"

	"github.com/flynn/noise"

	"qe2ee/internal/domain"
)

// X25519FromRandom derives a Curve25519 key pair from the next 32 bytes of
// rng. The private key is clamped per RFC 7748.
func X25519FromRandom(rng io.Reader) (priv domain.X25519Private, pub domain.X25519Public, err error) {
	kp, err := noise.DH25519.GenerateKeypair(rng)
	if err != nil {
		return priv, pub, err
	}
	copy(priv[:], kp.Private)
	copy(pub[:], kp.Public)
	clamp(&priv)
	for i := range kp.Private {
		kp.Private[i] = 0
	}
	return priv, pub, nil
}

// DH computes X25519 Diffie–Hellman.
func DH(priv domain.X25519Private, pub domain.X25519Public) (out [32]byte, err error) {
	secret, err := noise.DH25519.DH(priv.Slice(), pub.Slice())
	if err != nil {
		return out, err
	}
	copy(out[:], secret)
	return out, nil
}

func clamp(k *domain.X25519Private) {
	kb := k[:]
	kb[0] &= 248
	kb[31] &= 127
	kb[31] |= 64
}
