package filecrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"qe2ee/internal/crypto"
	"qe2ee/internal/domain"
	"qe2ee/internal/logging"
	"qe2ee/internal/metrics"
	"qe2ee/internal/securemem"
	"qe2ee/internal/util/memzero"
)

const (
	KeySize = 32
	IVSize  = 16

	Version   = "v2"
	Algorithm = "A256CTR"
	hashName  = "sha256"
)

var (
	// ErrHashMismatch means the ciphertext is not the one the metadata
	// describes. No plaintext is produced.
	ErrHashMismatch = errors.New("filecrypto: ciphertext hash mismatch")
	// ErrBadMetadata covers undecodable keys or IVs and missing hashes.
	ErrBadMetadata = errors.New("filecrypto: malformed file metadata")
)

// Service performs file encryption and decryption.
type Service struct {
	log     *logrus.Entry
	metrics *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *logrus.Entry) Option     { return func(s *Service) { s.log = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// New returns a Service.
func New(opts ...Option) *Service {
	s := &Service{}
	for _, o := range opts {
		o(s)
	}
	s.log = logging.Or(s.log, "filecrypto")
	return s
}

// EncryptFile encrypts plaintext under a fresh key and IV. The returned
// metadata has no URL; the caller sets it after uploading the ciphertext.
func (s *Service) EncryptFile(plaintext []byte) (meta domain.EncryptedFileMetadata, ciphertext []byte, err error) {
	defer func(start time.Time) { s.metrics.Observe("encrypt_file", start, err) }(time.Now())

	key, err := securemem.Random(KeySize)
	if err != nil {
		return meta, nil, fmt.Errorf("%w: file key: %w", domain.ErrInternal, err)
	}
	defer key.Clear()
	iv, err := securemem.Random(IVSize)
	if err != nil {
		return meta, nil, fmt.Errorf("%w: file iv: %w", domain.ErrInternal, err)
	}
	defer iv.Clear()

	ciphertext, err = xorCTR(key.Bytes(), iv.Bytes(), plaintext)
	if err != nil {
		return meta, nil, fmt.Errorf("%w: %w", domain.ErrInternal, err)
	}
	sum := sha256.Sum256(ciphertext)
	meta = domain.EncryptedFileMetadata{
		Key: domain.JWK{
			Kty:    "oct",
			KeyOps: []string{"encrypt", "decrypt"},
			Alg:    Algorithm,
			K:      crypto.EncodeBase64URL(key.Bytes()),
			Ext:    true,
		},
		IV:     crypto.EncodeBase64(iv.Bytes()),
		Hashes: map[string]string{hashName: crypto.EncodeBase64(sum[:])},
		V:      Version,
	}
	s.metrics.AddFileBytes("encrypt", len(plaintext))
	s.log.WithFields(logging.SizeFields("ciphertext", ciphertext)).Debug("file encrypted")
	return meta, ciphertext, nil
}

// DecryptFile checks the ciphertext hash, then decrypts.
func (s *Service) DecryptFile(ciphertext []byte, meta domain.EncryptedFileMetadata) (plaintext []byte, err error) {
	defer func(start time.Time) { s.metrics.Observe("decrypt_file", start, err) }(time.Now())

	want, err := crypto.DecodeBase64(meta.Hashes[hashName])
	if err != nil || len(want) != sha256.Size {
		s.log.WithField("url", meta.URL).Warn("file metadata carries no usable sha256 hash")
		return nil, fmt.Errorf("%w: sha256 hash", ErrBadMetadata)
	}
	got := sha256.Sum256(ciphertext)
	if subtle.ConstantTimeCompare(want, got[:]) != 1 {
		s.log.WithFields(logrus.Fields{"url": meta.URL, "size": len(ciphertext)}).
			Warn("hash verification failed for file")
		return nil, ErrHashMismatch
	}

	key, err := crypto.DecodeBase64(meta.Key.K)
	if err != nil || len(key) != KeySize {
		return nil, fmt.Errorf("%w: key", ErrBadMetadata)
	}
	defer memzero.Zero(key)
	iv, err := crypto.DecodeBase64(meta.IV)
	if err != nil || len(iv) != IVSize {
		return nil, fmt.Errorf("%w: iv", ErrBadMetadata)
	}

	plaintext, err = xorCTR(key, iv, ciphertext)
	if err != nil {
		return nil, err
	}
	s.metrics.AddFileBytes("decrypt", len(plaintext))
	return plaintext, nil
}

func xorCTR(key, iv, in []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("filecrypto: aes: %w", err)
	}
	out := make([]byte, len(in))
	cipher.NewCTR(block, iv).XORKeyStream(out, in)
	return out, nil
}
