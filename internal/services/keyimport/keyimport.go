package keyimport

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/pbkdf2"

	"qe2ee/internal/domain"
	"qe2ee/internal/logging"
	"qe2ee/internal/metrics"
	"qe2ee/internal/securemem"
)

const (
	header = "-----BEGIN MEGOLM SESSION DATA-----"
	footer = "-----END MEGOLM SESSION DATA-----"

	formatVersion = 0x01
	saltSize      = 16
	ivSize        = 16
	macSize       = sha256.Size
	derivedSize   = 64
	headerSize    = 1 + saltSize + ivSize + 4

	// DefaultRounds is the PBKDF2 iteration count for new exports.
	DefaultRounds = 500000
	// MaxRounds bounds the iteration count an export may demand.
	MaxRounds     = 10_000_000
	lineWidth     = 76
)

// Service decrypts, imports and produces key exports.
type Service struct {
	log     *logrus.Entry
	metrics *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *logrus.Entry) Option     { return func(s *Service) { s.log = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func New(opts ...Option) *Service {
	s := &Service{}
	for _, o := range opts {
		o(s)
	}
	s.log = logging.Or(s.log, "keyimport")
	return s
}

// ImportKeys decrypts data and hands every key to target. The first target
// failure stops the import and is returned wrapped in ErrOther.
func (s *Service) ImportKeys(data, passphrase string, target domain.RoomKeyImporter) (err error) {
	defer func() { s.metrics.KeyImport(ResultOf(err).String()) }()

	keys, err := s.Decrypt(data, passphrase)
	if err != nil {
		return err
	}
	for i, k := range keys {
		if err := target.ImportRoomKey(k); err != nil {
			s.log.WithFields(logrus.Fields{
				"index":      i,
				"room_id":    k.RoomID,
				"session_id": k.SessionID,
			}).WithError(err).Warn("room key import failed")
			return fmt.Errorf("%w: key %d: %w", ErrOther, i, err)
		}
	}
	s.log.WithField("count", len(keys)).Info("room keys imported")
	return nil
}

// Decrypt opens an export.
func (s *Service) Decrypt(data, passphrase string) (keys []domain.ExportedRoomKey, err error) {
	defer func(start time.Time) { s.metrics.Observe("decrypt_key_export", start, err) }(time.Now())

	raw, err := unarmor(data)
	if err != nil {
		return nil, err
	}
	if len(raw) < headerSize+macSize {
		return nil, fmt.Errorf("%w: export too short (%d bytes)", ErrInvalidData, len(raw))
	}
	if raw[0] != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidData, raw[0])
	}
	salt := raw[1 : 1+saltSize]
	iv := raw[1+saltSize : 1+saltSize+ivSize]
	rounds := binary.BigEndian.Uint32(raw[1+saltSize+ivSize : headerSize])
	if rounds == 0 {
		return nil, fmt.Errorf("%w: zero rounds", ErrInvalidData)
	}
	if rounds > MaxRounds {
		return nil, fmt.Errorf("%w: %d rounds exceeds limit", ErrInvalidData, rounds)
	}
	body := raw[:len(raw)-macSize]
	mac := raw[len(raw)-macSize:]

	derived, err := deriveKeys(passphrase, salt, rounds)
	if err != nil {
		return nil, err
	}
	defer derived.Clear()
	aesKey, macKey := derived.Bytes()[:32], derived.Bytes()[32:]

	h := hmac.New(sha256.New, macKey)
	h.Write(body)
	if !hmac.Equal(h.Sum(nil), mac) {
		s.log.WithFields(logging.OperationFields("decrypt_key_export", "failed")).
			Warn("key export MAC mismatch")
		return nil, ErrInvalidPassphrase
	}

	plaintext, err := xorCTR(aesKey, iv, body[headerSize:])
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(plaintext, &keys); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return keys, nil
}

// Encrypt produces an export of keys readable by Decrypt and by other
// clients.
func (s *Service) Encrypt(keys []domain.ExportedRoomKey, passphrase string, rounds uint32) (out string, err error) {
	defer func(start time.Time) { s.metrics.Observe("encrypt_key_export", start, err) }(time.Now())

	if rounds == 0 {
		rounds = DefaultRounds
	}
	if rounds > MaxRounds {
		return "", fmt.Errorf("%w: %d rounds exceeds limit", ErrOther, rounds)
	}
	if keys == nil {
		keys = []domain.ExportedRoomKey{}
	}
	plaintext, err := json.Marshal(keys)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOther, err)
	}
	nonce, err := securemem.Random(saltSize + ivSize)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrOther, err)
	}
	defer nonce.Clear()
	salt, iv := nonce.Bytes()[:saltSize], nonce.Bytes()[saltSize:]

	derived, err := deriveKeys(passphrase, salt, rounds)
	if err != nil {
		return "", err
	}
	defer derived.Clear()

	ciphertext, err := xorCTR(derived.Bytes()[:32], iv, plaintext)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	buf.WriteByte(formatVersion)
	buf.Write(salt)
	buf.Write(iv)
	_ = binary.Write(&buf, binary.BigEndian, rounds)
	buf.Write(ciphertext)
	h := hmac.New(sha256.New, derived.Bytes()[32:])
	h.Write(buf.Bytes())
	buf.Write(h.Sum(nil))

	return armor(buf.Bytes()), nil
}

func deriveKeys(passphrase string, salt []byte, rounds uint32) (*securemem.Buffer, error) {
	b, err := securemem.New(derivedSize, securemem.Uninitialized)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOther, err)
	}
	if err := b.LoadFrom(pbkdf2.Key([]byte(passphrase), salt, int(rounds), derivedSize, sha512.New)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOther, err)
	}
	return b, nil
}

func xorCTR(key, iv, in []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOther, err)
	}
	out := make([]byte, len(in))
	cipher.NewCTR(block, iv).XORKeyStream(out, in)
	return out, nil
}

func unarmor(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if !strings.HasPrefix(data, header) || !strings.HasSuffix(data, footer) {
		return nil, fmt.Errorf("%w: missing armour", ErrInvalidData)
	}
	inner := strings.TrimSuffix(strings.TrimPrefix(data, header), footer)
	inner = strings.Join(strings.Fields(inner), "")
	raw, err := base64.StdEncoding.DecodeString(inner)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(inner, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return raw, nil
}

func armor(raw []byte) string {
	enc := base64.StdEncoding.EncodeToString(raw)
	var sb strings.Builder
	sb.WriteString(header)
	sb.WriteByte('\n')
	for len(enc) > lineWidth {
		sb.WriteString(enc[:lineWidth])
		sb.WriteByte('\n')
		enc = enc[lineWidth:]
	}
	sb.WriteString(enc)
	sb.WriteByte('\n')
	sb.WriteString(footer)
	sb.WriteByte('\n')
	return sb.String()
}
