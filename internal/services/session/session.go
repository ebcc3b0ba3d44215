package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"qe2ee/internal/domain"
	"qe2ee/internal/logging"
	"qe2ee/internal/metrics"
	"qe2ee/internal/protocol/olm"
	"qe2ee/internal/securemem"
)

// ErrNoPicklingKey is returned when the pickling key buffer is empty.
var ErrNoPicklingKey = errors.New("session: pickling key is empty")

// Session is one pairwise ratchet session.
type Session struct {
	mu      sync.Mutex
	olm     *olm.Session
	log     *logrus.Entry
	metrics *metrics.Metrics
	entropy func(n int) (*securemem.Buffer, error)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger overrides the logger.
func WithLogger(l *logrus.Entry) Option { return func(s *Session) { s.log = l } }

// WithMetrics records operation outcomes.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Session) { s.metrics = m } }

// WithEntropy replaces the random source.
func WithEntropy(e func(n int) (*securemem.Buffer, error)) Option {
	return func(s *Session) { s.entropy = e }
}

// Wrap takes ownership of a primitive session. It is meant for the account
// package, which is the only place sessions are created.
func Wrap(olmSess *olm.Session, opts ...Option) *Session {
	s := &Session{olm: olmSess, entropy: securemem.Random}
	for _, o := range opts {
		o(s)
	}
	s.log = logging.Or(s.log, "session")
	return s
}

// Unpickle restores a session. Failure returns the primitive's *olm.Error.
func Unpickle(pickled []byte, key *securemem.Buffer, opts ...Option) (*Session, error) {
	if key.IsEmpty() {
		return nil, ErrNoPicklingKey
	}
	olmSess := olm.NewSession()
	if err := olmSess.Unpickle(key.Bytes(), pickled); err != nil {
		logging.For("session").WithFields(logging.OperationFields("unpickle", "failed",
			logrus.Fields{"code": olmSess.LastError()})).Warn("cannot unpickle session")
		return nil, err
	}
	return Wrap(olmSess, opts...), nil
}

// Olm exposes the primitive for the owning account. Callers must not use the
// Session concurrently while holding it.
func (s *Session) Olm() *olm.Session { return s.olm }

// SessionID is stable and identical on both ends.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.olm.ID()
}

// HasReceivedMessage reports whether the peer has answered yet.
func (s *Session) HasReceivedMessage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.olm.HasReceivedMessage()
}

// Encrypt seals plaintext, drawing fresh randomness when a ratchet step is due.
func (s *Session) Encrypt(plaintext []byte) (msg olm.Message, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func(start time.Time) { s.metrics.Observe("encrypt", start, err) }(time.Now())

	rnd, err := s.entropy(s.olm.EncryptRandomLength())
	if err != nil {
		return olm.Message{}, fmt.Errorf("%w: session encrypt: %w", domain.ErrInternal, err)
	}
	defer rnd.Clear()

	msg, err = s.olm.Encrypt(plaintext, rnd.Bytes())
	if err != nil {
		s.logFailure("encrypt", err)
		return olm.Message{}, err
	}
	return msg, nil
}

// Decrypt opens msg. Replays and messages too old to have a key fail with
// olm.ErrUnknownMessageIndex, which callers can tell apart from corruption
// (olm.ErrBadMessageMac, olm.ErrBadMessageFormat).
func (s *Session) Decrypt(msg olm.Message) (pt []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func(start time.Time) { s.metrics.Observe("decrypt", start, err) }(time.Now())

	pt, err = s.olm.Decrypt(msg)
	if err != nil {
		s.logFailure("decrypt", err)
		return nil, err
	}
	return pt, nil
}

// MatchesInboundSession reports whether a pre-key message belongs here.
func (s *Session) MatchesInboundSession(msg olm.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return msg.Type == olm.PreKey && s.olm.MatchesInbound(msg.Body)
}

// MatchesInboundSessionFrom also checks the sender's identity key.
func (s *Session) MatchesInboundSessionFrom(theirIdentityKey string, msg olm.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return msg.Type == olm.PreKey && s.olm.MatchesInboundFrom(theirIdentityKey, msg.Body)
}

// Pickle encrypts the session state under key.
func (s *Session) Pickle(key *securemem.Buffer) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key.IsEmpty() {
		return nil, ErrNoPicklingKey
	}
	want := s.olm.PickleLength()
	out, err := s.olm.Pickle(key.Bytes())
	if err != nil {
		s.logFailure("pickle", err)
		return nil, fmt.Errorf("%w: pickle session %s: %w", domain.ErrInternal, s.olm.ID(), err)
	}
	if len(out) != want {
		s.log.WithFields(logrus.Fields{"want": want, "got": len(out), "critical": true}).
			Error("session pickle length mismatch")
		return nil, fmt.Errorf("%w: session pickle length %d, expected %d", domain.ErrInternal, len(out), want)
	}
	return out, nil
}

// LastErrorCode is the outcome of the most recent primitive call.
func (s *Session) LastErrorCode() olm.ErrorCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.olm.LastErrorCode()
}

// LastError is the text form of LastErrorCode.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.olm.LastError()
}

// Close wipes the ratchet state. The session is unusable afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.olm.Clear()
}

func (s *Session) logFailure(op string, err error) {
	fields := logging.OperationFields(op, "failed", logrus.Fields{
		"session_id": s.olm.ID(),
		"code":       olm.CodeOf(err).String(),
	})
	if errors.Is(err, olm.ErrUnknownMessageIndex) {
		s.log.WithFields(fields).Info("message key already used")
		return
	}
	s.log.WithFields(fields).Warn("session operation failed")
}
