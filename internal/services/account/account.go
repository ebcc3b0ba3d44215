package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"qe2ee/internal/crypto"
	"qe2ee/internal/domain"
	"qe2ee/internal/logging"
	"qe2ee/internal/metrics"
	"qe2ee/internal/protocol/olm"
	"qe2ee/internal/securemem"
	"qe2ee/internal/services/session"
)

var (
	// ErrAlreadyInitialised is returned by SetupNewAccount and Unpickle on
	// an account that already holds keys.
	ErrAlreadyInitialised = errors.New("account: already initialised")
	// ErrNotInitialised is returned before SetupNewAccount or Unpickle.
	ErrNotInitialised = errors.New("account: not initialised")
	// ErrNoPicklingKey is returned when the pickling key buffer is empty.
	ErrNoPicklingKey = errors.New("account: pickling key is empty")
)

// Account is one device's long-term cryptographic identity.
type Account struct {
	mu       sync.Mutex
	userID   string
	deviceID string
	olm      *olm.Account
	ready    bool
	onChange func(Change)
	log      *logrus.Entry
	metrics  *metrics.Metrics
	version  domain.ProtocolVersion
	entropy  Entropy
}

// New returns an account bound to a user and device. It holds no keys until
// SetupNewAccount or Unpickle succeeds.
func New(userID, deviceID string, opts ...Option) *Account {
	a := &Account{
		userID:   userID,
		deviceID: deviceID,
		olm:      olm.NewAccount(),
		entropy:  securemem.Random,
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = logging.For("account").WithField("account", a.AccountID())
	}
	return a
}

// AccountID is "<user id>/<device id>".
func (a *Account) AccountID() string { return a.userID + "/" + a.deviceID }

func (a *Account) UserID() string   { return a.userID }
func (a *Account) DeviceID() string { return a.deviceID }

// ProtocolVersion is the version used when signing one-time keys.
func (a *Account) ProtocolVersion() domain.ProtocolVersion { return a.version }

// SetupNewAccount generates fresh identity keys.
func (a *Account) SetupNewAccount() (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer func(start time.Time) { a.metrics.Observe("setup_account", start, err) }(time.Now())

	if a.ready {
		return ErrAlreadyInitialised
	}
	rnd, err := a.random(olm.CreateAccountRandomLength)
	if err != nil {
		return a.internal("setup_account", err)
	}
	defer rnd.Clear()

	if err := a.olm.Create(rnd.Bytes()); err != nil {
		return a.internal("setup_account", err)
	}
	a.ready = true
	a.log.WithFields(logging.OperationFields("setup_account", "success")).Info("account created")
	a.notify(ChangeCreated)
	return nil
}

// Unpickle restores the account from a pickle. A wrong key or a corrupted
// pickle returns the primitive's *olm.Error; the account stays uninitialised.
func (a *Account) Unpickle(pickled []byte, key *securemem.Buffer) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer func(start time.Time) { a.metrics.Observe("unpickle_account", start, err) }(time.Now())

	if a.ready {
		return ErrAlreadyInitialised
	}
	if key.IsEmpty() {
		return ErrNoPicklingKey
	}
	if err := a.olm.Unpickle(key.Bytes(), pickled); err != nil {
		a.log.WithFields(logging.OperationFields("unpickle_account", "failed", logrus.Fields{
			"code": a.olm.LastError(),
		})).Warn("cannot unpickle account")
		return err
	}
	a.ready = true
	return nil
}

// Pickle encrypts the account under key.
func (a *Account) Pickle(key *securemem.Buffer) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ready {
		return nil, ErrNotInitialised
	}
	if key.IsEmpty() {
		return nil, ErrNoPicklingKey
	}
	want := a.olm.PickleLength()
	out, err := a.olm.Pickle(key.Bytes())
	if err != nil {
		return nil, a.internal("pickle_account", err)
	}
	if len(out) != want {
		a.log.WithFields(logrus.Fields{"want": want, "got": len(out), "critical": true}).
			Error("account pickle length mismatch")
		return nil, fmt.Errorf("%w: account pickle length %d, expected %d", domain.ErrInternal, len(out), want)
	}
	return out, nil
}

// IdentityKeys returns the public curve25519 and ed25519 keys.
func (a *Account) IdentityKeys() (domain.IdentityKeys, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.identityKeys()
}

func (a *Account) identityKeys() (domain.IdentityKeys, error) {
	var keys domain.IdentityKeys
	if !a.ready {
		return keys, ErrNotInitialised
	}
	if err := json.Unmarshal(a.olm.IdentityKeys(), &keys); err != nil {
		return keys, a.internal("identity_keys", err)
	}
	return keys, nil
}

// Sign returns the base64 ed25519 signature of message.
func (a *Account) Sign(message []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ready {
		return "", ErrNotInitialised
	}
	return a.olm.Sign(message), nil
}

// SignJSON signs the canonical JSON form of v.
func (a *Account) SignJSON(v any) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.signJSON(v)
}

func (a *Account) signJSON(v any) (string, error) {
	if !a.ready {
		return "", ErrNotInitialised
	}
	msg, err := crypto.CanonicalJSON(v)
	if err != nil {
		return "", fmt.Errorf("account: canonical json: %w", err)
	}
	return a.olm.Sign(msg), nil
}

// SignIdentityKeys signs the unsigned device key object.
func (a *Account) SignIdentityKeys() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	dk, err := a.unsignedDeviceKeys()
	if err != nil {
		return "", err
	}
	return a.signJSON(dk)
}

// MaxNumberOfOneTimeKeys is the pool capacity. Generating beyond it evicts
// the oldest keys.
func (a *Account) MaxNumberOfOneTimeKeys() int { return a.olm.MaxNumberOfOneTimeKeys() }

// GenerateOneTimeKeys adds n keys to the pool and returns how many were
// generated.
func (a *Account) GenerateOneTimeKeys(n int) (generated int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer func(start time.Time) { a.metrics.Observe("generate_one_time_keys", start, err) }(time.Now())

	if !a.ready {
		return 0, ErrNotInitialised
	}
	rnd, err := a.random(a.olm.GenerateOneTimeKeysRandomLength(n))
	if err != nil {
		return 0, a.internal("generate_one_time_keys", err)
	}
	defer rnd.Clear()

	generated, err = a.olm.GenerateOneTimeKeys(n, rnd.Bytes())
	if err != nil {
		return generated, a.internal("generate_one_time_keys", err)
	}
	a.log.WithFields(logging.OperationFields("generate_one_time_keys", "success",
		logrus.Fields{"count": generated})).Debug("one-time keys generated")
	a.notify(ChangeOneTimeKeysGenerated)
	return generated, nil
}

// OneTimeKeys lists the unpublished one-time keys.
func (a *Account) OneTimeKeys() (domain.UnsignedOneTimeKeys, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ready {
		return nil, ErrNotInitialised
	}
	var keys domain.UnsignedOneTimeKeys
	if err := json.Unmarshal(a.olm.OneTimeKeys(), &keys); err != nil {
		return nil, a.internal("one_time_keys", err)
	}
	return keys, nil
}

// SignOneTimeKeys signs every curve25519 key in keys. The signature covers
// the canonical JSON of the published object without its signatures, so
// under ProtocolV1 it also covers user_id and device_id.
func (a *Account) SignOneTimeKeys(keys domain.UnsignedOneTimeKeys) (domain.OneTimeKeys, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.signOneTimeKeys(keys)
}

func (a *Account) signOneTimeKeys(keys domain.UnsignedOneTimeKeys) (domain.OneTimeKeys, error) {
	if !a.ready {
		return nil, ErrNotInitialised
	}
	signingKeyID := domain.KeyID(domain.Ed25519, a.deviceID)
	out := make(domain.OneTimeKeys, len(keys.Curve25519()))
	for id, key := range keys.Curve25519() {
		otk := domain.SignedOneTimeKey{Key: key}
		unsigned := map[string]any{"key": key}
		if a.version >= domain.ProtocolV1 {
			otk.UserID, otk.DeviceID = a.userID, a.deviceID
			unsigned["user_id"] = a.userID
			unsigned["device_id"] = a.deviceID
		}
		sig, err := a.signJSON(unsigned)
		if err != nil {
			return nil, err
		}
		otk.Signatures.Set(a.userID, signingKeyID, sig)
		out[domain.KeyID(domain.SignedCurve25519, id)] = otk
	}
	return out, nil
}

// RemoveOneTimeKeys drops the one-time key an inbound session consumed.
// Failure is logged and returned; the pool is unchanged.
func (a *Account) RemoveOneTimeKeys(s *session.Session) (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer func(start time.Time) { a.metrics.Observe("remove_one_time_keys", start, err) }(time.Now())

	if !a.ready {
		return ErrNotInitialised
	}
	if err := a.olm.RemoveOneTimeKeys(s.Olm()); err != nil {
		a.log.WithFields(logging.OperationFields("remove_one_time_keys", "failed", logrus.Fields{
			"session_id": s.Olm().ID(),
			"code":       a.olm.LastError(),
		})).Warn("failed to remove one-time key for session")
		return err
	}
	a.notify(ChangeOneTimeKeyRemoved)
	return nil
}

// CreateInboundSession builds a session from a received pre-key message.
// The one-time key it used stays in the pool until RemoveOneTimeKeys.
func (a *Account) CreateInboundSession(msg olm.Message) (*session.Session, error) {
	return a.createInbound("", msg)
}

// CreateInboundSessionFrom also requires the message to come from
// theirIdentityKey.
func (a *Account) CreateInboundSessionFrom(theirIdentityKey string, msg olm.Message) (*session.Session, error) {
	return a.createInbound(theirIdentityKey, msg)
}

func (a *Account) createInbound(theirIdentityKey string, msg olm.Message) (s *session.Session, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer func(start time.Time) { a.metrics.Observe("create_inbound_session", start, err) }(time.Now())

	if !a.ready {
		return nil, ErrNotInitialised
	}
	if msg.Type != olm.PreKey {
		a.log.WithField("message_type", msg.Type).
			Warn("inbound session from a non pre-key message; trying anyway")
	}
	olmSess := olm.NewSession()
	if theirIdentityKey == "" {
		err = olmSess.CreateInbound(a.olm, msg.Body)
	} else {
		err = olmSess.CreateInboundFrom(a.olm, theirIdentityKey, msg.Body)
	}
	if err != nil {
		a.log.WithFields(logging.OperationFields("create_inbound_session", "failed", logrus.Fields{
			"code": olmSess.LastError(),
		})).Warn("failed to create inbound session")
		return nil, err
	}
	return session.Wrap(olmSess, a.sessionOptions()...), nil
}

// CreateOutboundSession starts a session to a peer's identity key and one of
// their signed one-time keys. olm.ErrNotEnoughRandom is retryable.
func (a *Account) CreateOutboundSession(theirIdentityKey, theirOneTimeKey string) (s *session.Session, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	defer func(start time.Time) { a.metrics.Observe("create_outbound_session", start, err) }(time.Now())

	if !a.ready {
		return nil, ErrNotInitialised
	}
	olmSess := olm.NewSession()
	rnd, err := a.random(olmSess.CreateOutboundRandomLength())
	if err != nil {
		return nil, a.internal("create_outbound_session", err)
	}
	defer rnd.Clear()

	if err := olmSess.CreateOutbound(a.olm, theirIdentityKey, theirOneTimeKey, rnd.Bytes()); err != nil {
		entry := a.log.WithFields(logging.OperationFields("create_outbound_session", "failed", logrus.Fields{
			"code": olmSess.LastError(),
		}))
		if errors.Is(err, olm.ErrNotEnoughRandom) {
			entry.Warn("not enough randomness for outbound session; retry")
		} else {
			entry.Error("failed to create outbound session")
		}
		return nil, err
	}
	return session.Wrap(olmSess, a.sessionOptions()...), nil
}

// MarkKeysAsPublished flags all current one-time keys as published.
func (a *Account) MarkKeysAsPublished() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.ready {
		return ErrNotInitialised
	}
	n := a.olm.MarkKeysAsPublished()
	a.log.WithField("count", n).Debug("one-time keys marked as published")
	a.notify(ChangeKeysPublished)
	return nil
}

// DeviceKeys returns the signed device key bundle.
func (a *Account) DeviceKeys() (domain.DeviceKeys, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deviceKeys()
}

func (a *Account) unsignedDeviceKeys() (domain.DeviceKeys, error) {
	ids, err := a.identityKeys()
	if err != nil {
		return domain.DeviceKeys{}, err
	}
	return domain.DeviceKeys{
		UserID:     a.userID,
		DeviceID:   a.deviceID,
		Algorithms: append([]string(nil), domain.SupportedAlgorithms...),
		Keys: map[string]string{
			domain.KeyID(domain.Curve25519, a.deviceID): ids.Curve25519,
			domain.KeyID(domain.Ed25519, a.deviceID):    ids.Ed25519,
		},
	}, nil
}

func (a *Account) deviceKeys() (domain.DeviceKeys, error) {
	dk, err := a.unsignedDeviceKeys()
	if err != nil {
		return dk, err
	}
	sig, err := a.signJSON(dk)
	if err != nil {
		return dk, err
	}
	dk.Signatures.Set(a.userID, domain.KeyID(domain.Ed25519, a.deviceID), sig)
	return dk, nil
}

// CreateUploadKeyRequest assembles the signed device keys and the given
// one-time keys, signed, into an upload request body.
func (a *Account) CreateUploadKeyRequest(oneTimeKeys domain.UnsignedOneTimeKeys) (domain.UploadKeysRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	dk, err := a.deviceKeys()
	if err != nil {
		return domain.UploadKeysRequest{}, err
	}
	signed, err := a.signOneTimeKeys(oneTimeKeys)
	if err != nil {
		return domain.UploadKeysRequest{}, err
	}
	return domain.UploadKeysRequest{DeviceKeys: &dk, OneTimeKeys: signed}, nil
}

// LastErrorCode is the outcome of the most recent primitive call.
func (a *Account) LastErrorCode() olm.ErrorCode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.olm.LastErrorCode()
}

// LastError is the text form of LastErrorCode.
func (a *Account) LastError() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.olm.LastError()
}

// Close wipes the keys. The account must be set up or unpickled again
// before further use.
func (a *Account) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.olm.Clear()
	a.ready = false
}

func (a *Account) random(n int) (*securemem.Buffer, error) {
	b, err := a.entropy(n)
	if err != nil {
		a.log.WithField("want", n).Error("secure random allocation failed")
		return nil, err
	}
	return b, nil
}

func (a *Account) internal(op string, err error) error {
	a.log.WithFields(logging.OperationFields(op, "failed", logrus.Fields{
		"code": olm.CodeOf(err).String(),
	})).Error("account operation failed")
	return fmt.Errorf("%w: %s %s: %w", domain.ErrInternal, op, a.AccountID(), err)
}

func (a *Account) sessionOptions() []session.Option {
	opts := []session.Option{session.WithMetrics(a.metrics)}
	if a.entropy != nil {
		opts = append(opts, session.WithEntropy(a.entropy))
	}
	return opts
}

func (a *Account) notify(kind ChangeKind) {
	if a.onChange != nil {
		a.onChange(Change{AccountID: a.AccountID(), Kind: kind})
	}
}
