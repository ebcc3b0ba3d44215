package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"qe2ee/internal/crypto"
	"qe2ee/internal/domain"
	"qe2ee/internal/events"
	"qe2ee/internal/logging"
	"qe2ee/internal/metrics"
	"qe2ee/internal/securemem"
	"qe2ee/internal/services/account"
	"qe2ee/internal/services/filecrypto"
	"qe2ee/internal/services/keyimport"
	"qe2ee/internal/services/session"
	"qe2ee/internal/store"
)

// ErrNoAccount is returned by OpenAccount when nothing is stored and
// creation was not requested.
var ErrNoAccount = errors.New("no account stored; run init first")

// Wire bundles the stores and services for the CLI.
type Wire struct {
	Config    Config
	Store     domain.PickleStore
	Metrics   *metrics.Metrics
	Files     *filecrypto.Service
	Keys      *keyimport.Service
	Account   *account.Account
	Persister *store.Persister
	Sessions  *events.SessionCache

	key *securemem.Buffer
	log *logrus.Entry

	mu     sync.Mutex
	loaded map[string]bool // peers whose stored sessions are in the cache
}

// NewWire configures logging and opens the store. The account is opened
// separately with OpenAccount.
func NewWire(ctx context.Context, cfg Config) (*Wire, error) {
	if err := logging.Configure(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON}); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	m := metrics.New()
	return &Wire{
		Config:   cfg,
		Store:    st,
		Metrics:  m,
		Files:    filecrypto.New(filecrypto.WithMetrics(m)),
		Keys:     keyimport.New(keyimport.WithMetrics(m)),
		Sessions: events.NewSessionCache(),
		log:      logging.For("app"),
		loaded:   make(map[string]bool),
	}, nil
}

// OpenStore builds the configured backend.
func OpenStore(ctx context.Context, cfg Config) (domain.PickleStore, error) {
	switch cfg.Store {
	case StoreRedis:
		return store.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case StorePostgres:
		return store.NewPostgresStore(ctx, cfg.PostgresDSN)
	case StoreFile, "":
		return store.NewFileStore(cfg.Home), nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// OpenAccount restores the stored account, or creates and saves a new one
// when create is set and nothing is stored.
func (w *Wire) OpenAccount(ctx context.Context, create bool) error {
	accountID := w.Config.UserID + "/" + w.Config.DeviceID
	rec, ok, err := w.Store.LoadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !ok && !create {
		return ErrNoAccount
	}

	salt := rec.PicklingSalt
	if !ok {
		s, err := securemem.Random(securemem.PicklingSaltSize)
		if err != nil {
			return err
		}
		salt = append([]byte(nil), s.Bytes()...)
		s.Clear()
	}
	w.key, err = securemem.PicklingKeyFromPassphrase(w.Config.Passphrase, salt)
	if err != nil {
		return fmt.Errorf("derive pickling key: %w", err)
	}

	w.Persister = store.NewPersister(w.Store, w.key, salt, nil)
	w.Account = account.New(w.Config.UserID, w.Config.DeviceID,
		account.WithOnChange(w.Persister.Notify),
		account.WithMetrics(w.Metrics),
		account.WithProtocolVersion(domain.ProtocolVersion(w.Config.ProtocolVersion)),
	)
	w.Persister.Bind(w.Account)
	w.Persister.Start(ctx)
	w.Sessions.OnUpdate = func(senderKey string, s *session.Session) {
		if err := w.SaveSession(ctx, senderKey, s); err != nil {
			w.log.WithError(err).Error("session save failed")
		}
	}

	if ok {
		if err := w.Account.Unpickle(rec.Pickle, w.key); err != nil {
			return fmt.Errorf("unlock account %s (wrong passphrase?): %w", accountID, err)
		}
		return nil
	}
	if err := w.Account.SetupNewAccount(); err != nil {
		return err
	}
	return w.Persister.Save(ctx)
}

// LoadSessions reads the stored sessions with one peer into the cache, once
// per peer, and returns the cached sessions newest first.
func (w *Wire) LoadSessions(ctx context.Context, senderKey string) ([]*session.Session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.loaded[senderKey] {
		return w.Sessions.For(senderKey), nil
	}
	recs, err := w.Store.LoadSessions(ctx, w.Account.AccountID(), senderKey)
	if err != nil {
		return nil, err
	}
	cached := make(map[string]bool)
	for _, s := range w.Sessions.For(senderKey) {
		cached[s.SessionID()] = true
	}
	// Oldest first, so each Add puts a newer session in front.
	for _, rec := range recs {
		if cached[rec.SessionID] {
			continue
		}
		s, err := session.Unpickle(rec.Pickle, w.key, session.WithMetrics(w.Metrics))
		if err != nil {
			w.log.WithFields(logrus.Fields{"session_id": rec.SessionID}).WithError(err).Warn("skipping unreadable session")
			continue
		}
		w.Sessions.Add(senderKey, s)
	}
	w.loaded[senderKey] = true
	return w.Sessions.For(senderKey), nil
}

// SaveSession writes one session.
func (w *Wire) SaveSession(ctx context.Context, senderKey string, s *session.Session) error {
	p, err := s.Pickle(w.key)
	if err != nil {
		return err
	}
	return w.Store.SaveSession(ctx, w.Account.AccountID(), senderKey, s.SessionID(), p)
}

// Fingerprint is the display fingerprint of the account's ed25519 key.
func (w *Wire) Fingerprint() (domain.Fingerprint, error) {
	ids, err := w.Account.IdentityKeys()
	if err != nil {
		return "", err
	}
	raw, err := crypto.DecodeBase64(ids.Ed25519)
	if err != nil {
		return "", fmt.Errorf("%w: identity key: %w", domain.ErrInternal, err)
	}
	return domain.Fingerprint(crypto.Fingerprint(raw)), nil
}

// OpenOutbound starts a session with a peer and stores it.
func (w *Wire) OpenOutbound(ctx context.Context, theirIdentityKey, theirOneTimeKey string) (*session.Session, error) {
	if _, err := w.LoadSessions(ctx, theirIdentityKey); err != nil {
		return nil, err
	}
	s, err := w.Account.CreateOutboundSession(theirIdentityKey, theirOneTimeKey)
	if err != nil {
		return nil, err
	}
	w.Sessions.Add(theirIdentityKey, s)
	if err := w.SaveSession(ctx, theirIdentityKey, s); err != nil {
		return nil, err
	}
	return s, nil
}

// EncryptTo encrypts payload with the newest session to the peer.
func (w *Wire) EncryptTo(ctx context.Context, theirIdentityKey string, payload []byte) (events.EncryptedEvent, error) {
	sessions, err := w.LoadSessions(ctx, theirIdentityKey)
	if err != nil {
		return events.EncryptedEvent{}, err
	}
	if len(sessions) == 0 {
		return events.EncryptedEvent{}, fmt.Errorf("%w with %s", events.ErrNoSession, theirIdentityKey)
	}
	ids, err := w.Account.IdentityKeys()
	if err != nil {
		return events.EncryptedEvent{}, err
	}
	s := sessions[0]
	ev, err := events.EncryptOlm(s, ids.Curve25519, theirIdentityKey, payload)
	if err != nil {
		return events.EncryptedEvent{}, err
	}
	return ev, w.SaveSession(ctx, theirIdentityKey, s)
}

// Decrypt decrypts an event addressed to this account, creating an inbound
// session when the event starts one.
func (w *Wire) Decrypt(ctx context.Context, ev events.EncryptedEvent) ([]byte, error) {
	if _, err := w.LoadSessions(ctx, ev.SenderKey); err != nil {
		return nil, err
	}
	ids, err := w.Account.IdentityKeys()
	if err != nil {
		return nil, err
	}
	return events.DecryptOlm(ev, ids.Curve25519, w.Account, w.Sessions)
}

// SendText wraps text as an m.text room message addressed to recipient and
// encrypts it to the peer device.
func (w *Wire) SendText(ctx context.Context, theirIdentityKey, recipient, text string) (events.EncryptedEvent, error) {
	ids, err := w.Account.IdentityKeys()
	if err != nil {
		return events.EncryptedEvent{}, err
	}
	content, err := json.Marshal(&events.TextContent{Type: "m.text", Text: text})
	if err != nil {
		return events.EncryptedEvent{}, err
	}
	payload, err := json.Marshal(events.OlmPayload{
		Type:         "m.room.message",
		Content:      content,
		Sender:       w.Account.UserID(),
		SenderDevice: w.Account.DeviceID(),
		Recipient:    recipient,
		Keys:         map[string]string{domain.Ed25519: ids.Ed25519},
	})
	if err != nil {
		return events.EncryptedEvent{}, err
	}
	ev, err := w.EncryptTo(ctx, theirIdentityKey, payload)
	if err != nil {
		return events.EncryptedEvent{}, err
	}
	ev.DeviceID = w.Account.DeviceID()
	return ev, nil
}

// ReadMessage decrypts ev and parses the room message inside it.
func (w *Wire) ReadMessage(ctx context.Context, ev events.EncryptedEvent) (events.OlmPayload, events.Content, error) {
	pt, err := w.Decrypt(ctx, ev)
	if err != nil {
		return events.OlmPayload{}, nil, err
	}
	var p events.OlmPayload
	if err := json.Unmarshal(pt, &p); err != nil {
		return events.OlmPayload{}, nil, fmt.Errorf("olm payload: %w", err)
	}
	c, err := p.Message()
	if err != nil {
		return p, nil, err
	}
	return p, c, nil
}

// Close flushes pending account changes and wipes all key material.
func (w *Wire) Close(ctx context.Context) error {
	var errs []error
	if w.Persister != nil {
		errs = append(errs, w.Persister.Stop(ctx))
	}
	w.Sessions.Close()
	if w.Account != nil {
		w.Account.Close()
	}
	w.key.Clear()
	errs = append(errs, w.Store.Close())
	return errors.Join(errs...)
}
