package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"qe2ee/internal/domain"
	"qe2ee/internal/logging"
	"qe2ee/internal/securemem"
	"qe2ee/internal/services/account"
)

// ErrNotBound is returned by Flush before Bind.
var ErrNotBound = errors.New("store: persister has no account")

// Pickler is the part of an account the Persister needs.
type Pickler interface {
	AccountID() string
	Pickle(key *securemem.Buffer) ([]byte, error)
}

// Persister writes the account pickle whenever the account reports a
// change. Notify is safe to use as the account's change callback: it never
// blocks and never calls back into the account.
type Persister struct {
	store domain.AccountStore
	key   *securemem.Buffer
	salt  []byte
	log   *logrus.Entry

	acct    Pickler
	dirty   atomic.Bool
	wake    chan struct{}
	saveMu  sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
}

// NewPersister saves into st with the pickling key and, when the key was
// derived from a passphrase, its salt. The key stays owned by the caller.
func NewPersister(st domain.AccountStore, key *securemem.Buffer, salt []byte, log *logrus.Entry) *Persister {
	return &Persister{
		store: st,
		key:   key,
		salt:  append([]byte(nil), salt...),
		log:   logging.Or(log, "persister"),
		wake:  make(chan struct{}, 1),
	}
}

// Bind sets the account to persist.
func (p *Persister) Bind(acct Pickler) { p.acct = acct }

// Notify records a change and wakes the background writer.
func (p *Persister) Notify(c account.Change) {
	p.dirty.Store(true)
	p.log.WithFields(logrus.Fields{"account": c.AccountID, "change": c.Kind.String()}).Debug("account changed")
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Dirty reports whether a change has not been written yet.
func (p *Persister) Dirty() bool { return p.dirty.Load() }

// Start runs the background writer until Stop.
func (p *Persister) Start(ctx context.Context) {
	p.stop = make(chan struct{})
	p.stopped = make(chan struct{})
	go func() {
		defer close(p.stopped)
		for {
			select {
			case <-p.wake:
				if err := p.Flush(ctx); err != nil {
					p.log.WithError(err).Error("background account save failed; will retry on next change or flush")
				}
			case <-p.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the background writer and flushes any pending change.
func (p *Persister) Stop(ctx context.Context) error {
	if p.stop != nil {
		close(p.stop)
		<-p.stopped
		p.stop = nil
	}
	return p.Flush(ctx)
}

// Flush writes the account now if a change is pending.
func (p *Persister) Flush(ctx context.Context) error {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()
	if !p.dirty.Swap(false) {
		return nil
	}
	if err := p.save(ctx); err != nil {
		p.dirty.Store(true)
		return err
	}
	return nil
}

// Save writes the account unconditionally.
func (p *Persister) Save(ctx context.Context) error {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()
	p.dirty.Store(false)
	if err := p.save(ctx); err != nil {
		p.dirty.Store(true)
		return err
	}
	return nil
}

func (p *Persister) save(ctx context.Context) error {
	if p.acct == nil {
		return ErrNotBound
	}
	pickle, err := p.acct.Pickle(p.key)
	if err != nil {
		return fmt.Errorf("store: pickle account: %w", err)
	}
	rec := domain.AccountRecord{AccountID: p.acct.AccountID(), Pickle: pickle, PicklingSalt: p.salt}
	if err := p.store.SaveAccount(ctx, rec); err != nil {
		return err
	}
	p.log.WithFields(logging.SizeFields("pickle", pickle)).Debug("account saved")
	return nil
}
