package account

import (
	"github.com/sirupsen/logrus"

	"qe2ee/internal/domain"
	"qe2ee/internal/metrics"
	"qe2ee/internal/securemem"
)

// ChangeKind says which mutation made the account dirty.
type ChangeKind int

const (
	ChangeCreated ChangeKind = iota
	ChangeOneTimeKeysGenerated
	ChangeKeysPublished
	ChangeOneTimeKeyRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "created"
	case ChangeOneTimeKeysGenerated:
		return "one_time_keys_generated"
	case ChangeKeysPublished:
		return "keys_published"
	case ChangeOneTimeKeyRemoved:
		return "one_time_key_removed"
	}
	return "unknown"
}

// Change signals that the account must be pickled again.
type Change struct {
	AccountID string
	Kind      ChangeKind
}

// Entropy returns n fresh random bytes in secure memory.
type Entropy func(n int) (*securemem.Buffer, error)

// Option configures an Account.
type Option func(*Account)

// WithOnChange registers the persistence callback. It runs with the
// account lock held and must not call back into the account.
func WithOnChange(fn func(Change)) Option {
	return func(a *Account) { a.onChange = fn }
}

// WithLogger overrides the logger.
func WithLogger(l *logrus.Entry) Option {
	return func(a *Account) { a.log = l }
}

// WithMetrics records operation outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Account) { a.metrics = m }
}

// WithProtocolVersion selects the shape of signed one-time keys.
func WithProtocolVersion(v domain.ProtocolVersion) Option {
	return func(a *Account) { a.version = v }
}

// WithEntropy replaces the random source, mainly for tests.
func WithEntropy(e Entropy) Option {
	return func(a *Account) { a.entropy = e }
}
