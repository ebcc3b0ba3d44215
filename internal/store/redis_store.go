package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"qe2ee/internal/domain"
)

const (
	redisPrefix       = "qe2ee"
	fieldPickle       = "pickle"
	fieldPicklingSalt = "pickling_salt"
)

// RedisStore keeps an account in the hash qe2ee:{account}:account and the
// sessions with one peer in the hash qe2ee:{account}:sessions:{peer}, keyed
// by session id. Creation order lives in qe2ee:{account}:sessions:{peer}:seq,
// fed by the counter qe2ee:{account}:session_seq.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to addr and pings it.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("store: connect to redis at %s: %w", addr, err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient uses an existing client.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func accountKey(accountID string) string {
	return fmt.Sprintf("%s:{%s}:account", redisPrefix, accountID)
}

func sessionsKey(accountID, senderKey string) string {
	return fmt.Sprintf("%s:{%s}:sessions:%s", redisPrefix, accountID, senderKey)
}

func sessionSeqKey(accountID, senderKey string) string {
	return sessionsKey(accountID, senderKey) + ":seq"
}

func seqCounterKey(accountID string) string {
	return fmt.Sprintf("%s:{%s}:session_seq", redisPrefix, accountID)
}

func (s *RedisStore) SaveAccount(ctx context.Context, rec domain.AccountRecord) error {
	err := s.client.HSet(ctx, accountKey(rec.AccountID),
		fieldPickle, rec.Pickle,
		fieldPicklingSalt, rec.PicklingSalt,
	).Err()
	if err != nil {
		return fmt.Errorf("store: save account %s: %w", rec.AccountID, err)
	}
	return nil
}

func (s *RedisStore) LoadAccount(ctx context.Context, accountID string) (domain.AccountRecord, bool, error) {
	vals, err := s.client.HGetAll(ctx, accountKey(accountID)).Result()
	if err != nil {
		return domain.AccountRecord{}, false, fmt.Errorf("store: load account %s: %w", accountID, err)
	}
	pickle, ok := vals[fieldPickle]
	if !ok {
		return domain.AccountRecord{}, false, nil
	}
	return domain.AccountRecord{
		AccountID:    accountID,
		Pickle:       []byte(pickle),
		PicklingSalt: []byte(vals[fieldPicklingSalt]),
	}, true, nil
}

func (s *RedisStore) SaveSession(ctx context.Context, accountID, senderKey, sessionID string, pickle []byte) error {
	seqKey := sessionSeqKey(accountID, senderKey)
	known, err := s.client.HExists(ctx, seqKey, sessionID).Result()
	if err != nil {
		return fmt.Errorf("store: save session %s: %w", sessionID, err)
	}
	if !known {
		seq, err := s.client.Incr(ctx, seqCounterKey(accountID)).Result()
		if err != nil {
			return fmt.Errorf("store: session sequence: %w", err)
		}
		if err := s.client.HSetNX(ctx, seqKey, sessionID, seq).Err(); err != nil {
			return fmt.Errorf("store: save session %s: %w", sessionID, err)
		}
	}
	if err := s.client.HSet(ctx, sessionsKey(accountID, senderKey), sessionID, pickle).Err(); err != nil {
		return fmt.Errorf("store: save session %s: %w", sessionID, err)
	}
	return nil
}

func (s *RedisStore) LoadSessions(ctx context.Context, accountID, senderKey string) ([]domain.SessionRecord, error) {
	vals, err := s.client.HGetAll(ctx, sessionsKey(accountID, senderKey)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("store: load sessions: %w", err)
	}
	seqs, err := s.client.HGetAll(ctx, sessionSeqKey(accountID, senderKey)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("store: load session order: %w", err)
	}
	out := make([]domain.SessionRecord, 0, len(vals))
	for id, p := range vals {
		// A missing or unreadable sequence sorts first, as the oldest.
		seq, _ := strconv.ParseInt(seqs[id], 10, 64)
		out = append(out, domain.SessionRecord{SessionID: id, Pickle: []byte(p), Seq: seq})
	}
	sortBySeq(out)
	return out, nil
}

func (s *RedisStore) DeleteSession(ctx context.Context, accountID, senderKey, sessionID string) error {
	if err := s.client.HDel(ctx, sessionSeqKey(accountID, senderKey), sessionID).Err(); err != nil {
		return fmt.Errorf("store: delete session %s: %w", sessionID, err)
	}
	if err := s.client.HDel(ctx, sessionsKey(accountID, senderKey), sessionID).Err(); err != nil {
		return fmt.Errorf("store: delete session %s: %w", sessionID, err)
	}
	return nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

var _ domain.PickleStore = (*RedisStore)(nil)
