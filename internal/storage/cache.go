package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Brownie44l1/pneumo-api/internal/domain"
)

// RedisOptions configures the history cache connection.
type RedisOptions struct {
	Address  string
	Password string
	DB       int
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// CachedStore keeps each user's history in Redis. Recording an analysis
// drops the user's entry. Cache failures are logged and fall through to the
// wrapped Store.
type CachedStore struct {
	Store
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedStore(next Store, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedStore {
	return &CachedStore{
		Store:  next,
		client: client,
		ttl:    ttl,
		logger: logger.Named("history-cache"),
	}
}

func historyKey(userID int64) string {
	return "history:" + strconv.FormatInt(userID, 10)
}

func (c *CachedStore) FetchUserHistory(ctx context.Context, userID int64) ([]domain.HistoryEntry, error) {
	key := historyKey(userID)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var entries []domain.HistoryEntry
		if err := json.Unmarshal(raw, &entries); err == nil {
			return entries, nil
		}
		c.logger.Warn("drop corrupt history entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("read history cache", zap.String("key", key), zap.Error(err))
	}

	entries, err := c.Store.FetchUserHistory(ctx, userID)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(entries); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("write history cache", zap.String("key", key), zap.Error(err))
		}
	}
	return entries, nil
}

func (c *CachedStore) RecordAnalysis(ctx context.Context, a domain.Analysis) (int64, error) {
	id, err := c.Store.RecordAnalysis(ctx, a)
	if err != nil {
		return 0, err
	}
	c.invalidate(ctx, a.UserID)
	return id, nil
}

func (c *CachedStore) RecordSubmission(ctx context.Context, p domain.Patient, a domain.Analysis) (int64, int64, error) {
	patientID, analysisID, err := c.Store.RecordSubmission(ctx, p, a)
	if err != nil {
		return 0, 0, err
	}
	c.invalidate(ctx, a.UserID)
	return patientID, analysisID, nil
}

func (c *CachedStore) invalidate(ctx context.Context, userID int64) {
	if err := c.client.Del(ctx, historyKey(userID)).Err(); err != nil {
		c.logger.Warn("invalidate history cache", zap.Int64("userID", userID), zap.Error(err))
	}
}

var _ Store = (*CachedStore)(nil)
