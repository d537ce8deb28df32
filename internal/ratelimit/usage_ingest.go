package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/duno/internal/config"
)

const (
	keyIngestOrg     = "usage:ingest:org:%s"
	keyIngestAccount = "usage:ingest:account:%s:%s"
	keyIngestLock    = "usage:ingest:lock:%s:%s:%s"
)

// IngestLimiter throttles usage record ingestion per tenant and per account.
// A nil limiter admits everything, so callers never branch on configuration.
type IngestLimiter struct {
	bucket *TokenBucket
	locker *Locker

	orgRate      float64
	orgBurst     int
	accountRate  float64
	accountBurst int
	lockTTL      time.Duration
}

func NewIngestLimiter(cfg config.Config) (*IngestLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.IngestOrgRate <= 0 || limitCfg.IngestOrgBurst <= 0 {
		return nil, errors.New("ingest org rate limit must be positive")
	}
	if limitCfg.IngestAccountRate <= 0 || limitCfg.IngestAccountBurst <= 0 {
		return nil, errors.New("ingest account rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &IngestLimiter{
		bucket:       NewTokenBucket(client),
		locker:       NewLocker(client),
		orgRate:      limitCfg.IngestOrgRate,
		orgBurst:     limitCfg.IngestOrgBurst,
		accountRate:  limitCfg.IngestAccountRate,
		accountBurst: limitCfg.IngestAccountBurst,
		lockTTL:      5 * time.Second,
	}, nil
}

func (l *IngestLimiter) Enabled() bool {
	return l != nil
}

func (l *IngestLimiter) AllowOrg(ctx context.Context, orgID string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyIngestOrg, strings.TrimSpace(orgID)), l.orgRate, l.orgBurst)
}

func (l *IngestLimiter) AllowAccount(ctx context.Context, orgID, accountID string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyIngestAccount, strings.TrimSpace(orgID), strings.TrimSpace(accountID))
	return l.bucket.Allow(ctx, key, l.accountRate, l.accountBurst)
}

// TryLockAccountMetric serializes concurrent ingestion for one account and
// metric so duplicate idempotency checks cannot race.
func (l *IngestLimiter) TryLockAccountMetric(ctx context.Context, orgID, accountID, metric string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	key := fmt.Sprintf(keyIngestLock,
		strings.TrimSpace(orgID),
		strings.TrimSpace(accountID),
		strings.TrimSpace(metric),
	)
	return l.locker.TryLock(ctx, key, l.lockTTL)
}

func (l *IngestLimiter) ReleaseAccountMetric(ctx context.Context, orgID, accountID, metric, token string) error {
	if !l.Enabled() {
		return nil
	}
	key := fmt.Sprintf(keyIngestLock,
		strings.TrimSpace(orgID),
		strings.TrimSpace(accountID),
		strings.TrimSpace(metric),
	)
	return l.locker.Release(ctx, key, token)
}
