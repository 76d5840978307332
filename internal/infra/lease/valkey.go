package lease

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"
)

const defaultPollInterval = 250 * time.Millisecond

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = valkey.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ValkeyLease shares device exclusivity across processes on one host. The TTL bounds
// how long a crashed holder can block the device.
type ValkeyLease struct {
	client valkey.Client
	prefix string
	ttl    time.Duration
	poll   time.Duration
	logger *slog.Logger
}

// NewValkeyLease constructs a lease backed by Valkey.
func NewValkeyLease(client valkey.Client, prefix string, ttl time.Duration, logger *slog.Logger) *ValkeyLease {
	if prefix == "" {
		prefix = "summarizer:lease"
	}
	return &ValkeyLease{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		poll:   defaultPollInterval,
		logger: logger.With("component", "lease.valkey"),
	}
}

// Acquire polls SET NX until the key is taken by this caller or ctx ends.
func (l *ValkeyLease) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	fullKey := l.prefix + ":" + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		// Completed commands are recycled after Do, so every attempt builds its own.
		cmd := l.client.B().Set().Key(fullKey).Value(token).Nx().PxMilliseconds(l.ttl.Milliseconds()).Build()
		err := l.client.Do(ctx, cmd).Error()
		if err == nil {
			l.logger.Debug("lease acquired", "key", fullKey)
			return l.releaser(fullKey, token), nil
		}
		if !valkey.IsValkeyNil(err) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *ValkeyLease) releaser(key, token string) func(context.Context) error {
	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			err = releaseScript.Exec(ctx, l.client, []string{key}, []string{token}).Error()
			if err != nil && !valkey.IsValkeyNil(err) {
				err = fmt.Errorf("release lease %s: %w", key, err)
				return
			}
			err = nil
		})
		return err
	}
}
