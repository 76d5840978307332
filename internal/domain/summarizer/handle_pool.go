package summarizer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// handlePool keeps idle model handles between requests. A handle is removed from the
// pool while a request uses it, so idle expiry can never release a handle in use.
type handlePool struct {
	cache          *ttlcache.Cache[string, *ModelHandle]
	releaseTimeout time.Duration
	logger         *slog.Logger
}

func newHandlePool(idleTTL, releaseTimeout time.Duration, logger *slog.Logger) *handlePool {
	c := ttlcache.New[string, *ModelHandle](
		ttlcache.WithTTL[string, *ModelHandle](idleTTL),
		ttlcache.WithDisableTouchOnHit[string, *ModelHandle](),
	)
	c.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *ModelHandle]) {
		// Deleted covers checkout and close, which manage the handle themselves.
		if reason == ttlcache.EvictionReasonDeleted {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := item.Value().Release(ctx); err != nil {
			logger.Warn("idle model handle release failed", "key", item.Key(), "error", err)
			return
		}
		logger.Info("idle model handle released", "key", item.Key())
	})
	go c.Start()
	return &handlePool{cache: c, releaseTimeout: releaseTimeout, logger: logger}
}

func (p *handlePool) take(spec LoadSpec) *ModelHandle {
	item, ok := p.cache.GetAndDelete(spec.key())
	if !ok || item == nil {
		return nil
	}
	return item.Value()
}

// put parks handle for reuse. A handle already parked under the same key is released.
func (p *handlePool) put(handle *ModelHandle) {
	key := handle.Spec.key()
	if prev, ok := p.cache.GetAndDelete(key); ok && prev != nil && prev.Value() != handle {
		ctx, cancel := context.WithTimeout(context.Background(), p.releaseTimeout)
		defer cancel()
		if err := prev.Value().Release(ctx); err != nil {
			p.logger.Warn("displaced model handle release failed", "key", key, "error", err)
		}
	}
	p.cache.Set(key, handle, ttlcache.DefaultTTL)
}

func (p *handlePool) close(ctx context.Context) error {
	var errs []error
	for _, item := range p.cache.Items() {
		if err := item.Value().Release(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.cache.DeleteAll()
	p.cache.Stop()
	return errors.Join(errs...)
}
