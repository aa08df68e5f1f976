package credential

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// RefreshFunc exchanges a long-lived refresh token for a short-lived access
// token via the external auth collaborator. It returns the new token and its
// expiry.
type RefreshFunc func(ctx context.Context, refreshToken string) (token string, expiresAt time.Time, err error)

// Refresher is a single-writer cache for a rotating access token. Concurrent
// turns that hit an expired token share one refresh round-trip via
// singleflight; only one refresh is ever in flight, the others await its
// result.
type Refresher struct {
	store   Store
	refresh RefreshFunc

	group singleflight.Group

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// NewRefresher creates a Refresher reading the long-lived refresh token from
// store under [NameRefreshToken].
func NewRefresher(store Store, refresh RefreshFunc) *Refresher {
	return &Refresher{store: store, refresh: refresh}
}

// Token returns a currently valid access token, refreshing first if the
// cached one is absent or expired.
func (r *Refresher) Token(ctx context.Context) (string, error) {
	r.mu.RLock()
	token, ok := r.token, time.Now().Before(r.expiresAt)
	r.mu.RUnlock()
	if ok && token != "" {
		return token, nil
	}
	return r.ForceRefresh(ctx)
}

// ForceRefresh discards the cached token and fetches a new one. Used by the
// completion streamer after a backend reports credential expiry. Concurrent
// callers are collapsed into one upstream refresh.
func (r *Refresher) ForceRefresh(ctx context.Context) (string, error) {
	v, err, _ := r.group.Do("refresh", func() (any, error) {
		refreshToken, err := r.store.Get(NameRefreshToken)
		if err != nil {
			return "", fmt.Errorf("credential: no refresh token configured: %w", err)
		}
		token, expiresAt, err := r.refresh(ctx, refreshToken)
		if err != nil {
			return "", fmt.Errorf("credential: refresh: %w", err)
		}
		r.mu.Lock()
		r.token = token
		r.expiresAt = expiresAt
		r.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
