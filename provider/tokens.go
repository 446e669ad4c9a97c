package provider

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/motforex/merchant"
)

const DefaultRefreshInterval = 12 * time.Hour

// TokenStore holds processor access tokens shared by every instance.
// Get returns merchant.ErrNotFound when no token is stored under key.
type TokenStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, token string, ttl time.Duration) error
}

// TokenSource obtains a fresh token from a processor.
type TokenSource interface {
	TokenKey() string
	FetchToken(ctx context.Context) (token string, ttl time.Duration, err error)
}

// BearerAuth reads the token stored under key. Invoice operations never fetch
// tokens themselves: a missing token is merchant.ErrAuthTokenMissing.
func BearerAuth(store TokenStore, key string) Authorizer {
	return func(ctx context.Context, req *http.Request) error {
		token, err := store.Get(ctx, key)
		if err != nil {
			if errors.Cause(err) == merchant.ErrNotFound {
				return errors.Wrap(merchant.ErrAuthTokenMissing, key)
			}
			return errors.Wrap(merchant.ErrProviderUnavailable, "token store: "+err.Error())
		}
		if token == "" {
			return errors.Wrap(merchant.ErrAuthTokenMissing, key)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}
}

// StaticTokenSource publishes a provisioned token into the store.
type StaticTokenSource struct {
	Key   string
	Token string
	TTL   time.Duration
}

func (s *StaticTokenSource) TokenKey() string {
	return s.Key
}

func (s *StaticTokenSource) FetchToken(ctx context.Context) (string, time.Duration, error) {
	if s.Token == "" {
		return "", 0, errors.Wrap(merchant.ErrAuthTokenMissing, s.Key)
	}
	return s.Token, s.TTL, nil
}

// Refresher keeps the token store populated.
type Refresher struct {
	store    TokenStore
	sources  []TokenSource
	interval time.Duration
	l        *zap.Logger
}

func NewRefresher(store TokenStore, interval time.Duration, sources ...TokenSource) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{
		store:    store,
		sources:  sources,
		interval: interval,
		l:        zap.L().Named("token_refresher"),
	}
}

// RefreshAll refreshes every source concurrently and returns the first error.
func (r *Refresher) RefreshAll(ctx context.Context) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, src := range r.sources {
		wg.Add(1)
		go func(src TokenSource) {
			defer wg.Done()
			if err := r.refresh(ctx, src); err != nil {
				r.l.Error("refresh token", zap.String("key", src.TokenKey()), zap.Error(err))
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(src)
	}
	wg.Wait()
	return firstErr
}

func (r *Refresher) refresh(ctx context.Context, src TokenSource) error {
	token, ttl, err := src.FetchToken(ctx)
	if err != nil {
		return errors.Wrap(err, "Failed fetch token")
	}
	// keep the token a little past the next refresh
	if ttl <= 0 || ttl > r.interval+time.Hour {
		ttl = r.interval + time.Hour
	}
	if err := r.store.Set(ctx, src.TokenKey(), token, ttl); err != nil {
		return errors.Wrap(err, "Failed store token")
	}
	r.l.Info("token refreshed", zap.String("key", src.TokenKey()), zap.Duration("ttl", ttl))
	return nil
}

// Run refreshes immediately and then every interval until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	r.RefreshAll(ctx)
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			r.l.Info("Stopped.")
			return
		case <-t.C:
			r.RefreshAll(ctx)
		}
	}
}
