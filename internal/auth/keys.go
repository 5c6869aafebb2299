package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/patrickmn/go-cache"
	"github.com/pershin-daniil/MeetingBoard/pkg/httpclient"
	"github.com/pershin-daniil/MeetingBoard/pkg/metrics"
	"github.com/pershin-daniil/MeetingBoard/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	jwksCacheKey       = "jwks"
	defaultJWKSTTL     = 10 * time.Minute
	minRefreshInterval = 30 * time.Second
	maxJWKSSize        = 1 << 20
)

// KeyResolver finds the public key that signed a token.
type KeyResolver interface {
	Resolve(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// JWKSResolver resolves keys from the identity provider's published key set.
// The set is cached; a kid missing from the cached set forces a refetch, at
// most once per minRefreshInterval.
type JWKSResolver struct {
	log         *logrus.Entry
	url         string
	client      *http.Client
	cache       *cache.Cache
	mu          sync.Mutex
	lastFetch   time.Time
	minInterval time.Duration
	now         func() time.Time
}

func NewJWKSResolver(log *logrus.Logger, url string, ttl, timeout time.Duration) *JWKSResolver {
	if ttl <= 0 {
		ttl = defaultJWKSTTL
	}
	return &JWKSResolver{
		log:         log.WithField("component", "jwks"),
		url:         url,
		client:      httpclient.New(timeout),
		cache:       cache.New(ttl, 2*ttl),
		minInterval: minRefreshInterval,
		now:         time.Now,
	}
}

func (r *JWKSResolver) Resolve(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	set, err := r.keySet(ctx, false)
	if err != nil {
		return nil, err
	}
	if key := findKey(set, kid); key != nil {
		return key, nil
	}
	set, err = r.keySet(ctx, true)
	if err != nil {
		return nil, err
	}
	if key := findKey(set, kid); key != nil {
		return key, nil
	}
	return nil, newError(KindKeyNotFound, fmt.Errorf("no key with kid %q", kid))
}

func (r *JWKSResolver) keySet(ctx context.Context, refresh bool) (jwk.Set, error) {
	if !refresh {
		if cached, ok := r.cache.Get(jwksCacheKey); ok {
			return cached.(jwk.Set), nil
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cached, ok := r.cache.Get(jwksCacheKey)
	switch {
	case ok && !refresh:
		return cached.(jwk.Set), nil
	case ok && r.now().Sub(r.lastFetch) < r.minInterval:
		return cached.(jwk.Set), nil
	}

	set, err := r.fetch(ctx)
	if err != nil {
		metrics.JWKSFetches.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.JWKSFetches.WithLabelValues("ok").Inc()
	r.lastFetch = r.now()
	r.cache.Set(jwksCacheKey, set, cache.DefaultExpiration)
	r.log.Debugf("fetched %d keys from %s", set.Len(), r.url)
	return set, nil
}

func (r *JWKSResolver) fetch(ctx context.Context) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("err creating jwks request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, models.NewUpstreamError("jwks fetch", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, models.NewUpstreamError("jwks fetch", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSSize))
	if err != nil {
		return nil, models.NewUpstreamError("jwks fetch", err)
	}
	set, err := jwk.Parse(body)
	if err != nil {
		return nil, models.NewUpstreamError("jwks fetch", fmt.Errorf("err parsing key set: %w", err))
	}
	return set, nil
}

// findKey returns the first RSA key with the given kid.
func findKey(set jwk.Set, kid string) *rsa.PublicKey {
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok || key.KeyID() != kid {
			continue
		}
		var pub rsa.PublicKey
		if err := key.Raw(&pub); err != nil {
			continue
		}
		return &pub
	}
	return nil
}
