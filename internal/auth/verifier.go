package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/pershin-daniil/MeetingBoard/pkg/models"
)

const (
	signingAlgorithm = "RS256"
	clockLeeway      = 30 * time.Second
)

// Issuer is the token issuer of an Auth0 tenant.
func Issuer(domain string) string {
	return "https://" + domain + "/"
}

type Verifier struct {
	keys     KeyResolver
	audience string
	issuer   string
	parser   *jwt.Parser
	now      func() time.Time
}

func NewVerifier(keys KeyResolver, audience, issuer string) *Verifier {
	return &Verifier{
		keys:     keys,
		audience: audience,
		issuer:   issuer,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{signingAlgorithm}), jwt.WithoutClaimsValidation()),
		now:      time.Now,
	}
}

// Verify checks the token signature with the key named in its header and
// validates expiry, audience and issuer. An expired token is reported as
// such even when other claims are wrong too.
func (v *Verifier) Verify(ctx context.Context, raw string) (*models.Claims, error) {
	unverified, _, err := v.parser.ParseUnverified(raw, &models.Claims{})
	if err != nil {
		return nil, newError(KindMalformedToken, err)
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, newError(KindMalformedHeader, fmt.Errorf("token header has no kid"))
	}
	key, err := v.keys.Resolve(ctx, kid)
	if err != nil {
		return nil, err
	}

	claims := &models.Claims{}
	if _, err = v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}); err != nil {
		return nil, newError(KindUnparseableToken, err)
	}

	now := v.now()
	switch {
	case !claims.VerifyExpiresAt(now, false):
		return nil, newError(KindExpiredToken, fmt.Errorf("expired at %v", claims.ExpiresAt))
	case !claims.VerifyAudience(v.audience, true):
		return nil, newError(KindInvalidClaims, fmt.Errorf("audience %v", claims.Audience))
	case !claims.VerifyIssuer(v.issuer, true):
		return nil, newError(KindInvalidClaims, fmt.Errorf("issuer %q", claims.Issuer))
	case !claims.VerifyNotBefore(now.Add(clockLeeway), false):
		return nil, newError(KindInvalidClaims, fmt.Errorf("token not valid before %v", claims.NotBefore))
	}
	return claims, nil
}
