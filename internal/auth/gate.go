package auth

import (
	"context"
	"errors"

	"github.com/pershin-daniil/MeetingBoard/pkg/metrics"
	"github.com/pershin-daniil/MeetingBoard/pkg/models"
	"github.com/sirupsen/logrus"
)

type ctxClaimsType string

const ctxClaimsKey ctxClaimsType = "claims"

type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*models.Claims, error)
}

// Gate runs header extraction, token verification and the permission check
// in order and stops at the first failure.
type Gate struct {
	log        *logrus.Entry
	verifier   TokenVerifier
	permission string
}

func NewGate(log *logrus.Logger, verifier TokenVerifier, permission string) *Gate {
	return &Gate{
		log:        log.WithField("component", "auth"),
		verifier:   verifier,
		permission: permission,
	}
}

func (g *Gate) Authorize(ctx context.Context, header string) (*models.Claims, error) {
	claims, err := g.authorize(ctx, header)
	if err != nil {
		var authErr *Error
		if errors.As(err, &authErr) {
			metrics.AuthFailures.WithLabelValues(string(authErr.Kind)).Inc()
		} else {
			metrics.AuthFailures.WithLabelValues("upstream").Inc()
		}
		g.log.Debugf("request rejected: %v", err)
		return nil, err
	}
	return claims, nil
}

func (g *Gate) authorize(ctx context.Context, header string) (*models.Claims, error) {
	raw, err := ExtractToken(header)
	if err != nil {
		return nil, err
	}
	claims, err := g.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	if err = CheckPermission(claims, g.permission); err != nil {
		return nil, err
	}
	return claims, nil
}

func WithClaims(ctx context.Context, claims *models.Claims) context.Context {
	return context.WithValue(ctx, ctxClaimsKey, claims)
}

func ClaimsFrom(ctx context.Context) *models.Claims {
	claims, ok := ctx.Value(ctxClaimsKey).(*models.Claims)
	if !ok {
		return nil
	}
	return claims
}
