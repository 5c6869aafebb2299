package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/pershin-daniil/MeetingBoard/pkg/logger"
	"github.com/pershin-daniil/MeetingBoard/pkg/models"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	testDomain     = "meetingboard.eu.auth0.com"
	testAudience   = "https://meetingboard/api"
	testPermission = "read:dashboard"
)

var (
	keysOnce sync.Once
	keyA     *rsa.PrivateKey
	keyB     *rsa.PrivateKey
)

func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	keysOnce.Do(func() {
		var err error
		keyA, err = rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		keyB, err = rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
	})
	return keyA, keyB
}

func jwksJSON(t *testing.T, keys map[string]*rsa.PrivateKey) []byte {
	set := jwk.NewSet()
	for kid, priv := range keys {
		key, err := jwk.FromRaw(&priv.PublicKey)
		require.NoError(t, err)
		require.NoError(t, key.Set(jwk.KeyIDKey, kid))
		require.NoError(t, set.AddKey(key))
	}
	data, err := json.Marshal(set)
	require.NoError(t, err)
	return data
}

func sign(t *testing.T, priv *rsa.PrivateKey, kid string, claims models.Claims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	raw, err := token.SignedString(priv)
	require.NoError(t, err)
	return raw
}

func validClaims() models.Claims {
	now := time.Now()
	return models.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer(testDomain),
			Subject:   "auth0|42",
			Audience:  jwt.ClaimStrings{testAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		},
		Permissions: []string{testPermission},
	}
}

type jwksServer struct {
	mu      sync.Mutex
	body    []byte
	status  int
	fetches atomic.Int32
}

func (j *jwksServer) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	j.fetches.Add(1)
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != 0 {
		w.WriteHeader(j.status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(j.body)
}

func (j *jwksServer) serve(body []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.body = body
}

func (j *jwksServer) fail(status int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = status
}

type VerifierTestSuite struct {
	suite.Suite
	ctx      context.Context
	jwks     *jwksServer
	server   *httptest.Server
	resolver *JWKSResolver
	verifier *Verifier
	key      *rsa.PrivateKey
	other    *rsa.PrivateKey
}

func (s *VerifierTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.key, s.other = testKeys(s.T())
	s.jwks = &jwksServer{}
	s.jwks.serve(jwksJSON(s.T(), map[string]*rsa.PrivateKey{"kid-a": s.key}))
	s.server = httptest.NewServer(s.jwks)
	s.resolver = NewJWKSResolver(logger.New("error"), s.server.URL, time.Minute, 5*time.Second)
	s.verifier = NewVerifier(s.resolver, testAudience, Issuer(testDomain))
}

func (s *VerifierTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *VerifierTestSuite) requireKind(err error, kind Kind, status int) {
	s.T().Helper()
	var authErr *Error
	s.Require().ErrorAs(err, &authErr)
	s.Require().Equal(kind, authErr.Kind)
	s.Require().Equal(status, authErr.Status)
}

func (s *VerifierTestSuite) TestValidToken() {
	claims, err := s.verifier.Verify(s.ctx, sign(s.T(), s.key, "kid-a", validClaims()))
	s.Require().NoError(err)
	s.Require().Equal([]string{testPermission}, claims.Permissions)
	s.Require().Equal("auth0|42", claims.Subject)
}

func (s *VerifierTestSuite) TestExpiredToken() {
	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, err := s.verifier.Verify(s.ctx, sign(s.T(), s.key, "kid-a", claims))
	s.requireKind(err, KindExpiredToken, http.StatusUnauthorized)
}

func (s *VerifierTestSuite) TestWrongAudience() {
	claims := validClaims()
	claims.Audience = jwt.ClaimStrings{"https://someone-else/api"}
	_, err := s.verifier.Verify(s.ctx, sign(s.T(), s.key, "kid-a", claims))
	s.requireKind(err, KindInvalidClaims, http.StatusUnauthorized)
}

func (s *VerifierTestSuite) TestSmallClockSkewIsTolerated() {
	claims := validClaims()
	ahead := time.Now().Add(5 * time.Second)
	claims.IssuedAt = jwt.NewNumericDate(ahead)
	claims.NotBefore = jwt.NewNumericDate(ahead)
	_, err := s.verifier.Verify(s.ctx, sign(s.T(), s.key, "kid-a", claims))
	s.Require().NoError(err)

	claims.NotBefore = jwt.NewNumericDate(time.Now().Add(time.Hour))
	_, err = s.verifier.Verify(s.ctx, sign(s.T(), s.key, "kid-a", claims))
	s.requireKind(err, KindInvalidClaims, http.StatusUnauthorized)
}

func (s *VerifierTestSuite) TestWrongIssuer() {
	claims := validClaims()
	claims.Issuer = "https://evil.example.com/"
	_, err := s.verifier.Verify(s.ctx, sign(s.T(), s.key, "kid-a", claims))
	s.requireKind(err, KindInvalidClaims, http.StatusUnauthorized)
}

func (s *VerifierTestSuite) TestExpiryWinsOverClaims() {
	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	claims.Audience = jwt.ClaimStrings{"https://someone-else/api"}
	_, err := s.verifier.Verify(s.ctx, sign(s.T(), s.key, "kid-a", claims))
	s.requireKind(err, KindExpiredToken, http.StatusUnauthorized)
}

func (s *VerifierTestSuite) TestGarbageToken() {
	_, err := s.verifier.Verify(s.ctx, "not-a-token")
	s.requireKind(err, KindMalformedToken, http.StatusBadRequest)
	s.Require().Zero(s.jwks.fetches.Load())
}

func (s *VerifierTestSuite) TestMissingKid() {
	_, err := s.verifier.Verify(s.ctx, sign(s.T(), s.key, "", validClaims()))
	s.requireKind(err, KindMalformedHeader, http.StatusUnauthorized)
}

func (s *VerifierTestSuite) TestUnknownKid() {
	_, err := s.verifier.Verify(s.ctx, sign(s.T(), s.key, "kid-unknown", validClaims()))
	s.requireKind(err, KindKeyNotFound, http.StatusBadRequest)
	s.Require().EqualValues(1, s.jwks.fetches.Load())
}

func (s *VerifierTestSuite) TestForeignSignature() {
	_, err := s.verifier.Verify(s.ctx, sign(s.T(), s.other, "kid-a", validClaims()))
	s.requireKind(err, KindUnparseableToken, http.StatusBadRequest)
}

func (s *VerifierTestSuite) TestSymmetricAlgorithmRejected() {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims())
	token.Header["kid"] = "kid-a"
	raw, err := token.SignedString(x509.MarshalPKCS1PublicKey(&s.key.PublicKey))
	s.Require().NoError(err)
	_, err = s.verifier.Verify(s.ctx, raw)
	s.requireKind(err, KindUnparseableToken, http.StatusBadRequest)
}

func (s *VerifierTestSuite) TestKeySetIsCached() {
	for i := 0; i < 3; i++ {
		_, err := s.verifier.Verify(s.ctx, sign(s.T(), s.key, "kid-a", validClaims()))
		s.Require().NoError(err)
	}
	s.Require().EqualValues(1, s.jwks.fetches.Load())
}

func (s *VerifierTestSuite) TestRotatedKeyIsRefetched() {
	s.resolver.minInterval = 0
	_, err := s.verifier.Verify(s.ctx, sign(s.T(), s.key, "kid-a", validClaims()))
	s.Require().NoError(err)

	s.jwks.serve(jwksJSON(s.T(), map[string]*rsa.PrivateKey{"kid-a": s.key, "kid-b": s.other}))
	_, err = s.verifier.Verify(s.ctx, sign(s.T(), s.other, "kid-b", validClaims()))
	s.Require().NoError(err)
	s.Require().EqualValues(2, s.jwks.fetches.Load())
}

func (s *VerifierTestSuite) TestKeySetUnavailable() {
	s.jwks.fail(http.StatusServiceUnavailable)
	_, err := s.verifier.Verify(s.ctx, sign(s.T(), s.key, "kid-a", validClaims()))
	s.Require().ErrorIs(err, models.ErrUpstreamUnavailable)
	s.Require().NotErrorIs(err, ErrAuth)
}

func TestVerifierTestSuite(t *testing.T) {
	suite.Run(t, new(VerifierTestSuite))
}

type countingResolver struct {
	key   *rsa.PublicKey
	calls int
}

func (c *countingResolver) Resolve(context.Context, string) (*rsa.PublicKey, error) {
	c.calls++
	return c.key, nil
}

func TestGateRejectsMalformedHeadersWithoutKeyLookup(t *testing.T) {
	key, _ := testKeys(t)
	resolver := &countingResolver{key: &key.PublicKey}
	gate := NewGate(logger.New("error"), NewVerifier(resolver, testAudience, Issuer(testDomain)), testPermission)

	tests := []struct {
		header string
		kind   Kind
	}{
		{header: "", kind: KindMissingAuthHeader},
		{header: "   ", kind: KindMissingAuthHeader},
		{header: "Basic dXNlcjpwYXNz", kind: KindMalformedAuthScheme},
		{header: "Bearer", kind: KindMissingToken},
		{header: "Bearer a b", kind: KindMalformedAuthHeader},
	}
	for _, tt := range tests {
		_, err := gate.Authorize(context.Background(), tt.header)
		var authErr *Error
		require.ErrorAs(t, err, &authErr, tt.header)
		require.Equal(t, tt.kind, authErr.Kind, tt.header)
		require.Equal(t, http.StatusUnauthorized, authErr.Status, tt.header)
	}
	require.Zero(t, resolver.calls)
}

func TestGatePermissions(t *testing.T) {
	key, _ := testKeys(t)
	resolver := &countingResolver{key: &key.PublicKey}
	gate := NewGate(logger.New("error"), NewVerifier(resolver, testAudience, Issuer(testDomain)), testPermission)
	ctx := context.Background()

	claims, err := gate.Authorize(ctx, "bearer "+sign(t, key, "kid-a", validClaims()))
	require.NoError(t, err)
	require.Equal(t, []string{testPermission}, claims.Permissions)

	noPermissions := validClaims()
	noPermissions.Permissions = nil
	_, err = gate.Authorize(ctx, "Bearer "+sign(t, key, "kid-a", noPermissions))
	var authErr *Error
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, KindNoPermissionsClaim, authErr.Kind)
	require.Equal(t, http.StatusBadRequest, authErr.Status)

	otherPermission := validClaims()
	otherPermission.Permissions = []string{"write:other"}
	_, err = gate.Authorize(ctx, "Bearer "+sign(t, key, "kid-a", otherPermission))
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, KindForbidden, authErr.Kind)
	require.Equal(t, http.StatusForbidden, authErr.Status)
	require.Equal(t, "Unauthorized request", authErr.Message)

	emptyPermissions := validClaims()
	emptyPermissions.Permissions = []string{}
	_, err = gate.Authorize(ctx, "Bearer "+sign(t, key, "kid-a", emptyPermissions))
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, KindForbidden, authErr.Kind)
}

func TestClaimsContext(t *testing.T) {
	require.Nil(t, ClaimsFrom(context.Background()))
	claims := &models.Claims{Permissions: []string{testPermission}}
	require.Same(t, claims, ClaimsFrom(WithClaims(context.Background(), claims)))
}

func TestIssuer(t *testing.T) {
	require.Equal(t, "https://tenant.auth0.com/", Issuer("tenant.auth0.com"))
}
