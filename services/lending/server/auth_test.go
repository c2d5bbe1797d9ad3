package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"foxylend/crypto"
)

func TestAuthenticatorInstallsCaller(t *testing.T) {
	cfg := AuthConfig{HMACSecret: "s3cret", Issuer: "foxylend", Audience: "lending"}
	auth := NewAuthenticator(cfg, nil)
	caller := crypto.AddressFromSeed("auth/caller")

	var seen crypto.Address
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CallerFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	token, err := IssueToken(cfg, caller, time.Minute, time.Now())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, seen.Equal(caller))
}

func TestAuthenticatorRejectsMismatchedClaims(t *testing.T) {
	cfg := AuthConfig{HMACSecret: "s3cret", Issuer: "foxylend"}
	auth := NewAuthenticator(cfg, nil)
	caller := crypto.AddressFromSeed("auth/caller")

	wrongIssuer, err := IssueToken(AuthConfig{HMACSecret: "s3cret", Issuer: "someone-else"}, caller, time.Minute, time.Now())
	require.NoError(t, err)
	_, err = auth.parseCaller(wrongIssuer)
	require.Error(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: caller.String(),
		Issuer:  "foxylend",
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = auth.parseCaller(noExpiry)
	require.Error(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "not-an-address",
		Issuer:    "foxylend",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = auth.parseCaller(badSubject)
	require.Error(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   caller.String(),
		Issuer:    "foxylend",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.parseCaller(unsigned)
	require.Error(t, err)
}

func TestIssueTokenValidation(t *testing.T) {
	_, err := IssueToken(AuthConfig{}, crypto.AddressFromSeed("x"), time.Minute, time.Now())
	require.Error(t, err)
	_, err = IssueToken(AuthConfig{HMACSecret: "s"}, crypto.Address{}, time.Minute, time.Now())
	require.Error(t, err)
}

func TestExtractBearer(t *testing.T) {
	require.Equal(t, "abc", extractBearer("Bearer abc"))
	require.Equal(t, "", extractBearer("Basic abc"))
	require.Equal(t, "", extractBearer("abc"))
}
