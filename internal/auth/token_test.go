package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestIssuer(t *testing.T, now func() time.Time) *Issuer {
	t.Helper()
	iss, err := NewIssuer("secret", 15*time.Minute, 24*time.Hour, now)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return iss
}

func TestIssueAccessCarriesFixedClaims(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	iss := newTestIssuer(t, func() time.Time { return now })

	token, exp, err := iss.IssueAccess(&Account{ID: "acc-1", Email: "ana@empresa.com", Class: ClassEmployee})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("expiry = %v", exp)
	}

	claims, err := iss.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "ana@empresa.com" || claims.UserID != "acc-1" || claims.UserClass != ClassEmployee {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.IssuedAt.Time.Equal(now) {
		t.Fatalf("iat = %v", claims.IssuedAt.Time)
	}

	// Only sub, iat, exp and the two custom claims are present.
	raw := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, raw); err != nil {
		t.Fatalf("parse unverified: %v", err)
	}
	for k := range raw {
		switch k {
		case "sub", "iat", "exp", "userId", "userClass":
		default:
			t.Fatalf("unexpected claim %q", k)
		}
	}
}

func TestIssueRefreshOmitsAccountClaims(t *testing.T) {
	iss := newTestIssuer(t, nil)
	token, _, err := iss.IssueRefresh("ana@empresa.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	raw := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, raw); err != nil {
		t.Fatalf("parse unverified: %v", err)
	}
	if _, ok := raw["userId"]; ok {
		t.Fatal("refresh token must not carry userId")
	}
	if _, ok := raw["userClass"]; ok {
		t.Fatal("refresh token must not carry userClass")
	}
}

func TestParseRejectsForeignSignatureAndAlgorithm(t *testing.T) {
	iss := newTestIssuer(t, nil)
	other, err := NewIssuer("other-secret", time.Minute, time.Hour, nil)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	foreign, _, err := other.IssueAccess(&Account{ID: "x", Email: "ana@empresa.com"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := iss.Parse(foreign); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "ana@empresa.com",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := iss.Parse(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for alg none, got %v", err)
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "ana@empresa.com",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign hs512: %v", err)
	}
	if _, err := iss.Parse(hs512); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for HS512, got %v", err)
	}
}

func TestParseRequiresTimestamps(t *testing.T) {
	iss := newTestIssuer(t, nil)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ana@empresa.com",
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := iss.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseLeavesExpiryToCaller(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	iss := newTestIssuer(t, func() time.Time { return now })
	token, exp, err := iss.IssueAccess(&Account{ID: "acc-1", Email: "ana@empresa.com"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	now = now.Add(time.Hour)
	claims, err := iss.Parse(token)
	if err != nil {
		t.Fatalf("expired token should still parse: %v", err)
	}
	if !claims.ExpiredAt(now) {
		t.Fatal("expected token to be expired")
	}
	if claims.ExpiredAt(exp.Add(-time.Second)) {
		t.Fatal("token expired too early")
	}
	if !claims.ExpiredAt(exp) {
		t.Fatal("token must be expired at its exp instant")
	}
}

func TestNewIssuerValidation(t *testing.T) {
	if _, err := NewIssuer("  ", time.Minute, time.Hour, nil); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewIssuer("s", 0, time.Hour, nil); err == nil {
		t.Fatal("expected error for zero access ttl")
	}
	if _, err := NewIssuer("s", time.Minute, -time.Hour, nil); err == nil {
		t.Fatal("expected error for negative refresh ttl")
	}
}

func TestNewServiceRequiresSecret(t *testing.T) {
	_, err := NewService(NewMemoryStore(), nopRevocations{})
	if err == nil || !strings.Contains(err.Error(), "secret") {
		t.Fatalf("expected secret error, got %v", err)
	}
}

func TestStripBearer(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer abc":   "abc",
		"BEARER  abc ": "abc",
		"abc":          "abc",
		"  ":           "",
		"Bearerabc":    "Bearerabc",
	}
	for in, want := range cases {
		if got := stripBearer(in); got != want {
			t.Fatalf("stripBearer(%q) = %q, want %q", in, got, want)
		}
	}
}
