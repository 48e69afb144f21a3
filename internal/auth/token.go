package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the fixed claim set carried by access and refresh tokens.
// Refresh tokens leave UserID and UserClass empty.
type Claims struct {
	UserID    string `json:"userId,omitempty"`
	UserClass Class  `json:"userClass,omitempty"`
	jwt.RegisteredClaims
}

// Expiry returns the absolute expiry, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// ExpiredAt reports whether the token is no longer usable at now.
func (c *Claims) ExpiredAt(now time.Time) bool {
	return !now.Before(c.Expiry())
}

// Issuer signs and parses HS256 tokens with a single shared secret.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

// NewIssuer validates the signing configuration.
func NewIssuer(secret string, accessTTL, refreshTTL time.Duration, now func() time.Time) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: token secret is required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        now,
		// Expiry is checked by the caller so that "expired" stays distinguishable
		// from a bad signature.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// IssueAccess signs a short-lived token for the account.
func (i *Issuer) IssueAccess(acc *Account) (string, time.Time, error) {
	if acc == nil || strings.TrimSpace(acc.Email) == "" {
		return "", time.Time{}, errors.New("auth: account email is required")
	}
	return i.sign(Claims{UserID: acc.ID, UserClass: acc.Class}, acc.Email, i.accessTTL)
}

// IssueRefresh signs a long-lived token that only carries the subject.
func (i *Issuer) IssueRefresh(email string) (string, time.Time, error) {
	if strings.TrimSpace(email) == "" {
		return "", time.Time{}, errors.New("auth: email is required")
	}
	return i.sign(Claims{}, email, i.refreshTTL)
}

func (i *Issuer) sign(claims Claims, subject string, ttl time.Duration) (string, time.Time, error) {
	now := i.now().UTC()
	exp := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	// NumericDate truncates to seconds; report what the token actually carries.
	return signed, claims.ExpiresAt.Time, nil
}

// Parse verifies the signature and returns the claims. Time-based claims are
// not evaluated here; see Claims.ExpiredAt.
func (i *Issuer) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := i.parser.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: timestamps missing", ErrInvalidToken)
	}
	return claims, nil
}
