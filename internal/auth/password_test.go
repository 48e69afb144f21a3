package auth

import (
	"context"
	"regexp"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestHasherRoundTrip(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash, err := h.Hash("042117")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "042117" {
		t.Fatal("hash must differ from plaintext")
	}
	ok, err := h.Verify(hash, "042117")
	if err != nil || !ok {
		t.Fatalf("verify = %v, %v", ok, err)
	}
	ok, err = h.Verify(hash, "042118")
	if err != nil || ok {
		t.Fatalf("mismatch verify = %v, %v", ok, err)
	}
	if _, err := h.Verify("not-a-hash", "042117"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}

func TestNewHasherClampsCost(t *testing.T) {
	if NewHasher(1).cost != DefaultPasswordCost {
		t.Fatal("cost below minimum should fall back to default")
	}
	if NewHasher(bcrypt.MaxCost+1).cost != DefaultPasswordCost {
		t.Fatal("cost above maximum should fall back to default")
	}
}

func TestTemporaryPasswordFormat(t *testing.T) {
	re := regexp.MustCompile(`^\d{6}$`)
	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		pw, err := TemporaryPassword()
		if err != nil {
			t.Fatalf("temporary password: %v", err)
		}
		if !re.MatchString(pw) {
			t.Fatalf("unexpected format %q", pw)
		}
		seen[pw] = struct{}{}
	}
	if len(seen) < 400 {
		t.Fatalf("too few distinct codes: %d", len(seen))
	}
}

type nopRevocations struct{}

func (nopRevocations) Set(context.Context, string, string, time.Duration) error { return nil }
func (nopRevocations) Exists(context.Context, string) (bool, error) { return false, nil }
func (nopRevocations) DeleteAll(context.Context, string) (int64, error) { return 0, nil }
func (nopRevocations) Count(context.Context, string) (int64, error) { return 0, nil }
