package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var secret = []byte("test-secret")

func TestIssueAndParseRoundTrip(t *testing.T) {
	token, err := IssueToken(secret, "user_1", "Ada", "jti-1", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user_1" || claims.Name != "Ada" || claims.JTI != "jti-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := IssueToken(secret, "user_1", "Ada", "jti-1", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := ParseToken([]byte("other-secret"), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	token, err := IssueToken(secret, "user_1", "Ada", "jti-1", -time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := ParseToken(secret, token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "not.a.token", "a.b"} {
		if _, err := ParseToken(secret, raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestHashTokenStable(t *testing.T) {
	a := HashToken("refresh-value")
	b := HashToken("refresh-value")
	if a != b {
		t.Fatal("hash should be deterministic")
	}
	if a == HashToken("other") {
		t.Fatal("distinct inputs should not collide")
	}
	if len(a) != 64 || strings.ToLower(a) != a {
		t.Fatalf("expected lowercase hex sha256, got %q", a)
	}
}
