package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, username string, ttl time.Duration, secret string) string {
	t.Helper()
	claims := &Claims{
		UserID:   42,
		Username: username,
		Type:     "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign error = %v", err)
	}
	return s
}

func TestUsernameFromToken_Unverified(t *testing.T) {
	tok := sign(t, "ann", time.Hour, "server-only-secret")
	name, err := UsernameFromToken(tok, nil)
	if err != nil {
		t.Fatalf("UsernameFromToken() error = %v", err)
	}
	if name != "ann" {
		t.Fatalf("UsernameFromToken() = %q, want ann", name)
	}
}

func TestUsernameFromToken_Verified(t *testing.T) {
	tok := sign(t, "ann", time.Hour, "s3cret")
	if _, err := UsernameFromToken(tok, []byte("s3cret")); err != nil {
		t.Fatalf("UsernameFromToken(valid) error = %v", err)
	}
	if _, err := UsernameFromToken(tok, []byte("wrong")); err == nil {
		t.Fatalf("UsernameFromToken(wrong secret) error = nil")
	}
}

func TestUsernameFromToken_Expired(t *testing.T) {
	tok := sign(t, "ann", -time.Minute, "x")
	if _, err := UsernameFromToken(tok, nil); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("error = %v, want ErrTokenExpired", err)
	}
}

func TestUsernameFromToken_Missing(t *testing.T) {
	tok := sign(t, "", time.Hour, "x")
	if _, err := UsernameFromToken(tok, nil); !errors.Is(err, ErrNoUsername) {
		t.Fatalf("error = %v, want ErrNoUsername", err)
	}
	if _, err := UsernameFromToken("not-a-token", nil); err == nil {
		t.Fatalf("garbage token accepted")
	}
}

func TestDisplayName(t *testing.T) {
	tok := sign(t, "fromtoken", time.Hour, "x")
	if got := DisplayName(" Ann ", tok, nil); got != "Ann" {
		t.Fatalf("DisplayName(configured) = %q", got)
	}
	if got := DisplayName("", tok, nil); got != "fromtoken" {
		t.Fatalf("DisplayName(token) = %q", got)
	}
	if got := DisplayName("", "", nil); got != AnonymousName {
		t.Fatalf("DisplayName() = %q", got)
	}
}

func TestNewParticipantID_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewParticipantID()
		if id == "" || seen[id] {
			t.Fatalf("duplicate or empty id %q", id)
		}
		seen[id] = true
	}
}
