package invite

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func fixedIssuer(secret string, now time.Time) *Issuer {
	issuer := NewIssuer(secret, time.Hour)
	issuer.now = func() time.Time { return now }
	return issuer
}

func TestIssueAndParse(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := fixedIssuer("secret", now)

	token, expiresAt, err := issuer.Issue("ws_1", "user_b", "member")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if !expiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expiresAt = %v", expiresAt)
	}

	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.WorkspaceID != "ws_1" || claims.UserID != "user_b" || claims.Role != "member" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := fixedIssuer("secret", now)
	token, _, err := issuer.Issue("ws_1", "user_b", "member")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	issuer.now = func() time.Time { return now.Add(2 * time.Hour) }
	if _, err := issuer.Parse(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("Parse() error = %v, want ErrExpired", err)
	}
}

func TestParseRejectsTampering(t *testing.T) {
	now := time.Now()
	issuer := fixedIssuer("secret", now)
	token, _, err := issuer.Issue("ws_1", "user_b", "member")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("expected a three part token, got %q", token)
	}
	forged, _, err := fixedIssuer("secret", now).Issue("ws_1", "user_c", "admin")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	swapped := parts[0] + "." + strings.Split(forged, ".")[1] + "." + parts[2]

	cases := map[string]string{
		"swapped payload": swapped,
		"garbage":         "not-a-token",
		"empty":           "",
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := issuer.Parse(value); !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("Parse() error = %v, want ErrInvalidSignature", err)
			}
		})
	}
}

func TestParseRejectsWrongSecretEvenWhenExpired(t *testing.T) {
	now := time.Now()
	token, _, err := fixedIssuer("other", now.Add(-48*time.Hour)).Issue("ws_1", "user_b", "member")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := fixedIssuer("secret", now).Parse(token); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("Parse() error = %v, want ErrInvalidSignature", err)
	}
}
