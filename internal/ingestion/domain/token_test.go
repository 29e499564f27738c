package domain

import (
	"testing"
	"time"
)

func TestParseBearerToken(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantPrefix string
		wantSecret string
		wantOK     bool
	}{
		{"valid token", "Bearer abcdefghijkl.supersecretvalue", "abcdefghijkl", "supersecretvalue", true},
		{"missing scheme", "abcdefghijkl.supersecretvalue", "", "", false},
		{"empty body", "Bearer ", "", "", false},
		{"no dot", "Bearer abcdefghijklsupersecretvalue", "", "", false},
		{"short prefix", "Bearer short.secret", "", "", false},
		{"empty secret", "Bearer abcdefghijkl.", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseBearerToken(tt.header)
			if ok != tt.wantOK {
				t.Fatalf("ParseBearerToken() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Prefix != tt.wantPrefix || got.Secret != tt.wantSecret {
				t.Errorf("ParseBearerToken() = %+v, want prefix=%q secret=%q", got, tt.wantPrefix, tt.wantSecret)
			}
		})
	}
}

func TestHashTokenPlaintextDeterministic(t *testing.T) {
	h1 := HashTokenPlaintext("abcdefghijkl", "secret")
	h2 := HashTokenPlaintext("abcdefghijkl", "secret")
	if h1 != h2 {
		t.Errorf("HashTokenPlaintext() not deterministic: %q != %q", h1, h2)
	}

	h3 := HashTokenPlaintext("abcdefghijkl", "other")
	if h1 == h3 {
		t.Errorf("HashTokenPlaintext() collided for different secrets")
	}
}

func TestIngestionTokenVerifyHash(t *testing.T) {
	tok := &IngestionToken{Hash: HashTokenPlaintext("abcdefghijkl", "secret")}

	if !tok.VerifyHash(HashTokenPlaintext("abcdefghijkl", "secret")) {
		t.Error("VerifyHash() = false for matching hash, want true")
	}
	if tok.VerifyHash(HashTokenPlaintext("abcdefghijkl", "wrong")) {
		t.Error("VerifyHash() = true for mismatched hash, want false")
	}
}

func TestIngestionTokenIsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		tok  *IngestionToken
		want bool
	}{
		{"no expiry", &IngestionToken{}, false},
		{"expired", &IngestionToken{ExpiresAt: &past}, true},
		{"not yet expired", &IngestionToken{ExpiresAt: &future}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tok.IsExpired(now); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIngestionTokenIPAllowed(t *testing.T) {
	tests := []struct {
		name      string
		allowlist []string
		clientIP  string
		want      bool
	}{
		{"empty allowlist permits any ip", nil, "203.0.113.5", true},
		{"matching ip", []string{"203.0.113.5", "198.51.100.1"}, "203.0.113.5", true},
		{"non-matching ip", []string{"203.0.113.5"}, "198.51.100.1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := &IngestionToken{IPAllowlist: tt.allowlist}
			if got := tok.IPAllowed(tt.clientIP); got != tt.want {
				t.Errorf("IPAllowed(%q) = %v, want %v", tt.clientIP, got, tt.want)
			}
		})
	}
}
