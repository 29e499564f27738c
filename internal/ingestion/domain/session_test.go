package domain

import (
	"testing"
	"time"
)

func TestIsBotUserAgent(t *testing.T) {
	tests := []struct {
		name      string
		userAgent string
		want      bool
	}{
		{"googlebot", "Mozilla/5.0 (compatible; Googlebot/2.1)", true},
		{"generic crawler", "SomeCrawler/1.0", true},
		{"uppercase BOT", "EXAMPLE-BOT", true},
		{"scraper", "python-scraper", true},
		{"normal chrome", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/114.0", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBotUserAgent(tt.userAgent); got != tt.want {
				t.Errorf("IsBotUserAgent(%q) = %v, want %v", tt.userAgent, got, tt.want)
			}
		})
	}
}

func TestSessionIsActive(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	timeout := 30 * time.Minute

	tests := []struct {
		name    string
		session *Session
		want    bool
	}{
		{
			name:    "recent and open",
			session: &Session{StartedAt: now.Add(-10 * time.Minute)},
			want:    true,
		},
		{
			name:    "stale and open",
			session: &Session{StartedAt: now.Add(-45 * time.Minute)},
			want:    false,
		},
		{
			name: "recent but closed",
			session: &Session{
				StartedAt: now.Add(-5 * time.Minute),
				EndedAt:   timePtr(now.Add(-1 * time.Minute)),
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.session.IsActive(now, timeout); got != tt.want {
				t.Errorf("IsActive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
