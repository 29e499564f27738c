package domain

import "testing"

func TestClassifyReferrerDomain(t *testing.T) {
	tests := []struct {
		domain string
		want   ReferrerCategory
	}{
		{"google.com", ReferrerCategorySearch},
		{"www.bing.com", ReferrerCategorySearch},
		{"customsearch.example.com", ReferrerCategorySearch},
		{"facebook.com", ReferrerCategorySocial},
		{"m.tiktok.com", ReferrerCategorySocial},
		{"social.example.com", ReferrerCategorySocial},
		{"mail.example.com", ReferrerCategoryEmail},
		{"webemail.example.com", ReferrerCategoryEmail},
		{"news.example.com", ReferrerCategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			if got := ClassifyReferrerDomain(tt.domain); got != tt.want {
				t.Errorf("ClassifyReferrerDomain(%q) = %v, want %v", tt.domain, got, tt.want)
			}
		})
	}
}

func TestClassifyReferrerDomainCaseInsensitive(t *testing.T) {
	if got := ClassifyReferrerDomain("GOOGLE.COM"); got != ReferrerCategorySearch {
		t.Errorf("ClassifyReferrerDomain() = %v, want %v", got, ReferrerCategorySearch)
	}
}

func TestExtractReferrerDomain(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantOK  bool
	}{
		{"normal url", "https://www.Google.com/search?q=x", "www.google.com", true},
		{"empty", "", "", false},
		{"no host", "not a url", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractReferrerDomain(tt.url)
			if ok != tt.wantOK {
				t.Fatalf("ExtractReferrerDomain() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ExtractReferrerDomain() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractLandingPath(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/pricing", "/pricing"},
		{"https://example.com", "/"},
		{"", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := ExtractLandingPath(tt.url); got != tt.want {
				t.Errorf("ExtractLandingPath(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestTruncateURLSample(t *testing.T) {
	short := "https://example.com/a"
	if got := TruncateURLSample(short); got != short {
		t.Errorf("TruncateURLSample() altered a short url: %q", got)
	}

	long := make([]byte, 600)
	for i := range long {
		long[i] = 'a'
	}
	got := TruncateURLSample(string(long))
	if len(got) != landingURLSampleMaxLen {
		t.Errorf("TruncateURLSample() length = %d, want %d", len(got), landingURLSampleMaxLen)
	}
}
