package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	chromeDesktopUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	iphoneUA        = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	googlebotUA     = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func TestExtractAttributionUTM(t *testing.T) {
	attr := ExtractAttribution(
		"/landing?utm_source=newsletter&utm_medium=email&utm_campaign=spring&utm_term=analytics&utm_content=cta",
		"", chromeDesktopUA)

	assert.Equal(t, "newsletter", attr.UTMSource)
	assert.Equal(t, "email", attr.UTMMedium)
	assert.Equal(t, "spring", attr.UTMCampaign)
	assert.Equal(t, "analytics", attr.UTMTerm)
	assert.Equal(t, "cta", attr.UTMContent)
}

func TestExtractAttributionUTMFallsBackToReferrer(t *testing.T) {
	attr := ExtractAttribution(
		"/landing",
		"https://news.example.org/post?utm_source=reddit&utm_medium=social",
		chromeDesktopUA)

	assert.Equal(t, "reddit", attr.UTMSource)
	assert.Equal(t, "social", attr.UTMMedium)
}

func TestExtractAttributionReferrer(t *testing.T) {
	tests := []struct {
		name       string
		referrer   string
		wantDomain string
		wantPath   string
	}{
		{
			name:       "registrable domain is extracted",
			referrer:   "https://blog.news.example.co.uk/posts/1",
			wantDomain: "example.co.uk",
			wantPath:   "/posts/1",
		},
		{
			name:       "direct traffic has no referrer domain",
			referrer:   "",
			wantDomain: "",
			wantPath:   "",
		},
		{
			name:       "garbage referrer yields empty fields",
			referrer:   "::not a url::",
			wantDomain: "",
			wantPath:   "",
		},
		{
			name:       "bare host without suffix is kept as-is",
			referrer:   "http://localhost:3000/dev",
			wantDomain: "localhost",
			wantPath:   "/dev",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attr := ExtractAttribution("/", tt.referrer, "")
			assert.Equal(t, tt.wantDomain, attr.ReferrerDomain)
			assert.Equal(t, tt.wantPath, attr.ReferrerPath)
		})
	}
}

func TestClassifyAgent(t *testing.T) {
	tests := []struct {
		name       string
		ua         string
		wantDevice string
	}{
		{"desktop browser", chromeDesktopUA, "desktop"},
		{"phone", iphoneUA, "mobile"},
		{"crawler", googlebotUA, "bot"},
		{"empty agent", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device, browser, _ := classifyAgent(tt.ua)
			assert.Equal(t, tt.wantDevice, device)
			if tt.ua != "" {
				assert.NotEmpty(t, browser)
			}
		})
	}
}
