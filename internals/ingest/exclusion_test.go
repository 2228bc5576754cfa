package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hushmetrics/hushmetrics/internals/models"
)

func TestShouldExclude(t *testing.T) {
	site := &models.Site{
		ID: "site-1",
		Settings: models.SiteSettings{
			ExcludeIPs:       []string{"203.0.113.9"},
			ExcludePaths:     []string{"/admin/*", "/healthz"},
			ExcludeHostnames: []string{"staging.example.com"},
			ExcludeCountries: []string{"XX"},
		},
	}

	tests := []struct {
		name     string
		ip       string
		country  string
		hostname string
		path     string
		want     bool
	}{
		{"clean hit passes", "198.51.100.1", "US", "example.com", "/pricing", false},
		{"excluded ip", "203.0.113.9", "US", "example.com", "/pricing", true},
		{"wildcard path prefix", "198.51.100.1", "US", "example.com", "/admin/users", true},
		{"wildcard matches bare prefix", "198.51.100.1", "US", "example.com", "/admin/", true},
		{"exact path", "198.51.100.1", "US", "example.com", "/healthz", true},
		{"exact path is not a prefix", "198.51.100.1", "US", "example.com", "/healthz/deep", false},
		{"excluded hostname", "198.51.100.1", "US", "staging.example.com", "/pricing", true},
		{"hostname match is case-insensitive", "198.51.100.1", "US", "Staging.Example.COM", "/pricing", true},
		{"excluded country", "198.51.100.1", "xx", "example.com", "/pricing", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShouldExclude(site, tt.ip, tt.country, tt.hostname, tt.path)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShouldExcludeEmptyRules(t *testing.T) {
	site := &models.Site{ID: "site-2"}
	assert.False(t, ShouldExclude(site, "198.51.100.1", "US", "example.com", "/"))
}
