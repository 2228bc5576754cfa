package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNullResolver(t *testing.T) {
	loc := NullResolver{}.Locate(context.Background(), "8.8.8.8")
	assert.Equal(t, UnknownCountry, loc.Country)
	assert.Zero(t, loc.Latitude)
	assert.Zero(t, loc.Longitude)
}

func TestMaxMindResolverRejectsNonPublicIPs(t *testing.T) {
	// non-public addresses short-circuit before the reader is touched,
	// so a zero-value resolver is safe here
	resolver := &MaxMindResolver{}

	tests := []struct {
		name string
		ip   string
	}{
		{"loopback", "127.0.0.1"},
		{"private v4", "192.168.1.10"},
		{"private v4 10-block", "10.0.0.5"},
		{"link local", "169.254.1.1"},
		{"unspecified", "0.0.0.0"},
		{"garbage", "not-an-ip"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := resolver.Locate(context.Background(), tt.ip)
			assert.Equal(t, UnknownCountry, loc.Country)
			assert.Empty(t, loc.City)
			assert.Zero(t, loc.Latitude)
		})
	}
}
