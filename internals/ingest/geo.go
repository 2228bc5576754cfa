package ingest

import (
	"context"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// UnknownCountry is recorded when an IP cannot be resolved to a location.
const UnknownCountry = "Unknown"

// Location is a coarse, IP-block-based approximation. This is not
// precise positioning; coordinates are city-block resolution at best.
type Location struct {
	Country   string
	Region    string
	City      string
	Latitude  float64
	Longitude float64
}

// unknownLocation is the graceful fallback for unresolvable IPs.
func unknownLocation() Location {
	return Location{Country: UnknownCountry}
}

// GeoResolver maps a client IP to an approximate location. Lookups must
// respect ctx and degrade to an unknown location rather than failing.
type GeoResolver interface {
	Locate(ctx context.Context, ip string) Location
}

// MaxMindResolver resolves locations from a local MaxMind city database.
type MaxMindResolver struct {
	reader *geoip2.Reader
}

func NewMaxMindResolver(dbPath string) (*MaxMindResolver, error) {
	reader, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &MaxMindResolver{reader: reader}, nil
}

func (r *MaxMindResolver) Close() {
	if r.reader != nil {
		r.reader.Close()
	}
}

// Locate looks up the IP in the city database. Private, loopback and
// unparseable addresses resolve to the unknown location. The lookup runs
// off the request goroutine so a slow read cannot stall the hot path
// past the caller's deadline.
func (r *MaxMindResolver) Locate(ctx context.Context, ipAddr string) Location {
	ip := net.ParseIP(ipAddr)
	if ip == nil || !isPublic(ip) {
		return unknownLocation()
	}

	type lookupResult struct {
		record *geoip2.City
		err    error
	}
	done := make(chan lookupResult, 1)
	go func() {
		record, err := r.reader.City(ip)
		done <- lookupResult{record, err}
	}()

	select {
	case <-ctx.Done():
		return unknownLocation()
	case result := <-done:
		if result.err != nil || result.record == nil {
			return unknownLocation()
		}
		return locationFromRecord(result.record)
	}
}

func locationFromRecord(record *geoip2.City) Location {
	loc := Location{
		Country:   record.Country.IsoCode,
		City:      record.City.Names["en"],
		Latitude:  record.Location.Latitude,
		Longitude: record.Location.Longitude,
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].Names["en"]
	}
	if loc.Country == "" {
		loc.Country = UnknownCountry
	}
	return loc
}

func isPublic(ip net.IP) bool {
	return !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() && !ip.IsLinkLocalUnicast()
}

// NullResolver answers every lookup with the unknown location. Used when
// no GeoIP database is configured.
type NullResolver struct{}

func (NullResolver) Locate(context.Context, string) Location {
	return unknownLocation()
}
