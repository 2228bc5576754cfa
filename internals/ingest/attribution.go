package ingest

import (
	"net/url"
	"strings"

	"github.com/mileusna/useragent"
	"golang.org/x/net/publicsuffix"
)

// Attribution is the channel/device classification for one hit. All
// fields are best-effort: unparseable input yields empty values, never
// an error.
type Attribution struct {
	Referrer       string
	ReferrerDomain string
	ReferrerPath   string
	UTMSource      string
	UTMMedium      string
	UTMCampaign    string
	UTMTerm        string
	UTMContent     string
	DeviceType     string
	Browser        string
	OS             string
}

// ExtractAttribution parses UTM parameters, the referrer's registrable
// domain and coarse device categories from the raw request values. Pure
// and deterministic; no store or network access.
func ExtractAttribution(pageURL, referrer, userAgent string) Attribution {
	attr := Attribution{Referrer: referrer}

	// UTM parameters from the page URL, falling back to the referrer
	query := queryOf(pageURL)
	if query.Get("utm_source") == "" {
		if refQuery := queryOf(referrer); refQuery.Get("utm_source") != "" {
			query = refQuery
		}
	}
	attr.UTMSource = query.Get("utm_source")
	attr.UTMMedium = query.Get("utm_medium")
	attr.UTMCampaign = query.Get("utm_campaign")
	attr.UTMTerm = query.Get("utm_term")
	attr.UTMContent = query.Get("utm_content")

	attr.ReferrerDomain, attr.ReferrerPath = parseReferrer(referrer)

	attr.DeviceType, attr.Browser, attr.OS = classifyAgent(userAgent)

	return attr
}

// parseReferrer returns the registrable domain and path of the referrer.
// Direct traffic (empty or unparseable referrer) yields empty values.
func parseReferrer(referrer string) (domain, path string) {
	if referrer == "" {
		return "", ""
	}
	u, err := url.Parse(referrer)
	if err != nil || u.Hostname() == "" {
		return "", ""
	}

	host := strings.ToLower(u.Hostname())
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		// bare hosts like "localhost" or raw IPs have no registrable domain
		registrable = host
	}
	return registrable, u.Path
}

// classifyAgent maps a user-agent string to coarse categories.
func classifyAgent(raw string) (device, browser, os string) {
	if raw == "" {
		return "", "", ""
	}

	ua := useragent.Parse(raw)
	switch {
	case ua.Bot:
		device = "bot"
	case ua.Tablet:
		device = "tablet"
	case ua.Mobile:
		device = "mobile"
	default:
		device = "desktop"
	}
	return device, ua.Name, ua.OS
}

func queryOf(rawURL string) url.Values {
	if rawURL == "" {
		return url.Values{}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return url.Values{}
	}
	return u.Query()
}
