package ingest

import (
	"strings"

	"github.com/hushmetrics/hushmetrics/internals/models"
)

// ShouldExclude evaluates the site's exclusion rules against a hit.
// Rules are checked in order: IP, path, hostname, country; any single
// match drops the hit before it reaches the store. Pure, no side effects.
func ShouldExclude(site *models.Site, ip, country, hostname, path string) bool {
	settings := site.Settings

	for _, excluded := range settings.ExcludeIPs {
		if excluded == ip {
			return true
		}
	}

	for _, rule := range settings.ExcludePaths {
		if matchPath(rule, path) {
			return true
		}
	}

	for _, excluded := range settings.ExcludeHostnames {
		if strings.EqualFold(excluded, hostname) {
			return true
		}
	}

	for _, excluded := range settings.ExcludeCountries {
		if strings.EqualFold(excluded, country) {
			return true
		}
	}

	return false
}

// matchPath matches a configured path rule. A trailing * makes the rule
// a prefix match; otherwise the match is exact.
func matchPath(rule, path string) bool {
	if rule == "" {
		return false
	}
	if strings.HasSuffix(rule, "*") {
		return strings.HasPrefix(path, strings.TrimSuffix(rule, "*"))
	}
	return rule == path
}
