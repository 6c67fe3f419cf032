package platforms

import (
	"net/url"
	"strings"
)

// hostOf returns the lower-cased host of instanceURL, accepting bare domains.
func hostOf(instanceURL string) string {
	raw := strings.TrimSpace(instanceURL)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// matchHost reports whether the host of instanceURL is one of known, or a
// subdomain of one, or contains any of the substrings.
func matchHost(instanceURL string, known []string, substrings []string) bool {
	host := hostOf(instanceURL)
	if host == "" {
		return false
	}
	for _, k := range known {
		if host == k || strings.HasSuffix(host, "."+k) {
			return true
		}
	}
	for _, s := range substrings {
		if strings.Contains(host, s) {
			return true
		}
	}
	return false
}
