package platforms

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	// VerifyCredentialsEndpoint returns the account owning the token
	VerifyCredentialsEndpoint = "/api/v1/accounts/verify_credentials"

	// LookupEndpoint resolves an acct to an account
	LookupEndpoint = "/api/v1/accounts/lookup"

	// SearchEndpoint is the full-text search used as a last resort
	SearchEndpoint = "/api/v2/search"

	// NodeInfoWellKnown lists the instance's NodeInfo documents
	NodeInfoWellKnown = "/.well-known/nodeinfo"

	// DefaultPostLimit is used when the caller asks for zero or fewer posts
	DefaultPostLimit = 20

	// MaxPageSize is the largest page the statuses endpoints serve
	MaxPageSize = 40
)

// AccountURL constructs the URL for one account
func AccountURL(base, id string) string {
	return fmt.Sprintf("%s/api/v1/accounts/%s", base, url.PathEscape(id))
}

// LookupURL constructs the URL resolving acct to an account
func LookupURL(base, acct string) string {
	params := url.Values{}
	params.Set("acct", acct)
	return fmt.Sprintf("%s%s?%s", base, LookupEndpoint, params.Encode())
}

// SearchURL constructs an account search URL
func SearchURL(base, query string) string {
	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "accounts")
	params.Set("limit", "5")
	params.Set("resolve", "false")
	return fmt.Sprintf("%s%s?%s", base, SearchEndpoint, params.Encode())
}

// StatusesURL constructs the URL for one page of an account's statuses
func StatusesURL(base, accountID string, limit int, maxID string) string {
	if limit <= 0 {
		limit = DefaultPostLimit
	} else if limit > MaxPageSize {
		limit = MaxPageSize
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if maxID != "" {
		params.Set("max_id", maxID)
	}
	return fmt.Sprintf("%s/api/v1/accounts/%s/statuses?%s", base, url.PathEscape(accountID), params.Encode())
}

// StatusURL constructs the URL for one status
func StatusURL(base, id string) string {
	return fmt.Sprintf("%s/api/v1/statuses/%s", base, url.PathEscape(id))
}

// MediaURL constructs the URL for one media attachment
func MediaURL(base, id string) string {
	return fmt.Sprintf("%s/api/v1/media/%s", base, url.PathEscape(id))
}
