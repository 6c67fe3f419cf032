package activitypub

import (
	"net/url"
	"regexp"
	"strings"
)

var apiVersionSegment = regexp.MustCompile(`^v\d+$`)

// nested resources tagged by their sub-resource rather than their parent
var nestedParents = map[string]bool{
	"accounts": true,
	"statuses": true,
}

// EndpointTag derives the rate limit and statistics key of a request URL.
//
//	/api/v1/media/123              MEDIA
//	/api/v1/accounts/1/statuses    STATUSES
//	/api/v1/statuses/9/favourite   FAVOURITE
//	/users/alice/outbox            OUTBOX
//	/oauth/token, /api/v1/apps     AUTH
//
// Unrecognized paths have no tag.
func EndpointTag(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}

	segments := splitPath(path)
	if len(segments) == 0 {
		return ""
	}

	if segments[0] == "oauth" {
		return "AUTH"
	}

	if segments[0] == "api" && len(segments) >= 3 && apiVersionSegment.MatchString(segments[1]) {
		resource := segments[2]
		if resource == "apps" {
			return "AUTH"
		}
		if nestedParents[resource] && len(segments) >= 5 {
			return strings.ToUpper(segments[4])
		}
		return strings.ToUpper(resource)
	}

	switch last := segments[len(segments)-1]; last {
	case "inbox", "outbox", "followers", "following":
		return strings.ToUpper(last)
	}
	return ""
}

func splitPath(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			out = append(out, strings.ToLower(s))
		}
	}
	return out
}
