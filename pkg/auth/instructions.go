package auth

import (
	"fmt"
	"io"
	"strings"
)

// tokenSettingsPath is where each platform lets users create an access token.
var tokenSettingsPath = map[string]string{
	"mastodon": "/settings/applications",
	"pixelfed": "/settings/applications",
}

// ShowTokenGuide writes instructions for creating an access token on instanceURL.
func ShowTokenGuide(w io.Writer, platform, instanceURL string) {
	base := strings.TrimRight(instanceURL, "/")
	if base == "" {
		base = "https://<your instance>"
	}

	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w, "ACCESS TOKEN SETUP")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)
	if path, ok := tokenSettingsPath[strings.ToLower(platform)]; ok {
		fmt.Fprintf(w, "1. Open %s%s and sign in.\n", base, path)
		fmt.Fprintln(w, "2. Create a new application (any name, e.g. \"fedicaption\").")
	} else {
		fmt.Fprintf(w, "1. %s has no token page. Register an application with\n", base)
		fmt.Fprintf(w, "   POST %s/api/v1/apps and authorize it at %s/oauth/authorize.\n", base, base)
		fmt.Fprintln(w, "2. Exchange the code at /oauth/token for an access token.")
	}
	fmt.Fprintln(w, "3. Grant these scopes:")
	fmt.Fprintln(w, "     read:accounts  read:statuses")
	fmt.Fprintln(w, "     write:media    write:statuses")
	fmt.Fprintln(w, "4. Save, open the application and copy \"Your access token\".")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The token gives write access to your posts. It is stored in the")
	fmt.Fprintln(w, "system keyring when available, otherwise in an encrypted file.")
	fmt.Fprintln(w, strings.Repeat("=", 72))
}
