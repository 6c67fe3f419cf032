package platforms

import (
	"context"
	"fmt"
	"strings"

	"fedicaption/pkg/transport"
)

const nodeInfoSchemaPrefix = "http://nodeinfo.diaspora.software/ns/schema/"

type nodeInfoLinks struct {
	Links []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

type nodeInfo struct {
	Software struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"software"`
}

// Discover reads the instance's NodeInfo document and returns the platform
// name it reports, lower-cased. Akkoma is reported as pleroma.
func Discover(ctx context.Context, r transport.Requester, instanceURL string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(instanceURL), "/")
	if base == "" {
		return "", fmt.Errorf("nodeinfo: instance url is empty")
	}

	var links nodeInfoLinks
	if err := transport.GetJSON(ctx, r, base+NodeInfoWellKnown, &links); err != nil {
		return "", fmt.Errorf("nodeinfo: %w", err)
	}

	href := ""
	for _, l := range links.Links {
		if strings.HasPrefix(l.Rel, nodeInfoSchemaPrefix) && l.Href != "" {
			href = l.Href
		}
	}
	if href == "" {
		return "", fmt.Errorf("nodeinfo: no schema link at %s", base+NodeInfoWellKnown)
	}

	var info nodeInfo
	if err := transport.GetJSON(ctx, r, href, &info); err != nil {
		return "", fmt.Errorf("nodeinfo: %w", err)
	}

	name := strings.ToLower(strings.TrimSpace(info.Software.Name))
	if name == "" {
		return "", fmt.Errorf("nodeinfo: software name missing")
	}
	if name == "akkoma" {
		name = PleromaName
	}
	return name, nil
}
