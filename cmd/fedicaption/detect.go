package main

import (
	"fmt"
	"strings"

	"fedicaption/pkg/logger"
	"fedicaption/pkg/platforms"
	"fedicaption/pkg/ui"

	"github.com/spf13/cobra"
)

type detection struct {
	Instance string `json:"instance"`
	Platform string `json:"platform"`
	Method   string `json:"method"`
}

func newDetectCmd(a *app) *cobra.Command {
	var (
		nodeInfo bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "detect <instance-url>",
		Short: "Work out which platform an instance runs",
		Long: `Work out which platform adapter would serve an instance.

By default only the URL is inspected, which recognises well known hosts
and host names containing a platform name. Anything else falls back to
the default platform. With --nodeinfo the instance is asked directly.`,
		Example: `  fedicaption detect https://mastodon.social
  fedicaption detect https://photos.example.org --nodeinfo`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instance := strings.TrimRight(args[0], "/")
			if !strings.Contains(instance, "://") {
				instance = "https://" + instance
			}

			cfg, err := a.loadConfig(false)
			if err != nil {
				return err
			}
			registry := platforms.DefaultRegistry(logger.GetLogger())

			result := detection{Instance: instance}
			if nodeInfo {
				session := a.newSession(cfg)
				defer session.Close()

				software, err := platforms.Discover(cmd.Context(), session, instance)
				if err != nil {
					return fmt.Errorf("nodeinfo discovery failed: %w", err)
				}
				result.Platform = software
				result.Method = "nodeinfo"
			} else if name, ok := registry.Detect(instance); ok {
				result.Platform = name
				result.Method = "url"
			} else {
				result.Platform = registry.Fallback()
				result.Method = "fallback"
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			ui.PrintInfo("Instance", result.Instance)
			ui.PrintInfo("Platform", result.Platform)
			switch result.Method {
			case "nodeinfo":
				ui.PrintInfo("Detected by", "NodeInfo")
			case "url":
				ui.PrintInfo("Detected by", "URL pattern")
			default:
				ui.PrintWarning("No pattern matched, using the default platform")
				ui.PrintInfo("Supported", strings.Join(registry.Names(), ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&nodeInfo, "nodeinfo", false, "query the instance's NodeInfo document")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
