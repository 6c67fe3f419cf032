package main

import (
	"encoding/json"
	"fmt"
	"io"

	"fedicaption/internal/captioner"
	"fedicaption/pkg/activitypub"
	"fedicaption/pkg/logger"
	"fedicaption/pkg/models"
	"fedicaption/pkg/ui"

	"github.com/spf13/cobra"
)

func newPostsCmd(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "posts <user>",
		Short: "List a user's recent posts",
		Long: `List a user's most recent posts with a count of media lacking alt text.

The user may be an account id, a username or a full acct (user@host).`,
		Example: `  fedicaption posts alice --instance https://pixelfed.social
  fedicaption posts alice@mastodon.social --limit 40 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			posts, err := fetchPosts(cmd, client, args[0], limit)
			if err != nil && len(posts) == 0 {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), posts)
			}

			if len(posts) == 0 {
				ui.PrintInfo("Posts", "none found")
				return nil
			}
			ui.Print(ui.RenderPosts(posts))
			ui.PrintInfo("Posts", fmt.Sprintf("%d", len(posts)))
			return err
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of posts to fetch")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print posts as JSON")
	return cmd
}

func newImagesCmd(a *app) *cobra.Command {
	var (
		limit    int
		asJSON   bool
		template string
	)

	cmd := &cobra.Command{
		Use:   "images <user>",
		Short: "List images that have no alt text",
		Long: `List the images in a user's recent posts that still need a description.

With --template the images are also written as a caption batch file. Fill
in the captions and run 'fedicaption caption --file <template>'.`,
		Example: `  fedicaption images alice
  fedicaption images alice --limit 100 --template batch.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.openClient(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			posts, err := fetchPosts(cmd, client, args[0], limit)
			if err != nil && len(posts) == 0 {
				return err
			}

			refs := []models.ImageRef{}
			for _, post := range posts {
				refs = append(refs, client.ExtractImagesFromPost(post)...)
			}

			if template != "" {
				jobs := make([]captioner.Job, 0, len(refs))
				for _, ref := range refs {
					jobs = append(jobs, captioner.Job{StatusID: ref.PostID, MediaID: ref.AttachmentID})
				}
				if werr := captioner.SaveJobs(template, jobs); werr != nil {
					return werr
				}
				ui.PrintSuccess(fmt.Sprintf("Wrote %d jobs to %s", len(jobs), template))
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), refs)
			}

			if len(refs) == 0 {
				ui.PrintSuccess("Every image already has a description")
				return err
			}
			ui.Print(ui.RenderImages(refs))
			ui.PrintInfo("Images without alt text", fmt.Sprintf("%d in %d posts", len(refs), len(posts)))
			return err
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of posts to scan")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print images as JSON")
	cmd.Flags().StringVarP(&template, "template", "t", "", "write a caption batch template to this file")
	return cmd
}

// openClient loads a validated configuration and creates a client for it.
func (a *app) openClient(cmd *cobra.Command) (*activitypub.Client, error) {
	cfg, err := a.loadConfig(true)
	if err != nil {
		return nil, err
	}
	return a.newClient(cmd.Context(), cfg)
}

// fetchPosts fetches posts and, on a partial failure, returns the posts
// fetched so far along with the error.
func fetchPosts(cmd *cobra.Command, client *activitypub.Client, user string, limit int) ([]models.Post, error) {
	logger.WithFields(map[string]interface{}{
		"user":     user,
		"platform": client.Platform(),
		"limit":    limit,
	}).Info("Fetching posts")

	posts, err := client.GetUserPosts(cmd.Context(), user, limit)
	if err != nil {
		if len(posts) > 0 {
			ui.PrintWarning(fmt.Sprintf("Only %d posts could be fetched", len(posts)), err)
		}
		return posts, fmt.Errorf("failed to fetch posts for %s: %w", user, err)
	}
	return posts, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
