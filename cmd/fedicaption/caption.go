package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"fedicaption/internal/captioner"
	"fedicaption/pkg/activitypub"
	"fedicaption/pkg/checkpoint"
	"fedicaption/pkg/config"
	"fedicaption/pkg/logger"
	"fedicaption/pkg/models"
	"fedicaption/pkg/ui"
	"fedicaption/pkg/ui/tui"

	"github.com/spf13/cobra"
)

type captionOptions struct {
	statusID  string
	file      string
	workers   int
	batch     string
	fresh     bool
	dashboard bool
}

func newCaptionCmd(a *app) *cobra.Command {
	opts := &captionOptions{}

	cmd := &cobra.Command{
		Use:   "caption [<media-id> <text>]",
		Short: "Write alt text for one image or a batch",
		Long: `Write a description for a media attachment.

Pixelfed and Pleroma caption media directly. Mastodon only accepts captions
through an edit of the owning status, so --status is required there.

With --file a whole batch is captioned concurrently. Progress is kept in a
checkpoint so an interrupted batch resumes where it stopped; captions that
failed are retried on the next run.`,
		Example: `  fedicaption caption 1234 "A heron standing on a wooden post"
  fedicaption caption 1234 "A heron" --status 110 --platform mastodon
  fedicaption caption --file batch.yaml --workers 4 --tui`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.file != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.file != "" {
				return a.runCaptionBatch(cmd, opts)
			}
			return a.runCaption(cmd, opts.statusID, args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&opts.statusID, "status", "s", "", "id of the status that owns the media")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "caption every job in this batch file")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 2, "number of concurrent caption writers")
	cmd.Flags().StringVar(&opts.batch, "batch", "", "checkpoint name (default is the batch file name)")
	cmd.Flags().BoolVar(&opts.fresh, "fresh", false, "ignore an existing checkpoint and caption everything again")
	cmd.Flags().BoolVar(&opts.dashboard, "tui", false, "show a live dashboard while the batch runs")
	return cmd
}

func (a *app) runCaption(cmd *cobra.Command, statusID, mediaID, text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("caption text cannot be empty")
	}

	client, err := a.openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	ok, err := client.UpdateMediaCaption(cmd.Context(), models.CaptionUpdate{
		MediaID:  mediaID,
		StatusID: statusID,
		Caption:  text,
	})
	if err != nil {
		return fmt.Errorf("failed to caption %s: %w", mediaID, err)
	}
	if !ok {
		return fmt.Errorf("failed to caption %s: %w", mediaID, captioner.ErrNotUpdated)
	}

	ui.PrintSuccess("Caption written for " + mediaID)
	return nil
}

func (a *app) runCaptionBatch(cmd *cobra.Command, opts *captionOptions) error {
	jobs, err := captioner.LoadJobs(opts.file)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		ui.PrintWarning("Batch file has no jobs", opts.file)
		return nil
	}

	cfg, err := a.loadConfig(true)
	if err != nil {
		return err
	}
	if opts.dashboard && cfg.Logging.File == "" {
		// Console logs would tear the dashboard.
		cfg.Logging.Level = "disabled"
		if err := logger.Initialize(&cfg.Logging); err != nil {
			return err
		}
	}

	client, err := a.newClient(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	batch := opts.batch
	if batch == "" {
		batch = strings.TrimSuffix(filepath.Base(opts.file), filepath.Ext(opts.file))
	}
	ledger, err := checkpoint.NewManager(batch)
	if err != nil {
		return err
	}
	if opts.fresh {
		if err := ledger.Backup(); err != nil {
			return err
		}
		if err := ledger.Delete(); err != nil {
			return err
		}
	}
	cp, err := ledger.LoadOrCreate(batch, cfg.Platform.InstanceURL, len(jobs))
	if err != nil {
		return err
	}
	if cp.TotalCaptioned > 0 {
		ui.PrintInfo("Resuming", fmt.Sprintf("%d of %d already captioned", cp.TotalCaptioned, len(jobs)))
	}

	log := logger.GetLogger().WithField("batch", batch)
	log.InfoWithFields("Starting caption batch", map[string]interface{}{
		"jobs":     len(jobs),
		"workers":  opts.workers,
		"platform": client.Platform(),
	})

	var results []captioner.Result
	if opts.dashboard {
		results, err = runWithDashboard(cmd.Context(), client, cfg, jobs, opts.workers, ledger, log)
		if err != nil {
			return err
		}
	} else {
		var w io.Writer = cmd.OutOrStdout()
		if ui.IsQuiet() {
			w = io.Discard
		}
		progress := ui.NewCaptionProgress(w, batch, len(jobs), a.verbose)
		results = captioner.Run(cmd.Context(), opts.workers, client, jobs, log,
			captioner.WithLedger(ledger),
			captioner.WithObserver(progressObserver{progress}),
		)
		progress.Finish()
	}

	summary := captioner.Summarize(results)
	log.InfoWithFields("Caption batch finished", map[string]interface{}{
		"succeeded": summary.Succeeded,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	})

	if summary.Failed > 0 {
		for _, r := range results {
			if !r.Success {
				ui.PrintWarning("Failed "+r.Job.MediaID, r.Error)
			}
		}
		ui.PrintInfo("Checkpoint", ledger.Path())
		return fmt.Errorf("%d of %d captions failed, run the same command again to retry them", summary.Failed, summary.Total)
	}

	ui.PrintSuccess(fmt.Sprintf("Captioned %d images (%d from an earlier run)", summary.Succeeded, summary.Skipped))
	return nil
}

// progressObserver feeds worker events to the progress line.
type progressObserver struct {
	progress *ui.CaptionProgress
}

func (o progressObserver) JobStarted(job captioner.Job) {
	o.progress.Start(job.MediaID)
}

func (o progressObserver) JobFinished(result captioner.Result) {
	if result.Success {
		o.progress.Complete(result.Job.MediaID, result.Skipped)
		return
	}
	o.progress.Fail(result.Job.MediaID, result.Error)
}

// runWithDashboard runs the batch behind the full-screen dashboard. Quitting
// the dashboard cancels the jobs that have not started.
func runWithDashboard(ctx context.Context, client *activitypub.Client, cfg *config.Config, jobs []captioner.Job, workers int, ledger captioner.Ledger, log logger.Logger) ([]captioner.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dashboard := tui.NewTUI(len(jobs))
	dashboard.Queue(jobs)

	batchDone := make(chan []captioner.Result, 1)
	go func() {
		results := captioner.Run(ctx, workers, client, jobs, log.WithField("output", "tui"),
			captioner.WithLedger(ledger),
			captioner.WithObserver(dashboard),
		)
		dashboard.UpdateRateLimit(client.RateLimitStats(), cfg.RateLimit.Global.RequestsPerMinute)
		dashboard.Done()
		batchDone <- results
	}()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				dashboard.UpdateRateLimit(client.RateLimitStats(), cfg.RateLimit.Global.RequestsPerMinute)
			}
		}
	}()

	dashboard.Model().AddLogMessage("INFO", fmt.Sprintf("Captioning %d images with %d workers", len(jobs), workers))
	if err := dashboard.Start(); err != nil {
		cancel()
		<-batchDone
		return nil, fmt.Errorf("dashboard failed: %w", err)
	}

	cancel()
	return <-batchDone, nil
}
