package main

import (
	"context"
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"slipstream/internal/backup"
	"slipstream/internal/logging"
)

// barProgress draws a terminal progress bar until the job's progress
// channel closes.
func barProgress(out io.Writer) func(context.Context, *backup.Job, string) error {
	return func(_ context.Context, job *backup.Job, label string) error {
		bar := progressbar.NewOptions(100,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription(label),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(out) }),
		)
		for percent := range job.Progress() {
			_ = bar.Set(int(percent))
		}
		return nil
	}
}

// lineProgress prints a line per 10% bucket for non-interactive output.
func lineProgress(out io.Writer) func(context.Context, *backup.Job, string) error {
	return func(_ context.Context, job *backup.Job, label string) error {
		sampler := logging.NewProgressSampler(10)
		for percent := range job.Progress() {
			if sampler.ShouldLog(percent, "streaming") {
				fmt.Fprintf(out, "%s: %3.0f%%\n", label, percent)
			}
		}
		return nil
	}
}
