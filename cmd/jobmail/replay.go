package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmail/internal/extractor"
	"jobmail/internal/merge"
	"jobmail/internal/model"
	"jobmail/internal/repository"
)

type replayOptions struct {
	userID                 string
	minConfidence          float64
	discardNonApplications bool
	quiet                  bool
}

func newReplayCmd(root *rootOptions) *cobra.Command {
	opts := &replayOptions{}
	cmd := &cobra.Command{
		Use:   "replay <dir>",
		Short: "Run every email in a directory through extract and merge, in file name order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apps, err := replayDir(cmd.Context(), args[0], *opts, cmd.ErrOrStderr(), root.log)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), apps)
		},
	}
	cmd.Flags().StringVar(&opts.userID, "user", "local", "user id the emails belong to")
	cmd.Flags().Float64Var(&opts.minConfidence, "min-confidence", 0, "skip extractions below this confidence")
	cmd.Flags().BoolVar(&opts.discardNonApplications, "discard-non-applications", false, "skip newsletters and job alerts")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "do not print per-email decisions")
	return cmd
}

// replayDir merges every .eml/.json file under dir into an in-memory store and
// returns the resulting applications.
func replayDir(ctx context.Context, dir string, opts replayOptions, progress io.Writer, log *zap.Logger) ([]*model.JobApplication, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".eml" && ext != ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	if log == nil {
		log = zap.NewNop()
	}
	repo := repository.NewMemoryJobRepository()
	engine := merge.NewEngine(repo, merge.WithLogger(log))
	x := extractor.New()

	for _, path := range files {
		email, err := readEmail(path)
		if err != nil {
			log.Warn("Skipping unreadable email", zap.String("file", path), zap.Error(err))
			continue
		}
		parsed, err := x.Extract(&email)
		if err != nil {
			log.Warn("Skipping email", zap.String("file", path), zap.Error(err))
			continue
		}
		if opts.discardNonApplications && parsed.IsLikelyNonApplication {
			report(opts, progress, "%s: discarded (non-application)\n", filepath.Base(path))
			continue
		}
		if parsed.Confidence < opts.minConfidence {
			report(opts, progress, "%s: discarded (confidence %.2f)\n", filepath.Base(path), parsed.Confidence)
			continue
		}

		out, err := engine.Merge(ctx, opts.userID, parsed)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		report(opts, progress, "%s: %s changed=%t %s / %s -> %s\n",
			filepath.Base(path), out.Decision, out.Changed,
			out.Application.Company, out.Application.Role, out.Application.Status)
	}

	return repo.ListByUser(ctx, opts.userID)
}

func report(opts replayOptions, w io.Writer, format string, args ...any) {
	if opts.quiet || w == nil {
		return
	}
	fmt.Fprintf(w, format, args...)
}
