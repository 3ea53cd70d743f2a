package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmail/internal/mailbox"
	"jobmail/internal/model"
	"jobmail/pkg/logger"
)

type rootOptions struct {
	logLevel string
	log      *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "jobmail",
		Short: "Classify job application emails and merge them into application records",
		Long: `jobmail extracts company, role and status from job application emails and
folds them into one record per (company, role), keeping status monotonic.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.log = logger.NewLogger(opts.logLevel)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newExtractCmd(opts),
		newReplayCmd(opts),
		newOutboxCmd(opts),
	)
	return cmd
}

// readEmail loads a .eml or .json RawEmail file. The file name stands in for
// a missing message id.
func readEmail(path string) (model.RawEmail, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.RawEmail{}, err
	}
	defer f.Close()

	var email model.RawEmail
	switch strings.ToLower(filepath.Ext(path)) {
	case ".eml":
		email, err = mailbox.ParseEML(f)
	case ".json":
		err = json.NewDecoder(f).Decode(&email)
	default:
		return model.RawEmail{}, fmt.Errorf("%s: unsupported file type, want .eml or .json", path)
	}
	if err != nil {
		return model.RawEmail{}, fmt.Errorf("%s: %w", path, err)
	}
	if email.ID == "" {
		email.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return email, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
