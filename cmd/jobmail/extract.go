package main

import (
	"github.com/spf13/cobra"

	"jobmail/internal/extractor"
)

func newExtractCmd(_ *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <file>",
		Short: "Print the extracted application for one .eml or .json email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := readEmail(args[0])
			if err != nil {
				return err
			}
			parsed, err := extractor.New().Extract(&email)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), parsed)
		},
	}
}
