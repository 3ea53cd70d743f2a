package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobmail/pkg/config"
	"jobmail/pkg/db"
	"jobmail/pkg/mq"
	"jobmail/pkg/outbox"
)

func newOutboxCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and replay application events in the outbox",
	}

	var limit int
	replayFailed := &cobra.Command{
		Use:   "replay-failed",
		Short: "Republish events that exhausted their retries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, cleanup, err := newReplayService(root.log)
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := svc.ReplayFailedEvents(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d events\n", n)
			return nil
		},
	}
	replayFailed.Flags().IntVar(&limit, "limit", 100, "maximum number of events to replay")

	replayOne := &cobra.Command{
		Use:   "replay <event-id>",
		Short: "Republish a single event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid event id %q: %w", args[0], err)
			}
			svc, cleanup, err := newReplayService(root.log)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := svc.ReplayEvent(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed event %d\n", id)
			return nil
		},
	}

	cmd.AddCommand(replayFailed, replayOne)
	return cmd
}

func newReplayService(log *zap.Logger) (*outbox.ReplayService, func(), error) {
	cfg, err := config.Load(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		return nil, nil, err
	}
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	cleanup := func() {
		publisher.Close()
		pool.Close()
	}
	return outbox.NewReplayService(outbox.NewRepository(pool), publisher), cleanup, nil
}
