package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/events"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/scheduler"
	"github.com/spf13/cobra"
)

func workerCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Post recurring transactions and renew budgets on a timer",
		Long: `Run the background worker. It fires due recurring transactions and renews
expired budgets immediately, then every scheduler.interval until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				worker := scheduler.NewWorker(a.scheduler, a.budgets, a.cfg.Scheduler.Interval, a.logger)

				if once {
					worker.RunOnce(cmd.Context(), time.Now().UTC())
					return nil
				}

				handler := cli.NewInterruptHandler(cmd.ErrOrStderr(), "Worker stopped")
				ctx, stop := handler.HandleInterrupts(cmd.Context())
				defer stop()

				return worker.Run(ctx)
			})
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and exit")
	return cmd
}

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect ledger events",
	}
	cmd.AddCommand(eventsTailCmd())
	return cmd
}

func eventsTailCmd() *cobra.Command {
	var kinds []string

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print ledger events from the broker as they arrive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Events.AMQPURL == "" {
				return fmt.Errorf("%w: events.amqp_url is not set", common.ErrMissingConfig)
			}

			selected, err := parseKinds(kinds)
			if err != nil {
				return err
			}

			consumer, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, slog.Default())
			if err != nil {
				return err
			}
			defer consumer.Close()

			out := cmd.OutOrStdout()
			err = consumer.Consume(cmd.Context(), cfg.Events.Queue, selected, func(e events.Event) error {
				_, err := fmt.Fprintf(out, "%s  %-20s  %d  %s\n",
					e.OccurredAt.Format(time.DateTime), e.Kind, e.EntityID, e.ID)
				return err
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "only these kinds (default: all)")
	return cmd
}

func parseKinds(names []string) ([]events.Kind, error) {
	if len(names) == 0 {
		return events.AllKinds, nil
	}
	known := make(map[events.Kind]bool, len(events.AllKinds))
	for _, k := range events.AllKinds {
		known[k] = true
	}

	kinds := make([]events.Kind, 0, len(names))
	for _, name := range names {
		k := events.Kind(strings.ToLower(strings.TrimSpace(name)))
		if !known[k] {
			return nil, &model.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown event kind %q", name)}
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
