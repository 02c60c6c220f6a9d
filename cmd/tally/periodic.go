package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/model"
	"github.com/spf13/cobra"
)

func periodicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "periodic",
		Short: "Manage recurring transactions",
		Long: `Recurring templates post a transaction every interval. A template with
--every 0 fires once and is removed.`,
	}

	cmd.AddCommand(listPeriodicCmd())
	cmd.AddCommand(addPeriodicCmd())
	cmd.AddCommand(deletePeriodicCmd())
	cmd.AddCommand(runPeriodicCmd())

	return cmd
}

func listPeriodicCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recurring templates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				templates, err := a.store.ListPeriodicExpanded(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list recurring transactions: %w", err)
				}

				out := cmd.OutOrStdout()
				if len(templates) == 0 {
					fmt.Fprintln(out, cli.InfoStyle.Render("No recurring transactions. Use 'tally periodic add' to create one."))
					return nil
				}

				rows := make([][]string, 0, len(templates))
				for _, p := range templates {
					every := "once"
					if !p.OneShot() {
						every = fmt.Sprintf("%d %s", p.IntervalLength, p.Interval)
					}
					rows = append(rows, []string{
						strconv.FormatInt(p.ID, 10),
						a.formatDate(p.NextTransaction),
						string(p.Type),
						p.Title,
						cli.FormatMoney(p.Amount, p.Currency),
						p.Sender.Title,
						every,
					})
				}
				fmt.Fprintln(out, cli.RenderTable([]string{"ID", "Next", "Type", "Title", "Amount", "Account", "Every"}, rows))
				return nil
			})
		},
	}
}

func addPeriodicCmd() *cobra.Command {
	var (
		flags    txFlags
		interval string
		every    int
	)

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a recurring transaction",
		Example: `  tally periodic add "Rent" --amount 1200 --category 2 --date 2024-02-01 --interval month
  tally periodic add "Dentist" --amount 80 --category 7 --date 2024-03-12 --every 0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txn, err := flags.build(args[0], time.Now())
			if err != nil {
				return err
			}
			unit, err := cli.ParseInterval(interval)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), func(a *app) error {
				if txn.SenderAccountID, err = a.accountOrActive(txn.SenderAccountID); err != nil {
					return err
				}
				if txn.Currency == "" {
					sender, err := a.store.GetAccount(cmd.Context(), txn.SenderAccountID)
					if err != nil {
						return err
					}
					txn.Currency = sender.Currency
				}

				p := &model.PeriodicTransaction{
					Type:               txn.Type,
					Title:              txn.Title,
					Amount:             txn.Amount,
					Currency:           txn.Currency,
					SenderAccountID:    txn.SenderAccountID,
					RecipientAccountID: txn.RecipientAccountID,
					CategoryID:         txn.CategoryID,
					NextTransaction:    txn.Timestamp,
					Interval:           unit,
					IntervalLength:     every,
				}
				if err := p.Validate(); err != nil {
					return err
				}
				if err := a.store.CreatePeriodic(cmd.Context(), p); err != nil {
					return fmt.Errorf("failed to create recurring transaction: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
					"Created recurring transaction %d %q, next on %s", p.ID, p.Title, a.formatDate(p.NextTransaction))))
				return nil
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&interval, "interval", "month", "recurrence unit: day, week, month or year")
	cmd.Flags().IntVar(&every, "every", 1, "fire every N units; 0 fires once")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func deletePeriodicCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a recurring template",
		Long:  `Delete a recurring template. Transactions it already posted stay.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cli.ParseID("periodic", args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app) error {
				if err := a.store.DeletePeriodic(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Deleted recurring transaction %d", id)))
				return nil
			})
		},
	}
}

func runPeriodicCmd() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Post every recurring transaction that is due",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := cli.ParseDate(at, time.Now())
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), func(a *app) error {
				report, err := a.scheduler.RunAll(cmd.Context(), now)

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf(
					"Fired %d templates: %d transactions posted, %d templates finished, %d failed",
					report.Fired, report.Created, report.Deleted, report.Failed)))
				return err
			})
		},
	}

	cmd.Flags().StringVar(&at, "at", "now", "treat this time as now")
	return cmd
}
