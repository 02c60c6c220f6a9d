package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/config"
	"github.com/Veraticus/tally/internal/export"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/report"
	"github.com/Veraticus/tally/internal/sheets"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// reportRange holds --from/--to; the default is the current calendar month.
type reportRange struct {
	from, to string
}

func (r *reportRange) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.from, "from", "", "first day of the report (default: start of this month)")
	cmd.Flags().StringVar(&r.to, "to", "", "day after the report ends (default: start of next month)")
}

func (r *reportRange) resolve(now time.Time) (time.Time, time.Time, error) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := model.Advance(start, model.IntervalMonths, 1)

	var err error
	if r.from != "" {
		if start, err = cli.ParseDate(r.from, now); err != nil {
			return start, end, err
		}
	}
	if r.to != "" {
		if end, err = cli.ParseDate(r.to, now); err != nil {
			return start, end, err
		}
	}
	return start, end, nil
}

func (r *reportRange) build(cmd *cobra.Command, a *app) (*report.Ledger, error) {
	start, end, err := r.resolve(time.Now())
	if err != nil {
		return nil, err
	}
	return report.Build(cmd.Context(), a.store, a.ledger.AggregateAccountID(), start, end)
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a ledger report",
		Long:  `Export a summary, transactions, budgets, accounts and category totals for a date range.`,
	}

	cmd.AddCommand(exportXLSXCmd())
	cmd.AddCommand(exportSheetsCmd())

	return cmd
}

func exportXLSXCmd() *cobra.Command {
	var rng reportRange

	cmd := &cobra.Command{
		Use:   "xlsx <file>",
		Short: "Write the report to an Excel workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				l, err := rng.build(cmd, a)
				if err != nil {
					return err
				}
				path := config.ExpandPath(args[0])
				if err := export.WriteXLSXFile(path, l); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Wrote %d transactions to %s", len(l.Transactions), path)))
				return nil
			})
		},
	}

	rng.register(cmd)
	return cmd
}

func exportSheetsCmd() *cobra.Command {
	var rng reportRange

	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Write the report to Google Sheets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sheetsCfg, err := config.LoadSheetsConfig(viper.GetViper())
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), func(a *app) error {
				l, err := rng.build(cmd, a)
				if err != nil {
					return err
				}
				writer, err := sheets.NewWriter(cmd.Context(), *sheetsCfg, a.logger)
				if err != nil {
					return err
				}
				return writeReport(cmd.Context(), writer, l, cmd.OutOrStdout())
			})
		},
	}

	rng.register(cmd)
	cmd.AddCommand(sheetsAuthCmd())
	return cmd
}

func writeReport(ctx context.Context, w sheets.ReportWriter, l *report.Ledger, out io.Writer) error {
	if err := w.Write(ctx, l); err != nil {
		return fmt.Errorf("failed to export report: %w", err)
	}
	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Exported %d transactions to Google Sheets", len(l.Transactions))))
	return nil
}

func sheetsAuthCmd() *cobra.Command {
	var tokenFile, callback string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Google Sheets access in the browser",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := sheets.DefaultConfig()
			cfg.ClientID = viper.GetString("sheets.client_id")
			cfg.ClientSecret = viper.GetString("sheets.client_secret")
			cfg.LoadFromEnv()
			if cfg.ClientID == "" || cfg.ClientSecret == "" {
				return &model.ValidationError{Field: "sheets", Message: "sheets.client_id and sheets.client_secret are required"}
			}

			token, err := sheets.GetOrCreateToken(cmd.Context(), sheets.OAuth2Config{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				TokenFile:    config.ExpandPath(tokenFile),
				CallbackAddr: callback,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess("Google Sheets authorized"))
			if token.RefreshToken != "" {
				fmt.Fprintln(out, cli.FormatInfo("Set sheets.refresh_token (or GOOGLE_SHEETS_REFRESH_TOKEN) to:"))
				fmt.Fprintln(out, token.RefreshToken)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tokenFile, "token-file", "~/.config/tally/sheets-token.json", "where to keep the OAuth token")
	cmd.Flags().StringVar(&callback, "callback", "localhost:8080", "local address for the OAuth redirect")
	return cmd
}
