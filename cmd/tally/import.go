package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/importer"
	"github.com/Veraticus/tally/internal/ofx"
	"github.com/Veraticus/tally/internal/plaid"
	"github.com/Veraticus/tally/internal/simplefin"
	"github.com/spf13/cobra"
)

// importTarget is where imported rows land.
type importTarget struct {
	accountID        int64
	categoryID       int64
	statementAccount string
}

func (t *importTarget) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&t.accountID, "account", 0, "ledger account to post to (default: settings.active_account_id)")
	cmd.Flags().Int64Var(&t.categoryID, "category", 0, "category for imported rows")
	cmd.Flags().StringVar(&t.statementAccount, "statement-account", "", "only rows from this bank account number")
	_ = cmd.MarkFlagRequired("category")
}

func (t *importTarget) filter(records []importer.Record) []importer.Record {
	if t.statementAccount == "" {
		return records
	}
	kept := records[:0:0]
	for _, r := range records {
		if r.SourceAccount == t.statementAccount {
			kept = append(kept, r)
		}
	}
	return kept
}

// run posts records through the importer with a progress bar on stderr.
func (t *importTarget) run(ctx context.Context, a *app, cmd *cobra.Command, records []importer.Record) error {
	accountID, err := a.accountOrActive(t.accountID)
	if err != nil {
		return err
	}

	records = t.filter(records)
	bar := cli.NewProgress(cmd.ErrOrStderr(), len(records), "importing")

	imp, err := importer.New(a.ledger, a.store, importer.WithProgress(bar), importer.WithLogger(a.logger))
	if err != nil {
		return err
	}

	result, err := imp.Import(ctx, accountID, t.categoryID, records)
	if err != nil {
		return err
	}

	printImportResult(cmd.OutOrStdout(), result)
	return nil
}

func printImportResult(out io.Writer, result importer.Result) {
	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Imported %d transactions, skipped %d", result.Created, result.Skipped)))
	if result.Failed > 0 {
		fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%d rows failed:", result.Failed)))
		for _, err := range result.Errors {
			fmt.Fprintln(out, cli.SubtleStyle.Render("  "+err.Error()))
		}
	}
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import bank statements",
		Long: `Import transactions from OFX/QFX files, a Plaid-linked bank or a SimpleFIN
Bridge connection. Debits become expenses and credits incomes; rows imported
before are skipped.`,
	}

	cmd.AddCommand(importOFXCmd())
	cmd.AddCommand(importPlaidCmd())
	cmd.AddCommand(importSimpleFINCmd())

	return cmd
}

func importOFXCmd() *cobra.Command {
	var target importTarget

	cmd := &cobra.Command{
		Use:   "ofx <file|dir>...",
		Short: "Import OFX or QFX files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandStatementPaths(args)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), func(a *app) error {
				parser := ofx.NewParser(a.logger)

				var records []importer.Record
				for _, path := range files {
					parsed, err := parseOFXFile(cmd.Context(), parser, path)
					if err != nil {
						return err
					}
					records = append(records, parsed...)
				}

				return target.run(cmd.Context(), a, cmd, records)
			})
		},
	}

	target.register(cmd)
	return cmd
}

func parseOFXFile(ctx context.Context, parser *ofx.Parser, path string) ([]importer.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	records, err := parser.ParseFile(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// expandStatementPaths replaces directories with the .ofx and .qfx files inside them.
func expandStatementPaths(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		for _, pattern := range []string{"*.ofx", "*.OFX", "*.qfx", "*.QFX"} {
			matches, err := filepath.Glob(filepath.Join(arg, pattern))
			if err != nil {
				return nil, err
			}
			files = append(files, matches...)
		}
	}
	return files, nil
}

func importPlaidCmd() *cobra.Command {
	var (
		target   importTarget
		from, to string
	)

	cmd := &cobra.Command{
		Use:   "plaid",
		Short: "Import transactions from a Plaid-linked bank",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now()
			start, err := cli.ParseDate(from, now)
			if err != nil {
				return err
			}
			end, err := cli.ParseDate(to, now)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), func(a *app) error {
				if err := a.cfg.Plaid.Validate(); err != nil {
					return err
				}
				client, err := plaid.NewClient(a.cfg.Plaid, a.logger)
				if err != nil {
					return err
				}
				return importFromFetcher(cmd, a, client, &target, start, end)
			})
		},
	}

	target.register(cmd)
	cmd.Flags().StringVar(&from, "from", time.Now().AddDate(0, 0, -30).Format(time.DateOnly), "first day to fetch")
	cmd.Flags().StringVar(&to, "to", "today", "last day to fetch")

	cmd.AddCommand(plaidLinkCmd())
	cmd.AddCommand(plaidExchangeCmd())
	return cmd
}

func importFromFetcher(cmd *cobra.Command, a *app, fetcher importer.Fetcher, target *importTarget, start, end time.Time) error {
	records, err := fetcher.GetTransactions(cmd.Context(), start, end)
	if err != nil {
		return err
	}
	return target.run(cmd.Context(), a, cmd, records)
}

func plaidClient() (*plaid.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return plaid.NewClient(cfg.Plaid, nil)
}

func plaidLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link",
		Short: "Create a Plaid Link token",
		Long:  `Create a Link token to open Plaid Link with. Exchange the resulting public token with 'tally import plaid exchange'.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := plaidClient()
			if err != nil {
				return err
			}
			token, err := client.CreateLinkToken(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func plaidExchangeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exchange <public-token>",
		Short: "Exchange a Link public token for an access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := plaidClient()
			if err != nil {
				return err
			}
			accessToken, itemID, err := client.ExchangePublicToken(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess("Linked item "+itemID))
			fmt.Fprintln(out, cli.FormatInfo("Set plaid.access_token (or TALLY_PLAID_ACCESS_TOKEN) to:"))
			fmt.Fprintln(out, accessToken)
			return nil
		},
	}
}

func importSimpleFINCmd() *cobra.Command {
	var (
		target   importTarget
		from, to string
	)

	cmd := &cobra.Command{
		Use:   "simplefin",
		Short: "Import transactions from a SimpleFIN Bridge connection",
		Long: `Import posted transactions from SimpleFIN. The first run claims simplefin.token
(TALLY_SIMPLEFIN_TOKEN) and stores the access URL for later runs.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now()
			start, err := cli.ParseDate(from, now)
			if err != nil {
				return err
			}
			end, err := cli.ParseDate(to, now)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), func(a *app) error {
				client, err := simplefin.NewClient(cmd.Context(), a.cfg.SimpleFIN, a.logger)
				if err != nil {
					return err
				}
				return importFromFetcher(cmd, a, client, &target, start, end)
			})
		},
	}

	target.register(cmd)
	cmd.Flags().StringVar(&from, "from", time.Now().AddDate(0, 0, -30).Format(time.DateOnly), "first day to fetch")
	cmd.Flags().StringVar(&to, "to", "today", "last day to fetch")
	return cmd
}
