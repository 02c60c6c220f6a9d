package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/spf13/cobra"
)

func txCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tx",
		Aliases: []string{"transactions"},
		Short:   "Record and browse transactions",
		Long: `Record expenses, incomes and transfers. A transfer is stored as an income
on the receiving account and an expense on the sending account.`,
	}

	cmd.AddCommand(listTxCmd())
	cmd.AddCommand(addTxCmd())
	cmd.AddCommand(updateTxCmd())
	cmd.AddCommand(deleteTxCmd())

	return cmd
}

func listTxCmd() *cobra.Command {
	var (
		accountID  int64
		categoryID int64
		typ        string
		from, to   string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := service.TransactionFilter{Limit: limit}
			now := time.Now()
			if typ != "" {
				t, err := cli.ParseType(typ)
				if err != nil {
					return err
				}
				filter.Type = t
			}
			if from != "" {
				start, err := cli.ParseDate(from, now)
				if err != nil {
					return err
				}
				filter.StartDate = &start
			}
			if to != "" {
				end, err := cli.ParseDate(to, now)
				if err != nil {
					return err
				}
				filter.EndDate = &end
			}
			if accountID > 0 {
				filter.AccountID = &accountID
			}
			if categoryID > 0 {
				filter.CategoryID = &categoryID
			}

			return withApp(cmd.Context(), func(a *app) error {
				txns, err := a.store.ListTransactionsExpanded(cmd.Context(), filter)
				if err != nil {
					return fmt.Errorf("failed to list transactions: %w", err)
				}

				out := cmd.OutOrStdout()
				if len(txns) == 0 {
					fmt.Fprintln(out, cli.InfoStyle.Render("No transactions found."))
					return nil
				}

				rows := make([][]string, 0, len(txns))
				for _, t := range txns {
					rows = append(rows, []string{
						strconv.FormatInt(t.ID, 10),
						a.formatDate(t.Timestamp),
						string(t.Type),
						t.Title,
						cli.FormatMoney(t.BalanceDelta(), t.Sender.Currency),
						t.Sender.Title,
						t.Category.Title,
					})
				}
				fmt.Fprintln(out, cli.RenderTable([]string{"ID", "Date", "Type", "Title", "Amount", "Account", "Category"}, rows))
				return nil
			})
		},
	}

	cmd.Flags().Int64Var(&accountID, "account", 0, "only this sender account")
	cmd.Flags().Int64Var(&categoryID, "category", 0, "only this category")
	cmd.Flags().StringVar(&typ, "type", "", "only expense or income")
	cmd.Flags().StringVar(&from, "from", "", "earliest date")
	cmd.Flags().StringVar(&to, "to", "", "latest date (exclusive)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

// txFlags holds the flags shared by tx add and tx update.
type txFlags struct {
	typ        string
	amount     string
	currency   string
	date       string
	accountID  int64
	toID       int64
	categoryID int64
}

func (f *txFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.typ, "type", "expense", "expense, income or transfer")
	cmd.Flags().StringVar(&f.amount, "amount", "", "amount in --currency")
	cmd.Flags().StringVar(&f.currency, "currency", "", "ISO currency code (default: the account's)")
	cmd.Flags().StringVar(&f.date, "date", "now", "when it happened")
	cmd.Flags().Int64Var(&f.accountID, "account", 0, "sender account (default: settings.active_account_id)")
	cmd.Flags().Int64Var(&f.toID, "to", 0, "receiving account for transfers")
	cmd.Flags().Int64Var(&f.categoryID, "category", 0, "category id")
}

// build parses the flags. Nothing touches the ledger until every field parsed.
func (f *txFlags) build(title string, now time.Time) (*model.Transaction, error) {
	typ, err := cli.ParseType(f.typ)
	if err != nil {
		return nil, err
	}
	amount, err := cli.ParseAmount(f.amount)
	if err != nil {
		return nil, err
	}
	ts, err := cli.ParseDate(f.date, now)
	if err != nil {
		return nil, err
	}

	txn := &model.Transaction{
		Type:            typ,
		Title:           title,
		Amount:          amount,
		Currency:        model.NormalizeCurrency(f.currency),
		Timestamp:       ts,
		SenderAccountID: f.accountID,
		CategoryID:      f.categoryID,
	}
	if f.toID > 0 {
		to := f.toID
		txn.RecipientAccountID = &to
	}
	return txn, nil
}

func addTxCmd() *cobra.Command {
	var flags txFlags

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Record a transaction",
		Example: `  tally tx add "Groceries" --amount 42.10 --category 3
  tally tx add "Salary" --type income --amount 3000 --category 1
  tally tx add "Savings" --type transfer --account 2 --to 4 --amount 500 --category 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			txn, err := flags.build(args[0], time.Now())
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

				rows, err := a.ledger.ProcessTransaction(cmd.Context(), txn)
				if err != nil {
					return err
				}
				for _, row := range rows {
					fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
						"Recorded %s %d %q on account %d", row.Type, row.ID, row.Title, row.SenderAccountID)))
				}
				return nil
			})
		},
	}

	flags.register(cmd)
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func updateTxCmd() *cobra.Command {
	var (
		flags txFlags
		title string
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a recorded transaction",
		Long:  `Change a transaction. Its old effects on balances and budgets are undone before the new ones apply.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cli.ParseID("transaction", args[0])
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), func(a *app) error {
				txn, err := a.store.GetTransaction(cmd.Context(), id)
				if err != nil {
					return err
				}
				if err := flags.apply(cmd, txn, title); err != nil {
					return err
				}
				if err := a.ledger.UpdateTransaction(cmd.Context(), txn); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Updated transaction %d", id)))
				return nil
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&title, "title", "", "new title")
	return cmd
}

// apply copies only the flags the user set onto txn.
func (f *txFlags) apply(cmd *cobra.Command, txn *model.Transaction, title string) error {
	changed := cmd.Flags().Changed
	var err error

	if changed("title") {
		txn.Title = title
	}
	if changed("type") {
		if txn.Type, err = cli.ParseType(f.typ); err != nil {
			return err
		}
	}
	if changed("amount") {
		if txn.Amount, err = cli.ParseAmount(f.amount); err != nil {
			return err
		}
	}
	if changed("currency") {
		txn.Currency = model.NormalizeCurrency(f.currency)
	}
	if changed("date") {
		if txn.Timestamp, err = cli.ParseDate(f.date, time.Now()); err != nil {
			return err
		}
	}
	if changed("account") {
		txn.SenderAccountID = f.accountID
	}
	if changed("category") {
		txn.CategoryID = f.categoryID
	}
	return nil
}

func deleteTxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction and undo its effects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cli.ParseID("transaction", args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app) error {
				if err := a.ledger.DeleteTransaction(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Deleted transaction %d", id)))
				return nil
			})
		},
	}
}
