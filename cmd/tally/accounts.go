package main

import (
	"fmt"
	"strconv"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/spf13/cobra"
)

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage accounts",
		Long:  `List, add, update, and delete the accounts money moves between.`,
	}

	cmd.AddCommand(listAccountsCmd())
	cmd.AddCommand(addAccountCmd())
	cmd.AddCommand(updateAccountCmd())
	cmd.AddCommand(deleteAccountCmd())

	return cmd
}

func listAccountsCmd() *cobra.Command {
	var currencyFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts with balances",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				filter := service.AccountFilter{Currency: model.NormalizeCurrency(currencyFilter)}
				if !a.cfg.Settings.ShowAggregate {
					filter.ExcludeID = a.ledger.AggregateAccountID()
				}

				accounts, err := a.store.ListAccounts(cmd.Context(), filter)
				if err != nil {
					return fmt.Errorf("failed to list accounts: %w", err)
				}

				out := cmd.OutOrStdout()
				if len(accounts) == 0 {
					fmt.Fprintln(out, cli.InfoStyle.Render("No accounts found. Use 'tally accounts add' to create one."))
					return nil
				}

				rows := make([][]string, 0, len(accounts))
				for _, acct := range accounts {
					title := acct.Title
					if acct.ID == a.ledger.AggregateAccountID() {
						title += cli.SubtleStyle.Render(" (aggregate)")
					}
					rows = append(rows, []string{
						strconv.FormatInt(acct.ID, 10),
						title,
						cli.FormatMoney(acct.Balance, acct.Currency),
					})
				}
				fmt.Fprintln(out, cli.RenderTable([]string{"ID", "Title", "Balance"}, rows))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&currencyFilter, "currency", "", "only show accounts in this currency")
	return cmd
}

func addAccountCmd() *cobra.Command {
	var (
		currency string
		balance  string
		color    int
	)

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a new account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opening, err := cli.ParseAmount(balance)
			if err != nil {
				return err
			}
			account := &model.Account{
				Title:    args[0],
				Currency: model.NormalizeCurrency(currency),
				Balance:  opening,
				Color:    color,
			}
			if err := account.Validate(); err != nil {
				return err
			}

			return withApp(cmd.Context(), func(a *app) error {
				if err := a.store.CreateAccount(cmd.Context(), account); err != nil {
					return fmt.Errorf("failed to create account: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created account %d %q", account.ID, account.Title)))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&currency, "currency", "USD", "ISO currency code")
	cmd.Flags().StringVar(&balance, "balance", "0", "opening balance")
	cmd.Flags().IntVar(&color, "color", 0, "display color")
	return cmd
}

func updateAccountCmd() *cobra.Command {
	var (
		title    string
		currency string
		color    int
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Rename or recolor an account",
		Long:  `Update an account's title, currency or color. Balances only change through transactions.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cli.ParseID("account", args[0])
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), func(a *app) error {
				account, err := a.store.GetAccount(cmd.Context(), id)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("title") {
					account.Title = title
				}
				if cmd.Flags().Changed("currency") {
					account.Currency = model.NormalizeCurrency(currency)
				}
				if cmd.Flags().Changed("color") {
					account.Color = color
				}
				if err := account.Validate(); err != nil {
					return err
				}
				if err := a.store.UpdateAccount(cmd.Context(), account); err != nil {
					return fmt.Errorf("failed to update account: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Updated account %d", id)))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&currency, "currency", "", "new currency code")
	cmd.Flags().IntVar(&color, "color", 0, "new display color")
	return cmd
}

func deleteAccountCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an account with no transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cli.ParseID("account", args[0])
			if err != nil {
				return err
			}

			if !force {
				ok, err := cli.Confirm(cmd.Context(), cli.NewNonBlockingReader(cmd.InOrStdin()), cmd.OutOrStdout(),
					fmt.Sprintf("Delete account %d?", id))
				if err != nil || !ok {
					return err
				}
			}

			return withApp(cmd.Context(), func(a *app) error {
				if err := a.ledger.DeleteAccount(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Deleted account %d", id)))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation")
	return cmd
}
