package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/spf13/cobra"
)

func budgetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budgets",
		Short: "Manage budgets",
		Long:  `List, add, update, delete and renew spending budgets.`,
	}

	cmd.AddCommand(listBudgetsCmd())
	cmd.AddCommand(addBudgetCmd())
	cmd.AddCommand(updateBudgetCmd())
	cmd.AddCommand(deleteBudgetCmd())
	cmd.AddCommand(renewBudgetCmd())

	return cmd
}

func listBudgetsCmd() *cobra.Command {
	var (
		activeOnly bool
		set        string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List budgets with spending",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				filter := service.BudgetFilter{BudgetSet: set}
				if activeOnly {
					now := time.Now().UTC()
					filter.ActiveAt = &now
				}

				budgets, err := a.store.ListBudgetsWithCategories(cmd.Context(), filter)
				if err != nil {
					return fmt.Errorf("failed to list budgets: %w", err)
				}

				out := cmd.OutOrStdout()
				if len(budgets) == 0 {
					fmt.Fprintln(out, cli.InfoStyle.Render("No budgets found. Use 'tally budgets add' to create one."))
					return nil
				}

				rows := make([][]string, 0, len(budgets))
				for _, b := range budgets {
					names := make([]string, 0, len(b.Categories))
					for _, c := range b.Categories {
						names = append(names, c.Title)
					}
					rows = append(rows, []string{
						strconv.FormatInt(b.ID, 10),
						b.Title,
						a.formatDate(b.StartDate) + " → " + a.formatDate(b.EndDate),
						cli.FormatMoney(b.AmountSpent, b.Currency) + " / " + cli.FormatMoney(b.Amount, b.Currency),
						cli.FormatMoney(b.Remaining(), b.Currency),
						strings.Join(names, ", "),
					})
				}
				fmt.Fprintln(out, cli.RenderTable([]string{"ID", "Title", "Window", "Spent", "Remaining", "Categories"}, rows))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "only budgets whose window contains now")
	cmd.Flags().StringVar(&set, "set", "", "only budgets in this recurrence set")
	return cmd
}

// budgetFlags holds the flags shared by add and update.
type budgetFlags struct {
	amount     string
	currency   string
	start      string
	end        string
	interval   string
	every      int
	categories string
}

func (f *budgetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.amount, "amount", "", "budgeted amount")
	cmd.Flags().StringVar(&f.currency, "currency", "USD", "ISO currency code")
	cmd.Flags().StringVar(&f.start, "start", "today", "window start date")
	cmd.Flags().StringVar(&f.end, "end", "", "window end date (exclusive; default one interval after start)")
	cmd.Flags().StringVar(&f.interval, "interval", "month", "recurrence unit: day, week, month or year")
	cmd.Flags().IntVar(&f.every, "every", 1, "recurrence length in units; 0 disables renewal")
	cmd.Flags().StringVar(&f.categories, "categories", "", "comma separated category ids")
}

// build turns the flags into a budget. Validation errors surface before any storage call.
func (f *budgetFlags) build(title string, now time.Time) (*model.Budget, []int64, error) {
	amount, err := cli.ParseAmount(f.amount)
	if err != nil {
		return nil, nil, err
	}
	interval, err := cli.ParseInterval(f.interval)
	if err != nil {
		return nil, nil, err
	}
	start, err := cli.ParseDate(f.start, now)
	if err != nil {
		return nil, nil, err
	}

	end := model.Advance(start, interval, max(f.every, 1))
	if f.end != "" {
		if end, err = cli.ParseDate(f.end, now); err != nil {
			return nil, nil, err
		}
	}

	categoryIDs, err := cli.ParseIDList("categories", f.categories)
	if err != nil {
		return nil, nil, err
	}

	b := &model.Budget{
		Title:          title,
		Currency:       model.NormalizeCurrency(f.currency),
		Amount:         amount,
		StartDate:      start,
		EndDate:        end,
		Interval:       interval,
		IntervalLength: f.every,
	}
	if err := b.Validate(); err != nil {
		return nil, nil, err
	}
	return b, categoryIDs, nil
}

func addBudgetCmd() *cobra.Command {
	var flags budgetFlags

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a new budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, categoryIDs, err := flags.build(args[0], time.Now())
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), func(a *app) error {
				if err := a.budgets.Create(cmd.Context(), b, categoryIDs); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
					"Created budget %d %q (%s spent so far)", b.ID, b.Title, cli.FormatMoney(b.AmountSpent, b.Currency))))
				return nil
			})
		},
	}

	flags.register(cmd)
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func updateBudgetCmd() *cobra.Command {
	var (
		title      string
		amount     string
		categories string
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a budget's title, amount or categories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cli.ParseID("budget", args[0])
			if err != nil {
				return err
			}

			var categoryIDs []int64
			if cmd.Flags().Changed("categories") {
				if categoryIDs, err = cli.ParseIDList("categories", categories); err != nil {
					return err
				}
			}

			return withApp(cmd.Context(), func(a *app) error {
				b, err := a.store.GetBudget(cmd.Context(), id)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("title") {
					b.Title = title
				}
				if cmd.Flags().Changed("amount") {
					if b.Amount, err = cli.ParseAmount(amount); err != nil {
						return err
					}
				}
				if err := a.budgets.Update(cmd.Context(), b); err != nil {
					return err
				}
				if cmd.Flags().Changed("categories") {
					if err := a.budgets.SetCategories(cmd.Context(), id, categoryIDs); err != nil {
						return err
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Updated budget %d", id)))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&amount, "amount", "", "new budgeted amount")
	cmd.Flags().StringVar(&categories, "categories", "", "replace linked categories (comma separated ids)")
	return cmd
}

func deleteBudgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cli.ParseID("budget", args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app) error {
				if err := a.budgets.Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Deleted budget %d", id)))
				return nil
			})
		},
	}
}

func renewBudgetCmd() *cobra.Command {
	var expired bool

	cmd := &cobra.Command{
		Use:   "renew [id]",
		Short: "Create the next period of a budget",
		Long: `Create the budget that follows <id>: same amount, categories and recurrence,
starting one interval after the old one ends. With --expired, renew every
recurring budget set whose latest budget has ended.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if expired == (len(args) == 1) {
				return &model.ValidationError{Field: "budget", Message: "give either a budget id or --expired"}
			}

			return withApp(cmd.Context(), func(a *app) error {
				out := cmd.OutOrStdout()

				if expired {
					report, err := a.budgets.RenewExpired(cmd.Context(), time.Now().UTC())
					for _, b := range report.Created {
						fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Created budget %d %q %s → %s",
							b.ID, b.Title, a.formatDate(b.StartDate), a.formatDate(b.EndDate))))
					}
					if report.Failed > 0 {
						fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%d budget sets failed to renew", report.Failed)))
					}
					return err
				}

				id, err := cli.ParseID("budget", args[0])
				if err != nil {
					return err
				}
				next, err := a.budgets.CreateNext(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Created budget %d %q %s → %s",
					next.ID, next.Title, a.formatDate(next.StartDate), a.formatDate(next.EndDate))))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&expired, "expired", false, "renew every expired recurring budget")
	return cmd
}
