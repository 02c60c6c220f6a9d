package main

import (
	"fmt"
	"strconv"

	"github.com/Veraticus/tally/internal/cli"
	"github.com/Veraticus/tally/internal/model"
	"github.com/spf13/cobra"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage categories",
		Long:  `List, add, update, and delete the categories transactions and budgets are filed under.`,
	}

	cmd.AddCommand(listCategoriesCmd())
	cmd.AddCommand(addCategoryCmd())
	cmd.AddCommand(updateCategoryCmd())
	cmd.AddCommand(deleteCategoryCmd())

	return cmd
}

func listCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				categories, err := a.store.ListCategories(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to get categories: %w", err)
				}

				out := cmd.OutOrStdout()
				if len(categories) == 0 {
					fmt.Fprintln(out, cli.InfoStyle.Render("No categories found. Use 'tally categories add' to create one."))
					return nil
				}

				rows := make([][]string, 0, len(categories))
				for _, c := range categories {
					rows = append(rows, []string{strconv.FormatInt(c.ID, 10), c.Symbol, c.Title})
				}
				fmt.Fprintln(out, cli.RenderTable([]string{"ID", "", "Title"}, rows))
				return nil
			})
		},
	}
}

func addCategoryCmd() *cobra.Command {
	var symbol string

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a new category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category := &model.Category{Title: args[0], Symbol: symbol}
			if err := category.Validate(); err != nil {
				return err
			}

			return withApp(cmd.Context(), func(a *app) error {
				if err := a.store.CreateCategory(cmd.Context(), category); err != nil {
					return fmt.Errorf("failed to create category: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created category %d %q", category.ID, category.Title)))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "emoji or short symbol shown next to the title")
	return cmd
}

func updateCategoryCmd() *cobra.Command {
	var title, symbol string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Rename a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cli.ParseID("category", args[0])
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), func(a *app) error {
				category, err := a.store.GetCategory(cmd.Context(), id)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("title") {
					category.Title = title
				}
				if cmd.Flags().Changed("symbol") {
					category.Symbol = symbol
				}
				if err := category.Validate(); err != nil {
					return err
				}
				if err := a.store.UpdateCategory(cmd.Context(), category); err != nil {
					return fmt.Errorf("failed to update category: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Updated category %d", id)))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&symbol, "symbol", "", "new symbol")
	return cmd
}

func deleteCategoryCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an unused category",
		Long:  `Delete a category no transaction or recurring template uses. Budgets drop the link.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cli.ParseID("category", args[0])
			if err != nil {
				return err
			}

			if !force {
				ok, err := cli.Confirm(cmd.Context(), cli.NewNonBlockingReader(cmd.InOrStdin()), cmd.OutOrStdout(),
					fmt.Sprintf("Delete category %d?", id))
				if err != nil || !ok {
					return err
				}
			}

			return withApp(cmd.Context(), func(a *app) error {
				if err := a.ledger.DeleteCategory(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Deleted category %d", id)))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation")
	return cmd
}
