package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"kincore/internal/cli"
	"kincore/internal/core"
	"kincore/internal/finance"
	"kincore/internal/levels"
)

func newExpensesCmd(rt *runtime) *cobra.Command {
	var (
		level string
		year  int
		month int
	)

	cmd := &cobra.Command{
		Use:   "expenses",
		Short: "List the expenses of a level for one month",
		Example: `  kincore expenses
  kincore expenses --level family:12 --year 2024 --month 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now()
			period := finance.Period{Year: now.Year(), Month: now.Month()}
			if cmd.Flags().Changed("year") {
				period.Year = year
			}
			if cmd.Flags().Changed("month") {
				period.Month = time.Month(month)
			}
			if err := period.Validate(); err != nil {
				return err
			}

			app, err := loadLevels(cmd, rt)
			if err != nil {
				return err
			}
			current, err := targetLevel(app, level)
			if err != nil {
				return err
			}

			view, err := app.Finance.MonthExpenses(cmd.Context(), current, period)
			if err != nil {
				return err
			}
			if isJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), view)
			}
			printMonth(cmd.OutOrStdout(), view)
			return nil
		},
	}
	cmd.Flags().StringVar(&level, "level", "", "Level to list (defaults to the current level)")
	cmd.Flags().IntVar(&year, "year", 0, "Year (defaults to the current year)")
	cmd.Flags().IntVar(&month, "month", 0, "Month 1-12 (defaults to the current month)")

	cmd.AddCommand(newAddExpenseCmd(rt), newDeleteExpenseCmd(rt), newPayCmd(rt), newUnpayCmd(rt))
	return cmd
}

// targetLevel returns the level named by ref, or the current level when ref is empty.
func targetLevel(app *cli.App, ref string) (core.Level, error) {
	if ref == "" {
		return app.Levels.Current(), nil
	}
	parsed, err := parseLevelRef(ref)
	if err != nil {
		return core.Level{}, err
	}
	l, ok := app.Levels.Lookup(parsed)
	if !ok {
		return core.Level{}, fmt.Errorf("%w: %s", levels.ErrUnknownLevel, formatRef(parsed))
	}
	return l, nil
}

func newAddExpenseCmd(rt *runtime) *cobra.Command {
	var (
		level string
		in    finance.ExpenseInput
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an expense to a level",
		Example: `  kincore expenses add --name Аптека --amount 120,50 --currency 1 --type mandatory
  kincore expenses add --level family:12 --name Продукты --amount 5000 --currency 1 --category 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("category") {
				in.Category = nil
			}
			app, err := loadLevels(cmd, rt)
			if err != nil {
				return err
			}
			target, err := targetLevel(app, level)
			if err != nil {
				return err
			}
			view, err := app.Finance.CreateExpense(cmd.Context(), target, in)
			if err != nil {
				return err
			}
			if isJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), view)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Expense %d added: %s %s %s\n", view.ID, view.Name, view.Amount, view.Currency.Code)
			return nil
		},
	}
	in.Category = new(int64)
	cmd.Flags().StringVar(&level, "level", "", "Level owning the expense (defaults to the current level)")
	cmd.Flags().StringVar(&in.Name, "name", "", "Name")
	cmd.Flags().StringVar(&in.Amount, "amount", "", "Amount")
	cmd.Flags().Int64Var(&in.Currency, "currency", 0, "Currency id")
	cmd.Flags().Int64Var(in.Category, "category", 0, "Category id")
	cmd.Flags().StringVar(&in.Date, "date", time.Now().Format(time.DateOnly), "Date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&in.Type, "type", finance.ExpenseOptional, "mandatory or optional")
	return cmd
}

func newDeleteExpenseCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <expense-id>",
		Short: "Delete an expense",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseExpenseID(args[0])
			if err != nil {
				return err
			}
			app, err := sessionApp(cmd, rt)
			if err != nil {
				return err
			}
			if err := app.Finance.DeleteExpense(cmd.Context(), id); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Expense %d deleted\n", id)
			return nil
		},
	}
}

func parseExpenseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid expense id %q", s)
	}
	return id, nil
}

func newPayCmd(rt *runtime) *cobra.Command {
	var date, amount string

	cmd := &cobra.Command{
		Use:   "pay <expense-id>",
		Short: "Mark an expense as paid on a date",
		Example: `  kincore expenses pay 42 --date 2024-03-21
  kincore expenses pay 42 --date 2024-03-21 --amount 5000,50`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseExpenseID(args[0])
			if err != nil {
				return err
			}
			app, err := sessionApp(cmd, rt)
			if err != nil {
				return err
			}
			if err := app.Finance.MarkPaid(cmd.Context(), id, date, amount); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Expense %d marked as paid on %s\n", id, date)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", time.Now().Format(time.DateOnly), "Payment date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&amount, "amount", "", "Paid amount when it differs from the expense")
	return cmd
}

func newUnpayCmd(rt *runtime) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "unpay <expense-id>",
		Short: "Remove the payment of an expense on a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseExpenseID(args[0])
			if err != nil {
				return err
			}
			app, err := sessionApp(cmd, rt)
			if err != nil {
				return err
			}
			if err := app.Finance.Unmark(cmd.Context(), id, date); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Payment of expense %d on %s removed\n", id, date)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Payment date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}
