package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kincore/internal/core"
	"kincore/internal/finance"
)

func parseRecordID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func newAssetsCmd(rt *runtime) *cobra.Command {
	var level string

	cmd := &cobra.Command{
		Use:   "assets",
		Short: "List the assets of a level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadLevels(cmd, rt)
			if err != nil {
				return err
			}
			target, err := targetLevel(app, level)
			if err != nil {
				return err
			}
			view, err := app.Holdings.Assets(cmd.Context(), target)
			if err != nil {
				return err
			}
			if isJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), view)
			}
			printAssets(cmd.OutOrStdout(), view)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&level, "level", "", "Level (defaults to the current level)")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <asset-id>",
		Short: "Delete an asset of the level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			app, err := loadLevels(cmd, rt)
			if err != nil {
				return err
			}
			target, err := targetLevel(app, level)
			if err != nil {
				return err
			}
			if err := app.Holdings.DeleteAsset(cmd.Context(), target, id); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Asset %d deleted\n", id)
			return nil
		},
	})
	return cmd
}

func newLiabilitiesCmd(rt *runtime) *cobra.Command {
	var level string

	cmd := &cobra.Command{
		Use:   "liabilities",
		Short: "List the liabilities of a level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadLevels(cmd, rt)
			if err != nil {
				return err
			}
			target, err := targetLevel(app, level)
			if err != nil {
				return err
			}
			view, err := app.Holdings.Liabilities(cmd.Context(), target)
			if err != nil {
				return err
			}
			if isJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), view)
			}
			printLiabilities(cmd.OutOrStdout(), view)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&level, "level", "", "Level (defaults to the current level)")

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <liability-id>",
		Short: "Delete a liability of the level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			app, err := loadLevels(cmd, rt)
			if err != nil {
				return err
			}
			target, err := targetLevel(app, level)
			if err != nil {
				return err
			}
			if err := app.Holdings.DeleteLiability(cmd.Context(), target, id); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Liability %d deleted\n", id)
			return nil
		},
	})
	return cmd
}

func printAssets(w io.Writer, view *finance.AssetsView) {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tTYPE\tPURCHASE\tCURRENT\tVALUED")
	for _, a := range view.Assets {
		valued := a.LastValuationDate.String()
		if valued == "" {
			valued = "-"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s %s\t%s %s\t%s\n", a.ID, a.Name, a.Type,
			a.PurchaseValue, a.PurchaseCurrency.Code, a.CurrentValue, a.CurrentCurrency.Code, valued)
	}
	_ = tw.Flush()
	printTotals(w, view.Totals)
}

func printLiabilities(w io.Writer, view *finance.LiabilitiesView) {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tTYPE\tOPENED\tINITIAL\tDEBT\tRATE")
	for _, l := range view.Liabilities {
		rate := "-"
		if l.InterestRate != nil {
			rate = l.InterestRate.String() + "%"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s %s\t%s\n", l.ID, l.Name, l.Type, l.OpenDate,
			l.InitialAmount, l.CurrentDebt, l.Currency.Code, rate)
	}
	_ = tw.Flush()
	printTotals(w, view.Totals)
}

func printTotals(w io.Writer, totals map[string]core.Money) {
	for _, code := range slices.Sorted(maps.Keys(totals)) {
		_, _ = fmt.Fprintf(w, "Total %s: %s\n", code, totals[code])
	}
}
