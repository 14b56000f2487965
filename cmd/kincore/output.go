package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kincore/internal/api"
	"kincore/internal/core"
	"kincore/internal/finance"
	"kincore/internal/levels"
)

func validateOutputFormat(output string) error {
	if output != "" && output != "table" && output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
	}
	return nil
}

func isJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Root().PersistentFlags().GetString("output")
	return v == "json"
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// errorMessage prefers the user-facing message of a workflow failure.
func errorMessage(err error) string {
	return core.FailureMessage(err, err.Error())
}

func errorBody(err error) map[string]any {
	body := map[string]any{"error": errorMessage(err)}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		body["http_status"] = apiErr.Status
	}
	return body
}

// parseLevelRef reads "personal", "family:<id>" or "circle:<id>".
func parseLevelRef(s string) (core.LevelRef, error) {
	kind, id, hasID := strings.Cut(strings.TrimSpace(s), ":")
	t, err := core.ParseLevelType(kind)
	if err != nil {
		return core.LevelRef{}, err
	}
	ref := core.LevelRef{Type: t}
	if hasID {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return core.LevelRef{}, fmt.Errorf("invalid level id %q", id)
		}
		ref.ID = n
	}
	if err := ref.Validate(); err != nil {
		return core.LevelRef{}, err
	}
	return ref, nil
}

func formatRef(ref core.LevelRef) string {
	if ref.Type == core.LevelPersonal {
		return string(core.LevelPersonal)
	}
	return fmt.Sprintf("%s:%d", ref.Type, ref.ID)
}

func printUser(w io.Writer, u *core.User) {
	if u == nil {
		_, _ = fmt.Fprintln(w, "Not signed in")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "ID\t%d\n", u.ID)
	_, _ = fmt.Fprintf(tw, "Username\t%s\n", u.Username)
	_, _ = fmt.Fprintf(tw, "Name\t%s\n", u.DisplayName())
	_, _ = fmt.Fprintf(tw, "Email\t%s\n", u.Email)
	if u.Phone != "" {
		_, _ = fmt.Fprintf(tw, "Phone\t%s\n", u.Phone)
	}
	_ = tw.Flush()
}

func printLevels(w io.Writer, st levels.State) {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, "\tLEVEL\tTITLE\tROLE\tADMIN")
	for _, l := range st.Directory {
		marker := ""
		if l.Matches(st.Current) {
			marker = "*"
		}
		admin := "no"
		if l.IsAdmin {
			admin = "yes"
		}
		role := l.Role
		if role == "" {
			role = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", marker, formatRef(l.Ref()), l.Title, role, admin)
	}
	_ = tw.Flush()
}

func printGroup(w io.Writer, g *api.Group) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "ID\t%d\n", g.ID)
	_, _ = fmt.Fprintf(tw, "Name\t%s\n", g.Name)
	if g.JoinCode != "" {
		_, _ = fmt.Fprintf(tw, "Join code\t%s\n", g.JoinCode)
	}
	if g.JoinPassword != "" {
		_, _ = fmt.Fprintf(tw, "Join password\t%s\n", g.JoinPassword)
	}
	_ = tw.Flush()
}

func printMonth(w io.Writer, view *finance.MonthView) {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tDATE\tNAME\tCATEGORY\tAMOUNT\tRECURRENCE\tPAID")
	for _, e := range view.Expenses {
		paid := "no"
		if e.Status.Paid {
			paid = "yes"
			if e.Status.PaidDate != "" {
				paid = e.Status.PaidDate
			}
		}
		category := e.Category
		if category == "" {
			category = "-"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s %s\t%s\t%s\n",
			e.ID, e.Date, e.Name, category, e.Amount, e.Currency.Code, e.RecurrenceType, paid)
	}
	_ = tw.Flush()
	printTotals(w, view.Totals)
}
