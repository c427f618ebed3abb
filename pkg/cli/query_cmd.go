package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sqlspeak-console/internal/domain"
	"sqlspeak-console/internal/session"
)

var errSignInRequired = errors.New("sign-in required")

// queryError is a query that reached the service but did not produce a
// result. It carries the message the console would show.
type queryError struct {
	Message string
}

func (e *queryError) Error() string { return e.Message }

func newQueryCmd(s *settings) *cobra.Command {
	var (
		dataSource string
		profile    string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask the query service a question in plain language",
		Example: `  sqlspeak query "How many patients are there?"
  sqlspeak query --data-source benchmark_postgres --query-profile benchmark-postgres "Top 5 customers by revenue"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := domain.QueryRequest{
				DataSource:           firstNonEmpty(dataSource, s.DataSource, "hospital_sqlite"),
				Profile:              firstNonEmpty(profile, s.QueryProfile, "sqlite-dev"),
				NaturalLanguageQuery: strings.Join(args, " "),
			}

			ctrl := session.NewController(s.credentials(cmd.ErrOrStderr()), s.client(), session.Options{
				Timeout: timeout,
				Logger:  quietLogger(),
			})
			out, err := ctrl.RunQuery(cmd.Context(), req)
			if err != nil {
				return err
			}
			if _, ok := out.Redirecting(); ok {
				return errSignInRequired
			}
			state := out.Value()
			if state.Error != "" {
				return &queryError{Message: state.Error}
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), state.LastResult)
			}
			return printResult(cmd, state.LastResult)
		},
	}

	cmd.Flags().StringVar(&dataSource, "data-source", "", "Data source to query (default from profile, else hospital_sqlite)")
	cmd.Flags().StringVar(&profile, "query-profile", "", "Execution profile (default from profile, else sqlite-dev)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Give up waiting after this long (0 waits forever)")

	return cmd
}

func printResult(cmd *cobra.Command, result *domain.QueryResult) error {
	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "SQL: %s\n", oneLine(result.GeneratedSQL))
	meta := fmt.Sprintf("Status: %s  Profile: %s  Time: %s ms", result.Meta.Status, result.Meta.Profile,
		strconv.FormatFloat(result.Meta.ExecutionTimeMs, 'f', -1, 64))
	if result.Meta.RowCount != nil {
		meta += fmt.Sprintf("  Rows: %d", *result.Meta.RowCount)
	}
	_, _ = fmt.Fprintln(w, meta)

	cols := result.Columns()
	if len(cols) == 0 {
		_, _ = fmt.Fprintln(w, "(no rows)")
		return nil
	}
	_, _ = fmt.Fprintln(w)

	rows := make([][]string, 0, len(result.Rows))
	for _, r := range result.Rows {
		row := make([]string, len(cols))
		for i, c := range cols {
			if v, ok := r.Get(c); ok {
				row[i] = cellText(v)
			}
		}
		rows = append(rows, row)
	}
	return printTable(w, cols, rows)
}

func newHistoryCmd(s *settings) *cobra.Command {
	var (
		status       string
		timeContains string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cred, err := ensureToken(cmd.Context(), s, cmd)
			if err != nil {
				return err
			}
			history, err := s.client().History(cmd.Context(), cred.Token)
			if err != nil {
				return err
			}
			visible := session.ApplyFilters(history, domain.HistoryFilter{
				Status:       domain.ParseStatusFilter(status),
				TimeContains: timeContains,
			})

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), visible)
			}
			rows := make([][]string, 0, len(visible))
			for _, e := range visible {
				rows = append(rows, []string{
					e.Timestamp, e.DataSource, e.Profile, e.NaturalLanguageQuery, e.Status, strconv.FormatInt(e.RowCount, 10),
				})
			}
			return printTable(cmd.OutOrStdout(), []string{"TIME", "DATA SOURCE", "PROFILE", "QUESTION", "STATUS", "ROWS"}, rows)
		},
	}

	cmd.Flags().StringVar(&status, "status", "all", "Filter by status (all, success, error)")
	cmd.Flags().StringVar(&timeContains, "time", "", "Only entries whose timestamp contains this text")

	return cmd
}

func isRedirect[T any](o domain.Outcome[T]) bool {
	_, ok := o.Redirecting()
	return ok
}

func newMeCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the identity the query service sees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cred, err := ensureToken(cmd.Context(), s, cmd)
			if err != nil {
				return err
			}
			principal, err := s.client().Me(cmd.Context(), cred.Token)
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), principal)
			}
			return printDetail(cmd.OutOrStdout(), [][2]string{
				{"ID", principal.ID},
				{"Name", principal.DisplayName},
				{"Roles", strings.Join(principal.Roles, ", ")},
			})
		},
	}
}

func newSchemaCmd(s *settings) *cobra.Command {
	var dataSource string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Show the tables of a data source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cred, err := ensureToken(cmd.Context(), s, cmd)
			if err != nil {
				return err
			}
			ds := firstNonEmpty(dataSource, s.DataSource, "hospital_sqlite")
			snapshot, err := s.client().Schema(cmd.Context(), cred.Token, ds)
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), snapshot)
			}
			rows := make([][]string, 0)
			for _, t := range snapshot.Tables {
				name := stringField(t, "name", "table")
				cols, _ := t["columns"].([]interface{})
				if len(cols) == 0 {
					rows = append(rows, []string{name, "", ""})
				}
				for _, c := range cols {
					if m, ok := c.(map[string]interface{}); ok {
						rows = append(rows, []string{name, cellText(m["name"]), cellText(m["type"])})
					} else {
						rows = append(rows, []string{name, cellText(c), ""})
					}
				}
			}
			return printTable(cmd.OutOrStdout(), []string{"TABLE", "COLUMN", "TYPE"}, rows)
		},
	}

	cmd.Flags().StringVar(&dataSource, "data-source", "", "Data source to describe (default from profile, else hospital_sqlite)")

	return cmd
}

// ensureToken resolves the configured credential, printing the sign-in
// notice when there is none.
func ensureToken(ctx context.Context, s *settings, cmd *cobra.Command) (domain.Credential, error) {
	out, err := s.credentials(cmd.ErrOrStderr()).EnsureCredential(ctx)
	if err != nil {
		return domain.Credential{}, err
	}
	if isRedirect(out) {
		return domain.Credential{}, errSignInRequired
	}
	return out.Value(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func stringField(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
