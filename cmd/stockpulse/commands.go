package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"StockPulse/internal/model"
	"StockPulse/internal/notifier"
	"StockPulse/internal/pipeline"
)

var (
	jsonOutput   bool
	monthlyYear  int
	monthlyMonth int
	historyLimit int
)

var predictCmd = &cobra.Command{
	Use:   "predict TICKER",
	Short: "Refresh data and print the 7-day forecast and recommendation",
	Example: `  stockpulse predict AAPL
  stockpulse predict MSFT --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			res, err := a.pipeline.Run(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			printForecast(cmd.OutOrStdout(), res)
			return nil
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh [TICKER...]",
	Short: "Refresh and reconcile stored data without running the model",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			tickers := args
			if len(tickers) == 0 {
				tickers = a.cfg.Tickers
			}
			var failed int
			for _, t := range tickers {
				res, err := a.pipeline.Refresh(ctx, t)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", t, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows through %s (fetched=%t recent_unavailable=%t overlap=%d)\n",
					res.Ticker, res.Rows, res.LastDate.Format(model.DateLayout), res.Fetched, res.RecentUnavailable, res.Merge.Overlap)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d tickers failed", failed, len(tickers))
			}
			return nil
		})
	},
}

var monthlyCmd = &cobra.Command{
	Use:   "monthly TICKER",
	Short: "Show statistics for one month of stored history",
	Long: `Show statistics for one calendar month of a ticker's stored history.
Without --year and --month the available periods are listed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			if monthlyYear == 0 || monthlyMonth == 0 {
				periods, err := a.pipeline.Periods(args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), periods)
				}
				for _, p := range periods {
					fmt.Fprintf(cmd.OutOrStdout(), "%04d-%02d\n", p.Year, p.Month)
				}
				return nil
			}
			st, err := a.pipeline.Monthly(args[0], monthlyYear, monthlyMonth)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			fmt.Fprint(cmd.OutOrStdout(), stripTags(notifier.FormatMonthlyStats(strings.ToUpper(args[0]), st)))
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history TICKER",
	Short: "List recorded forecast runs for a ticker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			runs, err := a.pipeline.History(ctx, args[0], historyLimit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			fmt.Fprint(cmd.OutOrStdout(), stripTags(notifier.FormatRunHistory(strings.ToUpper(args[0]), runs)))
			return nil
		})
	},
}

func init() {
	predictCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	monthlyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	monthlyCmd.Flags().IntVar(&monthlyYear, "year", 0, "Calendar year")
	monthlyCmd.Flags().IntVar(&monthlyMonth, "month", 0, "Calendar month (1-12)")
	historyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of runs to show")

	rootCmd.AddCommand(predictCmd, refreshCmd, monthlyCmd, historyCmd, serveCmd)
}

func printForecast(w io.Writer, res *pipeline.Result) {
	rec := res.Recommendation
	fmt.Fprintf(w, "%s  data through %s", res.Refresh.Ticker, res.Refresh.LastDate.Format(model.DateLayout))
	if res.Refresh.RecentUnavailable {
		fmt.Fprint(w, "  (recent data unavailable)")
	}
	fmt.Fprintf(w, "\n\n%s: %s\n", rec.Action, rec.Rationale)
	fmt.Fprintf(w, "Last price %s, predicted %s (%s)\n\n",
		notifier.Money(res.Summary.LastPrice), notifier.Money(res.Summary.PredictedPrice), notifier.Percent(res.Summary.ReturnPct))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tDATE\tPRICE\tCHANGE\tACTION")
	for _, d := range res.Table {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			d.Label, d.Date.Format(model.DateLayout), notifier.Money(d.Price), notifier.Percent(d.ChangePct), d.Action)
	}
	tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var tagReplacer = strings.NewReplacer("<b>", "", "</b>", "", "&lt;", "<", "&gt;", ">", "&amp;", "&", "&#34;", `"`, "&#39;", "'")

func stripTags(s string) string {
	return tagReplacer.Replace(s)
}
