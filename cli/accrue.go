package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/interest"
)

func newAccrueCommand(opts *rootOptions) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "accrue",
		Short: "Run one accrual pass over every account and exit",
		Long: `Run one accrual pass over every account and exit.

Accounts with at least one whole day since their last accrual get interest
posted for every interest-bearing category. Use --now to run the pass as of
another instant, e.g. to catch up a restored backup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --now %q: expected RFC 3339", at)
				}
				now = t
			}

			cfg, err := opts.load()
			if err != nil {
				return err
			}
			e, err := openEngine(cfg)
			if err != nil {
				return err
			}
			defer e.Close()

			result, err := e.scheduler.RunAccrualPass(cmd.Context(), now)
			if err != nil {
				return err
			}
			if err := printPass(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if failed := result.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d account(s) failed and will be retried on the next pass", len(failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "now", "", "run the pass as of this RFC 3339 time instead of the current time")

	return cmd
}

func printPass(out io.Writer, result *interest.PassResult) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tDAYS\tCATEGORY\tINTEREST\tSTATUS")
	for _, acc := range result.Accounts {
		switch {
		case acc.Err != nil:
			fmt.Fprintf(w, "%s\t%d\t-\t-\tfailed: %v\n", acc.AccountID, acc.DaysPassed, acc.Err)
		case len(acc.Events) == 0:
			status := "nothing due"
			if acc.Advanced {
				status = "clock advanced"
			}
			fmt.Fprintf(w, "%s\t%d\t-\t-\t%s\n", acc.AccountID, acc.DaysPassed, status)
		default:
			for _, ev := range acc.Events {
				amount := generic.NewAmountFromDecimal(ev.Amount)
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\tposted\n", acc.AccountID, ev.Days, ev.Category, amount.Display())
			}
		}
	}
	fmt.Fprintf(w, "\n%d posted, %d failed, %d accounts\n", len(result.Events()), len(result.Failed()), len(result.Accounts))
	return w.Flush()
}
