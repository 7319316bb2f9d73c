package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/interest"
)

func newProjectCommand(opts *rootOptions) *cobra.Command {
	var (
		principal string
		category  string
		rate      string
		horizons  string
	)

	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project a balance forward with daily compounding",
		Example: `  savings project --principal 1000 --category savings
  savings project --principal 500 --category investments --horizons 30,1y,5y
  savings project --principal 250 --rate 6`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := decimal.NewFromString(principal)
			if err != nil || p.IsNegative() {
				return fmt.Errorf("%w: principal %q must be a non-negative decimal", generic.ErrInvalidAmount, principal)
			}
			c, err := generic.ParseCategory(category)
			if err != nil {
				return err
			}
			days, err := interest.ParseHorizons(horizons)
			if err != nil {
				return err
			}

			var annual decimal.Decimal
			if rate != "" {
				percent, err := decimal.NewFromString(rate)
				if err != nil {
					return fmt.Errorf("%w: %q", generic.ErrInvalidRate, rate)
				}
				if annual, err = interest.RateFromPercent(percent); err != nil {
					return err
				}
			} else {
				cfg, err := opts.load()
				if err != nil {
					return err
				}
				rates, err := cfg.Accrual.RateTable()
				if err != nil {
					return err
				}
				annual = rates.AnnualRateFor(c)
			}

			labels := make(map[int]string)
			for _, h := range interest.StandardHorizons() {
				labels[h.Days] = h.Label
			}

			projected := interest.ComputeProjections(p, annual, days)
			start := generic.NewAmountFromDecimal(p)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s at %s%% a year, compounded daily\n\n",
				start.Display(), c, interest.RateToPercent(annual).String())

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "HORIZON\tDAYS\tBALANCE\tINTEREST")
			for _, d := range days {
				bal := generic.NewAmountFromDecimal(projected[d]).Round()
				label := labels[d]
				if label == "" {
					label = fmt.Sprintf("%dd", d)
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", label, d, bal.Display(), bal.Sub(start).Display())
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&principal, "principal", "", "starting balance, e.g. 1000.00 (required)")
	_ = cmd.MarkFlagRequired("principal")
	cmd.Flags().StringVar(&category, "category", string(generic.CategorySavings), "cash, savings or investments")
	cmd.Flags().StringVar(&rate, "rate", "", "annual rate in percent; defaults to the configured rate for the category")
	cmd.Flags().StringVar(&horizons, "horizons", "", "comma-separated days or labels (2w,30d,6m,1y,5y)")

	return cmd
}
