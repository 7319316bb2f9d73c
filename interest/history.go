package interest

import (
	"sort"
	"time"

	"github.com/warp/savings-engine/generic"
)

// DaySummary totals one calendar day of ledger activity.
type DaySummary struct {
	Date      time.Time
	Added     generic.Amount
	Withdrawn generic.Amount
	Interest  generic.Amount
	Count     int
}

// Net is what the day did to the balance.
func (d DaySummary) Net() generic.Amount {
	return d.Added.Add(d.Interest).Sub(d.Withdrawn)
}

// SummarizeByDay groups transactions by UTC date, most recent day first.
// Interest is recognised by its Kind, never by its size. Adjustments count as
// added or withdrawn by direction.
func SummarizeByDay(txs []generic.Transaction) []DaySummary {
	days := make(map[time.Time]*DaySummary)
	for _, tx := range txs {
		key := generic.DateKey(tx.Date)
		sum, ok := days[key]
		if !ok {
			sum = &DaySummary{
				Date:      key,
				Added:     generic.ZeroAmount(),
				Withdrawn: generic.ZeroAmount(),
				Interest:  generic.ZeroAmount(),
			}
			days[key] = sum
		}

		sum.Count++
		switch {
		case tx.IsInterest():
			sum.Interest = sum.Interest.Add(tx.Amount)
		case tx.Direction == generic.Credit:
			sum.Added = sum.Added.Add(tx.Amount)
		default:
			sum.Withdrawn = sum.Withdrawn.Add(tx.Amount)
		}
	}

	out := make([]DaySummary, 0, len(days))
	for _, sum := range days {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}
