package interest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Horizon is a labelled projection length in days.
type Horizon struct {
	Label string
	Days  int
}

// MaxHorizonDays caps any projection at 100 years.
const MaxHorizonDays = 36500

// StandardHorizons are the lengths offered to users, shortest first.
func StandardHorizons() []Horizon {
	return []Horizon{
		{Label: "2w", Days: 14},
		{Label: "30d", Days: 30},
		{Label: "6m", Days: 180},
		{Label: "1y", Days: 365},
		{Label: "5y", Days: 1825},
	}
}

// ComputeProjections maps each horizon (in days) to the projected balance.
// Pure; a negative horizon panics like ProjectedBalance does.
func ComputeProjections(principal, annualRate decimal.Decimal, horizons []int) map[int]decimal.Decimal {
	out := make(map[int]decimal.Decimal, len(horizons))
	for _, d := range horizons {
		out[d] = ProjectedBalance(principal, annualRate, d)
	}
	return out
}

// ParseHorizons reads a comma-separated list of day counts or standard
// labels ("14,30,1y"). Empty input yields the standard set.
func ParseHorizons(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return horizonDays(StandardHorizons()), nil
	}

	labels := make(map[string]int)
	for _, h := range StandardHorizons() {
		labels[h.Label] = h.Days
	}

	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if d, ok := labels[part]; ok {
			out = append(out, d)
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil || d < 0 || d > MaxHorizonDays {
			return nil, fmt.Errorf("invalid horizon %q: want 0 to %d days or a standard label", part, MaxHorizonDays)
		}
		out = append(out, d)
	}
	sort.Ints(out)
	return out, nil
}

func horizonDays(hs []Horizon) []int {
	out := make([]int, len(hs))
	for i, h := range hs {
		out[i] = h.Days
	}
	return out
}

// SeriesPoint is one sample on a projection curve.
type SeriesPoint struct {
	Day     int
	Balance decimal.Decimal
}

// ProjectionSeries samples the balance curve from day 0 to days in at most
// points+1 evenly spaced steps. Used for charts. days is clamped to
// MaxHorizonDays.
func ProjectionSeries(principal, annualRate decimal.Decimal, days, points int) []SeriesPoint {
	if days <= 0 || points <= 0 {
		return []SeriesPoint{{Day: 0, Balance: principal}}
	}
	if days > MaxHorizonDays {
		days = MaxHorizonDays
	}
	if points > days {
		points = days
	}

	series := make([]SeriesPoint, 0, points+1)
	for i := 0; i <= points; i++ {
		d := i * days / points
		series = append(series, SeriesPoint{Day: d, Balance: ProjectedBalance(principal, annualRate, d)})
	}
	return series
}
