package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/NordicHPC/sonar/internal/aggregate"
)

// Granularity is the calendar bucket width of a rollup export.
type Granularity string

const (
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

// ParseGranularity validates an export granularity. Anything other than
// daily, weekly, or monthly is a configuration error and must be rejected
// before any aggregation work begins.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case Daily, Weekly, Monthly:
		return Granularity(s), nil
	}
	return "", fmt.Errorf("unknown granularity %q, expected daily, weekly, or monthly", s)
}

func (g Granularity) unit() string {
	switch g {
	case Weekly:
		return "week"
	case Monthly:
		return "month"
	}
	return "day"
}

// Table is a calendar rollup ready for export: one fixed set of application
// columns (the top nine by total load plus the default category) and one row
// per bucket, each value a percentage of that bucket's total load.
type Table struct {
	Unit    string   `json:"unit"`
	Apps    []string `json:"apps"`
	Buckets []Bucket `json:"buckets"`
}

type Bucket struct {
	Key    string    `json:"key"`
	Shares []float64 `json:"shares"`
}

const topAppColumns = 9

// Rollup buckets the accumulator's daily per-application load by g. Load of
// applications outside the top nine counts only towards each bucket's
// denominator, never towards a column, so bucket rows may sum to less than
// 100%.
func Rollup(acc *aggregate.Accumulator, g Granularity, defaultCategory string) *Table {
	totals := make(map[string]float64)
	for _, perApp := range acc.DailyLoad {
		for app, load := range perApp {
			totals[app] += load
		}
	}

	ranked := make([]string, 0, len(totals))
	for app := range totals {
		if app != defaultCategory {
			ranked = append(ranked, app)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return totals[ranked[i]] > totals[ranked[j]]
	})
	if len(ranked) > topAppColumns {
		ranked = ranked[:topAppColumns]
	}
	apps := append(ranked, defaultCategory)

	column := make(map[string]int, len(apps))
	for i, app := range apps {
		column[app] = i
	}

	dates := make([]string, 0, len(acc.DailyLoad))
	for date := range acc.DailyLoad {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	table := &Table{Unit: g.unit(), Apps: apps}
	sums := make(map[string][]float64)
	denoms := make(map[string]float64)
	var order []string

	for _, date := range dates {
		key := bucketKey(date, g)
		if _, seen := sums[key]; !seen {
			sums[key] = make([]float64, len(apps))
			order = append(order, key)
		}
		for app, load := range acc.DailyLoad[date] {
			denoms[key] += load
			if i, ok := column[app]; ok {
				sums[key][i] += load
			}
		}
	}

	for _, key := range order {
		shares := make([]float64, len(apps))
		if denom := denoms[key]; denom > 0 {
			for i, v := range sums[key] {
				shares[i] = 100 * v / denom
			}
		}
		table.Buckets = append(table.Buckets, Bucket{Key: key, Shares: shares})
	}

	return table
}

func bucketKey(date string, g Granularity) string {
	switch g {
	case Weekly:
		d, err := time.ParseInLocation("2006-01-02", date, time.UTC)
		if err != nil {
			return date
		}
		year, week := d.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case Monthly:
		return date[:7]
	}
	return date
}

// WriteRollup emits the table as delimited text with a header row, every
// share formatted to two decimal places.
func WriteRollup(w io.Writer, t *Table, delimiter rune) error {
	writer := csv.NewWriter(w)
	writer.Comma = delimiter

	header := append([]string{t.Unit}, t.Apps...)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write rollup header: %w", err)
	}

	for _, bucket := range t.Buckets {
		row := make([]string, 0, len(bucket.Shares)+1)
		row = append(row, bucket.Key)
		for _, share := range bucket.Shares {
			row = append(row, strconv.FormatFloat(share, 'f', 2, 64))
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write rollup row %s: %w", bucket.Key, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
