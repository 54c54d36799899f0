package aggregate

import (
	"time"

	"github.com/NordicHPC/sonar/internal/mapping"
	"github.com/NordicHPC/sonar/internal/snapshot"
)

// Key identifies one accumulation slot. App holds the resolved application
// label in the mapped namespace and the raw process name in the unmapped one.
type Key struct {
	App  string
	User string
}

// Range tracks the observed minimum and maximum of a requested resource.
// The zero value means the field was never observed for the key.
type Range struct {
	Set bool
	Min float64
	Max float64
}

// Widen returns the range extended to include v.
func (r Range) Widen(v float64) Range {
	if !r.Set {
		return Range{Set: true, Min: v, Max: v}
	}
	if v < r.Min {
		r.Min = v
	}
	if v > r.Max {
		r.Max = v
	}
	return r
}

// Usage is one accumulation namespace.
//
// CPUReserved counts every observed node's cores towards each (app,user)
// pair seen on it, as a proxy for cores blocked by that pair. This double
// counts cores whenever several users or jobs share a node; the imprecision
// is documented behavior, kept from the original accounting.
type Usage struct {
	CPULoad        map[Key]float64
	CPUReserved    map[Key]int
	CoresRequested map[Key]Range
	MemRequested   map[Key]Range
}

func newUsage() Usage {
	return Usage{
		CPULoad:        make(map[Key]float64),
		CPUReserved:    make(map[Key]int),
		CoresRequested: make(map[Key]Range),
		MemRequested:   make(map[Key]Range),
	}
}

func (u Usage) add(app string, rec snapshot.Record) {
	k := Key{App: app, User: rec.User}
	u.CPULoad[k] += rec.CPUPercent / 100
	u.CPUReserved[k] += rec.CoresOnNode
	if rec.RequestedCores != nil {
		u.CoresRequested[k] = u.CoresRequested[k].Widen(float64(*rec.RequestedCores))
	}
	if rec.RequestedMemMB != nil {
		u.MemRequested[k] = u.MemRequested[k].Widen(*rec.RequestedMemMB)
	}
}

// Accumulator holds the output of one aggregation pass. It is mutated only
// by Aggregate and is read-only once handed to a reporter.
//
// Mapped and Unmapped are kept as parallel namespaces so reports can show
// mapped vs. unmapped totals without re-scanning: records whose process name
// matched no rule land in Unmapped keyed by the raw process name. DailyLoad
// is the exception and collapses unmapped records into the default category.
type Accumulator struct {
	Mapped   Usage
	Unmapped Usage

	// DailyLoad maps a calendar date ("2006-01-02") to per-application
	// CPU load sums.
	DailyLoad map[string]map[string]float64
}

// Options configures one aggregation pass.
type Options struct {
	// RetentionDays limits DailyLoad bucketing to dates at most this many
	// calendar days before today. Zero disables the window. Records older
	// than the window still count towards the overall usage sums.
	RetentionDays int

	// Today overrides the reference date for the retention window. The
	// zero value means time.Now().
	Today time.Time
}

const dateLayout = "2006-01-02"

// Aggregate streams records through the classifier into a fresh accumulator.
func Aggregate(records []snapshot.Record, classifier *mapping.Classifier, opts Options) *Accumulator {
	acc := &Accumulator{
		Mapped:    newUsage(),
		Unmapped:  newUsage(),
		DailyLoad: make(map[string]map[string]float64),
	}

	today := opts.Today
	if today.IsZero() {
		today = time.Now()
	}

	for _, rec := range records {
		app := classifier.Classify(rec.Process)
		if app == classifier.DefaultCategory {
			acc.Unmapped.add(rec.Process, rec)
		} else {
			acc.Mapped.add(app, rec)
		}

		date := rec.Timestamp.Format(dateLayout)
		if opts.RetentionDays > 0 && daysBetween(date, today) > opts.RetentionDays {
			continue
		}
		if acc.DailyLoad[date] == nil {
			acc.DailyLoad[date] = make(map[string]float64)
		}
		acc.DailyLoad[date][app] += rec.CPUPercent / 100
	}

	return acc
}

// daysBetween is the calendar-date distance from date to today. Time of day
// and zone offsets are irrelevant once the date component is extracted.
func daysBetween(date string, today time.Time) int {
	d, err := time.ParseInLocation(dateLayout, date, time.UTC)
	if err != nil {
		return 0
	}
	t := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(d).Hours() / 24)
}
