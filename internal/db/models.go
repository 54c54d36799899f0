package db

import "time"

// UsageTotal is one per-(app,user) row persisted from a run. Unmapped rows
// carry the raw process name in App.
type UsageTotal struct {
	App      string
	User     string
	CPULoad  float64
	Reserved int
	Unmapped bool
}

// DailyLoad is one per-day per-application load row.
type DailyLoad struct {
	Date time.Time
	App  string
	Load float64
}
