package snapshot

import "time"

// NoJobContext is the sentinel written by the collector when a process was
// not running under a scheduler job.
const NoJobContext = "-"

// Record is one process-on-node observation parsed from a snapshot row.
// Records are constructed once per parsed line and never mutated afterwards.
type Record struct {
	Timestamp   time.Time
	Hostname    string
	CoresOnNode int
	User        string
	Process     string

	// CPUPercent is the percentage of one core's worth of CPU. It can
	// exceed 100 for multi-threaded processes.
	CPUPercent float64

	MemUsedMB *float64
	Project   string
	JobID     string

	// RequestedCores and RequestedMemMB are only present when the process
	// ran with a scheduler job context. RequestedMemMB is normalized to MB
	// at parse time.
	RequestedCores *int
	RequestedMemMB *float64
}
